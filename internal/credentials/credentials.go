// Package credentials resolves the backend API key to use for a user.
// Credentials are passed explicitly to every outbound call; nothing here is
// process-global.
package credentials

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/hpnssflw/voicekeeper/internal/storage"
)

// ProviderGemini is the only backend currently supported.
const ProviderGemini = "gemini"

// ErrNotFound is returned when no key is configured for the user and provider.
var ErrNotFound = errors.New("credential not found")

// Credential is an API key for one backend provider.
type Credential struct {
	Provider string
	Key      string
}

// Fingerprint identifies the credential without exposing the key. It is used
// as the model catalog cache key.
func (c Credential) Fingerprint() string {
	sum := sha256.Sum256([]byte(c.Provider + ":" + c.Key))
	return hex.EncodeToString(sum[:])[:16]
}

// Redacted returns a display form of the key safe to print.
func (c Credential) Redacted() string {
	k := strings.TrimSpace(c.Key)
	if len(k) <= 8 {
		return strings.Repeat("*", len(k))
	}
	return k[:4] + strings.Repeat("*", len(k)-8) + k[len(k)-4:]
}

// Supported reports whether provider names a backend this build can talk to.
func Supported(provider string) bool {
	return strings.EqualFold(strings.TrimSpace(provider), ProviderGemini)
}

// Provider looks up the key a user has configured for a backend.
type Provider interface {
	GetKey(ctx context.Context, userID, provider string) (Credential, error)
}

// KeyStore is the persistence the StoreProvider reads from.
// Implemented by storage.Store.
type KeyStore interface {
	GetAPIKey(userID, provider string) (string, error)
}

// StoreProvider reads per-user keys from the database.
type StoreProvider struct {
	store KeyStore
}

func NewStoreProvider(store KeyStore) *StoreProvider {
	return &StoreProvider{store: store}
}

func (p *StoreProvider) GetKey(_ context.Context, userID, provider string) (Credential, error) {
	key, err := p.store.GetAPIKey(userID, provider)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && strings.TrimSpace(key) == "") {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, fmt.Errorf("reading %s key for %q: %w", provider, userID, err)
	}
	return Credential{Provider: provider, Key: key}, nil
}

// StaticProvider serves a single operator-configured key for every user.
type StaticProvider struct {
	provider string
	key      string
}

func NewStaticProvider(provider, key string) *StaticProvider {
	return &StaticProvider{provider: provider, key: strings.TrimSpace(key)}
}

func (p *StaticProvider) GetKey(_ context.Context, _ string, provider string) (Credential, error) {
	if p.key == "" || provider != p.provider {
		return Credential{}, ErrNotFound
	}
	return Credential{Provider: provider, Key: p.key}, nil
}

// Chain tries each provider in order and returns the first key found.
// Errors other than ErrNotFound stop the chain.
type Chain []Provider

func (c Chain) GetKey(ctx context.Context, userID, provider string) (Credential, error) {
	for _, p := range c {
		cred, err := p.GetKey(ctx, userID, provider)
		if err == nil {
			return cred, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Credential{}, err
		}
	}
	return Credential{}, ErrNotFound
}
