package credentials

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hpnssflw/voicekeeper/internal/storage"
)

type mockKeyStore struct {
	keys map[string]string
	err  error
}

func (m mockKeyStore) GetAPIKey(userID, provider string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	k, ok := m.keys[userID+"/"+provider]
	if !ok {
		return "", storage.ErrNotFound
	}
	return k, nil
}

func TestFingerprint(t *testing.T) {
	a := Credential{Provider: "gemini", Key: "key-a"}
	b := Credential{Provider: "gemini", Key: "key-b"}

	if len(a.Fingerprint()) != 16 {
		t.Errorf("len(Fingerprint) = %d, want 16", len(a.Fingerprint()))
	}
	if a.Fingerprint() != a.Fingerprint() {
		t.Error("Fingerprint not stable")
	}
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("different keys share a fingerprint")
	}
	if strings.Contains(a.Fingerprint(), "key-a") {
		t.Error("fingerprint exposes the key")
	}
}

func TestRedacted(t *testing.T) {
	c := Credential{Key: "AIzaSyABCDEFGH1234"}
	got := c.Redacted()
	if !strings.HasPrefix(got, "AIza") || !strings.HasSuffix(got, "1234") || strings.Contains(got, "ABCDEFGH") {
		t.Errorf("Redacted() = %q", got)
	}
	if got := (Credential{Key: "short"}).Redacted(); got != "*****" {
		t.Errorf("Redacted(short) = %q", got)
	}
}

func TestSupported(t *testing.T) {
	if !Supported("gemini") || !Supported(" Gemini ") {
		t.Error("gemini should be supported")
	}
	if Supported("openai") || Supported("") {
		t.Error("unexpected provider reported as supported")
	}
}

func TestStoreProvider(t *testing.T) {
	p := NewStoreProvider(mockKeyStore{keys: map[string]string{"u1/gemini": "k1", "u2/gemini": "  "}})

	cred, err := p.GetKey(context.Background(), "u1", "gemini")
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if cred.Key != "k1" || cred.Provider != "gemini" {
		t.Errorf("GetKey = %+v", cred)
	}

	if _, err := p.GetKey(context.Background(), "missing", "gemini"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing user: err = %v, want ErrNotFound", err)
	}
	if _, err := p.GetKey(context.Background(), "u2", "gemini"); !errors.Is(err, ErrNotFound) {
		t.Errorf("blank key: err = %v, want ErrNotFound", err)
	}

	broken := NewStoreProvider(mockKeyStore{err: errors.New("db closed")})
	if _, err := broken.GetKey(context.Background(), "u1", "gemini"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("store failure: err = %v, want a non-NotFound error", err)
	}
}

func TestChain_FallsBackToStatic(t *testing.T) {
	chain := Chain{
		NewStoreProvider(mockKeyStore{keys: map[string]string{"u1/gemini": "user-key"}}),
		NewStaticProvider("gemini", "operator-key"),
	}

	cred, err := chain.GetKey(context.Background(), "u1", "gemini")
	if err != nil || cred.Key != "user-key" {
		t.Errorf("u1: got %+v, %v; want user-key", cred, err)
	}

	cred, err = chain.GetKey(context.Background(), "u2", "gemini")
	if err != nil || cred.Key != "operator-key" {
		t.Errorf("u2: got %+v, %v; want operator-key", cred, err)
	}

	if _, err := chain.GetKey(context.Background(), "u2", "openai"); !errors.Is(err, ErrNotFound) {
		t.Errorf("other provider: err = %v, want ErrNotFound", err)
	}
}

func TestChain_StopsOnStoreError(t *testing.T) {
	chain := Chain{
		NewStoreProvider(mockKeyStore{err: errors.New("db closed")}),
		NewStaticProvider("gemini", "operator-key"),
	}
	if _, err := chain.GetKey(context.Background(), "u1", "gemini"); err == nil {
		t.Fatal("expected store error to stop the chain")
	}
}

func TestStaticProvider_EmptyKey(t *testing.T) {
	p := NewStaticProvider("gemini", "")
	if _, err := p.GetKey(context.Background(), "u1", "gemini"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
