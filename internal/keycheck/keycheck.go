// Package keycheck confirms a candidate API key works before it is saved.
package keycheck

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hpnssflw/voicekeeper/internal/cascade"
	"github.com/hpnssflw/voicekeeper/internal/credentials"
)

// ProbePrompt is the trivial prompt sent to confirm a key can generate.
const ProbePrompt = "This is a test. Reply with just 'OK'."

// DefaultAttempts bounds the probe to the first few matrix entries.
const DefaultAttempts = 3

// LimitedInvoker runs a prompt over the first n attempts of the cascade.
// Implemented by cascade.Cascade; model discovery with the candidate key
// happens inside the call.
type LimitedInvoker interface {
	InvokeLimited(ctx context.Context, cred credentials.Credential, prompt string, n int, opts ...cascade.Option) (cascade.Result, error)
}

type Validator struct {
	invoker  LimitedInvoker
	attempts int
	logger   *slog.Logger
}

// New creates a Validator that tries at most attempts (version, model) pairs.
func New(invoker LimitedInvoker, attempts int) *Validator {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	return &Validator{
		invoker:  invoker,
		attempts: attempts,
		logger:   slog.Default().With("component", "keycheck"),
	}
}

// Validate reports whether key can serve a generation call for provider.
// Every failure, including an unsupported provider, is reported as false.
func (v *Validator) Validate(ctx context.Context, provider, key string) bool {
	provider = strings.ToLower(strings.TrimSpace(provider))
	key = strings.TrimSpace(key)
	if !credentials.Supported(provider) || key == "" {
		return false
	}

	cred := credentials.Credential{Provider: provider, Key: key}
	res, err := v.invoker.InvokeLimited(ctx, cred, ProbePrompt, v.attempts, cascade.WithTemperature(0))
	if err != nil {
		v.logger.Info("key validation failed", "provider", provider, "fingerprint", cred.Fingerprint(), "error", err)
		return false
	}
	v.logger.Debug("key validated", "provider", provider, "model", res.Attempt.Model, "version", res.Attempt.Version)
	return true
}
