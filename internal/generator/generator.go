// Package generator produces channel posts through the invocation cascade,
// optionally in the voice described by a StyleProfile.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hpnssflw/voicekeeper/internal/cascade"
	"github.com/hpnssflw/voicekeeper/internal/composer"
	"github.com/hpnssflw/voicekeeper/internal/credentials"
	"github.com/hpnssflw/voicekeeper/internal/profile"
)

var (
	// ErrNoCredential means the user has no key for the requested provider.
	ErrNoCredential = errors.New("no API key configured for provider")
	// ErrEmptyTopic is a caller error: the topic is required.
	ErrEmptyTopic = errors.New("topic must not be empty")
)

// Confidence heuristic: base plus up to jitterSpan of uniform noise. It is a
// display hint, not a calibrated probability.
const (
	confidenceBase = 0.85
	jitterSpan     = 0.10
)

const alternativeTemperature = 1.0

// Params describes one generation request.
type Params struct {
	Topic              string                `json:"topic"`
	Tone               string                `json:"tone,omitempty"`
	Length             string                `json:"length,omitempty"`
	IncludeEmoji       bool                  `json:"include_emoji,omitempty"`
	IncludeCTA         bool                  `json:"include_cta,omitempty"`
	CustomInstructions string                `json:"custom_instructions,omitempty"`
	Fingerprint        *profile.StyleProfile `json:"-"`
	Alternative        bool                  `json:"alternative,omitempty"`
	Provider           string                `json:"provider,omitempty"`
}

// Result is one generated post. It is not persisted here.
type Result struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	Alternatives []string  `json:"alternatives"`
	Confidence   float64   `json:"confidence"`
	Model        string    `json:"model"`
	APIVersion   string    `json:"api_version"`
	CreatedAt    time.Time `json:"created_at"`
}

// Invoker runs a prompt through the cascade. Implemented by cascade.Cascade.
type Invoker interface {
	Invoke(ctx context.Context, cred credentials.Credential, prompt string, opts ...cascade.Option) (cascade.Result, error)
}

type Generator struct {
	creds   credentials.Provider
	invoker Invoker
	jitter  func() float64
	now     func() time.Time
	logger  *slog.Logger
}

func New(creds credentials.Provider, invoker Invoker) *Generator {
	return &Generator{
		creds:   creds,
		invoker: invoker,
		jitter:  rand.Float64,
		now:     time.Now,
		logger:  slog.Default().With("component", "generator"),
	}
}

// Generate writes a post for userID. It fails with ErrEmptyTopic,
// ErrNoCredential, or a cascade.ErrExhausted error for the primary call.
// A failed alternative is logged and leaves Alternatives empty.
func (g *Generator) Generate(ctx context.Context, userID string, p Params) (Result, error) {
	if strings.TrimSpace(p.Topic) == "" {
		return Result{}, ErrEmptyTopic
	}
	provider := strings.ToLower(strings.TrimSpace(p.Provider))
	if provider == "" {
		provider = credentials.ProviderGemini
	}

	cred, err := g.creds.GetKey(ctx, userID, provider)
	if errors.Is(err, credentials.ErrNotFound) {
		return Result{}, fmt.Errorf("%w: %s", ErrNoCredential, provider)
	}
	if err != nil {
		return Result{}, fmt.Errorf("resolving credential: %w", err)
	}

	system := ""
	if p.Fingerprint != nil {
		system = composer.Compile(*p.Fingerprint)
	}
	prompt := composer.Join(system, BuildPrompt(p))

	primary, err := g.invoker.Invoke(ctx, cred, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("generating post: %w", err)
	}

	res := Result{
		ID:           uuid.NewString(),
		Content:      strings.TrimSpace(primary.Text),
		Alternatives: []string{},
		Confidence:   g.confidence(),
		Model:        primary.Attempt.Model,
		APIVersion:   primary.Attempt.Version,
		CreatedAt:    g.now().UTC(),
	}

	if p.Alternative {
		alt, err := g.invoker.Invoke(ctx, cred, prompt+"\n\n"+variationInstruction, cascade.WithTemperature(alternativeTemperature))
		if err != nil {
			g.logger.Warn("alternative generation failed", "user_id", userID, "error", err)
		} else {
			res.Alternatives = append(res.Alternatives, strings.TrimSpace(alt.Text))
		}
	}

	return res, nil
}

func (g *Generator) confidence() float64 {
	c := confidenceBase + g.jitter()*jitterSpan
	return max(0, min(1, c))
}
