// Package cascade is the single path every outbound generation call takes.
// It tries (API version, model) pairs in a fixed order until one returns
// text, so retired models and version changes degrade latency instead of
// failing requests.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hpnssflw/voicekeeper/internal/credentials"
	"github.com/hpnssflw/voicekeeper/internal/gemini"
)

// ErrExhausted matches every *ExhaustedError via errors.Is.
var ErrExhausted = errors.New("all model attempts failed")

// ExhaustedError is returned when no attempt in the matrix succeeded. It
// does not unwrap to the underlying transport error.
type ExhaustedError struct {
	Attempts []Outcome
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d model attempts failed (last: %v)", len(e.Attempts), e.Last)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// Generator performs one generation call. Implemented by gemini.Client.
type Generator interface {
	GenerateContent(ctx context.Context, version, model, apiKey, prompt string, cfg gemini.GenerationConfig) (string, error)
}

// ModelSource supplies the ordered model list for a credential.
// Implemented by discovery.Discoverer.
type ModelSource interface {
	ListModels(ctx context.Context, cred credentials.Credential) []string
}

type Config struct {
	// Versions is the ordered API version list, newest first.
	Versions        []string
	AttemptTimeout  time.Duration
	Temperature     float64
	MaxOutputTokens int
}

// Result is a successful cascade run.
type Result struct {
	Text    string
	Attempt Attempt
	// Outcomes holds every attempt made, the successful one last.
	Outcomes []Outcome
}

type callOptions struct {
	temperature *float64
}

// Option adjusts a single Invoke call.
type Option func(*callOptions)

// WithTemperature overrides the configured sampling temperature for one call.
func WithTemperature(t float64) Option {
	return func(o *callOptions) { o.temperature = &t }
}

type Cascade struct {
	gen    Generator
	models ModelSource
	cfg    Config
	logger *slog.Logger
}

func New(gen Generator, models ModelSource, cfg Config) *Cascade {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 30 * time.Second
	}
	return &Cascade{
		gen:    gen,
		models: models,
		cfg:    cfg,
		logger: slog.Default().With("component", "cascade"),
	}
}

// Invoke runs prompt through the full attempt matrix.
func (c *Cascade) Invoke(ctx context.Context, cred credentials.Credential, prompt string, opts ...Option) (Result, error) {
	return c.run(ctx, cred, prompt, 0, opts)
}

// InvokeLimited runs prompt through at most the first n matrix entries.
func (c *Cascade) InvokeLimited(ctx context.Context, cred credentials.Credential, prompt string, n int, opts ...Option) (Result, error) {
	if n <= 0 {
		return Result{}, &ExhaustedError{Last: errors.New("no attempts allowed")}
	}
	return c.run(ctx, cred, prompt, n, opts)
}

func (c *Cascade) run(ctx context.Context, cred credentials.Credential, prompt string, limit int, opts []Option) (Result, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	genCfg := gemini.GenerationConfig{MaxOutputTokens: c.cfg.MaxOutputTokens}
	temp := c.cfg.Temperature
	if o.temperature != nil {
		temp = *o.temperature
	}
	genCfg.Temperature = &temp

	matrix := BuildMatrix(c.cfg.Versions, c.models.ListModels(ctx, cred))
	if limit > 0 && len(matrix) > limit {
		matrix = matrix[:limit]
	}
	if len(matrix) == 0 {
		return Result{}, &ExhaustedError{Last: errors.New("empty attempt matrix")}
	}

	var outcomes []Outcome
	var lastErr error
	for _, a := range matrix {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		text, out := c.attempt(ctx, cred, a, prompt, genCfg)
		outcomes = append(outcomes, out)
		if out.Status == StatusOK {
			return Result{Text: text, Attempt: a, Outcomes: outcomes}, nil
		}

		lastErr = out.Err
		c.logger.Warn("model attempt failed",
			"version", a.Version, "model", a.Model,
			"status", out.Status, "code", out.Code, "error", out.Err)
		if out.Status == StatusCancelled {
			break
		}
	}

	return Result{}, &ExhaustedError{Attempts: outcomes, Last: lastErr}
}

func (c *Cascade) attempt(ctx context.Context, cred credentials.Credential, a Attempt, prompt string, cfg gemini.GenerationConfig) (string, Outcome) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	start := time.Now()
	text, err := c.gen.GenerateContent(attemptCtx, a.Version, a.Model, cred.Key, prompt, cfg)
	if err == nil && strings.TrimSpace(text) == "" {
		err = gemini.ErrEmptyResponse
	}
	status, code := classify(ctx, err)
	if status == StatusCancelled {
		err = ctx.Err()
	}
	return text, Outcome{Attempt: a, Status: status, Code: code, Err: err, Duration: time.Since(start)}
}
