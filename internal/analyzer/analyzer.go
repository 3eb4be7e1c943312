// Package analyzer turns an author's free-form text into a StyleProfile by
// sending it through the invocation cascade with an analysis prompt.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/hpnssflw/voicekeeper/internal/cascade"
	"github.com/hpnssflw/voicekeeper/internal/credentials"
	"github.com/hpnssflw/voicekeeper/internal/jsonextract"
	"github.com/hpnssflw/voicekeeper/internal/profile"
)

// MinSampleLength is the minimum number of characters (runes) of author
// text worth analysing. Callers enforce it before calling Analyze.
const MinSampleLength = 100

// analysisTemperature keeps the analysis close to deterministic.
const analysisTemperature = 0.2

// ErrSampleTooShort is returned by CheckSample.
var ErrSampleTooShort = fmt.Errorf("text must be at least %d characters", MinSampleLength)

// CheckSample validates the analysis precondition.
func CheckSample(text string) error {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < MinSampleLength {
		return ErrSampleTooShort
	}
	return nil
}

// Invoker runs a prompt through the cascade. Implemented by cascade.Cascade.
type Invoker interface {
	Invoke(ctx context.Context, cred credentials.Credential, prompt string, opts ...cascade.Option) (cascade.Result, error)
}

type Analyzer struct {
	invoker Invoker
	logger  *slog.Logger
}

func New(invoker Invoker) *Analyzer {
	return &Analyzer{
		invoker: invoker,
		logger:  slog.Default().With("component", "analyzer"),
	}
}

// Analyze returns the style profile of text. A model response that cannot be
// read as a profile yields profile.Inconclusive(); the only error is the
// cascade failing outright.
func (a *Analyzer) Analyze(ctx context.Context, cred credentials.Credential, text string) (profile.StyleProfile, error) {
	res, err := a.invoker.Invoke(ctx, cred, BuildPrompt(text), cascade.WithTemperature(analysisTemperature))
	if err != nil {
		return profile.StyleProfile{}, fmt.Errorf("analyzing style: %w", err)
	}

	p, err := parseResponse(res.Text)
	if err != nil {
		a.logger.Warn("style analysis response unreadable, using inconclusive profile",
			"model", res.Attempt.Model, "version", res.Attempt.Version, "error", err)
		return profile.Inconclusive(), nil
	}

	a.logger.Debug("style analysed", "model", res.Attempt.Model, "version", res.Attempt.Version)
	return p, nil
}

var errNoObject = errors.New("no JSON object in response")

func parseResponse(raw string) (profile.StyleProfile, error) {
	obj, ok := jsonextract.FirstObject(raw)
	if !ok {
		return profile.StyleProfile{}, errNoObject
	}
	return profile.Parse([]byte(obj))
}
