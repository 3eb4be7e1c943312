// Package worker runs queued style analyses in the background.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hpnssflw/voicekeeper/internal/cascade"
	"github.com/hpnssflw/voicekeeper/internal/credentials"
	"github.com/hpnssflw/voicekeeper/internal/profile"
	"github.com/hpnssflw/voicekeeper/internal/storage"
)

// JobTypeStyleAnalyze is the job type for background style analysis.
const JobTypeStyleAnalyze = "style_analyze"

// JobStore abstracts the job queue operations.
type JobStore interface {
	EnqueueJob(job storage.Job) error
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	AbandonJob(id string, errMsg string) error
}

// StyleAnalyzer turns author text into a profile. Implemented by analyzer.Analyzer.
type StyleAnalyzer interface {
	Analyze(ctx context.Context, cred credentials.Credential, text string) (profile.StyleProfile, error)
}

// ProfileReplacer stores an analysed profile. Implemented by profile.Manager.
type ProfileReplacer interface {
	Replace(userID string, p profile.StyleProfile) error
}

type analyzePayload struct {
	UserID   string `json:"user_id"`
	Text     string `json:"text"`
	Provider string `json:"provider,omitempty"`
}

// Enqueue schedules a style analysis of text for userID and returns the job ID.
// Callers validate the sample length first.
func Enqueue(store JobStore, userID, text string) (string, error) {
	payload, err := json.Marshal(analyzePayload{UserID: userID, Text: text, Provider: credentials.ProviderGemini})
	if err != nil {
		return "", fmt.Errorf("marshaling payload: %w", err)
	}
	id := uuid.NewString()
	if err := store.EnqueueJob(storage.Job{ID: id, Type: JobTypeStyleAnalyze, PayloadJSON: string(payload)}); err != nil {
		return "", fmt.Errorf("enqueueing analysis: %w", err)
	}
	return id, nil
}

// Worker processes style_analyze jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	creds    credentials.Provider
	analyzer StyleAnalyzer
	profiles ProfileReplacer
	poll     time.Duration
	logger   *slog.Logger
}

// New creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func New(store JobStore, creds credentials.Provider, analyzer StyleAnalyzer, profiles ProfileReplacer, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		creds:    creds,
		analyzer: analyzer,
		profiles: profiles,
		poll:     pollInterval,
		logger:   slog.Default().With("component", "worker"),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single style_analyze job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeStyleAnalyze})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		msg, retry := jobFailure(err)
		fail := w.store.AbandonJob
		if retry {
			fail = w.store.FailJob
		}
		if failErr := fail(job.ID, msg); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

// jobFailure returns the message stored on a failed job and whether the
// queue may retry it. Job state is readable over the API, so backend detail
// stays in the log. The cascade already walked every model, so an exhausted
// analysis is final.
func jobFailure(err error) (msg string, retry bool) {
	switch {
	case errors.Is(err, cascade.ErrExhausted):
		return "generation unavailable, try again", false
	case errors.Is(err, credentials.ErrNotFound):
		return "no Gemini API key configured; add one with PUT /users/{userID}/keys/gemini", true
	case errors.Is(err, errBadPayload):
		return "invalid job payload", false
	default:
		return "style analysis failed", true
	}
}

var errBadPayload = errors.New("invalid job payload")

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload analyzePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}
	if payload.UserID == "" {
		return fmt.Errorf("%w: no user_id", errBadPayload)
	}
	provider := payload.Provider
	if provider == "" {
		provider = credentials.ProviderGemini
	}

	cred, err := w.creds.GetKey(ctx, payload.UserID, provider)
	if err != nil {
		return fmt.Errorf("resolving %s key: %w", provider, err)
	}

	p, err := w.analyzer.Analyze(ctx, cred, payload.Text)
	if err != nil {
		return err
	}

	if err := w.profiles.Replace(payload.UserID, p); err != nil {
		return fmt.Errorf("storing profile: %w", err)
	}
	w.logger.Info("style profile updated", "job_id", job.ID, "user_id", payload.UserID, "inconclusive", p.IsInconclusive())
	return nil
}
