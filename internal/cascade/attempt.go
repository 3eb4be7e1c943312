package cascade

import (
	"context"
	"errors"
	"time"

	"github.com/hpnssflw/voicekeeper/internal/gemini"
)

// Attempt is one (API version, model) pair of the attempt matrix.
type Attempt struct {
	Version string `json:"version"`
	Model   string `json:"model"`
}

func (a Attempt) String() string {
	return a.Version + "/" + a.Model
}

// Status classifies how an attempt ended.
type Status string

const (
	StatusOK        Status = "ok"
	StatusHTTPError Status = "http_error"
	StatusTransport Status = "transport_error"
	StatusTimeout   Status = "timeout"
	StatusEmpty     Status = "empty_response"
	StatusCancelled Status = "cancelled"
)

// Outcome records the result of a single attempt. Failures are data here,
// not control flow: the cascade collects them and moves on.
type Outcome struct {
	Attempt  Attempt
	Status   Status
	Code     int // HTTP status for StatusHTTPError
	Err      error
	Duration time.Duration
}

// BuildMatrix returns versions × models in version-major order: every model
// of the first version before any model of the second.
func BuildMatrix(versions, models []string) []Attempt {
	out := make([]Attempt, 0, len(versions)*len(models))
	for _, v := range versions {
		for _, m := range models {
			out = append(out, Attempt{Version: v, Model: m})
		}
	}
	return out
}

// classify maps an attempt error onto a Status. parent is the caller's
// context; a done parent means the whole cascade was cancelled.
func classify(parent context.Context, err error) (Status, int) {
	if err == nil {
		return StatusOK, 0
	}
	if parent.Err() != nil {
		return StatusCancelled, 0
	}
	var se *gemini.StatusError
	switch {
	case errors.As(err, &se):
		return StatusHTTPError, se.Code
	case errors.Is(err, gemini.ErrEmptyResponse):
		return StatusEmpty, 0
	case errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout, 0
	default:
		return StatusTransport, 0
	}
}
