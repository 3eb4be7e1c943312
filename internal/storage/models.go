package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Generation is one persisted content generation result.
type Generation struct {
	ID           string
	UserID       string
	CreatedAt    time.Time
	Topic        string
	ParamsJSON   string // request parameters as JSON
	Content      string
	Alternatives string // JSON array stored as text
	Confidence   float64
	Model        string
	APIVersion   string
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
