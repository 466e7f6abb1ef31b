// Package store persists benchmark jobs, their samples and load bursts in SQLite.
package store

import (
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/rpcbench/internal/plan"
)

var (
	// ErrNotFound is returned when a job is not found.
	ErrNotFound = errors.New("job not found")
	// ErrLocked is returned when another process holds the data directory.
	ErrLocked = errors.New("data directory is locked by another process")
	// ErrJobActive is returned when deleting a job that has not finished.
	ErrJobActive = errors.New("job is still running")
)

// Job is the persisted header of one benchmark run.
type Job struct {
	ID              string          `json:"id"`
	Status          string          `json:"status"`
	Mode            string          `json:"mode,omitempty"`
	Rounds          int             `json:"rounds"`
	TestCount       int             `json:"test_count"`
	CreatedAt       time.Time       `json:"created_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty"`
	DurationSeconds *float64        `json:"duration_seconds,omitempty"`
	Error           string          `json:"error,omitempty"`
	Providers       []plan.Provider `json:"providers,omitempty"`
}

// Finished reports whether the job reached a terminal status.
func (j Job) Finished() bool {
	switch j.Status {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// Job statuses mirror the coordinator lifecycle, plus queued for jobs not yet started.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// NewID returns a new lexically sortable job id.
func NewID() string {
	return ulid.Make().String()
}
