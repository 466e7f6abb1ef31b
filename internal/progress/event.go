// Package progress defines the benchmark event stream and the sinks that consume it.
package progress

import (
	"time"

	"github.com/torosent/rpcbench/internal/jsonrpc"
	"github.com/torosent/rpcbench/internal/metrics"
	"github.com/torosent/rpcbench/internal/plan"
)

// EventType names a lifecycle event.
type EventType string

const (
	JobStarted        EventType = "job_started"
	ProviderStarted   EventType = "provider_started"
	TestStarted       EventType = "test_started"
	RoundStarted      EventType = "round_started"
	IterationComplete EventType = "iteration_complete"
	RoundComplete     EventType = "round_complete"
	TestComplete      EventType = "test_complete"
	LoadTestStarted   EventType = "load_test_started"
	LoadTestComplete  EventType = "load_test_complete"
	ProviderComplete  EventType = "provider_complete"
	JobComplete       EventType = "job_complete"
	Error             EventType = "error"
)

// Event is one entry of the progress stream. Only the fields relevant to Type
// are set.
type Event struct {
	Type  EventType `json:"type"`
	JobID string    `json:"job_id,omitempty"`
	Time  time.Time `json:"time"`

	ProviderID   string `json:"provider_id,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
	TestID       int    `json:"test_id,omitempty"`
	TestName     string `json:"test_name,omitempty"`

	// job_started
	TotalTests  int `json:"total_tests,omitempty"`
	TotalRounds int `json:"total_rounds,omitempty"`
	Providers   int `json:"providers,omitempty"`

	Round     int            `json:"round,omitempty"`
	RoundType plan.RoundType `json:"round_type,omitempty"`

	// iteration_complete
	LatencyMs *float64          `json:"latency_ms,omitempty"`
	Success   *bool             `json:"success,omitempty"`
	ErrorKind jsonrpc.ErrorKind `json:"error_kind,omitempty"`
	Attempts  int               `json:"attempts,omitempty"`

	Summary *metrics.AggregatedResult `json:"summary,omitempty"`

	// load tests
	Concurrency   int      `json:"concurrency,omitempty"`
	ThroughputRPS *float64 `json:"throughput_rps,omitempty"`
	AvgMs         *float64 `json:"avg_ms,omitempty"`
	SuccessCount  int      `json:"success_count,omitempty"`
	ErrorCount    int      `json:"error_count,omitempty"`

	Progress       float64 `json:"progress,omitempty"`
	CompletedUnits int     `json:"completed_units,omitempty"`
	TotalUnits     int     `json:"total_units,omitempty"`

	// job_complete
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Status          string  `json:"status,omitempty"`

	// error
	Message string `json:"message,omitempty"`
	Context string `json:"context,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type == JobComplete
}
