package metrics

import (
	"time"

	"github.com/torosent/rpcbench/internal/jsonrpc"
	"github.com/torosent/rpcbench/internal/plan"
)

// Sample is one recorded sequential round. Samples are never modified once appended.
type Sample struct {
	ProviderID   string            `json:"provider_id" yaml:"provider_id"`
	TestID       int               `json:"test_id" yaml:"test_id"`
	Round        int               `json:"round" yaml:"round"`
	RoundType    plan.RoundType    `json:"round_type" yaml:"round_type"`
	LatencyMs    float64           `json:"latency_ms" yaml:"latency_ms"`
	Success      bool              `json:"success" yaml:"success"`
	ErrorKind    jsonrpc.ErrorKind `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	HTTPStatus   int               `json:"http_status,omitempty" yaml:"http_status,omitempty"`
	ResponseSize int               `json:"response_size_bytes,omitempty" yaml:"response_size_bytes,omitempty"`
	Attempts     int               `json:"attempts" yaml:"attempts"`
	Timestamp    time.Time         `json:"timestamp" yaml:"timestamp"`
}

// NewSample builds a sample from a resolved call outcome.
func NewSample(providerID string, testID, round, totalRounds int, out jsonrpc.Outcome, at time.Time) Sample {
	return Sample{
		ProviderID:   providerID,
		TestID:       testID,
		Round:        round,
		RoundType:    plan.RoundTypeFor(round, totalRounds),
		LatencyMs:    out.LatencyMs(),
		Success:      out.Success,
		ErrorKind:    out.Kind,
		ErrorMessage: out.Message,
		HTTPStatus:   out.HTTPStatus,
		ResponseSize: out.ResponseSize,
		Attempts:     out.Attempts,
		Timestamp:    at,
	}
}

// CallResult is the outcome of one call inside a load burst.
type CallResult struct {
	LatencyMs    float64           `json:"latency_ms" yaml:"latency_ms"`
	Success      bool              `json:"success" yaml:"success"`
	ErrorKind    jsonrpc.ErrorKind `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	HTTPStatus   int               `json:"http_status,omitempty" yaml:"http_status,omitempty"`
	Attempts     int               `json:"attempts" yaml:"attempts"`
}

// NewCallResult converts an outcome for storage in a burst.
func NewCallResult(out jsonrpc.Outcome) CallResult {
	return CallResult{
		LatencyMs:    out.LatencyMs(),
		Success:      out.Success,
		ErrorKind:    out.Kind,
		ErrorMessage: out.Message,
		HTTPStatus:   out.HTTPStatus,
		Attempts:     out.Attempts,
	}
}

// LoadBurstResult is the record of one concurrent burst against one provider.
type LoadBurstResult struct {
	ProviderID  string       `json:"provider_id" yaml:"provider_id"`
	TestID      int          `json:"test_id" yaml:"test_id"`
	TestName    string       `json:"test_name" yaml:"test_name"`
	Method      string       `json:"method" yaml:"method"`
	Concurrency int          `json:"concurrency" yaml:"concurrency"`
	Calls       []CallResult `json:"calls,omitempty" yaml:"calls,omitempty"`
	Timestamp   time.Time    `json:"timestamp" yaml:"timestamp"`
	BurstStats  `yaml:",inline"`
}
