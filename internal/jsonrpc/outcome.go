// Package jsonrpc issues single JSON-RPC calls over HTTP and classifies their outcome.
package jsonrpc

import (
	"context"
	"time"
)

// ErrorKind classifies a failed call.
type ErrorKind string

const (
	KindTimeout         ErrorKind = "timeout"
	KindRateLimit       ErrorKind = "rate_limit"
	KindConnection      ErrorKind = "connection"
	KindInvalidResponse ErrorKind = "invalid_response"
	KindUnsupported     ErrorKind = "unsupported"

	// Parameter faults: the request was understood but the inputs were rejected.
	KindInvalidParams     ErrorKind = "invalid_params"
	KindExecutionReverted ErrorKind = "execution_reverted"
	KindBlockRangeLimit   ErrorKind = "block_range_limit"

	KindRPCError ErrorKind = "rpc_error"
	KindInternal ErrorKind = "internal"
)

// ParamFault reports whether the failure is attributable to the request parameters
// rather than the provider.
func (k ErrorKind) ParamFault() bool {
	switch k {
	case KindInvalidParams, KindExecutionReverted, KindBlockRangeLimit:
		return true
	}
	return false
}

// ProviderFault reports whether the failure counts against the provider.
// Unclassified RPC errors count against the provider.
func (k ErrorKind) ProviderFault() bool {
	return k != "" && !k.ParamFault()
}

// Request describes one remote call.
type Request struct {
	Endpoint string
	Method   string
	Params   []any
	Timeout  time.Duration
	// Attempt is the 1-based attempt number, set by the retry wrapper.
	Attempt int
}

// Outcome is the resolved result of a call, including any retries.
type Outcome struct {
	Latency      time.Duration
	Success      bool
	Kind         ErrorKind
	Message      string
	HTTPStatus   int
	ResponseSize int
	Attempts     int
}

// LatencyMs returns the latency in fractional milliseconds.
func (o Outcome) LatencyMs() float64 {
	return float64(o.Latency) / float64(time.Millisecond)
}

// Caller performs a remote call. Implementations never return an error: every
// failure is folded into the Outcome.
type Caller interface {
	Call(ctx context.Context, req Request) Outcome
}

// CallerFunc adapts a function to the Caller interface.
type CallerFunc func(ctx context.Context, req Request) Outcome

func (f CallerFunc) Call(ctx context.Context, req Request) Outcome {
	return f(ctx, req)
}
