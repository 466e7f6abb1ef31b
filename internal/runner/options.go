package runner

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/torosent/rpcbench/internal/jsonrpc"
	"github.com/torosent/rpcbench/internal/metrics"
	"github.com/torosent/rpcbench/internal/plan"
	"github.com/torosent/rpcbench/internal/progress"
)

// Recorder persists samples and bursts as they are produced.
type Recorder interface {
	RecordSample(ctx context.Context, jobID string, s metrics.Sample) error
	RecordBurst(ctx context.Context, jobID string, b metrics.LoadBurstResult) error
}

// Options configure the Coordinator.
type Options struct {
	Plan     plan.ExecutionPlan
	Caller   jsonrpc.Caller        // executes one call, retries included (required)
	Sink     progress.Sink         // optional progress consumer
	Recorder Recorder              // optional persistence
	JobID    string                // stamped on every event
	Logger   *logrus.Entry         // optional
	Sleep    func(d time.Duration) // optional delay injection for tests
	Now      func() time.Time      // optional clock injection for tests
}

func (o *Options) normalize() {
	if o.Sink == nil {
		o.Sink = progress.Discard
	}
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// RetryingCaller wraps base with the backoff policy carried by the plan.
func RetryingCaller(base jsonrpc.Caller, r plan.RetryPolicy) jsonrpc.Caller {
	return jsonrpc.WithRetry(base, jsonrpc.BackoffPolicy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.BaseDelay,
		Multiplier:  r.Multiplier,
		MaxDelay:    r.MaxDelay,
	})
}
