package jsonrpc

import (
	"context"
	"math"
	"time"
)

// BackoffPolicy configures retries of rate-limited calls.
type BackoffPolicy struct {
	MaxAttempts int           // total attempts including the initial try
	BaseDelay   time.Duration // delay after the first failed attempt
	Multiplier  float64       // growth factor per attempt
	MaxDelay    time.Duration // cap on a single delay; zero means uncapped
	// ShouldRetry decides whether an outcome is retried. Nil retries rate limits only.
	ShouldRetry func(Outcome) bool
}

// DefaultBackoffPolicy allows three attempts with 250ms, 500ms delays.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{
		MaxAttempts: 3,
		BaseDelay:   250 * time.Millisecond,
		Multiplier:  2,
		MaxDelay:    5 * time.Second,
	}
}

// Delay returns the sleep after the given 1-based failed attempt.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func (p BackoffPolicy) retryable(o Outcome) bool {
	if p.ShouldRetry != nil {
		return p.ShouldRetry(o)
	}
	return !o.Success && o.Kind == KindRateLimit
}

type retryCaller struct {
	inner  Caller
	policy BackoffPolicy
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

// WithRetry wraps a Caller with bounded backoff. The returned latency spans the
// first dispatch to the final resolution, backoff sleeps included.
func WithRetry(inner Caller, policy BackoffPolicy) Caller {
	return &retryCaller{
		inner:  inner,
		policy: policy,
		sleep:  sleepContext,
		now:    time.Now,
	}
}

func (r *retryCaller) Call(ctx context.Context, req Request) Outcome {
	maxAttempts := r.policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	start := r.now()
	var out Outcome
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req.Attempt = attempt
		out = r.inner.Call(ctx, req)
		out.Attempts = attempt
		if out.Success || !r.policy.retryable(out) || attempt == maxAttempts {
			break
		}
		if err := r.sleep(ctx, r.policy.Delay(attempt)); err != nil {
			break
		}
	}
	out.Latency = r.now().Sub(start)
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
