package jsonrpc

import (
	"context"
	"testing"
	"time"
)

func TestBackoffPolicyDelay(t *testing.T) {
	p := BackoffPolicy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 300 * time.Millisecond}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for i, w := range want {
		if got := p.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %s, want %s", i+1, got, w)
		}
	}
	if got := p.Delay(0); got != 0 {
		t.Errorf("Delay(0) = %s, want 0", got)
	}
	if got := (BackoffPolicy{BaseDelay: 50 * time.Millisecond}).Delay(3); got != 50*time.Millisecond {
		t.Errorf("multiplier below 1 should hold the base delay, got %s", got)
	}
}

type scriptedCaller struct {
	outcomes []Outcome
	requests []Request
}

func (s *scriptedCaller) Call(_ context.Context, req Request) Outcome {
	s.requests = append(s.requests, req)
	out := s.outcomes[0]
	if len(s.outcomes) > 1 {
		s.outcomes = s.outcomes[1:]
	}
	return out
}

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestRetry(inner Caller, policy BackoffPolicy, clock *fakeClock) *retryCaller {
	r := WithRetry(inner, policy).(*retryCaller)
	r.now = clock.Now
	r.sleep = clock.Sleep
	return r
}

func TestWithRetryOnlyRetriesRateLimit(t *testing.T) {
	tests := []struct {
		name         string
		outcomes     []Outcome
		wantAttempts int
		wantKind     ErrorKind
	}{
		{"timeout not retried", []Outcome{{Kind: KindTimeout}}, 1, KindTimeout},
		{"connection not retried", []Outcome{{Kind: KindConnection}}, 1, KindConnection},
		{"unsupported not retried", []Outcome{{Kind: KindUnsupported}}, 1, KindUnsupported},
		{"rate limit exhausts attempts", []Outcome{{Kind: KindRateLimit}}, 3, KindRateLimit},
		{"rate limit then success", []Outcome{{Kind: KindRateLimit}, {Success: true}}, 2, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &scriptedCaller{outcomes: tt.outcomes}
			clock := &fakeClock{now: time.Unix(0, 0)}
			r := newTestRetry(inner, BackoffPolicy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2}, clock)

			out := r.Call(context.Background(), Request{Method: "eth_chainId"})
			if out.Attempts != tt.wantAttempts || len(inner.requests) != tt.wantAttempts {
				t.Fatalf("attempts = %d (calls %d), want %d", out.Attempts, len(inner.requests), tt.wantAttempts)
			}
			if out.Kind != tt.wantKind {
				t.Fatalf("kind = %q, want %q", out.Kind, tt.wantKind)
			}
			for i, req := range inner.requests {
				if req.Attempt != i+1 {
					t.Errorf("request %d carried attempt %d", i, req.Attempt)
				}
			}
		})
	}
}

func TestWithRetryLatencyIncludesBackoff(t *testing.T) {
	inner := &scriptedCaller{outcomes: []Outcome{{Kind: KindRateLimit}}}
	clock := &fakeClock{now: time.Unix(0, 0)}
	r := newTestRetry(inner, BackoffPolicy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2}, clock)

	out := r.Call(context.Background(), Request{})
	if len(clock.sleeps) != 2 || clock.sleeps[0] != time.Second || clock.sleeps[1] != 2*time.Second {
		t.Fatalf("sleeps = %v", clock.sleeps)
	}
	if out.Latency != 3*time.Second {
		t.Fatalf("latency = %s, want 3s", out.Latency)
	}
}

func TestWithRetryCustomPredicate(t *testing.T) {
	inner := &scriptedCaller{outcomes: []Outcome{{Kind: KindTimeout}, {Success: true}}}
	clock := &fakeClock{now: time.Unix(0, 0)}
	policy := BackoffPolicy{
		MaxAttempts: 2,
		ShouldRetry: func(o Outcome) bool { return o.Kind == KindTimeout },
	}
	out := newTestRetry(inner, policy, clock).Call(context.Background(), Request{})
	if !out.Success || out.Attempts != 2 {
		t.Fatalf("unexpected outcome %+v", out)
	}
}
