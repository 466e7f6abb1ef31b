package runner

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/torosent/rpcbench/internal/jsonrpc"
	"github.com/torosent/rpcbench/internal/metrics"
	"github.com/torosent/rpcbench/internal/plan"
)

// BurstRunner fires one batch of simultaneous calls.
type BurstRunner struct {
	Caller jsonrpc.Caller
	Now    func() time.Time
}

// Run dispatches concurrency calls of the test against the provider at once and
// waits for all of them. Every goroutine is parked on a shared start barrier
// before the clock starts, so no call is staggered behind goroutine creation.
func (b BurstRunner) Run(ctx context.Context, provider plan.Provider, test plan.TestDefinition, concurrency int, timeout time.Duration) metrics.LoadBurstResult {
	now := b.Now
	if now == nil {
		now = time.Now
	}
	if concurrency < 1 {
		concurrency = 1
	}

	req := jsonrpc.Request{
		Endpoint: provider.URL,
		Method:   test.Method,
		Params:   test.Params,
		Timeout:  timeout,
	}
	calls := make([]metrics.CallResult, concurrency)

	var ready sync.WaitGroup
	ready.Add(concurrency)
	start := make(chan struct{})

	var g errgroup.Group
	for i := range concurrency {
		g.Go(func() error {
			ready.Done()
			<-start
			calls[i] = metrics.NewCallResult(b.Caller.Call(ctx, req))
			return nil
		})
	}

	ready.Wait()
	began := now()
	close(start)
	_ = g.Wait()
	total := now().Sub(began)

	totalMs := float64(total) / float64(time.Millisecond)
	return metrics.LoadBurstResult{
		ProviderID:  provider.ID,
		TestID:      test.ID,
		TestName:    test.Name,
		Method:      test.Method,
		Concurrency: concurrency,
		Calls:       calls,
		Timestamp:   began,
		BurstStats:  metrics.ComputeBurstStats(calls, concurrency, totalMs),
	}
}
