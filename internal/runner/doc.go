// Package runner provides the benchmark execution engine for rpcbench.
//
// A [Coordinator] consumes a resolved [plan.ExecutionPlan] and drives every
// provider through the same operation sequence:
//   - sequential tests in category order, each for R rounds (cold, warm, sustained)
//   - load tests as single concurrent bursts, never overlapping, separated by a cooldown
//
// Progress is published to a [progress.Sink] and every sample and burst is
// appended to an in-memory [Log]. Aggregates are derived from the log when the
// run ends and can be rebuilt later with [Replay].
//
// # Basic Usage
//
//	coord := runner.New(runner.Options{
//		Plan:   execPlan,
//		Caller: jsonrpc.WithRetry(jsonrpc.NewHTTPCaller(), jsonrpc.DefaultBackoffPolicy()),
//		Sink:   reporter,
//	})
//	report, err := coord.Run(ctx)
//
// # Cancellation
//
// [Coordinator.Cancel] is cooperative. It is observed before each provider,
// test, round and burst and wakes any pending delay, but it never interrupts a
// call already in flight. Calls run under a context detached from the run's
// cancellation. Cancelling the context passed to Run has the same effect.
//
// # Failures
//
// Per-call failures are data: they are recorded as samples and the run goes on.
// Only an invalid plan fails a run, reported as [ErrInvalidPlan].
package runner
