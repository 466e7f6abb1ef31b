// Package metrics turns raw call samples into benchmark statistics.
//
// The package has two halves. The read side is a set of pure functions over the
// append-only sample and burst logs:
//
//	agg := metrics.Aggregate(test, providerID, samples)
//	all := metrics.AggregateAll(plan, samples)
//	cmp := metrics.CompareArchive(all)
//	deg := metrics.ComputeLoadDegradation(plan.Tests, all, bursts)
//
// Aggregates are deterministic: the same samples always yield the same result.
// Optional statistics are nil when there is not enough data for them. Extended
// statistics need at least [MinExtendedSamples] successful samples and p90/p95
// need [MinPercentileSamples].
//
// Percentiles use the nearest-rank method: the value at 1-indexed position
// ceil(p*n) of the sorted successful latencies.
//
// # Collector
//
// [Collector] is the live side. It is fed from the progress stream while a run
// is in flight and backs the progress line and the dashboard:
//
//	collector := metrics.NewCollector()
//	collector.RecordCall("alchemy", 12*time.Millisecond, "")
//	stats := collector.Stats(elapsed)
//
// It is safe for concurrent use.
package metrics
