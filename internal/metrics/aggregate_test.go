package metrics_test

import (
	"math"
	"testing"

	"github.com/torosent/rpcbench/internal/jsonrpc"
	"github.com/torosent/rpcbench/internal/metrics"
	"github.com/torosent/rpcbench/internal/plan"
)

var balanceLatest = plan.TestDefinition{
	ID:       4,
	Name:     "eth_getBalance (latest)",
	Category: plan.CategorySimple,
	Label:    plan.LabelLatest,
	Method:   "eth_getBalance",
}

func samplesFrom(latencies []float64, failed map[int]jsonrpc.ErrorKind) []metrics.Sample {
	out := make([]metrics.Sample, len(latencies))
	for i, l := range latencies {
		s := metrics.Sample{
			ProviderID: "p1",
			TestID:     balanceLatest.ID,
			Round:      i + 1,
			RoundType:  plan.RoundTypeFor(i+1, len(latencies)),
			LatencyMs:  l,
			Success:    true,
			Attempts:   1,
		}
		if kind, ok := failed[i]; ok {
			s.Success = false
			s.ErrorKind = kind
		}
		out[i] = s
	}
	return out
}

func approx(t *testing.T, name string, got *float64, want float64) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s is nil, want %g", name, want)
	}
	if math.Abs(*got-want) > 1e-9 {
		t.Fatalf("%s = %g, want %g", name, *got, want)
	}
}

func TestAggregateColdWarmSpeedup(t *testing.T) {
	res := metrics.Aggregate(balanceLatest, "p1", samplesFrom([]float64{50, 10, 10}, nil))

	approx(t, "cold_ms", res.ColdMs, 50)
	approx(t, "warm_ms", res.WarmMs, 10)
	approx(t, "cache_speedup", res.CacheSpeedup, 5.0)
	approx(t, "avg_ms", res.AvgMs, 70.0/3)
	if res.Count != 3 || res.SuccessCount != 3 || res.SuccessRate != 1 {
		t.Fatalf("counts = %d/%d rate %g", res.SuccessCount, res.Count, res.SuccessRate)
	}
	if res.MeanMs != nil || res.StddevMs != nil || res.P90Ms != nil {
		t.Fatal("extended stats must be absent below five successes")
	}
	if res.BaseName != "eth_getBalance" {
		t.Fatalf("base name = %q", res.BaseName)
	}
}

func TestAggregateFailedColdIsNotBackfilled(t *testing.T) {
	res := metrics.Aggregate(balanceLatest, "p1", samplesFrom([]float64{900, 12, 14}, map[int]jsonrpc.ErrorKind{0: jsonrpc.KindTimeout}))

	if res.ColdMs != nil {
		t.Fatalf("cold_ms = %g, want absent", *res.ColdMs)
	}
	approx(t, "warm_ms", res.WarmMs, 13)
	if res.CacheSpeedup != nil {
		t.Fatal("cache_speedup must be absent without a cold value")
	}
	if res.ErrorBreakdown[jsonrpc.KindTimeout] != 1 || res.ProviderErrorCount != 1 {
		t.Fatalf("error tallies = %+v", res)
	}
}

func TestAggregateSingleRoundHasNoWarm(t *testing.T) {
	res := metrics.Aggregate(balanceLatest, "p1", samplesFrom([]float64{25}, nil))
	approx(t, "cold_ms", res.ColdMs, 25)
	if res.WarmMs != nil || res.CacheSpeedup != nil {
		t.Fatal("warm and speedup must be absent for a single round")
	}
}

func TestAggregateExtendedStatsThreshold(t *testing.T) {
	latencies := []float64{10, 20, 30, 40, 50}
	res := metrics.Aggregate(balanceLatest, "p1", samplesFrom(latencies, nil))

	approx(t, "mean_ms", res.MeanMs, 30)
	approx(t, "median_ms", res.MedianMs, 30)
	approx(t, "min_ms", res.MinMs, 10)
	approx(t, "max_ms", res.MaxMs, 50)
	// sample stddev of 10..50 step 10 is sqrt(250)
	approx(t, "stddev_ms", res.StddevMs, math.Sqrt(250))
	if res.P90Ms != nil || res.P95Ms != nil {
		t.Fatal("p90/p95 must be absent below 25 successes")
	}

	// Four successes out of five samples drops below the threshold.
	res = metrics.Aggregate(balanceLatest, "p1", samplesFrom(latencies, map[int]jsonrpc.ErrorKind{2: jsonrpc.KindRPCError}))
	if res.MeanMs != nil {
		t.Fatal("extended stats must count successful samples only")
	}
}

func TestAggregatePercentilesNearestRank(t *testing.T) {
	latencies := make([]float64, 25)
	for i := range latencies {
		latencies[i] = float64(i + 1)
	}
	res := metrics.Aggregate(balanceLatest, "p1", samplesFrom(latencies, nil))

	// ceil(0.90*25) = 23, ceil(0.95*25) = 24
	approx(t, "p90_ms", res.P90Ms, 23)
	approx(t, "p95_ms", res.P95Ms, 24)
	approx(t, "median_ms", res.MedianMs, 13)
}

func TestAggregateIsDeterministicAndOrderIndependent(t *testing.T) {
	samples := samplesFrom([]float64{40, 11, 9, 13}, map[int]jsonrpc.ErrorKind{2: jsonrpc.KindInvalidParams})
	reversed := make([]metrics.Sample, len(samples))
	for i := range samples {
		reversed[len(samples)-1-i] = samples[i]
	}
	a := metrics.Aggregate(balanceLatest, "p1", samples)
	b := metrics.Aggregate(balanceLatest, "p1", reversed)
	if *a.ColdMs != *b.ColdMs || *a.WarmMs != *b.WarmMs || a.ParamErrorCount != 1 || b.ParamErrorCount != 1 {
		t.Fatalf("aggregates differ: %+v vs %+v", a, b)
	}
}

func TestAggregateErrorMessagesCapped(t *testing.T) {
	var samples []metrics.Sample
	for i := 0; i < 8; i++ {
		samples = append(samples, metrics.Sample{
			ProviderID:   "p1",
			TestID:       4,
			Round:        i + 1,
			ErrorKind:    jsonrpc.KindRPCError,
			ErrorMessage: string(rune('a' + i%7)),
		})
	}
	res := metrics.Aggregate(balanceLatest, "p1", samples)
	if len(res.ErrorMessages) != 5 {
		t.Fatalf("error messages = %v", res.ErrorMessages)
	}
	if res.SuccessRate != 0 || res.AvgMs != nil {
		t.Fatalf("all-failed aggregate = %+v", res)
	}
}

func TestAggregateAllOrdering(t *testing.T) {
	p := plan.ExecutionPlan{
		Providers: []plan.Provider{{ID: "b"}, {ID: "a"}},
		Tests: []plan.TestDefinition{
			{ID: 8, Category: plan.CategoryComplex, Label: plan.LabelLatest, Method: "eth_getLogs"},
			{ID: 1, Category: plan.CategorySimple, Label: plan.LabelLatest, Method: "eth_blockNumber"},
		},
	}
	samples := []metrics.Sample{
		{ProviderID: "a", TestID: 8, Round: 1, Success: true, LatencyMs: 5},
		{ProviderID: "b", TestID: 1, Round: 1, Success: true, LatencyMs: 5},
		{ProviderID: "a", TestID: 1, Round: 1, Success: true, LatencyMs: 5},
	}
	got := metrics.AggregateAll(p, samples)
	want := []struct {
		provider string
		test     int
	}{{"b", 1}, {"a", 1}, {"a", 8}}
	if len(got) != len(want) {
		t.Fatalf("got %d results, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].ProviderID != w.provider || got[i].TestID != w.test {
			t.Errorf("result %d = %s/%d, want %s/%d", i, got[i].ProviderID, got[i].TestID, w.provider, w.test)
		}
	}
}
