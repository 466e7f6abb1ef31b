package metrics_test

import (
	"testing"

	"github.com/torosent/rpcbench/internal/metrics"
	"github.com/torosent/rpcbench/internal/plan"
)

func f(v float64) *float64 { return &v }

func TestCompareArchive(t *testing.T) {
	results := []metrics.AggregatedResult{
		{ProviderID: "p1", TestID: 4, BaseName: "eth_getBalance", Label: plan.LabelLatest, AvgMs: f(20)},
		{ProviderID: "p1", TestID: 5, BaseName: "eth_getBalance", Label: plan.LabelArchival, AvgMs: f(50)},
		{ProviderID: "p1", TestID: 2, BaseName: "eth_chainId", Label: plan.LabelLatest, AvgMs: f(5)},
		{ProviderID: "p2", TestID: 4, BaseName: "eth_getBalance", Label: plan.LabelLatest, AvgMs: f(20)},
		{ProviderID: "p2", TestID: 5, BaseName: "eth_getBalance", Label: plan.LabelArchival},
	}
	got := metrics.CompareArchive(results)
	if len(got) != 2 {
		t.Fatalf("expected 2 comparisons, got %d", len(got))
	}
	approx(t, "penalty_ms", got[0].PenaltyMs, 30)
	approx(t, "penalty_ratio", got[0].PenaltyRatio, 2.5)
	if got[0].LatestTestID != 4 || got[0].ArchivalTestID != 5 {
		t.Fatalf("paired tests = %d/%d", got[0].LatestTestID, got[0].ArchivalTestID)
	}
	if got[1].ProviderID != "p2" || got[1].PenaltyMs != nil || got[1].PenaltyRatio != nil {
		t.Fatalf("comparison without archival average must have no penalty: %+v", got[1])
	}
}

func TestCompareArchiveZeroLatestSkipsRatio(t *testing.T) {
	got := metrics.CompareArchive([]metrics.AggregatedResult{
		{ProviderID: "p", TestID: 1, BaseName: "x", Label: plan.LabelLatest, AvgMs: f(0)},
		{ProviderID: "p", TestID: 2, BaseName: "x", Label: plan.LabelArchival, AvgMs: f(3)},
	})
	if len(got) != 1 || got[0].PenaltyRatio != nil {
		t.Fatalf("unexpected %+v", got)
	}
	approx(t, "penalty_ms", got[0].PenaltyMs, 3)
}

func TestSequentialCounterpart(t *testing.T) {
	tests := []plan.TestDefinition{
		{ID: 9, Method: "eth_getLogs", Category: plan.CategoryComplex, Label: plan.LabelArchival},
		{ID: 8, Method: "eth_getLogs", Category: plan.CategoryComplex, Label: plan.LabelLatest},
		{ID: 10, Method: "eth_getLogs", Category: plan.CategoryComplex, Label: plan.LabelLatest},
		{ID: 7, Method: "eth_getBlockByNumber", Category: plan.CategoryMedium, Label: plan.LabelArchival},
	}
	cases := []struct {
		name string
		load plan.TestDefinition
		want int
		ok   bool
	}{
		{"explicit peer", plan.TestDefinition{Method: "eth_getLogs", Category: plan.CategoryLoad, Peer: 10}, 10, true},
		{"first latest with method", plan.TestDefinition{Method: "eth_getLogs", Category: plan.CategoryLoad}, 8, true},
		{"archival fallback", plan.TestDefinition{Method: "eth_getBlockByNumber", Category: plan.CategoryLoad}, 7, true},
		{"no match", plan.TestDefinition{Method: "eth_call", Category: plan.CategoryLoad}, 0, false},
		{"stale peer falls back", plan.TestDefinition{Method: "eth_getLogs", Category: plan.CategoryLoad, Peer: 99}, 8, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := metrics.SequentialCounterpart(c.load, tests)
			if ok != c.ok || got.ID != c.want {
				t.Fatalf("got %d/%v, want %d/%v", got.ID, ok, c.want, c.ok)
			}
		})
	}
}

func TestComputeLoadDegradation(t *testing.T) {
	tests := []plan.TestDefinition{
		{ID: 1, Method: "eth_blockNumber", Category: plan.CategorySimple, Label: plan.LabelLatest},
		{ID: 12, Method: "eth_blockNumber", Category: plan.CategoryLoad, Label: plan.LabelLatest, Peer: 1},
		{ID: 13, Method: "eth_getLogs", Category: plan.CategoryLoad, Label: plan.LabelLatest},
	}
	results := []metrics.AggregatedResult{{ProviderID: "p1", TestID: 1, AvgMs: f(10)}}
	bursts := []metrics.LoadBurstResult{
		{ProviderID: "p1", TestID: 12, Method: "eth_blockNumber", BurstStats: metrics.BurstStats{AvgMs: f(35)}},
		{ProviderID: "p1", TestID: 13, Method: "eth_getLogs", BurstStats: metrics.BurstStats{AvgMs: f(100)}},
		{ProviderID: "p2", TestID: 12, Method: "eth_blockNumber", BurstStats: metrics.BurstStats{AvgMs: f(35)}},
	}
	got := metrics.ComputeLoadDegradation(tests, results, bursts)
	if len(got) != 1 {
		t.Fatalf("expected 1 degradation, got %+v", got)
	}
	if got[0].SequentialTestID != 1 || got[0].LoadTestID != 12 {
		t.Fatalf("paired %d/%d", got[0].LoadTestID, got[0].SequentialTestID)
	}
	approx(t, "degradation_factor", got[0].DegradationFactor, 3.5)
}
