package metrics_test

import (
	"testing"

	"github.com/torosent/rpcbench/internal/jsonrpc"
	"github.com/torosent/rpcbench/internal/metrics"
)

func TestComputeBurstStatsThroughput(t *testing.T) {
	calls := make([]metrics.CallResult, 50)
	for i := range calls {
		calls[i] = metrics.CallResult{Success: true, LatencyMs: float64(i + 1)}
	}
	calls[10] = metrics.CallResult{ErrorKind: jsonrpc.KindRateLimit}
	calls[20] = metrics.CallResult{ErrorKind: jsonrpc.KindBlockRangeLimit}

	stats := metrics.ComputeBurstStats(calls, 50, 1250)

	if stats.SuccessCount != 48 || stats.ErrorCount != 2 {
		t.Fatalf("success/error = %d/%d", stats.SuccessCount, stats.ErrorCount)
	}
	if stats.SuccessCount+stats.ErrorCount != 50 {
		t.Fatal("success + error must equal concurrency")
	}
	approx(t, "throughput", &stats.ThroughputRPS, 38.4)
	approx(t, "success_rate", &stats.SuccessRate, 0.96)
	if stats.ProviderErrorCount != 1 || stats.ParamErrorCount != 1 {
		t.Fatalf("fault split = %d/%d", stats.ProviderErrorCount, stats.ParamErrorCount)
	}
	if stats.ErrorBreakdown[jsonrpc.KindRateLimit] != 1 {
		t.Fatalf("breakdown = %v", stats.ErrorBreakdown)
	}
	approx(t, "min", stats.MinMs, 1)
	approx(t, "max", stats.MaxMs, 50)
}

func TestComputeBurstStatsPercentiles(t *testing.T) {
	calls := make([]metrics.CallResult, 100)
	for i := range calls {
		// reverse order to make sure the stats sort
		calls[i] = metrics.CallResult{Success: true, LatencyMs: float64(100 - i)}
	}
	stats := metrics.ComputeBurstStats(calls, 100, 1000)
	approx(t, "p50", stats.P50Ms, 50)
	approx(t, "p95", stats.P95Ms, 95)
	approx(t, "p99", stats.P99Ms, 99)
	approx(t, "avg", stats.AvgMs, 50.5)
}

func TestComputeBurstStatsAllFailed(t *testing.T) {
	calls := []metrics.CallResult{{ErrorKind: jsonrpc.KindTimeout}, {ErrorKind: jsonrpc.KindTimeout}}
	stats := metrics.ComputeBurstStats(calls, 0, 3000)
	if stats.AvgMs != nil || stats.P50Ms != nil {
		t.Fatal("latency stats must be absent without successes")
	}
	if stats.ThroughputRPS != 0 || stats.SuccessRate != 0 || stats.ErrorCount != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestComputeBurstStatsZeroDuration(t *testing.T) {
	stats := metrics.ComputeBurstStats([]metrics.CallResult{{Success: true, LatencyMs: 1}}, 1, 0)
	if stats.ThroughputRPS != 0 {
		t.Fatalf("throughput = %g, want 0 for a zero duration", stats.ThroughputRPS)
	}
}
