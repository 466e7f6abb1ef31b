package metrics

import (
	"github.com/torosent/rpcbench/internal/jsonrpc"
)

// BurstStats summarizes the calls of one load burst. Latency fields are nil when
// no call succeeded.
type BurstStats struct {
	TotalTimeMs        float64                   `json:"total_time_ms" yaml:"total_time_ms"`
	MinMs              *float64                  `json:"min_ms,omitempty" yaml:"min_ms,omitempty"`
	MaxMs              *float64                  `json:"max_ms,omitempty" yaml:"max_ms,omitempty"`
	AvgMs              *float64                  `json:"avg_ms,omitempty" yaml:"avg_ms,omitempty"`
	P50Ms              *float64                  `json:"p50_ms,omitempty" yaml:"p50_ms,omitempty"`
	P95Ms              *float64                  `json:"p95_ms,omitempty" yaml:"p95_ms,omitempty"`
	P99Ms              *float64                  `json:"p99_ms,omitempty" yaml:"p99_ms,omitempty"`
	SuccessCount       int                       `json:"success_count" yaml:"success_count"`
	ErrorCount         int                       `json:"error_count" yaml:"error_count"`
	ProviderErrorCount int                       `json:"provider_error_count" yaml:"provider_error_count"`
	ParamErrorCount    int                       `json:"param_error_count" yaml:"param_error_count"`
	SuccessRate        float64                   `json:"success_rate" yaml:"success_rate"`
	ThroughputRPS      float64                   `json:"throughput_rps" yaml:"throughput_rps"`
	ErrorBreakdown     map[jsonrpc.ErrorKind]int `json:"error_breakdown,omitempty" yaml:"error_breakdown,omitempty"`
}

// ComputeBurstStats derives burst statistics from per-call results. concurrency
// is the number of dispatched calls and the success-rate denominator; zero falls
// back to len(calls). totalTimeMs spans first dispatch to last resolution.
func ComputeBurstStats(calls []CallResult, concurrency int, totalTimeMs float64) BurstStats {
	if concurrency <= 0 {
		concurrency = len(calls)
	}
	stats := BurstStats{TotalTimeMs: totalTimeMs}

	latencies := make([]float64, 0, len(calls))
	for _, c := range calls {
		if c.Success {
			stats.SuccessCount++
			latencies = append(latencies, c.LatencyMs)
			continue
		}
		stats.ErrorCount++
		if stats.ErrorBreakdown == nil {
			stats.ErrorBreakdown = make(map[jsonrpc.ErrorKind]int)
		}
		kind := c.ErrorKind
		if kind == "" {
			kind = jsonrpc.KindRPCError
		}
		stats.ErrorBreakdown[kind]++
		if kind.ParamFault() {
			stats.ParamErrorCount++
		} else {
			stats.ProviderErrorCount++
		}
	}

	if concurrency > 0 {
		stats.SuccessRate = float64(stats.SuccessCount) / float64(concurrency)
	}
	if totalTimeMs > 0 {
		stats.ThroughputRPS = float64(stats.SuccessCount) / (totalTimeMs / 1000)
	}

	if len(latencies) > 0 {
		sorted := sortedCopy(latencies)
		stats.MinMs = ptr(sorted[0])
		stats.MaxMs = ptr(sorted[len(sorted)-1])
		stats.AvgMs = ptr(mean(latencies))
		stats.P50Ms = ptr(percentile(sorted, 0.50))
		stats.P95Ms = ptr(percentile(sorted, 0.95))
		stats.P99Ms = ptr(percentile(sorted, 0.99))
	}
	return stats
}
