package metrics

import (
	"slices"

	"github.com/torosent/rpcbench/internal/jsonrpc"
	"github.com/torosent/rpcbench/internal/plan"
)

const maxErrorMessages = 5

// AggregatedResult summarizes one provider's samples for one test.
type AggregatedResult struct {
	ProviderID string        `json:"provider_id" yaml:"provider_id"`
	TestID     int           `json:"test_id" yaml:"test_id"`
	TestName   string        `json:"test_name" yaml:"test_name"`
	BaseName   string        `json:"base_name" yaml:"base_name"`
	Category   plan.Category `json:"category" yaml:"category"`
	Label      plan.Label    `json:"label" yaml:"label"`
	Method     string        `json:"method" yaml:"method"`

	Count        int     `json:"count" yaml:"count"`
	SuccessCount int     `json:"success_count" yaml:"success_count"`
	ErrorCount   int     `json:"error_count" yaml:"error_count"`
	SuccessRate  float64 `json:"success_rate" yaml:"success_rate"`

	AvgMs        *float64 `json:"avg_ms,omitempty" yaml:"avg_ms,omitempty"`
	ColdMs       *float64 `json:"cold_ms,omitempty" yaml:"cold_ms,omitempty"`
	WarmMs       *float64 `json:"warm_ms,omitempty" yaml:"warm_ms,omitempty"`
	CacheSpeedup *float64 `json:"cache_speedup,omitempty" yaml:"cache_speedup,omitempty"`

	MeanMs   *float64 `json:"mean_ms,omitempty" yaml:"mean_ms,omitempty"`
	MedianMs *float64 `json:"median_ms,omitempty" yaml:"median_ms,omitempty"`
	MinMs    *float64 `json:"min_ms,omitempty" yaml:"min_ms,omitempty"`
	MaxMs    *float64 `json:"max_ms,omitempty" yaml:"max_ms,omitempty"`
	StddevMs *float64 `json:"stddev_ms,omitempty" yaml:"stddev_ms,omitempty"`
	P90Ms    *float64 `json:"p90_ms,omitempty" yaml:"p90_ms,omitempty"`
	P95Ms    *float64 `json:"p95_ms,omitempty" yaml:"p95_ms,omitempty"`

	ProviderErrorCount int                       `json:"provider_error_count" yaml:"provider_error_count"`
	ParamErrorCount    int                       `json:"param_error_count" yaml:"param_error_count"`
	ErrorBreakdown     map[jsonrpc.ErrorKind]int `json:"error_breakdown,omitempty" yaml:"error_breakdown,omitempty"`
	ErrorMessages      []string                  `json:"error_messages,omitempty" yaml:"error_messages,omitempty"`
}

// Aggregate computes the result of one provider/test pair. Samples may arrive in
// any order; they are considered by round index.
func Aggregate(test plan.TestDefinition, providerID string, samples []Sample) AggregatedResult {
	res := AggregatedResult{
		ProviderID: providerID,
		TestID:     test.ID,
		TestName:   test.Name,
		BaseName:   test.BaseName(),
		Category:   test.Category,
		Label:      test.Label,
		Method:     test.Method,
		Count:      len(samples),
	}
	if len(samples) == 0 {
		return res
	}

	ordered := slices.Clone(samples)
	slices.SortStableFunc(ordered, func(a, b Sample) int { return a.Round - b.Round })

	var ok, warm []float64
	for i, s := range ordered {
		if s.Success {
			ok = append(ok, s.LatencyMs)
			if i >= 1 {
				warm = append(warm, s.LatencyMs)
			}
			continue
		}
		res.ErrorCount++
		kind := s.ErrorKind
		if kind == "" {
			kind = jsonrpc.KindRPCError
		}
		if res.ErrorBreakdown == nil {
			res.ErrorBreakdown = make(map[jsonrpc.ErrorKind]int)
		}
		res.ErrorBreakdown[kind]++
		if kind.ParamFault() {
			res.ParamErrorCount++
		} else {
			res.ProviderErrorCount++
		}
		if s.ErrorMessage != "" && len(res.ErrorMessages) < maxErrorMessages && !slices.Contains(res.ErrorMessages, s.ErrorMessage) {
			res.ErrorMessages = append(res.ErrorMessages, s.ErrorMessage)
		}
	}
	res.SuccessCount = len(ok)
	res.SuccessRate = float64(res.SuccessCount) / float64(res.Count)

	if len(ok) > 0 {
		res.AvgMs = ptr(mean(ok))
	}
	// The cold measurement is round one only; a failed first round is never backfilled.
	if ordered[0].Success {
		res.ColdMs = ptr(ordered[0].LatencyMs)
	}
	if len(warm) > 0 {
		res.WarmMs = ptr(mean(warm))
	}
	if res.ColdMs != nil && res.WarmMs != nil && *res.WarmMs > 0 {
		res.CacheSpeedup = ptr(*res.ColdMs / *res.WarmMs)
	}

	if len(ok) >= MinExtendedSamples {
		sorted := sortedCopy(ok)
		res.MeanMs = ptr(mean(ok))
		res.MedianMs = ptr(median(sorted))
		res.MinMs = ptr(sorted[0])
		res.MaxMs = ptr(sorted[len(sorted)-1])
		res.StddevMs = ptr(stddev(ok))
		if len(ok) >= MinPercentileSamples {
			res.P90Ms = ptr(percentile(sorted, 0.90))
			res.P95Ms = ptr(percentile(sorted, 0.95))
		}
	}
	return res
}

// AggregateAll aggregates every provider/test pair that has samples, in provider
// order then sequential test order.
func AggregateAll(p plan.ExecutionPlan, samples []Sample) []AggregatedResult {
	type key struct {
		provider string
		test     int
	}
	groups := make(map[key][]Sample)
	for _, s := range samples {
		k := key{s.ProviderID, s.TestID}
		groups[k] = append(groups[k], s)
	}

	tests := p.SequentialTests()
	var out []AggregatedResult
	for _, prov := range p.Providers {
		for _, t := range tests {
			group, ok := groups[key{prov.ID, t.ID}]
			if !ok {
				continue
			}
			out = append(out, Aggregate(t, prov.ID, group))
		}
	}
	return out
}
