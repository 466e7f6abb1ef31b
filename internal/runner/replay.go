package runner

import (
	"github.com/torosent/rpcbench/internal/metrics"
	"github.com/torosent/rpcbench/internal/plan"
)

// Analysis holds every statistic derived from a run's logs.
type Analysis struct {
	Results     []metrics.AggregatedResult  `json:"results" yaml:"results"`
	Archive     []metrics.ArchiveComparison `json:"archive_comparisons,omitempty" yaml:"archive_comparisons,omitempty"`
	Degradation []metrics.LoadDegradation   `json:"load_degradation,omitempty" yaml:"load_degradation,omitempty"`
}

// Replay rebuilds the analysis of a run from its plan and logs. The result is
// identical to the one computed at the end of the run.
func Replay(p plan.ExecutionPlan, samples []metrics.Sample, bursts []metrics.LoadBurstResult) Analysis {
	results := metrics.AggregateAll(p, samples)
	return Analysis{
		Results:     results,
		Archive:     metrics.CompareArchive(results),
		Degradation: metrics.ComputeLoadDegradation(p.Tests, results, bursts),
	}
}
