package metrics

import (
	"github.com/torosent/rpcbench/internal/plan"
)

// ArchiveComparison pairs the latest and archival variants of one call type.
type ArchiveComparison struct {
	ProviderID     string   `json:"provider_id" yaml:"provider_id"`
	BaseName       string   `json:"base_name" yaml:"base_name"`
	LatestTestID   int      `json:"latest_test_id" yaml:"latest_test_id"`
	ArchivalTestID int      `json:"archival_test_id" yaml:"archival_test_id"`
	LatestAvgMs    *float64 `json:"latest_avg_ms,omitempty" yaml:"latest_avg_ms,omitempty"`
	ArchivalAvgMs  *float64 `json:"archival_avg_ms,omitempty" yaml:"archival_avg_ms,omitempty"`
	PenaltyMs      *float64 `json:"penalty_ms,omitempty" yaml:"penalty_ms,omitempty"`
	PenaltyRatio   *float64 `json:"penalty_ratio,omitempty" yaml:"penalty_ratio,omitempty"`
}

// CompareArchive emits one comparison per provider and base name present under
// both labels. The first test of each label wins when a base name repeats.
func CompareArchive(results []AggregatedResult) []ArchiveComparison {
	type key struct {
		provider string
		base     string
	}
	type pair struct {
		latest, archival *AggregatedResult
	}
	pairs := make(map[key]*pair)
	var order []key

	for i := range results {
		r := &results[i]
		k := key{r.ProviderID, r.BaseName}
		p, ok := pairs[k]
		if !ok {
			p = &pair{}
			pairs[k] = p
			order = append(order, k)
		}
		switch r.Label {
		case plan.LabelLatest:
			if p.latest == nil {
				p.latest = r
			}
		case plan.LabelArchival:
			if p.archival == nil {
				p.archival = r
			}
		}
	}

	var out []ArchiveComparison
	for _, k := range order {
		p := pairs[k]
		if p.latest == nil || p.archival == nil {
			continue
		}
		c := ArchiveComparison{
			ProviderID:     k.provider,
			BaseName:       k.base,
			LatestTestID:   p.latest.TestID,
			ArchivalTestID: p.archival.TestID,
			LatestAvgMs:    p.latest.AvgMs,
			ArchivalAvgMs:  p.archival.AvgMs,
		}
		if c.LatestAvgMs != nil && c.ArchivalAvgMs != nil {
			c.PenaltyMs = ptr(*c.ArchivalAvgMs - *c.LatestAvgMs)
			if *c.LatestAvgMs > 0 {
				c.PenaltyRatio = ptr(*c.ArchivalAvgMs / *c.LatestAvgMs)
			}
		}
		out = append(out, c)
	}
	return out
}

// LoadDegradation compares a burst's average latency with its sequential counterpart.
type LoadDegradation struct {
	ProviderID        string   `json:"provider_id" yaml:"provider_id"`
	LoadTestID        int      `json:"load_test_id" yaml:"load_test_id"`
	SequentialTestID  int      `json:"sequential_test_id" yaml:"sequential_test_id"`
	Method            string   `json:"method" yaml:"method"`
	LoadAvgMs         *float64 `json:"load_avg_ms,omitempty" yaml:"load_avg_ms,omitempty"`
	SequentialAvgMs   *float64 `json:"sequential_avg_ms,omitempty" yaml:"sequential_avg_ms,omitempty"`
	DegradationFactor *float64 `json:"degradation_factor,omitempty" yaml:"degradation_factor,omitempty"`
}

// SequentialCounterpart picks the sequential test a load test is compared against:
// its explicit peer, else the first latest-label test with the same method, else
// the first sequential test with the same method.
func SequentialCounterpart(load plan.TestDefinition, tests []plan.TestDefinition) (plan.TestDefinition, bool) {
	if load.Peer != 0 {
		for _, t := range tests {
			if t.ID == load.Peer && !t.IsLoad() {
				return t, true
			}
		}
	}
	var fallback *plan.TestDefinition
	for i := range tests {
		t := tests[i]
		if t.IsLoad() || t.Method != load.Method {
			continue
		}
		if t.Label == plan.LabelLatest {
			return t, true
		}
		if fallback == nil {
			fallback = &tests[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return plan.TestDefinition{}, false
}

// ComputeLoadDegradation pairs every burst with the aggregate of its sequential
// counterpart for the same provider. Bursts without a counterpart aggregate are
// skipped; the factor is nil unless both averages exist.
func ComputeLoadDegradation(tests []plan.TestDefinition, results []AggregatedResult, bursts []LoadBurstResult) []LoadDegradation {
	type key struct {
		provider string
		test     int
	}
	byKey := make(map[key]AggregatedResult, len(results))
	for _, r := range results {
		byKey[key{r.ProviderID, r.TestID}] = r
	}
	defs := make(map[int]plan.TestDefinition, len(tests))
	for _, t := range tests {
		defs[t.ID] = t
	}

	var out []LoadDegradation
	for _, b := range bursts {
		load, ok := defs[b.TestID]
		if !ok {
			load = plan.TestDefinition{ID: b.TestID, Method: b.Method, Category: plan.CategoryLoad}
		}
		seq, ok := SequentialCounterpart(load, tests)
		if !ok {
			continue
		}
		agg, ok := byKey[key{b.ProviderID, seq.ID}]
		if !ok {
			continue
		}
		d := LoadDegradation{
			ProviderID:       b.ProviderID,
			LoadTestID:       b.TestID,
			SequentialTestID: seq.ID,
			Method:           b.Method,
			LoadAvgMs:        b.AvgMs,
			SequentialAvgMs:  agg.AvgMs,
		}
		if d.LoadAvgMs != nil && d.SequentialAvgMs != nil && *d.SequentialAvgMs > 0 {
			d.DegradationFactor = ptr(*d.LoadAvgMs / *d.SequentialAvgMs)
		}
		out = append(out, d)
	}
	return out
}
