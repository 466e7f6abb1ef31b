package runner

import (
	"slices"
	"sync"

	"github.com/torosent/rpcbench/internal/metrics"
)

// Log is the append-only record of a run. It is safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	samples []metrics.Sample
	bursts  []metrics.LoadBurstResult
}

func (l *Log) AppendSample(s metrics.Sample) {
	l.mu.Lock()
	l.samples = append(l.samples, s)
	l.mu.Unlock()
}

func (l *Log) AppendBurst(b metrics.LoadBurstResult) {
	l.mu.Lock()
	l.bursts = append(l.bursts, b)
	l.mu.Unlock()
}

// Samples returns a snapshot of every recorded sample in append order.
func (l *Log) Samples() []metrics.Sample {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.samples)
}

// Bursts returns a snapshot of every recorded burst in append order.
func (l *Log) Bursts() []metrics.LoadBurstResult {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.bursts)
}

// SamplesFor returns the samples of one provider/test pair.
func (l *Log) SamplesFor(providerID string, testID int) []metrics.Sample {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []metrics.Sample
	for _, s := range l.samples {
		if s.ProviderID == providerID && s.TestID == testID {
			out = append(out, s)
		}
	}
	return out
}
