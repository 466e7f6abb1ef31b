package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/rpcbench/internal/jsonrpc"
)

// Collector records live call metrics in a thread-safe manner.
type Collector struct {
	mu           sync.Mutex
	hist         *hdrhistogram.Histogram
	successes    int64
	failures     int64
	minLatency   time.Duration
	maxLatency   time.Duration
	sumLatency   time.Duration
	errorsByKind map[jsonrpc.ErrorKind]int64
	providers    map[string]*providerTally
	order        []string
}

type providerTally struct {
	calls    int64
	failures int64
	sum      time.Duration
}

// Stats represents aggregated live metrics.
type Stats struct {
	Total       int64         `json:"total"`
	Successes   int64         `json:"successes"`
	Failures    int64         `json:"failures"`
	MinLatency  time.Duration `json:"-"`
	MaxLatency  time.Duration `json:"-"`
	MeanLatency time.Duration `json:"-"`
	P50Latency  time.Duration `json:"-"`
	P90Latency  time.Duration `json:"-"`
	P99Latency  time.Duration `json:"-"`
	Duration    time.Duration `json:"-"`
	CallsPerSec float64       `json:"calls_per_sec"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64                   `json:"min_latency_ms"`
	MaxLatencyMs  float64                   `json:"max_latency_ms"`
	MeanLatencyMs float64                   `json:"mean_latency_ms"`
	P50LatencyMs  float64                   `json:"p50_latency_ms"`
	P90LatencyMs  float64                   `json:"p90_latency_ms"`
	P99LatencyMs  float64                   `json:"p99_latency_ms"`
	DurationMs    float64                   `json:"duration_ms"`
	Errors        map[jsonrpc.ErrorKind]int `json:"errors,omitempty"`
	Providers     []ProviderStats           `json:"providers,omitempty"`
}

// ProviderStats is the live per-provider tally.
type ProviderStats struct {
	ProviderID    string  `json:"provider_id"`
	Calls         int64   `json:"calls"`
	Failures      int64   `json:"failures"`
	MeanLatencyMs float64 `json:"mean_latency_ms"`
}

func NewCollector() *Collector {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, 60_000_000, 3)
	return &Collector{
		hist:         h,
		errorsByKind: make(map[jsonrpc.ErrorKind]int64),
		providers:    make(map[string]*providerTally),
	}
}

// RecordCall records one resolved call. An empty kind is a success.
func (c *Collector) RecordCall(providerID string, latency time.Duration, kind jsonrpc.ErrorKind) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if latency > 0 {
		us := latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}
	c.sumLatency += latency

	if c.minLatency == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}

	p, ok := c.providers[providerID]
	if !ok {
		p = &providerTally{}
		c.providers[providerID] = p
		c.order = append(c.order, providerID)
	}
	p.calls++
	p.sum += latency

	if kind == "" {
		c.successes++
	} else {
		c.failures++
		p.failures++
		c.errorsByKind[kind]++
	}
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.successes + c.failures
	stats := Stats{
		Total:      total,
		Successes:  c.successes,
		Failures:   c.failures,
		MinLatency: c.minLatency,
		MaxLatency: c.maxLatency,
	}

	if total > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / total)
	}

	if c.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	stats.MinLatencyMs = durationMs(stats.MinLatency)
	stats.MaxLatencyMs = durationMs(stats.MaxLatency)
	stats.MeanLatencyMs = durationMs(stats.MeanLatency)
	stats.P50LatencyMs = durationMs(stats.P50Latency)
	stats.P90LatencyMs = durationMs(stats.P90Latency)
	stats.P99LatencyMs = durationMs(stats.P99Latency)

	stats.Duration = elapsed
	stats.DurationMs = durationMs(elapsed)
	if elapsed > 0 && total > 0 {
		stats.CallsPerSec = float64(total) / elapsed.Seconds()
	}

	if len(c.errorsByKind) > 0 {
		stats.Errors = make(map[jsonrpc.ErrorKind]int, len(c.errorsByKind))
		for k, v := range c.errorsByKind {
			stats.Errors[k] = int(v)
		}
	}

	for _, id := range c.order {
		p := c.providers[id]
		ps := ProviderStats{ProviderID: id, Calls: p.calls, Failures: p.failures}
		if p.calls > 0 {
			ps.MeanLatencyMs = durationMs(p.sum / time.Duration(p.calls))
		}
		stats.Providers = append(stats.Providers, ps)
	}

	return stats
}

// Reset clears all recorded data.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hist.Reset()
	c.successes, c.failures = 0, 0
	c.minLatency, c.maxLatency, c.sumLatency = 0, 0, 0
	c.errorsByKind = make(map[jsonrpc.ErrorKind]int64)
	c.providers = make(map[string]*providerTally)
	c.order = nil
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
