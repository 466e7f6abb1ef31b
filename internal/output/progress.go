package output

import (
	"fmt"
	"io"
	"math"
	"sync/atomic"
	"time"

	"github.com/torosent/rpcbench/internal/metrics"
	"github.com/torosent/rpcbench/internal/progress"
)

// ProgressReporter consumes the event stream and prints a single refreshing
// status line.
type ProgressReporter struct {
	collector *metrics.Collector
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
	start     time.Time
	fraction  atomic.Uint64 // math.Float64bits of the last progress value
	current   atomic.Value  // string, "provider/test"
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(collector *metrics.Collector, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	p := &ProgressReporter{
		collector: collector,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
		start:     time.Now(),
	}
	p.current.Store("")
	return p
}

// Publish implements progress.Sink.
func (p *ProgressReporter) Publish(e progress.Event) {
	switch e.Type {
	case progress.IterationComplete:
		var latency time.Duration
		if e.LatencyMs != nil {
			latency = time.Duration(*e.LatencyMs * float64(time.Millisecond))
		}
		p.collector.RecordCall(e.ProviderID, latency, e.ErrorKind)
	case progress.TestStarted, progress.LoadTestStarted:
		p.current.Store(fmt.Sprintf("%s/%s", e.ProviderID, e.TestName))
	}
	if e.Progress > 0 {
		p.fraction.Store(math.Float64bits(e.Progress))
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return
	}
	go p.run()
}

// Stop halts progress updates and prints a final line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer, p.Line())
	}
}

// Line renders the current status line.
func (p *ProgressReporter) Line() string {
	stats := p.collector.Stats(time.Since(p.start))
	pct := math.Float64frombits(p.fraction.Load()) * 100
	line := fmt.Sprintf("\rCalls: %d | Failures: %d | Progress: %.1f%% | P99: %.1fms",
		stats.Total, stats.Failures, pct, stats.P99LatencyMs)
	if cur, _ := p.current.Load().(string); cur != "" {
		line += " | " + cur
	}
	return line
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, p.Line())
		case <-p.done:
			return
		}
	}
}
