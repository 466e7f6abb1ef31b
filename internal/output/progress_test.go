package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/torosent/rpcbench/internal/jsonrpc"
	"github.com/torosent/rpcbench/internal/metrics"
	"github.com/torosent/rpcbench/internal/progress"
)

func TestProgressReporterRecordsIterations(t *testing.T) {
	collector := metrics.NewCollector()
	reporter := NewProgressReporter(collector, time.Hour, nil)

	ok, failed := true, false
	reporter.Publish(progress.Event{Type: progress.TestStarted, ProviderID: "alpha", TestName: "Block number"})
	reporter.Publish(progress.Event{Type: progress.IterationComplete, ProviderID: "alpha", LatencyMs: f(40), Success: &ok, Progress: 0.25})
	reporter.Publish(progress.Event{Type: progress.IterationComplete, ProviderID: "alpha", LatencyMs: f(10), Success: &failed, ErrorKind: jsonrpc.KindTimeout, Progress: 0.5})
	reporter.Publish(progress.Event{Type: progress.RoundComplete, ProviderID: "alpha"})

	stats := collector.Stats(time.Second)
	if stats.Total != 2 || stats.Failures != 1 {
		t.Fatalf("collector saw total=%d failures=%d", stats.Total, stats.Failures)
	}

	line := reporter.Line()
	for _, want := range []string{"Calls: 2", "Failures: 1", "Progress: 50.0%", "alpha/Block number"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestProgressReporterStartStop(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewProgressReporter(nil, 5*time.Millisecond, &buf)
	reporter.Start()
	reporter.Start()
	time.Sleep(20 * time.Millisecond)
	reporter.Stop()
	reporter.Stop()

	if !strings.Contains(buf.String(), "Calls: 0") {
		t.Fatalf("expected progress output, got %q", buf.String())
	}
}
