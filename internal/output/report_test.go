package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/rpcbench/internal/jsonrpc"
	"github.com/torosent/rpcbench/internal/metrics"
	"github.com/torosent/rpcbench/internal/plan"
	"github.com/torosent/rpcbench/internal/runner"
)

func f(v float64) *float64 { return &v }

func sampleReport() runner.Report {
	return runner.Report{
		JobID:    "job-1",
		Status:   runner.StateCompleted,
		Duration: 3 * time.Second,
		Providers: []plan.Provider{
			{ID: "alpha", Name: "Alpha RPC", URL: "https://alpha.example.com"},
			{ID: "beta", URL: "https://beta.example.com"},
		},
		Samples: []metrics.Sample{
			{ProviderID: "alpha", TestID: 1, Round: 1, LatencyMs: 50, Success: true},
			{ProviderID: "alpha", TestID: 1, Round: 2, LatencyMs: 10, Success: true},
			{ProviderID: "beta", TestID: 1, Round: 1, ErrorKind: jsonrpc.KindTimeout},
		},
		Bursts: []metrics.LoadBurstResult{{
			ProviderID: "alpha", TestID: 12, TestName: "Burst blockNumber", Method: "eth_blockNumber", Concurrency: 50,
			BurstStats: metrics.BurstStats{
				TotalTimeMs: 1250, ThroughputRPS: 38.4, SuccessCount: 48, ErrorCount: 2,
				AvgMs:          f(35),
				ErrorBreakdown: map[jsonrpc.ErrorKind]int{jsonrpc.KindRateLimit: 2},
			},
		}},
		Analysis: runner.Analysis{
			Results: []metrics.AggregatedResult{
				{ProviderID: "alpha", TestID: 1, TestName: "Block number", Method: "eth_blockNumber", Count: 2, SuccessCount: 2, SuccessRate: 1,
					AvgMs: f(30), ColdMs: f(50), WarmMs: f(10), CacheSpeedup: f(5)},
				{ProviderID: "beta", TestID: 1, TestName: "Block number", Method: "eth_blockNumber", Count: 1, ErrorCount: 1,
					ErrorBreakdown: map[jsonrpc.ErrorKind]int{jsonrpc.KindTimeout: 1}},
			},
			Archive: []metrics.ArchiveComparison{
				{ProviderID: "alpha", BaseName: "getBalance", LatestAvgMs: f(20), ArchivalAvgMs: f(60), PenaltyMs: f(40), PenaltyRatio: f(3)},
			},
			Degradation: []metrics.LoadDegradation{
				{ProviderID: "alpha", LoadTestID: 12, SequentialTestID: 1, Method: "eth_blockNumber", LoadAvgMs: f(35), SequentialAvgMs: f(10), DegradationFactor: f(3.5)},
			},
		},
	}
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, sampleReport())
	out := buf.String()

	for _, want := range []string{
		"--- Benchmark Results ---",
		"Status:            completed",
		"Alpha RPC (alpha):",
		"Block number: avg=30.0ms, cold=50.0ms, warm=10.0ms, speedup=5x, success=100% (2/2)",
		"beta:",
		"avg=n/a",
		"Timeout: 1",
		"Archive Penalty:",
		"getBalance: latest=20.0ms, archival=60.0ms, penalty=40.0ms (3x)",
		"Burst blockNumber x50: total=1250.0ms, rps=38.40",
		"Rate limited: 2",
		"factor=3.5x",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n%s", want, out)
		}
	}
}

func TestPrintReportFailedRun(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, runner.Report{Status: runner.StateFailed, Error: "no providers"})
	out := buf.String()
	if !strings.Contains(out, "Error:             no providers") {
		t.Fatalf("expected error line:\n%s", out)
	}
	if strings.Contains(out, "Load Bursts") {
		t.Fatalf("empty sections should be omitted:\n%s", out)
	}
}

func TestPrintJSONReport(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, sampleReport()); err != nil {
		t.Fatalf("PrintJSONReport failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded["duration_seconds"].(float64) != 3 {
		t.Errorf("duration_seconds = %v", decoded["duration_seconds"])
	}
	for _, key := range []string{"results", "archive_comparisons", "load_degradation", "samples", "bursts"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("json report missing %q", key)
		}
	}
}

func TestPrintYAMLReport(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintYAMLReport(&buf, sampleReport()); err != nil {
		t.Fatalf("PrintYAMLReport failed: %v", err)
	}
	var decoded map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid yaml: %v", err)
	}
	if decoded["status"] != "completed" {
		t.Errorf("status = %v", decoded["status"])
	}
	if _, ok := decoded["results"]; !ok {
		t.Errorf("yaml report should inline the analysis:\n%s", buf.String())
	}
}

func TestWriteUnknownFormat(t *testing.T) {
	if err := Write(&bytes.Buffer{}, Format("xml"), sampleReport()); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestGenerateHTMLReport(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatHTML, sampleReport()); err != nil {
		t.Fatalf("GenerateHTMLReport failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"<!DOCTYPE html>", "Alpha RPC (alpha)", "Archive Penalty", "Load Degradation", "3.5x", "Rate limited"} {
		if !strings.Contains(out, want) {
			t.Errorf("html report missing %q", want)
		}
	}
}
