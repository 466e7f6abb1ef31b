package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/torosent/rpcbench/internal/jsonrpc"
	"github.com/torosent/rpcbench/internal/metrics"
	"github.com/torosent/rpcbench/internal/runner"
)

// Format selects a report renderer.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatHTML Format = "html"
)

// Write renders the report in the given format.
func Write(w io.Writer, format Format, report runner.Report) error {
	switch format {
	case "", FormatText:
		PrintReport(w, report)
		return nil
	case FormatJSON:
		return PrintJSONReport(w, report)
	case FormatYAML:
		return PrintYAMLReport(w, report)
	case FormatHTML:
		return GenerateHTMLReport(w, report)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, report runner.Report) {
	fmt.Fprintln(w, "\n--- Benchmark Results ---")
	if report.JobID != "" {
		fmt.Fprintf(w, "Job:               %s\n", report.JobID)
	}
	fmt.Fprintf(w, "Status:            %s\n", report.Status)
	fmt.Fprintf(w, "Duration:          %s\n", report.Duration)
	fmt.Fprintf(w, "Providers:         %d\n", len(report.Providers))
	fmt.Fprintf(w, "Calls Recorded:    %d\n", len(report.Samples))
	if report.Error != "" {
		fmt.Fprintf(w, "Error:             %s\n", report.Error)
	}

	names := providerNames(report)
	byProvider := make(map[string][]metrics.AggregatedResult)
	for _, r := range report.Results {
		byProvider[r.ProviderID] = append(byProvider[r.ProviderID], r)
	}
	for _, p := range report.Providers {
		results := byProvider[p.ID]
		if len(results) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", names[p.ID])
		errors := make(map[jsonrpc.ErrorKind]int)
		for _, r := range results {
			fmt.Fprintf(w, "  - %s: avg=%s, cold=%s, warm=%s, speedup=%s, success=%.0f%% (%d/%d)\n",
				r.TestName, ms(r.AvgMs), ms(r.ColdMs), ms(r.WarmMs), factor(r.CacheSpeedup),
				r.SuccessRate*100, r.SuccessCount, r.Count)
			if r.P95Ms != nil {
				fmt.Fprintf(w, "    p90=%s, p95=%s, stddev=%s\n", ms(r.P90Ms), ms(r.P95Ms), ms(r.StddevMs))
			} else if r.StddevMs != nil {
				fmt.Fprintf(w, "    median=%s, stddev=%s\n", ms(r.MedianMs), ms(r.StddevMs))
			}
			for k, v := range r.ErrorBreakdown {
				errors[k] += v
			}
		}
		if len(errors) > 0 {
			fmt.Fprintln(w, "  Errors:")
			writeErrorBuckets(w, errors, "    ")
		}
	}

	if len(report.Archive) > 0 {
		fmt.Fprintln(w, "\nArchive Penalty:")
		for _, c := range report.Archive {
			fmt.Fprintf(w, "  - %s %s: latest=%s, archival=%s, penalty=%s (%s)\n",
				names[c.ProviderID], c.BaseName, ms(c.LatestAvgMs), ms(c.ArchivalAvgMs),
				ms(c.PenaltyMs), factor(c.PenaltyRatio))
		}
	}

	if len(report.Bursts) > 0 {
		fmt.Fprintln(w, "\nLoad Bursts:")
		for _, b := range report.Bursts {
			fmt.Fprintf(w, "  - %s %s x%d: total=%.1fms, rps=%.2f, avg=%s, p95=%s, success=%d, errors=%d\n",
				names[b.ProviderID], b.TestName, b.Concurrency, b.TotalTimeMs, b.ThroughputRPS,
				ms(b.AvgMs), ms(b.P95Ms), b.SuccessCount, b.ErrorCount)
			if len(b.ErrorBreakdown) > 0 {
				writeErrorBuckets(w, b.ErrorBreakdown, "      ")
			}
		}
	}

	if len(report.Degradation) > 0 {
		fmt.Fprintln(w, "\nLoad Degradation:")
		for _, d := range report.Degradation {
			fmt.Fprintf(w, "  - %s %s: load=%s, sequential=%s, factor=%s\n",
				names[d.ProviderID], d.Method, ms(d.LoadAvgMs), ms(d.SequentialAvgMs), factor(d.DegradationFactor))
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, report runner.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonReport{Report: report, DurationSeconds: report.DurationSeconds()})
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, report runner.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(yamlReport{Report: report, DurationSeconds: report.DurationSeconds()}); err != nil {
		return fmt.Errorf("encode yaml report: %w", err)
	}
	return enc.Close()
}

type jsonReport struct {
	runner.Report
	DurationSeconds float64 `json:"duration_seconds"`
}

type yamlReport struct {
	runner.Report   `yaml:",inline"`
	DurationSeconds float64 `yaml:"duration_seconds"`
}

func providerNames(report runner.Report) map[string]string {
	names := make(map[string]string, len(report.Providers))
	for _, p := range report.Providers {
		switch {
		case p.Name != "" && p.Name != p.ID:
			names[p.ID] = fmt.Sprintf("%s (%s)", p.Name, p.ID)
		default:
			names[p.ID] = p.ID
		}
	}
	return names
}

func writeErrorBuckets(w io.Writer, breakdown map[jsonrpc.ErrorKind]int, indent string) {
	rows := metrics.FlattenErrorBreakdown(breakdown)
	if len(rows) == 0 {
		fmt.Fprintf(w, "%sNone\n", indent)
		return
	}
	for _, row := range rows {
		fmt.Fprintf(w, "%s%s: %d\n", indent, row.Label, row.Count)
	}
}

func ms(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1fms", *v)
}

func factor(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", *v), "0"), ".") + "x"
}
