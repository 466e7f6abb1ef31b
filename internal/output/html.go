package output

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/torosent/rpcbench/internal/jsonrpc"
	"github.com/torosent/rpcbench/internal/metrics"
	"github.com/torosent/rpcbench/internal/runner"
)

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt string
	Report      runner.Report
	Names       map[string]string
	Successes   int
	Failures    int
	Errors      []metrics.ErrorBucket
}

// GenerateHTMLReport writes a standalone HTML report.
func GenerateHTMLReport(w io.Writer, report runner.Report) error {
	data := HTMLReportData{
		GeneratedAt: time.Now().Format(time.RFC3339),
		Report:      report,
		Names:       providerNames(report),
	}
	for _, s := range report.Samples {
		if s.Success {
			data.Successes++
		} else {
			data.Failures++
		}
	}
	breakdown := make(map[jsonrpc.ErrorKind]int)
	for _, r := range report.Results {
		for k, v := range r.ErrorBreakdown {
			breakdown[k] += v
		}
	}
	for _, b := range report.Bursts {
		for k, v := range b.ErrorBreakdown {
			breakdown[k] += v
		}
	}
	data.Errors = metrics.FlattenErrorBreakdown(breakdown)

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"ms":     ms,
		"factor": factor,
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
		"formatPercent": func(part, total int) string {
			if total == 0 {
				return "0.0"
			}
			return fmt.Sprintf("%.1f", (float64(part)/float64(total))*100)
		},
		"name": func(id string) string {
			if n, ok := data.Names[id]; ok {
				return n
			}
			return id
		},
		"add": func(a, b int) int { return a + b },
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>rpcbench Report</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #2c3e50;
            line-height: 1.6;
            padding: 20px;
        }
        .container {
            max-width: 1400px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0,0,0,0.1);
            overflow: hidden;
        }
        header {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: white;
            padding: 30px 40px;
        }
        header h1 { font-size: 2rem; margin-bottom: 10px; }
        header .meta { opacity: 0.9; font-size: 0.9rem; }
        .content { padding: 40px; }
        .grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(250px, 1fr));
            gap: 20px;
            margin-bottom: 40px;
        }
        .card {
            background: #f8f9fa;
            border-radius: 8px;
            padding: 20px;
            border-left: 4px solid #667eea;
        }
        .card h3 {
            font-size: 0.9rem;
            color: #6c757d;
            text-transform: uppercase;
            letter-spacing: 0.5px;
            margin-bottom: 10px;
        }
        .card .value { font-size: 2rem; font-weight: bold; }
        .card .subvalue { font-size: 0.85rem; color: #6c757d; margin-top: 5px; }
        .card.success { border-left-color: #10b981; }
        .card.error { border-left-color: #ef4444; }
        .section { margin-bottom: 40px; }
        .section h2 {
            font-size: 1.5rem;
            margin-bottom: 20px;
            padding-bottom: 10px;
            border-bottom: 2px solid #e5e7eb;
        }
        table { width: 100%; border-collapse: collapse; background: white; }
        th, td { text-align: left; padding: 12px; border-bottom: 1px solid #e5e7eb; }
        th {
            background: #f8f9fa;
            font-weight: 600;
            color: #4b5563;
            font-size: 0.9rem;
            text-transform: uppercase;
            letter-spacing: 0.5px;
        }
        tr:hover { background: #f8f9fa; }
        .badge {
            display: inline-block;
            padding: 4px 12px;
            border-radius: 12px;
            font-size: 0.85rem;
            font-weight: 600;
        }
        .badge-success { background: #d1fae5; color: #065f46; }
        .badge-error { background: #fee2e2; color: #991b1b; }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <h1>rpcbench Report</h1>
            {{if .Report.JobID}}<div class="meta">Job: {{.Report.JobID}}</div>{{end}}
            <div class="meta">Generated: {{.GeneratedAt}} | Duration: {{.Report.Duration}} |
                {{if eq (print .Report.Status) "completed"}}<span class="badge badge-success">{{.Report.Status}}</span>{{else}}<span class="badge badge-error">{{.Report.Status}}</span>{{end}}
            </div>
        </header>

        <div class="content">
            <div class="grid">
                <div class="card">
                    <h3>Providers</h3>
                    <div class="value">{{len .Report.Providers}}</div>
                </div>
                <div class="card">
                    <h3>Sequential Calls</h3>
                    <div class="value">{{len .Report.Samples}}</div>
                </div>
                <div class="card success">
                    <h3>Successful</h3>
                    <div class="value">{{.Successes}}</div>
                    <div class="subvalue">{{formatPercent .Successes (add .Successes .Failures)}}%</div>
                </div>
                <div class="card error">
                    <h3>Failed</h3>
                    <div class="value">{{.Failures}}</div>
                    <div class="subvalue">{{formatPercent .Failures (add .Successes .Failures)}}%</div>
                </div>
            </div>

            {{if .Report.Results}}
            <div class="section">
                <h2>Sequential Results</h2>
                <table>
                    <thead>
                        <tr>
                            <th>Provider</th>
                            <th>Test</th>
                            <th>Avg</th>
                            <th>Cold</th>
                            <th>Warm</th>
                            <th>Speedup</th>
                            <th>P95</th>
                            <th>Success</th>
                        </tr>
                    </thead>
                    <tbody>
                        {{range .Report.Results}}
                        <tr>
                            <td>{{name .ProviderID}}</td>
                            <td><strong>{{.TestName}}</strong> <span class="badge">{{.Method}}</span></td>
                            <td>{{ms .AvgMs}}</td>
                            <td>{{ms .ColdMs}}</td>
                            <td>{{ms .WarmMs}}</td>
                            <td>{{factor .CacheSpeedup}}</td>
                            <td>{{ms .P95Ms}}</td>
                            <td>{{.SuccessCount}}/{{.Count}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .Report.Archive}}
            <div class="section">
                <h2>Archive Penalty</h2>
                <table>
                    <thead>
                        <tr><th>Provider</th><th>Call</th><th>Latest</th><th>Archival</th><th>Penalty</th><th>Ratio</th></tr>
                    </thead>
                    <tbody>
                        {{range .Report.Archive}}
                        <tr>
                            <td>{{name .ProviderID}}</td>
                            <td>{{.BaseName}}</td>
                            <td>{{ms .LatestAvgMs}}</td>
                            <td>{{ms .ArchivalAvgMs}}</td>
                            <td>{{ms .PenaltyMs}}</td>
                            <td>{{factor .PenaltyRatio}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .Report.Bursts}}
            <div class="section">
                <h2>Load Bursts</h2>
                <table>
                    <thead>
                        <tr><th>Provider</th><th>Test</th><th>Concurrency</th><th>Total</th><th>RPS</th><th>Avg</th><th>P99</th><th>Success</th></tr>
                    </thead>
                    <tbody>
                        {{range .Report.Bursts}}
                        <tr>
                            <td>{{name .ProviderID}}</td>
                            <td>{{.TestName}}</td>
                            <td>{{.Concurrency}}</td>
                            <td>{{formatFloat .TotalTimeMs}}ms</td>
                            <td>{{formatFloat .ThroughputRPS}}</td>
                            <td>{{ms .AvgMs}}</td>
                            <td>{{ms .P99Ms}}</td>
                            <td>{{.SuccessCount}}/{{.Concurrency}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .Report.Degradation}}
            <div class="section">
                <h2>Load Degradation</h2>
                <table>
                    <thead>
                        <tr><th>Provider</th><th>Method</th><th>Under Load</th><th>Sequential</th><th>Factor</th></tr>
                    </thead>
                    <tbody>
                        {{range .Report.Degradation}}
                        <tr>
                            <td>{{name .ProviderID}}</td>
                            <td>{{.Method}}</td>
                            <td>{{ms .LoadAvgMs}}</td>
                            <td>{{ms .SequentialAvgMs}}</td>
                            <td>{{factor .DegradationFactor}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .Errors}}
            <div class="section">
                <h2>Errors</h2>
                <table>
                    <thead><tr><th>Kind</th><th>Count</th></tr></thead>
                    <tbody>
                        {{range .Errors}}
                        <tr><td>{{.Label}}</td><td>{{.Count}}</td></tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>
    </div>
</body>
</html>
`
