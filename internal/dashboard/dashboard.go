package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/rpcbench/internal/jsonrpc"
	"github.com/torosent/rpcbench/internal/metrics"
	"github.com/torosent/rpcbench/internal/progress"
)

const (
	maxHistory = 100
	maxRows    = 10
)

// RunConfig holds benchmark parameters for display.
type RunConfig struct {
	Mode       string        // Iteration mode
	Rounds     int           // Rounds per test
	Providers  []string      // Provider names
	Timeout    time.Duration // Default call timeout
	ConfigFile string        // Path to config file if used
}

// Dashboard renders a live terminal UI fed by the progress stream.
type Dashboard struct {
	collector    *metrics.Collector
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid           *ui.Grid
	progressGauge  *widgets.Gauge
	latencySparkle *widgets.SparklineGroup
	latencyPara    *widgets.Paragraph
	summaryPara    *widgets.Paragraph
	providerList   *widgets.List
	resultList     *widgets.List
	burstList      *widgets.List
	errorList      *widgets.List
	latencyHistory []float64

	startTime time.Time
	cfg       RunConfig

	// Derived from events.
	jobID    string
	status   string
	current  string
	fraction float64
	results  []string
	bursts   []string
}

// New creates a new Dashboard.
func New(collector *metrics.Collector, cfg RunConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	d := newDashboard(collector, cfg, shutdownFunc)
	d.setupGrid()
	return d, nil
}

func newDashboard(collector *metrics.Collector, cfg RunConfig, shutdownFunc func()) *Dashboard {
	if collector == nil {
		collector = metrics.NewCollector()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		collector:      collector,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, maxHistory),
		startTime:      time.Now(),
		cfg:            cfg,
		status:         "starting",
	}
	d.initWidgets()
	return d
}

func (d *Dashboard) initWidgets() {
	sparkline := widgets.NewSparkline()
	sparkline.Title = "Latency (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Call Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency Stats"
	d.latencyPara.Text = "Min: 0ms\nMean: 0ms\nP50: 0ms\nP90: 0ms\nP99: 0ms"
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.progressGauge = widgets.NewGauge()
	d.progressGauge.Title = "Progress"
	d.progressGauge.BarColor = ui.ColorBlue
	d.progressGauge.BorderStyle.Fg = ui.ColorCyan
	d.progressGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Benchmark"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.providerList = widgets.NewList()
	d.providerList.Title = "Providers"
	d.providerList.Rows = []string{"Awaiting data"}
	d.providerList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.providerList.BorderStyle.Fg = ui.ColorCyan

	d.resultList = widgets.NewList()
	d.resultList.Title = "Completed Tests"
	d.resultList.Rows = []string{"None yet"}
	d.resultList.BorderStyle.Fg = ui.ColorCyan

	d.burstList = widgets.NewList()
	d.burstList.Title = "Load Bursts"
	d.burstList.Rows = []string{"None yet"}
	d.burstList.BorderStyle.Fg = ui.ColorCyan

	d.errorList = widgets.NewList()
	d.errorList.Title = "Errors"
	d.errorList.Rows = []string{"No failures"}
	d.errorList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.errorList.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.14,
			ui.NewCol(0.6, d.summaryPara),
			ui.NewCol(0.4, d.progressGauge),
		),
		ui.NewRow(0.24,
			ui.NewCol(0.65, d.latencySparkle),
			ui.NewCol(0.35, d.latencyPara),
		),
		ui.NewRow(0.31,
			ui.NewCol(0.6, d.resultList),
			ui.NewCol(0.4, d.providerList),
		),
		ui.NewRow(0.31,
			ui.NewCol(0.6, d.burstList),
			ui.NewCol(0.4, d.errorList),
		),
	)
}

// Publish implements progress.Sink.
func (d *Dashboard) Publish(e progress.Event) {
	if e.Type == progress.IterationComplete {
		var latency time.Duration
		if e.LatencyMs != nil {
			latency = time.Duration(*e.LatencyMs * float64(time.Millisecond))
		}
		d.collector.RecordCall(e.ProviderID, latency, e.ErrorKind)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if e.Progress > 0 {
		d.fraction = e.Progress
	}
	switch e.Type {
	case progress.JobStarted:
		d.jobID = e.JobID
		d.status = "running"
	case progress.TestStarted:
		d.current = fmt.Sprintf("%s / %s", e.ProviderID, e.TestName)
	case progress.LoadTestStarted:
		d.current = fmt.Sprintf("%s / %s (x%d)", e.ProviderID, e.TestName, e.Concurrency)
	case progress.TestComplete:
		if e.Summary != nil {
			d.results = appendCapped(d.results, formatResultRow(*e.Summary))
		}
	case progress.LoadTestComplete:
		d.bursts = appendCapped(d.bursts, formatBurstRow(e))
	case progress.JobComplete:
		d.status = e.Status
		d.current = ""
	}
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and cleans up.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop() ends the loop once the run has wound down.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

// update refreshes all widget data from the collector and event state.
func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.startTime)
	stats := d.collector.Stats(elapsed)

	if stats.Total > 0 {
		d.latencyHistory = append(d.latencyHistory, stats.MeanLatencyMs)
		if len(d.latencyHistory) > maxHistory {
			d.latencyHistory = d.latencyHistory[1:]
		}
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf(
			"Call Latency | Mean: %.2fms | Min: %.2fms | Max: %.2fms",
			stats.MeanLatencyMs,
			stats.MinLatencyMs,
			stats.MaxLatencyMs,
		)
	}

	pct := int(d.fraction * 100)
	if pct > 100 {
		pct = 100
	}
	d.progressGauge.Percent = pct
	d.progressGauge.Label = fmt.Sprintf("%d%% | %.1f calls/s", pct, stats.CallsPerSec)

	successRate := 0.0
	if stats.Total > 0 {
		successRate = (float64(stats.Successes) / float64(stats.Total)) * 100
	}
	current := d.current
	if current == "" {
		current = "-"
	}
	d.summaryPara.Text = fmt.Sprintf(
		"Job: %s | Status: %s\n%s\nNow: %s\nElapsed: %s | Calls: %d | Success Rate: %.1f%%",
		orDash(d.jobID),
		d.status,
		d.formatRunConfig(),
		current,
		elapsed.Round(time.Second),
		stats.Total,
		successRate,
	)

	d.latencyPara.Text = fmt.Sprintf(
		"Min:  %.2fms\nMean: %.2fms\nP50:  %.2fms\nP90:  %.2fms\nP99:  %.2fms",
		stats.MinLatencyMs,
		stats.MeanLatencyMs,
		stats.P50LatencyMs,
		stats.P90LatencyMs,
		stats.P99LatencyMs,
	)

	d.providerList.Rows = formatProviderRows(stats.Providers)
	d.errorList.Rows = formatErrorRows(stats.Errors)
	if len(d.results) > 0 {
		d.resultList.Rows = reversed(d.results)
	}
	if len(d.bursts) > 0 {
		d.burstList.Rows = reversed(d.bursts)
	}
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func formatProviderRows(providers []metrics.ProviderStats) []string {
	if len(providers) == 0 {
		return []string{"[No provider data](fg:green)"}
	}
	rows := make([]string, 0, len(providers))
	for _, p := range providers {
		rows = append(rows, fmt.Sprintf("[%s](fg:cyan) | Calls %d | Err %d | Mean %.1fms",
			p.ProviderID, p.Calls, p.Failures, p.MeanLatencyMs))
	}
	return rows
}

func formatErrorRows(breakdown map[jsonrpc.ErrorKind]int) []string {
	rows := metrics.FlattenErrorBreakdown(breakdown)
	if len(rows) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	if len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	formatted := make([]string, 0, len(rows))
	for _, row := range rows {
		formatted = append(formatted, fmt.Sprintf("[%s](fg:red) %d", row.Label, row.Count))
	}
	return formatted
}

func formatResultRow(r metrics.AggregatedResult) string {
	row := fmt.Sprintf("%s | %s | avg %s", r.ProviderID, r.TestName, fmtMs(r.AvgMs))
	if r.CacheSpeedup != nil {
		row += fmt.Sprintf(" | cache %.1fx", *r.CacheSpeedup)
	}
	if r.ErrorCount > 0 {
		row += fmt.Sprintf(" | [%d/%d failed](fg:red)", r.ErrorCount, r.Count)
	}
	return row
}

func formatBurstRow(e progress.Event) string {
	row := fmt.Sprintf("%s | %s | x%d", e.ProviderID, e.TestName, e.Concurrency)
	if e.ThroughputRPS != nil {
		row += fmt.Sprintf(" | %.1f rps", *e.ThroughputRPS)
	}
	row += " | avg " + fmtMs(e.AvgMs)
	if e.ErrorCount > 0 {
		row += fmt.Sprintf(" | [%d errors](fg:red)", e.ErrorCount)
	}
	return row
}

// formatRunConfig formats the benchmark parameters for display.
func (d *Dashboard) formatRunConfig() string {
	var parts []string
	if d.cfg.Mode != "" {
		parts = append(parts, fmt.Sprintf("Mode: %s", d.cfg.Mode))
	}
	if d.cfg.Rounds > 0 {
		parts = append(parts, fmt.Sprintf("Rounds: %d", d.cfg.Rounds))
	}
	if len(d.cfg.Providers) > 0 {
		parts = append(parts, fmt.Sprintf("Providers: %s", strings.Join(d.cfg.Providers, ", ")))
	}
	if d.cfg.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", d.cfg.Timeout))
	}
	if d.cfg.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", d.cfg.ConfigFile))
	}
	return strings.Join(parts, " | ")
}

func appendCapped(rows []string, row string) []string {
	rows = append(rows, row)
	if len(rows) > maxRows {
		rows = rows[len(rows)-maxRows:]
	}
	return rows
}

// reversed returns the newest row first.
func reversed(rows []string) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = r
	}
	return out
}

func fmtMs(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1fms", *v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
