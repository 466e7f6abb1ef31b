package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/torosent/rpcbench/internal/api"
	"github.com/torosent/rpcbench/internal/config"
	"github.com/torosent/rpcbench/internal/dashboard"
	"github.com/torosent/rpcbench/internal/jsonrpc"
	"github.com/torosent/rpcbench/internal/metrics"
	"github.com/torosent/rpcbench/internal/output"
	"github.com/torosent/rpcbench/internal/plan"
	"github.com/torosent/rpcbench/internal/progress"
	"github.com/torosent/rpcbench/internal/runner"
	"github.com/torosent/rpcbench/internal/store"
	"github.com/torosent/rpcbench/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 10 * time.Second
	defaultDataDir   = "rpcbench-data"
)

var errCancelled = errors.New("benchmark cancelled")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) (err error) {
	cfg, err := config.NewLoader().Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg, stderr)
	if err != nil {
		return err
	}
	entry := logrus.NewEntry(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// A single run is one job; its id is fixed before the first traced call.
	jobID := ""
	if !cfg.ServeMode() {
		jobID = store.NewID()
	}
	tp, err := tracing.Init(ctx, cfg.Tracing, traceRun(cfg, jobID))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer done()
		if serr := tp.Shutdown(shutdownCtx); serr != nil {
			err = multierror.Append(err, fmt.Errorf("tracing shutdown: %w", serr))
		}
	}()

	caller := jsonrpc.NewHTTPCaller(
		jsonrpc.WithTracer(tp.Tracer(), tp.ShouldPropagate()),
		jsonrpc.WithLogger(entry, cfg.LogErrors),
	)

	if cfg.ServeMode() {
		return serve(ctx, cfg, caller, entry)
	}
	return bench(ctx, cancel, cfg, caller, jobID, entry, stdout)
}

func traceRun(cfg *config.Config, jobID string) tracing.Run {
	if cfg.ServeMode() {
		return tracing.Run{Role: tracing.RoleServe}
	}
	providers := cfg.PlanProviders()
	ids := make([]string, 0, len(providers))
	for _, p := range providers {
		ids = append(ids, p.ID)
	}
	return tracing.Run{
		Role:      tracing.RoleRun,
		JobID:     jobID,
		Mode:      string(cfg.Mode),
		Rounds:    cfg.RoundCount(),
		Providers: ids,
	}
}

// newLogger builds the process logger. The dashboard owns the terminal, so its
// runs discard log output.
func newLogger(cfg *config.Config, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)
	if cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		logger.SetLevel(level)
	}
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if cfg.Dashboard {
		logger.SetOutput(io.Discard)
	}
	return logger, nil
}

func bench(ctx context.Context, stop context.CancelFunc, cfg *config.Config, caller *jsonrpc.HTTPCaller, jobID string, logger *logrus.Entry, stdout io.Writer) (err error) {
	p, err := config.BuildPlan(ctx, cfg, caller)
	if err != nil {
		return err
	}

	logger = logger.WithField("job_id", jobID)

	var recorder runner.Recorder
	var st *store.SQLiteStore
	if cfg.DataDir != "" {
		st, err = store.Open(cfg.DataDir)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := st.Close(); cerr != nil {
				err = multierror.Append(err, fmt.Errorf("close store: %w", cerr))
			}
		}()
		if err := st.CreateJob(ctx, jobID, p, time.Now()); err != nil {
			return err
		}
		if err := st.MarkRunning(ctx, jobID, time.Now()); err != nil {
			return err
		}
		recorder = st
	}

	collector := metrics.NewCollector()
	var sink progress.Sink = progress.Discard
	switch {
	case cfg.Dashboard:
		dash, err := dashboard.New(collector, dashboardConfig(cfg, p), stop)
		if err != nil {
			return err
		}
		dash.Start()
		defer dash.Stop()
		sink = dash
	case reportOnStdout(cfg) && cfg.Output != config.OutputText:
		// machine-readable reports keep stdout clean
	default:
		reporter := output.NewProgressReporter(collector, progressInterval, stdout)
		reporter.Start()
		defer func() {
			reporter.Stop()
			fmt.Fprintln(stdout)
		}()
		sink = reporter
	}

	coord := runner.New(runner.Options{
		Plan:     p,
		Caller:   runner.RetryingCaller(caller, p.Config.Retry),
		Sink:     sink,
		Recorder: recorder,
		JobID:    jobID,
		Logger:   logger,
	})
	logger.WithFields(logrus.Fields{
		"providers": len(p.Providers),
		"tests":     len(p.Tests),
		"rounds":    p.Config.Rounds,
	}).Info("benchmark started")

	report, runErr := coord.Run(ctx)
	if st != nil {
		if ferr := st.FinishJob(context.WithoutCancel(ctx), jobID, report); ferr != nil {
			runErr = multierror.Append(runErr, ferr)
		}
	}
	if runErr != nil {
		return runErr
	}

	if err := writeReport(cfg, stdout, report); err != nil {
		return err
	}
	logger.WithField("status", report.Status).Info("benchmark finished")
	if report.Status == runner.StateCancelled {
		return errCancelled
	}
	return nil
}

func reportOnStdout(cfg *config.Config) bool {
	return cfg.OutputFile == ""
}

func writeReport(cfg *config.Config, stdout io.Writer, report runner.Report) error {
	if reportOnStdout(cfg) {
		return output.Write(stdout, output.Format(cfg.Output), report)
	}
	f, err := os.Create(cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if err := output.Write(f, output.Format(cfg.Output), report); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func dashboardConfig(cfg *config.Config, p plan.ExecutionPlan) dashboard.RunConfig {
	names := make([]string, len(p.Providers))
	for i, prov := range p.Providers {
		names[i] = prov.Name
	}
	return dashboard.RunConfig{
		Mode:       string(p.Config.Mode),
		Rounds:     p.Config.Rounds,
		Providers:  names,
		Timeout:    p.Config.Timeout,
		ConfigFile: cfg.ConfigFile,
	}
}

func serve(ctx context.Context, cfg *config.Config, caller *jsonrpc.HTTPCaller, logger *logrus.Entry) (err error) {
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	st, err := store.Open(dataDir)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			err = multierror.Append(err, fmt.Errorf("close store: %w", cerr))
		}
	}()

	manager := api.NewManager(st, api.InstrumentCaller(caller), logger)
	srv := api.NewServer(cfg.Listen, manager, config.NewPlanBuilder(caller), logger)
	logger.WithFields(logrus.Fields{"addr": cfg.Listen, "data_dir": dataDir}).Info("serving API")
	return srv.Run(ctx)
}
