package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/rpcbench/internal/jsonrpc"
	"github.com/torosent/rpcbench/internal/metrics"
	"github.com/torosent/rpcbench/internal/plan"
	"github.com/torosent/rpcbench/internal/progress"
)

var (
	// ErrInvalidPlan is returned when the execution plan fails validation.
	ErrInvalidPlan = errors.New("invalid execution plan")
	// ErrAlreadyStarted is returned when Run is called more than once.
	ErrAlreadyStarted = errors.New("coordinator already started")
)

// State is the lifecycle state of a Coordinator.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Report is the end state of a run.
type Report struct {
	JobID      string                    `json:"job_id,omitempty" yaml:"job_id,omitempty"`
	Status     State                     `json:"status" yaml:"status"`
	StartedAt  time.Time                 `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time                 `json:"finished_at" yaml:"finished_at"`
	Duration   time.Duration             `json:"-" yaml:"-"`
	Providers  []plan.Provider           `json:"providers" yaml:"providers"`
	Tests      []plan.TestDefinition     `json:"tests" yaml:"tests"`
	Samples    []metrics.Sample          `json:"samples" yaml:"samples"`
	Bursts     []metrics.LoadBurstResult `json:"bursts,omitempty" yaml:"bursts,omitempty"`
	Error      string                    `json:"error,omitempty" yaml:"error,omitempty"`
	Analysis   `yaml:",inline"`
}

// DurationSeconds is the wall time of the run in seconds.
func (r Report) DurationSeconds() float64 {
	return r.Duration.Seconds()
}

// Coordinator runs one execution plan. It is single use.
type Coordinator struct {
	opt   Options
	log   *Log
	sink  progress.Sink
	burst BurstRunner

	state     atomic.Value // State
	cancelled atomic.Bool
	cancelCh  chan struct{}
	cancelOne sync.Once

	totalUnits     int
	completedUnits atomic.Int64
	burstsRun      atomic.Bool
}

func New(opt Options) *Coordinator {
	opt.normalize()
	c := &Coordinator{
		opt:      opt,
		log:      &Log{},
		sink:     &lockedSink{inner: opt.Sink},
		burst:    BurstRunner{Caller: opt.Caller, Now: opt.Now},
		cancelCh: make(chan struct{}),
	}
	c.state.Store(StateIdle)
	return c
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	return c.state.Load().(State)
}

// Log exposes the live sample and burst log.
func (c *Coordinator) Log() *Log {
	return c.log
}

// Cancel requests cooperative cancellation. It is safe to call from any
// goroutine and more than once.
func (c *Coordinator) Cancel() {
	c.cancelOne.Do(func() {
		c.cancelled.Store(true)
		close(c.cancelCh)
	})
}

// Cancelled reports whether cancellation was requested.
func (c *Coordinator) Cancelled() bool {
	return c.cancelled.Load()
}

// Run executes the plan to completion or cancellation. It returns an error only
// when the run could not start or the plan is invalid; per-call failures are
// part of the report.
func (c *Coordinator) Run(ctx context.Context) (Report, error) {
	if !c.state.CompareAndSwap(StateIdle, StateRunning) {
		return Report{}, ErrAlreadyStarted
	}

	p := c.opt.Plan
	started := c.opt.Now()
	report := Report{
		JobID:     c.opt.JobID,
		StartedAt: started,
		Providers: p.Providers,
		Tests:     p.Tests,
	}

	if err := c.validate(); err != nil {
		c.emit(progress.Event{Type: progress.Error, Message: err.Error(), Context: "plan"})
		report = c.finish(report, StateFailed)
		report.Error = err.Error()
		return report, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}

	if ctx.Err() != nil {
		c.Cancel()
	}
	stop := context.AfterFunc(ctx, c.Cancel)
	defer stop()
	// In-flight calls must resolve on their own timeout, never on cancellation.
	callCtx := context.WithoutCancel(ctx)

	sequential := p.SequentialTests()
	load := p.LoadTests()
	rounds := p.Config.Rounds
	c.totalUnits = len(p.Providers) * rounds * (len(sequential) + len(load))

	c.emit(progress.Event{
		Type:        progress.JobStarted,
		TotalTests:  len(p.Providers) * (len(sequential) + len(load)),
		TotalRounds: rounds,
		Providers:   len(p.Providers),
		TotalUnits:  c.totalUnits,
	})

	if p.Config.ParallelProviders && len(p.Providers) > 1 {
		c.runParallel(callCtx, sequential, load)
	} else {
		for _, prov := range p.Providers {
			if c.Cancelled() {
				break
			}
			c.emitProvider(progress.ProviderStarted, prov)
			c.runSequential(callCtx, prov, sequential)
			c.runLoad(callCtx, prov, load)
			c.emitProvider(progress.ProviderComplete, prov)
		}
	}

	status := StateCompleted
	if c.Cancelled() {
		status = StateCancelled
	}
	return c.finish(report, status), nil
}

func (c *Coordinator) validate() error {
	if c.opt.Caller == nil {
		return errors.New("no caller configured")
	}
	return c.opt.Plan.Validate()
}

// runParallel runs the sequential phase of every provider concurrently, then
// the load phase provider by provider so bursts never overlap.
func (c *Coordinator) runParallel(ctx context.Context, sequential, load []plan.TestDefinition) {
	var g errgroup.Group
	for _, prov := range c.opt.Plan.Providers {
		if c.Cancelled() {
			break
		}
		g.Go(func() error {
			c.emitProvider(progress.ProviderStarted, prov)
			c.runSequential(ctx, prov, sequential)
			return nil
		})
	}
	_ = g.Wait()

	for _, prov := range c.opt.Plan.Providers {
		if c.Cancelled() {
			break
		}
		c.runLoad(ctx, prov, load)
		c.emitProvider(progress.ProviderComplete, prov)
	}
}

func (c *Coordinator) runSequential(ctx context.Context, prov plan.Provider, tests []plan.TestDefinition) {
	cfg := c.opt.Plan.Config
	rounds := cfg.Rounds
	logger := c.opt.Logger.WithField("provider", prov.Name)

	for _, test := range tests {
		if c.Cancelled() {
			return
		}
		c.emit(progress.Event{
			Type:         progress.TestStarted,
			ProviderID:   prov.ID,
			ProviderName: prov.Name,
			TestID:       test.ID,
			TestName:     test.Name,
		})

		req := jsonrpc.Request{
			Endpoint: prov.URL,
			Method:   test.Method,
			Params:   test.Params,
			Timeout:  cfg.TimeoutFor(test.Method),
		}

		ran := 0
		for round := 1; round <= rounds; round++ {
			if c.Cancelled() {
				break
			}
			roundType := plan.RoundTypeFor(round, rounds)
			c.emit(progress.Event{
				Type:       progress.RoundStarted,
				ProviderID: prov.ID,
				TestID:     test.ID,
				Round:      round,
				RoundType:  roundType,
			})

			out := c.opt.Caller.Call(ctx, req)
			sample := metrics.NewSample(prov.ID, test.ID, round, rounds, out, c.opt.Now())
			c.log.AppendSample(sample)
			c.record(logger, func() error { return c.opt.Recorder.RecordSample(ctx, c.opt.JobID, sample) })
			ran++

			done := c.completedUnits.Add(1)
			latency := sample.LatencyMs
			success := sample.Success
			c.emit(progress.Event{
				Type:           progress.IterationComplete,
				ProviderID:     prov.ID,
				TestID:         test.ID,
				TestName:       test.Name,
				Round:          round,
				RoundType:      roundType,
				LatencyMs:      &latency,
				Success:        &success,
				ErrorKind:      sample.ErrorKind,
				Attempts:       sample.Attempts,
				Progress:       c.fraction(done),
				CompletedUnits: int(done),
				TotalUnits:     c.totalUnits,
			})
			c.emit(progress.Event{Type: progress.RoundComplete, ProviderID: prov.ID, TestID: test.ID, Round: round})

			if round == 1 && sample.ErrorKind == jsonrpc.KindUnsupported {
				logger.WithField("method", test.Method).Info("method unsupported, skipping remaining rounds")
				c.completedUnits.Add(int64(rounds - 1))
				break
			}
			if round < rounds {
				c.sleep(cfg.InterRoundDelay)
			}
		}

		if ran > 0 {
			summary := metrics.Aggregate(test, prov.ID, c.log.SamplesFor(prov.ID, test.ID))
			c.emit(progress.Event{
				Type:         progress.TestComplete,
				ProviderID:   prov.ID,
				ProviderName: prov.Name,
				TestID:       test.ID,
				TestName:     test.Name,
				Summary:      &summary,
			})
		}
		c.sleep(cfg.InterTestDelay)
	}
}

func (c *Coordinator) runLoad(ctx context.Context, prov plan.Provider, tests []plan.TestDefinition) {
	cfg := c.opt.Plan.Config
	logger := c.opt.Logger.WithField("provider", prov.Name)

	for _, test := range tests {
		if c.Cancelled() {
			return
		}
		// Bursts never overlap and are separated by a fixed cooldown.
		if c.burstsRun.Load() {
			c.sleep(cfg.LoadCooldown)
			if c.Cancelled() {
				return
			}
		}

		concurrency := cfg.ConcurrencyFor(test)
		c.emit(progress.Event{
			Type:         progress.LoadTestStarted,
			ProviderID:   prov.ID,
			ProviderName: prov.Name,
			TestID:       test.ID,
			TestName:     test.Name,
			Concurrency:  concurrency,
		})

		result := c.burst.Run(ctx, prov, test, concurrency, cfg.TimeoutFor(test.Method))
		c.burstsRun.Store(true)
		c.log.AppendBurst(result)
		c.record(logger, func() error { return c.opt.Recorder.RecordBurst(ctx, c.opt.JobID, result) })

		done := c.completedUnits.Add(int64(cfg.Rounds))
		throughput := result.ThroughputRPS
		c.emit(progress.Event{
			Type:           progress.LoadTestComplete,
			ProviderID:     prov.ID,
			ProviderName:   prov.Name,
			TestID:         test.ID,
			TestName:       test.Name,
			Concurrency:    concurrency,
			ThroughputRPS:  &throughput,
			AvgMs:          result.AvgMs,
			SuccessCount:   result.SuccessCount,
			ErrorCount:     result.ErrorCount,
			Progress:       c.fraction(done),
			CompletedUnits: int(done),
			TotalUnits:     c.totalUnits,
		})
		logger.WithFields(logrus.Fields{
			"test":           test.Name,
			"concurrency":    concurrency,
			"throughput_rps": throughput,
			"errors":         result.ErrorCount,
		}).Debug("burst complete")
	}
}

func (c *Coordinator) finish(report Report, status State) Report {
	finished := c.opt.Now()
	report.Status = status
	report.FinishedAt = finished
	report.Duration = finished.Sub(report.StartedAt)
	report.Samples = c.log.Samples()
	report.Bursts = c.log.Bursts()
	if status != StateFailed {
		report.Analysis = Replay(c.opt.Plan, report.Samples, report.Bursts)
	}

	c.state.Store(status)
	c.emit(progress.Event{
		Type:            progress.JobComplete,
		DurationSeconds: report.Duration.Seconds(),
		Status:          string(status),
	})
	return report
}

func (c *Coordinator) record(logger *logrus.Entry, fn func() error) {
	if c.opt.Recorder == nil {
		return
	}
	if err := fn(); err != nil {
		logger.WithError(err).Warn("failed to persist result")
		c.emit(progress.Event{Type: progress.Error, Message: err.Error(), Context: "recorder"})
	}
}

// sleep waits for d or until cancellation, whichever comes first.
func (c *Coordinator) sleep(d time.Duration) {
	if d <= 0 || c.Cancelled() {
		return
	}
	if c.opt.Sleep != nil {
		c.opt.Sleep(d)
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-c.cancelCh:
	}
}

func (c *Coordinator) fraction(done int64) float64 {
	if c.totalUnits <= 0 {
		return 0
	}
	f := float64(done) / float64(c.totalUnits)
	if f > 1 {
		return 1
	}
	return f
}

func (c *Coordinator) emit(e progress.Event) {
	e.JobID = c.opt.JobID
	if e.Time.IsZero() {
		e.Time = c.opt.Now()
	}
	c.sink.Publish(e)
}

func (c *Coordinator) emitProvider(t progress.EventType, prov plan.Provider) {
	c.emit(progress.Event{Type: t, ProviderID: prov.ID, ProviderName: prov.Name})
}

// lockedSink serializes publishes from concurrently running providers.
type lockedSink struct {
	mu    sync.Mutex
	inner progress.Sink
}

func (s *lockedSink) Publish(e progress.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner.Publish(e)
}
