package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/torosent/rpcbench/internal/jsonrpc"
	"github.com/torosent/rpcbench/internal/plan"
	"github.com/torosent/rpcbench/internal/progress"
	"github.com/torosent/rpcbench/internal/runner"
	"github.com/torosent/rpcbench/internal/store"
)

// ErrJobNotActive is returned when cancelling a job that is not running here.
var ErrJobNotActive = errors.New("job is not active")

// Manager runs submitted plans in the background, persisting their results and
// publishing their progress.
type Manager struct {
	store  *store.SQLiteStore
	broker *progress.Broker
	caller jsonrpc.Caller
	logger *logrus.Entry
	now    func() time.Time

	mu     sync.Mutex
	active map[string]*runner.Coordinator
	wg     sync.WaitGroup
}

// NewManager creates a job manager. caller executes single attempts; each job
// wraps it with the retry policy of its plan.
func NewManager(s *store.SQLiteStore, caller jsonrpc.Caller, logger *logrus.Entry) *Manager {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{
		store:  s,
		broker: progress.NewBroker(),
		caller: caller,
		logger: logger,
		now:    time.Now,
		active: make(map[string]*runner.Coordinator),
	}
}

// Broker returns the manager's event broker for stream subscription.
func (m *Manager) Broker() *progress.Broker {
	return m.broker
}

// Store returns the result store.
func (m *Manager) Store() *store.SQLiteStore {
	return m.store
}

// Submit validates and stores the plan, then runs it asynchronously. The job
// is persisted as queued before Submit returns.
func (m *Manager) Submit(ctx context.Context, p plan.ExecutionPlan) (string, error) {
	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", runner.ErrInvalidPlan, err)
	}

	id := store.NewID()
	if err := m.store.CreateJob(ctx, id, p, m.now().UTC()); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	logger := m.logger.WithField("job_id", id)
	coord := runner.New(runner.Options{
		Plan:     p,
		Caller:   runner.RetryingCaller(m.caller, p.Config.Retry),
		Sink:     progress.Multi(m.broker.Sink(id), progress.SinkFunc(observeEvent)),
		Recorder: m.store,
		JobID:    id,
		Logger:   logger,
	})

	m.mu.Lock()
	m.active[id] = coord
	m.mu.Unlock()
	activeJobs.Inc()

	m.wg.Go(func() {
		m.execute(id, coord, logger)
	})
	return id, nil
}

func (m *Manager) execute(id string, coord *runner.Coordinator, logger *logrus.Entry) {
	defer func() {
		m.mu.Lock()
		delete(m.active, id)
		m.mu.Unlock()
		activeJobs.Dec()
	}()

	ctx := context.Background()
	if err := m.store.MarkRunning(ctx, id, m.now().UTC()); err != nil {
		logger.WithError(err).Error("failed to mark job running")
	}

	logger.Info("job started")
	report, err := coord.Run(ctx)
	if err != nil {
		logger.WithError(err).Error("job failed")
	}
	jobsFinished.WithLabelValues(string(report.Status)).Inc()

	if err := m.store.FinishJob(ctx, id, report); err != nil {
		logger.WithError(err).Error("failed to store job result")
	}
	logger.WithFields(logrus.Fields{
		"status":   report.Status,
		"duration": report.Duration.Round(time.Millisecond),
		"samples":  len(report.Samples),
		"bursts":   len(report.Bursts),
	}).Info("job finished")
}

// Cancel requests cooperative cancellation of a running job.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	coord, ok := m.active[id]
	m.mu.Unlock()
	if !ok {
		return ErrJobNotActive
	}
	coord.Cancel()
	return nil
}

// Active reports whether the job is running in this process.
func (m *Manager) Active(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[id]
	return ok
}

// ActiveCount is the number of jobs running in this process.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Delete removes a finished job and forgets its stream.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if m.Active(id) {
		return store.ErrJobActive
	}
	if err := m.store.DeleteJob(ctx, id); err != nil {
		return err
	}
	m.broker.Forget(id)
	return nil
}

// Wait blocks until all running jobs finish.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels every running job and waits for them to wind down or for
// ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, coord := range m.active {
		coord.Cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for jobs: %w", ctx.Err())
	}
}
