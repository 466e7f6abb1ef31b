package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/torosent/rpcbench/internal/jsonrpc"
	"github.com/torosent/rpcbench/internal/metrics"
	"github.com/torosent/rpcbench/internal/plan"
	"github.com/torosent/rpcbench/internal/runner"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id          TEXT PRIMARY KEY,
    status      TEXT NOT NULL,
    mode        TEXT,
    rounds      INTEGER NOT NULL,
    test_count  INTEGER NOT NULL,
    plan        BLOB NOT NULL,
    error       TEXT,
    duration_s  REAL,
    created_at  DATETIME NOT NULL,
    started_at  DATETIME,
    finished_at DATETIME
);
CREATE TABLE IF NOT EXISTS providers (
    job_id      TEXT NOT NULL,
    position    INTEGER NOT NULL,
    provider_id TEXT NOT NULL,
    name        TEXT,
    url         TEXT NOT NULL,
    region      TEXT,
    PRIMARY KEY (job_id, provider_id)
);
CREATE TABLE IF NOT EXISTS tests_executed (
    job_id   TEXT NOT NULL,
    test_id  INTEGER NOT NULL,
    name     TEXT NOT NULL,
    method   TEXT NOT NULL,
    category TEXT NOT NULL,
    label    TEXT NOT NULL,
    PRIMARY KEY (job_id, test_id)
);
CREATE TABLE IF NOT EXISTS samples (
    seq           INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id        TEXT NOT NULL,
    provider_id   TEXT NOT NULL,
    test_id       INTEGER NOT NULL,
    round         INTEGER NOT NULL,
    round_type    TEXT NOT NULL,
    latency_ms    REAL NOT NULL,
    success       INTEGER NOT NULL,
    error_kind    TEXT,
    error_message TEXT,
    http_status   INTEGER,
    response_size INTEGER,
    attempts      INTEGER,
    recorded_at   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS samples_job ON samples (job_id, seq);
CREATE TABLE IF NOT EXISTS load_results (
    seq            INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id         TEXT NOT NULL,
    provider_id    TEXT NOT NULL,
    test_id        INTEGER NOT NULL,
    concurrency    INTEGER NOT NULL,
    throughput_rps REAL NOT NULL,
    success_count  INTEGER NOT NULL,
    error_count    INTEGER NOT NULL,
    payload        BLOB NOT NULL,
    recorded_at    DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS load_results_job ON load_results (job_id, seq);
`

const (
	dbFile   = "rpcbench.db"
	lockFile = "rpcbench.lock"
)

// Compile-time interface satisfaction check.
var _ runner.Recorder = (*SQLiteStore)(nil)

// SQLiteStore persists jobs in SQLite.
type SQLiteStore struct {
	db   *sql.DB
	lock *flock.Flock
}

// Open locks dataDir for exclusive use and opens the database inside it.
func Open(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	lock := flock.New(filepath.Join(dataDir, lockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock data dir: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", dataDir, ErrLocked)
	}

	s, err := NewSQLiteStore(filepath.Join(dataDir, dbFile))
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	s.lock = lock
	return s, nil
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database and releases the data directory lock.
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if s.lock != nil {
		if uerr := s.lock.Unlock(); uerr != nil && err == nil {
			err = fmt.Errorf("unlock data dir: %w", uerr)
		}
	}
	return err
}

// CreateJob inserts a queued job together with its providers and tests.
func (s *SQLiteStore) CreateJob(ctx context.Context, id string, p plan.ExecutionPlan, createdAt time.Time) error {
	encoded, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO jobs (id, status, mode, rounds, test_count, plan, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, StatusQueued, string(p.Config.Mode), p.Config.Rounds, len(p.Tests), encoded, createdAt.UTC(),
	); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	for i, prov := range p.Providers {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO providers (job_id, position, provider_id, name, url, region) VALUES (?, ?, ?, ?, ?, ?)`,
			id, i, prov.ID, prov.Name, prov.URL, prov.Region,
		); err != nil {
			return fmt.Errorf("insert provider %s: %w", prov.ID, err)
		}
	}
	for _, t := range p.Tests {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tests_executed (job_id, test_id, name, method, category, label) VALUES (?, ?, ?, ?, ?, ?)`,
			id, t.ID, t.Name, t.Method, string(t.Category), string(t.Label),
		); err != nil {
			return fmt.Errorf("insert test %d: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit job: %w", err)
	}
	return nil
}

// MarkRunning records that the job has started.
func (s *SQLiteStore) MarkRunning(ctx context.Context, id string, startedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, started_at = ? WHERE id = ?",
		StatusRunning, startedAt.UTC(), id,
	)
	return checkAffected(res, err, "mark job running")
}

// FinishJob stores the terminal state of a run.
func (s *SQLiteStore) FinishJob(ctx context.Context, id string, r runner.Report) error {
	var errMsg sql.NullString
	if r.Error != "" {
		errMsg = sql.NullString{String: r.Error, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, duration_s = ?, started_at = COALESCE(started_at, ?), finished_at = ?
		WHERE id = ?`,
		string(r.Status), errMsg, r.DurationSeconds(), r.StartedAt.UTC(), r.FinishedAt.UTC(), id,
	)
	return checkAffected(res, err, "finish job")
}

// GetJob retrieves a job and its providers by ID.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*Job, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, selectJob+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if j.Providers, err = s.providers(ctx, id); err != nil {
		return nil, err
	}
	return j, nil
}

// ListJobs returns a page of jobs ordered newest first, along with the total count.
func (s *SQLiteStore) ListJobs(ctx context.Context, limit, offset int) ([]*Job, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	rows, err := tx.QueryContext(ctx, selectJob+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, total, nil
}

// Plan returns the execution plan a job was submitted with.
func (s *SQLiteStore) Plan(ctx context.Context, id string) (plan.ExecutionPlan, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, "SELECT plan FROM jobs WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return plan.ExecutionPlan{}, ErrNotFound
	}
	if err != nil {
		return plan.ExecutionPlan{}, fmt.Errorf("get plan: %w", err)
	}
	var p plan.ExecutionPlan
	if err := json.Unmarshal(raw, &p); err != nil {
		return plan.ExecutionPlan{}, fmt.Errorf("decode plan: %w", err)
	}
	return p, nil
}

// DeleteJob removes a finished job and everything recorded for it.
func (s *SQLiteStore) DeleteJob(ctx context.Context, id string) error {
	j, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if !j.Finished() {
		return ErrJobActive
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	for _, table := range []string{"samples", "load_results", "tests_executed", "providers"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE job_id = ?", id); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// RecordSample appends one sequential sample.
func (s *SQLiteStore) RecordSample(ctx context.Context, jobID string, sm metrics.Sample) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO samples (
			job_id, provider_id, test_id, round, round_type, latency_ms, success,
			error_kind, error_message, http_status, response_size, attempts, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		jobID, sm.ProviderID, sm.TestID, sm.Round, string(sm.RoundType), sm.LatencyMs, sm.Success,
		string(sm.ErrorKind), sm.ErrorMessage, sm.HTTPStatus, sm.ResponseSize, sm.Attempts, sm.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// RecordBurst appends one load burst result.
func (s *SQLiteStore) RecordBurst(ctx context.Context, jobID string, b metrics.LoadBurstResult) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode burst: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO load_results (
			job_id, provider_id, test_id, concurrency, throughput_rps, success_count, error_count, payload, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		jobID, b.ProviderID, b.TestID, b.Concurrency, b.ThroughputRPS, b.SuccessCount, b.ErrorCount, payload, b.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert burst: %w", err)
	}
	return nil
}

// Samples returns a job's samples in recording order.
func (s *SQLiteStore) Samples(ctx context.Context, jobID string) ([]metrics.Sample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider_id, test_id, round, round_type, latency_ms, success,
			error_kind, error_message, http_status, response_size, attempts, recorded_at
		FROM samples WHERE job_id = ? ORDER BY seq`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	var out []metrics.Sample
	for rows.Next() {
		var (
			sm        metrics.Sample
			roundType string
			kind      sql.NullString
			msg       sql.NullString
		)
		if err := rows.Scan(
			&sm.ProviderID, &sm.TestID, &sm.Round, &roundType, &sm.LatencyMs, &sm.Success,
			&kind, &msg, &sm.HTTPStatus, &sm.ResponseSize, &sm.Attempts, &sm.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		sm.RoundType = plan.RoundType(roundType)
		sm.ErrorKind = jsonrpc.ErrorKind(kind.String)
		sm.ErrorMessage = msg.String
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return out, nil
}

// Bursts returns a job's load burst results in recording order.
func (s *SQLiteStore) Bursts(ctx context.Context, jobID string) ([]metrics.LoadBurstResult, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT payload FROM load_results WHERE job_id = ? ORDER BY seq", jobID)
	if err != nil {
		return nil, fmt.Errorf("list bursts: %w", err)
	}
	defer rows.Close()

	var out []metrics.LoadBurstResult
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan burst: %w", err)
		}
		var b metrics.LoadBurstResult
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("decode burst: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bursts: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) providers(ctx context.Context, jobID string) ([]plan.Provider, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT provider_id, name, url, region FROM providers WHERE job_id = ? ORDER BY position", jobID)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()

	var out []plan.Provider
	for rows.Next() {
		var (
			p            plan.Provider
			name, region sql.NullString
		)
		if err := rows.Scan(&p.ID, &name, &p.URL, &region); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		p.Name, p.Region = name.String, region.String
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate providers: %w", err)
	}
	return out, nil
}

const selectJob = `SELECT id, status, mode, rounds, test_count, error, duration_s, created_at, started_at, finished_at FROM jobs`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*Job, error) {
	var (
		j                 Job
		mode, errMsg      sql.NullString
		duration          sql.NullFloat64
		started, finished sql.NullTime
	)
	if err := row.Scan(&j.ID, &j.Status, &mode, &j.Rounds, &j.TestCount, &errMsg, &duration, &j.CreatedAt, &started, &finished); err != nil {
		return nil, err
	}
	j.Mode, j.Error = mode.String, errMsg.String
	if duration.Valid {
		j.DurationSeconds = &duration.Float64
	}
	if started.Valid {
		j.StartedAt = &started.Time
	}
	if finished.Valid {
		j.FinishedAt = &finished.Time
	}
	return &j, nil
}

func checkAffected(res sql.Result, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
