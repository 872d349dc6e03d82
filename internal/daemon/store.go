package daemon

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Job states.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// Store manages daemon state in SQLite.
type Store struct {
	DBPath string
	db     *sql.DB
}

// Job represents a queued or running daemon job.
type Job struct {
	ID             string     `json:"id"`
	Type           string     `json:"type"`
	Status         string     `json:"status"`
	ScheduledAt    time.Time  `json:"scheduled_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	PayloadJSON    string     `json:"payload,omitempty"`
	ResultJSON     string     `json:"result,omitempty"`
	LeaseOwner     string     `json:"lease_owner,omitempty"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
}

// Run represents one daemon process lifetime.
type Run struct {
	ID          string     `json:"id"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Status      string     `json:"status"`
	SummaryJSON string     `json:"summary,omitempty"`
}

// Open opens or creates the daemon state database.
func Open(path string) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve daemon db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure daemon db dir: %w", err)
	}

	db, err := sql.Open("sqlite", absPath)
	if err != nil {
		return nil, fmt.Errorf("open daemon db: %w", err)
	}
	// claims run in a single transaction; one connection keeps them serialized
	db.SetMaxOpenConns(1)

	store := &Store{
		DBPath: absPath,
		db:     db,
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := store.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) ensureSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS daemon_runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	status TEXT NOT NULL,
	summary_json TEXT
);

CREATE TABLE IF NOT EXISTS daemon_jobs (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	scheduled_at TEXT NOT NULL,
	started_at TEXT,
	finished_at TEXT,
	payload_json TEXT,
	result_json TEXT,
	lease_owner TEXT,
	lease_expires_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_jobs_status_scheduled ON daemon_jobs(status, scheduled_at);
CREATE INDEX IF NOT EXISTS idx_jobs_type_scheduled ON daemon_jobs(type, scheduled_at);

CREATE TABLE IF NOT EXISTS daemon_kv (
	key TEXT PRIMARY KEY,
	value TEXT
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create daemon schema: %w", err)
	}
	return nil
}

// EnqueueUnique enqueues a job if no job with the same type and scheduled_at exists.
// It returns the job id and whether a new job was inserted.
func (s *Store) EnqueueUnique(jobType string, scheduledAt time.Time, payload any) (string, bool, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", false, fmt.Errorf("marshal payload: %w", err)
	}

	scheduledAtStr := formatTime(scheduledAt)
	jobID := fmt.Sprintf("%s_%s", jobType, scheduledAt.UTC().Format("2006-01-02T15:04:05"))

	var existingID string
	err = s.db.QueryRow(
		"SELECT id FROM daemon_jobs WHERE type = ? AND scheduled_at = ?",
		jobType, scheduledAtStr,
	).Scan(&existingID)
	if err == nil {
		return existingID, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("check existing job: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO daemon_jobs (id, type, status, scheduled_at, payload_json)
		VALUES (?, ?, ?, ?, ?)
	`, jobID, jobType, JobQueued, scheduledAtStr, string(payloadJSON))
	if err != nil {
		return "", false, fmt.Errorf("insert job: %w", err)
	}

	return jobID, true, nil
}

// ClaimNext atomically claims the next queued job that is ready to run.
// It returns nil when nothing is due.
func (s *Store) ClaimNext(now time.Time, leaseOwner string, leaseFor time.Duration) (*Job, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var jobID string
	err = tx.QueryRow(`
		SELECT id FROM daemon_jobs
		WHERE status = ? AND scheduled_at <= ?
		ORDER BY scheduled_at ASC
		LIMIT 1
	`, JobQueued, formatTime(now)).Scan(&jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find next job: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE daemon_jobs
		SET status = ?,
		    started_at = ?,
		    lease_owner = ?,
		    lease_expires_at = ?
		WHERE id = ?
	`, JobRunning, formatTime(now), leaseOwner, formatTime(now.Add(leaseFor)), jobID)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return s.GetJob(jobID)
}

// ReclaimExpired requeues running jobs whose lease expired before now, e.g. after
// a crash. It returns the number of jobs requeued.
func (s *Store) ReclaimExpired(now time.Time) (int, error) {
	res, err := s.db.Exec(`
		UPDATE daemon_jobs
		SET status = ?, lease_owner = NULL, lease_expires_at = NULL, started_at = NULL
		WHERE status = ? AND lease_expires_at < ?
	`, JobQueued, JobRunning, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("reclaim expired jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reclaim expired jobs: %w", err)
	}
	return int(n), nil
}

const jobColumns = `id, type, status, scheduled_at, started_at, finished_at,
       payload_json, result_json, lease_owner, lease_expires_at`

// GetJob retrieves a job by ID.
func (s *Store) GetJob(jobID string) (*Job, error) {
	row := s.db.QueryRow("SELECT "+jobColumns+" FROM daemon_jobs WHERE id = ?", jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Succeed marks a job as succeeded.
func (s *Store) Succeed(jobID string, result any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return s.finish(jobID, JobSucceeded, string(resultJSON))
}

// Fail marks a job as failed.
func (s *Store) Fail(jobID string, jobErr error) error {
	resultJSON, _ := json.Marshal(map[string]string{"error": jobErr.Error()})
	return s.finish(jobID, JobFailed, string(resultJSON))
}

func (s *Store) finish(jobID, state, resultJSON string) error {
	_, err := s.db.Exec(`
		UPDATE daemon_jobs
		SET status = ?,
		    finished_at = ?,
		    result_json = ?,
		    lease_expires_at = NULL
		WHERE id = ?
	`, state, formatTime(time.Now()), resultJSON, jobID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// ListJobs returns up to limit jobs, newest scheduled first.
func (s *Store) ListJobs(limit int) ([]Job, error) {
	return s.queryJobs("SELECT "+jobColumns+" FROM daemon_jobs ORDER BY scheduled_at DESC LIMIT ?", limit)
}

// ListRunning returns all jobs with status running.
func (s *Store) ListRunning() ([]Job, error) {
	return s.queryJobs("SELECT "+jobColumns+" FROM daemon_jobs WHERE status = ? ORDER BY scheduled_at ASC", JobRunning)
}

// ListQueued returns queued jobs ordered by scheduled_at.
func (s *Store) ListQueued(limit int) ([]Job, error) {
	return s.queryJobs("SELECT "+jobColumns+" FROM daemon_jobs WHERE status = ? ORDER BY scheduled_at ASC LIMIT ?", JobQueued, limit)
}

// ListRecentCompleted returns recently finished jobs, succeeded or failed.
func (s *Store) ListRecentCompleted(limit int) ([]Job, error) {
	return s.queryJobs("SELECT "+jobColumns+" FROM daemon_jobs WHERE status IN (?, ?) ORDER BY finished_at DESC LIMIT ?",
		JobSucceeded, JobFailed, limit)
}

func (s *Store) queryJobs(query string, args ...any) ([]Job, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var scheduledAt, startedAt, finishedAt, leaseExpiresAt sql.NullString
	var payloadJSON, resultJSON, leaseOwner sql.NullString

	if err := row.Scan(
		&job.ID, &job.Type, &job.Status, &scheduledAt,
		&startedAt, &finishedAt, &payloadJSON, &resultJSON,
		&leaseOwner, &leaseExpiresAt,
	); err != nil {
		return nil, err
	}

	if scheduledAt.Valid {
		job.ScheduledAt, _ = time.Parse(time.RFC3339, scheduledAt.String)
	}
	job.StartedAt = parseOptional(startedAt)
	job.FinishedAt = parseOptional(finishedAt)
	job.LeaseExpiresAt = parseOptional(leaseExpiresAt)
	job.PayloadJSON = payloadJSON.String
	job.ResultJSON = resultJSON.String
	job.LeaseOwner = leaseOwner.String
	return &job, nil
}

// StartRun records the start of a daemon process.
func (s *Store) StartRun(now time.Time) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		"INSERT INTO daemon_runs (id, started_at, status) VALUES (?, ?, ?)",
		id, formatTime(now), JobRunning,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun closes a run record with a summary.
func (s *Store) FinishRun(id string, now time.Time, state string, summary any) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	_, err = s.db.Exec(
		"UPDATE daemon_runs SET finished_at = ?, status = ?, summary_json = ? WHERE id = ?",
		formatTime(now), state, string(summaryJSON), id,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// LastRun returns the most recently started run, or nil when the daemon never ran.
func (s *Store) LastRun() (*Run, error) {
	var run Run
	var startedAt string
	var finishedAt, summary sql.NullString
	err := s.db.QueryRow(`
		SELECT id, started_at, finished_at, status, summary_json
		FROM daemon_runs
		ORDER BY started_at DESC
		LIMIT 1
	`).Scan(&run.ID, &startedAt, &finishedAt, &run.Status, &summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last run: %w", err)
	}
	run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	run.FinishedAt = parseOptional(finishedAt)
	run.SummaryJSON = summary.String
	return &run, nil
}

// GetKV retrieves a value from the key-value store.
func (s *Store) GetKV(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM daemon_kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get kv: %w", err)
	}
	return value, nil
}

// SetKV sets a value in the key-value store.
func (s *Store) SetKV(key, value string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO daemon_kv (key, value)
		VALUES (?, ?)
	`, key, value)
	if err != nil {
		return fmt.Errorf("set kv: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseOptional(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil
	}
	return &t
}
