package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

// FileName is the database file created inside the history directory.
const FileName = "history.db"

// ErrNotFound is returned when no job matches an id.
var ErrNotFound = errors.New("job not found in history")

// DB is the job history store.
type DB struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Options configures Open.
type Options struct {
	// CreateIfNotExists creates the directory and database when missing.
	CreateIfNotExists bool

	// EnableWAL turns on write-ahead logging.
	EnableWAL bool
}

// DefaultOptions creates the database on demand with WAL enabled.
func DefaultOptions() Options {
	return Options{CreateIfNotExists: true, EnableWAL: true}
}

// Open opens the history database in dir and applies migrations.
func Open(dir string, opts Options) (*DB, error) {
	path := filepath.Join(dir, FileName)

	mode := "rw"
	if opts.CreateIfNotExists {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
		mode = "rwc"
	} else if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("history database not found at %s", path)
		}
		return nil, fmt.Errorf("check history path: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=%s&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", path, mode)
	if opts.EnableWAL {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, path: path, now: time.Now}, nil
}

// Close closes the database.
func (h *DB) Close() error {
	return h.db.Close()
}

// Path returns the database file path.
func (h *DB) Path() string {
	return h.path
}

// APIJob is one API job belonging to a local job, in submission order.
type APIJob struct {
	Position int
	ID       string
	Status   string
	// Counts maps hex outcome keys ("0x3") to occurrences.
	Counts map[string]int
	// Registers is the raw per-register shot data as a JSON object.
	Registers json.RawMessage
}

// Job is one local job: all circuits submitted by a single run.
type Job struct {
	LocalID     string
	Name        string
	Backend     string
	Status      string
	Shots       int
	Priority    string
	Error       string
	SubmittedAt time.Time
	CompletedAt time.Time
	UpdatedAt   time.Time
	APIJobs     []APIJob
}

// APIJobIDs returns the API job ids in order.
func (j *Job) APIJobIDs() []string {
	ids := make([]string, 0, len(j.APIJobs))
	for _, a := range j.APIJobs {
		ids = append(ids, a.ID)
	}
	return ids
}

// Filter narrows ListJobs.
type Filter struct {
	Backend string
	// Limit caps the number of jobs; zero means no limit.
	Limit int
}

// SaveJob inserts job. A missing LocalID is generated and a zero
// SubmittedAt is set to now.
func (h *DB) SaveJob(ctx context.Context, job *Job) error {
	if job.LocalID == "" {
		job.LocalID = uuid.NewString()
	}
	now := h.now().UTC()
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = now
	}
	job.UpdatedAt = now

	return h.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO jobs (local_id, name, backend, status, shots, priority, error, submitted_at, completed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			job.LocalID, job.Name, job.Backend, job.Status, job.Shots, job.Priority, job.Error,
			formatTimestamp(job.SubmittedAt), nullTimestamp(job.CompletedAt), formatTimestamp(job.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		return upsertAPIJobs(ctx, tx, job)
	})
}

// UpdateJob stores the mutable fields of job and its API jobs.
func (h *DB) UpdateJob(ctx context.Context, job *Job) error {
	job.UpdatedAt = h.now().UTC()

	return h.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, completed_at = ?, updated_at = ?
		WHERE local_id = ?`,
			job.Status, job.Error, nullTimestamp(job.CompletedAt), formatTimestamp(job.UpdatedAt), job.LocalID,
		)
		if err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, job.LocalID)
		}
		return upsertAPIJobs(ctx, tx, job)
	})
}

func upsertAPIJobs(ctx context.Context, tx *sql.Tx, job *Job) error {
	for i := range job.APIJobs {
		a := &job.APIJobs[i]
		counts, err := json.Marshal(a.Counts)
		if err != nil {
			return fmt.Errorf("encode counts: %w", err)
		}
		if a.Counts == nil {
			counts = []byte("{}")
		}
		registers := a.Registers
		if len(registers) == 0 {
			registers = json.RawMessage("{}")
		}

		_, err = tx.ExecContext(ctx, `
		INSERT INTO api_jobs (local_id, position, api_job_id, status, counts, registers)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(local_id, position) DO UPDATE SET
			api_job_id = excluded.api_job_id,
			status = CASE WHEN excluded.status = '' THEN api_jobs.status ELSE excluded.status END,
			counts = CASE WHEN excluded.counts = '{}' THEN api_jobs.counts ELSE excluded.counts END,
			registers = CASE WHEN excluded.registers = '{}' THEN api_jobs.registers ELSE excluded.registers END`,
			job.LocalID, a.Position, a.ID, a.Status, string(counts), string(registers),
		)
		if err != nil {
			return fmt.Errorf("save api job %s: %w", a.ID, err)
		}
	}
	return nil
}

// GetJob returns the job with the given local id, or the job that owns
// the given API job id.
func (h *DB) GetJob(ctx context.Context, id string) (*Job, error) {
	job, err := h.getJob(ctx, `WHERE local_id = ?`, id)
	if errors.Is(err, ErrNotFound) {
		job, err = h.getJob(ctx, `WHERE local_id = (SELECT local_id FROM api_jobs WHERE api_job_id = ? LIMIT 1)`, id)
	}
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return job, err
}

const jobColumns = `local_id, name, backend, status, shots, priority, error, submitted_at, completed_at, updated_at`

func (h *DB) getJob(ctx context.Context, where string, arg any) (*Job, error) {
	row := h.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs `+where, arg)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if err := h.loadAPIJobs(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns jobs newest first.
func (h *DB) ListJobs(ctx context.Context, f Filter) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := make([]any, 0, 2)
	if f.Backend != "" {
		query += ` AND backend = ?`
		args = append(args, f.Backend)
	}
	query += ` ORDER BY submitted_at DESC, local_id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// api_jobs are loaded after rows is closed; the pool has one connection.
	for _, job := range jobs {
		if err := h.loadAPIJobs(ctx, job); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

// DeleteJob removes a job and its API jobs.
func (h *DB) DeleteJob(ctx context.Context, localID string) error {
	res, err := h.db.ExecContext(ctx, `DELETE FROM jobs WHERE local_id = ?`, localID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, localID)
	}
	return nil
}

func (h *DB) loadAPIJobs(ctx context.Context, job *Job) error {
	rows, err := h.db.QueryContext(ctx, `
	SELECT position, api_job_id, status, counts, registers
	FROM api_jobs WHERE local_id = ? ORDER BY position`, job.LocalID)
	if err != nil {
		return fmt.Errorf("load api jobs: %w", err)
	}
	defer rows.Close()

	job.APIJobs = nil
	for rows.Next() {
		var (
			a         APIJob
			counts    string
			registers string
		)
		if err := rows.Scan(&a.Position, &a.ID, &a.Status, &counts, &registers); err != nil {
			return fmt.Errorf("scan api job: %w", err)
		}
		if err := json.Unmarshal([]byte(counts), &a.Counts); err != nil {
			return fmt.Errorf("decode counts of %s: %w", a.ID, err)
		}
		a.Registers = json.RawMessage(registers)
		job.APIJobs = append(job.APIJobs, a)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*Job, error) {
	var (
		job                Job
		submitted, updated string
		completed          sql.NullString
	)
	if err := r.Scan(&job.LocalID, &job.Name, &job.Backend, &job.Status, &job.Shots, &job.Priority, &job.Error,
		&submitted, &completed, &updated); err != nil {
		return nil, err
	}
	job.SubmittedAt = parseTimestamp(submitted)
	job.UpdatedAt = parseTimestamp(updated)
	if completed.Valid {
		job.CompletedAt = parseTimestamp(completed.String)
	}
	return &job, nil
}

func (h *DB) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// timestampLayout keeps nine fractional digits so that stored values sort
// as text in time order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// timestampFormats are tried in order by parseTimestamp. Rows written by
// this package use timestampLayout; the others cover older rows and
// values written by SQLite's own datetime functions.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// parseTimestamp returns the zero time when no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func nullTimestamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTimestamp(t)
}
