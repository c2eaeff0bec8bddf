package database

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

	"github.com/nao1215/krk/internal/model"
)

// DBFileName is the name of the history database file.
const DBFileName = "krk.db"

// ErrRunNotFound is returned when no run matches the requested ID.
var ErrRunNotFound = errors.New("run not found")

// RunStatus is the state of a recorded run.
type RunStatus string

const (
	// StatusRunning marks a run that has not finished (or crashed).
	StatusRunning RunStatus = "running"
	// StatusSucceeded marks a run that processed every page.
	StatusSucceeded RunStatus = "succeeded"
	// StatusFailed marks a run that stopped with an error.
	StatusFailed RunStatus = "failed"
)

// RunDB stores runs and their extracted pages.
type RunDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures RunDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the history database in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*RunDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("database not found at %s (run a scrape with --save first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rdb := &RunDB{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := rdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return rdb, nil
}

// Close closes the database connection.
func (r *RunDB) Close() error {
	return r.db.Close()
}

// Path returns the database file path.
func (r *RunDB) Path() string {
	return r.dbPath
}

func (r *RunDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		page_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		fetched_at TEXT NOT NULL,
		result_json TEXT NOT NULL,
		UNIQUE(run_id, position)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_run ON pages(run_id);
	`

	_, err := r.db.ExecContext(context.Background(), schema)
	return err
}

// Run is a recorded scrape run.
type Run struct {
	ID         string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	PageCount  int
	Status     RunStatus
	Error      string
}

// BeginRun records the start of a run and returns it with a fresh ID.
func (r *RunDB) BeginRun(ctx context.Context, source string) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Source:    source,
		StartedAt: time.Now().UTC(),
		Status:    StatusRunning,
	}

	query := `INSERT INTO runs (id, source, started_at, status) VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, run.ID, run.Source, formatTimestamp(run.StartedAt), string(run.Status)); err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	return run, nil
}

// InsertPage stores the extraction result of one page.
func (r *RunDB) InsertPage(ctx context.Context, runID string, page model.Page) error {
	resultJSON, err := json.Marshal(page.Tree)
	if err != nil {
		return fmt.Errorf("failed to serialize result: %w", err)
	}

	query := `
	INSERT INTO pages (run_id, position, url, fetched_at, result_json)
	VALUES (?, ?, ?, ?, ?)
	`
	if _, err := r.db.ExecContext(ctx, query, runID, page.Position, page.URL,
		formatTimestamp(page.FetchedAt), string(resultJSON)); err != nil {
		return fmt.Errorf("failed to insert page: %w", err)
	}
	return nil
}

// FinishRun marks a run as finished. A nil runErr marks it succeeded.
func (r *RunDB) FinishRun(ctx context.Context, runID string, runErr error) error {
	status, message := StatusSucceeded, ""
	if runErr != nil {
		status, message = StatusFailed, runErr.Error()
	}

	query := `
	UPDATE runs SET
		finished_at = ?,
		status = ?,
		error = ?,
		page_count = (SELECT COUNT(*) FROM pages WHERE run_id = ?)
	WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, query, formatTimestamp(time.Now().UTC()), string(status), message, runID, runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
// A limit of zero or less returns every run.
func (r *RunDB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `
	SELECT id, source, started_at, COALESCE(finished_at, ''), page_count, status, error
	FROM runs
	ORDER BY started_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRun returns the run with the given ID. A unique ID prefix is accepted.
func (r *RunDB) GetRun(ctx context.Context, id string) (*Run, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty ID", ErrRunNotFound)
	}
	// The prefix is compared literally; LIKE would treat % and _ as wildcards.
	query := `
	SELECT id, source, started_at, COALESCE(finished_at, ''), page_count, status, error
	FROM runs
	WHERE id = ? OR substr(id, 1, length(?)) = ?
	LIMIT 2
	`
	rows, err := r.db.QueryContext(ctx, query, id, id, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	var found []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		if run.ID == id {
			return run, nil
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: %q matches more than one run", ErrRunNotFound, id)
	}
}

// GetRunPages returns the pages of a run in fetch order.
func (r *RunDB) GetRunPages(ctx context.Context, runID string) ([]model.Page, error) {
	query := `
	SELECT position, url, fetched_at, result_json
	FROM pages
	WHERE run_id = ?
	ORDER BY position
	`
	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	var pages []model.Page
	for rows.Next() {
		var (
			page       model.Page
			fetchedAt  string
			resultJSON string
		)
		if err := rows.Scan(&page.Position, &page.URL, &fetchedAt, &resultJSON); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		page.FetchedAt = parseTimestamp(fetchedAt)
		if err := json.Unmarshal([]byte(resultJSON), &page.Tree); err != nil {
			return nil, fmt.Errorf("failed to deserialize result of %s: %w", page.URL, err)
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

// Recorder returns a pipeline recorder storing pages under runID.
func (r *RunDB) Recorder(runID string) *Recorder {
	return &Recorder{db: r, runID: runID}
}

// Recorder stores the pages of one run as they are produced.
type Recorder struct {
	db    *RunDB
	runID string
}

// RecordPage stores page under the recorder's run.
func (rec *Recorder) RecordPage(ctx context.Context, page model.Page) error {
	return rec.db.InsertPage(ctx, rec.runID, page)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		startedAt  string
		finishedAt string
		status     string
	)
	if err := row.Scan(&run.ID, &run.Source, &startedAt, &finishedAt, &run.PageCount, &status, &run.Error); err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	run.StartedAt = parseTimestamp(startedAt)
	run.FinishedAt = parseTimestamp(finishedAt)
	run.Status = RunStatus(status)
	return &run, nil
}

// timestampFormats contains the timestamp formats accepted when reading.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// timestampLayout is fixed-width so stored timestamps sort lexicographically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
