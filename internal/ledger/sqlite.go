package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/briefflow/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite is the default ledger backend.
type SQLite struct {
	db     *sql.DB
	dbPath string
	locks  runLocks
}

// OpenSQLite opens (creating if needed) a SQLite ledger at dbPath.
func OpenSQLite(dbPath string) (*SQLite, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Pragmas go in the DSN so every pooled connection gets them; busy_timeout
	// must be set before any statement can hit a lock.
	dsn := "file:" + dbPath + "?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := execWithRetry(db, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &SQLite{db: db, dbPath: dbPath}, nil
}

// execWithRetry retries "database is locked" errors, which occur when two
// processes initialize the same file at once.
func execWithRetry(db *sql.DB, stmt string) error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(10*time.Millisecond),
	), 5)
	return backoff.Retry(func() error {
		_, err := db.Exec(stmt)
		if err != nil && !strings.Contains(err.Error(), "database is locked") {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

// Path returns the database path.
func (s *SQLite) Path() string { return s.dbPath }

// Close closes the database connection
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLite) CreateRun(ctx context.Context, state *models.RunState) error {
	unlock := s.locks.lock(state.RunID)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, workflow, fingerprint, status, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?)`,
		state.RunID, state.Workflow, state.Fingerprint, string(state.Status), formatTime(state.StartedAt), formatTime(state.FinishedAt))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for _, r := range state.Results {
		if err := upsertResult(ctx, tx, state.RunID, r); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

func (s *SQLite) Record(ctx context.Context, runID string, result *models.TaskResult) error {
	unlock := s.locks.lock(runID)
	defer unlock()
	return upsertResult(ctx, s.db, runID, result)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertResult(ctx context.Context, db execer, runID string, r *models.TaskResult) error {
	artifact, err := models.MarshalArtifact(r.Artifact)
	if err != nil {
		return fmt.Errorf("marshal artifact of %s: %w", r.TaskName, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO task_results (run_id, task_name, status, artifact, error, error_class, attempts, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, task_name) DO UPDATE SET
			status = excluded.status,
			artifact = excluded.artifact,
			error = excluded.error,
			error_class = excluded.error_class,
			attempts = excluded.attempts,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at`,
		runID, r.TaskName, string(r.Status), nullBytes(artifact), r.Error, r.ErrorClass, r.Attempts,
		formatTime(r.StartedAt), formatTime(r.FinishedAt))
	if err != nil {
		return fmt.Errorf("record %s: %w", r.TaskName, err)
	}
	return nil
}

func (s *SQLite) SetRunStatus(ctx context.Context, runID string, status models.RunStatus, finishedAt time.Time) error {
	unlock := s.locks.lock(runID)
	defer unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE runs SET status = ?, finished_at = ? WHERE run_id = ?`,
		string(status), formatTime(finishedAt), runID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context, runID string) (*models.RunState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, workflow, fingerprint, status, started_at, finished_at FROM runs WHERE run_id = ?`, runID)
	info, err := scanRunInfo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s.loadResults(ctx, info)
}

func (s *SQLite) LatestRun(ctx context.Context, workflow string) (*models.RunState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, workflow, fingerprint, status, started_at, finished_at
		FROM runs WHERE workflow = ?
		ORDER BY started_at DESC, rowid DESC LIMIT 1`, workflow)
	info, err := scanRunInfo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no runs of workflow %s: %w", workflow, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return s.loadResults(ctx, info)
}

func (s *SQLite) loadResults(ctx context.Context, info RunInfo) (*models.RunState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_name, status, artifact, error, error_class, attempts, started_at, finished_at
		FROM task_results WHERE run_id = ?`, info.RunID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	state := &models.RunState{
		RunID:       info.RunID,
		Workflow:    info.Workflow,
		Fingerprint: info.Fingerprint,
		Status:      info.Status,
		StartedAt:   info.StartedAt,
		FinishedAt:  info.FinishedAt,
		Results:     make(map[string]*models.TaskResult),
	}
	for rows.Next() {
		var (
			r                 models.TaskResult
			status            string
			artifact          []byte
			started, finished sql.NullString
		)
		if err := rows.Scan(&r.TaskName, &status, &artifact, &r.Error, &r.ErrorClass, &r.Attempts, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Status = models.TaskStatus(status)
		if r.Artifact, err = models.UnmarshalArtifact(artifact); err != nil {
			return nil, fmt.Errorf("decode artifact of %s: %w", r.TaskName, err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		state.Results[r.TaskName] = &r
	}
	return state, rows.Err()
}

func (s *SQLite) ListRuns(ctx context.Context, workflow string, limit int) ([]RunInfo, error) {
	query := `SELECT run_id, workflow, fingerprint, status, started_at, finished_at FROM runs`
	var args []any
	if workflow != "" {
		query += ` WHERE workflow = ?`
		args = append(args, workflow)
	}
	query += ` ORDER BY started_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		info, err := scanRunInfo(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRunInfo(row scanner) (RunInfo, error) {
	var (
		info              RunInfo
		status            string
		started, finished sql.NullString
	)
	if err := row.Scan(&info.RunID, &info.Workflow, &info.Fingerprint, &status, &started, &finished); err != nil {
		return RunInfo{}, err
	}
	info.Status = models.RunStatus(status)
	var err error
	if info.StartedAt, err = parseTime(started); err != nil {
		return RunInfo{}, err
	}
	if info.FinishedAt, err = parseTime(finished); err != nil {
		return RunInfo{}, err
	}
	return info, nil
}

func (s *SQLite) SaveCheckpoint(ctx context.Context, cp *models.ReviewCheckpoint) error {
	unlock := s.locks.lock(cp.RunID)
	defer unlock()

	proposed, err := models.MarshalArtifact(cp.Proposed)
	if err != nil {
		return fmt.Errorf("marshal proposed artifact: %w", err)
	}
	payload, err := models.MarshalArtifact(cp.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	decision := cp.Decision
	if decision == "" {
		decision = models.DecisionPending
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO review_checkpoints (id, run_id, task_name, proposed, decision, payload, created_at, decided_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.RunID, cp.TaskName, nullBytes(proposed), string(decision), nullBytes(payload),
		formatTime(cp.CreatedAt), formatTime(cp.DecidedAt))
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

func (s *SQLite) ResolveCheckpoint(ctx context.Context, id string, decision models.Decision, payload models.Artifact, decidedAt time.Time) (*models.ReviewCheckpoint, error) {
	data, err := models.MarshalArtifact(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE review_checkpoints SET decision = ?, payload = ?, decided_at = ?
		WHERE id = ? AND decision = 'pending'`,
		string(decision), nullBytes(data), formatTime(decidedAt), id)
	if err != nil {
		return nil, fmt.Errorf("resolve checkpoint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("resolve checkpoint: %w", err)
	}

	cp, err := s.GetCheckpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return cp, fmt.Errorf("checkpoint %s (%s): %w", id, cp.Decision, ErrAlreadyDecided)
	}
	return cp, nil
}

func (s *SQLite) GetCheckpoint(ctx context.Context, id string) (*models.ReviewCheckpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, task_name, proposed, decision, payload, created_at, decided_at
		FROM review_checkpoints WHERE id = ?`, id)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checkpoint %s: %w", id, ErrNotFound)
	}
	return cp, err
}

func (s *SQLite) ListCheckpoints(ctx context.Context, runID string, pendingOnly bool) ([]*models.ReviewCheckpoint, error) {
	query := `SELECT id, run_id, task_name, proposed, decision, payload, created_at, decided_at FROM review_checkpoints WHERE 1 = 1`
	var args []any
	if runID != "" {
		query += ` AND run_id = ?`
		args = append(args, runID)
	}
	if pendingOnly {
		query += ` AND decision = 'pending'`
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*models.ReviewCheckpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func scanCheckpoint(row scanner) (*models.ReviewCheckpoint, error) {
	var (
		cp                models.ReviewCheckpoint
		proposed, payload []byte
		decision          string
		created, decided  sql.NullString
	)
	if err := row.Scan(&cp.ID, &cp.RunID, &cp.TaskName, &proposed, &decision, &payload, &created, &decided); err != nil {
		return nil, err
	}
	cp.Decision = models.Decision(decision)

	var err error
	if cp.Proposed, err = models.UnmarshalArtifact(proposed); err != nil {
		return nil, fmt.Errorf("decode proposed artifact: %w", err)
	}
	if cp.Payload, err = models.UnmarshalArtifact(payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if cp.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if cp.DecidedAt, err = parseTime(decided); err != nil {
		return nil, err
	}
	return &cp, nil
}

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s.String, err)
	}
	return t, nil
}

func nullBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
