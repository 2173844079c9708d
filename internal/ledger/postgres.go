package ledger

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harrison/briefflow/internal/models"
)

//go:embed postgres_schema.sql
var postgresSchemaSQL string

// Postgres is the ledger backend for shared deployments.
type Postgres struct {
	pool  *pgxpool.Pool
	locks runLocks
}

// OpenPostgres connects to dsn and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (p *Postgres) CreateRun(ctx context.Context, state *models.RunState) error {
	unlock := p.locks.lock(state.RunID)
	defer unlock()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO runs (run_id, workflow, fingerprint, status, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		state.RunID, state.Workflow, state.Fingerprint, string(state.Status), state.StartedAt.UTC(), nullTime(state.FinishedAt))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for _, r := range state.Results {
		if err := pgUpsertResult(ctx, tx, state.RunID, r); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

func (p *Postgres) Record(ctx context.Context, runID string, result *models.TaskResult) error {
	unlock := p.locks.lock(runID)
	defer unlock()
	return pgUpsertResult(ctx, p.pool, runID, result)
}

func pgUpsertResult(ctx context.Context, db pgExecer, runID string, r *models.TaskResult) error {
	artifact, err := models.MarshalArtifact(r.Artifact)
	if err != nil {
		return fmt.Errorf("marshal artifact of %s: %w", r.TaskName, err)
	}
	_, err = db.Exec(ctx, `
		INSERT INTO task_results (run_id, task_name, status, artifact, error, error_class, attempts, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id, task_name) DO UPDATE SET
			status = EXCLUDED.status,
			artifact = EXCLUDED.artifact,
			error = EXCLUDED.error,
			error_class = EXCLUDED.error_class,
			attempts = EXCLUDED.attempts,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at`,
		runID, r.TaskName, string(r.Status), jsonArg(artifact), r.Error, r.ErrorClass, r.Attempts,
		nullTime(r.StartedAt), nullTime(r.FinishedAt))
	if err != nil {
		return fmt.Errorf("record %s: %w", r.TaskName, err)
	}
	return nil
}

func (p *Postgres) SetRunStatus(ctx context.Context, runID string, status models.RunStatus, finishedAt time.Time) error {
	unlock := p.locks.lock(runID)
	defer unlock()

	tag, err := p.pool.Exec(ctx, `UPDATE runs SET status = $2, finished_at = $3 WHERE run_id = $1`,
		runID, string(status), nullTime(finishedAt))
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

const pgRunColumns = `run_id, workflow, fingerprint, status, started_at, finished_at`

func (p *Postgres) Load(ctx context.Context, runID string) (*models.RunState, error) {
	info, err := pgScanRunInfo(p.pool.QueryRow(ctx, `SELECT `+pgRunColumns+` FROM runs WHERE run_id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return p.loadResults(ctx, info)
}

func (p *Postgres) LatestRun(ctx context.Context, workflow string) (*models.RunState, error) {
	info, err := pgScanRunInfo(p.pool.QueryRow(ctx, `
		SELECT `+pgRunColumns+` FROM runs WHERE workflow = $1
		ORDER BY started_at DESC, run_id DESC LIMIT 1`, workflow))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no runs of workflow %s: %w", workflow, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return p.loadResults(ctx, info)
}

func (p *Postgres) loadResults(ctx context.Context, info RunInfo) (*models.RunState, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT task_name, status, artifact, error, error_class, attempts, started_at, finished_at
		FROM task_results WHERE run_id = $1`, info.RunID)
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
			started, finished *time.Time
		)
		if err := rows.Scan(&r.TaskName, &status, &artifact, &r.Error, &r.ErrorClass, &r.Attempts, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Status = models.TaskStatus(status)
		if r.Artifact, err = models.UnmarshalArtifact(artifact); err != nil {
			return nil, fmt.Errorf("decode artifact of %s: %w", r.TaskName, err)
		}
		r.StartedAt = derefTime(started)
		r.FinishedAt = derefTime(finished)
		state.Results[r.TaskName] = &r
	}
	return state, rows.Err()
}

func (p *Postgres) ListRuns(ctx context.Context, workflow string, limit int) ([]RunInfo, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+pgRunColumns+` FROM runs
		WHERE ($1::text = '' OR workflow = $1::text)
		ORDER BY started_at DESC, run_id DESC
		LIMIT NULLIF($2::bigint, 0)`, workflow, max(limit, 0))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		info, err := pgScanRunInfo(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

func pgScanRunInfo(row pgx.Row) (RunInfo, error) {
	var (
		info     RunInfo
		status   string
		finished *time.Time
	)
	if err := row.Scan(&info.RunID, &info.Workflow, &info.Fingerprint, &status, &info.StartedAt, &finished); err != nil {
		return RunInfo{}, err
	}
	info.Status = models.RunStatus(status)
	info.StartedAt = info.StartedAt.UTC()
	info.FinishedAt = derefTime(finished)
	return info, nil
}

func (p *Postgres) SaveCheckpoint(ctx context.Context, cp *models.ReviewCheckpoint) error {
	unlock := p.locks.lock(cp.RunID)
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
	_, err = p.pool.Exec(ctx, `
		INSERT INTO review_checkpoints (id, run_id, task_name, proposed, decision, payload, created_at, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		cp.ID, cp.RunID, cp.TaskName, jsonArg(proposed), string(decision), jsonArg(payload),
		cp.CreatedAt.UTC(), nullTime(cp.DecidedAt))
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

func (p *Postgres) ResolveCheckpoint(ctx context.Context, id string, decision models.Decision, payload models.Artifact, decidedAt time.Time) (*models.ReviewCheckpoint, error) {
	data, err := models.MarshalArtifact(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE review_checkpoints SET decision = $2, payload = $3, decided_at = $4
		WHERE id = $1 AND decision = 'pending'`,
		id, string(decision), jsonArg(data), nullTime(decidedAt))
	if err != nil {
		return nil, fmt.Errorf("resolve checkpoint: %w", err)
	}

	cp, err := p.GetCheckpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return cp, fmt.Errorf("checkpoint %s (%s): %w", id, cp.Decision, ErrAlreadyDecided)
	}
	return cp, nil
}

const pgCheckpointColumns = `id, run_id, task_name, proposed, decision, payload, created_at, decided_at`

func (p *Postgres) GetCheckpoint(ctx context.Context, id string) (*models.ReviewCheckpoint, error) {
	cp, err := pgScanCheckpoint(p.pool.QueryRow(ctx, `SELECT `+pgCheckpointColumns+` FROM review_checkpoints WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("checkpoint %s: %w", id, ErrNotFound)
	}
	return cp, err
}

func (p *Postgres) ListCheckpoints(ctx context.Context, runID string, pendingOnly bool) ([]*models.ReviewCheckpoint, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+pgCheckpointColumns+` FROM review_checkpoints
		WHERE ($1::text = '' OR run_id = $1::text)
		  AND (NOT $2::boolean OR decision = 'pending')
		ORDER BY created_at, id`, runID, pendingOnly)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*models.ReviewCheckpoint
	for rows.Next() {
		cp, err := pgScanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func pgScanCheckpoint(row pgx.Row) (*models.ReviewCheckpoint, error) {
	var (
		cp                models.ReviewCheckpoint
		proposed, payload []byte
		decision          string
		decided           *time.Time
	)
	if err := row.Scan(&cp.ID, &cp.RunID, &cp.TaskName, &proposed, &decision, &payload, &cp.CreatedAt, &decided); err != nil {
		return nil, err
	}
	cp.Decision = models.Decision(decision)
	cp.CreatedAt = cp.CreatedAt.UTC()
	cp.DecidedAt = derefTime(decided)

	var err error
	if cp.Proposed, err = models.UnmarshalArtifact(proposed); err != nil {
		return nil, fmt.Errorf("decode proposed artifact: %w", err)
	}
	if cp.Payload, err = models.UnmarshalArtifact(payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &cp, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

// jsonArg passes encoded JSON to a JSONB column; nil becomes SQL NULL.
func jsonArg(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
