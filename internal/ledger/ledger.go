// Package ledger persists run state and review checkpoints so that a run can
// be inspected, suspended, and resumed across processes.
package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/harrison/briefflow/internal/models"
)

var (
	// ErrNotFound is returned when a run or checkpoint does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyDecided is returned when a decision targets a checkpoint that is no longer pending.
	ErrAlreadyDecided = errors.New("checkpoint already decided")
)

// RunInfo summarizes a run without its task results.
type RunInfo struct {
	RunID       string
	Workflow    string
	Fingerprint string
	Status      models.RunStatus
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Ledger is the durable record of runs. Every task result transition is
// written before the orchestrator acts on it.
type Ledger interface {
	// CreateRun inserts a run and one result row per task.
	CreateRun(ctx context.Context, state *models.RunState) error
	// Record inserts or replaces the result of one task.
	Record(ctx context.Context, runID string, result *models.TaskResult) error
	// SetRunStatus updates the overall status. A zero finishedAt clears it.
	SetRunStatus(ctx context.Context, runID string, status models.RunStatus, finishedAt time.Time) error
	// Load returns the run with all task results. Spec is not attached.
	Load(ctx context.Context, runID string) (*models.RunState, error)
	// LatestRun returns the most recently started run of a workflow.
	LatestRun(ctx context.Context, workflow string) (*models.RunState, error)
	// ListRuns returns runs newest first. An empty workflow lists all runs;
	// limit <= 0 means no limit.
	ListRuns(ctx context.Context, workflow string, limit int) ([]RunInfo, error)

	// SaveCheckpoint persists a new checkpoint.
	SaveCheckpoint(ctx context.Context, cp *models.ReviewCheckpoint) error
	// ResolveCheckpoint records a decision only if the checkpoint is still
	// pending; otherwise it returns ErrAlreadyDecided.
	ResolveCheckpoint(ctx context.Context, id string, decision models.Decision, payload models.Artifact, decidedAt time.Time) (*models.ReviewCheckpoint, error)
	GetCheckpoint(ctx context.Context, id string) (*models.ReviewCheckpoint, error)
	// ListCheckpoints returns checkpoints oldest first. An empty runID lists
	// checkpoints of every run.
	ListCheckpoints(ctx context.Context, runID string, pendingOnly bool) ([]*models.ReviewCheckpoint, error)

	Close() error
}

// Open selects a backend from the DSN: postgres:// and postgresql:// URLs use
// PostgreSQL, anything else is a SQLite path (":memory:" included).
func Open(ctx context.Context, dsn string) (Ledger, error) {
	if IsPostgres(dsn) {
		return OpenPostgres(ctx, dsn)
	}
	return OpenSQLite(strings.TrimPrefix(dsn, "sqlite://"))
}

// IsPostgres reports whether dsn names a PostgreSQL database.
func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// runLocks serializes writes per run id.
type runLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (r *runLocks) lock(runID string) func() {
	r.mu.Lock()
	if r.locks == nil {
		r.locks = make(map[string]*sync.Mutex)
	}
	l, ok := r.locks[runID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[runID] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}
