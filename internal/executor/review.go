package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/briefflow/internal/ledger"
	"github.com/harrison/briefflow/internal/models"
)

// DefaultReviewPollInterval is how often Wait checks the ledger for decisions
// submitted by another process.
const DefaultReviewPollInterval = 2 * time.Second

// ReviewGate suspends tasks flagged human_review until a decision arrives.
// Decisions may be submitted in-process or by another process sharing the ledger.
type ReviewGate struct {
	ledger       ledger.Ledger
	pollInterval time.Duration
	now          func() time.Time

	mu      sync.Mutex
	locks   map[string]*checkpointLock
	waiters map[string]*waiter
}

// checkpointLock serializes decisions on one checkpoint; refs counts holders
// and queued callers so the entry can go once nobody uses it.
type checkpointLock struct {
	sync.Mutex
	refs int
}

type waiter struct {
	ch   chan struct{}
	refs int
}

// NewReviewGate creates a gate over l. A non-positive pollInterval uses the default.
func NewReviewGate(l ledger.Ledger, pollInterval time.Duration) *ReviewGate {
	if pollInterval <= 0 {
		pollInterval = DefaultReviewPollInterval
	}
	return &ReviewGate{
		ledger:       l,
		pollInterval: pollInterval,
		now:          time.Now,
		locks:        make(map[string]*checkpointLock),
		waiters:      make(map[string]*waiter),
	}
}

// Open records a pending checkpoint for the candidate artifact of a task.
func (g *ReviewGate) Open(ctx context.Context, runID, taskName string, candidate models.Artifact) (*models.ReviewCheckpoint, error) {
	cp := &models.ReviewCheckpoint{
		ID:        uuid.NewString(),
		RunID:     runID,
		TaskName:  taskName,
		Proposed:  candidate.Clone(),
		Decision:  models.DecisionPending,
		CreatedAt: g.now().UTC(),
	}
	if err := g.ledger.SaveCheckpoint(ctx, cp); err != nil {
		return nil, fmt.Errorf("failed to open review checkpoint for %s: %w", taskName, err)
	}
	return cp, nil
}

// SubmitDecision resolves a pending checkpoint. Only the first decision wins;
// later ones fail with ErrAlreadyDecided. A modified decision requires a
// payload; for rerun the optional payload holds parameter overrides.
func (g *ReviewGate) SubmitDecision(ctx context.Context, checkpointID string, decision models.Decision, payload models.Artifact) error {
	switch decision {
	case models.DecisionApproved, models.DecisionRejected:
		payload = nil
	case models.DecisionModified:
		if payload == nil {
			return errors.New("a modified decision requires a payload")
		}
	case models.DecisionRerun:
	default:
		return fmt.Errorf("invalid decision %q", decision)
	}

	unlock := g.lock(checkpointID)
	defer unlock()

	if _, err := g.ledger.ResolveCheckpoint(ctx, checkpointID, decision, payload, g.now().UTC()); err != nil {
		if errors.Is(err, ledger.ErrAlreadyDecided) {
			return fmt.Errorf("checkpoint %s: %w", checkpointID, ErrAlreadyDecided)
		}
		return fmt.Errorf("failed to record decision for checkpoint %s: %w", checkpointID, err)
	}
	g.notify(checkpointID)
	return nil
}

// Wait blocks until the checkpoint has a decision or ctx is done. There is no
// timeout: a run stays suspended until someone decides or cancels it.
func (g *ReviewGate) Wait(ctx context.Context, checkpointID string) (*models.ReviewCheckpoint, error) {
	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		cp, err := g.check(ctx, checkpointID, ticker.C)
		if err != nil || cp != nil {
			return cp, err
		}
	}
}

// check reads the checkpoint once and, while it is pending, sleeps until a
// decision is submitted in-process, the next tick or ctx is done.
func (g *ReviewGate) check(ctx context.Context, checkpointID string, tick <-chan time.Time) (*models.ReviewCheckpoint, error) {
	// subscribe before reading so an in-process decision cannot slip between
	wake, unsubscribe := g.subscribe(checkpointID)
	defer unsubscribe()

	cp, err := g.ledger.GetCheckpoint(ctx, checkpointID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", checkpointID, err)
	}
	if cp.Resolved() {
		return cp, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wake:
	case <-tick:
	}
	return nil, nil
}

// Pending returns the checkpoints still waiting for a decision, across runs
// when runID is empty.
func (g *ReviewGate) Pending(ctx context.Context, runID string) ([]*models.ReviewCheckpoint, error) {
	return g.ledger.ListCheckpoints(ctx, runID, true)
}

// latest returns the most recent checkpoint of a task in a run, or nil.
func (g *ReviewGate) latest(ctx context.Context, runID, taskName string) (*models.ReviewCheckpoint, error) {
	all, err := g.ledger.ListCheckpoints(ctx, runID, false)
	if err != nil {
		return nil, err
	}
	var found *models.ReviewCheckpoint
	for _, cp := range all {
		if cp.TaskName == taskName {
			found = cp
		}
	}
	return found, nil
}

func (g *ReviewGate) lock(checkpointID string) func() {
	g.mu.Lock()
	l, ok := g.locks[checkpointID]
	if !ok {
		l = &checkpointLock{}
		g.locks[checkpointID] = l
	}
	l.refs++
	g.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		g.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(g.locks, checkpointID)
		}
		g.mu.Unlock()
	}
}

func (g *ReviewGate) subscribe(checkpointID string) (<-chan struct{}, func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	w, ok := g.waiters[checkpointID]
	if !ok {
		w = &waiter{ch: make(chan struct{})}
		g.waiters[checkpointID] = w
	}
	w.refs++
	return w.ch, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		w.refs--
		if w.refs == 0 && g.waiters[checkpointID] == w {
			delete(g.waiters, checkpointID)
		}
	}
}

func (g *ReviewGate) notify(checkpointID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if w, ok := g.waiters[checkpointID]; ok {
		close(w.ch)
		delete(g.waiters, checkpointID)
	}
}
