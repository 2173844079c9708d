package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/harrison/briefflow/internal/config"
	"github.com/harrison/briefflow/internal/models"
	"github.com/harrison/briefflow/internal/tasks"
)

// DefaultRetryInterval is the first backoff delay between attempts.
const DefaultRetryInterval = 500 * time.Millisecond

// TaskExecutor runs a single task: registry lookup, per-attempt timeout and
// retry of recoverable failures.
type TaskExecutor struct {
	registry *tasks.Registry

	// DefaultTimeout bounds an attempt when the task sets no timeout (0 = none).
	DefaultTimeout time.Duration
	// DefaultMaxRetries applies when the task sets no max_retries.
	DefaultMaxRetries int
	// RetryInterval is the initial backoff delay.
	RetryInterval time.Duration

	now func() time.Time
}

// NewTaskExecutor creates a TaskExecutor over registry.
func NewTaskExecutor(registry *tasks.Registry, defaultTimeout time.Duration, defaultMaxRetries int) *TaskExecutor {
	return &TaskExecutor{
		registry:          registry,
		DefaultTimeout:    defaultTimeout,
		DefaultMaxRetries: defaultMaxRetries,
		RetryInterval:     DefaultRetryInterval,
		now:               time.Now,
	}
}

// Execute runs the task and returns its result. A failed result comes with a
// *TaskExecutionError. Predecessor artifacts are copied before every attempt, so
// the task never sees the recorded originals.
func (e *TaskExecutor) Execute(ctx context.Context, spec *models.TaskSpec, params *config.Effective, preds map[string]models.Artifact) (models.TaskResult, error) {
	result := models.TaskResult{TaskName: spec.Name, StartedAt: e.now()}

	typ, err := e.registry.Get(spec.TaskType)
	if err != nil {
		return e.fail(result, ClassFatal, err)
	}

	timeout := spec.Timeout
	if timeout == 0 {
		timeout = e.DefaultTimeout
	}
	maxRetries := spec.MaxRetriesOr(e.DefaultMaxRetries)
	if maxRetries < 0 {
		maxRetries = 0
	}

	var artifact models.Artifact
	operation := func() error {
		result.Attempts++
		in := tasks.Input{
			TaskName:     spec.Name,
			Params:       params,
			Predecessors: clonePredecessors(preds),
		}
		out, err := e.attempt(ctx, typ, in, timeout)
		if err != nil {
			if ctx.Err() == nil && tasks.IsRecoverable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		artifact = out
		return nil
	}

	err = backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(e.newBackOff(), uint64(maxRetries)), ctx))
	if err != nil {
		if ctx.Err() != nil {
			return e.fail(result, ClassCancelled, ctx.Err())
		}
		class := Classify(err)
		if class == ClassRecoverable {
			// retries exhausted
			class = ClassFatal
			err = fmt.Errorf("gave up after %d attempts: %w", result.Attempts, err)
		}
		return e.fail(result, class, err)
	}

	result.FinishedAt = e.now()
	result.Status = models.StatusSucceeded
	result.Artifact = artifact
	return result, nil
}

func (e *TaskExecutor) newBackOff() backoff.BackOff {
	interval := e.RetryInterval
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(interval),
		backoff.WithMaxElapsedTime(0),
	)
}

// attempt runs one task instance under the attempt timeout. A task that ignores
// its context is abandoned when the timeout fires.
func (e *TaskExecutor) attempt(ctx context.Context, typ tasks.Type, in tasks.Input, timeout time.Duration) (models.Artifact, error) {
	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type outcome struct {
		artifact models.Artifact
		err      error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("task panicked: %v", r)}
			}
		}()
		artifact, err := typ.New().Run(attemptCtx, in)
		done <- outcome{artifact: artifact, err: err}
	}()

	timedOut := func() bool {
		return ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
	}

	select {
	case o := <-done:
		if o.err != nil && timedOut() {
			return nil, &TimeoutError{Task: in.TaskName, Timeout: timeout}
		}
		return o.artifact, o.err
	case <-attemptCtx.Done():
		if timedOut() {
			return nil, &TimeoutError{Task: in.TaskName, Timeout: timeout}
		}
		return nil, ctx.Err()
	}
}

func (e *TaskExecutor) fail(result models.TaskResult, class ErrorClass, err error) (models.TaskResult, error) {
	result.FinishedAt = e.now()
	result.Status = models.StatusFailed
	result.Error = err.Error()
	result.ErrorClass = string(class)
	return result, NewTaskExecutionError(result.TaskName, class, err)
}

func clonePredecessors(preds map[string]models.Artifact) map[string]models.Artifact {
	out := make(map[string]models.Artifact, len(preds))
	for name, artifact := range preds {
		out[name] = artifact.Clone()
	}
	return out
}
