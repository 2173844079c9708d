package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harrison/briefflow/internal/config"
	"github.com/harrison/briefflow/internal/ledger"
	"github.com/harrison/briefflow/internal/models"
	"github.com/harrison/briefflow/internal/tasks"
)

// ErrorClass categorizes a task failure. It is recorded with the task result.
type ErrorClass string

const (
	// ClassRecoverable is a failure that may succeed on retry.
	ClassRecoverable ErrorClass = "recoverable"
	// ClassFatal is a failure that is never retried.
	ClassFatal ErrorClass = "fatal"
	// ClassTimeout is an attempt that exceeded its timeout. It is not retried.
	ClassTimeout ErrorClass = "timeout"
	// ClassConfig is a parameter resolution failure before the task started.
	ClassConfig ErrorClass = "config"
	// ClassReviewRejected is a candidate artifact rejected by a reviewer.
	ClassReviewRejected ErrorClass = "review_rejected"
	// ClassCancelled marks work stopped by run cancellation. It is not a failure.
	ClassCancelled ErrorClass = "cancelled"
)

var (
	// ErrReviewRejected is wrapped by the error of a task whose review was rejected.
	ErrReviewRejected = errors.New("review rejected")
	// ErrCancelled is returned when a run stops because its context was cancelled.
	ErrCancelled = errors.New("run cancelled")
	// ErrSuspended is returned when a run stops with reviews still pending.
	ErrSuspended = errors.New("run suspended awaiting review")
	// ErrAlreadyDecided is returned when a checkpoint already has a decision.
	ErrAlreadyDecided = ledger.ErrAlreadyDecided
	// ErrFingerprintMismatch is returned when a run was recorded for a different
	// workflow definition than the one being resumed.
	ErrFingerprintMismatch = errors.New("workflow definition changed since the run was recorded")
	// ErrNotResumable is returned when a run cannot be resumed without explicit operator action.
	ErrNotResumable = errors.New("run is not resumable")
)

// TaskExecutionError reports the failure of one task.
type TaskExecutionError struct {
	Task      string     // Name of the task that failed
	Class     ErrorClass // Failure category
	Err       error      // Underlying error
	Timestamp time.Time  // When the failure was recorded
}

// NewTaskExecutionError creates a TaskExecutionError with the current timestamp.
func NewTaskExecutionError(task string, class ErrorClass, err error) *TaskExecutionError {
	return &TaskExecutionError{
		Task:      task,
		Class:     class,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface for TaskExecutionError.
func (e *TaskExecutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("task %s: %s failure", e.Task, e.Class)
	}
	return fmt.Sprintf("task %s: %s failure: %v", e.Task, e.Class, e.Err)
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *TaskExecutionError) Unwrap() error {
	return e.Err
}

// TimeoutError reports an attempt that ran longer than its timeout.
type TimeoutError struct {
	Task    string
	Timeout time.Duration
}

// Error implements the error interface for TimeoutError.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s: timeout after %v", e.Task, e.Timeout)
}

// Unwrap returns context.DeadlineExceeded to support error wrapping.
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// Classify maps an error returned by a task, or produced around it, to its class.
func Classify(err error) ErrorClass {
	var (
		te *TimeoutError
		ce *config.ConfigError
		xe *TaskExecutionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &xe):
		return xe.Class
	case errors.As(err, &te):
		return ClassTimeout
	case errors.As(err, &ce):
		return ClassConfig
	case errors.Is(err, ErrReviewRejected):
		return ClassReviewRejected
	case errors.Is(err, context.Canceled), errors.Is(err, ErrCancelled):
		return ClassCancelled
	case tasks.IsRecoverable(err):
		return ClassRecoverable
	default:
		return ClassFatal
	}
}

// RunError aggregates the task failures of a run that ended failed.
type RunError struct {
	RunID      string
	Workflow   string
	TotalTasks int
	TaskErrors []*TaskExecutionError
}

// Error implements the error interface for RunError.
func (e *RunError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("run %s of %s failed: %d of %d tasks failed", e.RunID, e.Workflow, len(e.TaskErrors), e.TotalTasks))
	for _, taskErr := range e.TaskErrors {
		sb.WriteString(fmt.Sprintf("\n  - %s", taskErr.Error()))
	}
	return sb.String()
}

// Unwrap returns the task errors so errors.Is and errors.As traverse them.
func (e *RunError) Unwrap() []error {
	if len(e.TaskErrors) == 0 {
		return nil
	}
	errs := make([]error, len(e.TaskErrors))
	for i, taskErr := range e.TaskErrors {
		errs[i] = taskErr
	}
	return errs
}

// failureFromResult rebuilds the error of a failed result loaded from the ledger.
func failureFromResult(r *models.TaskResult) *TaskExecutionError {
	var err error
	switch ErrorClass(r.ErrorClass) {
	case ClassReviewRejected:
		err = ErrReviewRejected
	default:
		err = errors.New(r.Error)
	}
	return &TaskExecutionError{
		Task:      r.TaskName,
		Class:     ErrorClass(r.ErrorClass),
		Err:       err,
		Timestamp: r.FinishedAt,
	}
}
