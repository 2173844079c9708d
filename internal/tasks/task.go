// Package tasks defines the uniform task capability, the registry mapping task
// type identifiers to implementations, and the built-in pipeline task types.
package tasks

import (
	"context"
	"errors"

	"github.com/harrison/briefflow/internal/config"
	"github.com/harrison/briefflow/internal/models"
)

// Input is everything a task receives for one execution.
type Input struct {
	TaskName string
	Params   *config.Effective

	// Predecessors maps each declared dependency to a copy of its artifact.
	Predecessors map[string]models.Artifact
}

// Task is the capability every task type implements: accept configuration and
// predecessor outputs, return an artifact or fail.
type Task interface {
	Run(ctx context.Context, in Input) (models.Artifact, error)
}

// TaskFunc adapts a function to the Task interface.
type TaskFunc func(ctx context.Context, in Input) (models.Artifact, error)

// Run calls f.
func (f TaskFunc) Run(ctx context.Context, in Input) (models.Artifact, error) {
	return f(ctx, in)
}

// recoverableError marks a failure that may succeed on retry.
type recoverableError struct {
	err error
}

func (e *recoverableError) Error() string { return e.err.Error() }
func (e *recoverableError) Unwrap() error { return e.err }

// Recoverable marks err as retryable. Errors not marked are fatal.
func Recoverable(err error) error {
	if err == nil {
		return nil
	}
	return &recoverableError{err: err}
}

// IsRecoverable reports whether err, or any error it wraps, was marked recoverable.
func IsRecoverable(err error) bool {
	var re *recoverableError
	return errors.As(err, &re)
}

// Collect gathers the values stored under key in every predecessor artifact, in
// the order of names.
func Collect(in Input, names []string, key string) []any {
	var out []any
	for _, name := range names {
		artifact, ok := in.Predecessors[name]
		if !ok {
			continue
		}
		switch v := artifact[key].(type) {
		case nil:
		case []any:
			out = append(out, v...)
		default:
			out = append(out, v)
		}
	}
	return out
}
