package cmd

import (
	"errors"
	"fmt"

	"github.com/harrison/briefflow/internal/executor"
	"github.com/harrison/briefflow/internal/parser"
)

// Process exit codes.
const (
	ExitSuccess    = 0
	ExitFailure    = 1
	ExitValidation = 2
	ExitTaskFailed = 3
	ExitCancelled  = 4
	ExitSuspended  = 5
)

// ExitError carries a process exit code to main.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var validationErr *parser.ValidationError
	var runErr *executor.RunError
	switch {
	case errors.As(err, &validationErr):
		return ExitValidation
	case errors.Is(err, executor.ErrCancelled):
		return ExitCancelled
	case errors.Is(err, executor.ErrSuspended):
		return ExitSuspended
	case errors.As(err, &runErr), errors.Is(err, executor.ErrReviewRejected):
		return ExitTaskFailed
	default:
		return ExitFailure
	}
}
