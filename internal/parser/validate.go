package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/harrison/briefflow/internal/graph"
	"github.com/harrison/briefflow/internal/models"
)

// ErrWorkflowNotFound is returned when a definition file has no workflow of the requested name.
var ErrWorkflowNotFound = errors.New("workflow not found")

// TypeChecker reports whether a task type identifier is known. *tasks.Registry satisfies it.
type TypeChecker interface {
	Has(name string) bool
}

// Issue is one structural problem of a workflow definition.
type Issue struct {
	Task    string // empty for workflow-level issues
	Message string
}

func (i Issue) String() string {
	if i.Task == "" {
		return i.Message
	}
	return fmt.Sprintf("task %q: %s", i.Task, i.Message)
}

// ValidationError lists every problem found in a workflow. A workflow with a
// ValidationError is never executed.
type ValidationError struct {
	Workflow string
	Issues   []Issue
}

func (e *ValidationError) Error() string {
	lines := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		lines[i] = issue.String()
	}
	return fmt.Sprintf("workflow %q is invalid: %s", e.Workflow, strings.Join(lines, "; "))
}

// Validate checks a workflow and returns a *ValidationError if anything is wrong.
func Validate(spec *models.WorkflowSpec, types TypeChecker) error {
	if issues := Check(spec, types); len(issues) > 0 {
		return &ValidationError{Workflow: spec.Name, Issues: issues}
	}
	return nil
}

// Check returns every structural issue of a workflow: missing or duplicate
// names, unknown or self dependencies, unknown task types, invalid limits, and
// dependency cycles. A nil types skips the task type check.
func Check(spec *models.WorkflowSpec, types TypeChecker) []Issue {
	var issues []Issue
	add := func(task, format string, args ...any) {
		issues = append(issues, Issue{Task: task, Message: fmt.Sprintf(format, args...)})
	}

	if spec.Name == "" {
		add("", "workflow name is required")
	}
	if len(spec.Tasks) == 0 {
		add("", "workflow has no tasks")
	}

	seen := make(map[string]bool, len(spec.Tasks))
	for i, t := range spec.Tasks {
		if t.Name == "" {
			add("", "task #%d has no name", i+1)
			continue
		}
		if seen[t.Name] {
			add(t.Name, "duplicate task name")
		}
		seen[t.Name] = true
	}

	// acyclic copy without self references, which are reported separately
	stripped := make([]models.TaskSpec, 0, len(spec.Tasks))
	for _, t := range spec.Tasks {
		if t.Name == "" {
			continue
		}

		switch {
		case t.TaskType == "":
			add(t.Name, "task_type is required")
		case types != nil && !types.Has(t.TaskType):
			add(t.Name, "unknown task type %q", t.TaskType)
		}
		if t.Timeout < 0 {
			add(t.Name, "timeout must not be negative")
		}
		if t.MaxRetries != nil && *t.MaxRetries < 0 {
			add(t.Name, "max_retries must not be negative")
		}

		deps := make([]string, 0, len(t.DependsOn))
		for _, dep := range t.DependsOn {
			switch {
			case dep == t.Name:
				add(t.Name, "depends on itself")
			case !seen[dep]:
				add(t.Name, "depends on unknown task %q", dep)
			default:
				deps = append(deps, dep)
			}
		}
		t.DependsOn = deps
		stripped = append(stripped, t)
	}

	if cycle := graph.Build(models.NewWorkflowSpec(spec.Name, stripped)).FindCycle(); cycle != nil {
		add("", "%v", &graph.CycleError{Path: cycle})
	}
	return issues
}

// Issues extracts the issue list from a validation error.
func Issues(err error) []Issue {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Issues
	}
	return nil
}
