package models

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"
)

// TaskStatus is the lifecycle state of one task within a run.
type TaskStatus string

// Task status constants
const (
	StatusPending        TaskStatus = "pending"
	StatusRunning        TaskStatus = "running"
	StatusSucceeded      TaskStatus = "succeeded"
	StatusFailed         TaskStatus = "failed"
	StatusAwaitingReview TaskStatus = "awaiting_review"
	StatusSkipped        TaskStatus = "skipped"
)

// Terminal reports whether no further transition is expected without operator action.
func (s TaskStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusSkipped
}

// RunStatus is the overall state of a workflow run.
type RunStatus string

// Run status constants
const (
	RunRunning        RunStatus = "running"
	RunAwaitingReview RunStatus = "awaiting_review"
	RunSucceeded      RunStatus = "succeeded"
	RunFailed         RunStatus = "failed"
	RunCancelled      RunStatus = "cancelled"
)

// Artifact is the output of a task. Its content is owned by the task implementation;
// the orchestrator only stores it and hands copies to dependents.
type Artifact map[string]any

// Clone returns a deep copy of the artifact so that dependents cannot mutate a
// recorded output.
func (a Artifact) Clone() Artifact {
	if a == nil {
		return nil
	}
	return Artifact(CloneMap(a))
}

// CloneMap deep-copies nested maps and slices. Scalars are shared.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMap(val)
	case Artifact:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = cloneValue(val[i])
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

// TaskResult records the outcome of one task within a run.
type TaskResult struct {
	TaskName   string     `json:"task_name"`
	Status     TaskStatus `json:"status"`
	Artifact   Artifact   `json:"artifact,omitempty"`
	Error      string     `json:"error,omitempty"`
	ErrorClass string     `json:"error_class,omitempty"`
	Attempts   int        `json:"attempts,omitempty"`
	StartedAt  time.Time  `json:"started_at,omitzero"`
	FinishedAt time.Time  `json:"finished_at,omitzero"`
}

// Duration returns how long the task ran, or zero if it has not finished.
func (r *TaskResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// MarshalArtifact encodes an artifact for persistence.
func MarshalArtifact(a Artifact) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

// IndentArtifact encodes an artifact for people to read: indented, with HTML
// left as written.
func IndentArtifact(a Artifact) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalArtifact decodes a persisted artifact. Empty input yields nil.
func UnmarshalArtifact(data []byte) (Artifact, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return a, nil
}

// RunState is the state of one workflow execution.
type RunState struct {
	RunID       string                 `json:"run_id"`
	Workflow    string                 `json:"workflow"`
	Fingerprint string                 `json:"fingerprint"`
	Status      RunStatus              `json:"status"`
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  time.Time              `json:"finished_at,omitzero"`
	Results     map[string]*TaskResult `json:"results"`

	// Spec is attached by the orchestrator; it is not persisted.
	Spec *WorkflowSpec `json:"-"`
}

// NewRunState creates a run with every task pending.
func NewRunState(runID string, spec *WorkflowSpec, now time.Time) *RunState {
	rs := &RunState{
		RunID:       runID,
		Workflow:    spec.Name,
		Fingerprint: spec.Fingerprint(),
		Status:      RunRunning,
		StartedAt:   now,
		Results:     make(map[string]*TaskResult, len(spec.Tasks)),
		Spec:        spec,
	}
	for _, t := range spec.Tasks {
		rs.Results[t.Name] = &TaskResult{TaskName: t.Name, Status: StatusPending}
	}
	return rs
}

// StatusOf returns the status of a task, treating unknown tasks as pending.
func (rs *RunState) StatusOf(name string) TaskStatus {
	if r, ok := rs.Results[name]; ok {
		return r.Status
	}
	return StatusPending
}

// Counts tallies task statuses.
func (rs *RunState) Counts() map[TaskStatus]int {
	counts := make(map[TaskStatus]int)
	for _, r := range rs.Results {
		counts[r.Status]++
	}
	return counts
}

// Clone returns a deep copy of the run state. Spec is shared since it is immutable.
func (rs *RunState) Clone() *RunState {
	out := *rs
	out.Results = make(map[string]*TaskResult, len(rs.Results))
	for k, v := range rs.Results {
		r := *v
		r.Artifact = v.Artifact.Clone()
		out.Results[k] = &r
	}
	return &out
}

// RunSummary aggregates a run for reporting.
type RunSummary struct {
	RunID          string
	Workflow       string
	Status         RunStatus
	Total          int
	Succeeded      int
	Failed         int
	Skipped        int
	AwaitingReview int
	Pending        int
	Duration       time.Duration
	FailedTasks    []TaskResult
}

// Summary builds a RunSummary. Failed tasks are listed in spec order when a
// spec is attached.
func (rs *RunState) Summary(now time.Time) RunSummary {
	s := RunSummary{
		RunID:    rs.RunID,
		Workflow: rs.Workflow,
		Status:   rs.Status,
		Total:    len(rs.Results),
	}
	end := rs.FinishedAt
	if end.IsZero() {
		end = now
	}
	if !rs.StartedAt.IsZero() {
		s.Duration = end.Sub(rs.StartedAt)
	}

	for _, name := range rs.taskOrder() {
		r := rs.Results[name]
		switch r.Status {
		case StatusSucceeded:
			s.Succeeded++
		case StatusFailed:
			s.Failed++
			s.FailedTasks = append(s.FailedTasks, *r)
		case StatusSkipped:
			s.Skipped++
		case StatusAwaitingReview:
			s.AwaitingReview++
		default:
			s.Pending++
		}
	}
	return s
}

// taskOrder returns result names in spec order, or sorted when no spec is attached.
func (rs *RunState) taskOrder() []string {
	if rs.Spec != nil {
		names := make([]string, 0, len(rs.Results))
		for _, name := range rs.Spec.TaskNames() {
			if _, ok := rs.Results[name]; ok {
				names = append(names, name)
			}
		}
		if len(names) == len(rs.Results) {
			return names
		}
	}
	names := make([]string, 0, len(rs.Results))
	for name := range rs.Results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
