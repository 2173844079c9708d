package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// TaskSpec is one declared task entry of a workflow definition.
type TaskSpec struct {
	Name        string         `json:"name" yaml:"name"`
	TaskType    string         `json:"task_type" yaml:"task_type"`
	DependsOn   []string       `json:"depends_on,omitempty" yaml:"depends_on"`
	Params      map[string]any `json:"params,omitempty" yaml:"params"`
	HumanReview bool           `json:"human_review,omitempty" yaml:"human_review"`

	// LLM is the per-task completion model override block ("llm_config").
	// It is merged into the workflow layer under the "llm" key.
	LLM map[string]any `json:"llm_config,omitempty" yaml:"llm_config"`

	// Timeout bounds a single execution attempt. Zero means use the configured default.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"-"`

	// MaxRetries bounds retries of recoverable failures. Nil means use the configured default.
	MaxRetries *int `json:"max_retries,omitempty" yaml:"max_retries"`
}

// WorkflowSpec is a validated, ordered set of tasks. It is treated as immutable once loaded.
type WorkflowSpec struct {
	Name  string     `json:"name"`
	Tasks []TaskSpec `json:"tasks"`

	index map[string]int
}

// NewWorkflowSpec wraps tasks into a WorkflowSpec. It does not validate.
func NewWorkflowSpec(name string, tasks []TaskSpec) *WorkflowSpec {
	ws := &WorkflowSpec{Name: name, Tasks: tasks}
	ws.index = make(map[string]int, len(tasks))
	for i, t := range tasks {
		if _, dup := ws.index[t.Name]; !dup {
			ws.index[t.Name] = i
		}
	}
	return ws
}

// Task returns the task with the given name.
func (w *WorkflowSpec) Task(name string) (*TaskSpec, bool) {
	if w.index == nil {
		for i := range w.Tasks {
			if w.Tasks[i].Name == name {
				return &w.Tasks[i], true
			}
		}
		return nil, false
	}
	i, ok := w.index[name]
	if !ok {
		return nil, false
	}
	return &w.Tasks[i], true
}

// TaskNames returns task names in declaration order.
func (w *WorkflowSpec) TaskNames() []string {
	names := make([]string, len(w.Tasks))
	for i, t := range w.Tasks {
		names[i] = t.Name
	}
	return names
}

// Fingerprint returns a stable hash of the workflow definition. A ledger only resumes
// a run whose recorded fingerprint matches the current definition.
func (w *WorkflowSpec) Fingerprint() string {
	// encoding/json sorts map keys, which keeps the output canonical.
	data, err := json.Marshal(w)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MaxRetriesOr returns the task's retry bound or the fallback when unset.
func (t *TaskSpec) MaxRetriesOr(fallback int) int {
	if t.MaxRetries == nil {
		return fallback
	}
	return *t.MaxRetries
}
