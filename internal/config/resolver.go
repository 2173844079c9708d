package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
)

// Resolver computes the effective parameters of a task from six layers, lowest
// precedence first: task-type defaults, base settings, environment settings,
// environment variables, workflow params, CLI overrides.
type Resolver struct {
	base        map[string]any
	envSettings map[string]any
	environ     []string
	prefix      string
}

// NewResolver creates a resolver. environ uses the os.Environ "KEY=value" form.
func NewResolver(base, envSettings map[string]any, environ []string, prefix string) *Resolver {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &Resolver{
		base:        base,
		envSettings: envSettings,
		environ:     environ,
		prefix:      prefix,
	}
}

// Effective is the fully merged configuration of one task instance.
type Effective struct {
	Params  map[string]any
	Sources map[string]Source
}

// Layers returns the ordered layers used for a task, lowest precedence first.
// Settings files contribute their task-type section and then their task-name section.
func (r *Resolver) Layers(schema TypeSchema, taskType, taskName string, workflowParams, cliOverrides map[string]any) []Layer {
	layers := []Layer{{Source: SourceDefault, Values: schema.Defaults()}}
	for _, section := range sections(r.base, taskType, taskName) {
		layers = append(layers, Layer{Source: SourceBaseSettings, Values: section})
	}
	for _, section := range sections(r.envSettings, taskType, taskName) {
		layers = append(layers, Layer{Source: SourceEnvSettings, Values: section})
	}
	layers = append(layers,
		Layer{Source: SourceEnvVar, Values: r.envValues(taskName)},
		Layer{Source: SourceWorkflow, Values: workflowParams},
		Layer{Source: SourceCLI, Values: cliOverrides},
	)
	return layers
}

// Resolve merges every layer for the task and validates the result against the
// task type's schema.
func (r *Resolver) Resolve(schema TypeSchema, taskType, taskName string, workflowParams, cliOverrides map[string]any) (*Effective, error) {
	params, sources := MergeTracked(r.Layers(schema, taskType, taskName, workflowParams, cliOverrides)...)
	if problems := schema.Apply(params); len(problems) > 0 {
		return nil, &ConfigError{Task: taskName, Problems: problems}
	}
	return &Effective{Params: params, Sources: sources}, nil
}

func sections(settings map[string]any, taskType, taskName string) []map[string]any {
	var out []map[string]any
	for _, key := range []string{taskType, taskName} {
		if key == "" {
			continue
		}
		if m, ok := asMap(settings[key]); ok {
			out = append(out, m)
		}
		if taskType == taskName {
			break
		}
	}
	return out
}

// envValues collects <PREFIX>_<TASK>_<KEY> variables for a task. Double underscores
// in KEY separate nested keys: BRIEFFLOW_SUMMARIZE_LLM__MODEL sets llm.model.
func (r *Resolver) envValues(taskName string) map[string]any {
	prefix := r.prefix + "_" + EnvName(taskName) + "_"
	out := make(map[string]any)
	for _, kv := range r.environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		key := strings.TrimPrefix(name, prefix)
		if key == "" {
			continue
		}
		key = strings.ToLower(strings.ReplaceAll(key, "__", "."))
		setPath(out, key, value)
	}
	return out
}

// EnvName converts a task name into its environment variable form.
func EnvName(taskName string) string {
	var b strings.Builder
	for _, r := range taskName {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// ParseSetFlags parses repeated "task.key=value" CLI overrides into per-task maps.
// The task "*" applies to every task and is stored under that key.
func ParseSetFlags(values []string) (map[string]map[string]any, error) {
	out := make(map[string]map[string]any)
	for _, raw := range values {
		assignment, value, ok := strings.Cut(raw, "=")
		if !ok {
			return nil, fmt.Errorf("invalid override %q: expected task.key=value", raw)
		}
		task, key, ok := strings.Cut(strings.TrimSpace(assignment), ".")
		if !ok || task == "" || key == "" {
			return nil, fmt.Errorf("invalid override %q: expected task.key=value", raw)
		}
		if out[task] == nil {
			out[task] = make(map[string]any)
		}
		out[task][key] = value
	}
	return out, nil
}

// OverridesFor returns the CLI layer for a task: wildcard overrides first, then
// task-specific ones.
func OverridesFor(all map[string]map[string]any, taskName string) map[string]any {
	return Merge(
		Layer{Source: SourceCLI, Values: all["*"]},
		Layer{Source: SourceCLI, Values: all[taskName]},
	)
}

// Get returns the value at a dotted key.
func (e *Effective) Get(key string) (any, bool) {
	return Lookup(e.Params, key)
}

// String returns a string parameter or the fallback.
func (e *Effective) String(key, fallback string) string {
	if v, ok := e.Get(key); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

// Int returns an int parameter or the fallback.
func (e *Effective) Int(key string, fallback int) int {
	if v, ok := e.Get(key); ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return fallback
}

// Bool returns a bool parameter or the fallback.
func (e *Effective) Bool(key string, fallback bool) bool {
	if v, ok := e.Get(key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}

// Duration returns a duration parameter or the fallback.
func (e *Effective) Duration(key string, fallback time.Duration) time.Duration {
	if v, ok := e.Get(key); ok {
		if d, ok := v.(time.Duration); ok {
			return d
		}
	}
	return fallback
}

// Strings returns a string list parameter.
func (e *Effective) Strings(key string) []string {
	v, ok := e.Get(key)
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}

// SourceOf returns the layer that supplied a leaf key.
func (e *Effective) SourceOf(key string) Source {
	return e.Sources[key]
}

// Describe renders "key=value (source)" lines sorted by key, for debug logging.
func (e *Effective) Describe() string {
	keys := make([]string, 0, len(e.Sources))
	for k := range e.Sources {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		v, _ := e.Get(k)
		fmt.Fprintf(&b, "%s=%v (%s)", k, v, e.Sources[k])
	}
	return b.String()
}
