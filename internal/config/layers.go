package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/harrison/briefflow/internal/models"
)

// Source identifies the configuration layer a value came from.
type Source string

// Layer sources, highest precedence first.
const (
	SourceCLI          Source = "cli_arg"
	SourceWorkflow     Source = "workflow"
	SourceEnvVar       Source = "env_var"
	SourceEnvSettings  Source = "env_settings"
	SourceBaseSettings Source = "base_settings"
	SourceDefault      Source = "default"
)

// Rank returns the precedence of a source; higher wins.
func (s Source) Rank() int {
	switch s {
	case SourceCLI:
		return 6
	case SourceWorkflow:
		return 5
	case SourceEnvVar:
		return 4
	case SourceEnvSettings:
		return 3
	case SourceBaseSettings:
		return 2
	case SourceDefault:
		return 1
	default:
		return 0
	}
}

// Layer is one named source of configuration values. Values may be nested maps
// and may use dotted keys ("llm.model"), which are expanded before merging.
type Layer struct {
	Source Source
	Values map[string]any
}

// Merge deep-merges layers given lowest precedence first. A layer only overwrites
// the keys it defines; nested maps are merged key by key and any other value
// replaces what was below it. The inputs are not modified.
func Merge(layers ...Layer) map[string]any {
	merged, _ := MergeTracked(layers...)
	return merged
}

// MergeTracked is Merge that also reports which source supplied each leaf key,
// keyed by dotted path.
func MergeTracked(layers ...Layer) (map[string]any, map[string]Source) {
	out := make(map[string]any)
	sources := make(map[string]Source)
	for _, layer := range layers {
		deepMerge(out, Expand(layer.Values), "", layer.Source, sources)
	}
	return out, sources
}

func deepMerge(dst, src map[string]any, prefix string, source Source, sources map[string]Source) {
	for key, value := range src {
		path := joinPath(prefix, key)

		if srcMap, ok := asMap(value); ok {
			if dstMap, ok := dst[key].(map[string]any); ok {
				deepMerge(dstMap, srcMap, path, source, sources)
				continue
			}
			forgetPath(sources, path)
			fresh := make(map[string]any, len(srcMap))
			deepMerge(fresh, srcMap, path, source, sources)
			dst[key] = fresh
			continue
		}

		forgetPath(sources, path)
		dst[key] = cloneValue(value)
		sources[path] = source
	}
}

// forgetPath drops source entries for path and everything below it.
func forgetPath(sources map[string]Source, path string) {
	delete(sources, path)
	prefix := path + "."
	for k := range sources {
		if strings.HasPrefix(k, prefix) {
			delete(sources, k)
		}
	}
}

// Expand turns dotted keys into nested maps: {"llm.model": "x"} becomes
// {"llm": {"model": "x"}}. Nested maps are expanded recursively.
func Expand(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	// sorted so that "a" and "a.b" combine the same way on every call
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := values[key]
		if m, ok := asMap(value); ok {
			value = Expand(m)
		}
		parts := strings.Split(key, ".")
		cur := out
		for _, part := range parts[:len(parts)-1] {
			next, ok := cur[part].(map[string]any)
			if !ok {
				next = make(map[string]any)
				cur[part] = next
			}
			cur = next
		}
		last := parts[len(parts)-1]
		if existing, ok := cur[last].(map[string]any); ok {
			if m, ok := value.(map[string]any); ok {
				deepMerge(existing, m, "", "", map[string]Source{})
				continue
			}
		}
		cur[last] = value
	}
	return out
}

// Lookup returns the value at a dotted path.
func Lookup(values map[string]any, path string) (any, bool) {
	cur := values
	parts := strings.Split(path, ".")
	for i, part := range parts {
		v, ok := cur[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		m, ok := asMap(v)
		if !ok {
			return nil, false
		}
		cur = m
	}
	return nil, false
}

// setPath stores value at a dotted path, creating intermediate maps.
func setPath(values map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	cur := values
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
}

// asMap normalizes the map shapes produced by YAML and JSON decoders.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case models.Artifact:
		return map[string]any(m), true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i := range val {
			if m, ok := asMap(val[i]); ok {
				out[i] = models.CloneMap(m)
				continue
			}
			out[i] = val[i]
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// WorkflowParams builds the workflow layer for a task: its params block with the
// llm_config override block merged under "llm".
func WorkflowParams(task *models.TaskSpec) map[string]any {
	values := Merge(Layer{Source: SourceWorkflow, Values: task.Params})
	if len(task.LLM) > 0 {
		values = Merge(
			Layer{Source: SourceWorkflow, Values: values},
			Layer{Source: SourceWorkflow, Values: map[string]any{"llm": task.LLM}},
		)
	}
	return values
}
