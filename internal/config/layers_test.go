package config

import (
	"testing"

	"github.com/harrison/briefflow/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestMergeDeepKeyLevel(t *testing.T) {
	low := Layer{Source: SourceBaseSettings, Values: map[string]any{
		"llm":   map[string]any{"type": "ollama", "model": "llama3", "base_url": "http://localhost:11434"},
		"feeds": []any{"a", "b"},
		"depth": 1,
	}}
	high := Layer{Source: SourceWorkflow, Values: map[string]any{
		"llm":   map[string]any{"model": "mistral"},
		"feeds": []any{"c"},
	}}

	got := Merge(low, high)

	assert.Equal(t, map[string]any{
		"llm":   map[string]any{"type": "ollama", "model": "mistral", "base_url": "http://localhost:11434"},
		"feeds": []any{"c"},
		"depth": 1,
	}, got)
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	nested := map[string]any{"model": "a"}
	low := Layer{Source: SourceDefault, Values: map[string]any{"llm": nested}}
	high := Layer{Source: SourceCLI, Values: map[string]any{"llm": map[string]any{"model": "b"}}}

	got := Merge(low, high)
	got["llm"].(map[string]any)["model"] = "changed"

	assert.Equal(t, "a", nested["model"])
	assert.Equal(t, "b", high.Values["llm"].(map[string]any)["model"])
}

func TestMergeScalarReplacesMapAndBack(t *testing.T) {
	got, sources := MergeTracked(
		Layer{Source: SourceDefault, Values: map[string]any{"llm": map[string]any{"model": "a"}}},
		Layer{Source: SourceEnvVar, Values: map[string]any{"llm": "disabled"}},
		Layer{Source: SourceCLI, Values: map[string]any{"llm.model": "z"}},
	)

	assert.Equal(t, map[string]any{"llm": map[string]any{"model": "z"}}, got)
	assert.Equal(t, map[string]Source{"llm.model": SourceCLI}, sources)
}

func TestMergeEmptyAndNilLayers(t *testing.T) {
	got := Merge(
		Layer{Source: SourceDefault, Values: map[string]any{"a": 1}},
		Layer{Source: SourceEnvVar},
		Layer{Source: SourceCLI, Values: map[string]any{}},
	)
	assert.Equal(t, map[string]any{"a": 1}, got)
	assert.Empty(t, Merge())
}

func TestExpandDottedKeys(t *testing.T) {
	got := Expand(map[string]any{
		"llm":       map[string]any{"type": "openai"},
		"llm.model": "gpt",
		"a.b.c":     true,
	})
	assert.Equal(t, map[string]any{
		"llm": map[string]any{"type": "openai", "model": "gpt"},
		"a":   map[string]any{"b": map[string]any{"c": true}},
	}, got)
}

func TestMergeYAMLStyleMaps(t *testing.T) {
	got := Merge(
		Layer{Source: SourceBaseSettings, Values: map[string]any{"x": map[any]any{"k": 1, "j": 2}}},
		Layer{Source: SourceWorkflow, Values: map[string]any{"x": map[string]any{"k": 3}}},
	)
	assert.Equal(t, map[string]any{"x": map[string]any{"k": 3, "j": 2}}, got)
}

func TestSourceRank(t *testing.T) {
	ordered := []Source{SourceCLI, SourceWorkflow, SourceEnvVar, SourceEnvSettings, SourceBaseSettings, SourceDefault}
	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, ordered[i-1].Rank(), ordered[i].Rank())
	}
}

func TestWorkflowParamsMergesLLMBlock(t *testing.T) {
	task := &models.TaskSpec{
		Params: map[string]any{"max_topics": 5, "llm": map[string]any{"temperature": 0.1}},
		LLM:    map[string]any{"type": "openai", "model": "gpt-4o-mini"},
	}

	got := WorkflowParams(task)
	assert.Equal(t, map[string]any{
		"max_topics": 5,
		"llm":        map[string]any{"temperature": 0.1, "type": "openai", "model": "gpt-4o-mini"},
	}, got)
}
