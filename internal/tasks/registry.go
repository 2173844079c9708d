package tasks

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/harrison/briefflow/internal/config"
)

// ErrUnknownTaskType is returned when a task type identifier is not registered.
var ErrUnknownTaskType = errors.New("unknown task type")

// Factory produces a fresh task instance for one execution.
type Factory func() Task

// Type describes a registered task type.
type Type struct {
	Name        string
	Description string
	Schema      config.TypeSchema
	New         Factory
}

// Registry maps task type identifiers to implementations. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]Type)}
}

// NewDefaultRegistry creates a registry holding every built-in task type.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, t := range builtinTypes() {
		r.MustRegister(t)
	}
	return r
}

// Register adds a task type. Registering the same name twice is an error.
func (r *Registry) Register(t Type) error {
	if t.Name == "" {
		return fmt.Errorf("task type name is required")
	}
	if t.New == nil {
		return fmt.Errorf("task type %s: factory is required", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[t.Name]; exists {
		return fmt.Errorf("task type %s already registered", t.Name)
	}
	r.types[t.Name] = t
	return nil
}

// MustRegister is Register that panics, for process-start registration.
func (r *Registry) MustRegister(t Type) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get returns the task type registered under name.
func (r *Registry) Get(name string) (Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.types[name]
	if !ok {
		return Type{}, fmt.Errorf("%w: %s", ErrUnknownTaskType, name)
	}
	return t, nil
}

// Has reports whether a task type is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[name]
	return ok
}

// Names returns registered task type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
