package executor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harrison/briefflow/internal/config"
	"github.com/harrison/briefflow/internal/ledger"
	"github.com/harrison/briefflow/internal/models"
	"github.com/harrison/briefflow/internal/tasks"
)

// recorder records what the fake task types did during a test.
type recorder struct {
	mu       sync.Mutex
	started  []string
	runs     map[string]int
	inputs   map[string]map[string]models.Artifact
	params   map[string]map[string]any
	active   int32
	maxSeen  int32
	failures map[string]int // remaining recoverable failures per task
	release  chan struct{}  // closed to unblock "block" tasks
}

func newRecorder() *recorder {
	return &recorder{
		runs:     make(map[string]int),
		inputs:   make(map[string]map[string]models.Artifact),
		params:   make(map[string]map[string]any),
		failures: make(map[string]int),
		release:  make(chan struct{}),
	}
}

func (p *recorder) enter(in tasks.Input) func() {
	n := atomic.AddInt32(&p.active, 1)
	for {
		seen := atomic.LoadInt32(&p.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&p.maxSeen, seen, n) {
			break
		}
	}

	p.mu.Lock()
	p.started = append(p.started, in.TaskName)
	p.runs[in.TaskName]++
	p.inputs[in.TaskName] = in.Predecessors
	p.params[in.TaskName] = in.Params.Params
	p.mu.Unlock()

	return func() { atomic.AddInt32(&p.active, -1) }
}

func (p *recorder) Started() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.started...)
}

func (p *recorder) Runs(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runs[name]
}

func (p *recorder) Inputs(name string) map[string]models.Artifact {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inputs[name]
}

func (p *recorder) Params(name string) map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.params[name]
}

// artifactOf is what the "ok" task produces: deterministic in its name and inputs.
func artifactOf(in tasks.Input) models.Artifact {
	var from []string
	for name := range in.Predecessors {
		from = append(from, name)
	}
	sort.Strings(from)
	fromAny := make([]any, len(from))
	for i, n := range from {
		fromAny[i] = n
	}
	return models.Artifact{"task": in.TaskName, "from": fromAny}
}

func testRegistry(p *recorder) *tasks.Registry {
	r := tasks.NewRegistry()
	r.MustRegister(tasks.Type{
		Name: "ok",
		Schema: config.TypeSchema{Params: []config.ParamSpec{
			{Key: "label", Type: config.TypeString, Default: "default"},
			{Key: "size", Type: config.TypeInt, Min: config.Bound(1)},
		}},
		New: func() tasks.Task {
			return tasks.TaskFunc(func(ctx context.Context, in tasks.Input) (models.Artifact, error) {
				defer p.enter(in)()
				time.Sleep(5 * time.Millisecond)
				return artifactOf(in), nil
			})
		},
	})
	r.MustRegister(tasks.Type{
		Name: "fail",
		New: func() tasks.Task {
			return tasks.TaskFunc(func(ctx context.Context, in tasks.Input) (models.Artifact, error) {
				defer p.enter(in)()
				return nil, errors.New("upstream exploded")
			})
		},
	})
	r.MustRegister(tasks.Type{
		Name: "flaky",
		New: func() tasks.Task {
			return tasks.TaskFunc(func(ctx context.Context, in tasks.Input) (models.Artifact, error) {
				defer p.enter(in)()
				p.mu.Lock()
				left := p.failures[in.TaskName]
				if left > 0 {
					p.failures[in.TaskName] = left - 1
				}
				p.mu.Unlock()
				if left > 0 {
					return nil, tasks.Recoverable(errors.New("temporarily unavailable"))
				}
				return artifactOf(in), nil
			})
		},
	})
	r.MustRegister(tasks.Type{
		Name: "block",
		New: func() tasks.Task {
			return tasks.TaskFunc(func(ctx context.Context, in tasks.Input) (models.Artifact, error) {
				defer p.enter(in)()
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-p.release:
					return artifactOf(in), nil
				}
			})
		},
	})
	r.MustRegister(tasks.Type{
		Name: "mutate",
		New: func() tasks.Task {
			return tasks.TaskFunc(func(ctx context.Context, in tasks.Input) (models.Artifact, error) {
				defer p.enter(in)()
				for _, a := range in.Predecessors {
					a["task"] = "tampered"
					delete(a, "from")
				}
				return artifactOf(in), nil
			})
		},
	})
	r.MustRegister(tasks.Type{
		Name: "panic",
		New: func() tasks.Task {
			return tasks.TaskFunc(func(ctx context.Context, in tasks.Input) (models.Artifact, error) {
				panic("nil feed")
			})
		},
	})
	return r
}

func task(name, typ string, deps ...string) models.TaskSpec {
	return models.TaskSpec{Name: name, TaskType: typ, DependsOn: deps}
}

func reviewed(ts models.TaskSpec) models.TaskSpec {
	ts.HumanReview = true
	return ts
}

func openLedger(t *testing.T) ledger.Ledger {
	t.Helper()
	l, err := ledger.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func testOptions() Options {
	return Options{
		MaxConcurrency:     4,
		MaxRetries:         2,
		RetryInterval:      time.Millisecond,
		ReviewPollInterval: 10 * time.Millisecond,
	}
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 5*time.Millisecond)
}
