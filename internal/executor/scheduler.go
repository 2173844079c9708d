package executor

import (
	"github.com/harrison/briefflow/internal/graph"
	"github.com/harrison/briefflow/internal/models"
)

// Scheduler answers which tasks of a run may start, given the recorded state.
type Scheduler struct {
	graph *graph.DependencyGraph
	order []string
}

// NewScheduler builds the dependency graph of spec. It fails with a
// *graph.CycleError when the workflow is cyclic.
func NewScheduler(spec *models.WorkflowSpec) (*Scheduler, error) {
	g := graph.Build(spec)
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	return &Scheduler{graph: g, order: order}, nil
}

// Order returns the topological order tasks are considered in.
func (s *Scheduler) Order() []string {
	return append([]string(nil), s.order...)
}

// Dependencies returns the direct dependencies of a task.
func (s *Scheduler) Dependencies(name string) []string {
	return s.graph.Dependencies(name)
}

// ReadyTasks returns pending tasks whose dependencies all succeeded, in
// topological order.
func (s *Scheduler) ReadyTasks(state *models.RunState) []string {
	var ready []string
	for _, name := range s.order {
		if state.StatusOf(name) != models.StatusPending {
			continue
		}
		if s.dependenciesSucceeded(state, name) {
			ready = append(ready, name)
		}
	}
	return ready
}

func (s *Scheduler) dependenciesSucceeded(state *models.RunState, name string) bool {
	for _, dep := range s.graph.Dependencies(name) {
		if state.StatusOf(dep) != models.StatusSucceeded {
			return false
		}
	}
	return true
}

// IsComplete reports whether every task succeeded or was skipped.
func (s *Scheduler) IsComplete(state *models.RunState) bool {
	for _, name := range s.order {
		switch state.StatusOf(name) {
		case models.StatusSucceeded, models.StatusSkipped:
		default:
			return false
		}
	}
	return true
}

// SkipDependents marks every pending transitive dependent of failed as skipped
// and returns their names in topological order. The caller persists them.
func (s *Scheduler) SkipDependents(state *models.RunState, failed string) []string {
	dependents := make(map[string]bool)
	for _, name := range s.graph.Dependents(failed) {
		dependents[name] = true
	}

	var skipped []string
	for _, name := range s.order {
		if !dependents[name] || state.StatusOf(name) != models.StatusPending {
			continue
		}
		r, ok := state.Results[name]
		if !ok {
			r = &models.TaskResult{TaskName: name}
			state.Results[name] = r
		}
		r.Status = models.StatusSkipped
		r.Error = "dependency " + failed + " did not succeed"
		r.ErrorClass = ""
		r.Artifact = nil
		skipped = append(skipped, name)
	}
	return skipped
}

// Stalled reports whether no task can make progress: nothing is ready and
// nothing is in flight.
func (s *Scheduler) Stalled(state *models.RunState, inFlight int) bool {
	return inFlight == 0 && len(s.ReadyTasks(state)) == 0
}
