// Package graph builds the task dependency graph of a workflow and answers
// ordering questions about it.
package graph

import (
	"fmt"
	"strings"

	"github.com/harrison/briefflow/internal/models"
)

// DependencyGraph represents a directed graph of task dependencies
type DependencyGraph struct {
	Nodes    []string            // task names in declaration order
	Edges    map[string][]string // dependency -> dependents
	Deps     map[string][]string // dependent -> dependencies
	InDegree map[string]int      // task -> number of dependencies
	position map[string]int
}

// CycleError reports a dependency cycle. Path starts and ends with the same task.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("circular dependency detected: %s", strings.Join(e.Path, " -> "))
}

// Build constructs a dependency graph from a workflow spec.
// Dependencies on undeclared tasks are ignored; the validator reports them.
func Build(spec *models.WorkflowSpec) *DependencyGraph {
	g := &DependencyGraph{
		Edges:    make(map[string][]string),
		Deps:     make(map[string][]string),
		InDegree: make(map[string]int),
		position: make(map[string]int),
	}

	for _, task := range spec.Tasks {
		if _, seen := g.position[task.Name]; seen {
			continue
		}
		g.position[task.Name] = len(g.Nodes)
		g.Nodes = append(g.Nodes, task.Name)
		g.InDegree[task.Name] = 0
	}

	for _, task := range spec.Tasks {
		seenDep := make(map[string]bool)
		for _, dep := range task.DependsOn {
			if _, exists := g.position[dep]; !exists || seenDep[dep] {
				continue
			}
			seenDep[dep] = true
			// dep -> task (dep must complete before task)
			g.Edges[dep] = append(g.Edges[dep], task.Name)
			g.Deps[task.Name] = append(g.Deps[task.Name], dep)
			g.InDegree[task.Name]++
		}
	}

	return g
}

// HasCycle detects if the graph contains a cycle
func (g *DependencyGraph) HasCycle() bool {
	return g.FindCycle() != nil
}

// FindCycle returns one cycle as a path of task names using DFS with color marking,
// or nil if the graph is acyclic. A self-dependency yields a two-element path.
func (g *DependencyGraph) FindCycle() []string {
	const (
		white = 0 // not visited
		gray  = 1 // visiting
		black = 2 // visited
	)

	colors := make(map[string]int, len(g.Nodes))
	var stack []string
	var cycle []string

	var dfs func(string) bool
	dfs = func(node string) bool {
		colors[node] = gray
		stack = append(stack, node)

		for _, neighbor := range g.Edges[node] {
			if colors[neighbor] == gray {
				// back edge: the cycle is the stack suffix starting at neighbor
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == neighbor {
						cycle = append(append([]string{}, stack[i:]...), neighbor)
						break
					}
				}
				return true
			}
			if colors[neighbor] == white && dfs(neighbor) {
				return true
			}
		}

		stack = stack[:len(stack)-1]
		colors[node] = black
		return false
	}

	for _, node := range g.Nodes {
		if colors[node] == white && dfs(node) {
			return cycle
		}
	}
	return nil
}

// TopologicalOrder returns task names so that every task follows its dependencies.
// Among tasks that are ready at the same time, declaration order wins, which keeps
// the order deterministic.
func (g *DependencyGraph) TopologicalOrder() ([]string, error) {
	if cycle := g.FindCycle(); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}

	inDegree := make(map[string]int, len(g.InDegree))
	for k, v := range g.InDegree {
		inDegree[k] = v
	}

	order := make([]string, 0, len(g.Nodes))
	done := make(map[string]bool, len(g.Nodes))
	for len(order) < len(g.Nodes) {
		progressed := false
		for _, node := range g.Nodes {
			if done[node] || inDegree[node] != 0 {
				continue
			}
			done[node] = true
			order = append(order, node)
			for _, dependent := range g.Edges[node] {
				inDegree[dependent]--
			}
			progressed = true
			// restart from the first declared node so earlier declarations win
			break
		}
		if !progressed {
			return nil, fmt.Errorf("graph error: no tasks with zero in-degree")
		}
	}
	return order, nil
}

// Dependencies returns the direct dependencies of a task.
func (g *DependencyGraph) Dependencies(name string) []string {
	return g.Deps[name]
}

// Dependents returns every task reachable from name, in declaration order.
func (g *DependencyGraph) Dependents(name string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		for _, d := range g.Edges[n] {
			if !seen[d] {
				seen[d] = true
				walk(d)
			}
		}
	}
	walk(name)

	out := make([]string, 0, len(seen))
	for _, node := range g.Nodes {
		if seen[node] {
			out = append(out, node)
		}
	}
	return out
}

// Position returns the declaration index of a task, or -1.
func (g *DependencyGraph) Position(name string) int {
	if p, ok := g.position[name]; ok {
		return p
	}
	return -1
}
