package scheduler

import (
	"fmt"
	"sync"

	"github.com/gammazero/toposort"
)

// DependencyGraph maintains hard (dependsOn) and soft (prefers) edges keyed
// by task id, plus reverse indices so completion events can reach dependents
// without scanning every task.
type DependencyGraph struct {
	mu             sync.RWMutex
	hard           map[string][]string // taskID -> ids it depends on
	soft           map[string][]string // taskID -> ids it prefers
	dependents     map[string][]string // depID -> ids depending on it
	softDependents map[string][]string // depID -> ids preferring it
}

// NewDependencyGraph creates an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		hard:           make(map[string][]string),
		soft:           make(map[string][]string),
		dependents:     make(map[string][]string),
		softDependents: make(map[string][]string),
	}
}

// Register records a task's hard and soft edges and their reverse entries.
func (g *DependencyGraph) Register(task *Task) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, depID := range task.DependsOn {
		g.addEdgeLocked(task.ID, depID, false)
	}
	for _, depID := range task.Prefers {
		g.addEdgeLocked(task.ID, depID, true)
	}
}

// AddEdge records a single dependency edge. Soft edges only influence
// priority; hard edges gate readiness.
func (g *DependencyGraph) AddEdge(taskID, depID string, soft bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.addEdgeLocked(taskID, depID, soft)
}

func (g *DependencyGraph) addEdgeLocked(taskID, depID string, soft bool) {
	if soft {
		if !contains(g.soft[taskID], depID) {
			g.soft[taskID] = append(g.soft[taskID], depID)
			g.softDependents[depID] = append(g.softDependents[depID], taskID)
		}
		return
	}
	if !contains(g.hard[taskID], depID) {
		g.hard[taskID] = append(g.hard[taskID], depID)
		g.dependents[depID] = append(g.dependents[depID], taskID)
	}
}

// RemoveEdge removes a hard or soft edge if present.
func (g *DependencyGraph) RemoveEdge(taskID, depID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.hard[taskID] = remove(g.hard[taskID], depID)
	g.dependents[depID] = remove(g.dependents[depID], taskID)
	g.soft[taskID] = remove(g.soft[taskID], depID)
	g.softDependents[depID] = remove(g.softDependents[depID], taskID)
}

// Remove drops a task and all edges referencing it.
func (g *DependencyGraph) Remove(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, depID := range g.hard[taskID] {
		g.dependents[depID] = remove(g.dependents[depID], taskID)
	}
	for _, depID := range g.soft[taskID] {
		g.softDependents[depID] = remove(g.softDependents[depID], taskID)
	}
	delete(g.hard, taskID)
	delete(g.soft, taskID)

	for _, depID := range g.dependents[taskID] {
		g.hard[depID] = remove(g.hard[depID], taskID)
	}
	for _, depID := range g.softDependents[taskID] {
		g.soft[depID] = remove(g.soft[depID], taskID)
	}
	delete(g.dependents, taskID)
	delete(g.softDependents, taskID)
}

// Dependencies returns the hard dependency ids of a task.
func (g *DependencyGraph) Dependencies(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.hard[taskID]...)
}

// Preferences returns the soft dependency ids of a task.
func (g *DependencyGraph) Preferences(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.soft[taskID]...)
}

// Dependents returns the ids of tasks hard-depending on depID.
func (g *DependencyGraph) Dependents(depID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.dependents[depID]...)
}

// SoftDependents returns the ids of tasks preferring depID.
func (g *DependencyGraph) SoftDependents(depID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.softDependents[depID]...)
}

// ValidateDependencies detects missing hard dependency ids and cycles that
// reach back to the task itself. Never mutates. The returned errors carry
// the offending ids so callers can populate blockedBy.
func (g *DependencyGraph) ValidateDependencies(task *Task, resolve TaskResolver) []ValidationError {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []ValidationError

	for _, depID := range g.hard[task.ID] {
		if _, ok := resolve(depID); !ok {
			errs = append(errs, ValidationError{
				Code:    ErrCodeMissingDependency,
				Field:   depID,
				Message: fmt.Sprintf("task %q depends on non-existent task %q", task.ID, depID),
			})
		}
	}

	if err := g.checkCycleLocked(task.ID); err != nil {
		errs = append(errs, ValidationError{
			Code:    ErrCodeDependencyCycle,
			Field:   task.ID,
			Message: err.Error(),
		})
	}

	return errs
}

// checkCycleLocked runs a topological sort over the hard-edge subgraph
// reachable from taskID. A sort failure means a dependency chain reaches
// back into itself.
func (g *DependencyGraph) checkCycleLocked(taskID string) error {
	visited := map[string]bool{}
	var edges []toposort.Edge

	var walk func(id string)
	walk = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		deps := g.hard[id]
		if len(deps) == 0 {
			edges = append(edges, toposort.Edge{nil, id})
			return
		}
		for _, depID := range deps {
			edges = append(edges, toposort.Edge{depID, id})
			walk(depID)
		}
	}
	walk(taskID)

	if _, err := toposort.Toposort(edges); err != nil {
		return fmt.Errorf("dependency chain of %q contains a cycle: %w", taskID, err)
	}
	return nil
}

// UnsatisfiedDependencies splits a task's hard dependencies into missing ids
// and ids that exist but have not completed.
func (g *DependencyGraph) UnsatisfiedDependencies(taskID string, resolve TaskResolver) (missing, incomplete []string) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, depID := range g.hard[taskID] {
		dep, ok := resolve(depID)
		if !ok {
			missing = append(missing, depID)
			continue
		}
		if dep.Status != StatusCompleted {
			incomplete = append(incomplete, depID)
		}
	}
	return missing, incomplete
}

// SatisfiedPreferences counts how many of a task's soft dependencies have
// completed. Used to boost effective priority.
func (g *DependencyGraph) SatisfiedPreferences(taskID string, resolve TaskResolver) int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	count := 0
	for _, depID := range g.soft[taskID] {
		if dep, ok := resolve(depID); ok && dep.Status == StatusCompleted {
			count++
		}
	}
	return count
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func remove(list []string, s string) []string {
	for i, v := range list {
		if v == s {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
