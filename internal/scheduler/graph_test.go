package scheduler

import (
	"testing"
)

func resolverFor(tasks map[string]*Task) TaskResolver {
	return func(id string) (*Task, bool) {
		t, ok := tasks[id]
		return t, ok
	}
}

func TestValidateDependencies(t *testing.T) {
	tests := []struct {
		name     string
		tasks    map[string]*Task
		edges    map[string][]string // taskID -> hard deps
		check    string
		wantErrs int
		wantCode string
	}{
		{
			name: "no dependencies",
			tasks: map[string]*Task{
				"A": {ID: "A"},
			},
			edges: map[string][]string{},
			check: "A",
		},
		{
			name: "satisfied chain",
			tasks: map[string]*Task{
				"A": {ID: "A"}, "B": {ID: "B"}, "C": {ID: "C"},
			},
			edges: map[string][]string{"A": {"B"}, "B": {"C"}},
			check: "A",
		},
		{
			name: "missing dependency",
			tasks: map[string]*Task{
				"A": {ID: "A"},
			},
			edges:    map[string][]string{"A": {"ghost"}},
			check:    "A",
			wantErrs: 1,
			wantCode: ErrCodeMissingDependency,
		},
		{
			name: "direct cycle",
			tasks: map[string]*Task{
				"A": {ID: "A"}, "B": {ID: "B"},
			},
			edges:    map[string][]string{"A": {"B"}, "B": {"A"}},
			check:    "A",
			wantErrs: 1,
			wantCode: ErrCodeDependencyCycle,
		},
		{
			name: "transitive cycle",
			tasks: map[string]*Task{
				"A": {ID: "A"}, "B": {ID: "B"}, "C": {ID: "C"},
			},
			edges:    map[string][]string{"A": {"B"}, "B": {"C"}, "C": {"A"}},
			check:    "A",
			wantErrs: 1,
			wantCode: ErrCodeDependencyCycle,
		},
		{
			name: "self cycle",
			tasks: map[string]*Task{
				"A": {ID: "A"},
			},
			edges:    map[string][]string{"A": {"A"}},
			check:    "A",
			wantErrs: 1,
			wantCode: ErrCodeDependencyCycle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewDependencyGraph()
			for taskID, deps := range tt.edges {
				for _, depID := range deps {
					g.AddEdge(taskID, depID, false)
				}
			}

			errs := g.ValidateDependencies(tt.tasks[tt.check], resolverFor(tt.tasks))
			if len(errs) != tt.wantErrs {
				t.Fatalf("got %d errors, want %d: %v", len(errs), tt.wantErrs, errs)
			}
			if tt.wantErrs > 0 && errs[0].Code != tt.wantCode {
				t.Errorf("got code %s, want %s", errs[0].Code, tt.wantCode)
			}
		})
	}
}

func TestDependentsReverseIndex(t *testing.T) {
	g := NewDependencyGraph()
	g.Register(&Task{ID: "A", DependsOn: []string{"C"}})
	g.Register(&Task{ID: "B", DependsOn: []string{"C"}, Prefers: []string{"D"}})

	deps := g.Dependents("C")
	if len(deps) != 2 {
		t.Fatalf("expected 2 dependents of C, got %v", deps)
	}
	if soft := g.SoftDependents("D"); len(soft) != 1 || soft[0] != "B" {
		t.Errorf("expected soft dependents [B], got %v", soft)
	}

	g.RemoveEdge("A", "C")
	if deps := g.Dependents("C"); len(deps) != 1 || deps[0] != "B" {
		t.Errorf("expected dependents [B] after removal, got %v", deps)
	}
}

func TestDuplicateEdgeIgnored(t *testing.T) {
	g := NewDependencyGraph()
	g.AddEdge("A", "B", false)
	g.AddEdge("A", "B", false)

	if deps := g.Dependencies("A"); len(deps) != 1 {
		t.Errorf("duplicate edge recorded: %v", deps)
	}
	if deps := g.Dependents("B"); len(deps) != 1 {
		t.Errorf("duplicate reverse entry recorded: %v", deps)
	}
}

func TestRemoveTaskClearsAllEdges(t *testing.T) {
	g := NewDependencyGraph()
	g.Register(&Task{ID: "A", DependsOn: []string{"B"}})
	g.Register(&Task{ID: "C", DependsOn: []string{"A"}, Prefers: []string{"A"}})

	g.Remove("A")

	if deps := g.Dependencies("A"); len(deps) != 0 {
		t.Errorf("hard edges survived removal: %v", deps)
	}
	if deps := g.Dependents("B"); len(deps) != 0 {
		t.Errorf("reverse entry survived removal: %v", deps)
	}
	if deps := g.Dependencies("C"); len(deps) != 0 {
		t.Errorf("dependent still points at removed task: %v", deps)
	}
	if prefs := g.Preferences("C"); len(prefs) != 0 {
		t.Errorf("soft edge still points at removed task: %v", prefs)
	}
}

func TestUnsatisfiedDependencies(t *testing.T) {
	tasks := map[string]*Task{
		"done":    {ID: "done", Status: StatusCompleted},
		"running": {ID: "running", Status: StatusInProgress},
	}
	g := NewDependencyGraph()
	g.AddEdge("A", "done", false)
	g.AddEdge("A", "running", false)
	g.AddEdge("A", "ghost", false)

	missing, incomplete := g.UnsatisfiedDependencies("A", resolverFor(tasks))
	if len(missing) != 1 || missing[0] != "ghost" {
		t.Errorf("missing = %v, want [ghost]", missing)
	}
	if len(incomplete) != 1 || incomplete[0] != "running" {
		t.Errorf("incomplete = %v, want [running]", incomplete)
	}
}

func TestSatisfiedPreferences(t *testing.T) {
	tasks := map[string]*Task{
		"done":    {ID: "done", Status: StatusCompleted},
		"pending": {ID: "pending", Status: StatusReady},
	}
	g := NewDependencyGraph()
	g.AddEdge("A", "done", true)
	g.AddEdge("A", "pending", true)
	g.AddEdge("A", "ghost", true)

	if got := g.SatisfiedPreferences("A", resolverFor(tasks)); got != 1 {
		t.Errorf("SatisfiedPreferences = %d, want 1", got)
	}
}
