package scheduler

import (
	"sort"
)

// ConflictPolicy decides whether two tasks may not execute concurrently.
// The overlap rule is deliberately pluggable; the default treats a shared
// resource string (typically a file path) as a conflict.
type ConflictPolicy func(a, b *Task) bool

// ResourceOverlapPolicy reports a conflict when the two tasks declare any
// common resource.
func ResourceOverlapPolicy(a, b *Task) bool {
	if len(a.Resources) == 0 || len(b.Resources) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(a.Resources))
	for _, r := range a.Resources {
		set[r] = struct{}{}
	}
	for _, r := range b.Resources {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

// Resolution is an operator decision on a detected conflict.
type Resolution string

const (
	ResolutionBlock Resolution = "block" // leave the task blocked
	ResolutionAllow Resolution = "allow" // clear the conflict, permit retry toward ready
	ResolutionMerge Resolution = "merge" // treated like allow; merging is the operator's affair
)

// ConflictDetector applies a ConflictPolicy against the set of currently
// active or assigned tasks.
type ConflictDetector struct {
	policy ConflictPolicy
}

// NewConflictDetector creates a detector with the given policy, falling back
// to ResourceOverlapPolicy when nil.
func NewConflictDetector(policy ConflictPolicy) *ConflictDetector {
	if policy == nil {
		policy = ResourceOverlapPolicy
	}
	return &ConflictDetector{policy: policy}
}

// SetPolicy swaps the overlap predicate.
func (d *ConflictDetector) SetPolicy(policy ConflictPolicy) {
	if policy == nil {
		policy = ResourceOverlapPolicy
	}
	d.policy = policy
}

// Check returns the ids of active tasks whose concurrent execution with task
// is disallowed. The result is sorted for deterministic blockedBy contents.
func (d *ConflictDetector) Check(task *Task, active []*Task) []string {
	var conflicts []string
	for _, other := range active {
		if other.ID == task.ID {
			continue
		}
		if d.policy(task, other) {
			conflicts = append(conflicts, other.ID)
		}
	}
	sort.Strings(conflicts)
	return conflicts
}
