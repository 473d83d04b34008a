package scheduler

import (
	"fmt"
	"time"

	"github.com/benfinklea/nofx/internal/events"
)

// TaskResolver looks up a task by id. The engine's task map backs it; tests
// can substitute a plain map lookup.
type TaskResolver func(id string) (*Task, bool)

// transitions is the fixed legal transition table. A transition absent from
// the table is rejected with no mutation.
var transitions = map[Status][]Status{
	StatusQueued:     {StatusValidated},
	StatusValidated:  {StatusReady, StatusBlocked},
	StatusReady:      {StatusAssigned, StatusBlocked},
	StatusBlocked:    {StatusReady},
	StatusAssigned:   {StatusInProgress, StatusFailed},
	StatusInProgress: {StatusCompleted, StatusFailed, StatusBlocked},
	StatusFailed:     {StatusReady}, // manual retry only
	StatusCompleted:  {},            // terminal
}

// StateMachine enforces the transition table, per-state required fields, and
// readiness validation, and publishes lifecycle events on success.
type StateMachine struct {
	bus     *events.Bus
	resolve TaskResolver
	now     func() time.Time
}

// NewStateMachine creates a state machine publishing to bus and resolving
// dependency ids through resolve.
func NewStateMachine(bus *events.Bus, resolve TaskResolver) *StateMachine {
	return &StateMachine{
		bus:     bus,
		resolve: resolve,
		now:     time.Now,
	}
}

// CanTransition reports whether from -> to is an edge in the table.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves task to next if legal. Returns the validation errors that
// prevented the transition; on a non-empty return no field was mutated.
func (sm *StateMachine) Transition(task *Task, next Status) []ValidationError {
	var errs []ValidationError

	if !CanTransition(task.Status, next) {
		return []ValidationError{{
			Code:    ErrCodeInvalidTransition,
			Field:   task.ID,
			Message: fmt.Sprintf("cannot transition from %q to %q", task.Status, next),
		}}
	}

	// Per-state required fields
	if next == StatusAssigned || next == StatusInProgress {
		if task.AssignedTo == "" {
			errs = append(errs, ValidationError{
				Code:    ErrCodeMissingField,
				Field:   "assignedTo",
				Message: fmt.Sprintf("state %q requires an assigned agent", next),
			})
		}
	}

	// Readiness validation: every hard dependency must exist and be completed.
	if next == StatusReady {
		errs = append(errs, sm.validateReadiness(task)...)
	}

	if len(errs) > 0 {
		return errs
	}

	prev := task.Status
	agentBefore := task.AssignedTo
	task.Status = next
	sm.applySideEffects(task, next)
	sm.publish(task, prev, next, agentBefore)
	return nil
}

// validateReadiness checks that all hard dependencies exist and are completed.
func (sm *StateMachine) validateReadiness(task *Task) []ValidationError {
	var errs []ValidationError
	for _, depID := range task.DependsOn {
		dep, ok := sm.resolve(depID)
		if !ok {
			errs = append(errs, ValidationError{
				Code:    ErrCodeMissingDependency,
				Field:   depID,
				Message: fmt.Sprintf("dependency %q does not exist", depID),
			})
			continue
		}
		if dep.Status != StatusCompleted {
			errs = append(errs, ValidationError{
				Code:    ErrCodeDepsNotSatisfied,
				Field:   depID,
				Message: fmt.Sprintf("dependency %q is %q, not completed", depID, dep.Status),
			})
		}
	}
	return errs
}

// applySideEffects adjusts assignment and timestamp fields after a
// successful transition.
func (sm *StateMachine) applySideEffects(task *Task, next Status) {
	switch next {
	case StatusReady:
		task.AssignedTo = ""
		task.BlockedBy = nil
		task.ConflictsWith = nil
	case StatusValidated:
		task.AssignedTo = ""
	case StatusAssigned:
		now := sm.now()
		task.AssignedAt = &now
	case StatusCompleted:
		task.AssignedTo = ""
		if task.CompletedAt == nil {
			now := sm.now()
			task.CompletedAt = &now
		}
	case StatusFailed:
		task.AssignedTo = ""
	}
}

// publish emits the state-changed event plus the state-specific event.
// agentBefore is the assignment as it stood when the transition was applied,
// since side effects may already have cleared it.
func (sm *StateMachine) publish(task *Task, prev, next Status, agentBefore string) {
	ts := sm.now()
	sm.bus.Publish(events.TaskStateChangedEvent{
		ID:        task.ID,
		From:      string(prev),
		To:        string(next),
		Timestamp: ts,
	})

	switch next {
	case StatusReady:
		sm.bus.Publish(events.TaskReadyEvent{ID: task.ID, Timestamp: ts})
	case StatusBlocked:
		sm.bus.Publish(events.TaskBlockedEvent{
			ID:        task.ID,
			BlockedBy: append([]string(nil), task.BlockedBy...),
			Timestamp: ts,
		})
	case StatusAssigned:
		sm.bus.Publish(events.TaskAssignedEvent{
			ID:         task.ID,
			AgentID:    task.AssignedTo,
			MatchScore: task.AgentMatchScore,
			Timestamp:  ts,
		})
	case StatusCompleted:
		sm.bus.Publish(events.TaskCompletedEvent{ID: task.ID, AgentID: agentBefore, Timestamp: ts})
	case StatusFailed:
		sm.bus.Publish(events.TaskFailedEvent{ID: task.ID, Reason: task.FailureReason, Timestamp: ts})
	}
}
