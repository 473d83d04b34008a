package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskID() string
}

// Task lifecycle event types.
const (
	EventTypeTaskCreated         = "task.created"
	EventTypeTaskStateChanged    = "task.state_changed"
	EventTypeTaskReady           = "task.ready"
	EventTypeTaskBlocked         = "task.blocked"
	EventTypeTaskAssigned        = "task.assigned"
	EventTypeTaskCompleted       = "task.completed"
	EventTypeTaskFailed          = "task.failed"
	EventTypeTaskWaiting         = "task.waiting"
	EventTypeDependencyAdded     = "task.dependency_added"
	EventTypeDependencyRemoved   = "task.dependency_removed"
	EventTypeSoftDepSatisfied    = "task.soft_dependency_satisfied"
	EventTypeTaskPriorityUpdated = "task.priority_updated"
)

// Agent event types, consumed by the engine to trigger reconciliation.
const (
	EventTypeAgentCreated       = "agent.created"
	EventTypeAgentStatusChanged = "agent.status_changed"
)

// TaskCreatedEvent is published when a task is registered, whatever state it
// landed in.
type TaskCreatedEvent struct {
	ID        string
	Title     string
	Status    string
	Timestamp time.Time
}

func (e TaskCreatedEvent) EventType() string { return EventTypeTaskCreated }
func (e TaskCreatedEvent) TaskID() string    { return e.ID }

// TaskStateChangedEvent is published on every successful transition.
type TaskStateChangedEvent struct {
	ID        string
	From      string
	To        string
	Timestamp time.Time
}

func (e TaskStateChangedEvent) EventType() string { return EventTypeTaskStateChanged }
func (e TaskStateChangedEvent) TaskID() string    { return e.ID }

// TaskReadyEvent is published when a task becomes assignable.
type TaskReadyEvent struct {
	ID        string
	Timestamp time.Time
}

func (e TaskReadyEvent) EventType() string { return EventTypeTaskReady }
func (e TaskReadyEvent) TaskID() string    { return e.ID }

// TaskBlockedEvent is published when a task is routed to blocked.
// BlockedBy carries the dependency or conflict ids preventing readiness.
type TaskBlockedEvent struct {
	ID        string
	BlockedBy []string
	Reason    string
	Timestamp time.Time
}

func (e TaskBlockedEvent) EventType() string { return EventTypeTaskBlocked }
func (e TaskBlockedEvent) TaskID() string    { return e.ID }

// TaskAssignedEvent is published when a task is handed to an agent.
type TaskAssignedEvent struct {
	ID         string
	AgentID    string
	MatchScore float64
	Timestamp  time.Time
}

func (e TaskAssignedEvent) EventType() string { return EventTypeTaskAssigned }
func (e TaskAssignedEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published on first arrival at completed.
type TaskCompletedEvent struct {
	ID        string
	AgentID   string
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task fails, including dispatch failures.
type TaskFailedEvent struct {
	ID        string
	Reason    string
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskWaitingEvent is published when a task stays queued because no agent
// could take it this pass.
type TaskWaitingEvent struct {
	ID        string
	Timestamp time.Time
}

func (e TaskWaitingEvent) EventType() string { return EventTypeTaskWaiting }
func (e TaskWaitingEvent) TaskID() string    { return e.ID }

// DependencyAddedEvent is published when a hard or soft edge is registered.
type DependencyAddedEvent struct {
	ID        string
	DependsOn string
	Soft      bool
	Timestamp time.Time
}

func (e DependencyAddedEvent) EventType() string { return EventTypeDependencyAdded }
func (e DependencyAddedEvent) TaskID() string    { return e.ID }

// DependencyRemovedEvent is published when an edge is removed.
type DependencyRemovedEvent struct {
	ID        string
	DependsOn string
	Timestamp time.Time
}

func (e DependencyRemovedEvent) EventType() string { return EventTypeDependencyRemoved }
func (e DependencyRemovedEvent) TaskID() string    { return e.ID }

// SoftDepSatisfiedEvent is published when a preferred task completes.
type SoftDepSatisfiedEvent struct {
	ID        string // the preferring task
	Satisfied string // the completed soft dependency
	Timestamp time.Time
}

func (e SoftDepSatisfiedEvent) EventType() string { return EventTypeSoftDepSatisfied }
func (e SoftDepSatisfiedEvent) TaskID() string    { return e.ID }

// TaskPriorityUpdatedEvent is published when a task's effective priority
// changes while queued.
type TaskPriorityUpdatedEvent struct {
	ID        string
	Priority  int
	Timestamp time.Time
}

func (e TaskPriorityUpdatedEvent) EventType() string { return EventTypeTaskPriorityUpdated }
func (e TaskPriorityUpdatedEvent) TaskID() string    { return e.ID }

// AgentCreatedEvent is published when an agent joins the pool.
type AgentCreatedEvent struct {
	AgentID   string
	Timestamp time.Time
}

func (e AgentCreatedEvent) EventType() string { return EventTypeAgentCreated }
func (e AgentCreatedEvent) TaskID() string    { return "" }

// AgentStatusChangedEvent is published when an agent's availability changes.
type AgentStatusChangedEvent struct {
	AgentID   string
	Status    string
	Timestamp time.Time
}

func (e AgentStatusChangedEvent) EventType() string { return EventTypeAgentStatusChanged }
func (e AgentStatusChangedEvent) TaskID() string    { return "" }
