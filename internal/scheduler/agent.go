package scheduler

import (
	"context"
)

// AgentStatus is the availability state reported by the agent pool.
type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentIdle    AgentStatus = "idle"
	AgentBusy    AgentStatus = "busy"
	AgentOffline AgentStatus = "offline"
)

// Agent is a read-only snapshot of an external worker. The pool owns the
// live record; the engine only ever writes back through UpdateLoad.
type Agent struct {
	ID           string      `json:"id"`
	Name         string      `json:"name,omitempty"`
	Capabilities []string    `json:"capabilities,omitempty"`
	Status       AgentStatus `json:"status"`
	CurrentLoad  int         `json:"current_load"`
	MaxCapacity  int         `json:"max_capacity"`
}

// Available reports whether the agent can accept work at all.
func (a Agent) Available() bool {
	return a.Status == AgentOnline || a.Status == AgentIdle
}

// AvailableCapacity returns maxCapacity - currentLoad, never negative.
func (a Agent) AvailableCapacity() int {
	c := a.MaxCapacity - a.CurrentLoad
	if c < 0 {
		return 0
	}
	return c
}

// Utilization returns current load as a percentage of capacity.
func (a Agent) Utilization() float64 {
	if a.MaxCapacity <= 0 {
		return 100
	}
	return float64(a.CurrentLoad) / float64(a.MaxCapacity) * 100
}

// AgentPool is the collaborator owning agent state. ExecuteTask is the
// fire-and-forget dispatch hand-off; an error means the hand-off was
// rejected, not that the work failed.
type AgentPool interface {
	AvailableAgents() []Agent
	Agent(id string) (Agent, bool)
	Capacity(id string) (currentLoad, maxCapacity int, err error)
	ExecuteTask(ctx context.Context, agentID string, task *Task) error
	UpdateLoad(agentID string, load, maxCapacity int) error
}

// Notifier is the operator-facing notification sink. Implementations are
// fire-and-forget; the engine guarantees neither information nor warning is
// emitted for an empty, fully-satisfied queue.
type Notifier interface {
	ShowInformation(msg string)
	ShowWarning(msg string)
	ShowError(msg string)
}

// NopNotifier is the default Notifier; absence of a sink is a modeled case,
// not a nil check.
type NopNotifier struct{}

func (NopNotifier) ShowInformation(string) {}
func (NopNotifier) ShowWarning(string)     {}
func (NopNotifier) ShowError(string)       {}

// Settings is the configuration provider collaborator.
type Settings interface {
	AutoAssignTasks() bool
	LoadBalancingEnabled() bool
	Strategy() Strategy
	MaxReassignmentsPerCycle() int
	UtilizationThreshold() float64
}
