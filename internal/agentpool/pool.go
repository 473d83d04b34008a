// Package agentpool is the in-memory implementation of the engine's agent
// pool collaborator. It owns all agent state; the engine only writes back
// through UpdateLoad.
package agentpool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/benfinklea/nofx/internal/events"
	"github.com/benfinklea/nofx/internal/scheduler"
)

// Runner is the external execution sink. It either accepts the hand-off
// (nil) or rejects it (error); it never blocks on the work itself.
type Runner func(ctx context.Context, agentID string, task *scheduler.Task) error

// Pool is a thread-safe in-memory agent registry.
type Pool struct {
	mu     sync.RWMutex
	agents map[string]scheduler.Agent
	runner Runner
	bus    *events.Bus
	logger *zap.Logger
}

// New creates an empty pool publishing agent events to bus.
func New(bus *events.Bus, logger *zap.Logger) *Pool {
	return &Pool{
		agents: make(map[string]scheduler.Agent),
		bus:    bus,
		logger: logger,
	}
}

// SetRunner installs the execution sink. Without one, every hand-off is
// accepted and dropped, which keeps tests and dry runs simple.
func (p *Pool) SetRunner(r Runner) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runner = r
}

// Register adds an agent and announces it on the bus.
func (p *Pool) Register(agent scheduler.Agent) error {
	p.mu.Lock()
	if agent.ID == "" {
		p.mu.Unlock()
		return fmt.Errorf("agent id is required")
	}
	if _, exists := p.agents[agent.ID]; exists {
		p.mu.Unlock()
		return fmt.Errorf("agent %q already registered", agent.ID)
	}
	if agent.Status == "" {
		agent.Status = scheduler.AgentIdle
	}
	if agent.MaxCapacity <= 0 {
		agent.MaxCapacity = 1
	}
	p.agents[agent.ID] = agent
	p.mu.Unlock()

	p.logger.Info("agent registered",
		zap.String("agent", agent.ID),
		zap.Strings("capabilities", agent.Capabilities))
	p.bus.Publish(events.AgentCreatedEvent{AgentID: agent.ID, Timestamp: time.Now()})
	return nil
}

// Remove drops an agent from the pool.
func (p *Pool) Remove(agentID string) {
	p.mu.Lock()
	delete(p.agents, agentID)
	p.mu.Unlock()
}

// SetStatus updates an agent's availability and announces the change.
func (p *Pool) SetStatus(agentID string, status scheduler.AgentStatus) error {
	p.mu.Lock()
	agent, ok := p.agents[agentID]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("agent %q not found", agentID)
	}
	agent.Status = status
	p.agents[agentID] = agent
	p.mu.Unlock()

	p.bus.Publish(events.AgentStatusChangedEvent{
		AgentID:   agentID,
		Status:    string(status),
		Timestamp: time.Now(),
	})
	return nil
}

// AvailableAgents returns agents currently able to accept work, in stable
// id order.
func (p *Pool) AvailableAgents() []scheduler.Agent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var available []scheduler.Agent
	for _, a := range p.agents {
		if a.Available() {
			available = append(available, a)
		}
	}
	sort.Slice(available, func(i, j int) bool { return available[i].ID < available[j].ID })
	return available
}

// Agents returns every registered agent in stable id order.
func (p *Pool) Agents() []scheduler.Agent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	all := make([]scheduler.Agent, 0, len(p.agents))
	for _, a := range p.agents {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

// Agent returns a snapshot of one agent.
func (p *Pool) Agent(id string) (scheduler.Agent, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.agents[id]
	return a, ok
}

// Capacity returns an agent's current load and maximum capacity.
func (p *Pool) Capacity(id string) (int, int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	a, ok := p.agents[id]
	if !ok {
		return 0, 0, fmt.Errorf("agent %q not found", id)
	}
	return a.CurrentLoad, a.MaxCapacity, nil
}

// ExecuteTask hands a task to the agent's runner. The hand-off is
// synchronous accept/reject; the pool never waits for completion.
func (p *Pool) ExecuteTask(ctx context.Context, agentID string, task *scheduler.Task) error {
	p.mu.RLock()
	agent, ok := p.agents[agentID]
	runner := p.runner
	p.mu.RUnlock()

	if !ok {
		return fmt.Errorf("agent %q not found", agentID)
	}
	if !agent.Available() {
		return fmt.Errorf("agent %q is %s", agentID, agent.Status)
	}
	if runner == nil {
		p.logger.Debug("no runner installed, accepting hand-off",
			zap.String("agent", agentID),
			zap.String("task", task.ID))
		return nil
	}
	return runner(ctx, agentID, task)
}

// UpdateLoad writes back an agent's load after assignment or release.
func (p *Pool) UpdateLoad(agentID string, load, maxCapacity int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	agent, ok := p.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %q not found", agentID)
	}
	if load < 0 {
		load = 0
	}
	agent.CurrentLoad = load
	if maxCapacity > 0 {
		agent.MaxCapacity = maxCapacity
	}
	p.agents[agentID] = agent
	return nil
}
