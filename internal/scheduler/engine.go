package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benfinklea/nofx/internal/events"
)

// maxAssignAttempts bounds a single reconciliation pass.
const maxAssignAttempts = 10

// Engine is the reconciliation engine. It owns the task map and priority
// queue exclusively; every mutation happens synchronously under one lock in
// response to a discrete event, so no handler ever observes partially
// mutated state.
type Engine struct {
	mu sync.Mutex

	tasks     map[string]*Task
	sm        *StateMachine
	graph     *DependencyGraph
	queue     *PriorityQueue
	matcher   CapabilityMatcher
	balancer  *LoadBalancer
	conflicts *ConflictDetector

	// conflictOverrides records operator "allow"/"merge" decisions so the
	// pre-assignment conflict re-check does not re-block an overridden pair.
	conflictOverrides map[string]map[string]struct{}

	pool     AgentPool
	notifier Notifier
	settings Settings
	bus      *events.Bus
	logger   *zap.Logger

	retryCfg RetryConfig
	breakers *BreakerRegistry

	now   func() time.Time
	genID func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sets the operator notification sink.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithConflictPolicy sets the resource-overlap predicate.
func WithConflictPolicy(p ConflictPolicy) Option {
	return func(e *Engine) { e.conflicts = NewConflictDetector(p) }
}

// WithRetryConfig sets the dispatch retry behavior.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(e *Engine) { e.retryCfg = cfg }
}

// WithIDGenerator overrides task id generation (defaults to uuid).
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.genID = gen }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a reconciliation engine over the given collaborators.
func NewEngine(pool AgentPool, settings Settings, bus *events.Bus, opts ...Option) *Engine {
	e := &Engine{
		tasks:             make(map[string]*Task),
		graph:             NewDependencyGraph(),
		queue:             NewPriorityQueue(),
		balancer:          NewLoadBalancer(),
		conflicts:         NewConflictDetector(nil),
		conflictOverrides: make(map[string]map[string]struct{}),
		pool:              pool,
		notifier:          NopNotifier{},
		settings:          settings,
		bus:               bus,
		logger:            zap.NewNop(),
		retryCfg:          DefaultRetryConfig(),
		now:               time.Now,
		genID:             uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sm = NewStateMachine(bus, e.resolve)
	e.breakers = NewBreakerRegistry(e.logger)
	return e
}

// resolve is the TaskResolver backed by the engine's task map.
func (e *Engine) resolve(id string) (*Task, bool) {
	t, ok := e.tasks[id]
	return t, ok
}

// Run consumes agent availability events from the bus and reconciles after
// each one. Blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	created := e.bus.Subscribe(events.EventTypeAgentCreated, 0)
	defer created.Unsubscribe()
	status := e.bus.Subscribe(events.EventTypeAgentStatusChanged, 0)
	defer status.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-created.C:
			if !ok {
				return nil
			}
			e.TryAssignTasks()
		case _, ok := <-status.C:
			if !ok {
				return nil
			}
			e.TryAssignTasks()
		}
	}
}

// AddTask validates a task configuration, registers the task and its
// dependencies, routes it to ready or blocked, and runs an assignment pass.
// A structurally invalid config is rejected without persisting anything.
func (e *Engine) AddTask(cfg TaskConfig) (*Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, joinValidationErrors(errs)
	}
	if cfg.ID == "" {
		cfg.ID = e.genID()
	}
	if _, exists := e.tasks[cfg.ID]; exists {
		return nil, fmt.Errorf("task with ID %q already exists", cfg.ID)
	}

	task := newTask(cfg, e.now())
	e.tasks[task.ID] = task
	e.graph.Register(task)

	if errs := e.sm.Transition(task, StatusValidated); len(errs) > 0 {
		// queued -> validated is always in the table; failure here is a bug.
		return nil, joinValidationErrors(errs)
	}

	e.evaluate(task)

	// Creation event is emitted regardless of which state the task landed in.
	e.bus.Publish(events.TaskCreatedEvent{
		ID:        task.ID,
		Title:     task.Title,
		Status:    string(task.Status),
		Timestamp: e.now(),
	})

	// A new task may be the missing dependency of previously blocked work.
	e.reevaluateDependents(task.ID)

	if e.settings.AutoAssignTasks() {
		e.tryAssignLocked()
	}

	return cloneTask(task), nil
}

// evaluate drives a validated or blocked task toward ready, blocked, or
// queued-awaiting-dependencies, keeping blockedBy/conflictsWith consistent.
func (e *Engine) evaluate(task *Task) {
	if verrs := e.graph.ValidateDependencies(task, e.resolve); len(verrs) > 0 {
		blockedBy := make([]string, 0, len(verrs))
		for _, ve := range verrs {
			if ve.Code == ErrCodeMissingDependency {
				blockedBy = append(blockedBy, ve.Field)
			}
		}
		if len(blockedBy) == 0 {
			// Cycle: every hard dependency is suspect.
			blockedBy = e.graph.Dependencies(task.ID)
		}
		e.block(task, blockedBy, nil)
		return
	}

	_, incomplete := e.graph.UnsatisfiedDependencies(task.ID, e.resolve)
	if len(incomplete) > 0 {
		task.BlockedBy = incomplete
		if task.Status == StatusValidated {
			// Queued for visibility and ordering, not assignable until the
			// dependencies complete.
			e.enqueue(task)
		}
		return
	}

	if conflicts := e.checkConflicts(task); len(conflicts) > 0 {
		e.block(task, conflicts, conflicts)
		return
	}

	if errs := e.sm.Transition(task, StatusReady); len(errs) > 0 {
		e.logger.Error("readiness transition rejected",
			zap.String("task", task.ID),
			zap.Error(joinValidationErrors(errs)))
		return
	}
	e.enqueue(task)
}

// block routes a task to blocked with diagnostic fields populated. Already
// blocked tasks just get their diagnostics refreshed.
func (e *Engine) block(task *Task, blockedBy, conflictsWith []string) {
	task.BlockedBy = blockedBy
	task.ConflictsWith = conflictsWith

	if task.Status == StatusBlocked {
		e.bus.Publish(events.TaskBlockedEvent{
			ID:        task.ID,
			BlockedBy: append([]string(nil), blockedBy...),
			Timestamp: e.now(),
		})
		return
	}

	e.queue.Remove(task.ID)
	if errs := e.sm.Transition(task, StatusBlocked); len(errs) > 0 {
		e.logger.Error("block transition rejected",
			zap.String("task", task.ID),
			zap.Error(joinValidationErrors(errs)))
	}
}

// checkConflicts applies the conflict policy against active and assigned
// tasks, filtering out pairs the operator explicitly allowed.
func (e *Engine) checkConflicts(task *Task) []string {
	conflicts := e.conflicts.Check(task, e.activeTasks())
	if len(conflicts) == 0 {
		return nil
	}
	allowed := e.conflictOverrides[task.ID]
	if len(allowed) == 0 {
		return conflicts
	}
	filtered := conflicts[:0]
	for _, id := range conflicts {
		if _, ok := allowed[id]; !ok {
			filtered = append(filtered, id)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return filtered
}

// activeTasks returns tasks currently assigned or in-progress.
func (e *Engine) activeTasks() []*Task {
	var active []*Task
	for _, t := range e.tasks {
		if t.Status == StatusAssigned || t.Status == StatusInProgress {
			active = append(active, t)
		}
	}
	return active
}

// effectivePriority is the numeric priority adjusted upward (never downward)
// by completed soft dependencies.
func (e *Engine) effectivePriority(task *Task) int {
	return task.Priority.Base() + e.graph.SatisfiedPreferences(task.ID, e.resolve)
}

func (e *Engine) enqueue(task *Task) {
	e.queue.Enqueue(task, e.effectivePriority(task))
}

// AssignNextTask runs a single assignment attempt. An empty queue or an
// empty agent pool is a no-op, never an error.
func (e *Engine) AssignNextTask() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.assignNextLocked()
}

func (e *Engine) assignNextLocked() bool {
	if e.queue.Len() == 0 {
		return false
	}
	agents := e.pool.AvailableAgents()
	if len(agents) == 0 {
		return false
	}

	// Strictly a ready task; a validated head-of-queue entry must never be
	// pushed into an invalid transition.
	task := e.queue.DequeueReady()
	if task == nil {
		return false
	}

	// Conflicts may have appeared since enqueue.
	if conflicts := e.checkConflicts(task); len(conflicts) > 0 {
		e.block(task, conflicts, conflicts)
		return false
	}

	var (
		agent Agent
		score float64
		found bool
	)
	if e.settings.LoadBalancingEnabled() {
		agent, score, found = e.balancer.Select(e.settings.Strategy(), agents, task)
	} else {
		agent, score, found = e.matcher.FindBestAgent(agents, task)
	}
	if !found {
		// Task stays ready and queued; it is waiting, not failed.
		e.enqueue(task)
		e.bus.Publish(events.TaskWaitingEvent{ID: task.ID, Timestamp: e.now()})
		return false
	}

	task.AssignedTo = agent.ID
	task.AgentMatchScore = score
	if errs := e.sm.Transition(task, StatusAssigned); len(errs) > 0 {
		task.AssignedTo = ""
		task.AgentMatchScore = 0
		e.enqueue(task)
		e.logger.Error("assignment transition rejected",
			zap.String("task", task.ID),
			zap.Error(joinValidationErrors(errs)))
		return false
	}

	if err := e.pool.UpdateLoad(agent.ID, agent.CurrentLoad+1, agent.MaxCapacity); err != nil {
		e.logger.Warn("agent load update failed",
			zap.String("agent", agent.ID), zap.Error(err))
	}

	if err := dispatchWithResilience(context.Background(), e.pool, agent.ID, cloneTask(task), e.retryCfg, e.breakers); err != nil {
		e.revertDispatchFailure(task, agent, err)
		return false
	}

	if errs := e.sm.Transition(task, StatusInProgress); len(errs) > 0 {
		e.logger.Error("in-progress transition rejected",
			zap.String("task", task.ID),
			zap.Error(joinValidationErrors(errs)))
	}
	task.AgentMatchScore = 0
	e.logger.Info("task dispatched",
		zap.String("task", task.ID),
		zap.String("agent", agent.ID),
		zap.Float64("score", score))
	return true
}

// revertDispatchFailure walks the only legal path back from a rejected
// hand-off (assigned -> failed -> ready), requeues the task, restores the
// agent's load, and reports the error without re-throwing it.
func (e *Engine) revertDispatchFailure(task *Task, agent Agent, err error) {
	task.FailureReason = fmt.Sprintf("dispatch to agent %q rejected: %v", agent.ID, err)
	task.AgentMatchScore = 0

	if errs := e.sm.Transition(task, StatusFailed); len(errs) > 0 {
		e.logger.Error("dispatch-failure transition rejected",
			zap.String("task", task.ID),
			zap.Error(joinValidationErrors(errs)))
		return
	}
	task.FailureReason = ""
	if errs := e.sm.Transition(task, StatusReady); len(errs) > 0 {
		e.logger.Error("dispatch-failure requeue rejected",
			zap.String("task", task.ID),
			zap.Error(joinValidationErrors(errs)))
		return
	}
	e.enqueue(task)

	if cur, ok := e.pool.Agent(agent.ID); ok {
		load := cur.CurrentLoad - 1
		if load < 0 {
			load = 0
		}
		_ = e.pool.UpdateLoad(agent.ID, load, cur.MaxCapacity)
	}

	e.logger.Error("task dispatch failed",
		zap.String("task", task.ID),
		zap.String("agent", agent.ID),
		zap.Error(err))
	e.notifier.ShowError(fmt.Sprintf("Failed to dispatch task %q: %v", task.Title, err))
}

// TryAssignTasks is the reconciliation driver. It attempts up to
// maxAssignAttempts assignments, recomputing queue size and agent
// availability each iteration and stopping on the first failed attempt.
// Operator notifications are gated strictly on a non-empty queue: an empty,
// fully satisfied queue produces zero notifications no matter how many
// agents are available.
func (e *Engine) TryAssignTasks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tryAssignLocked()
}

func (e *Engine) tryAssignLocked() int {
	assigned := 0
	for attempt := 0; attempt < maxAssignAttempts; attempt++ {
		if e.queue.Len() == 0 || len(e.pool.AvailableAgents()) == 0 {
			break
		}
		if !e.assignNextLocked() {
			// A known-unassignable head of queue; do not busy-loop on it.
			break
		}
		assigned++
	}

	queued := e.queue.Len()
	if queued > 0 {
		if len(e.pool.AvailableAgents()) == 0 {
			e.notifier.ShowInformation(fmt.Sprintf("%d task(s) queued; all agents are busy", queued))
		} else {
			e.notifier.ShowWarning(fmt.Sprintf("%d task(s) queued but not assigned", queued))
		}
	}
	return assigned
}

// CompleteTask transitions a task to completed, releases its agent's load,
// re-evaluates hard dependents through the reverse index, boosts soft
// dependents, and reconciles.
func (e *Engine) CompleteTask(taskID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[taskID]
	if !ok {
		return fmt.Errorf("complete task %q: %w", taskID, ErrTaskNotFound)
	}

	agentID := task.AssignedTo
	if errs := e.sm.Transition(task, StatusCompleted); len(errs) > 0 {
		return joinValidationErrors(errs)
	}
	delete(e.conflictOverrides, taskID)
	e.releaseAgent(agentID)

	e.reevaluateDependents(taskID)
	e.boostSoftDependents(taskID)
	e.tryAssignLocked()
	return nil
}

// FailTask transitions a task to failed with the given reason and releases
// its agent's load. The task stays failed until an explicit retry.
func (e *Engine) FailTask(taskID, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[taskID]
	if !ok {
		return fmt.Errorf("fail task %q: %w", taskID, ErrTaskNotFound)
	}

	agentID := task.AssignedTo
	task.FailureReason = reason
	if errs := e.sm.Transition(task, StatusFailed); len(errs) > 0 {
		return joinValidationErrors(errs)
	}
	e.releaseAgent(agentID)
	e.tryAssignLocked()
	return nil
}

// RetryTask is the manual failed -> ready path. Unsatisfied dependencies
// route the task to blocked instead.
func (e *Engine) RetryTask(taskID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[taskID]
	if !ok {
		return fmt.Errorf("retry task %q: %w", taskID, ErrTaskNotFound)
	}
	if task.Status != StatusFailed {
		return joinValidationErrors([]ValidationError{{
			Code:    ErrCodeInvalidTransition,
			Field:   taskID,
			Message: fmt.Sprintf("only failed tasks can be retried, task is %q", task.Status),
		}})
	}

	if errs := e.sm.Transition(task, StatusReady); len(errs) > 0 {
		// The only edge out of failed is ready; unsatisfied dependencies
		// leave the task failed and the caller informed.
		return joinValidationErrors(errs)
	}
	task.FailureReason = ""
	e.enqueue(task)
	e.tryAssignLocked()
	return nil
}

// ResolveConflict applies an operator decision to a blocked task.
// "allow" and "merge" clear the conflict and drive the task back toward
// ready; "block" is an explicit no-op that leaves the task blocked.
func (e *Engine) ResolveConflict(taskID string, resolution Resolution) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[taskID]
	if !ok {
		return fmt.Errorf("resolve conflict for %q: %w", taskID, ErrTaskNotFound)
	}

	switch resolution {
	case ResolutionBlock:
		return nil
	case ResolutionAllow, ResolutionMerge:
	default:
		return fmt.Errorf("unknown conflict resolution %q", resolution)
	}

	if len(task.ConflictsWith) > 0 {
		overrides := e.conflictOverrides[taskID]
		if overrides == nil {
			overrides = make(map[string]struct{})
			e.conflictOverrides[taskID] = overrides
		}
		for _, id := range task.ConflictsWith {
			overrides[id] = struct{}{}
		}
	}
	task.ConflictsWith = nil
	task.BlockedBy = nil

	if task.Status == StatusBlocked {
		e.evaluate(task)
		e.tryAssignLocked()
	}
	return nil
}

// AddTaskDependency registers a hard or soft edge and re-validates the task,
// driving it toward ready or blocked accordingly.
func (e *Engine) AddTaskDependency(taskID, depID string, soft bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[taskID]
	if !ok {
		return fmt.Errorf("add dependency to %q: %w", taskID, ErrTaskNotFound)
	}

	e.graph.AddEdge(taskID, depID, soft)
	if soft {
		if !contains(task.Prefers, depID) {
			task.Prefers = append(task.Prefers, depID)
		}
	} else {
		if !contains(task.DependsOn, depID) {
			task.DependsOn = append(task.DependsOn, depID)
		}
	}
	e.bus.Publish(events.DependencyAddedEvent{
		ID:        taskID,
		DependsOn: depID,
		Soft:      soft,
		Timestamp: e.now(),
	})

	if soft {
		// Soft edges only affect ordering.
		if e.queue.Contains(taskID) {
			e.queue.UpdatePriority(taskID, e.effectivePriority(task))
		}
		return nil
	}

	// A new hard edge can invalidate readiness.
	switch task.Status {
	case StatusReady:
		missing, incomplete := e.graph.UnsatisfiedDependencies(taskID, e.resolve)
		if verrs := e.graph.ValidateDependencies(task, e.resolve); len(verrs) > 0 || len(incomplete) > 0 {
			e.block(task, append(missing, incomplete...), nil)
		}
	case StatusValidated, StatusBlocked:
		e.evaluate(task)
	}
	return nil
}

// RemoveTaskDependency removes an edge and re-validates the task, which may
// unblock it.
func (e *Engine) RemoveTaskDependency(taskID, depID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	task, ok := e.tasks[taskID]
	if !ok {
		return fmt.Errorf("remove dependency from %q: %w", taskID, ErrTaskNotFound)
	}

	e.graph.RemoveEdge(taskID, depID)
	task.DependsOn = remove(task.DependsOn, depID)
	task.Prefers = remove(task.Prefers, depID)
	task.BlockedBy = remove(task.BlockedBy, depID)
	e.bus.Publish(events.DependencyRemovedEvent{
		ID:        taskID,
		DependsOn: depID,
		Timestamp: e.now(),
	})

	if task.Status == StatusBlocked || task.Status == StatusValidated {
		e.evaluate(task)
		e.tryAssignLocked()
	}
	return nil
}

// reevaluateDependents walks the reverse dependency index of a task and
// promotes newly ready dependents, re-checking conflicts on the way.
func (e *Engine) reevaluateDependents(taskID string) {
	for _, depID := range e.graph.Dependents(taskID) {
		dependent, ok := e.tasks[depID]
		if !ok {
			continue
		}
		switch dependent.Status {
		case StatusValidated:
			missing, incomplete := e.graph.UnsatisfiedDependencies(depID, e.resolve)
			if len(missing) > 0 || len(incomplete) > 0 {
				dependent.BlockedBy = append(missing, incomplete...)
				continue
			}
			if conflicts := e.checkConflicts(dependent); len(conflicts) > 0 {
				e.block(dependent, conflicts, conflicts)
				continue
			}
			if errs := e.sm.Transition(dependent, StatusReady); len(errs) == 0 {
				if !e.queue.MoveToReady(depID, e.effectivePriority(dependent)) {
					e.enqueue(dependent)
				}
			}
		case StatusBlocked:
			e.evaluate(dependent)
		}
	}
}

// boostSoftDependents recomputes effective priority for tasks preferring the
// completed task. The boost only ever raises priority above the base.
func (e *Engine) boostSoftDependents(taskID string) {
	for _, prefID := range e.graph.SoftDependents(taskID) {
		dependent, ok := e.tasks[prefID]
		if !ok {
			continue
		}
		e.bus.Publish(events.SoftDepSatisfiedEvent{
			ID:        prefID,
			Satisfied: taskID,
			Timestamp: e.now(),
		})
		if e.queue.Contains(prefID) {
			priority := e.effectivePriority(dependent)
			e.queue.UpdatePriority(prefID, priority)
			e.bus.Publish(events.TaskPriorityUpdatedEvent{
				ID:        prefID,
				Priority:  priority,
				Timestamp: e.now(),
			})
		}
	}
}

// releaseAgent decrements an agent's load after its task left the
// assigned/in-progress family.
func (e *Engine) releaseAgent(agentID string) {
	if agentID == "" {
		return
	}
	agent, ok := e.pool.Agent(agentID)
	if !ok {
		return
	}
	load := agent.CurrentLoad - 1
	if load < 0 {
		load = 0
	}
	if err := e.pool.UpdateLoad(agentID, load, agent.MaxCapacity); err != nil {
		e.logger.Warn("agent load release failed",
			zap.String("agent", agentID), zap.Error(err))
	}
}

// ReassignForLoadBalancing moves work away from agents above the utilization
// threshold, bounded by the configured per-cycle maximum to prevent
// thrashing. Returns the number of reassignments performed.
func (e *Engine) ReassignForLoadBalancing() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.settings.LoadBalancingEnabled() {
		return 0
	}

	maxMoves := e.settings.MaxReassignmentsPerCycle()
	threshold := e.settings.UtilizationThreshold()
	moved := 0

	// Deterministic scan order.
	active := e.activeTasks()
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	for _, task := range active {
		if moved >= maxMoves {
			break
		}
		current, ok := e.pool.Agent(task.AssignedTo)
		if !ok || current.Utilization() <= threshold {
			continue
		}

		candidates := e.reassignmentCandidates(task, current.ID)
		if len(candidates) == 0 {
			continue
		}
		if e.reassignTaskWithCandidates(task, current, candidates) {
			moved++
		}
	}
	return moved
}

// reassignmentCandidates filters the pool to agents eligible to take over a
// task: available, spare capacity, and at least some capability overlap.
func (e *Engine) reassignmentCandidates(task *Task, excludeID string) []Agent {
	var candidates []Agent
	for _, a := range e.pool.AvailableAgents() {
		if a.ID == excludeID || !a.Available() || a.AvailableCapacity() <= 0 {
			continue
		}
		if len(task.RequiredCapabilities) > 0 && e.matcher.Score(a.Capabilities, task.RequiredCapabilities) == 0 {
			continue
		}
		candidates = append(candidates, a)
	}
	return candidates
}

// reassignTaskWithCandidates hands an active task to the best candidate,
// re-dispatching and rebalancing load. Failure leaves the original
// assignment untouched.
func (e *Engine) reassignTaskWithCandidates(task *Task, from Agent, candidates []Agent) bool {
	target, score, ok := e.balancer.Select(e.settings.Strategy(), candidates, task)
	if !ok {
		return false
	}

	if err := dispatchWithResilience(context.Background(), e.pool, target.ID, cloneTask(task), e.retryCfg, e.breakers); err != nil {
		e.logger.Warn("reassignment dispatch rejected",
			zap.String("task", task.ID),
			zap.String("agent", target.ID),
			zap.Error(err))
		return false
	}

	task.AssignedTo = target.ID
	task.AgentMatchScore = 0
	_ = e.pool.UpdateLoad(target.ID, target.CurrentLoad+1, target.MaxCapacity)
	e.releaseAgent(from.ID)

	e.bus.Publish(events.TaskAssignedEvent{
		ID:         task.ID,
		AgentID:    target.ID,
		MatchScore: score,
		Timestamp:  e.now(),
	})
	e.logger.Info("task reassigned",
		zap.String("task", task.ID),
		zap.String("from", from.ID),
		zap.String("to", target.ID))
	return true
}

// SetConflictPolicy swaps the overlap predicate at runtime.
func (e *Engine) SetConflictPolicy(policy ConflictPolicy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conflicts.SetPolicy(policy)
}

// Task returns a copy of the task with the given id.
func (e *Engine) Task(taskID string) (*Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	task, ok := e.tasks[taskID]
	if !ok {
		return nil, false
	}
	return cloneTask(task), true
}

// Tasks returns copies of all tasks, ordered by creation time then id.
func (e *Engine) Tasks() []*Task {
	e.mu.Lock()
	defer e.mu.Unlock()

	tasks := make([]*Task, 0, len(e.tasks))
	for _, t := range e.tasks {
		tasks = append(tasks, cloneTask(t))
	}
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})
	return tasks
}

// QueueSnapshot returns queued tasks in dequeue order.
func (e *Engine) QueueSnapshot() []*Task {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := e.queue.Snapshot()
	tasks := make([]*Task, 0, len(snapshot))
	for _, t := range snapshot {
		tasks = append(tasks, cloneTask(t))
	}
	return tasks
}

// QueueSize returns the number of queued tasks.
func (e *Engine) QueueSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Len()
}

// ClearCompleted removes completed tasks and their graph entries. Returns
// the number removed.
func (e *Engine) ClearCompleted() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for id, t := range e.tasks {
		if t.Status != StatusCompleted {
			continue
		}
		e.graph.Remove(id)
		e.queue.Remove(id)
		delete(e.conflictOverrides, id)
		delete(e.tasks, id)
		removed++
	}
	return removed
}

// ClearAll removes every task regardless of state. Returns the number
// removed.
func (e *Engine) ClearAll() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := len(e.tasks)
	e.tasks = make(map[string]*Task)
	e.graph = NewDependencyGraph()
	e.queue = NewPriorityQueue()
	e.conflictOverrides = make(map[string]map[string]struct{})
	return removed
}
