package scheduler

import (
	"time"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusQueued     Status = "queued"      // Accepted, not yet validated
	StatusValidated  Status = "validated"   // Structurally valid, dependencies registered
	StatusReady      Status = "ready"       // All hard dependencies completed, assignable
	StatusBlocked    Status = "blocked"     // Missing/cyclic dependency or resource conflict
	StatusAssigned   Status = "assigned"    // Handed to an agent, dispatch pending
	StatusInProgress Status = "in-progress" // Dispatch accepted by the agent
	StatusCompleted  Status = "completed"   // Terminal success
	StatusFailed     Status = "failed"      // Terminal failure, manual retry allowed
)

// Priority is the operator-facing priority band.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Base returns the numeric priority derived from the band.
// Unknown bands fall back to medium.
func (p Priority) Base() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityHigh:
		return 10
	default:
		return 5
	}
}

// Task represents a unit of schedulable work.
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`

	// RequiredCapabilities must be covered by an agent for a perfect match.
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`

	// Resources is the task's resource footprint (e.g. file paths), used by
	// the conflict policy to detect disallowed concurrent execution.
	Resources []string `json:"resources,omitempty"`

	Priority Priority `json:"priority"`
	Status   Status   `json:"status"`

	// AssignedTo is set only while the task is assigned or in-progress.
	AssignedTo string `json:"assigned_to,omitempty"`

	// AgentMatchScore is transient observability state, cleared after each
	// assignment attempt.
	AgentMatchScore float64 `json:"agent_match_score,omitempty"`

	DependsOn     []string `json:"depends_on,omitempty"`     // Hard dependencies
	Prefers       []string `json:"prefers,omitempty"`        // Soft dependencies
	BlockedBy     []string `json:"blocked_by,omitempty"`     // Ids currently preventing readiness
	ConflictsWith []string `json:"conflicts_with,omitempty"` // Conflicting task ids while blocked

	FailureReason string `json:"failure_reason,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TaskConfig is the operator-supplied description used to construct a task.
type TaskConfig struct {
	ID                   string   `json:"id,omitempty"` // Generated when empty
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	Tags                 []string `json:"tags,omitempty"`
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
	Resources            []string `json:"resources,omitempty"`
	Priority             Priority `json:"priority,omitempty"`
	DependsOn            []string `json:"depends_on,omitempty"`
	Prefers              []string `json:"prefers,omitempty"`
}

// Validate checks the structural requirements of a task configuration.
// Returns one ValidationError per missing field; an invalid config never
// produces a task object.
func (c TaskConfig) Validate() []ValidationError {
	var errs []ValidationError
	if c.Title == "" {
		errs = append(errs, ValidationError{Code: ErrCodeMissingField, Field: "title", Message: "task title is required"})
	}
	if c.Description == "" {
		errs = append(errs, ValidationError{Code: ErrCodeMissingField, Field: "description", Message: "task description is required"})
	}
	return errs
}

// newTask constructs a queued task from a validated config.
func newTask(cfg TaskConfig, now time.Time) *Task {
	priority := cfg.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	return &Task{
		ID:                   cfg.ID,
		Title:                cfg.Title,
		Description:          cfg.Description,
		Tags:                 append([]string(nil), cfg.Tags...),
		RequiredCapabilities: append([]string(nil), cfg.RequiredCapabilities...),
		Resources:            append([]string(nil), cfg.Resources...),
		Priority:             priority,
		Status:               StatusQueued,
		DependsOn:            append([]string(nil), cfg.DependsOn...),
		Prefers:              append([]string(nil), cfg.Prefers...),
		CreatedAt:            now,
	}
}

// cloneTask returns a deep copy so callers never alias engine-owned state.
func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	cp.Tags = append([]string(nil), task.Tags...)
	cp.RequiredCapabilities = append([]string(nil), task.RequiredCapabilities...)
	cp.Resources = append([]string(nil), task.Resources...)
	cp.DependsOn = append([]string(nil), task.DependsOn...)
	cp.Prefers = append([]string(nil), task.Prefers...)
	cp.BlockedBy = append([]string(nil), task.BlockedBy...)
	cp.ConflictsWith = append([]string(nil), task.ConflictsWith...)
	if task.AssignedAt != nil {
		t := *task.AssignedAt
		cp.AssignedAt = &t
	}
	if task.CompletedAt != nil {
		t := *task.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
