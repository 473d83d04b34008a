package config

import (
	"github.com/benfinklea/nofx/internal/scheduler"
)

// LoadBalancingConfig controls agent selection during assignment.
type LoadBalancingConfig struct {
	Enabled bool `json:"enabled"`
	// Strategy is one of "balanced", "performance", "capacity".
	Strategy string `json:"strategy"`
	// MaxReassignmentsPerCycle caps how many tasks one rebalancing cycle may
	// move, to prevent thrashing.
	MaxReassignmentsPerCycle int `json:"max_reassignments_per_cycle"`
	// UtilizationThreshold is the load percentage above which an agent is
	// considered overloaded.
	UtilizationThreshold float64 `json:"utilization_threshold"`
}

// SchedulerSettings configures the reconciliation engine.
type SchedulerSettings struct {
	// AutoAssign runs an assignment pass immediately after task creation.
	AutoAssign    bool                `json:"auto_assign"`
	LoadBalancing LoadBalancingConfig `json:"load_balancing"`
}

// ServerConfig configures the REST control surface.
type ServerConfig struct {
	Addr     string `json:"addr"`
	LogLevel string `json:"log_level"`
}

// JournalConfig configures the optional sqlite lifecycle journal.
// An empty path disables journaling.
type JournalConfig struct {
	Path string `json:"path,omitempty"`
}

// Config is the top-level configuration.
type Config struct {
	Scheduler SchedulerSettings `json:"scheduler"`
	Server    ServerConfig      `json:"server"`
	Journal   JournalConfig     `json:"journal"`
}

// Config implements scheduler.Settings.

func (c *Config) AutoAssignTasks() bool      { return c.Scheduler.AutoAssign }
func (c *Config) LoadBalancingEnabled() bool { return c.Scheduler.LoadBalancing.Enabled }

func (c *Config) Strategy() scheduler.Strategy {
	switch c.Scheduler.LoadBalancing.Strategy {
	case string(scheduler.StrategyPerformance):
		return scheduler.StrategyPerformance
	case string(scheduler.StrategyCapacity):
		return scheduler.StrategyCapacity
	default:
		return scheduler.StrategyBalanced
	}
}

func (c *Config) MaxReassignmentsPerCycle() int {
	if c.Scheduler.LoadBalancing.MaxReassignmentsPerCycle <= 0 {
		return 3
	}
	return c.Scheduler.LoadBalancing.MaxReassignmentsPerCycle
}

func (c *Config) UtilizationThreshold() float64 {
	if c.Scheduler.LoadBalancing.UtilizationThreshold <= 0 {
		return 80
	}
	return c.Scheduler.LoadBalancing.UtilizationThreshold
}
