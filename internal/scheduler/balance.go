package scheduler

import (
	"sort"
)

// Strategy selects how the load balancer chooses among capability-eligible
// agents.
type Strategy string

const (
	// StrategyBalanced sorts by available capacity, breaking ties on
	// capability score.
	StrategyBalanced Strategy = "balanced"
	// StrategyPerformance maximizes a weighted blend of headroom and
	// capability fit.
	StrategyPerformance Strategy = "performance"
	// StrategyCapacity purely maximizes available capacity.
	StrategyCapacity Strategy = "capacity"
)

// LoadBalancer picks an agent for a task according to a strategy. All
// strategies first filter to agents that are available with strictly
// positive spare capacity.
type LoadBalancer struct {
	matcher CapabilityMatcher
}

// NewLoadBalancer creates a load balancer.
func NewLoadBalancer() *LoadBalancer {
	return &LoadBalancer{}
}

// Select returns the chosen agent and its capability score, or false when no
// agent is eligible.
func (b *LoadBalancer) Select(strategy Strategy, agents []Agent, task *Task) (Agent, float64, bool) {
	eligible := make([]ScoredAgent, 0, len(agents))
	for _, a := range agents {
		if !a.Available() || a.AvailableCapacity() <= 0 {
			continue
		}
		eligible = append(eligible, ScoredAgent{
			Agent: a,
			Score: b.matcher.Score(a.Capabilities, task.RequiredCapabilities),
		})
	}
	if len(eligible) == 0 {
		return Agent{}, 0, false
	}

	switch strategy {
	case StrategyPerformance:
		sort.SliceStable(eligible, func(i, j int) bool {
			return performanceScore(eligible[i]) > performanceScore(eligible[j])
		})
	case StrategyCapacity:
		sort.SliceStable(eligible, func(i, j int) bool {
			return eligible[i].Agent.AvailableCapacity() > eligible[j].Agent.AvailableCapacity()
		})
	default: // StrategyBalanced
		sort.SliceStable(eligible, func(i, j int) bool {
			ci, cj := eligible[i].Agent.AvailableCapacity(), eligible[j].Agent.AvailableCapacity()
			if ci != cj {
				return ci > cj
			}
			return eligible[i].Score > eligible[j].Score
		})
	}

	best := eligible[0]
	return best.Agent, best.Score, true
}

// performanceScore blends headroom and capability fit:
// 0.6 x (100 - utilization%) + 0.4 x capability score on a 100 scale.
func performanceScore(sa ScoredAgent) float64 {
	return 0.6*(100-sa.Agent.Utilization()) + 0.4*(sa.Score*100)
}
