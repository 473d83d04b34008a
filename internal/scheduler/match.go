package scheduler

import (
	"sort"
)

// CapabilityMatcher scores agents against a task's required capabilities.
type CapabilityMatcher struct{}

// ScoredAgent pairs an agent with its capability match score.
type ScoredAgent struct {
	Agent Agent
	Score float64
}

// Score returns the fraction of required capabilities the agent possesses,
// in [0,1]. A task requiring nothing matches every agent perfectly.
func (CapabilityMatcher) Score(agentCapabilities, required []string) float64 {
	if len(required) == 0 {
		return 1.0
	}
	have := make(map[string]struct{}, len(agentCapabilities))
	for _, c := range agentCapabilities {
		have[c] = struct{}{}
	}
	matched := 0
	for _, c := range required {
		if _, ok := have[c]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}

// RankAgents returns agents sorted descending by match score. Ties keep the
// input order so ranking is deterministic for equal scores.
func (m CapabilityMatcher) RankAgents(agents []Agent, task *Task) []ScoredAgent {
	ranked := make([]ScoredAgent, 0, len(agents))
	for _, a := range agents {
		ranked = append(ranked, ScoredAgent{
			Agent: a,
			Score: m.Score(a.Capabilities, task.RequiredCapabilities),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// FindBestAgent returns the highest-scoring agent that is available with
// spare capacity, or false when none qualifies.
func (m CapabilityMatcher) FindBestAgent(agents []Agent, task *Task) (Agent, float64, bool) {
	for _, sa := range m.RankAgents(agents, task) {
		if sa.Agent.Available() && sa.Agent.AvailableCapacity() > 0 {
			return sa.Agent, sa.Score, true
		}
	}
	return Agent{}, 0, false
}
