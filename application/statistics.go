package application

import (
	"github.com/felixgeelhaar/reinforce-go/domain/rl"
)

// Statistics reports one agent type's learning progress.
type Statistics struct {
	AgentType     rl.AgentType `json:"agent_type"`
	Episodes      int          `json:"episodes"`
	ActiveEpisode string       `json:"active_episode,omitempty"`
	AvgReward     float64      `json:"avg_reward"`
	SuccessRate   float64      `json:"success_rate"`
	QTableSize    int          `json:"qtable_size"`
	Epsilon       float64      `json:"epsilon"`
	BufferSize    int          `json:"buffer_size"`
	ModelVersion  int          `json:"model_version"`
	Degraded      bool         `json:"degraded"`
}

// Statistics returns the learning statistics for one agent type.
func (r *Registry) Statistics(agentType rl.AgentType) (Statistics, error) {
	s, err := r.slotFor(agentType)
	if err != nil {
		return Statistics{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return Statistics{
		AgentType:     agentType,
		Episodes:      s.episodes,
		ActiveEpisode: s.slot.EpisodeID(),
		AvgReward:     avg(s.rewardSum, s.episodes),
		SuccessRate:   avg(float64(s.successes), s.episodes),
		QTableSize:    s.learner.TableSize(),
		Epsilon:       s.learner.Epsilon(),
		BufferSize:    s.buffer.Len(),
		ModelVersion:  s.modelVersion,
		Degraded:      r.gateway.Degraded(),
	}, nil
}

// AllStatistics returns the statistics of every agent type.
func (r *Registry) AllStatistics() []Statistics {
	all := make([]Statistics, 0, len(r.slots))
	for _, agentType := range rl.AllAgentTypes() {
		stats, err := r.Statistics(agentType)
		if err != nil {
			continue
		}
		all = append(all, stats)
	}
	return all
}
