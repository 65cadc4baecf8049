package application

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/reinforce-go/domain/experience"
	"github.com/felixgeelhaar/reinforce-go/domain/rl"
	"github.com/felixgeelhaar/reinforce-go/infrastructure/logging"
)

// TrainResult summarizes one retraining pass.
type TrainResult struct {
	AgentType  rl.AgentType `json:"agent_type"`
	Processed  int          `json:"processed"`
	NewStates  int          `json:"new_states"`
	QTableSize int          `json:"qtable_size"`
	Version    int          `json:"version"`
}

// ShouldRetrain reports whether the agent type is due for a retraining
// pass: the lifetime episode count is a non-zero multiple of the
// retrain interval and the buffer holds at least the minimum number of
// experiences.
func (r *Registry) ShouldRetrain(agentType rl.AgentType) bool {
	s, err := r.slotFor(agentType)
	if err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	interval := s.config.RetrainInterval
	if interval <= 0 || s.episodes == 0 || s.episodes%interval != 0 {
		return false
	}
	return s.buffer.Len() >= s.config.MinExperiences
}

// RefillBuffer loads persisted experiences for the agent type into the
// replay buffer, up to its capacity, so a fresh process can train on
// history recorded by earlier runs. Returns the number added.
func (r *Registry) RefillBuffer(ctx context.Context, agentType rl.AgentType) (int, error) {
	s, err := r.slotFor(agentType)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := r.gateway.Experiences(ctx, experience.ListFilter{AgentType: agentType}, s.buffer.Capacity())
	if err != nil {
		return 0, err
	}

	added := 0
	for _, record := range records {
		if err := s.buffer.Add(record.Experience); err != nil {
			logging.Warn().
				Add(logging.Agent(agentType)).
				Add(logging.ErrorField(err)).
				Msg("skipping stored experience")
			continue
		}
		added++
	}

	logging.Info().
		Add(logging.Agent(agentType)).
		Add(logging.BufferSize(s.buffer.Len())).
		Msg("replay buffer refilled from store")

	return added, nil
}

// TrainAgent runs a retraining pass with the agent's configured batch
// size and epoch count.
func (r *Registry) TrainAgent(ctx context.Context, agentType rl.AgentType) (TrainResult, error) {
	s, err := r.slotFor(agentType)
	if err != nil {
		return TrainResult{}, err
	}
	return r.Train(ctx, agentType, s.config.BatchSize, s.config.Epochs)
}

// Train samples batchSize experiences per epoch from the replay buffer
// and applies the Q-learning update to each. Per-entry failures are
// isolated: skipped, logged, and the pass continues. On completion the
// snapshot is persisted under the next version number; the version
// advances even when persistence fails, and the failure comes back as
// a non-fatal PersistenceWarning alongside the result.
func (r *Registry) Train(ctx context.Context, agentType rl.AgentType, batchSize, epochs int) (TrainResult, error) {
	s, err := r.slotFor(agentType)
	if err != nil {
		return TrainResult{}, err
	}
	if batchSize <= 0 {
		return TrainResult{}, rl.NewValidationError("batch_size", "must be positive")
	}
	if epochs <= 0 {
		epochs = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result := TrainResult{AgentType: agentType}

	for range epochs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch, err := s.buffer.Sample(batchSize)
		if err != nil {
			var insufficient *rl.InsufficientDataError
			if errors.As(err, &insufficient) && result.Processed > 0 {
				break
			}
			return result, err
		}

		for _, exp := range batch {
			_, isNew, err := s.learner.Update(exp)
			if err != nil {
				logging.Warn().
					Add(logging.Agent(agentType)).
					Add(logging.ErrorField(err)).
					Msg("skipping unlearnable experience")
				continue
			}
			result.Processed++
			if isNew {
				result.NewStates++
			}
		}
	}

	result.QTableSize = s.learner.TableSize()

	version, err := r.saveModelLocked(ctx, s)
	result.Version = version.Number

	logging.Info().
		Add(logging.Agent(agentType)).
		Add(logging.Version(version.Number)).
		Add(logging.QTableSize(result.QTableSize)).
		Add(logging.BufferSize(s.buffer.Len())).
		Msg("retraining pass complete")

	return result, err
}
