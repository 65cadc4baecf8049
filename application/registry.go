// Package application composes the learning engine: one isolated
// (buffer, learner, slot) triple per agent type, the episode manager,
// the retraining coordinator, and the stale-episode sweeper.
package application

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/reinforce-go/domain/episode"
	"github.com/felixgeelhaar/reinforce-go/domain/experience"
	"github.com/felixgeelhaar/reinforce-go/domain/model"
	"github.com/felixgeelhaar/reinforce-go/domain/rl"
	"github.com/felixgeelhaar/reinforce-go/infrastructure/config"
	"github.com/felixgeelhaar/reinforce-go/infrastructure/lifecycle"
	"github.com/felixgeelhaar/reinforce-go/infrastructure/logging"
	"github.com/felixgeelhaar/reinforce-go/infrastructure/persistence"
	"github.com/felixgeelhaar/reinforce-go/infrastructure/qlearning"
	"github.com/felixgeelhaar/reinforce-go/infrastructure/replay"
	"github.com/felixgeelhaar/reinforce-go/infrastructure/storage/memory"
)

// agentState is the per-agent-type learning loop. All fields behind mu;
// one mutex per agent type so independent agents never contend.
type agentState struct {
	mu sync.Mutex

	config  config.AgentConfig
	buffer  *replay.Buffer
	learner *qlearning.Learner
	slot    *lifecycle.Slot

	active    *episode.Episode
	stepIndex int
	sawDone   bool

	episodes     int // lifetime terminal episodes
	successes    int
	rewardSum    float64
	modelVersion int
}

// Registry is the top-level engine. It owns one isolated learning loop
// per agent type and the persistence gateway they share.
type Registry struct {
	cfg     *config.EngineConfig
	gateway *persistence.Gateway
	slots   map[rl.AgentType]*agentState
	now     func() time.Time
}

// New creates a registry. Without options it runs on in-memory stores
// with the canonical configuration.
func New(opts ...Option) (*Registry, error) {
	settings := defaultSettings()
	for _, opt := range opts {
		opt(settings)
	}

	cfg := settings.cfg
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gateway := settings.gateway
	if gateway == nil {
		gateway = persistence.New(context.Background(),
			memory.NewExperienceStore(),
			memory.NewModelStore(),
			memory.NewEpisodeStore())
	}

	r := &Registry{
		cfg:     cfg,
		gateway: gateway,
		slots:   make(map[rl.AgentType]*agentState, len(rl.AllAgentTypes())),
		now:     settings.now,
	}

	for _, agentType := range rl.AllAgentTypes() {
		resolved := cfg.Resolve(agentType)

		bufferOpts := []replay.Option{replay.WithCapacity(resolved.BufferCapacity)}
		learnerOpts := []qlearning.Option{}
		if settings.seeded {
			bufferOpts = append(bufferOpts, replay.WithSeed(settings.seed))
			learnerOpts = append(learnerOpts, qlearning.WithSeed(settings.seed))
		}

		learner, err := qlearning.NewLearner(agentType, resolved.Learning, learnerOpts...)
		if err != nil {
			return nil, err
		}
		slot, err := lifecycle.NewSlot(agentType)
		if err != nil {
			return nil, err
		}

		r.slots[agentType] = &agentState{
			config:  resolved,
			buffer:  replay.New(agentType, bufferOpts...),
			learner: learner,
			slot:    slot,
		}
	}

	return r, nil
}

// Gateway returns the persistence gateway.
func (r *Registry) Gateway() *persistence.Gateway {
	return r.gateway
}

func (r *Registry) slotFor(agentType rl.AgentType) (*agentState, error) {
	s, ok := r.slots[agentType]
	if !ok {
		return nil, rl.NewValidationError("agent_type", "unknown agent type")
	}
	return s, nil
}

// StartEpisode opens a new episode for an agent type and returns its ID.
// A ConflictError is returned while another episode is active.
func (r *Registry) StartEpisode(ctx context.Context, agentType rl.AgentType) (string, error) {
	s, err := r.slotFor(agentType)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	if err := s.slot.Begin(id); err != nil {
		return "", err
	}

	s.active = episode.New(id, agentType)
	s.active.StartTime = r.now().UTC()
	s.stepIndex = 0
	s.sawDone = false

	logging.Info().
		Add(logging.Agent(agentType)).
		Add(logging.EpisodeID(id)).
		Add(logging.Epsilon(s.learner.Epsilon())).
		Msg("episode started")

	return id, nil
}

// SelectAction picks an action for the state under the agent's current
// policy. Requires an active episode.
func (r *Registry) SelectAction(ctx context.Context, agentType rl.AgentType, state rl.State, explore bool) (rl.Action, error) {
	s, err := r.slotFor(agentType)
	if err != nil {
		return rl.Action{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.slot.Active() {
		return rl.Action{}, &rl.ConflictError{AgentType: agentType, Reason: "no active episode"}
	}

	return s.learner.SelectAction(state, explore)
}

// StoreExperience records one transition in the active episode: the
// reward is accumulated, the experience enters the replay buffer, and a
// durable copy goes through the gateway best-effort. Writes after a
// done transition are rejected.
func (r *Registry) StoreExperience(ctx context.Context, agentType rl.AgentType, exp rl.Experience) error {
	s, err := r.slotFor(agentType)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.slot.Active() {
		return &rl.ConflictError{AgentType: agentType, Reason: "no active episode"}
	}
	if s.sawDone {
		return &rl.ConflictError{AgentType: agentType, Reason: "episode already saw a terminal transition"}
	}
	if exp.AgentType != agentType {
		return rl.NewValidationError("agent_type", "experience belongs to a different agent type")
	}

	if err := s.buffer.Add(exp); err != nil {
		return err
	}
	s.active.Record(exp.Reward)
	if exp.Done {
		s.sawDone = true
	}

	record := experience.Record{
		EpisodeID:  s.active.ID,
		StepIndex:  s.stepIndex,
		Experience: exp,
	}
	s.stepIndex++

	// Durability is best-effort; a warning never fails the step.
	if err := r.gateway.StoreExperience(ctx, record); err != nil {
		logging.Warn().
			Add(logging.Agent(agentType)).
			Add(logging.EpisodeID(s.active.ID)).
			Add(logging.ErrorField(err)).
			Msg("experience not persisted")
	}

	return nil
}

// EndEpisode finalizes the active episode, persists it best-effort,
// resets the slot, and decays epsilon. A non-zero totalReward overrides
// the accumulated sum; zero means keep the accumulated sum, so an exact
// override of 0 is not expressible. The returned error is either a
// ConflictError (no active episode) or a non-fatal PersistenceWarning.
func (r *Registry) EndEpisode(ctx context.Context, agentType rl.AgentType, success bool, totalReward float64, metrics map[string]float64) error {
	s, err := r.slotFor(agentType)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return r.endEpisodeLocked(ctx, s, success, totalReward, metrics)
}

// endEpisodeLocked is shared with the sweeper; s.mu must be held.
func (r *Registry) endEpisodeLocked(ctx context.Context, s *agentState, success bool, totalReward float64, metrics map[string]float64) error {
	if !s.slot.Active() || s.active == nil {
		return &rl.ConflictError{AgentType: s.slot.AgentType(), Reason: "no active episode"}
	}

	ep := s.active
	ep.Finalize(success, totalReward, metrics)
	ep.EndTime = r.now().UTC()

	if err := s.slot.Finish(); err != nil {
		return err
	}
	s.active = nil
	s.sawDone = false

	s.episodes++
	s.rewardSum += ep.CumulativeReward
	if success {
		s.successes++
	}
	s.learner.DecayEpsilon()

	logging.Info().
		Add(logging.Agent(ep.AgentType)).
		Add(logging.EpisodeID(ep.ID)).
		Add(logging.Reward(ep.CumulativeReward)).
		Add(logging.Steps(ep.StepCount)).
		Add(logging.Epsilon(s.learner.Epsilon())).
		Add(logging.Duration(ep.Duration())).
		Msg("episode ended")

	return r.gateway.SaveEpisode(ctx, ep)
}

// SaveModel snapshots the agent's Q-table and persists it with the
// next version number. The version advances even when persistence
// fails; the failure is surfaced as a PersistenceWarning.
func (r *Registry) SaveModel(ctx context.Context, agentType rl.AgentType) (model.Version, error) {
	s, err := r.slotFor(agentType)
	if err != nil {
		return model.Version{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return r.saveModelLocked(ctx, s)
}

// saveModelLocked persists a snapshot; s.mu must be held.
func (r *Registry) saveModelLocked(ctx context.Context, s *agentState) (model.Version, error) {
	s.modelVersion++
	version := model.Version{
		AgentType:       s.learner.AgentType(),
		Number:          s.modelVersion,
		TrainedEpisodes: s.episodes,
		AvgReward:       avg(s.rewardSum, s.episodes),
		SuccessRate:     avg(float64(s.successes), s.episodes),
		CreatedAt:       r.now().UTC(),
	}

	err := r.gateway.SaveModel(ctx, s.learner.Snapshot(), version)
	if err != nil {
		logging.Warn().
			Add(logging.Agent(version.AgentType)).
			Add(logging.Version(version.Number)).
			Add(logging.ErrorField(err)).
			Msg("model snapshot not persisted")
	}
	return version, err
}

// LoadModel restores the agent's Q-table and epsilon from the latest
// persisted snapshot.
func (r *Registry) LoadModel(ctx context.Context, agentType rl.AgentType) (model.Version, error) {
	s, err := r.slotFor(agentType)
	if err != nil {
		return model.Version{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, version, err := r.gateway.LoadModel(ctx, agentType)
	if err != nil {
		return model.Version{}, err
	}
	if err := s.learner.Restore(snapshot); err != nil {
		return model.Version{}, err
	}
	s.modelVersion = version.Number

	logging.Info().
		Add(logging.Agent(agentType)).
		Add(logging.Version(version.Number)).
		Add(logging.QTableSize(s.learner.TableSize())).
		Msg("model restored")

	return version, nil
}

func avg(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
