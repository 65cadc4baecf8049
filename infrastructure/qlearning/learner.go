package qlearning

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/felixgeelhaar/reinforce-go/domain/model"
	"github.com/felixgeelhaar/reinforce-go/domain/rl"
)

// Learner maintains the value function for one agent type and selects
// actions under an epsilon-greedy policy. It is not safe for concurrent
// use; the owning registry slot serializes access alongside the buffer.
type Learner struct {
	agentType rl.AgentType
	config    Config
	table     *QTable
	epsilon   float64
	rng       *rand.Rand
}

// Option configures a learner.
type Option func(*Learner)

// WithSeed makes exploration deterministic for tests.
func WithSeed(seed int64) Option {
	return func(l *Learner) {
		l.rng = rand.New(rand.NewSource(seed))
	}
}

// NewLearner creates a learner for an agent type. Zero config fields
// fall back to the canonical defaults.
func NewLearner(agentType rl.AgentType, config Config, opts ...Option) (*Learner, error) {
	if !agentType.IsValid() {
		return nil, rl.NewValidationError("agent_type", "unknown agent type")
	}
	config = config.withDefaults()

	l := &Learner{
		agentType: agentType,
		config:    config,
		table:     NewQTable(rl.ActionCount(agentType), config.MaxStates),
		epsilon:   config.Epsilon,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// AgentType returns the agent type this learner belongs to.
func (l *Learner) AgentType() rl.AgentType {
	return l.agentType
}

// Epsilon returns the current exploration rate.
func (l *Learner) Epsilon() float64 {
	return l.epsilon
}

// TableSize returns the number of known states.
func (l *Learner) TableSize() int {
	return l.table.Size()
}

// QValue returns the current value of one state-action cell.
func (l *Learner) QValue(state rl.State, tag rl.ActionTag) float64 {
	ordinal := rl.ActionOrdinal(l.agentType, tag)
	if ordinal < 0 {
		return 0
	}
	return l.table.get(state.Key(), ordinal)
}

// Visits returns the visit counter of one state-action cell.
func (l *Learner) Visits(state rl.State, tag rl.ActionTag) uint64 {
	return l.table.Visits(state.Key(), rl.ActionOrdinal(l.agentType, tag))
}

// SelectAction picks an action for the state. With explore=true, a
// uniformly random action is returned with probability epsilon;
// otherwise the argmax action, with ties broken by the lowest ordinal
// so repeated greedy calls are deterministic.
func (l *Learner) SelectAction(state rl.State, explore bool) (rl.Action, error) {
	if err := state.Validate(); err != nil {
		return rl.Action{}, err
	}

	var ordinal int
	if explore && l.rng.Float64() < l.epsilon {
		ordinal = l.rng.Intn(rl.ActionCount(l.agentType))
	} else {
		ordinal = l.table.argmax(state.Key())
	}

	tag, ok := rl.ActionByOrdinal(l.agentType, ordinal)
	if !ok {
		return rl.Action{}, rl.NewValidationError("ordinal", fmt.Sprintf("no action at ordinal %d", ordinal))
	}
	return rl.NewAction(l.agentType, tag, nil)
}

// Update applies the Q-learning rule for one experience:
//
//	Q(s,a) ← Q(s,a) + α·(r + γ·max_a' Q(s',a') − Q(s,a))
//
// For terminal transitions the bootstrap term is omitted, so the update
// never reads the next state's row. Replaying the same experience is
// deliberately not idempotent: it is legitimate repeated learning
// signal. Returns the TD error and whether the state row was new.
func (l *Learner) Update(exp rl.Experience) (float64, bool, error) {
	if exp.AgentType != l.agentType {
		return 0, false, rl.NewValidationError("agent_type", "experience belongs to a different agent type")
	}
	ordinal := exp.Action.Ordinal()
	if ordinal < 0 || ordinal >= rl.ActionCount(l.agentType) {
		return 0, false, rl.NewValidationError("action", fmt.Sprintf("ordinal %d out of range", ordinal))
	}

	key := exp.State.Key()
	isNew := l.table.ensure(key)

	target := exp.Reward
	if !exp.Done {
		nextKey := exp.NextState.Key()
		l.table.ensure(nextKey)
		target += l.config.Gamma * l.table.max(nextKey)
	}

	current := l.table.get(key, ordinal)
	tdError := target - current
	l.table.set(key, ordinal, current+l.config.Alpha*tdError)

	return tdError, isNew, nil
}

// DecayEpsilon applies the per-episode multiplicative decay, flooring
// at EpsilonMin. Called once per completed episode, never per step.
func (l *Learner) DecayEpsilon() {
	l.epsilon *= l.config.EpsilonDecay
	if l.epsilon < l.config.EpsilonMin {
		l.epsilon = l.config.EpsilonMin
	}
}

// Snapshot returns a serializable copy of the table and epsilon.
func (l *Learner) Snapshot() model.Snapshot {
	return l.table.Snapshot(l.agentType, l.epsilon)
}

// Restore replaces the table and epsilon from a snapshot.
func (l *Learner) Restore(snapshot model.Snapshot) error {
	if snapshot.AgentType != l.agentType {
		return rl.NewValidationError("snapshot", "agent type mismatch")
	}
	if err := l.table.Restore(snapshot); err != nil {
		return err
	}
	if snapshot.Epsilon > 0 {
		l.epsilon = snapshot.Epsilon
	}
	return nil
}
