package rl

import (
	"math"
	"time"
)

// Priority bounds for stored experiences.
const (
	// PriorityEpsilon is the floor added to |reward| so that zero-reward
	// transitions remain sampleable.
	PriorityEpsilon = 0.01

	// PriorityMax caps the priority of any single experience.
	PriorityMax = 100.0
)

// Experience is one transition tuple used as a training sample.
// Experiences are created by the episode manager, stored in the replay
// buffer, and read by the retraining coordinator.
type Experience struct {
	AgentType AgentType `json:"agent_type"`
	State     State     `json:"state"`
	Action    Action    `json:"action"`
	Reward    float64   `json:"reward"`
	NextState State     `json:"next_state"`
	Done      bool      `json:"done"`
	Priority  float64   `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
}

// NewExperience constructs a validated experience. A zero priority is
// replaced with |reward| + PriorityEpsilon; any priority is clamped to
// [PriorityEpsilon, PriorityMax].
func NewExperience(agentType AgentType, state State, action Action, reward float64, nextState State, done bool, priority float64) (Experience, error) {
	if !agentType.IsValid() {
		return Experience{}, NewValidationError("agent_type", "unknown agent type")
	}
	if math.IsNaN(reward) || math.IsInf(reward, 0) {
		return Experience{}, NewValidationError("reward", "must be finite")
	}
	if err := state.Validate(); err != nil {
		return Experience{}, err
	}
	if err := nextState.Validate(); err != nil {
		return Experience{}, err
	}
	if action.AgentType != agentType {
		return Experience{}, NewValidationError("action", "agent type mismatch")
	}
	if action.Ordinal() < 0 {
		return Experience{}, NewValidationError("action", "tag not in agent action set")
	}

	if priority == 0 {
		priority = math.Abs(reward) + PriorityEpsilon
	}
	priority = clampPriority(priority)

	return Experience{
		AgentType: agentType,
		State:     state,
		Action:    action,
		Reward:    reward,
		NextState: nextState,
		Done:      done,
		Priority:  priority,
		Timestamp: time.Now().UTC(),
	}, nil
}

func clampPriority(p float64) float64 {
	if p < PriorityEpsilon {
		return PriorityEpsilon
	}
	if p > PriorityMax {
		return PriorityMax
	}
	return p
}

// ToMap serializes the experience to a generic map.
func (e Experience) ToMap() map[string]any {
	return map[string]any{
		"agent_type": string(e.AgentType),
		"state":      e.State.ToMap(),
		"action":     e.Action.ToMap(),
		"reward":     e.Reward,
		"next_state": e.NextState.ToMap(),
		"done":       e.Done,
		"priority":   e.Priority,
		"timestamp":  e.Timestamp.Format(time.RFC3339Nano),
	}
}

// ExperienceFromMap reconstructs an experience from its map form.
// All fields round-trip exactly, including tags and nested params.
func ExperienceFromMap(m map[string]any) (Experience, error) {
	stateMap, ok := m["state"].(map[string]any)
	if !ok {
		return Experience{}, NewValidationError("state", "missing or malformed")
	}
	nextMap, ok := m["next_state"].(map[string]any)
	if !ok {
		return Experience{}, NewValidationError("next_state", "missing or malformed")
	}
	actionMap, ok := m["action"].(map[string]any)
	if !ok {
		return Experience{}, NewValidationError("action", "missing or malformed")
	}

	state, err := StateFromMap(stateMap)
	if err != nil {
		return Experience{}, err
	}
	nextState, err := StateFromMap(nextMap)
	if err != nil {
		return Experience{}, err
	}
	action, err := ActionFromMap(actionMap)
	if err != nil {
		return Experience{}, err
	}

	exp, err := NewExperience(
		AgentType(asString(m["agent_type"])),
		state,
		action,
		asFloat(m["reward"]),
		nextState,
		asBool(m["done"]),
		asFloat(m["priority"]),
	)
	if err != nil {
		return Experience{}, err
	}

	if raw := asString(m["timestamp"]); raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Experience{}, NewValidationError("timestamp", "not RFC3339")
		}
		exp.Timestamp = ts
	}

	return exp, nil
}
