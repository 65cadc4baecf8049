package rl

import "fmt"

// Action is a tagged variant over an agent type's closed action set,
// carrying named parameters for the executor.
type Action struct {
	AgentType AgentType      `json:"agent_type"`
	Tag       ActionTag      `json:"tag"`
	Params    map[string]any `json:"params,omitempty"`
}

// NewAction constructs a validated action. The tag must belong to the
// declared action set for the agent type.
func NewAction(agentType AgentType, tag ActionTag, params map[string]any) (Action, error) {
	if !agentType.IsValid() {
		return Action{}, NewValidationError("agent_type", fmt.Sprintf("unknown agent type %q", agentType))
	}
	if ActionOrdinal(agentType, tag) < 0 {
		return Action{}, NewValidationError("tag", fmt.Sprintf("action %q not in action set for agent %q", tag, agentType))
	}
	return Action{AgentType: agentType, Tag: tag, Params: params}, nil
}

// Ordinal returns the action's column index in the agent's Q-table.
func (a Action) Ordinal() int {
	return ActionOrdinal(a.AgentType, a.Tag)
}

// ToMap serializes the action to a generic map.
func (a Action) ToMap() map[string]any {
	params := make(map[string]any, len(a.Params))
	for k, v := range a.Params {
		params[k] = v
	}
	return map[string]any{
		"agent_type": string(a.AgentType),
		"tag":        string(a.Tag),
		"params":     params,
	}
}

// ActionFromMap reconstructs an action from its map form.
func ActionFromMap(m map[string]any) (Action, error) {
	var params map[string]any
	if raw, ok := m["params"].(map[string]any); ok && len(raw) > 0 {
		params = make(map[string]any, len(raw))
		for k, v := range raw {
			params[k] = v
		}
	}
	return NewAction(
		AgentType(asString(m["agent_type"])),
		ActionTag(asString(m["tag"])),
		params,
	)
}
