// Package rl provides the core domain model for the learning core:
// agent types, states, actions, experiences, and reward shaping.
package rl

// AgentType identifies an independently learning control loop.
// Each agent type owns its own Q-table, replay buffer, and episode slot.
type AgentType string

// Canonical agent types.
const (
	AgentDDoS  AgentType = "ddos"
	AgentShell AgentType = "shell"
	AgentExfil AgentType = "exfil"
)

// IsValid returns true if the agent type is recognized.
func (t AgentType) IsValid() bool {
	switch t {
	case AgentDDoS, AgentShell, AgentExfil:
		return true
	default:
		return false
	}
}

// String returns the string representation of the agent type.
func (t AgentType) String() string {
	return string(t)
}

// AllAgentTypes returns all canonical agent types.
func AllAgentTypes() []AgentType {
	return []AgentType{AgentDDoS, AgentShell, AgentExfil}
}

// ActionTag identifies one action within an agent type's closed action set.
type ActionTag string

// Action tags across all agent types.
const (
	TagIncreaseIntensity ActionTag = "increase_intensity"
	TagDecreaseIntensity ActionTag = "decrease_intensity"
	TagSwitchStrategy    ActionTag = "switch_strategy"
	TagRotateSource      ActionTag = "rotate_source"
	TagProbe             ActionTag = "probe"
	TagEscalate          ActionTag = "escalate"
	TagPersist           ActionTag = "persist"
	TagLateralMove       ActionTag = "lateral_move"
	TagIncreaseRate      ActionTag = "increase_rate"
	TagDecreaseRate      ActionTag = "decrease_rate"
	TagSwitchChannel     ActionTag = "switch_channel"
	TagPause             ActionTag = "pause"
	TagMaintain          ActionTag = "maintain"
)

// actionSets maps each agent type to its ordered action set.
// Slice position is the action ordinal and therefore the Q-table column;
// the order is part of the persisted model format and must not change.
var actionSets = map[AgentType][]ActionTag{
	AgentDDoS: {
		TagIncreaseIntensity,
		TagDecreaseIntensity,
		TagSwitchStrategy,
		TagRotateSource,
		TagMaintain,
	},
	AgentShell: {
		TagProbe,
		TagEscalate,
		TagPersist,
		TagLateralMove,
		TagMaintain,
	},
	AgentExfil: {
		TagIncreaseRate,
		TagDecreaseRate,
		TagSwitchChannel,
		TagPause,
		TagMaintain,
	},
}

// ActionSet returns the ordered action set for an agent type.
// The returned slice is a copy.
func ActionSet(t AgentType) []ActionTag {
	set := actionSets[t]
	out := make([]ActionTag, len(set))
	copy(out, set)
	return out
}

// ActionCount returns the size of an agent type's action set.
func ActionCount(t AgentType) int {
	return len(actionSets[t])
}

// ActionOrdinal returns the ordinal of a tag within an agent type's
// action set, or -1 if the tag does not belong to the set.
func ActionOrdinal(t AgentType, tag ActionTag) int {
	for i, candidate := range actionSets[t] {
		if candidate == tag {
			return i
		}
	}
	return -1
}

// ActionByOrdinal returns the tag at the given ordinal.
func ActionByOrdinal(t AgentType, ordinal int) (ActionTag, bool) {
	set := actionSets[t]
	if ordinal < 0 || ordinal >= len(set) {
		return "", false
	}
	return set[ordinal], true
}
