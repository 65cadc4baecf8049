// Package qlearning provides the tabular Q-learning core: the value
// table and the epsilon-greedy learner for one agent type.
package qlearning

// Config holds the learning constants for one agent type.
type Config struct {
	// Alpha is the learning rate.
	Alpha float64 `json:"alpha" yaml:"alpha"`

	// Gamma is the discount factor.
	Gamma float64 `json:"gamma" yaml:"gamma"`

	// Epsilon is the initial exploration rate.
	Epsilon float64 `json:"epsilon" yaml:"epsilon"`

	// EpsilonDecay is the multiplicative decay applied once per
	// completed episode, never per step.
	EpsilonDecay float64 `json:"epsilon_decay" yaml:"epsilon_decay"`

	// EpsilonMin is the exploration floor.
	EpsilonMin float64 `json:"epsilon_min" yaml:"epsilon_min"`

	// MaxStates bounds the Q-table; past it, least-recently-updated
	// rows are evicted.
	MaxStates int `json:"max_states" yaml:"max_states"`
}

// DefaultConfig returns the canonical learning constants.
func DefaultConfig() Config {
	return Config{
		Alpha:        0.1,
		Gamma:        0.95,
		Epsilon:      1.0,
		EpsilonDecay: 0.995,
		EpsilonMin:   0.01,
		MaxStates:    100000,
	}
}

// withDefaults fills zero values with the canonical constants.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Alpha == 0 {
		c.Alpha = d.Alpha
	}
	if c.Gamma == 0 {
		c.Gamma = d.Gamma
	}
	if c.Epsilon == 0 {
		c.Epsilon = d.Epsilon
	}
	if c.EpsilonDecay == 0 {
		c.EpsilonDecay = d.EpsilonDecay
	}
	if c.EpsilonMin == 0 {
		c.EpsilonMin = d.EpsilonMin
	}
	if c.MaxStates == 0 {
		c.MaxStates = d.MaxStates
	}
	return c
}
