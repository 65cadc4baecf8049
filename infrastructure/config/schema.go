// Package config provides configuration loading and parsing for the
// learning engine.
package config

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/felixgeelhaar/reinforce-go/domain/rl"
	"github.com/felixgeelhaar/reinforce-go/infrastructure/qlearning"
)

// Configuration errors.
var (
	ErrConfigNotFound    = errors.New("config: file not found")
	ErrInvalidFormat     = errors.New("config: invalid format")
	ErrUnsupportedFormat = errors.New("config: unsupported format")
	ErrValidationFailed  = errors.New("config: validation failed")
	ErrMissingEnvVar     = errors.New("config: missing environment variable")
)

// EngineConfig is the top-level engine configuration.
type EngineConfig struct {
	// Name is a human-readable name for this configuration.
	Name string `json:"name" yaml:"name"`

	// Logging configures the structured logger.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Defaults apply to every agent type unless overridden.
	Defaults AgentConfig `json:"defaults" yaml:"defaults"`

	// Agents holds per-agent-type overrides keyed by agent type name.
	Agents map[string]AgentConfig `json:"agents" yaml:"agents"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `json:"level" yaml:"level"`

	// Format is the output format (json or console).
	Format string `json:"format" yaml:"format"`
}

// AgentConfig holds the tunable parameters of one agent type's loop.
// Zero values fall back to the defaults section, then to the canonical
// constants.
type AgentConfig struct {
	// Learning holds the Q-learning constants.
	Learning qlearning.Config `json:"learning" yaml:"learning"`

	// BufferCapacity bounds the replay buffer.
	BufferCapacity int `json:"buffer_capacity" yaml:"buffer_capacity"`

	// BatchSize is the number of experiences sampled per training epoch.
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// Epochs is the number of sampling passes per training run.
	Epochs int `json:"epochs" yaml:"epochs"`

	// RetrainInterval is the episode count between retraining passes.
	RetrainInterval int `json:"retrain_interval" yaml:"retrain_interval"`

	// MinExperiences is the buffer size below which retraining is skipped.
	MinExperiences int `json:"min_experiences" yaml:"min_experiences"`

	// SweepTimeout force-terminates episodes active longer than this.
	SweepTimeout time.Duration `json:"sweep_timeout" yaml:"sweep_timeout"`

	// RewardWeights override the canonical reward weighting.
	RewardWeights *rl.RewardWeights `json:"reward_weights" yaml:"reward_weights"`
}

// Default returns the engine configuration used when no file is given.
func Default() *EngineConfig {
	return &EngineConfig{
		Name: "reinforce",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Defaults: DefaultAgentConfig(),
	}
}

// DefaultAgentConfig returns the canonical per-agent parameters.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Learning:        qlearning.DefaultConfig(),
		BufferCapacity:  10000,
		BatchSize:       32,
		Epochs:          1,
		RetrainInterval: 100,
		MinExperiences:  10,
		SweepTimeout:    30 * time.Minute,
	}
}

// Resolve returns the effective configuration for an agent type:
// the per-agent override merged over the defaults section merged over
// the canonical constants.
func (c *EngineConfig) Resolve(agentType rl.AgentType) AgentConfig {
	resolved := mergeAgentConfig(DefaultAgentConfig(), c.Defaults)
	if override, ok := c.Agents[string(agentType)]; ok {
		resolved = mergeAgentConfig(resolved, override)
	}
	return resolved
}

func mergeAgentConfig(base, override AgentConfig) AgentConfig {
	if override.Learning.Alpha != 0 {
		base.Learning.Alpha = override.Learning.Alpha
	}
	if override.Learning.Gamma != 0 {
		base.Learning.Gamma = override.Learning.Gamma
	}
	if override.Learning.Epsilon != 0 {
		base.Learning.Epsilon = override.Learning.Epsilon
	}
	if override.Learning.EpsilonDecay != 0 {
		base.Learning.EpsilonDecay = override.Learning.EpsilonDecay
	}
	if override.Learning.EpsilonMin != 0 {
		base.Learning.EpsilonMin = override.Learning.EpsilonMin
	}
	if override.Learning.MaxStates != 0 {
		base.Learning.MaxStates = override.Learning.MaxStates
	}
	if override.BufferCapacity != 0 {
		base.BufferCapacity = override.BufferCapacity
	}
	if override.BatchSize != 0 {
		base.BatchSize = override.BatchSize
	}
	if override.Epochs != 0 {
		base.Epochs = override.Epochs
	}
	if override.RetrainInterval != 0 {
		base.RetrainInterval = override.RetrainInterval
	}
	if override.MinExperiences != 0 {
		base.MinExperiences = override.MinExperiences
	}
	if override.SweepTimeout != 0 {
		base.SweepTimeout = override.SweepTimeout
	}
	if override.RewardWeights != nil {
		base.RewardWeights = override.RewardWeights
	}
	return base
}

// Weights returns the effective reward weights.
func (c AgentConfig) Weights() rl.RewardWeights {
	if c.RewardWeights != nil {
		return *c.RewardWeights
	}
	return rl.DefaultRewardWeights()
}

// Validate checks the configuration for out-of-range values.
func (c *EngineConfig) Validate() error {
	var errs []error

	check := func(scope string, a AgentConfig) {
		l := a.Learning
		if l.Alpha < 0 || l.Alpha > 1 {
			errs = append(errs, fmt.Errorf("%s: alpha %v outside [0,1]", scope, l.Alpha))
		}
		if l.Gamma < 0 || l.Gamma > 1 {
			errs = append(errs, fmt.Errorf("%s: gamma %v outside [0,1]", scope, l.Gamma))
		}
		if l.Epsilon < 0 || l.Epsilon > 1 {
			errs = append(errs, fmt.Errorf("%s: epsilon %v outside [0,1]", scope, l.Epsilon))
		}
		if l.EpsilonDecay < 0 || l.EpsilonDecay > 1 {
			errs = append(errs, fmt.Errorf("%s: epsilon_decay %v outside [0,1]", scope, l.EpsilonDecay))
		}
		if l.EpsilonMin < 0 || l.EpsilonMin > 1 {
			errs = append(errs, fmt.Errorf("%s: epsilon_min %v outside [0,1]", scope, l.EpsilonMin))
		}
		if a.BufferCapacity < 0 {
			errs = append(errs, fmt.Errorf("%s: buffer_capacity %d negative", scope, a.BufferCapacity))
		}
		if a.RetrainInterval < 0 {
			errs = append(errs, fmt.Errorf("%s: retrain_interval %d negative", scope, a.RetrainInterval))
		}
		if a.SweepTimeout < 0 {
			errs = append(errs, fmt.Errorf("%s: sweep_timeout %v negative", scope, a.SweepTimeout))
		}
		if w := a.RewardWeights; w != nil {
			sum := w.Success + w.Speed + w.Stealth + w.Damage + w.Detection
			if math.Abs(sum-1.0) > 1e-9 {
				errs = append(errs, fmt.Errorf("%s: reward weights sum to %v, want 1.0", scope, sum))
			}
		}
	}

	check("defaults", c.Defaults)
	for name, agent := range c.Agents {
		if !rl.AgentType(name).IsValid() {
			errs = append(errs, fmt.Errorf("agents.%s: unknown agent type", name))
		}
		check("agents."+name, agent)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrValidationFailed, errors.Join(errs...))
	}
	return nil
}
