package application

import (
	"time"

	"github.com/felixgeelhaar/reinforce-go/infrastructure/config"
	"github.com/felixgeelhaar/reinforce-go/infrastructure/persistence"
)

// settings collects construction-time dependencies for the registry.
type settings struct {
	cfg     *config.EngineConfig
	gateway *persistence.Gateway
	now     func() time.Time
	seed    int64
	seeded  bool
}

func defaultSettings() *settings {
	return &settings{
		now: time.Now,
	}
}

// Option configures the registry.
type Option func(*settings)

// WithConfig sets the engine configuration.
func WithConfig(cfg *config.EngineConfig) Option {
	return func(s *settings) {
		s.cfg = cfg
	}
}

// WithGateway sets the persistence gateway.
func WithGateway(g *persistence.Gateway) Option {
	return func(s *settings) {
		s.gateway = g
	}
}

// WithSeed makes exploration, sampling, and eviction deterministic
// across all agent types. Tests only.
func WithSeed(seed int64) Option {
	return func(s *settings) {
		s.seed = seed
		s.seeded = true
	}
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}
