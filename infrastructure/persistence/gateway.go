// Package persistence provides the gateway between the learning loop and
// the storage backends. The gateway probes its backend at construction
// and, when unreachable, degrades to logged no-op writes so learning
// never stalls on storage.
package persistence

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/reinforce-go/domain/episode"
	"github.com/felixgeelhaar/reinforce-go/domain/experience"
	"github.com/felixgeelhaar/reinforce-go/domain/model"
	"github.com/felixgeelhaar/reinforce-go/domain/rl"
	"github.com/felixgeelhaar/reinforce-go/infrastructure/logging"
)

// Pinger is implemented by backends that can report reachability.
// Stores without it (in-memory) are assumed reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config configures the gateway's resilience behavior.
type Config struct {
	// RetryMaxAttempts is the maximum number of write attempts.
	RetryMaxAttempts int

	// RetryInitialDelay is the initial delay between retries.
	RetryInitialDelay time.Duration

	// RetryBackoffMultiplier is the exponential backoff multiplier.
	RetryBackoffMultiplier float64

	// BreakerThreshold is the number of consecutive failures before the
	// circuit opens.
	BreakerThreshold int

	// BreakerTimeout is how long the circuit stays open.
	BreakerTimeout time.Duration

	// ProbeTimeout bounds the reachability probe at construction.
	ProbeTimeout time.Duration
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:       3,
		RetryInitialDelay:      50 * time.Millisecond,
		RetryBackoffMultiplier: 2.0,
		BreakerThreshold:       5,
		BreakerTimeout:         30 * time.Second,
		ProbeTimeout:           5 * time.Second,
	}
}

// Option configures the gateway.
type Option func(*Config)

// WithRetryMaxAttempts sets the maximum write attempts.
func WithRetryMaxAttempts(n int) Option {
	return func(c *Config) {
		c.RetryMaxAttempts = n
	}
}

// WithRetryInitialDelay sets the initial retry delay.
func WithRetryInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		c.RetryInitialDelay = d
	}
}

// WithBreakerThreshold sets the consecutive-failure trip threshold.
func WithBreakerThreshold(n int) Option {
	return func(c *Config) {
		c.BreakerThreshold = n
	}
}

// WithProbeTimeout sets the construction probe timeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ProbeTimeout = d
	}
}

// Stats reports gateway health counters.
type Stats struct {
	Degraded      bool   `json:"degraded"`
	Writes        int64  `json:"writes"`
	WriteFailures int64  `json:"write_failures"`
	SkippedWrites int64  `json:"skipped_writes"`
	LastWarning   string `json:"last_warning,omitempty"`
}

// Gateway wraps the experience, model, and episode stores behind a
// single write path with retry and circuit breaking.
type Gateway struct {
	experiences experience.Store
	models      model.Store
	episodes    episode.Store

	retry   retry.Retry[struct{}]
	breaker circuitbreaker.CircuitBreaker[struct{}]

	degraded atomic.Bool
	writes   atomic.Int64
	failures atomic.Int64
	skipped  atomic.Int64

	mu          sync.Mutex
	lastWarning error
}

// New creates a gateway over the given stores and probes reachability.
// A failed probe puts the gateway in degraded mode immediately.
func New(ctx context.Context, experiences experience.Store, models model.Store, episodes episode.Store, opts ...Option) *Gateway {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	threshold := cfg.BreakerThreshold
	if threshold <= 0 {
		threshold = 5
	}

	g := &Gateway{
		experiences: experiences,
		models:      models,
		episodes:    episodes,
		retry: retry.New[struct{}](retry.Config{
			MaxAttempts:   cfg.RetryMaxAttempts,
			InitialDelay:  cfg.RetryInitialDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    cfg.RetryBackoffMultiplier,
		}),
		breaker: circuitbreaker.New[struct{}](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    cfg.BreakerTimeout,
			Timeout:     cfg.BreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- bounds checked above
			},
		}),
	}

	g.probe(ctx, cfg.ProbeTimeout)
	return g
}

// probe checks each store that can report reachability.
func (g *Gateway) probe(ctx context.Context, timeout time.Duration) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for _, store := range []any{g.experiences, g.models, g.episodes} {
		p, ok := store.(Pinger)
		if !ok {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			logging.Warn().
				Add(logging.ErrorField(err)).
				Msg("persistence backend unreachable, entering degraded mode")
			g.degraded.Store(true)
			g.recordWarning(&rl.PersistenceWarning{Op: "probe", Err: err})
			return
		}
	}
}

// Degraded reports whether the gateway is operating without durability.
// Observability only; no caller branches on it.
func (g *Gateway) Degraded() bool {
	return g.degraded.Load()
}

func (g *Gateway) recordWarning(warning *rl.PersistenceWarning) {
	g.mu.Lock()
	g.lastWarning = warning
	g.mu.Unlock()
}

// write runs one store write through the breaker and retry chain. In
// degraded mode the write is skipped and logged. Failures come back as
// a PersistenceWarning so callers treat them as non-fatal.
func (g *Gateway) write(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if g.degraded.Load() {
		g.skipped.Add(1)
		logging.Debug().Msg("skipping " + op + " in degraded mode")
		return nil
	}

	_, err := g.breaker.Execute(ctx, func(ctx context.Context) (struct{}, error) {
		return g.retry.Do(ctx, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, fn(ctx)
		})
	})
	if err != nil {
		g.failures.Add(1)
		warning := &rl.PersistenceWarning{Op: op, Err: err}
		g.recordWarning(warning)
		logging.Warn().Add(logging.ErrorField(err)).Msg(op + " failed")
		return warning
	}

	g.writes.Add(1)
	return nil
}

// StoreExperience persists one experience record.
func (g *Gateway) StoreExperience(ctx context.Context, record experience.Record) error {
	return g.write(ctx, "store_experience", func(ctx context.Context) error {
		return g.experiences.Append(ctx, record)
	})
}

// Experiences returns stored records matching the filter. In degraded
// mode it returns an empty result rather than an error.
func (g *Gateway) Experiences(ctx context.Context, filter experience.ListFilter, limit int) ([]experience.Record, error) {
	if g.degraded.Load() {
		return nil, nil
	}
	records, err := g.experiences.List(ctx, filter, limit)
	if err != nil {
		logging.Warn().Add(logging.ErrorField(err)).Msg("experience read failed")
		return nil, nil
	}
	return records, nil
}

// SaveModel persists a Q-table snapshot with its version record.
// Version conflicts are store invariant violations and pass through
// unretried and unwrapped.
func (g *Gateway) SaveModel(ctx context.Context, snapshot model.Snapshot, version model.Version) error {
	if g.degraded.Load() {
		g.skipped.Add(1)
		logging.Debug().Msg("skipping save_model in degraded mode")
		return nil
	}

	err := g.models.Save(ctx, snapshot, version)
	if err == nil {
		g.writes.Add(1)
		return nil
	}
	if errors.Is(err, model.ErrVersionExists) || errors.Is(err, model.ErrVersionRegression) {
		return err
	}

	// First attempt consumed, remaining attempts go through the
	// breaker and retry chain.
	return g.write(ctx, "save_model", func(ctx context.Context) error {
		return g.models.Save(ctx, snapshot, version)
	})
}

// LoadModel retrieves the latest snapshot and version for an agent type.
// In degraded mode it reports model.ErrModelNotFound so callers start
// from an empty table.
func (g *Gateway) LoadModel(ctx context.Context, agentType rl.AgentType) (model.Snapshot, model.Version, error) {
	if g.degraded.Load() {
		return model.Snapshot{}, model.Version{}, model.ErrModelNotFound
	}
	return g.models.Load(ctx, agentType)
}

// LatestVersion returns the most recent version record for an agent type.
func (g *Gateway) LatestVersion(ctx context.Context, agentType rl.AgentType) (model.Version, error) {
	if g.degraded.Load() {
		return model.Version{}, model.ErrModelNotFound
	}
	return g.models.LatestVersion(ctx, agentType)
}

// SaveEpisode persists an episode summary.
func (g *Gateway) SaveEpisode(ctx context.Context, e *episode.Episode) error {
	return g.write(ctx, "save_episode", func(ctx context.Context) error {
		return g.episodes.Save(ctx, e)
	})
}

// Episodes returns stored episodes matching the filter, empty in
// degraded mode.
func (g *Gateway) Episodes(ctx context.Context, filter episode.ListFilter) ([]*episode.Episode, error) {
	if g.degraded.Load() {
		return nil, nil
	}
	episodes, err := g.episodes.List(ctx, filter)
	if err != nil {
		logging.Warn().Add(logging.ErrorField(err)).Msg("episode read failed")
		return nil, nil
	}
	return episodes, nil
}

// Summary aggregates stored episode outcomes if the backend supports it.
func (g *Gateway) Summary(ctx context.Context, filter episode.ListFilter) (episode.Summary, error) {
	if g.degraded.Load() {
		return episode.Summary{}, nil
	}
	provider, ok := g.episodes.(episode.SummaryProvider)
	if !ok {
		return episode.Summary{}, nil
	}
	return provider.Summary(ctx, filter)
}

// Statistics returns gateway health counters.
func (g *Gateway) Statistics() Stats {
	stats := Stats{
		Degraded:      g.degraded.Load(),
		Writes:        g.writes.Load(),
		WriteFailures: g.failures.Load(),
		SkippedWrites: g.skipped.Load(),
	}
	g.mu.Lock()
	if g.lastWarning != nil {
		stats.LastWarning = g.lastWarning.Error()
	}
	g.mu.Unlock()
	return stats
}
