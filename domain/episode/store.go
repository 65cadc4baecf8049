package episode

import (
	"context"
	"time"

	"github.com/felixgeelhaar/reinforce-go/domain/rl"
)

// Store defines the interface for episode persistence.
// Implementations may be in-memory, SQLite, or any other backend.
type Store interface {
	// Save persists a finalized or in-flight episode summary.
	Save(ctx context.Context, e *Episode) error

	// Get retrieves an episode by ID.
	Get(ctx context.Context, id string) (*Episode, error)

	// List returns episodes matching the filter.
	List(ctx context.Context, filter ListFilter) ([]*Episode, error)

	// Count returns the number of episodes matching the filter.
	Count(ctx context.Context, filter ListFilter) (int64, error)
}

// ListFilter specifies criteria for listing episodes.
type ListFilter struct {
	// AgentType filters by agent type (empty means all).
	AgentType rl.AgentType

	// Status filters by status (empty means all).
	Status []Status

	// FromTime filters episodes started after this time.
	FromTime time.Time

	// ToTime filters episodes started before this time.
	ToTime time.Time

	// Limit is the maximum number of episodes to return (0 = no limit).
	Limit int

	// Offset is the number of episodes to skip for pagination.
	Offset int
}

// Summary provides aggregate statistics about stored episodes.
type Summary struct {
	TotalEpisodes   int64
	Completed       int64
	Failed          int64
	AverageReward   float64
	SuccessRate     float64
	AverageDuration time.Duration
}

// SummaryProvider is an optional interface for stores that support
// aggregate summaries.
type SummaryProvider interface {
	Summary(ctx context.Context, filter ListFilter) (Summary, error)
}
