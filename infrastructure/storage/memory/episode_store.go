package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/reinforce-go/domain/episode"
)

// EpisodeStore is an in-memory implementation of episode.Store.
type EpisodeStore struct {
	episodes map[string][]byte
	mu       sync.RWMutex
}

// NewEpisodeStore creates a new in-memory episode store.
func NewEpisodeStore() *EpisodeStore {
	return &EpisodeStore{
		episodes: make(map[string][]byte),
	}
}

// Save persists an episode summary. Saving an existing ID overwrites it,
// so a force-terminated episode can replace its in-flight record.
func (s *EpisodeStore) Save(ctx context.Context, e *episode.Episode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.ID == "" {
		return episode.ErrInvalidEpisodeID
	}

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodes[e.ID] = data
	return nil
}

// Get retrieves an episode by ID.
func (s *EpisodeStore) Get(ctx context.Context, id string) (*episode.Episode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, episode.ErrInvalidEpisodeID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.episodes[id]
	if !ok {
		return nil, episode.ErrEpisodeNotFound
	}

	var e episode.Episode
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// List returns episodes matching the filter, ordered by start time.
func (s *EpisodeStore) List(ctx context.Context, filter episode.ListFilter) ([]*episode.Episode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*episode.Episode
	for _, data := range s.episodes {
		var e episode.Episode
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		if !matchesEpisodeFilter(&e, filter) {
			continue
		}
		result = append(result, &e)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime.Before(result[j].StartTime)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*episode.Episode{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}

	return result, nil
}

// Count returns the number of episodes matching the filter.
func (s *EpisodeStore) Count(ctx context.Context, filter episode.ListFilter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, data := range s.episodes {
		var e episode.Episode
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		if matchesEpisodeFilter(&e, filter) {
			count++
		}
	}
	return count, nil
}

// Summary returns aggregate statistics for matching episodes.
func (s *EpisodeStore) Summary(ctx context.Context, filter episode.ListFilter) (episode.Summary, error) {
	if err := ctx.Err(); err != nil {
		return episode.Summary{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var summary episode.Summary
	var totalReward float64
	var totalDuration time.Duration

	for _, data := range s.episodes {
		var e episode.Episode
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		if !matchesEpisodeFilter(&e, filter) {
			continue
		}

		summary.TotalEpisodes++
		totalReward += e.CumulativeReward

		switch e.Status {
		case episode.StatusCompleted:
			summary.Completed++
			totalDuration += e.Duration()
		case episode.StatusFailed:
			summary.Failed++
			totalDuration += e.Duration()
		}
	}

	if summary.TotalEpisodes > 0 {
		summary.AverageReward = totalReward / float64(summary.TotalEpisodes)
	}
	terminal := summary.Completed + summary.Failed
	if terminal > 0 {
		summary.SuccessRate = float64(summary.Completed) / float64(terminal)
		summary.AverageDuration = totalDuration / time.Duration(terminal)
	}

	return summary, nil
}

func matchesEpisodeFilter(e *episode.Episode, filter episode.ListFilter) bool {
	if filter.AgentType != "" && e.AgentType != filter.AgentType {
		return false
	}
	if len(filter.Status) > 0 {
		found := false
		for _, status := range filter.Status {
			if e.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !filter.FromTime.IsZero() && e.StartTime.Before(filter.FromTime) {
		return false
	}
	if !filter.ToTime.IsZero() && e.StartTime.After(filter.ToTime) {
		return false
	}
	return true
}

// Len returns the number of stored episodes.
func (s *EpisodeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.episodes)
}

var (
	_ episode.Store           = (*EpisodeStore)(nil)
	_ episode.SummaryProvider = (*EpisodeStore)(nil)
)
