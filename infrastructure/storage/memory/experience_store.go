// Package memory provides in-memory implementations of the storage
// interfaces, used for tests and for degraded-durability operation.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/reinforce-go/domain/experience"
)

// ExperienceStore is an in-memory implementation of experience.Store.
type ExperienceStore struct {
	records []experience.Record
	keys    map[string]struct{}
	mu      sync.RWMutex
}

// NewExperienceStore creates a new in-memory experience store.
func NewExperienceStore() *ExperienceStore {
	return &ExperienceStore{
		keys: make(map[string]struct{}),
	}
}

func stepKey(episodeID string, stepIndex int) string {
	return fmt.Sprintf("%s/%d", episodeID, stepIndex)
}

// Append persists one experience record.
func (s *ExperienceStore) Append(ctx context.Context, record experience.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.EpisodeID == "" {
		return experience.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := stepKey(record.EpisodeID, record.StepIndex)
	if _, exists := s.keys[key]; exists {
		return experience.ErrDuplicateStep
	}

	// Deep copy through JSON so callers cannot mutate stored state.
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	var stored experience.Record
	if err := json.Unmarshal(data, &stored); err != nil {
		return err
	}

	s.keys[key] = struct{}{}
	s.records = append(s.records, stored)
	return nil
}

// List returns up to limit records matching the filter, in insertion order.
func (s *ExperienceStore) List(ctx context.Context, filter experience.ListFilter, limit int) ([]experience.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []experience.Record
	for _, record := range s.records {
		if !matchesFilter(record, filter) {
			continue
		}
		result = append(result, record)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Count returns the number of records matching the filter.
func (s *ExperienceStore) Count(ctx context.Context, filter experience.ListFilter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, record := range s.records {
		if matchesFilter(record, filter) {
			count++
		}
	}
	return count, nil
}

func matchesFilter(record experience.Record, filter experience.ListFilter) bool {
	if filter.AgentType != "" && record.Experience.AgentType != filter.AgentType {
		return false
	}
	if filter.EpisodeID != "" && record.EpisodeID != filter.EpisodeID {
		return false
	}
	if filter.DoneOnly && !record.Experience.Done {
		return false
	}
	if !filter.FromTime.IsZero() && record.Experience.Timestamp.Before(filter.FromTime) {
		return false
	}
	if filter.MinPriority > 0 && record.Experience.Priority < filter.MinPriority {
		return false
	}
	return true
}

// Len returns the number of stored records.
func (s *ExperienceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Clear removes all records.
func (s *ExperienceStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = nil
	s.keys = make(map[string]struct{})
}

var _ experience.Store = (*ExperienceStore)(nil)
