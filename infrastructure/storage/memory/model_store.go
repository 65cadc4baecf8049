package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/felixgeelhaar/reinforce-go/domain/model"
	"github.com/felixgeelhaar/reinforce-go/domain/rl"
)

// modelEntry holds one persisted snapshot with its version record.
type modelEntry struct {
	snapshot []byte
	version  model.Version
}

// ModelStore is an in-memory implementation of model.Store.
// Version records are append-only.
type ModelStore struct {
	entries map[rl.AgentType][]modelEntry
	mu      sync.RWMutex
}

// NewModelStore creates a new in-memory model store.
func NewModelStore() *ModelStore {
	return &ModelStore{
		entries: make(map[rl.AgentType][]modelEntry),
	}
}

// Save persists a snapshot with its version record.
func (s *ModelStore) Save(ctx context.Context, snapshot model.Snapshot, version model.Version) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.entries[version.AgentType]
	if len(existing) > 0 {
		latest := existing[len(existing)-1].version
		if version.Number == latest.Number {
			return model.ErrVersionExists
		}
		if version.Number < latest.Number {
			return model.ErrVersionRegression
		}
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	s.entries[version.AgentType] = append(existing, modelEntry{snapshot: data, version: version})
	return nil
}

// Load retrieves the latest snapshot and version for an agent type.
func (s *ModelStore) Load(ctx context.Context, agentType rl.AgentType) (model.Snapshot, model.Version, error) {
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, model.Version{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.entries[agentType]
	if len(entries) == 0 {
		return model.Snapshot{}, model.Version{}, model.ErrModelNotFound
	}

	latest := entries[len(entries)-1]
	var snapshot model.Snapshot
	if err := json.Unmarshal(latest.snapshot, &snapshot); err != nil {
		return model.Snapshot{}, model.Version{}, err
	}
	return snapshot, latest.version, nil
}

// LatestVersion returns the most recent version record.
func (s *ModelStore) LatestVersion(ctx context.Context, agentType rl.AgentType) (model.Version, error) {
	if err := ctx.Err(); err != nil {
		return model.Version{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.entries[agentType]
	if len(entries) == 0 {
		return model.Version{}, model.ErrModelNotFound
	}
	return entries[len(entries)-1].version, nil
}

// Versions lists all version records for an agent type, oldest first.
func (s *ModelStore) Versions(ctx context.Context, agentType rl.AgentType) ([]model.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.entries[agentType]
	versions := make([]model.Version, len(entries))
	for i, e := range entries {
		versions[i] = e.version
	}
	return versions, nil
}

var _ model.Store = (*ModelStore)(nil)
