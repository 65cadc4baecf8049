package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/felixgeelhaar/reinforce-go/domain/model"
	"github.com/felixgeelhaar/reinforce-go/domain/rl"
)

// ModelStore is a BadgerDB-backed implementation of model.Store.
// Snapshots are append-only: one entry per (agent type, version), plus a
// latest-version counter per agent type.
type ModelStore struct {
	db        *badger.DB
	keyPrefix string
	gcStop    chan struct{}
	gcWg      sync.WaitGroup
}

// storedModel is the serialized form of one snapshot with its version.
type storedModel struct {
	Snapshot model.Snapshot `json:"snapshot"`
	Version  model.Version  `json:"version"`
}

// NewModelStore creates a new BadgerDB model store.
func NewModelStore(cfg Config, opts ...Option) (*ModelStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &ModelStore{
		db:        db,
		keyPrefix: cfg.KeyPrefix,
		gcStop:    make(chan struct{}),
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.startGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}

	return s, nil
}

// NewModelStoreFromDB creates a model store from an existing database.
func NewModelStoreFromDB(db *badger.DB, keyPrefix string) *ModelStore {
	return &ModelStore{
		db:        db,
		keyPrefix: keyPrefix,
		gcStop:    make(chan struct{}),
	}
}

func (s *ModelStore) startGC(interval time.Duration, discardRatio float64) {
	s.gcWg.Add(1)
	go func() {
		defer s.gcWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				// ErrNoRewrite just means there was nothing to collect.
				_ = s.db.RunValueLogGC(discardRatio)
			case <-s.gcStop:
				return
			}
		}
	}()
}

// Key format: prefix + "model:" + agentType + ":" + version (8 bytes, big-endian)
func (s *ModelStore) modelKey(agentType rl.AgentType, version int) []byte {
	verBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(verBytes, uint64(version))
	return append([]byte(s.keyPrefix+"model:"+string(agentType)+":"), verBytes...)
}

// Key format: prefix + "latest:" + agentType for the version counter
func (s *ModelStore) latestKey(agentType rl.AgentType) []byte {
	return []byte(s.keyPrefix + "latest:" + string(agentType))
}

// Save persists a snapshot with its version record. Versions are
// append-only per agent type; repeating or lowering the version fails.
func (s *ModelStore) Save(ctx context.Context, snapshot model.Snapshot, version model.Version) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(storedModel{Snapshot: snapshot, Version: version})
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		latestKey := s.latestKey(version.AgentType)

		item, err := txn.Get(latestKey)
		if err == nil {
			var latest uint64
			err = item.Value(func(val []byte) error {
				if len(val) == 8 {
					latest = binary.BigEndian.Uint64(val)
				}
				return nil
			})
			if err != nil {
				return err
			}
			if uint64(version.Number) == latest {
				return model.ErrVersionExists
			}
			if uint64(version.Number) < latest {
				return model.ErrVersionRegression
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := txn.Set(s.modelKey(version.AgentType, version.Number), data); err != nil {
			return err
		}

		verBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(verBytes, uint64(version.Number))
		return txn.Set(latestKey, verBytes)
	})
}

// Load retrieves the latest snapshot and version for an agent type.
func (s *ModelStore) Load(ctx context.Context, agentType rl.AgentType) (model.Snapshot, model.Version, error) {
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, model.Version{}, err
	}

	var stored storedModel

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.latestKey(agentType))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return model.ErrModelNotFound
			}
			return err
		}

		var latest uint64
		if err := item.Value(func(val []byte) error {
			if len(val) == 8 {
				latest = binary.BigEndian.Uint64(val)
			}
			return nil
		}); err != nil {
			return err
		}

		item, err = txn.Get(s.modelKey(agentType, int(latest)))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return model.ErrModelNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		})
	})
	if err != nil {
		return model.Snapshot{}, model.Version{}, err
	}

	return stored.Snapshot, stored.Version, nil
}

// LatestVersion returns the most recent version record.
func (s *ModelStore) LatestVersion(ctx context.Context, agentType rl.AgentType) (model.Version, error) {
	_, version, err := s.Load(ctx, agentType)
	return version, err
}

// Versions lists all version records for an agent type, oldest first.
// Keys are big-endian version numbers, so iteration order is version order.
func (s *ModelStore) Versions(ctx context.Context, agentType rl.AgentType) ([]model.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prefix := []byte(s.keyPrefix + "model:" + string(agentType) + ":")
	var versions []model.Version

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var stored storedModel
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &stored)
			})
			if err != nil {
				continue // Skip malformed entries
			}
			versions = append(versions, stored.Version)
		}

		return nil
	})

	return versions, err
}

// Close stops GC and closes the database.
func (s *ModelStore) Close() error {
	close(s.gcStop)
	s.gcWg.Wait()
	return s.db.Close()
}

// DB returns the underlying BadgerDB database.
func (s *ModelStore) DB() *badger.DB {
	return s.db
}

var _ model.Store = (*ModelStore)(nil)
