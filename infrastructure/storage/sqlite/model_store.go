package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/felixgeelhaar/reinforce-go/domain/model"
	"github.com/felixgeelhaar/reinforce-go/domain/rl"
)

// ModelStore is a SQLite-backed implementation of model.Store.
// Snapshots are keyed by (agent_type, version); rows are append-only.
type ModelStore struct {
	db *sql.DB
}

// NewModelStore creates a new SQLite model store.
func NewModelStore(cfg Config, opts ...Option) (*ModelStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &ModelStore{db: db}
	if cfg.AutoMigrate {
		if err := s.migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewModelStoreFromDB creates a store from an existing connection.
func NewModelStoreFromDB(db *sql.DB) (*ModelStore, error) {
	s := &ModelStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ModelStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS models (
			agent_type TEXT NOT NULL,
			version INTEGER NOT NULL,
			trained_episodes INTEGER NOT NULL,
			avg_reward REAL NOT NULL,
			success_rate REAL NOT NULL,
			created_at INTEGER NOT NULL,
			snapshot BLOB NOT NULL,
			PRIMARY KEY (agent_type, version)
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

// Save persists a snapshot with its version record atomically.
func (s *ModelStore) Save(ctx context.Context, snapshot model.Snapshot, version model.Version) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	var latest sql.NullInt64
	err = tx.QueryRowContext(ctx,
		"SELECT MAX(version) FROM models WHERE agent_type = ?",
		string(version.AgentType),
	).Scan(&latest)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if latest.Valid {
		if int64(version.Number) == latest.Int64 {
			return model.ErrVersionExists
		}
		if int64(version.Number) < latest.Int64 {
			return model.ErrVersionRegression
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO models (agent_type, version, trained_episodes, avg_reward, success_rate, created_at, snapshot)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(version.AgentType), version.Number, version.TrainedEpisodes,
		version.AvgReward, version.SuccessRate, version.CreatedAt.UnixNano(), data,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrVersionExists
		}
		return err
	}

	return tx.Commit()
}

// Load retrieves the latest snapshot and version for an agent type.
func (s *ModelStore) Load(ctx context.Context, agentType rl.AgentType) (model.Snapshot, model.Version, error) {
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, model.Version{}, err
	}

	var data []byte
	version := model.Version{AgentType: agentType}
	var createdAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT version, trained_episodes, avg_reward, success_rate, created_at, snapshot
		 FROM models WHERE agent_type = ? ORDER BY version DESC LIMIT 1`,
		string(agentType),
	).Scan(&version.Number, &version.TrainedEpisodes, &version.AvgReward,
		&version.SuccessRate, &createdAt, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Snapshot{}, model.Version{}, model.ErrModelNotFound
		}
		return model.Snapshot{}, model.Version{}, err
	}
	version.CreatedAt = time.Unix(0, createdAt).UTC()

	var snapshot model.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return model.Snapshot{}, model.Version{}, err
	}
	return snapshot, version, nil
}

// LatestVersion returns the most recent version record.
func (s *ModelStore) LatestVersion(ctx context.Context, agentType rl.AgentType) (model.Version, error) {
	if err := ctx.Err(); err != nil {
		return model.Version{}, err
	}

	version := model.Version{AgentType: agentType}
	var createdAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT version, trained_episodes, avg_reward, success_rate, created_at
		 FROM models WHERE agent_type = ? ORDER BY version DESC LIMIT 1`,
		string(agentType),
	).Scan(&version.Number, &version.TrainedEpisodes, &version.AvgReward,
		&version.SuccessRate, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Version{}, model.ErrModelNotFound
		}
		return model.Version{}, err
	}
	version.CreatedAt = time.Unix(0, createdAt).UTC()
	return version, nil
}

// Versions lists all version records for an agent type, oldest first.
func (s *ModelStore) Versions(ctx context.Context, agentType rl.AgentType) ([]model.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT version, trained_episodes, avg_reward, success_rate, created_at
		 FROM models WHERE agent_type = ? ORDER BY version`,
		string(agentType),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var versions []model.Version
	for rows.Next() {
		version := model.Version{AgentType: agentType}
		var createdAt int64
		if err := rows.Scan(&version.Number, &version.TrainedEpisodes,
			&version.AvgReward, &version.SuccessRate, &createdAt); err != nil {
			return nil, err
		}
		version.CreatedAt = time.Unix(0, createdAt).UTC()
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

// Ping verifies the database connection.
func (s *ModelStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *ModelStore) Close() error {
	return s.db.Close()
}

var _ model.Store = (*ModelStore)(nil)
