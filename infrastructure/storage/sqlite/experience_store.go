package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/felixgeelhaar/reinforce-go/domain/experience"
)

// ExperienceStore is a SQLite-backed implementation of experience.Store.
// Records are keyed by (episode_id, step_index).
type ExperienceStore struct {
	db *sql.DB
}

// NewExperienceStore creates a new SQLite experience store.
func NewExperienceStore(cfg Config, opts ...Option) (*ExperienceStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &ExperienceStore{db: db}
	if cfg.AutoMigrate {
		if err := s.migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewExperienceStoreFromDB creates a store from an existing connection.
func NewExperienceStoreFromDB(db *sql.DB) (*ExperienceStore, error) {
	s := &ExperienceStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ExperienceStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS experiences (
			episode_id TEXT NOT NULL,
			step_index INTEGER NOT NULL,
			agent_type TEXT NOT NULL,
			done INTEGER NOT NULL,
			priority REAL NOT NULL,
			timestamp INTEGER NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (episode_id, step_index)
		);
		CREATE INDEX IF NOT EXISTS idx_experiences_agent ON experiences(agent_type);
		CREATE INDEX IF NOT EXISTS idx_experiences_timestamp ON experiences(timestamp);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

// Append persists one experience record.
func (s *ExperienceStore) Append(ctx context.Context, record experience.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.EpisodeID == "" {
		return experience.ErrInvalidRecord
	}

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	done := 0
	if record.Experience.Done {
		done = 1
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO experiences (episode_id, step_index, agent_type, done, priority, timestamp, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.EpisodeID, record.StepIndex, string(record.Experience.AgentType),
		done, record.Experience.Priority, record.Experience.Timestamp.UnixNano(), data,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return experience.ErrDuplicateStep
		}
		return err
	}
	return nil
}

// List returns up to limit records matching the filter, in insertion order.
func (s *ExperienceStore) List(ctx context.Context, filter experience.ListFilter, limit int) ([]experience.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := "SELECT data FROM experiences WHERE 1=1"
	var args []any
	query, args = applyFilter(query, args, filter)
	query += " ORDER BY timestamp, episode_id, step_index"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []experience.Record
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var record experience.Record
		if err := json.Unmarshal(data, &record); err != nil {
			continue // Skip malformed entries
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Count returns the number of records matching the filter.
func (s *ExperienceStore) Count(ctx context.Context, filter experience.ListFilter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	query := "SELECT COUNT(*) FROM experiences WHERE 1=1"
	var args []any
	query, args = applyFilter(query, args, filter)

	var count int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

func applyFilter(query string, args []any, filter experience.ListFilter) (string, []any) {
	if filter.AgentType != "" {
		query += " AND agent_type = ?"
		args = append(args, string(filter.AgentType))
	}
	if filter.EpisodeID != "" {
		query += " AND episode_id = ?"
		args = append(args, filter.EpisodeID)
	}
	if filter.DoneOnly {
		query += " AND done = 1"
	}
	if !filter.FromTime.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.FromTime.UnixNano())
	}
	if filter.MinPriority > 0 {
		query += " AND priority >= ?"
		args = append(args, filter.MinPriority)
	}
	return query, args
}

// Ping verifies the database connection.
func (s *ExperienceStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *ExperienceStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *ExperienceStore) DB() *sql.DB {
	return s.db
}

var _ experience.Store = (*ExperienceStore)(nil)
