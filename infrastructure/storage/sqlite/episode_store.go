package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/felixgeelhaar/reinforce-go/domain/episode"
)

// EpisodeStore is a SQLite-backed implementation of episode.Store.
type EpisodeStore struct {
	db *sql.DB
}

// NewEpisodeStore creates a new SQLite episode store.
func NewEpisodeStore(cfg Config, opts ...Option) (*EpisodeStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &EpisodeStore{db: db}
	if cfg.AutoMigrate {
		if err := s.migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewEpisodeStoreFromDB creates a store from an existing connection.
func NewEpisodeStoreFromDB(db *sql.DB) (*EpisodeStore, error) {
	s := &EpisodeStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *EpisodeStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS episodes (
			id TEXT PRIMARY KEY,
			agent_type TEXT NOT NULL,
			status TEXT NOT NULL,
			start_time INTEGER NOT NULL,
			data BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_episodes_agent ON episodes(agent_type);
		CREATE INDEX IF NOT EXISTS idx_episodes_start ON episodes(start_time);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

// Save persists an episode summary, replacing any previous record for
// the same ID so force-terminations overwrite in-flight summaries.
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

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO episodes (id, agent_type, status, start_time, data)
		 VALUES (?, ?, ?, ?, ?)`,
		e.ID, string(e.AgentType), string(e.Status), e.StartTime.UnixNano(), data,
	)
	return err
}

// Get retrieves an episode by ID.
func (s *EpisodeStore) Get(ctx context.Context, id string) (*episode.Episode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, episode.ErrInvalidEpisodeID
	}

	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM episodes WHERE id = ?", id,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, episode.ErrEpisodeNotFound
		}
		return nil, err
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

	query := "SELECT data FROM episodes WHERE 1=1"
	var args []any
	query, args = applyEpisodeFilter(query, args, filter)
	query += " ORDER BY start_time"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var episodes []*episode.Episode
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var e episode.Episode
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		episodes = append(episodes, &e)
	}
	return episodes, rows.Err()
}

// Count returns the number of episodes matching the filter.
func (s *EpisodeStore) Count(ctx context.Context, filter episode.ListFilter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	query := "SELECT COUNT(*) FROM episodes WHERE 1=1"
	var args []any
	query, args = applyEpisodeFilter(query, args, filter)

	var count int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

func applyEpisodeFilter(query string, args []any, filter episode.ListFilter) (string, []any) {
	if filter.AgentType != "" {
		query += " AND agent_type = ?"
		args = append(args, string(filter.AgentType))
	}
	if len(filter.Status) > 0 {
		placeholders := ""
		for i, status := range filter.Status {
			if i > 0 {
				placeholders += ", "
			}
			placeholders += "?"
			args = append(args, string(status))
		}
		query += " AND status IN (" + placeholders + ")"
	}
	if !filter.FromTime.IsZero() {
		query += " AND start_time >= ?"
		args = append(args, filter.FromTime.UnixNano())
	}
	if !filter.ToTime.IsZero() {
		query += " AND start_time <= ?"
		args = append(args, filter.ToTime.UnixNano())
	}
	return query, args
}

// Summary aggregates outcomes across matching episodes. The per-episode
// reward and duration live in the JSON blob, so the aggregation scans
// matching rows rather than relying on JSON1 being compiled in.
func (s *EpisodeStore) Summary(ctx context.Context, filter episode.ListFilter) (episode.Summary, error) {
	if err := ctx.Err(); err != nil {
		return episode.Summary{}, err
	}

	query := "SELECT data FROM episodes WHERE 1=1"
	var args []any
	query, args = applyEpisodeFilter(query, args, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return episode.Summary{}, err
	}
	defer func() { _ = rows.Close() }()

	var summary episode.Summary
	var totalReward float64
	var totalDuration time.Duration

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return episode.Summary{}, err
		}
		var e episode.Episode
		if err := json.Unmarshal(data, &e); err != nil {
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
	if err := rows.Err(); err != nil {
		return episode.Summary{}, err
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

// Ping verifies the database connection.
func (s *EpisodeStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *EpisodeStore) Close() error {
	return s.db.Close()
}

var (
	_ episode.Store           = (*EpisodeStore)(nil)
	_ episode.SummaryProvider = (*EpisodeStore)(nil)
)
