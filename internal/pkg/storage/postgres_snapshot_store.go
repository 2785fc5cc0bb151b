package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/Vodeneev/livewatch/internal/pkg/config"
	"github.com/Vodeneev/livewatch/internal/pkg/models"
)

// liveMatchesSchema creates the snapshot table. Record fields are unbounded display text;
// the ALTER widens tables created with bounded columns.
const liveMatchesSchema = `
	CREATE TABLE IF NOT EXISTS live_matches (
		match_key TEXT PRIMARY KEY,
		position INT NOT NULL,
		league TEXT NOT NULL,
		home_team TEXT NOT NULL,
		away_team TEXT NOT NULL,
		home_score TEXT NOT NULL,
		away_score TEXT NOT NULL,
		match_time TEXT NOT NULL,
		odds_home TEXT NOT NULL,
		odds_draw TEXT NOT NULL,
		odds_away TEXT NOT NULL,
		more_bets TEXT NOT NULL,
		changed BOOLEAN NOT NULL DEFAULT FALSE,
		fingerprint VARCHAR(16) NOT NULL,
		fetched_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_live_matches_position ON live_matches(position);
	ALTER TABLE live_matches
		ALTER COLUMN match_key TYPE TEXT,
		ALTER COLUMN league TYPE TEXT,
		ALTER COLUMN home_team TYPE TEXT,
		ALTER COLUMN away_team TYPE TEXT,
		ALTER COLUMN home_score TYPE TEXT,
		ALTER COLUMN away_score TYPE TEXT,
		ALTER COLUMN match_time TYPE TEXT,
		ALTER COLUMN odds_home TYPE TEXT,
		ALTER COLUMN odds_draw TYPE TEXT,
		ALTER COLUMN odds_away TYPE TEXT,
		ALTER COLUMN more_bets TYPE TEXT;
`

// SnapshotStore keeps the most recently emitted batch in PostgreSQL.
// The table only ever holds one snapshot; each emission replaces it.
type SnapshotStore struct {
	db *sql.DB
}

// NewSnapshotStore connects, pings and creates the schema.
func NewSnapshotStore(ctx context.Context, cfg *config.PostgresConfig) (*SnapshotStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	s := &SnapshotStore{db: db}
	if err := s.initSchema(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Info("PostgreSQL snapshot storage initialized successfully")
	return s, nil
}

func (s *SnapshotStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, liveMatchesSchema)
	return err
}

func (s *SnapshotStore) Name() string { return "postgres" }

// PublishBatch replaces the stored snapshot with b.
func (s *SnapshotStore) PublishBatch(ctx context.Context, b models.Batch) error {
	return s.ReplaceSnapshot(ctx, b)
}

// PublishStatus is a no-op; only snapshots are persisted.
func (s *SnapshotStore) PublishStatus(context.Context, models.StatusEvent) error {
	return nil
}

// ReplaceSnapshot deletes the previous snapshot and writes b in one transaction.
// Records sharing a MatchKey collapse to the last one.
func (s *SnapshotStore) ReplaceSnapshot(ctx context.Context, b models.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM live_matches`); err != nil {
		return fmt.Errorf("failed to clear live_matches: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO live_matches (
		match_key, position, league, home_team, away_team,
		home_score, away_score, match_time, odds_home, odds_draw,
		odds_away, more_bets, changed, fingerprint, fetched_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (match_key) DO UPDATE SET
		position = EXCLUDED.position,
		league = EXCLUDED.league,
		home_score = EXCLUDED.home_score,
		away_score = EXCLUDED.away_score,
		match_time = EXCLUDED.match_time,
		odds_home = EXCLUDED.odds_home,
		odds_draw = EXCLUDED.odds_draw,
		odds_away = EXCLUDED.odds_away,
		more_bets = EXCLUDED.more_bets,
		changed = EXCLUDED.changed
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range snapshotRows(b) {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("failed to insert live match: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	slog.Debug("Stored live snapshot", "matches", len(b.Records), "fingerprint", b.Fingerprint)
	return nil
}

// LoadSnapshot reads the stored snapshot back in its original order.
// ok is false when nothing has been stored yet.
func (s *SnapshotStore) LoadSnapshot(ctx context.Context) (models.Batch, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT league, home_team, away_team, home_score, away_score, match_time,
		odds_home, odds_draw, odds_away, more_bets, fingerprint, fetched_at
	FROM live_matches ORDER BY position`)
	if err != nil {
		return models.Batch{}, false, fmt.Errorf("failed to query live_matches: %w", err)
	}
	defer rows.Close()

	var b models.Batch
	for rows.Next() {
		var r models.MatchRecord
		if err := rows.Scan(&r.League, &r.HomeTeam, &r.AwayTeam, &r.HomeScore, &r.AwayScore, &r.MatchTime,
			&r.OddsHome, &r.OddsDraw, &r.OddsAway, &r.MoreBets, &b.Fingerprint, &b.FetchedAt); err != nil {
			return models.Batch{}, false, fmt.Errorf("failed to scan live match: %w", err)
		}
		b.Records = append(b.Records, r)
	}
	if err := rows.Err(); err != nil {
		return models.Batch{}, false, fmt.Errorf("failed to read live_matches: %w", err)
	}
	return b, len(b.Records) > 0, nil
}

// Close closes the database connection.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

// snapshotRows turns a batch into insert arguments in column order.
func snapshotRows(b models.Batch) [][]interface{} {
	rows := make([][]interface{}, 0, len(b.Records))
	for i, r := range b.Records {
		key := r.Key()
		_, changed := b.Changes[key]
		rows = append(rows, []interface{}{
			string(key), i, r.League, r.HomeTeam, r.AwayTeam,
			r.HomeScore, r.AwayScore, r.MatchTime, r.OddsHome, r.OddsDraw,
			r.OddsAway, r.MoreBets, changed, b.Fingerprint, b.FetchedAt,
		})
	}
	return rows
}
