// Package store persists instruments and price ticks to Postgres.
//
// Writes are synchronous, individually committed rows: a committed
// tick survives any later crash, and nothing in the hot path depends
// on a flush. Consumers (the dashboard layer) read the same two
// tables plus the Stats aggregate.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyflow/updown-data/internal/model"
)

// Store wraps the Postgres pool with the collector's queries.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store.
func New(db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// EnsureSchema creates the tables and indexes if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS markets (
			slug            TEXT PRIMARY KEY,
			yes_token_id    TEXT NOT NULL,
			no_token_id     TEXT NOT NULL,
			open_timestamp  BIGINT NOT NULL,
			close_timestamp BIGINT NOT NULL,
			resolved        BOOLEAN NOT NULL DEFAULT FALSE,
			market_type     TEXT NOT NULL DEFAULT '5m'
		)`,
		`CREATE TABLE IF NOT EXISTS price_ticks (
			id              BIGSERIAL PRIMARY KEY,
			market_slug     TEXT NOT NULL REFERENCES markets(slug) ON DELETE CASCADE,
			ts              TIMESTAMPTZ NOT NULL,
			epoch_ms        BIGINT NOT NULL,
			seconds_elapsed DOUBLE PRECISION,
			yes_best_bid    DOUBLE PRECISION,
			yes_best_ask    DOUBLE PRECISION,
			no_best_bid     DOUBLE PRECISION,
			no_best_ask     DOUBLE PRECISION,
			yes_mid         DOUBLE PRECISION,
			no_mid          DOUBLE PRECISION,
			source          TEXT NOT NULL DEFAULT 'rest'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_slug ON price_ticks (market_slug)`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_epoch ON price_ticks (epoch_ms)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// InsertInstrument inserts an instrument row. Idempotent: an existing
// slug is left untouched.
func (s *Store) InsertInstrument(ctx context.Context, inst model.Instrument) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO markets (slug, yes_token_id, no_token_id, open_timestamp, close_timestamp, resolved, market_type)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
		ON CONFLICT (slug) DO NOTHING
	`, inst.Slug, inst.YesTokenID, inst.NoTokenID, inst.OpenTS, inst.CloseTS, string(inst.WindowClass))
	if err != nil {
		return fmt.Errorf("insert instrument %s: %w", inst.Slug, err)
	}
	return nil
}

// MarkResolved sets the resolved flag, the only instrument mutation.
func (s *Store) MarkResolved(ctx context.Context, slug string) error {
	_, err := s.db.Exec(ctx, `UPDATE markets SET resolved = TRUE WHERE slug = $1`, slug)
	if err != nil {
		return fmt.Errorf("mark resolved %s: %w", slug, err)
	}
	return nil
}

// InsertTick appends one tick row.
func (s *Store) InsertTick(ctx context.Context, tick model.Tick) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO price_ticks
			(market_slug, ts, epoch_ms, seconds_elapsed,
			 yes_best_bid, yes_best_ask, no_best_bid, no_best_ask,
			 yes_mid, no_mid, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, tick.Slug, tick.Timestamp, tick.EpochMS, tick.SecondsElapsed,
		tick.YesBid, tick.YesAsk, tick.NoBid, tick.NoAsk,
		tick.YesMid, tick.NoMid, tick.Source)
	if err != nil {
		return fmt.Errorf("insert tick %s: %w", tick.Slug, err)
	}
	return nil
}

// Stats returns the per-window-class aggregate.
func (s *Store) Stats(ctx context.Context, class model.WindowClass) (model.Stats, error) {
	var stats model.Stats

	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE resolved)
		FROM markets WHERE ($1 = '' OR market_type = $1)
	`, string(class)).Scan(&stats.TotalMarkets, &stats.ResolvedMarkets)
	if err != nil {
		return model.Stats{}, fmt.Errorf("stats markets: %w", err)
	}

	err = s.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM price_ticks pt
		JOIN markets m ON m.slug = pt.market_slug
		WHERE ($1 = '' OR m.market_type = $1)
	`, string(class)).Scan(&stats.TotalTicks)
	if err != nil {
		return model.Stats{}, fmt.Errorf("stats ticks: %w", err)
	}

	stats.ActiveMarkets = stats.TotalMarkets - stats.ResolvedMarkets
	return stats, nil
}

// DeleteInstrument removes an instrument and, via the foreign key
// cascade, all of its ticks. Administrative; never called by the
// collection loops.
func (s *Store) DeleteInstrument(ctx context.Context, slug string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM markets WHERE slug = $1`, slug)
	if err != nil {
		return fmt.Errorf("delete instrument %s: %w", slug, err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
