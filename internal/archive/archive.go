// Package archive provides an optional PostgreSQL mirror of compacted
// ledger segments. It never backs live reads: the flat-file ledger under
// state/ledger/ remains the single source of truth, and a group's
// archive_backend setting only controls where Compact additionally copies
// already-archived segments for durable off-host retention.
package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cccckit/cccc/internal/model"
)

// Store mirrors compacted ledger segments into Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to databaseURL and ensures the archive schema exists.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("archive: connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: pinging database: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close shuts down the database connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS ledger_archive_segments (
	group_id     TEXT NOT NULL,
	archive_path TEXT NOT NULL,
	ran_at       TEXT NOT NULL,
	archived_n   INT NOT NULL,
	safe_cursor_ts TEXT NOT NULL,
	PRIMARY KEY (group_id, archive_path)
);
CREATE TABLE IF NOT EXISTS ledger_archive_events (
	group_id  TEXT NOT NULL,
	id        TEXT NOT NULL,
	ts        TEXT NOT NULL,
	kind      TEXT NOT NULL,
	scope_key TEXT,
	by        TEXT NOT NULL,
	data      JSONB,
	PRIMARY KEY (group_id, id)
);
CREATE INDEX IF NOT EXISTS ledger_archive_events_group_ts_idx
	ON ledger_archive_events (group_id, ts);
`)
	if err != nil {
		return fmt.Errorf("archive: ensure schema: %w", err)
	}
	return nil
}

// MirrorSegment records one compacted segment and its events. Called after
// ledger.Compact writes a new archive/ledger.<stamp>.jsonl file, when the
// group's ledger.archive_backend is "postgres".
func (s *Store) MirrorSegment(ctx context.Context, groupID, archivePath, ranAt, safeCursorTS string, events []model.Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("archive: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO ledger_archive_segments (group_id, archive_path, ran_at, archived_n, safe_cursor_ts)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (group_id, archive_path) DO NOTHING`,
		groupID, archivePath, ranAt, len(events), safeCursorTS,
	)
	if err != nil {
		return fmt.Errorf("archive: insert segment: %w", err)
	}

	for _, ev := range events {
		_, err = tx.Exec(ctx,
			`INSERT INTO ledger_archive_events (group_id, id, ts, kind, scope_key, by, data)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (group_id, id) DO NOTHING`,
			groupID, ev.ID, ev.TS, string(ev.Kind), ev.ScopeKey, ev.By, ev.Data,
		)
		if err != nil {
			return fmt.Errorf("archive: insert event %s: %w", ev.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("archive: commit tx: %w", err)
	}
	return nil
}

// QueryRange returns archived events for groupID with ts in [fromTS, toTS),
// ordered by ts, for reading beyond the active ledger's retained tail.
func (s *Store) QueryRange(ctx context.Context, groupID, fromTS, toTS string) ([]model.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, ts, kind, group_id, scope_key, by, data
		 FROM ledger_archive_events
		 WHERE group_id = $1 AND ts >= $2 AND ts < $3
		 ORDER BY ts ASC`,
		groupID, fromTS, toTS,
	)
	if err != nil {
		return nil, fmt.Errorf("archive: query range: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		var kind string
		if err := rows.Scan(&ev.ID, &ev.TS, &kind, &ev.GroupID, &ev.ScopeKey, &ev.By, &ev.Data); err != nil {
			return nil, fmt.Errorf("archive: scan event: %w", err)
		}
		ev.Kind = model.Kind(kind)
		events = append(events, ev)
	}
	return events, nil
}
