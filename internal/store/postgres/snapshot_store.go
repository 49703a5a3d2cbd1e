package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/twistlabs/guardian/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL. Snapshots
// are always read back whole, never queried field by field, so the row is
// the timestamp plus one JSONB document.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a new SnapshotStore backed by the given connection
// pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Insert stores one snapshot. A re-collected snapshot for the same timestamp
// replaces the earlier row.
func (s *SnapshotStore) Insert(ctx context.Context, snap domain.MarketSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("postgres: marshal snapshot: %w", err)
	}

	const query = `
		INSERT INTO market_snapshots (ts, data) VALUES ($1, $2)
		ON CONFLICT (ts) DO UPDATE SET data = EXCLUDED.data`
	if _, err := s.pool.Exec(ctx, query, snap.Timestamp, data); err != nil {
		return fmt.Errorf("postgres: insert snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot, or domain.ErrNotFound when none
// has been collected yet.
func (s *SnapshotStore) Latest(ctx context.Context) (domain.MarketSnapshot, error) {
	const query = `SELECT data FROM market_snapshots ORDER BY ts DESC LIMIT 1`

	var data []byte
	if err := s.pool.QueryRow(ctx, query).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MarketSnapshot{}, domain.ErrNotFound
		}
		return domain.MarketSnapshot{}, fmt.Errorf("postgres: latest snapshot: %w", err)
	}

	var snap domain.MarketSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("postgres: unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// ListRange returns snapshots within [from, to], oldest first.
func (s *SnapshotStore) ListRange(ctx context.Context, from, to time.Time) ([]domain.MarketSnapshot, error) {
	const query = `SELECT data FROM market_snapshots
		WHERE ts >= $1 AND ts <= $2 ORDER BY ts ASC`
	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.MarketSnapshot
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		var snap domain.MarketSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list snapshots rows: %w", err)
	}
	return snaps, nil
}

// DeleteBefore deletes all snapshots before the given time. Returns the
// number deleted.
func (s *SnapshotStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM market_snapshots WHERE ts < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete snapshots before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.SnapshotStore = (*SnapshotStore)(nil)
