package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/twistlabs/guardian/internal/domain"
)

// BotOpStore implements domain.BotOpStore using PostgreSQL. The table is
// append-only; rows only ever leave through retention deletes.
type BotOpStore struct {
	pool *pgxpool.Pool
}

// NewBotOpStore creates a new BotOpStore backed by the given connection pool.
func NewBotOpStore(pool *pgxpool.Pool) *BotOpStore {
	return &BotOpStore{pool: pool}
}

// Append records one bot operation. The detail map is stored as JSONB.
func (s *BotOpStore) Append(ctx context.Context, op domain.BotOperation) error {
	detailJSON, err := json.Marshal(op.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal bot op detail: %w", err)
	}

	const query = `
		INSERT INTO bot_operations (agent, op_type, target, detail, ts)
		VALUES ($1, $2, $3, $4, $5)`
	_, err = s.pool.Exec(ctx, query, op.Agent, op.OpType, op.Target, detailJSON, op.Timestamp)
	if err != nil {
		return fmt.Errorf("postgres: append bot op %s/%s: %w", op.Agent, op.OpType, err)
	}
	return nil
}

const botOpSelectCols = `id, agent, op_type, target, detail, ts`

func scanBotOpRows(rows pgx.Rows) ([]domain.BotOperation, error) {
	var ops []domain.BotOperation
	for rows.Next() {
		var op domain.BotOperation
		var detailJSON []byte
		if err := rows.Scan(&op.ID, &op.Agent, &op.OpType, &op.Target, &detailJSON, &op.Timestamp); err != nil {
			return nil, err
		}
		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &op.Detail); err != nil {
				return nil, fmt.Errorf("unmarshal detail: %w", err)
			}
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// ListWindow returns operations within [from, to], oldest first.
func (s *BotOpStore) ListWindow(ctx context.Context, from, to time.Time) ([]domain.BotOperation, error) {
	query := `SELECT ` + botOpSelectCols + ` FROM bot_operations
		WHERE ts >= $1 AND ts <= $2 ORDER BY ts ASC`
	rows, err := s.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bot ops window: %w", err)
	}
	defer rows.Close()

	ops, err := scanBotOpRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan bot ops window: %w", err)
	}
	return ops, nil
}

// ListBefore returns all operations strictly before the given time (for
// archiving).
func (s *BotOpStore) ListBefore(ctx context.Context, before time.Time) ([]domain.BotOperation, error) {
	query := `SELECT ` + botOpSelectCols + ` FROM bot_operations
		WHERE ts < $1 ORDER BY ts ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bot ops before: %w", err)
	}
	defer rows.Close()
	return scanBotOpRows(rows)
}

// DeleteBefore deletes all operations before the given time. Returns the
// number deleted.
func (s *BotOpStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM bot_operations WHERE ts < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete bot ops before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.BotOpStore = (*BotOpStore)(nil)
