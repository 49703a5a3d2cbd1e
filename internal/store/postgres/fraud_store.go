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

// FraudCaseStore implements domain.FraudCaseStore using PostgreSQL.
type FraudCaseStore struct {
	pool *pgxpool.Pool
}

// NewFraudCaseStore creates a new FraudCaseStore backed by the given
// connection pool.
func NewFraudCaseStore(pool *pgxpool.Pool) *FraudCaseStore {
	return &FraudCaseStore{pool: pool}
}

// Create stores a new review case. Indicators are stored as JSONB.
func (s *FraudCaseStore) Create(ctx context.Context, c domain.FraudCase) error {
	indicatorsJSON, err := json.Marshal(c.Indicators)
	if err != nil {
		return fmt.Errorf("postgres: marshal fraud indicators: %w", err)
	}

	const query = `
		INSERT INTO fraud_cases (id, subject, score, indicators, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = s.pool.Exec(ctx, query,
		c.ID, c.Subject, c.Score, indicatorsJSON, string(c.Status), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create fraud case %s: %w", c.ID, err)
	}
	return nil
}

// GetByID returns a single case, or domain.ErrNotFound.
func (s *FraudCaseStore) GetByID(ctx context.Context, id string) (domain.FraudCase, error) {
	const query = `
		SELECT id, subject, score, indicators, status, created_at, resolved_at, resolved_by
		FROM fraud_cases WHERE id = $1`

	c, err := scanFraudCase(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FraudCase{}, domain.ErrNotFound
		}
		return domain.FraudCase{}, fmt.Errorf("postgres: get fraud case %s: %w", id, err)
	}
	return c, nil
}

// Resolve closes an open case with the given status. It returns
// domain.ErrNotFound when the case does not exist or is already resolved.
func (s *FraudCaseStore) Resolve(ctx context.Context, id string, status domain.FraudCaseStatus, by string) error {
	const query = `
		UPDATE fraud_cases SET status = $2, resolved_at = $3, resolved_by = $4
		WHERE id = $1 AND status = $5`
	tag, err := s.pool.Exec(ctx, query,
		id, string(status), time.Now().UTC(), by, string(domain.FraudCaseOpen),
	)
	if err != nil {
		return fmt.Errorf("postgres: resolve fraud case %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListOpen returns open cases, highest score first.
func (s *FraudCaseStore) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.FraudCase, error) {
	query := `
		SELECT id, subject, score, indicators, status, created_at, resolved_at, resolved_by
		FROM fraud_cases WHERE status = $1
		ORDER BY score DESC, created_at DESC`
	args := []any{string(domain.FraudCaseOpen)}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open fraud cases: %w", err)
	}
	defer rows.Close()

	var cases []domain.FraudCase
	for rows.Next() {
		c, err := scanFraudCase(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan fraud case: %w", err)
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list open fraud cases rows: %w", err)
	}
	return cases, nil
}

func scanFraudCase(row pgx.Row) (domain.FraudCase, error) {
	var c domain.FraudCase
	var indicatorsJSON []byte
	var status string
	var resolvedBy *string

	if err := row.Scan(
		&c.ID, &c.Subject, &c.Score, &indicatorsJSON, &status,
		&c.CreatedAt, &c.ResolvedAt, &resolvedBy,
	); err != nil {
		return domain.FraudCase{}, err
	}

	c.Status = domain.FraudCaseStatus(status)
	if resolvedBy != nil {
		c.ResolvedBy = *resolvedBy
	}
	if indicatorsJSON != nil {
		if err := json.Unmarshal(indicatorsJSON, &c.Indicators); err != nil {
			return domain.FraudCase{}, fmt.Errorf("unmarshal indicators: %w", err)
		}
	}
	return c, nil
}

// Compile-time interface check.
var _ domain.FraudCaseStore = (*FraudCaseStore)(nil)
