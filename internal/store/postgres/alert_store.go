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

// AlertStore implements domain.AlertStore using PostgreSQL.
type AlertStore struct {
	pool *pgxpool.Pool
}

// NewAlertStore creates a new AlertStore backed by the given connection pool.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

const alertSelectCols = `id, severity, type, message, dedup_key, metadata,
	created_at, acknowledged, acked_by, acked_at`

func scanAlertRows(rows pgx.Rows) ([]domain.Alert, error) {
	var alerts []domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func scanAlert(row pgx.Row) (domain.Alert, error) {
	var a domain.Alert
	var severity int16
	var metadataJSON []byte
	var ackedBy *string

	if err := row.Scan(
		&a.ID, &severity, &a.Type, &a.Message, &a.DedupKey, &metadataJSON,
		&a.CreatedAt, &a.Acknowledged, &ackedBy, &a.AckedAt,
	); err != nil {
		return domain.Alert{}, err
	}

	a.Severity = domain.Severity(severity)
	if ackedBy != nil {
		a.AckedBy = *ackedBy
	}
	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &a.Metadata); err != nil {
			return domain.Alert{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return a, nil
}

// Insert stores a new alert. The metadata map is stored as JSONB.
func (s *AlertStore) Insert(ctx context.Context, alert domain.Alert) error {
	metadataJSON, err := json.Marshal(alert.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: marshal alert metadata: %w", err)
	}

	const query = `
		INSERT INTO alerts (id, severity, type, message, dedup_key, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = s.pool.Exec(ctx, query,
		alert.ID, int16(alert.Severity), alert.Type, alert.Message,
		alert.DedupKey, metadataJSON, alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert alert %s: %w", alert.ID, err)
	}
	return nil
}

// Acknowledge marks an alert acknowledged. It returns domain.ErrNotFound when
// the alert does not exist.
func (s *AlertStore) Acknowledge(ctx context.Context, id, by string, at time.Time) error {
	const query = `
		UPDATE alerts SET acknowledged = TRUE, acked_by = $2, acked_at = $3
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query, id, by, at)
	if err != nil {
		return fmt.Errorf("postgres: acknowledge alert %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID returns a single alert, or domain.ErrNotFound.
func (s *AlertStore) GetByID(ctx context.Context, id string) (domain.Alert, error) {
	query := `SELECT ` + alertSelectCols + ` FROM alerts WHERE id = $1`
	a, err := scanAlert(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Alert{}, domain.ErrNotFound
		}
		return domain.Alert{}, fmt.Errorf("postgres: get alert %s: %w", id, err)
	}
	return a, nil
}

// List returns alerts with pagination and optional time filtering, newest
// first.
func (s *AlertStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Alert, error) {
	query := `SELECT ` + alertSelectCols + ` FROM alerts WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("postgres: list alerts: %w", err)
	}
	defer rows.Close()

	alerts, err := scanAlertRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan alerts: %w", err)
	}
	return alerts, nil
}

// ListUnacknowledged returns open alerts at or above the given severity,
// newest first.
func (s *AlertStore) ListUnacknowledged(ctx context.Context, minSeverity domain.Severity) ([]domain.Alert, error) {
	query := `SELECT ` + alertSelectCols + ` FROM alerts
		WHERE acknowledged = FALSE AND severity >= $1
		ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query, int16(minSeverity))
	if err != nil {
		return nil, fmt.Errorf("postgres: list unacknowledged alerts: %w", err)
	}
	defer rows.Close()

	alerts, err := scanAlertRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan unacknowledged alerts: %w", err)
	}
	return alerts, nil
}

// ListBefore returns all alerts created strictly before the given time (for
// archiving).
func (s *AlertStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Alert, error) {
	query := `SELECT ` + alertSelectCols + ` FROM alerts
		WHERE created_at < $1 ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list alerts before: %w", err)
	}
	defer rows.Close()
	return scanAlertRows(rows)
}

// DeleteBefore deletes all alerts created before the given time. Returns the
// number deleted.
func (s *AlertStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM alerts WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete alerts before: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.AlertStore = (*AlertStore)(nil)
