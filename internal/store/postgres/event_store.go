package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/twistlabs/guardian/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. It serves the
// history windows the fraud indicator checks hydrate from, so every query is
// backed by a (dimension, timestamp) index.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// InsertStake appends a stake event.
func (s *EventStore) InsertStake(ctx context.Context, ev domain.StakeEvent) error {
	const query = `
		INSERT INTO stake_events (subject, amount, counterparty_wallet, ip, unstake, ts)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.pool.Exec(ctx, query,
		ev.Subject, ev.Amount, ev.CounterpartyWallet, ev.IP, ev.Unstake, ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert stake event: %w", err)
	}
	return nil
}

// InsertClick appends a click event.
func (s *EventStore) InsertClick(ctx context.Context, ev domain.ClickEvent) error {
	const query = `
		INSERT INTO click_events (subject, link_id, ip, country, user_agent, referrer, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := s.pool.Exec(ctx, query,
		ev.Subject, ev.LinkID, ev.IP, ev.Country, ev.UserAgent, ev.Referrer, ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert click event: %w", err)
	}
	return nil
}

const stakeSelectCols = `subject, amount, counterparty_wallet, ip, unstake, ts`

func scanStakeRows(rows pgx.Rows) ([]domain.StakeEvent, error) {
	var events []domain.StakeEvent
	for rows.Next() {
		var ev domain.StakeEvent
		if err := rows.Scan(
			&ev.Subject, &ev.Amount, &ev.CounterpartyWallet,
			&ev.IP, &ev.Unstake, &ev.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ListStakesBySubject returns a subject's stake events since the given time,
// oldest first.
func (s *EventStore) ListStakesBySubject(ctx context.Context, subject string, since time.Time) ([]domain.StakeEvent, error) {
	query := `SELECT ` + stakeSelectCols + ` FROM stake_events
		WHERE subject = $1 AND ts >= $2 ORDER BY ts ASC`
	rows, err := s.pool.Query(ctx, query, subject, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stakes by subject: %w", err)
	}
	defer rows.Close()

	events, err := scanStakeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan stakes by subject: %w", err)
	}
	return events, nil
}

// ListSubjectsByWallet returns the distinct subjects that staked through the
// given wallet since the given time.
func (s *EventStore) ListSubjectsByWallet(ctx context.Context, wallet string, since time.Time) ([]string, error) {
	const query = `SELECT DISTINCT subject FROM stake_events
		WHERE counterparty_wallet = $1 AND ts >= $2`
	rows, err := s.pool.Query(ctx, query, wallet, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list subjects by wallet: %w", err)
	}
	defer rows.Close()

	var subjects []string
	for rows.Next() {
		var subject string
		if err := rows.Scan(&subject); err != nil {
			return nil, fmt.Errorf("postgres: scan subject: %w", err)
		}
		subjects = append(subjects, subject)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list subjects by wallet rows: %w", err)
	}
	return subjects, nil
}

// CountWalletsByIP returns the number of distinct wallets that staked from
// the given IP since the given time.
func (s *EventStore) CountWalletsByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	const query = `SELECT COUNT(DISTINCT counterparty_wallet) FROM stake_events
		WHERE ip = $1 AND ts >= $2 AND counterparty_wallet <> ''`
	var count int
	if err := s.pool.QueryRow(ctx, query, ip, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count wallets by ip: %w", err)
	}
	return count, nil
}

const clickSelectCols = `subject, link_id, ip, country, user_agent, referrer, ts`

func scanClickRows(rows pgx.Rows) ([]domain.ClickEvent, error) {
	var events []domain.ClickEvent
	for rows.Next() {
		var ev domain.ClickEvent
		if err := rows.Scan(
			&ev.Subject, &ev.LinkID, &ev.IP, &ev.Country,
			&ev.UserAgent, &ev.Referrer, &ev.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ListClicksByIP returns clicks from an IP since the given time, oldest
// first.
func (s *EventStore) ListClicksByIP(ctx context.Context, ip string, since time.Time) ([]domain.ClickEvent, error) {
	query := `SELECT ` + clickSelectCols + ` FROM click_events
		WHERE ip = $1 AND ts >= $2 ORDER BY ts ASC`
	rows, err := s.pool.Query(ctx, query, ip, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list clicks by ip: %w", err)
	}
	defer rows.Close()

	events, err := scanClickRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan clicks by ip: %w", err)
	}
	return events, nil
}

// ListClicksByLink returns clicks on a tracked link since the given time,
// oldest first.
func (s *EventStore) ListClicksByLink(ctx context.Context, linkID string, since time.Time) ([]domain.ClickEvent, error) {
	query := `SELECT ` + clickSelectCols + ` FROM click_events
		WHERE link_id = $1 AND ts >= $2 ORDER BY ts ASC`
	rows, err := s.pool.Query(ctx, query, linkID, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list clicks by link: %w", err)
	}
	defer rows.Close()

	events, err := scanClickRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan clicks by link: %w", err)
	}
	return events, nil
}

// Compile-time interface check.
var _ domain.EventStore = (*EventStore)(nil)
