package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AlertStore persists alerts for the operator API and cold-storage archival.
type AlertStore interface {
	Insert(ctx context.Context, alert Alert) error
	Acknowledge(ctx context.Context, id, by string, at time.Time) error
	GetByID(ctx context.Context, id string) (Alert, error)
	List(ctx context.Context, opts ListOpts) ([]Alert, error)
	ListUnacknowledged(ctx context.Context, minSeverity Severity) ([]Alert, error)
	ListBefore(ctx context.Context, before time.Time) ([]Alert, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// FraudCaseStore persists the manual review queue.
type FraudCaseStore interface {
	Create(ctx context.Context, c FraudCase) error
	GetByID(ctx context.Context, id string) (FraudCase, error)
	Resolve(ctx context.Context, id string, status FraudCaseStatus, by string) error
	ListOpen(ctx context.Context, opts ListOpts) ([]FraudCase, error)
}

// EventStore persists behavioral events and serves the history windows the
// fraud indicator checks are hydrated from.
type EventStore interface {
	InsertStake(ctx context.Context, ev StakeEvent) error
	InsertClick(ctx context.Context, ev ClickEvent) error
	ListStakesBySubject(ctx context.Context, subject string, since time.Time) ([]StakeEvent, error)
	ListSubjectsByWallet(ctx context.Context, wallet string, since time.Time) ([]string, error)
	CountWalletsByIP(ctx context.Context, ip string, since time.Time) (int, error)
	ListClicksByIP(ctx context.Context, ip string, since time.Time) ([]ClickEvent, error)
	ListClicksByLink(ctx context.Context, linkID string, since time.Time) ([]ClickEvent, error)
}

// BotOpStore persists the append-only bot operation log.
type BotOpStore interface {
	Append(ctx context.Context, op BotOperation) error
	ListWindow(ctx context.Context, from, to time.Time) ([]BotOperation, error)
	ListBefore(ctx context.Context, before time.Time) ([]BotOperation, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// SnapshotStore persists market snapshots for rolling statistics and
// post-incident analysis.
type SnapshotStore interface {
	Insert(ctx context.Context, snap MarketSnapshot) error
	Latest(ctx context.Context) (MarketSnapshot, error)
	ListRange(ctx context.Context, from, to time.Time) ([]MarketSnapshot, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time) ([]AuditEntry, error)
}
