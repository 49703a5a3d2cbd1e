package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twistlabs/guardian/internal/domain"
)

// Narrow store interfaces required by the archiver. The archiver only needs
// the time-ranged read each store already exposes for retention, not the full
// store interfaces.

// AlertArchiveStore provides read access to alerts for archival purposes.
type AlertArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Alert, error)
}

// BotOpArchiveStore provides read access to the bot operation log for
// archival purposes.
type BotOpArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.BotOperation, error)
}

// AuditArchiveStore provides read access to the audit log for archival
// purposes.
type AuditArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.AuditEntry, error)
}

// ArchiveImpl implements domain.Archiver by querying the stores for aged
// records, serializing them to JSONL, and uploading the result to S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- the retention loops delete on their own schedule,
// after the archive window has passed.
type ArchiveImpl struct {
	writer domain.BlobWriter
	alerts AlertArchiveStore
	botOps BotOpArchiveStore
	audit  AuditArchiveStore
	log    domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl. The audit store appears twice: once
// as an archive source and once as the sink for archival events themselves.
func NewArchiver(
	writer domain.BlobWriter,
	alerts AlertArchiveStore,
	botOps BotOpArchiveStore,
	audit AuditArchiveStore,
	log domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		alerts: alerts,
		botOps: botOps,
		audit:  audit,
		log:    log,
	}
}

// ArchiveAlerts uploads all alerts created before the cutoff to
// archive/alerts/YYYY-MM.jsonl and returns the number archived.
func (a *ArchiveImpl) ArchiveAlerts(ctx context.Context, before time.Time) (int64, error) {
	alerts, err := a.alerts.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive alerts query: %w", err)
	}
	return upload(ctx, a, "alerts", before, alerts)
}

// ArchiveBotOps uploads all bot operations recorded before the cutoff to
// archive/bot_ops/YYYY-MM.jsonl and returns the number archived.
func (a *ArchiveImpl) ArchiveBotOps(ctx context.Context, before time.Time) (int64, error) {
	ops, err := a.botOps.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bot ops query: %w", err)
	}
	return upload(ctx, a, "bot_ops", before, ops)
}

// ArchiveAudit uploads all audit entries logged before the cutoff to
// archive/audit/YYYY-MM.jsonl and returns the number archived.
func (a *ArchiveImpl) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	return upload(ctx, a, "audit", before, entries)
}

// upload serializes the records to JSONL, writes the archive object, and
// records the archival event in the audit log.
func upload[T any](ctx context.Context, a *ArchiveImpl, kind string, before time.Time, records []T) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	path := archivePath(kind, before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := int64(len(records))

	if err := a.log.Log(ctx, "archive."+kind, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
	}
	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/alerts/2026-07.jsonl
//	archive/bot_ops/2026-07.jsonl
//	archive/audit/2026-07.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
