package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/insiderscan/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver.
//
// The archiver only requires the query methods it actually calls, not the
// full domain store interfaces. The Postgres stores satisfy these through
// their ListBefore methods.
// ---------------------------------------------------------------------------

// TradeArchiveStore provides read access to trades for archival purposes.
type TradeArchiveStore interface {
	// ListBefore returns all trades with a timestamp strictly before the
	// given cutoff time.
	ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error)
}

// SignalArchiveStore provides read access to signals for archival purposes.
type SignalArchiveStore interface {
	// ListBefore returns all signals evaluated strictly before the given
	// cutoff time.
	ListBefore(ctx context.Context, before time.Time) ([]domain.Signal, error)
}

// ---------------------------------------------------------------------------
// ArchiveImpl
// ---------------------------------------------------------------------------

// ArchiveImpl implements domain.Archiver by querying the domain stores for
// old records, serializing them to JSONL, and uploading the result to S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- that is a separate, explicit step to be executed
// after the archive has been verified.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	trades  TradeArchiveStore
	signals SignalArchiveStore
	audit   domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	trades TradeArchiveStore,
	signals SignalArchiveStore,
	audit domain.AuditStore,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		trades:  trades,
		signals: signals,
		audit:   audit,
	}
}

// ArchiveTrades queries all trades before the cutoff, serializes them to
// JSONL, and uploads the file to S3 at archive/trades/YYYY-MM.jsonl. The
// archival event is recorded in the audit log and the count of archived
// records is returned.
func (a *ArchiveImpl) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	count := int64(len(trades))

	if err := a.audit.Log(ctx, "archive.trades", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive trades audit log: %w", err)
	}

	return count, nil
}

// ArchiveSignals queries all signals before the cutoff, serializes them to
// JSONL, and uploads the file to S3 at archive/signals/YYYY-MM.jsonl. The
// archival event is recorded in the audit log and the count of archived
// records is returned.
func (a *ArchiveImpl) ArchiveSignals(ctx context.Context, before time.Time) (int64, error) {
	signals, err := a.signals.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive signals query: %w", err)
	}
	if len(signals) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(signals)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive signals marshal: %w", err)
	}

	path := archivePath("signals", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive signals upload: %w", err)
	}

	count := int64(len(signals))

	if err := a.audit.Log(ctx, "archive.signals", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive signals audit log: %w", err)
	}

	return count, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/trades/2026-01.jsonl
//	archive/signals/2026-01.jsonl
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
