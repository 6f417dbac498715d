package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/evand/conditional-markets/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow store interfaces required by the archiver.
//
// The archiver only needs time-ranged read access, not the full domain store
// interfaces. The Postgres stores satisfy these through their ListBefore
// methods.
// ---------------------------------------------------------------------------

// PlanArchiveStore provides read access to plans for archival purposes.
type PlanArchiveStore interface {
	// ListBefore returns all plans created strictly before the given cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.Plan, error)
}

// ReportArchiveStore provides read access to reconciliation reports for
// archival purposes.
type ReportArchiveStore interface {
	// ListBefore returns all reports created strictly before the given cutoff.
	ListBefore(ctx context.Context, before time.Time) ([]domain.ReconciliationReport, error)
}

// ---------------------------------------------------------------------------
// ArchiveImpl
// ---------------------------------------------------------------------------

// ArchiveImpl implements domain.Archiver by querying the stores for old
// simulation history, serializing it to JSONL, and uploading the result to S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- that is a separate, explicit step to be executed
// after the archive has been verified.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	plans   PlanArchiveStore
	reports ReportArchiveStore
	logger  *slog.Logger
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, plans PlanArchiveStore, reports ReportArchiveStore, logger *slog.Logger) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		plans:   plans,
		reports: reports,
		logger:  logger,
	}
}

// ArchivePlans queries all plans before the cutoff, serializes them to JSONL,
// and uploads the file to S3 at archive/plans/YYYY-MM.jsonl. Returns the
// count of archived records.
func (a *ArchiveImpl) ArchivePlans(ctx context.Context, before time.Time) (int64, error) {
	plans, err := a.plans.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive plans query: %w", err)
	}
	if len(plans) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(plans)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive plans marshal: %w", err)
	}

	path := archivePath("plans", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive plans upload: %w", err)
	}

	count := int64(len(plans))
	a.logger.Info("archived plans",
		"path", path,
		"count", count,
		"before", before.Format(time.RFC3339))
	return count, nil
}

// ArchiveReports queries all reconciliation reports before the cutoff,
// serializes them to JSONL, and uploads the file to S3 at
// archive/reports/YYYY-MM.jsonl. Returns the count of archived records.
func (a *ArchiveImpl) ArchiveReports(ctx context.Context, before time.Time) (int64, error) {
	reports, err := a.reports.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive reports query: %w", err)
	}
	if len(reports) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(reports)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive reports marshal: %w", err)
	}

	path := archivePath("reports", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive reports upload: %w", err)
	}

	count := int64(len(reports))
	a.logger.Info("archived reports",
		"path", path,
		"count", count,
		"before", before.Format(time.RFC3339))
	return count, nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/plans/2025-01.jsonl
//	archive/reports/2025-01.jsonl
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
