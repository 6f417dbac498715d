package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/evand/conditional-markets/internal/domain"
)

// ArchiveService moves plan and report history older than the retention
// window from the database to cold storage.
type ArchiveService struct {
	archiver      domain.Archiver
	retentionDays int
	interval      time.Duration
	logger        *slog.Logger
}

// NewArchiveService creates an ArchiveService.
func NewArchiveService(archiver domain.Archiver, retentionDays int, interval time.Duration, logger *slog.Logger) *ArchiveService {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &ArchiveService{
		archiver:      archiver,
		retentionDays: retentionDays,
		interval:      interval,
		logger:        logger.With(slog.String("component", "archive")),
	}
}

// RunOnce executes a single archive pass.
func (a *ArchiveService) RunOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	plansArchived, err := a.archiver.ArchivePlans(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive_service: plans before %v: %w", cutoff, err)
	}

	reportsArchived, err := a.archiver.ArchiveReports(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive_service: reports before %v: %w", cutoff, err)
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("plans_archived", plansArchived),
		slog.Int64("reports_archived", reportsArchived),
	)
	return nil
}

// Run executes archive passes on the configured interval until ctx is
// cancelled. A failed pass is logged and retried on the next tick.
func (a *ArchiveService) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.RunOnce(ctx); err != nil {
				a.logger.WarnContext(ctx, "archive run failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
