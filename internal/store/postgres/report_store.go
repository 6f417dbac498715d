package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evand/conditional-markets/internal/domain"
)

// ReportStore implements domain.ReportStore using PostgreSQL. Leg comparisons
// are JSONB: reports are written once and read whole for display.
type ReportStore struct {
	pool *pgxpool.Pool
}

// NewReportStore creates a new ReportStore.
func NewReportStore(pool *pgxpool.Pool) *ReportStore {
	return &ReportStore{pool: pool}
}

// Create inserts a reconciliation report.
func (s *ReportStore) Create(ctx context.Context, report domain.ReconciliationReport) error {
	legs, err := json.Marshal(report.Legs)
	if err != nil {
		return fmt.Errorf("postgres: encode report legs for %s: %w", report.ID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO reconciliation_reports (
			id, plan_id, market_id, legs, tolerance_pct, passed, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		report.ID, report.PlanID, report.MarketID, legs,
		report.TolerancePct, report.Passed, report.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert report %s: %w", report.ID, err)
	}
	return nil
}

const reportCols = `id, plan_id, market_id, legs, tolerance_pct, passed, created_at`

func scanReport(row pgx.Row) (domain.ReconciliationReport, error) {
	var r domain.ReconciliationReport
	var legs []byte
	err := row.Scan(
		&r.ID, &r.PlanID, &r.MarketID, &legs,
		&r.TolerancePct, &r.Passed, &r.CreatedAt,
	)
	if err != nil {
		return domain.ReconciliationReport{}, err
	}
	if err := json.Unmarshal(legs, &r.Legs); err != nil {
		return domain.ReconciliationReport{}, fmt.Errorf("decode report legs: %w", err)
	}
	return r, nil
}

// GetByID retrieves a report by its primary key.
func (s *ReportStore) GetByID(ctx context.Context, id string) (domain.ReconciliationReport, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+reportCols+` FROM reconciliation_reports WHERE id = $1`, id)
	r, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ReconciliationReport{}, domain.ErrNotFound
		}
		return domain.ReconciliationReport{}, fmt.Errorf("postgres: get report %s: %w", id, err)
	}
	return r, nil
}

// ListByPlan returns all reports for a plan, newest first.
func (s *ReportStore) ListByPlan(ctx context.Context, planID string) ([]domain.ReconciliationReport, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+reportCols+` FROM reconciliation_reports
		WHERE plan_id = $1 ORDER BY created_at DESC`, planID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list reports for plan %s: %w", planID, err)
	}
	defer rows.Close()
	return collectReports(rows)
}

// ListRecent returns the most recent reports across all plans.
func (s *ReportStore) ListRecent(ctx context.Context, limit int) ([]domain.ReconciliationReport, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+reportCols+` FROM reconciliation_reports
		ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent reports: %w", err)
	}
	defer rows.Close()
	return collectReports(rows)
}

func collectReports(rows pgx.Rows) ([]domain.ReconciliationReport, error) {
	var reports []domain.ReconciliationReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan report: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: report rows: %w", err)
	}
	return reports, nil
}

// ListBefore returns all reports created strictly before the cutoff, oldest
// first. Used by the archiver.
func (s *ReportStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ReconciliationReport, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+reportCols+` FROM reconciliation_reports
		WHERE created_at < $1 ORDER BY created_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list reports before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return collectReports(rows)
}

var _ domain.ReportStore = (*ReportStore)(nil)
