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

// MarketStore persists joint-market metadata.
type MarketStore interface {
	Upsert(ctx context.Context, market JointMarket) error
	UpsertBatch(ctx context.Context, markets []JointMarket) error
	GetByID(ctx context.Context, id string) (JointMarket, error)
	GetBySlug(ctx context.Context, slug string) (JointMarket, error)
	ListActive(ctx context.Context, opts ListOpts) ([]JointMarket, error)
	Count(ctx context.Context) (int64, error)
}

// PlanStore persists simulated plans and their legs.
type PlanStore interface {
	Create(ctx context.Context, plan Plan) error
	GetByID(ctx context.Context, id string) (Plan, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Plan, error)
	ListRecent(ctx context.Context, limit int) ([]Plan, error)
}

// ReportStore persists reconciliation reports.
type ReportStore interface {
	Create(ctx context.Context, report ReconciliationReport) error
	GetByID(ctx context.Context, id string) (ReconciliationReport, error)
	ListByPlan(ctx context.Context, planID string) ([]ReconciliationReport, error)
	ListRecent(ctx context.Context, limit int) ([]ReconciliationReport, error)
}
