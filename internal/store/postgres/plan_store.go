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

// PlanStore implements domain.PlanStore using PostgreSQL. Legs live in their
// own table in execution order; the per-cell payout and role maps plus the
// projected pools are JSONB, since they are only ever read back whole.
type PlanStore struct {
	pool *pgxpool.Pool
}

// NewPlanStore creates a new PlanStore.
func NewPlanStore(pool *pgxpool.Pool) *PlanStore {
	return &PlanStore{pool: pool}
}

// Create inserts a plan and its legs in one transaction.
func (s *PlanStore) Create(ctx context.Context, plan domain.Plan) error {
	payouts, err := json.Marshal(plan.PayoutByCell)
	if err != nil {
		return fmt.Errorf("postgres: encode payouts for %s: %w", plan.ID, err)
	}
	roles, err := json.Marshal(plan.RoleByCell)
	if err != nil {
		return fmt.Errorf("postgres: encode roles for %s: %w", plan.ID, err)
	}
	pools, err := json.Marshal(plan.Pools)
	if err != nil {
		return fmt.Errorf("postgres: encode pools for %s: %w", plan.ID, err)
	}
	warnings, err := json.Marshal(plan.Warnings)
	if err != nil {
		return fmt.Errorf("postgres: encode warnings for %s: %w", plan.ID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO plans (
			id, market_id, kind, total_cost, payout_by_cell, role_by_cell,
			pools, valid, failed_leg, warnings, neutrality_score, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		plan.ID, plan.MarketID, string(plan.Kind), plan.TotalCost, payouts, roles,
		pools, plan.Valid, plan.FailedLeg, warnings, plan.NeutralityScore, plan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert plan: %w", err)
	}

	for i, leg := range plan.Legs {
		_, err = tx.Exec(ctx, `
			INSERT INTO plan_legs (
				plan_id, leg_index, cell, side, role,
				requested_shares, cost, shares, status, below_minimum
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			plan.ID, i, string(leg.Cell), string(leg.Side), string(leg.Role),
			leg.RequestedShares, leg.Cost, leg.Shares, string(leg.Status), leg.BelowMinimum,
		)
		if err != nil {
			return fmt.Errorf("postgres: insert plan leg %d: %w", i, err)
		}
	}

	return tx.Commit(ctx)
}

const planCols = `id, market_id, kind, total_cost, payout_by_cell, role_by_cell,
	pools, valid, failed_leg, warnings, neutrality_score, created_at`

func scanPlan(row pgx.Row) (domain.Plan, error) {
	var p domain.Plan
	var kind string
	var payouts, roles, pools, warnings []byte
	err := row.Scan(
		&p.ID, &p.MarketID, &kind, &p.TotalCost, &payouts, &roles,
		&pools, &p.Valid, &p.FailedLeg, &warnings, &p.NeutralityScore, &p.CreatedAt,
	)
	if err != nil {
		return domain.Plan{}, err
	}
	p.Kind = domain.PlanKind(kind)
	if err := json.Unmarshal(payouts, &p.PayoutByCell); err != nil {
		return domain.Plan{}, fmt.Errorf("decode payouts: %w", err)
	}
	if err := json.Unmarshal(roles, &p.RoleByCell); err != nil {
		return domain.Plan{}, fmt.Errorf("decode roles: %w", err)
	}
	if err := json.Unmarshal(pools, &p.Pools); err != nil {
		return domain.Plan{}, fmt.Errorf("decode pools: %w", err)
	}
	if err := json.Unmarshal(warnings, &p.Warnings); err != nil {
		return domain.Plan{}, fmt.Errorf("decode warnings: %w", err)
	}
	return p, nil
}

// loadLegs fetches the legs for each plan in the map, in execution order.
func (s *PlanStore) loadLegs(ctx context.Context, plans map[string]*domain.Plan) error {
	ids := make([]string, 0, len(plans))
	for id := range plans {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT plan_id, cell, side, role, requested_shares, cost, shares, status, below_minimum
		FROM plan_legs WHERE plan_id = ANY($1) ORDER BY plan_id, leg_index`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("postgres: load plan legs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var planID, cell, side, role, status string
		var leg domain.PlanLeg
		if err := rows.Scan(&planID, &cell, &side, &role,
			&leg.RequestedShares, &leg.Cost, &leg.Shares, &status, &leg.BelowMinimum,
		); err != nil {
			return fmt.Errorf("postgres: scan plan leg: %w", err)
		}
		leg.Cell = domain.Cell(cell)
		leg.Side = domain.Side(side)
		leg.Role = domain.LegRole(role)
		leg.Status = domain.ConvergenceStatus(status)
		if p, ok := plans[planID]; ok {
			p.Legs = append(p.Legs, leg)
		}
	}
	return rows.Err()
}

// GetByID returns a plan with its legs.
func (s *PlanStore) GetByID(ctx context.Context, id string) (domain.Plan, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+planCols+` FROM plans WHERE id = $1`, id)
	p, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Plan{}, domain.ErrNotFound
		}
		return domain.Plan{}, fmt.Errorf("postgres: get plan %s: %w", id, err)
	}

	plans := map[string]*domain.Plan{p.ID: &p}
	if err := s.loadLegs(ctx, plans); err != nil {
		return domain.Plan{}, err
	}
	return p, nil
}

// ListByMarket returns plans for a market, newest first.
func (s *PlanStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Plan, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+planCols+` FROM plans WHERE market_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		marketID, limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list plans for market %s: %w", marketID, err)
	}
	defer rows.Close()
	return s.collectPlans(ctx, rows)
}

// ListRecent returns the most recent plans across all markets.
func (s *PlanStore) ListRecent(ctx context.Context, limit int) ([]domain.Plan, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+planCols+` FROM plans ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent plans: %w", err)
	}
	defer rows.Close()
	return s.collectPlans(ctx, rows)
}

func (s *PlanStore) collectPlans(ctx context.Context, rows pgx.Rows) ([]domain.Plan, error) {
	var plans []domain.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: plan rows: %w", err)
	}

	byID := make(map[string]*domain.Plan, len(plans))
	for i := range plans {
		byID[plans[i].ID] = &plans[i]
	}
	if err := s.loadLegs(ctx, byID); err != nil {
		return nil, err
	}
	return plans, nil
}

// ListBefore returns all plans created strictly before the cutoff, oldest
// first. Used by the archiver.
func (s *PlanStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Plan, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+planCols+` FROM plans WHERE created_at < $1 ORDER BY created_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list plans before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return s.collectPlans(ctx, rows)
}

var _ domain.PlanStore = (*PlanStore)(nil)
