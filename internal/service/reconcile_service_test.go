package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evand/conditional-markets/internal/domain"
)

// memPlanStore is an in-memory domain.PlanStore.
type memPlanStore struct {
	byID map[string]domain.Plan
}

func newMemPlanStore(plans ...domain.Plan) *memPlanStore {
	s := &memPlanStore{byID: make(map[string]domain.Plan)}
	for _, p := range plans {
		s.byID[p.ID] = p
	}
	return s
}

func (s *memPlanStore) Create(_ context.Context, p domain.Plan) error {
	s.byID[p.ID] = p
	return nil
}

func (s *memPlanStore) GetByID(_ context.Context, id string) (domain.Plan, error) {
	if p, ok := s.byID[id]; ok {
		return p, nil
	}
	return domain.Plan{}, domain.ErrNotFound
}

func (s *memPlanStore) ListByMarket(_ context.Context, marketID string, _ domain.ListOpts) ([]domain.Plan, error) {
	var out []domain.Plan
	for _, p := range s.byID {
		if p.MarketID == marketID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memPlanStore) ListRecent(_ context.Context, limit int) ([]domain.Plan, error) {
	var out []domain.Plan
	for _, p := range s.byID {
		if len(out) == limit {
			break
		}
		out = append(out, p)
	}
	return out, nil
}

// memReportStore records created reports.
type memReportStore struct {
	created []domain.ReconciliationReport
}

func (s *memReportStore) Create(_ context.Context, r domain.ReconciliationReport) error {
	s.created = append(s.created, r)
	return nil
}

func (s *memReportStore) GetByID(_ context.Context, id string) (domain.ReconciliationReport, error) {
	for _, r := range s.created {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.ReconciliationReport{}, domain.ErrNotFound
}

func (s *memReportStore) ListByPlan(_ context.Context, planID string) ([]domain.ReconciliationReport, error) {
	var out []domain.ReconciliationReport
	for _, r := range s.created {
		if r.PlanID == planID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memReportStore) ListRecent(_ context.Context, limit int) ([]domain.ReconciliationReport, error) {
	if len(s.created) > limit {
		return s.created[:limit], nil
	}
	return s.created, nil
}

// stubQuoter answers dry-run quotes per leg in call order; failAt aborts at
// that call index.
type stubQuoter struct {
	shares []float64
	failAt int // -1 never fails
	calls  int
}

func (q *stubQuoter) DryRunBuy(_ context.Context, _, _ string, _ domain.Side, _ float64) (float64, error) {
	i := q.calls
	q.calls++
	if q.failAt >= 0 && i == q.failAt {
		return 0, fmt.Errorf("dry-run rejected")
	}
	return q.shares[i], nil
}

// stubLocks hands out locks unless held is set.
type stubLocks struct {
	held     bool
	acquired []string
}

func (l *stubLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.acquired = append(l.acquired, key)
	return func() {}, nil
}

func testPlan(legs ...domain.PlanLeg) domain.Plan {
	return domain.Plan{
		ID:        "11111111-2222-3333-4444-555555555555",
		MarketID:  "m1",
		Kind:      domain.PlanDirect,
		Legs:      legs,
		Valid:     true,
		FailedLeg: -1,
		CreatedAt: time.Now().UTC(),
	}
}

func newTestReconcileService(
	plan domain.Plan,
	quoter *stubQuoter,
	locks domain.LockManager,
	reports *memReportStore,
) *ReconcileService {
	store := newMemMarketStore()
	_ = store.Upsert(context.Background(), jointMarket("m1"))
	markets := NewMarketService(&stubFetcher{total: 0}, store, newStubMarketCache(), 10, discardLogger())

	return NewReconcileService(
		newMemPlanStore(plan), reports, markets, quoter, locks, nil,
		1.0, 3.0, discardLogger(),
	)
}

func TestReconcilePassesWithinTolerance(t *testing.T) {
	plan := testPlan(
		domain.PlanLeg{Cell: domain.CellYesYes, Side: domain.SideYes, Cost: 50, Shares: 100},
		domain.PlanLeg{Cell: domain.CellNoNo, Side: domain.SideYes, Cost: 50, Shares: 80},
	)
	// Both quotes within 3% of the simulated shares.
	quoter := &stubQuoter{shares: []float64{98, 81}, failAt: -1}
	reports := &memReportStore{}

	svc := newTestReconcileService(plan, quoter, &stubLocks{}, reports)
	report, err := svc.Run(context.Background(), plan.ID)
	require.NoError(t, err)

	assert.True(t, report.Passed)
	require.Len(t, report.Legs, 2)
	assert.True(t, report.Legs[0].Match)
	assert.True(t, report.Legs[1].Match)
	// Two legs select the multi-leg band.
	assert.InDelta(t, 3.0, report.TolerancePct, 1e-9)
	require.Len(t, reports.created, 1)
	assert.Equal(t, plan.ID, reports.created[0].PlanID)
}

func TestReconcileSingleLegTolerance(t *testing.T) {
	plan := testPlan(domain.PlanLeg{Cell: domain.CellYesYes, Side: domain.SideYes, Cost: 50, Shares: 100})
	// 2% off: inside the multi-leg band but outside the single-leg one.
	quoter := &stubQuoter{shares: []float64{98}, failAt: -1}
	reports := &memReportStore{}

	svc := newTestReconcileService(plan, quoter, &stubLocks{}, reports)
	report, err := svc.Run(context.Background(), plan.ID)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, report.TolerancePct, 1e-9)
	assert.False(t, report.Passed)
}

func TestReconcileQuoteFailureAbortsRun(t *testing.T) {
	plan := testPlan(
		domain.PlanLeg{Cell: domain.CellYesYes, Side: domain.SideYes, Cost: 30, Shares: 60},
		domain.PlanLeg{Cell: domain.CellYesNo, Side: domain.SideYes, Cost: 30, Shares: 55},
		domain.PlanLeg{Cell: domain.CellNoYes, Side: domain.SideYes, Cost: 30, Shares: 50},
	)
	quoter := &stubQuoter{shares: []float64{60, 0, 0}, failAt: 1}
	reports := &memReportStore{}

	svc := newTestReconcileService(plan, quoter, &stubLocks{}, reports)
	report, err := svc.Run(context.Background(), plan.ID)
	require.NoError(t, err)

	// The failed leg aborts the run; no quote is fetched for the third leg.
	assert.Equal(t, 2, quoter.calls)

	require.Len(t, report.Legs, 3)
	assert.True(t, report.Legs[0].Available)
	assert.False(t, report.Legs[1].Available)
	assert.False(t, report.Legs[2].Available)
	assert.False(t, report.Passed)
	// The failed run is still persisted for inspection.
	require.Len(t, reports.created, 1)
}

func TestReconcileLockHeld(t *testing.T) {
	plan := testPlan(domain.PlanLeg{Cell: domain.CellYesYes, Side: domain.SideYes, Cost: 10, Shares: 20})
	quoter := &stubQuoter{shares: []float64{20}, failAt: -1}

	svc := newTestReconcileService(plan, quoter, &stubLocks{held: true}, &memReportStore{})
	_, err := svc.Run(context.Background(), plan.ID)
	require.ErrorIs(t, err, domain.ErrLockHeld)
	assert.Zero(t, quoter.calls)
}

func TestReconcileLockKeyIsPerPlan(t *testing.T) {
	plan := testPlan(domain.PlanLeg{Cell: domain.CellYesYes, Side: domain.SideYes, Cost: 10, Shares: 20})
	quoter := &stubQuoter{shares: []float64{20}, failAt: -1}
	locks := &stubLocks{}

	svc := newTestReconcileService(plan, quoter, locks, &memReportStore{})
	_, err := svc.Run(context.Background(), plan.ID)
	require.NoError(t, err)
	require.Len(t, locks.acquired, 1)
	assert.Equal(t, "reconcile:"+plan.ID, locks.acquired[0])
}

func TestReconcileUnknownPlan(t *testing.T) {
	plan := testPlan(domain.PlanLeg{Cell: domain.CellYesYes, Side: domain.SideYes, Cost: 10, Shares: 20})
	svc := newTestReconcileService(plan, &stubQuoter{failAt: -1}, &stubLocks{}, &memReportStore{})

	_, err := svc.Run(context.Background(), "no-such-plan")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
