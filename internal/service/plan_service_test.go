package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evand/conditional-markets/internal/domain"
	"github.com/evand/conditional-markets/internal/notify"
	"github.com/evand/conditional-markets/internal/planner"
)

// stubPoolFetcher serves a fixed pool set plus venue-quoted prices.
type stubPoolFetcher struct {
	pools  domain.PoolSet
	prices map[domain.Cell]float64
	err    error
	calls  int
}

func (f *stubPoolFetcher) GetPools(_ context.Context, _ domain.JointMarket) (domain.PoolSet, map[domain.Cell]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.pools, f.prices, nil
}

func balancedPools() domain.PoolSet {
	pools := make(domain.PoolSet, len(domain.CellOrder))
	for _, c := range domain.CellOrder {
		pools[c] = domain.Pool{YesReserve: 400, NoReserve: 400}
	}
	return pools
}

func newTestPlanService(fetcher *stubPoolFetcher, plans domain.PlanStore) *PlanService {
	store := newMemMarketStore()
	_ = store.Upsert(context.Background(), jointMarket("m1"))
	markets := NewMarketService(&stubFetcher{total: 0}, store, newStubMarketCache(), 10, discardLogger())
	pl := planner.New(1.0, discardLogger())
	return NewPlanService(markets, fetcher, pl, plans, nil, nil, discardLogger())
}

func TestSimulateBuildsAndPersistsPlan(t *testing.T) {
	fetcher := &stubPoolFetcher{pools: balancedPools()}
	plans := newMemPlanStore()
	svc := newTestPlanService(fetcher, plans)

	plan, err := svc.Simulate(context.Background(), domain.PlanRequest{
		Kind:     domain.PlanDirect,
		MarketID: "m1",
		Target:   domain.CellYesYes,
		Side:     domain.SideYes,
		Budget:   50,
	})
	require.NoError(t, err)

	assert.True(t, plan.Valid)
	assert.NotEmpty(t, plan.ID)
	require.Len(t, plan.Legs, 1)
	assert.InDelta(t, 50, plan.TotalCost, 1e-9)

	// One fresh snapshot per simulation, and the plan is persisted.
	assert.Equal(t, 1, fetcher.calls)
	stored, err := plans.GetByID(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, "m1", stored.MarketID)
}

func TestSimulateUnknownMarket(t *testing.T) {
	svc := newTestPlanService(&stubPoolFetcher{pools: balancedPools()}, newMemPlanStore())

	_, err := svc.Simulate(context.Background(), domain.PlanRequest{
		Kind:     domain.PlanDirect,
		MarketID: "missing",
		Target:   domain.CellYesYes,
		Side:     domain.SideYes,
		Budget:   50,
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSimulatePoolFetchFailure(t *testing.T) {
	fetcher := &stubPoolFetcher{err: fmt.Errorf("amm timeout")}
	plans := newMemPlanStore()
	svc := newTestPlanService(fetcher, plans)

	_, err := svc.Simulate(context.Background(), domain.PlanRequest{
		Kind:     domain.PlanDirect,
		MarketID: "m1",
		Target:   domain.CellYesYes,
		Side:     domain.SideYes,
		Budget:   50,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amm timeout")
	assert.Empty(t, plans.byID)
}

func TestListPlansScopesByMarket(t *testing.T) {
	plans := newMemPlanStore(
		domain.Plan{ID: "p1", MarketID: "m1"},
		domain.Plan{ID: "p2", MarketID: "m2"},
	)
	svc := newTestPlanService(&stubPoolFetcher{pools: balancedPools()}, plans)

	scoped, err := svc.ListPlans(context.Background(), "m1", domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "p1", scoped[0].ID)

	all, err := svc.ListPlans(context.Background(), "", domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// recordingSender captures notification titles for assertions.
type recordingSender struct {
	titles []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return nil
}

func (r *recordingSender) Name() string { return "recording" }

func TestNotifyPlanTruncatesLongIDsOnly(t *testing.T) {
	sender := &recordingSender{}
	store := newMemMarketStore()
	_ = store.Upsert(context.Background(), jointMarket("m1"))
	markets := NewMarketService(&stubFetcher{total: 0}, store, newStubMarketCache(), 10, discardLogger())
	svc := NewPlanService(markets, &stubPoolFetcher{pools: balancedPools()}, planner.New(1.0, discardLogger()),
		newMemPlanStore(), nil, notify.NewNotifier([]notify.Sender{sender}, nil, discardLogger()), discardLogger())

	market := jointMarket("m1")

	// Short IDs must not panic the title formatting.
	svc.notifyPlan(context.Background(), market, domain.Plan{ID: "p1", Kind: domain.PlanDirect, Valid: true})
	svc.notifyPlan(context.Background(), market, domain.Plan{
		ID:   "11111111-2222-3333-4444-555555555555",
		Kind: domain.PlanDirect, Valid: true,
	})

	require.Len(t, sender.titles, 2)
	assert.Contains(t, sender.titles[0], "Plan p1")
	assert.Contains(t, sender.titles[1], "Plan 11111111")
	assert.NotContains(t, sender.titles[1], "11111111-")
}
