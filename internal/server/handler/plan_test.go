package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evand/conditional-markets/internal/domain"
)

type stubPlanService struct {
	simulated domain.Plan
	err       error
	gotReq    domain.PlanRequest
}

func (s *stubPlanService) Simulate(_ context.Context, req domain.PlanRequest) (domain.Plan, error) {
	s.gotReq = req
	return s.simulated, s.err
}

func (s *stubPlanService) GetPlan(_ context.Context, id string) (domain.Plan, error) {
	if s.err != nil {
		return domain.Plan{}, s.err
	}
	return s.simulated, nil
}

func (s *stubPlanService) ListPlans(_ context.Context, _ string, _ domain.ListOpts) ([]domain.Plan, error) {
	return []domain.Plan{s.simulated}, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func postJSON(t *testing.T, h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/plans", bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestSimulateDirectPlan(t *testing.T) {
	svc := &stubPlanService{simulated: domain.Plan{ID: "p1", Kind: domain.PlanDirect, Valid: true, FailedLeg: -1}}
	h := NewPlanHandler(svc, discardLogger())

	rec := postJSON(t, h.Simulate, map[string]any{
		"kind":      "direct",
		"market_id": "m1",
		"target":    "YES_YES",
		"budget":    50.0,
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, domain.PlanDirect, svc.gotReq.Kind)
	assert.Equal(t, domain.CellYesYes, svc.gotReq.Target)
	assert.Equal(t, domain.SideYes, svc.gotReq.Side) // default side
	assert.Equal(t, 50.0, svc.gotReq.Budget)

	var got domain.Plan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "p1", got.ID)
}

func TestSimulateRejectsBadBodies(t *testing.T) {
	h := NewPlanHandler(&stubPlanService{}, discardLogger())

	cases := []map[string]any{
		{"kind": "direct", "market_id": "m1", "target": "DIAGONAL", "budget": 5.0},
		{"kind": "direct", "market_id": "m1", "target": "YES_YES"}, // no budget
		{"kind": "direct", "target": "YES_YES", "budget": 5.0},    // no market
		{"kind": "conditional", "market_id": "m1", "target": "YES_YES", "budget": 5.0, "hedge_shares": 2.0, "condition": "C"},
		{"kind": "marginal", "market_id": "m1", "budget": 5.0, "marginal_event": "A"}, // no marginal_holds
		{"kind": "correlation", "market_id": "m1", "direction": "sideways", "max_shares": 10.0},
		{"kind": "teleport", "market_id": "m1"},
	}
	for _, body := range cases {
		rec := postJSON(t, h.Simulate, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %v", body)
	}
}

func TestSimulateCorrelationPlan(t *testing.T) {
	svc := &stubPlanService{simulated: domain.Plan{ID: "p2", Kind: domain.PlanCorrelation}}
	h := NewPlanHandler(svc, discardLogger())

	rec := postJSON(t, h.Simulate, map[string]any{
		"kind":       "correlation",
		"market_id":  "m1",
		"direction":  "long",
		"max_shares": 25.0,
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, domain.CorrelationLong, svc.gotReq.Direction)
	assert.Equal(t, 25.0, svc.gotReq.MaxShares)
}

func TestSimulateSerializesInfeasiblePlan(t *testing.T) {
	svc := &stubPlanService{simulated: domain.Plan{
		ID:        "p3",
		Kind:      domain.PlanDirect,
		Valid:     false,
		FailedLeg: 0,
		TotalCost: math.Inf(1),
		Legs: []domain.PlanLeg{
			{Cell: domain.CellYesYes, Side: domain.SideYes, Cost: math.Inf(1), Shares: math.NaN()},
		},
		PayoutByCell: map[domain.Cell]float64{domain.CellYesYes: math.Inf(1)},
	}}
	h := NewPlanHandler(svc, discardLogger())

	rec := postJSON(t, h.Simulate, map[string]any{
		"kind":      "direct",
		"market_id": "m1",
		"target":    "yes_yes",
		"budget":    50.0,
	})

	require.Equal(t, http.StatusCreated, rec.Code, "non-finite sentinels must not break serialization")

	var got domain.Plan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.False(t, got.Valid)
	assert.Equal(t, 0, got.FailedLeg)
	assert.Zero(t, got.TotalCost)
	require.Len(t, got.Legs, 1)
	assert.Zero(t, got.Legs[0].Cost)
}

func TestSimulateMarketNotFound(t *testing.T) {
	h := NewPlanHandler(&stubPlanService{err: domain.ErrNotFound}, discardLogger())

	rec := postJSON(t, h.Simulate, map[string]any{
		"kind":      "direct",
		"market_id": "missing",
		"target":    "NO_NO",
		"budget":    10.0,
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPlanNotFound(t *testing.T) {
	h := NewPlanHandler(&stubPlanService{err: domain.ErrNotFound}, discardLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/plans/{id}", h.GetPlan)

	req := httptest.NewRequest(http.MethodGet, "/api/plans/nope", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
