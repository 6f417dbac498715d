package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/evand/conditional-markets/internal/domain"
)

// PlanService defines what the plan handler needs from the service layer.
type PlanService interface {
	Simulate(ctx context.Context, req domain.PlanRequest) (domain.Plan, error)
	GetPlan(ctx context.Context, id string) (domain.Plan, error)
	ListPlans(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Plan, error)
}

// PlanHandler serves plan simulation and history endpoints.
type PlanHandler struct {
	plans  PlanService
	logger *slog.Logger
}

// NewPlanHandler creates a PlanHandler with the given service and logger.
func NewPlanHandler(plans PlanService, logger *slog.Logger) *PlanHandler {
	return &PlanHandler{
		plans:  plans,
		logger: logger,
	}
}

// simulateRequest is the JSON body for POST /api/plans. Fields beyond kind
// and market_id apply only to the matching plan kind.
type simulateRequest struct {
	Kind     string `json:"kind"`
	MarketID string `json:"market_id"`

	Target Cell    `json:"target,omitempty"`
	Side   string  `json:"side,omitempty"`
	Budget float64 `json:"budget,omitempty"`

	Condition   string  `json:"condition,omitempty"`
	HedgeShares float64 `json:"hedge_shares,omitempty"`

	MarginalEvent string `json:"marginal_event,omitempty"`
	MarginalHolds *bool  `json:"marginal_holds,omitempty"`

	Direction string  `json:"direction,omitempty"`
	MaxShares float64 `json:"max_shares,omitempty"`
}

// Cell aliases domain.Cell for JSON decoding of request bodies.
type Cell = domain.Cell

// validCells guards cell strings coming in over HTTP.
var validCells = map[domain.Cell]bool{
	domain.CellYesYes: true,
	domain.CellYesNo:  true,
	domain.CellNoYes:  true,
	domain.CellNoNo:   true,
}

// toPlanRequest validates the body and converts it to a domain request. The
// service layer fills in Pools from live venue state.
func (b simulateRequest) toPlanRequest() (domain.PlanRequest, error) {
	req := domain.PlanRequest{
		Kind:     domain.PlanKind(b.Kind),
		MarketID: b.MarketID,
	}

	if b.MarketID == "" {
		return req, errors.New("market_id is required")
	}

	target := domain.Cell(strings.ToLower(string(b.Target)))

	switch req.Kind {
	case domain.PlanDirect:
		if !validCells[target] {
			return req, errors.New("direct plan requires a valid target cell")
		}
		if b.Budget <= 0 {
			return req, errors.New("budget must be > 0")
		}
		req.Target = target
		req.Side = domain.SideYes
		if b.Side != "" {
			req.Side = domain.Side(strings.ToUpper(b.Side))
			if req.Side != domain.SideYes && req.Side != domain.SideNo {
				return req, errors.New(`side must be "YES" or "NO"`)
			}
		}
		req.Budget = b.Budget

	case domain.PlanConditional:
		if !validCells[target] {
			return req, errors.New("conditional plan requires a valid target cell")
		}
		if b.Budget <= 0 {
			return req, errors.New("budget must be > 0")
		}
		if b.HedgeShares <= 0 {
			return req, errors.New("hedge_shares must be > 0")
		}
		cond := domain.Event(strings.ToUpper(b.Condition))
		if cond != domain.EventA && cond != domain.EventB {
			return req, errors.New(`condition must be "A" or "B"`)
		}
		req.Target = target
		req.Budget = b.Budget
		req.HedgeShares = b.HedgeShares
		req.Condition = cond

	case domain.PlanMarginal:
		if b.Budget <= 0 {
			return req, errors.New("budget must be > 0")
		}
		ev := domain.Event(strings.ToUpper(b.MarginalEvent))
		if ev != domain.EventA && ev != domain.EventB {
			return req, errors.New(`marginal_event must be "A" or "B"`)
		}
		if b.MarginalHolds == nil {
			return req, errors.New("marginal_holds is required")
		}
		req.Budget = b.Budget
		req.MarginalEvent = ev
		req.MarginalHolds = *b.MarginalHolds

	case domain.PlanCorrelation:
		dir := domain.CorrelationDirection(strings.ToLower(b.Direction))
		if dir != domain.CorrelationLong && dir != domain.CorrelationShort {
			return req, errors.New(`direction must be "long" or "short"`)
		}
		if b.MaxShares <= 0 {
			return req, errors.New("max_shares must be > 0")
		}
		req.Direction = dir
		req.MaxShares = b.MaxShares

	default:
		return req, errors.New(`kind must be one of "direct", "conditional", "marginal", "correlation"`)
	}

	return req, nil
}

// Simulate builds a plan against live pool state and persists it.
// POST /api/plans
func (h *PlanHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var body simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req, err := body.toPlanRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	plan, err := h.plans.Simulate(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "market not found")
		case errors.Is(err, domain.ErrIncompleteMarket), errors.Is(err, domain.ErrInvalidPool):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "handler: simulate failed",
				slog.String("market_id", req.MarketID),
				slog.String("kind", string(req.Kind)),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "simulation failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, sanitizePlan(plan))
}

// GetPlan returns one simulated plan with its legs.
// GET /api/plans/{id}
func (h *PlanHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing plan id")
		return
	}

	plan, err := h.plans.GetPlan(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "plan not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get plan failed",
			slog.String("plan_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get plan")
		return
	}

	writeJSON(w, http.StatusOK, sanitizePlan(plan))
}

// listPlansResponse wraps the plan history output.
type listPlansResponse struct {
	Plans  []domain.Plan `json:"plans"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ListPlans returns simulated plan history, optionally scoped to a market.
// GET /api/plans?market_id=...&limit=50&offset=0
func (h *PlanHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	marketID := r.URL.Query().Get("market_id")

	plans, err := h.plans.ListPlans(r.Context(), marketID, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list plans failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list plans")
		return
	}
	for i := range plans {
		plans[i] = sanitizePlan(plans[i])
	}

	writeJSON(w, http.StatusOK, listPlansResponse{
		Plans:  plans,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}
