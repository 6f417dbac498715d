package handler

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/evand/conditional-markets/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// sanitizePlan replaces the ±Inf cost sentinels an infeasible leg can carry
// with zero so the plan always serializes as JSON. Plans with only finite
// values pass through untouched.
func sanitizePlan(p domain.Plan) domain.Plan {
	finite := func(v float64) bool { return !math.IsInf(v, 0) && !math.IsNaN(v) }

	clean := finite(p.TotalCost) && finite(p.NeutralityScore)
	for _, leg := range p.Legs {
		clean = clean && finite(leg.Cost) && finite(leg.Shares) && finite(leg.RequestedShares)
	}
	for _, v := range p.PayoutByCell {
		clean = clean && finite(v)
	}
	if clean {
		return p
	}

	zero := func(v float64) float64 {
		if finite(v) {
			return v
		}
		return 0
	}
	legs := make([]domain.PlanLeg, len(p.Legs))
	copy(legs, p.Legs)
	for i := range legs {
		legs[i].Cost = zero(legs[i].Cost)
		legs[i].Shares = zero(legs[i].Shares)
		legs[i].RequestedShares = zero(legs[i].RequestedShares)
	}
	payout := make(map[domain.Cell]float64, len(p.PayoutByCell))
	for c, v := range p.PayoutByCell {
		payout[c] = zero(v)
	}
	p.Legs = legs
	p.PayoutByCell = payout
	p.TotalCost = zero(p.TotalCost)
	p.NeutralityScore = zero(p.NeutralityScore)
	return p
}
