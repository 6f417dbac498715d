package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/evand/conditional-markets/internal/domain"
)

// ReconcileService defines what the reconcile handler needs from the service
// layer.
type ReconcileService interface {
	Run(ctx context.Context, planID string) (domain.ReconciliationReport, error)
	GetReport(ctx context.Context, id string) (domain.ReconciliationReport, error)
	ListByPlan(ctx context.Context, planID string) ([]domain.ReconciliationReport, error)
	ListRecent(ctx context.Context, limit int) ([]domain.ReconciliationReport, error)
}

// ReconcileHandler serves reconciliation endpoints.
type ReconcileHandler struct {
	reconcile ReconcileService
	logger    *slog.Logger
}

// NewReconcileHandler creates a ReconcileHandler with the given service and
// logger.
func NewReconcileHandler(reconcile ReconcileService, logger *slog.Logger) *ReconcileHandler {
	return &ReconcileHandler{
		reconcile: reconcile,
		logger:    logger,
	}
}

// Run fetches fresh venue dry-run quotes for every leg of the plan, compares
// them against the simulated legs, and persists the resulting report.
// POST /api/plans/{id}/reconcile
func (h *ReconcileHandler) Run(w http.ResponseWriter, r *http.Request) {
	planID := pathParam(r, "id")
	if planID == "" {
		writeError(w, http.StatusBadRequest, "missing plan id")
		return
	}

	report, err := h.reconcile.Run(r.Context(), planID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "plan not found")
		case errors.Is(err, domain.ErrLockHeld):
			writeError(w, http.StatusConflict, "a reconciliation for this plan is already running")
		default:
			h.logger.ErrorContext(r.Context(), "handler: reconcile run failed",
				slog.String("plan_id", planID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "reconciliation failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, report)
}

// GetReport returns one reconciliation report.
// GET /api/reports/{id}
func (h *ReconcileHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing report id")
		return
	}

	report, err := h.reconcile.GetReport(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get report failed",
			slog.String("report_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get report")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// ListByPlan returns all reports recorded for one plan.
// GET /api/plans/{id}/reports
func (h *ReconcileHandler) ListByPlan(w http.ResponseWriter, r *http.Request) {
	planID := pathParam(r, "id")
	if planID == "" {
		writeError(w, http.StatusBadRequest, "missing plan id")
		return
	}

	reports, err := h.reconcile.ListByPlan(r.Context(), planID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list reports failed",
			slog.String("plan_id", planID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// ListRecent returns the most recent reports across all plans.
// GET /api/reports?limit=50
func (h *ReconcileHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	reports, err := h.reconcile.ListRecent(r.Context(), opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list recent reports failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}
