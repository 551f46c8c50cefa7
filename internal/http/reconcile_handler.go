package httpapi

import (
	"errors"
	"net/http"
	"time"

	"coachsync/internal/reconcile"

	"go.uber.org/zap"
)

// ReconcileHandler 手动触发 reconciliation run（运维/调试用）
type ReconcileHandler struct {
	reconciler *reconcile.Reconciler
	logger     *zap.Logger
}

func NewReconcileHandler(reconciler *reconcile.Reconciler, logger *zap.Logger) *ReconcileHandler {
	return &ReconcileHandler{reconciler: reconciler, logger: logger}
}

type reconcileRequest struct {
	CoachID          string `json:"coach_id"`
	LookbackHours    int    `json:"lookback_hours"`
	ProximityMinutes int    `json:"proximity_minutes"`
	MaxRuntimeSec    int    `json:"max_runtime_seconds"`
}

// Run POST /reconcile/api/v1/run
func (h *ReconcileHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid request body"))
		return
	}

	stats, err := h.reconciler.Run(r.Context(), reconcile.Options{
		CoachID:          req.CoachID,
		LookbackHours:    req.LookbackHours,
		ProximityMinutes: req.ProximityMinutes,
		MaxRuntime:       time.Duration(req.MaxRuntimeSec) * time.Second,
	})
	if err != nil {
		if errors.Is(err, reconcile.ErrRunInProgress) {
			writeJSON(w, http.StatusConflict, Fail("reconciliation run already in progress"))
			return
		}
		h.logger.Error("reconciliation run failed",
			zap.String("coach_id", req.CoachID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, Ok(stats))
}
