package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/chargeback-desk/internal/dashboard"
	"github.com/example/chargeback-desk/internal/security"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	cid := security.CorrelationIDFromContext(r.Context())
	if cid != "" {
		w.Header().Set(security.CorrelationIDHeader, cid)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeDashboardError maps dashboard sentinels to HTTP statuses.
func writeDashboardError(w http.ResponseWriter, r *http.Request, deps Dependencies, err error) {
	switch {
	case errors.Is(err, dashboard.ErrNotLoaded):
		w.Header().Set("Retry-After", "1")
		security.WriteJSONError(w, r, http.StatusServiceUnavailable, "snapshot_not_loaded")
	case errors.Is(err, dashboard.ErrDisputeNotFound):
		security.WriteJSONError(w, r, http.StatusNotFound, "dispute_not_found")
	default:
		deps.Logger.ErrorContext(r.Context(), "dashboard request failed",
			"cid", security.CorrelationIDFromContext(r.Context()), "error", err)
		security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
	}
}
