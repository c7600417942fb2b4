package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/example/chargeback-desk/internal/disputes"
	"github.com/example/chargeback-desk/internal/realtime"
	"github.com/example/chargeback-desk/internal/security"
)

func handleListDisputes(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parseQuery(r.URL.Query())
		if err != nil {
			security.WriteJSONErrorDetail(w, r, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}
		view, err := deps.Dashboard.Query(r.Context(), q)
		if err != nil {
			writeDashboardError(w, r, deps, err)
			return
		}
		writeJSON(w, r, http.StatusOK, view)
	}
}

type searchRequest struct {
	Bucket string             `json:"bucket"`
	Filter map[string]any     `json:"filter"`
	Sort   disputes.SortState `json:"sort"`
}

func handleSearchDisputes(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		values, err := searchValues(req)
		if err != nil {
			security.WriteJSONErrorDetail(w, r, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}
		q, err := parseQuery(values)
		if err != nil {
			security.WriteJSONErrorDetail(w, r, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}

		view, err := deps.Dashboard.Query(r.Context(), q)
		if err != nil {
			writeDashboardError(w, r, deps, err)
			return
		}
		writeJSON(w, r, http.StatusOK, view)
	}
}

// searchValues flattens a search body into query parameters.
func searchValues(req searchRequest) (url.Values, error) {
	v := url.Values{}
	if req.Bucket != "" {
		v.Set("bucket", req.Bucket)
	}
	if req.Sort.Field != "" {
		v.Set("sort", req.Sort.Field)
		v.Set("direction", string(req.Sort.Direction))
	}
	for name, raw := range req.Filter {
		switch val := raw.(type) {
		case nil:
		case string:
			v.Set(name, val)
		case json.Number:
			v.Set(name, val.String())
		case bool:
			if val {
				v.Set(name, string(disputes.TriYes))
			} else {
				v.Set(name, string(disputes.TriNo))
			}
		default:
			return nil, fmt.Errorf("%s: unsupported value", name)
		}
	}
	return v, nil
}

func handleCounts(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := deps.Dashboard.Counts(r.Context())
		if err != nil {
			writeDashboardError(w, r, deps, err)
			return
		}
		writeJSON(w, r, http.StatusOK, counts)
	}
}

func handleActivities(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history, err := deps.Dashboard.Activities(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDashboardError(w, r, deps, err)
			return
		}
		writeJSON(w, r, http.StatusOK, history)
	}
}

func handleNextSort(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		dir, err := disputes.ParseDirection(q.Get("current_direction"))
		if err != nil {
			security.WriteJSONErrorDetail(w, r, http.StatusBadRequest, "invalid_query", err.Error())
			return
		}
		current := disputes.SortState{Field: q.Get("current_field"), Direction: dir}
		writeJSON(w, r, http.StatusOK, disputes.NextState(q.Get("field"), current))
	}
}

type refreshResponse struct {
	TriggerID     string `json:"trigger_id"`
	Generation    uint64 `json:"generation"`
	Disputes      int    `json:"disputes"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// handleRefresh runs a manual reload synchronously through the same path a
// change signal takes.
func handleRefresh(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sig := realtime.NewSignal(realtime.OriginManual, "")
		if err := deps.Refresher.Refresh(r.Context(), sig); err != nil {
			deps.Logger.ErrorContext(r.Context(), "manual refresh failed",
				"cid", security.CorrelationIDFromContext(r.Context()), "trigger_id", sig.ID, "error", err)
			security.WriteJSONError(w, r, http.StatusBadGateway, "refresh_failed")
			return
		}

		snap, err := deps.Dashboard.Snapshot()
		if err != nil {
			writeDashboardError(w, r, deps, err)
			return
		}
		writeJSON(w, r, http.StatusOK, refreshResponse{
			TriggerID:     sig.ID,
			Generation:    snap.Generation,
			Disputes:      len(snap.Aggregates),
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
		})
	}
}
