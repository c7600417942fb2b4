package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/chargeback-desk/internal/dashboard"
	"github.com/example/chargeback-desk/internal/realtime"
	"github.com/example/chargeback-desk/internal/security"
	"github.com/example/chargeback-desk/pkg/audit"
)

type Auditor interface {
	Record(ctx context.Context, access audit.Access) (*audit.LogEntry, error)
}

// Dashboard answers view queries against the published snapshot.
type Dashboard interface {
	Query(ctx context.Context, q dashboard.Query) (*dashboard.View, error)
	Counts(ctx context.Context) (*dashboard.Counts, error)
	Activities(ctx context.Context, id string) (*dashboard.History, error)
	Snapshot() (*dashboard.Snapshot, error)
}

type Dependencies struct {
	Logger    *slog.Logger
	Dashboard Dashboard
	Refresher realtime.Refresher

	Auditor           Auditor
	RateLimiter       *security.RedisTokenBucket
	RateLimitFailOpen bool
	IPAllowlist       []*net.IPNet
	MaxBodyBytes      int64
}

func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	searchV, err := security.NewJSONSchemaValidator(searchSchema)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(security.CorrelationID)
	r.Use(RequestLogger(deps.Logger))
	r.Use(security.BodySizeLimit(deps.MaxBodyBytes))
	r.Use(security.IPAllowlist(deps.IPAllowlist))
	if deps.RateLimiter != nil {
		r.Use(security.RateLimitMiddleware(deps.RateLimiter, security.KeyByIP, security.RateLimitOptions{
			FailOpen: deps.RateLimitFailOpen,
			Logger:   deps.Logger,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/v1", func(r chi.Router) {
		if deps.Auditor != nil {
			r.Use(AuditMiddleware(deps.Auditor, deps))
		}

		r.Route("/disputes", func(r chi.Router) {
			r.Get("/", handleListDisputes(deps))
			r.Get("/counts", handleCounts(deps))
			r.Get("/{id}/activities", handleActivities(deps))
			r.With(searchV.Middleware).Post("/search", handleSearchDisputes(deps))
		})

		r.Get("/sort/next", handleNextSort(deps))
		if deps.Refresher != nil {
			r.Post("/refresh", handleRefresh(deps))
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	return r, nil
}
