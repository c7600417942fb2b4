package api

import (
	"net/http"
	"time"

	"github.com/example/chargeback-desk/internal/security"
	"github.com/example/chargeback-desk/pkg/audit"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// AuditMiddleware chains one access record per request. Sink failures are
// logged and never fail the request.
func AuditMiddleware(a Auditor, deps Dependencies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			start := time.Now()
			next.ServeHTTP(sw, r)
			dur := time.Since(start)

			cid := security.CorrelationIDFromContext(r.Context())
			_, err := a.Record(r.Context(), audit.Access{
				CorrelationID: cid,
				Method:        r.Method,
				Path:          r.URL.Path,
				Query:         r.URL.RawQuery,
				RemoteAddr:    r.RemoteAddr,
				Client:        security.ClientIdentity(r),
				Status:        sw.status,
				DurationMS:    dur.Milliseconds(),
			})
			if err != nil {
				deps.Logger.WarnContext(r.Context(), "audit record failed", "cid", cid, "error", err)
			}
		})
	}
}
