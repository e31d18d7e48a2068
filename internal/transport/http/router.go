// Package httptransport assembles the HTTP surface. Handlers stay thin and
// delegate to domain services; this package only wires routes and middleware.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sebenza/internal/platform/metrics"
	"sebenza/internal/platform/middleware"
	"sebenza/internal/transport/http/shared"
	"sebenza/pkg/platform/middleware/requesttime"
)

// Registrar is implemented by every domain handler.
type Registrar interface {
	Register(r chi.Router)
}

// Deps carries everything the router needs.
type Deps struct {
	Handlers  []Registrar
	Validator middleware.TokenValidator
	Logger    *slog.Logger
	Metrics   *metrics.Metrics

	// ReadyChecks run on /readyz; any failure makes the service not ready.
	ReadyChecks map[string]func(ctx context.Context) error
}

// NewRouter wires all endpoints. The API group requires a bearer token; the
// operational endpoints do not.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.Latency(deps.Metrics))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		for name, check := range deps.ReadyChecks {
			if err := check(req.Context()); err != nil {
				deps.Logger.WarnContext(req.Context(), "readiness check failed",
					"check", name,
					"error", err,
				)
				shared.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"check":  name,
				})
				return
			}
		}
		shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(api chi.Router) {
		api.Use(middleware.RequireAuth(deps.Validator, deps.Logger))
		for _, h := range deps.Handlers {
			h.Register(api)
		}
	})

	return r
}
