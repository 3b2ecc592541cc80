package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/dawaly/dawaly/internal/observability"
)

// RouteMounter is implemented by every domain handler.
type RouteMounter interface {
	MountRoutes(r chi.Router)
}

// RouterParams carries the handlers and shared dependencies for the API
// router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	Metrics           *observability.Metrics
	DirectoryHandler  RouteMounter
	ReferralHandler   RouteMounter
	AssignmentHandler RouteMounter
	RevenueHandler    RouteMounter
	JobHandler        RouteMounter
}

// NewRouter assembles the HTTP surface: health and metrics endpoints plus
// the versioned API namespace.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		mount(api, params.DirectoryHandler)
		mount(api, params.ReferralHandler)
		mount(api, params.AssignmentHandler)
		mount(api, params.RevenueHandler)
		if params.JobHandler != nil {
			api.Route("/jobs", func(jr chi.Router) {
				params.JobHandler.MountRoutes(jr)
			})
		}
	})

	return r
}

func mount(r chi.Router, h RouteMounter) {
	if h != nil {
		h.MountRoutes(r)
	}
}
