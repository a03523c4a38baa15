package httpapi

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the API router with its middleware chain.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(RequestID)

	r.With(Metrics("/healthz")).Get("/healthz", h.Healthz)
	r.With(Metrics("/setup")).Post("/setup", h.Setup)
	r.With(Metrics("/challenge")).Get("/challenge/{module}/{challenge}", h.GetChallenge)
	r.With(Metrics("/challenge/submit")).Post("/challenge/{module}/{challenge}/submit", h.SubmitChallenge)
	r.With(Metrics("/progress")).Get("/progress", h.GetProgress)

	r.Handle("/metrics", promhttp.Handler())

	return r
}
