package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/framecheck/internal/api/middleware"
	"github.com/kiranshivaraju/framecheck/internal/api/response"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	SubmitHandler        http.HandlerFunc
	AnalysisStateHandler http.HandlerFunc
	ResetHandler         http.HandlerFunc
	ResultsHandler       http.HandlerFunc
	StreamHandler        http.HandlerFunc
	JobStatusHandler     http.HandlerFunc

	ListAnalysesHandler http.HandlerFunc
	GetAnalysisHandler  http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)

	// Public routes
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Handle("/metrics", promhttp.Handler())

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(mw.ScopeAnalyze))

			r.Post("/api/v1/analysis", orNotImplemented(deps.SubmitHandler))
			r.Delete("/api/v1/analysis", orNotImplemented(deps.ResetHandler))
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(mw.ScopeRead))

			r.Get("/api/v1/analysis", orNotImplemented(deps.AnalysisStateHandler))
			r.Get("/api/v1/analysis/results", orNotImplemented(deps.ResultsHandler))
			r.Get("/api/v1/analysis/stream", orNotImplemented(deps.StreamHandler))
			r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.JobStatusHandler))

			r.Get("/api/v1/analyses", orNotImplemented(deps.ListAnalysesHandler))
			r.Get("/api/v1/analyses/{analysisID}", orNotImplemented(deps.GetAnalysisHandler))
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(mw.ScopeAdmin))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
