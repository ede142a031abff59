package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Liveness probe
	r.Get("/healthz", s.handleHealth)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/buses/{name}", s.handleBus)
		r.Get("/journal", s.handleJournal)
	})

	// WebSocket live tap
	r.Get(s.tapPath(), s.handleTap)

	return r
}

// tapPath returns the configured tap endpoint path, defaulting to /ws/tap.
func (s *Server) tapPath() string {
	if s.tapCfg.Path != "" {
		return s.tapCfg.Path
	}
	return "/ws/tap"
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
