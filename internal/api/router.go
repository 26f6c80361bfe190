package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/inventory-gateway/internal/auth"
)

// healthCheckTimeout bounds the store probe in the health endpoint.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// WebSocket endpoints; the last path segment names the default resource.
	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/api/v1/ws"
	}
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware(auth.ScopeRead))
		r.Get(wsPath, s.handleWebSocket)
		r.Get(wsPath+"/{resource}", s.handleWebSocket)
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Gateway metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware(auth.ScopeRead))

			r.Route("/collections/{collection}", func(r chi.Router) {
				r.Use(s.servedCollection)
				r.Get("/", s.handleListRecords)
				r.Get("/{id}", s.handleGetRecord)

				r.Group(func(r chi.Router) {
					r.Use(s.authMiddleware(auth.ScopeWrite))
					r.Post("/", s.handleCreateRecord)
					r.Patch("/{id}", s.handleUpdateRecord)
					r.Delete("/{id}", s.handleDeleteRecord)
				})
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware(auth.ScopeWrite))
			r.Post("/exchanges/{exchange}/publish", s.handlePublish)
		})
	})

	return r
}

// handleHealth reports store and bus status. The gateway is unhealthy when
// the store is unreachable and degraded when the MQTT broker is down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"store": "ok"}
	status, code := "ok", http.StatusOK

	if err := s.store.HealthCheck(ctx); err != nil {
		s.logger.Warn("store health check failed", "error", err)
		checks["store"] = "unavailable"
		status, code = "unavailable", http.StatusServiceUnavailable
	}

	switch {
	case s.mqtt == nil:
		checks["bus"] = "local"
	case s.mqtt.IsConnected():
		checks["bus"] = "ok"
	default:
		checks["bus"] = "disconnected"
		if code == http.StatusOK {
			status = "degraded"
		}
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.version,
		"checks":  checks,
	})
}
