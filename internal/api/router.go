package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds the dependency checks behind /api/health.
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

	r.Route("/api", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// Sensor ingestion. Sensors do not authenticate.
		r.Post("/sensors/td2000", s.handleIngest)
		r.Post("/v1/readings", s.handleIngest)

		r.Get("/devices", s.handleListDevices)
		r.Get("/devices/{id}", s.handleGetDevice)
		r.Get("/reports", s.handleReports)

		r.Route("/clients", func(r chi.Router) {
			r.Get("/", s.handleListClients)
			r.Get("/{id}", s.handleGetClient)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)
				r.Post("/", s.handleCreateClient)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/audit", s.handleListAudit)
		})

		// System metrics (no auth required for basic monitoring)
		r.Get("/system/metrics", s.handleSystemMetrics)
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.Get(wsPath, s.handleWebSocket)

	return r
}

// healthResponse is the body of GET /api/health.
type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// handleHealth returns the server health status. A failing database makes
// the service degraded; MQTT is reported but optional.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Version: s.version, Checks: map[string]string{}}
	status := http.StatusOK

	if s.db != nil {
		if err := s.db.HealthCheck(ctx); err != nil {
			resp.Checks["database"] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			resp.Checks["database"] = "ok"
		}
	}
	if s.mqtt != nil {
		if s.mqtt.IsConnected() {
			resp.Checks["mqtt"] = "ok"
		} else {
			resp.Checks["mqtt"] = "disconnected"
		}
	}

	writeJSON(w, status, resp)
}
