// Package api provides the HTTP API server for the plugtrack service.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/plugtrack-io/plugtrack/internal/api/middleware"
)

const (
	healthCheckTimeout = 2 * time.Second
	expectedURLParts   = 2
	serviceVersion     = "v1.0.0"
)

type (
	// HealthStatus represents the health check response structure.
	HealthStatus struct {
		Status      string `json:"status"`
		ServiceName string `json:"serviceName"`
		Version     string `json:"version"`
		Uptime      string `json:"uptime,omitempty"`
	}

	// Route represents an HTTP route configuration with a path and handler.
	// Used for declarative route registration with middleware bypass support.
	Route struct {
		Path    string           // The URL path for this route (e.g., "GET /ping")
		Handler http.HandlerFunc // The HTTP handler function for this route
	}
)

// setupRoutes sets up all HTTP routes for the API server.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Public health endpoints
	s.registerPublicRoutes(
		mux,
		Route{"GET /ping", s.handlePing},     // K8s liveness probe
		Route{"GET /ready", s.handleReady},   // K8s readiness probe
		Route{"GET /health", s.handleHealth}, // Basic health check - status, uptime, version
		Route{"/", s.handleNotFound},         // Catch-all handler for 404 responses
	)

	// Ingestion
	mux.HandleFunc("POST /api/v1/results", s.handleSubmitResults)

	// Query surface
	mux.HandleFunc("GET /api/v1/results/{plugin}", s.handlePluginResults)
	mux.HandleFunc("GET /api/v1/status", s.handleCellStatus)
	mux.HandleFunc("GET /api/v1/output", s.handleCellOutput)
	mux.HandleFunc("GET /api/v1/matrix", s.handleMatrix)
	mux.HandleFunc("GET /api/v1/plugins", s.handlePlugins)
}

// registerPublicRoutes registers HTTP routes that bypass rate limiting.
// This is a convenience method that:
//  1. Registers the route handler with the HTTP mux
//  2. Automatically registers the path as a public endpoint (bypasses rate limiting)
//
// Public routes should only be used for health check endpoints that probes and
// monitors hit on a fixed schedule. Never register business logic endpoints
// as public routes.
func (s *Server) registerPublicRoutes(mux *http.ServeMux, routes ...Route) {
	validHTTPMethods := map[string]bool{
		"GET":    true,
		"POST":   true,
		"PUT":    true,
		"PATCH":  true,
		"DELETE": true,
	}

	for _, route := range routes {
		mux.Handle(route.Path, route.Handler)

		// Strip method prefix for public endpoint bypass registration.
		// Go 1.22+ method-based routing uses "GET /path" format,
		// but r.URL.Path is just "/path" (no method prefix).
		path := route.Path

		parts := strings.Fields(path)
		if len(parts) == expectedURLParts && validHTTPMethods[parts[0]] {
			path = strings.TrimSpace(parts[1])
		}

		if path == "" {
			s.logger.Warn("Malformed route path detected, ignoring route", slog.String("path", path))

			continue
		}

		middleware.RegisterPublicEndpoint(path)
	}
}

// handlePing responds to ping requests for basic server validation.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("X-Plugtrack-Version", serviceVersion)
	w.WriteHeader(http.StatusOK)

	_, err := w.Write([]byte("pong"))
	if err != nil {
		s.logger.Error("Failed to write ping response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// handleReady responds to Kubernetes readiness probes with storage backend health checks.
//
// Response codes:
//   - 200 OK: Result store is healthy and ready to accept traffic
//   - 503 Service Unavailable: Result store is unhealthy or unreachable
//
// K8s readiness probes use this endpoint to determine if the pod should receive
// traffic. If this endpoint returns 503, K8s stops routing requests to the pod
// until it recovers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	if s.deps.Store == nil {
		s.logger.Warn("Result store not configured - readiness check disabled",
			slog.String("correlation_id", correlationID),
		)

		s.writePlainText(w, correlationID, http.StatusOK, "ready")

		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.deps.Store.HealthCheck(ctx); err != nil {
		s.logger.Error("Storage health check failed",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)

		s.writePlainText(w, correlationID, http.StatusServiceUnavailable, "storage unavailable")

		return
	}

	s.writePlainText(w, correlationID, http.StatusOK, "ready")
}

// handleHealth returns detailed health status information.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	// Calculate uptime if server has started
	var uptime string

	if !s.startTime.IsZero() {
		duration := time.Since(s.startTime)
		uptime = duration.Round(time.Second).String()
	}

	health := HealthStatus{
		Status:      "healthy",
		ServiceName: "plugtrack",
		Version:     serviceVersion,
		Uptime:      uptime,
	}

	w.Header().Set("X-Plugtrack-Version", serviceVersion)
	s.writeJSON(w, r, correlationID, http.StatusOK, health)
}

// handleNotFound returns RFC 7807 compliant 404 responses for unknown endpoints.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}

// writePlainText writes a plain text response, logging write failures.
func (s *Server) writePlainText(w http.ResponseWriter, correlationID string, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(status)

	if _, err := w.Write([]byte(body)); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
	}
}

// writeJSON marshals and writes a JSON response.
// Marshals before writing headers so an encoding failure can still produce a
// clean 500 problem response.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, correlationID string, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("Failed to encode response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)

		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("correlation_id", correlationID),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// hasJSONContentType checks if Content-Type header starts with "application/json".
// This allows charset parameters (e.g., "application/json; charset=utf-8").
func hasJSONContentType(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(contentType), "application/json")
}
