package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// defaultMetricsPath is where Prometheus scrapes when no path is configured.
const defaultMetricsPath = "/metrics"

// defaultWSPath is the WebSocket route under /api/v1.
const defaultWSPath = "/ws"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	if s.httpMetrics != nil {
		r.Use(s.metricsMiddleware)
	}

	// Prometheus exposition, outside the versioned API.
	if s.gatherer != nil && s.metricsCfg.Enabled {
		r.Handle(s.metricsPath(), promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleMetrics)

		r.Route("/device", func(r chi.Router) {
			r.Get("/", s.handleDeviceStatus)
			r.Post("/open", s.handleDeviceOpen)
			r.Post("/close", s.handleDeviceClose)
			r.Post("/send", s.handleDeviceSend)

			r.Route("/endpoints", func(r chi.Router) {
				r.Get("/", s.handleListEndpoints)
				r.Delete("/{id}", s.handleCloseEndpoint)
			})
		})

		r.Route("/journal", func(r chi.Router) {
			r.Get("/", s.handleListJournal)
			r.Get("/drops", s.handleListDrops)
		})

		wsPath := s.wsCfg.Path
		if wsPath == "" {
			wsPath = defaultWSPath
		}
		r.Get(wsPath, s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"device":  s.device.Info().Name,
		"open":    s.device.IsOpen(),
	})
}

func (s *Server) metricsPath() string {
	if s.metricsCfg.Path == "" {
		return defaultMetricsPath
	}
	return s.metricsCfg.Path
}
