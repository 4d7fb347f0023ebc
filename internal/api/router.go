package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/mavbridge/internal/auth"
)

// Route defaults used when the config leaves a path empty.
const (
	apiPrefix          = "/api/v1"
	defaultMetricsPath = "/metrics"
	defaultWSPath      = apiPrefix + "/ws"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.metricsHandler != nil && s.metricsCfg.Enabled {
		path := s.metricsCfg.Path
		if path == "" {
			path = defaultMetricsPath
		}
		r.Method(http.MethodGet, path, s.metricsHandler)
	}

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = defaultWSPath
	}
	wsUnderAPI := strings.HasPrefix(wsPath, apiPrefix+"/")
	if !wsUnderAPI {
		r.With(s.authMiddleware, s.requirePermission(auth.PermRead)).Get(wsPath, s.handleWebSocket)
	}

	r.Route(apiPrefix, func(r chi.Router) {
		// Public
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		// Authenticated
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Read-only
			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermRead))

				r.Get("/auth/me", s.handleWhoAmI)
				r.Get("/status", s.handleStatus)
				r.Get("/system", s.handleSystem)
				r.Get("/config", s.handleGetConfig)
				r.Get("/messages", s.handleListMessages)
				r.Get("/messages/{type}", s.handleGetMessage)
				r.Get("/activity", s.handleListActivity)
				r.Get("/local-broker", s.handleLocalBrokerStatus)

				if wsUnderAPI {
					r.Get(strings.TrimPrefix(wsPath, apiPrefix), s.handleWebSocket)
				}
			})

			// Control
			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermControl))

				r.Post("/listener/toggle", s.handleToggleListener)
				r.Post("/listener/start", s.handleStartListener)
				r.Post("/listener/stop", s.handleStopListener)

				r.Post("/broker/connect", s.handleConnectBroker)
				r.Post("/broker/disconnect", s.handleDisconnectBroker)

				r.Put("/config", s.handleUpdateConfig)
				r.Put("/messages/{type}/enabled", s.handleSetEnabled)
				r.Post("/session/reset", s.handleReset)

				r.Post("/local-broker", s.handleToggleLocalBroker)
				r.Post("/local-broker/start", s.handleStartLocalBroker)
				r.Post("/local-broker/stop", s.handleStopLocalBroker)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
