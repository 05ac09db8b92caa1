package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-tcpconnected/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		// WebSocket authenticates with a ticket rather than a bearer token.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.With(s.requirePermission(auth.PermAuditRead)).Get("/audit", s.handleListAudit)

			r.Route("/lights", func(r chi.Router) {
				r.With(s.requirePermission(auth.PermLightRead)).Get("/", s.handleListLights)
				r.With(s.requirePermission(auth.PermBridgeManage)).Post("/refresh", s.handleRefreshLights)

				r.Route("/{id}", func(r chi.Router) {
					r.With(s.requirePermission(auth.PermLightRead)).Get("/", s.handleGetLight)
					r.With(s.requirePermission(auth.PermLightRead)).Get("/history", s.handleLightHistory)
					r.With(s.requirePermission(auth.PermLightOperate)).Put("/state", s.handleSetLightState)
				})
			})
		})
	})

	return r
}

// handleHealth reports server and bridge health. It needs no auth so
// supervisors can probe it.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status, reason := s.lights.Health()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"bridge": map[string]any{
			"status": status,
			"reason": reason,
			"lights": len(s.lights.Lights()),
		},
	})
}
