package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/dashauth/internal/auth"
)

// healthCheckTimeout bounds each backing-service check made by /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.forwardedMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware())
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Credential endpoints (no auth required)
		r.Route("/auth", func(r chi.Router) {
			r.With(s.rateLimit("login")).Post("/login", s.handleLogin)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/logout", s.handleLogout)
			r.With(s.rateLimit("forgot-password")).Post("/forgot-password", s.handleForgotPassword)
			r.Post("/reset-password", s.handleResetPassword)

			r.Group(func(r chi.Router) {
				r.Use(s.authMiddleware)
				r.Get("/me", s.handleMe)
				r.Get("/permissions", s.handlePermissions)
				r.Post("/change-password", s.handleChangePassword)
			})
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			read := s.guard(auth.ResourceUsers, auth.ActionRead)
			write := s.guard(auth.ResourceUsers, auth.ActionWrite)

			r.Route("/users", func(r chi.Router) {
				r.With(read).Get("/", s.handleListUsers)
				r.With(write).Post("/", s.handleCreateUser)

				r.Route("/{id}", func(r chi.Router) {
					r.With(read).Get("/", s.handleGetUser)
					r.With(write).Put("/", s.handleUpdateUser)
					r.With(write).Delete("/", s.handleDeleteUser)
					r.With(read).Get("/sessions", s.handleListUserSessions)
					r.With(write).Delete("/sessions", s.handleRevokeUserSessions)
				})
			})

			r.With(read).Get("/audit", s.handleListAuditLogs)
		})
	})

	return r
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// handleHealth returns the server health status. Any failing backing
// service makes the response 503 with status "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Version: s.version}
	status := http.StatusOK

	if len(s.health) > 0 {
		resp.Checks = make(map[string]string, len(s.health))
		for name, hc := range s.health {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := hc.HealthCheck(ctx)
			cancel()
			if err != nil {
				s.logger.Warn("health check failed", "check", name, "error", err)
				resp.Checks[name] = "error"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	writeJSON(w, status, resp)
}
