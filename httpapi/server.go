package httpapi

import (
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ProjectSCARS/bentoauth"
	"github.com/ProjectSCARS/bentoauth/metrics/export/prometheus"
	"github.com/ProjectSCARS/bentoauth/middleware"
)

// Server holds the HTTP handlers around one engine instance.
type Server struct {
	engine *bentoauth.Engine
	logger *zap.Logger
}

// NewServer wraps the engine. A nil logger falls back to a no-op logger.
func NewServer(engine *bentoauth.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{engine: engine, logger: logger}
}

// Router builds the full route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.clientContext)

	r.Get("/healthcheck", s.handleHealthcheck)
	r.Method(http.MethodGet, "/metrics", prometheus.NewExporter(s.engine).Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/token", s.handleLogin)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/logout", s.handleLogout)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Authenticate(s.engine))
				r.Post("/logout/all", s.handleLogoutAll)
				r.Get("/security-report", s.handleSecurityReport)

				r.Route("/mfa", func(r chi.Router) {
					r.Post("/enroll", s.handleMFAEnroll)
					r.Post("/confirm", s.handleMFAConfirm)
					r.Post("/verify", s.handleMFAVerify)
					r.Post("/disable", s.handleMFADisable)
				})

				r.Post("/password/change", s.handlePasswordChange)
			})

			r.Post("/password/reset/request", s.handleResetRequest)
			r.Post("/password/reset/confirm", s.handleResetConfirm)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(middleware.Authenticate(s.engine))
			r.With(middleware.RequirePermission(s.engine, "users:global:create")).
				Post("/", s.handleCreateUser)
			r.With(middleware.RequirePermission(s.engine, "users:global:deactivate")).
				Post("/{id}/deactivate", s.handleDeactivateUser)
			r.With(middleware.RequirePermission(s.engine, "users:global:deactivate")).
				Post("/{id}/reactivate", s.handleReactivateUser)
		})
	})

	return r
}

// clientContext threads the remote address and user agent into the request
// context so the engine can rate limit per IP and stamp sessions.
func (s *Server) clientContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}

		ctx := bentoauth.WithClientIP(r.Context(), ip)
		ctx = bentoauth.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealthcheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Healthy"})
}
