package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/checklist-engine/internal/auth"
	"github.com/terra-clan/checklist-engine/internal/checklist"
	"github.com/terra-clan/checklist-engine/internal/config"
	"github.com/terra-clan/checklist-engine/internal/events"
	"github.com/terra-clan/checklist-engine/internal/services"
)

const requestTimeout = 60 * time.Second

// Dependencies are the collaborators the API server needs
type Dependencies struct {
	Manager  checklist.Manager
	Users    auth.UserStore
	Sessions auth.SessionStore
	Broker   events.Broker      // optional; event streams answer 503 without it
	Registry *services.Registry // optional; readiness falls back to the manager ping
}

// Server represents the HTTP API server
type Server struct {
	config   config.ServerConfig
	router   *chi.Mux
	manager  checklist.Manager
	users    auth.UserStore
	broker   events.Broker
	registry *services.Registry
	sessions auth.SessionStore
	auth     *SessionMiddleware
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, sessionCfg config.SessionConfig, deps Dependencies) *Server {
	s := &Server{
		config:   cfg,
		manager:  deps.Manager,
		users:    deps.Users,
		broker:   deps.Broker,
		registry: deps.Registry,
		sessions: deps.Sessions,
		auth:     NewSessionMiddleware(deps.Sessions, deps.Users, sessionCfg.TTL, sessionCfg.SecureCookie),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Request/response routes; websocket streams below are long-lived and
	// stay outside the timeout
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)

		r.Post("/api/v1/auth/login", s.handleLogin)

		// Admin API (session cookie)
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Authenticate)

			r.Post("/api/v1/auth/logout", s.handleLogout)
			r.Get("/api/v1/auth/me", s.handleMe)

			r.Get("/api/v1/templates", s.handleListTemplates)
			r.Post("/api/v1/templates", s.handleCreateTemplate)
			r.Get("/api/v1/templates/{id}", s.handleGetTemplate)
			r.Put("/api/v1/templates/{id}", s.handleUpdateTemplate)
			r.Delete("/api/v1/templates/{id}", s.handleDeleteTemplate)

			r.Get("/api/v1/checklists", s.handleListChecklists)
			r.Post("/api/v1/checklists", s.handleCreateChecklist)
			r.Get("/api/v1/checklists/stats", s.handleChecklistStats)
			r.Get("/api/v1/checklists/{id}", s.handleGetChecklist)
			r.Delete("/api/v1/checklists/{id}", s.handleDeleteChecklist)
		})

		// Public link (token = auth)
		r.Get("/c/{token}", s.handleGetPublicChecklist)
		r.Put("/c/{token}/tasks/{taskID}", s.handleSetTaskValue)
	})

	r.With(s.auth.Authenticate).Get("/api/v1/checklists/{id}/events", s.handleChecklistEvents)
	r.Get("/c/{token}/events", s.handlePublicEvents)

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			// public tokens stay out of the logs
			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				path = rctx.RoutePattern()
			}
			slog.Info("http request",
				"method", r.Method,
				"path", path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
