package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/opencode-ai/opencode/internal/runtime/supervisor"
)

// ServerConfig mirrors the teacher's internal/server.Config, trimmed to
// what this binary's HTTP surface needs.
type ServerConfig struct {
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig mirrors internal/server.DefaultConfig: no write
// timeout, since the event stream endpoints are long-lived SSE
// connections rather than bounded request/response round trips.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:         8080,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
	}
}

// Server is the HTTP surface wired directly against supervisor.Supervisor,
// superseding the teacher's internal/server.Server (which sat on top of
// internal/session.Service instead). Grounded on
// internal/server/server.go's router/middleware setup and
// internal/server/routes.go's route tree, trimmed to the session
// lifecycle this runtime actually exposes: no project/LSP/formatter/TUI/
// client-tool/sharing endpoints, since the packages backing them were
// dropped (see DESIGN.md's "Disposition of the remaining teacher
// packages").
type Server struct {
	cfg     ServerConfig
	router  *chi.Mux
	httpSrv *http.Server
	sup     *supervisor.Supervisor
}

// NewServer builds a Server wired against sup.
func NewServer(cfg ServerConfig, sup *supervisor.Supervisor) *Server {
	srv := &Server{cfg: cfg, router: chi.NewRouter(), sup: sup}
	srv.setupMiddleware()
	srv.setupRoutes()
	return srv
}

func (srv *Server) setupMiddleware() {
	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Logger)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(middleware.RealIP)

	if srv.cfg.EnableCORS {
		srv.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

func (srv *Server) setupRoutes() {
	r := srv.router

	r.Route("/session", func(r chi.Router) {
		r.Get("/", srv.listSessions)
		r.Post("/", srv.createSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", srv.getSession)
			r.Delete("/", srv.deleteSession)
			r.Post("/suspend", srv.suspendSession)
			r.Post("/resume", srv.resumeSession)

			r.Get("/message", srv.getMessages)
			r.Post("/message", srv.sendMessage)

			r.Post("/cancel", srv.cancelOperation)
			r.Post("/compact", srv.compactSession)
			r.Post("/shell", srv.runShell)

			r.Post("/approval/{requestID}", srv.respondApproval)

			r.Get("/event", srv.sessionEvents)
		})
	})

	r.Get("/global/event", srv.globalEvents)
}

// Start starts the HTTP server.
func (srv *Server) Start() error {
	srv.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", srv.cfg.Port),
		Handler:      srv.router,
		ReadTimeout:  srv.cfg.ReadTimeout,
		WriteTimeout: srv.cfg.WriteTimeout,
	}
	return srv.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (srv *Server) Shutdown(ctx context.Context) error {
	if srv.httpSrv == nil {
		return nil
	}
	return srv.httpSrv.Shutdown(ctx)
}
