// Package api serves the subscriber websocket, the relay authorization
// callback and the operational endpoints.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mailstash/mailstash/internal/subscribe"
)

type Config struct {
	Addr string
	// MailPort is reported to the relay in Auth-Port headers.
	MailPort string
	// Domains lists the recipient domains the relay may deliver for.
	Domains []string
}

type Server struct {
	cfg      Config
	registry *subscribe.Registry
	log      *slog.Logger
	domains  map[string]bool
	srv      *http.Server
}

func New(cfg Config, registry *subscribe.Registry, log *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		log:      log,
		domains:  make(map[string]bool, len(cfg.Domains)),
	}
	for _, d := range cfg.Domains {
		s.domains[d] = true
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/ws", s.handleWS)
	r.Get("/nginx-auth", s.handleAuth)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) ListenAndServe() error {
	s.log.Info("api server listening", "addr", s.cfg.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown stops the HTTP listener. Upgraded websocket connections are
// not affected; the registry closes those separately.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"subscribers": s.registry.Len(),
	})
}
