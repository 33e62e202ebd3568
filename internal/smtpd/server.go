// Package smtpd accepts inbound mail and hands each completed message
// to the ingestion pipeline. Protocol handling itself (envelope
// commands, DATA framing, STARTTLS) is go-smtp's job.
package smtpd

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-smtp"
)

// Ingestor receives the raw bytes of each accepted message.
type Ingestor interface {
	Ingest(raw []byte)
}

type Config struct {
	Addr            string
	Hostname        string
	MaxMessageBytes int64
	MaxRecipients   int
	TLSConfig       *tls.Config
}

// Server wraps the go-smtp server with this service's backend.
type Server struct {
	srv *smtp.Server
	log *slog.Logger
}

func New(cfg Config, ingest Ingestor, log *slog.Logger) *Server {
	srv := smtp.NewServer(&backend{ingest: ingest, log: log})
	srv.Addr = cfg.Addr
	srv.Domain = cfg.Hostname
	srv.ReadTimeout = 60 * time.Second
	srv.WriteTimeout = 60 * time.Second
	srv.MaxMessageBytes = cfg.MaxMessageBytes
	srv.MaxRecipients = cfg.MaxRecipients
	srv.TLSConfig = cfg.TLSConfig

	return &Server{srv: srv, log: log}
}

func (s *Server) ListenAndServe() error {
	s.log.Info("smtp server listening", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Serve accepts connections from l until Shutdown or Close.
func (s *Server) Serve(l net.Listener) error {
	return s.srv.Serve(l)
}

// Shutdown stops listening and waits for active sessions to finish,
// bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.srv.Close()
}
