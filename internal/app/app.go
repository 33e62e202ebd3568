// Package app assembles the servers around the ingestion pipeline and
// owns the lifecycle from first listen to drained shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/emersion/go-smtp"

	"github.com/mailstash/mailstash/internal/api"
	"github.com/mailstash/mailstash/internal/config"
	"github.com/mailstash/mailstash/internal/notify"
	"github.com/mailstash/mailstash/internal/pipeline"
	"github.com/mailstash/mailstash/internal/smtpd"
	"github.com/mailstash/mailstash/internal/store"
	"github.com/mailstash/mailstash/internal/subscribe"
	mailtls "github.com/mailstash/mailstash/internal/tls"
)

// Lifecycle states, in order. The zero value is running so the state
// is valid from construction.
const (
	stateRunning int32 = iota
	stateDraining
	stateStopped
)

type App struct {
	cfg      *config.Config
	log      *slog.Logger
	store    *store.Store
	registry *subscribe.Registry
	pipe     *pipeline.Pipeline
	smtp     *smtpd.Server
	api      *api.Server
	grace    time.Duration
	state    atomic.Int32
}

// New builds the full wiring: store, registry, pipeline, mail listener
// and API listener. The store is not contacted yet; a store that is
// down stays the retrier's problem.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	st, err := store.Open(ctx, cfg.Store.URI, cfg.Store.Database, cfg.Store.Collection)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	registry := subscribe.NewRegistry()
	pipe := pipeline.New(
		store.NewRetrier(st, log),
		notify.NewDispatcher(registry, log),
		log,
	)

	tlsConf, err := mailtls.Load(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.SMTP.Hostname)
	if err != nil {
		return nil, err
	}
	mailPort, err := cfg.SMTPPort()
	if err != nil {
		return nil, err
	}
	grace, err := cfg.ShutdownGrace()
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		log:      log,
		store:    st,
		registry: registry,
		pipe:     pipe,
		grace:    grace,
	}
	a.smtp = smtpd.New(smtpd.Config{
		Addr:            cfg.SMTP.Listen,
		Hostname:        cfg.SMTP.Hostname,
		MaxMessageBytes: cfg.SMTP.MaxMessageSize,
		MaxRecipients:   cfg.SMTP.MaxRecipients,
		TLSConfig:       tlsConf,
	}, pipe, log)
	a.api = api.New(api.Config{
		Addr:     cfg.API.Listen,
		MailPort: mailPort,
		Domains:  cfg.Domains,
	}, registry, log)

	return a, nil
}

// State reports the lifecycle phase: running, draining or stopped.
func (a *App) State() string {
	switch a.state.Load() {
	case stateDraining:
		return "draining"
	case stateStopped:
		return "stopped"
	default:
		return "running"
	}
}

// Run serves until ctx is cancelled or a listener fails, then executes
// the stop sequence. It returns once the process is fully drained.
func (a *App) Run(ctx context.Context) error {
	errc := make(chan error, 2)

	go func() {
		if err := a.smtp.ListenAndServe(); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			errc <- fmt.Errorf("smtp server: %w", err)
		}
	}()
	go func() {
		if err := a.api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("api server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.stop()
		return nil
	case err := <-errc:
		a.stop()
		return err
	}
}

// stop runs the drain sequence in order: stop accepting mail, drain
// the in-flight units, close subscriber connections, stop the API
// listener, release the store. The whole sequence is bounded by the
// configured shutdown timeout.
func (a *App) stop() {
	a.state.Store(stateDraining)
	a.log.Info("shutting down", "inflight", a.pipe.InFlight())

	ctx, cancel := context.WithTimeout(context.Background(), a.grace)
	defer cancel()

	if err := a.smtp.Shutdown(ctx); err != nil {
		a.log.Warn("smtp shutdown", "error", err)
		_ = a.smtp.Close()
	}

	// Draining cancels units blocked in retry backoff; units whose
	// insert already landed still notify before this returns.
	a.pipe.Drain()
	a.registry.CloseAll()

	if err := a.api.Shutdown(ctx); err != nil {
		a.log.Warn("api shutdown", "error", err)
	}
	if err := a.store.Close(ctx); err != nil {
		a.log.Warn("store close", "error", err)
	}

	a.state.Store(stateStopped)
	a.log.Info("shutdown complete")
}
