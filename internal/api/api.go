// Package api provides the HTTP server for danabot.
//
// It exposes the Telegram webhook, guarded by a shared secret, and a health
// check. Accepted updates are handed to the messaging service's event feed.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/redmadres/danabot/internal/messaging"
)

// Default server settings.
const (
	DefaultAddr            = ":8080"
	DefaultWebhookPath     = "/webhook"
	DefaultShutdownTimeout = 10 * time.Second
	// maxUpdateBytes bounds a webhook body; Telegram updates are a few KB.
	maxUpdateBytes = 1 << 20
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr          string // listen address
	WebhookSecret string // shared secret expected in ?secret= or the Telegram secret header
	WebhookPath   string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithWebhookSecret sets the shared webhook secret.
func WithWebhookSecret(secret string) Option {
	return func(o *Opts) { o.WebhookSecret = secret }
}

// WithWebhookPath sets the webhook route.
func WithWebhookPath(path string) Option {
	return func(o *Opts) { o.WebhookPath = path }
}

// Server is the HTTP surface of danabot.
type Server struct {
	msg    messaging.Service
	router *mux.Router
	opts   Opts
}

// NewServer creates a server that delivers webhook updates to msg.
func NewServer(msg messaging.Service, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, WebhookPath: DefaultWebhookPath}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.WebhookSecret == "" {
		slog.Warn("api.NewServer: webhook secret is empty, every webhook call will be rejected")
	}

	s := &Server{msg: msg, router: mux.NewRouter(), opts: cfg}
	s.router.Use(loggingMiddleware)
	s.router.HandleFunc(cfg.WebhookPath, s.webhookHandler).Methods(http.MethodPost)
	s.router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Worker consumes the event feed, typically bot.Router.
type Worker interface {
	Run(ctx context.Context) error
}

// Run serves HTTP and runs worker until ctx is cancelled or either fails.
// On shutdown the HTTP server drains first, then the event feed is closed so
// the worker finishes the events already queued.
func Run(ctx context.Context, s *Server, worker Worker) error {
	httpServer := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("api.Run: HTTP server listening", "addr", s.opts.Addr, "webhookPath", s.opts.WebhookPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// The worker exits when the event channel closes, not on gctx, so
		// queued events are not dropped.
		return worker.Run(context.WithoutCancel(gctx))
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("api.Run: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		if stopErr := s.msg.Stop(); stopErr != nil {
			slog.Error("api.Run: messaging stop failed", "error", stopErr)
		}
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
