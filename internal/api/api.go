// Package api wires HealthPipe together and serves its HTTP surface.
//
// Run builds every collaborator, starts the messaging transport and the response handler,
// and serves /healthz, /metrics, the reminder admin routes and (for Twilio) the inbound webhook.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/HealthPipe/internal/flow"
	"github.com/BTreeMap/HealthPipe/internal/genai"
	"github.com/BTreeMap/HealthPipe/internal/lockfile"
	"github.com/BTreeMap/HealthPipe/internal/messaging"
	"github.com/BTreeMap/HealthPipe/internal/metrics"
	"github.com/BTreeMap/HealthPipe/internal/models"
	"github.com/BTreeMap/HealthPipe/internal/scheduler"
	"github.com/BTreeMap/HealthPipe/internal/store"
	"github.com/BTreeMap/HealthPipe/internal/twiliowhatsapp"
	"github.com/BTreeMap/HealthPipe/internal/whatsapp"
)

const (
	// DefaultAddr is the HTTP listen address when none is configured.
	DefaultAddr = ":8080"
	// ProviderWhatsApp selects the whatsmeow transport.
	ProviderWhatsApp = "whatsapp"
	// ProviderTwilio selects the Twilio transport.
	ProviderTwilio = "twilio"

	shutdownTimeout = 10 * time.Second
)

// ErrCollaboratorUnavailable marks startup failures of an external dependency.
var ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

// Opts holds configuration for the process wiring and the HTTP server.
type Opts struct {
	Addr              string
	Provider          string
	StateDir          string
	Location          *time.Location
	TwilioWebhookURL  string
	TwilioAuthToken   string
	ValidateSignature bool
}

// Option defines a configuration option for Run.
type Option func(*Opts)

// WithAddr sets the HTTP listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithProvider selects the messaging transport ("whatsapp" or "twilio").
func WithProvider(provider string) Option {
	return func(o *Opts) { o.Provider = strings.ToLower(strings.TrimSpace(provider)) }
}

// WithStateDir enables the single-instance lock on dir.
func WithStateDir(dir string) Option {
	return func(o *Opts) { o.StateDir = dir }
}

// WithLocation sets the zone reminders and dates are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

// WithTwilioWebhookValidation requires signed webhook calls made to publicURL.
func WithTwilioWebhookValidation(authToken, publicURL string) Option {
	return func(o *Opts) {
		o.TwilioAuthToken = authToken
		o.TwilioWebhookURL = publicURL
		o.ValidateSignature = true
	}
}

// sessionCounter reports the number of live conversations.
type sessionCounter interface {
	Len() int
}

// reminderRegistry lists and disarms armed reminders.
type reminderRegistry interface {
	List() []models.ReminderInfo
	Cancel(id string) error
}

// Server holds the HTTP surface's collaborators.
type Server struct {
	msgService messaging.Service
	sessions   sessionCounter
	reminders  reminderRegistry
	webhook    http.HandlerFunc
}

// NewServer creates a Server. webhook may be nil when the transport has no inbound HTTP hook.
func NewServer(msgService messaging.Service, sessions sessionCounter, reminders reminderRegistry, webhook http.HandlerFunc) *Server {
	return &Server{
		msgService: msgService,
		sessions:   sessions,
		reminders:  reminders,
		webhook:    webhook,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthHandler)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /reminders", s.listRemindersHandler)
	mux.HandleFunc("DELETE /reminders/{id}", s.cancelReminderHandler)
	if s.webhook != nil {
		mux.HandleFunc("/twilio/webhook", s.webhook)
	}
	return mux
}

// Run starts HealthPipe and blocks until SIGINT/SIGTERM or a fatal error.
// Startup failures of the store, the text generator or the transport are returned
// wrapped in ErrCollaboratorUnavailable.
func Run(waOpts []whatsapp.Option, twOpts []twiliowhatsapp.Option, storeOpts []store.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	cfg := Opts{Addr: DefaultAddr, Provider: ProviderWhatsApp, Location: time.Local}
	for _, opt := range apiOpts {
		opt(&cfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.StateDir != "" {
		lock, err := lockfile.AcquireLock(cfg.StateDir)
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	st, err := store.New(storeOpts...)
	if err != nil {
		return fmt.Errorf("%w: store: %w", ErrCollaboratorUnavailable, err)
	}
	defer st.Close()

	genClient, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return fmt.Errorf("%w: text generation: %w", ErrCollaboratorUnavailable, err)
	}
	analyst := genai.NewHealthAnalyst(genClient)

	msgService, webhook, closeTransport, err := newTransport(ctx, cfg, waOpts, twOpts)
	if err != nil {
		return fmt.Errorf("%w: messaging: %w", ErrCollaboratorUnavailable, err)
	}
	defer closeTransport()

	sched := scheduler.NewScheduler(msgService, st, scheduler.WithLocation(cfg.Location))
	defer sched.Stop()

	sessions := flow.NewInMemorySessionStore()
	engine := flow.NewEngine(sessions, st, analyst, sched, flow.WithLocation(cfg.Location))
	router := flow.NewRouter(engine)
	respHandler := messaging.NewResponseHandler(msgService, router)

	if err := msgService.Start(ctx); err != nil {
		return fmt.Errorf("%w: messaging start: %w", ErrCollaboratorUnavailable, err)
	}
	defer msgService.Stop()

	server := NewServer(msgService, sessions, sched, webhook)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("HealthPipe API listening", "addr", cfg.Addr, "provider", cfg.Provider)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return respHandler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("HealthPipe shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newTransport builds the configured messaging service. The returned webhook is nil for
// transports that receive messages without HTTP.
func newTransport(ctx context.Context, cfg Opts, waOpts []whatsapp.Option, twOpts []twiliowhatsapp.Option) (messaging.Service, http.HandlerFunc, func(), error) {
	switch cfg.Provider {
	case ProviderTwilio:
		client, err := twiliowhatsapp.NewClient(twOpts...)
		if err != nil {
			return nil, nil, nil, err
		}
		var opts []messaging.TwilioOption
		if cfg.ValidateSignature {
			opts = append(opts, messaging.WithWebhookValidation(cfg.TwilioAuthToken, cfg.TwilioWebhookURL))
		}
		svc := messaging.NewTwilioService(client, opts...)
		return svc, svc.TwilioWebhookHandler, func() {}, nil
	case ProviderWhatsApp, "":
		client, err := whatsapp.NewClient(ctx, waOpts...)
		if err != nil {
			return nil, nil, nil, err
		}
		return messaging.NewWhatsAppService(client), nil, client.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown messaging provider %q", cfg.Provider)
	}
}
