package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BTreeMap/ResellerBot/internal/messaging"
	"github.com/BTreeMap/ResellerBot/internal/models"
	"github.com/BTreeMap/ResellerBot/internal/reminder"
	"github.com/BTreeMap/ResellerBot/internal/util"
)

// DefaultServerAddress is the default address for the API server
const DefaultServerAddress = ":8080"

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// InboundProcessor runs inbound messages through the conversation pipeline.
type InboundProcessor interface {
	ProcessMessage(ctx context.Context, in models.InboundMessage) (messaging.TurnReport, error)
}

// ReminderDispatcher sends billing reminders.
type ReminderDispatcher interface {
	DispatchDue(ctx context.Context, now time.Time) (reminder.Report, error)
	ForceSend(ctx context.Context, id string) (reminder.Result, error)
}

// ReminderStore is the storage the reminder endpoints use.
type ReminderStore interface {
	CreateReminder(ctx context.Context, r *models.Reminder) error
	GetReminder(ctx context.Context, id string) (*models.Reminder, error)
	CancelReminder(ctx context.Context, id string) error
	GetClient(ctx context.Context, id string) (*models.Client, error)
	GetReminderTemplate(ctx context.Context, id string) (*models.ReminderTemplate, error)
}

var (
	_ InboundProcessor   = (*messaging.ResponseHandler)(nil)
	_ ReminderDispatcher = (*reminder.Dispatcher)(nil)
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr  string
	Clock func() time.Time
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the API server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithClock overrides the time used for dispatch runs.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) {
		o.Clock = clock
	}
}

// Server exposes webhooks and reminder operations over HTTP.
type Server struct {
	st         ReminderStore
	inbound    InboundProcessor
	dispatcher ReminderDispatcher
	addr       string
	clock      func() time.Time
}

// NewServer creates a server. The Twilio webhook is always mounted; it only
// produces replies when a Twilio sender is registered with the router.
func NewServer(st ReminderStore, inbound InboundProcessor, dispatcher ReminderDispatcher, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultServerAddress, Clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{st: st, inbound: inbound, dispatcher: dispatcher, addr: cfg.Addr, clock: cfg.Clock}
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook/evolution", s.evolutionWebhookHandler)
	mux.HandleFunc("POST /tenants/{tenant}/messages", s.inboundMessageHandler)
	mux.HandleFunc("POST /tenants/{tenant}/webhook/twilio", s.twilioWebhookHandler)
	mux.HandleFunc("POST /tenants/{tenant}/reminders", s.createReminderHandler)
	mux.HandleFunc("GET /reminders/{id}", s.getReminderHandler)
	mux.HandleFunc("POST /reminders/{id}/send", s.forceSendHandler)
	mux.HandleFunc("POST /reminders/{id}/cancel", s.cancelReminderHandler)
	mux.HandleFunc("POST /reminders/dispatch", s.dispatchHandler)
	mux.HandleFunc("GET /healthz", s.healthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	return withRequestLogging(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		slog.Error("API server failed", "error", err)
		return err
	case <-ctx.Done():
		slog.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = util.GenerateRequestID()
		}
		w.Header().Set("X-Request-ID", reqID)
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		slog.Debug("API request", "requestID", reqID, "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"service": "resellerbot"}))
}
