// Package calls implements the call dispatch HTTP service and the client the
// dashboard uses to reach it. Handlers are methods on *Server.
package calls

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nyashahama/churn-actions-dashboard/internal/events"
	"github.com/nyashahama/churn-actions-dashboard/internal/metrics"
	"github.com/nyashahama/churn-actions-dashboard/internal/telephony"
)

// Call modes.
const (
	// ModeScripted places a call that speaks the message and hangs up.
	ModeScripted = "scripted"
	// ModeInteractive places a call that asks the callee to record a reply
	// and tracks each user's result in a ResultStore.
	ModeInteractive = "interactive"
)

// Config holds values read from the environment at startup.
type Config struct {
	// CallerNumber is the origin number for every outbound call.
	CallerNumber string

	// Voice selects the spoken voice and language.
	Voice telephony.Voice

	// Mode is ModeScripted (default) or ModeInteractive.
	Mode string

	// BaseURL is the public URL Twilio uses to reach /voice/* in interactive
	// mode, e.g. "https://calls.example.com".
	BaseURL string

	// AuthToken verifies X-Twilio-Signature on /voice/* callbacks. With no
	// token every callback is rejected.
	AuthToken string
}

func (c Config) interactive() bool { return c.Mode == ModeInteractive }

// Server holds all shared dependencies.
type Server struct {
	caller    telephony.Caller
	publisher events.Publisher

	// results is nil in scripted mode.
	results ResultStore

	metrics *metrics.Manager
	cfg     Config
	logger  *slog.Logger
}

// Deps groups the collaborators of NewServer. Publisher and Metrics may be
// nil; Results is only used in interactive mode.
type Deps struct {
	Caller    telephony.Caller
	Publisher events.Publisher
	Results   ResultStore
	Metrics   *metrics.Manager
}

// NewServer constructs the Server and wires the chi router.
func NewServer(deps Deps, cfg Config, logger *slog.Logger) http.Handler {
	if cfg.Mode == "" {
		cfg.Mode = ModeScripted
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	s := &Server{
		caller:    deps.Caller,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		cfg:       cfg,
		logger:    logger,
	}
	if s.publisher == nil {
		s.publisher = events.Noop{}
	}
	if cfg.interactive() {
		s.results = deps.Results
		if s.results == nil {
			s.results = NewMemoryResultStore()
		}
		if cfg.AuthToken == "" {
			logger.Warn("calls: interactive mode without TWILIO_AUTH_TOKEN; voice callbacks will be rejected")
		}
	}

	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// ── Health & metrics ──────────────────────────────────────────────────────
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	// ── Dispatch ──────────────────────────────────────────────────────────────
	r.Post("/call_user", s.handleCallUser)

	// ── Interactive flow (Twilio webhooks + polling) ─────────────────────────
	if s.cfg.interactive() {
		r.Group(func(r chi.Router) {
			r.Use(s.requireTwilioSignature)
			r.Post("/voice/entry", s.handleVoiceEntry)
			r.Post("/voice/handle_recording", s.handleRecording)
		})
		r.Get("/get_call_result", s.handleGetCallResult)
	}

	return r
}
