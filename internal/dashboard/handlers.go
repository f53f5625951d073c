package dashboard

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yuin/goldmark"

	"github.com/nyashahama/churn-actions-dashboard/internal/metrics"
)

// SessionCookie names the cookie carrying the session id.
const SessionCookie = "churnops_session"

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Config holds values read from the environment at startup.
type Config struct {
	// Env is "production", "staging", or "development". Production marks the
	// session cookie Secure.
	Env string
}

// Server is the dashboard HTTP layer.
type Server struct {
	ctrl     *Controller
	sessions SessionStore
	md       goldmark.Markdown
	metrics  *metrics.Manager
	cfg      Config
	logger   *slog.Logger
}

// NewServer wires the dashboard routes.
func NewServer(ctrl *Controller, sessions SessionStore, m *metrics.Manager, cfg Config, logger *slog.Logger) http.Handler {
	s := &Server{
		ctrl:     ctrl,
		sessions: sessions,
		md:       newMarkdown(),
		metrics:  m,
		cfg:      cfg,
		logger:   logger,
	}
	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggerMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Get("/", s.handleIndex)
	r.Post("/calls", s.handleCalls)

	return r
}

// ─── HANDLERS ─────────────────────────────────────────────────────────────────

type pageData struct {
	View
	Narrative    template.HTML
	NarrativeErr string
}

// handleIndex runs one render pass.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	v := s.ctrl.Render(r.Context(), sess)

	data := pageData{View: v}
	if v.Error == "" {
		if v.Summary.Err != nil {
			data.NarrativeErr = v.Summary.Display()
		} else {
			data.Narrative = renderMarkdown(s.md, v.Summary.Text)
		}
	}

	var buf bytes.Buffer
	if err := pageTemplate.ExecuteTemplate(&buf, "dashboard.html", data); err != nil {
		s.logger.Error("dashboard: render template", "error", err,
			"request_id", middleware.GetReqID(r.Context()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// handleCalls runs the selected call actions and redirects back to the page
// so the next view reflects the new outcomes.
func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form body", http.StatusBadRequest)
		return
	}

	sess := s.session(w, r)
	if s.ctrl.HandleActions(r.Context(), sess, r.PostForm["call"]) {
		s.logger.Debug("dashboard: outcomes changed", "session", sess.ID)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// session returns the caller's session, starting one when the cookie is
// missing or unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *Session {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if sess, ok := s.sessions.Get(c.Value); ok {
			return sess
		}
	}
	sess := s.sessions.Create()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.Env == "production",
		SameSite: http.SameSiteLaxMode,
	})
	return sess
}

// ─── LOGGER MIDDLEWARE ────────────────────────────────────────────────────────

// loggerMiddleware logs each request with method, path, status, and duration.
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			elapsed := time.Since(start)
			s.logger.Info("http",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", elapsed.Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			s.metrics.RecordHTTPRequest(r.Method, route, ww.Status(), elapsed)
		}()

		next.ServeHTTP(ww, r)
	})
}
