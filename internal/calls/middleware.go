package calls

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/twilio/twilio-go/client"
)

// ─── TWILIO SIGNATURE MIDDLEWARE ──────────────────────────────────────────────

// twilioSignatureHeader carries the HMAC Twilio computes over the webhook URL
// and form parameters with the account auth token.
const twilioSignatureHeader = "X-Twilio-Signature"

// requireTwilioSignature rejects /voice/* callbacks that were not signed with
// the configured auth token. Twilio signs the public URL, so it is rebuilt
// from BaseURL.
func (s *Server) requireTwilioSignature(next http.Handler) http.Handler {
	validator := client.NewRequestValidator(s.cfg.AuthToken)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			respondErr(w, http.StatusBadRequest, "invalid form body: "+err.Error())
			return
		}

		params := make(map[string]string, len(r.PostForm))
		for k, v := range r.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}

		publicURL := s.cfg.BaseURL + r.URL.RequestURI()
		sig := r.Header.Get(twilioSignatureHeader)
		if s.cfg.AuthToken == "" || sig == "" || !validator.Validate(publicURL, params, sig) {
			s.logger.Warn("calls: rejected unsigned voice callback",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			respondErr(w, http.StatusForbidden, "invalid twilio signature")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ─── LOGGER MIDDLEWARE ────────────────────────────────────────────────────────

// loggerMiddleware logs each request with method, path, status, and duration
// and records it on the metrics manager under its route pattern.
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
			s.metrics.RecordHTTPRequest(r.Method, routePattern(r), ww.Status(), elapsed)
		}()

		next.ServeHTTP(ww, r)
	})
}

// routePattern keeps metric label cardinality bounded for unmatched paths.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// ─── RESPONSE HELPERS ─────────────────────────────────────────────────────────

// respond writes a JSON body with the given status code.
func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// respondErr writes the {status:"error", error} envelope.
func respondErr(w http.ResponseWriter, status int, message string) {
	respond(w, status, ErrorResponse{Status: StatusError, Error: message})
}

// respondTwiML writes a voice document for Twilio.
func respondTwiML(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

// ─── REQUEST PARSING HELPERS ─────────────────────────────────────────────────

// decode JSON-decodes r.Body into dst. Returns false and writes 400 if the
// body is missing, malformed, or too large. Callers should return immediately
// on false.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB max
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondErr(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
