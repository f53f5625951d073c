package calls

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/nyashahama/churn-actions-dashboard/internal/events"
	"github.com/nyashahama/churn-actions-dashboard/internal/metrics"
	"github.com/nyashahama/churn-actions-dashboard/internal/telephony"
)

const notConnected = "Call not connected."

// publishTimeout bounds event delivery so a slow broker cannot hold a
// response.
const publishTimeout = 5 * time.Second

// ─── POST /call_user ──────────────────────────────────────────────────────────

// handleCallUser places one outbound call. Malformed bodies get 400, missing
// fields 422; neither reaches the caller. Any telephony failure is a 500 with
// the error text. There is exactly one attempt.
func (s *Server) handleCallUser(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if !decode(w, r, &req) {
		s.metrics.RecordCall(metrics.OutcomeRejected)
		return
	}
	if missing := req.missingFields(); len(missing) > 0 {
		s.metrics.RecordCall(metrics.OutcomeRejected)
		respondErr(w, http.StatusUnprocessableEntity,
			"missing required fields: "+strings.Join(missing, ", "))
		return
	}

	params, err := s.callParams(req)
	if err != nil {
		s.callFailed(r, req, err)
		respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	sid, err := s.caller.PlaceCall(r.Context(), params)
	if err != nil {
		s.callFailed(r, req, err)
		respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.results != nil {
		if err := s.results.Start(r.Context(), req.UserID, sid); err != nil {
			s.logger.Error("calls: record call start", "error", err, "user_id", req.UserID)
		}
	}

	s.metrics.RecordCall(metrics.OutcomePlaced)
	s.logger.Info("calls: call placed",
		"user_id", req.UserID,
		"call_sid", sid,
		"mode", s.cfg.Mode,
		"request_id", middleware.GetReqID(r.Context()),
	)

	e := events.NewCallEvent(events.TypeCallPlaced, req.UserID)
	e.PhoneNumber = req.PhoneNumber
	e.CallSID = sid
	s.publish(r.Context(), e)

	respond(w, http.StatusOK, CallResponse{
		Status:      StatusOK,
		CallSID:     sid,
		UserID:      req.UserID,
		PhoneNumber: req.PhoneNumber,
		Message:     req.Message,
	})
}

// callParams builds the telephony request for the configured mode.
func (s *Server) callParams(req CallRequest) (telephony.CallParams, error) {
	p := telephony.CallParams{To: req.PhoneNumber, From: s.cfg.CallerNumber}

	if s.cfg.interactive() {
		q := url.Values{}
		q.Set("user_id", req.UserID)
		q.Set("message", req.Message)
		p.URL = s.cfg.BaseURL + "/voice/entry?" + q.Encode()
		return p, nil
	}

	doc, err := telephony.SayScript(s.cfg.Voice, req.Message)
	if err != nil {
		return p, err
	}
	p.Twiml = doc
	return p, nil
}

func (s *Server) callFailed(r *http.Request, req CallRequest, err error) {
	s.metrics.RecordCall(metrics.OutcomeFailed)
	s.logger.Error("calls: place call failed",
		"error", err,
		"user_id", req.UserID,
		"request_id", middleware.GetReqID(r.Context()),
	)

	e := events.NewCallEvent(events.TypeCallFailed, req.UserID)
	e.PhoneNumber = req.PhoneNumber
	e.Error = err.Error()
	s.publish(r.Context(), e)
}

// publish sends e without letting a delivery failure affect the response.
func (s *Server) publish(ctx context.Context, e events.CallEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err := s.publisher.Publish(ctx, e)
	s.metrics.RecordEventPublished(err)
	if err != nil {
		s.logger.Warn("calls: publish event failed", "error", err, "type", e.Type, "user_id", e.UserID)
	}
}

// ─── POST /voice/entry ────────────────────────────────────────────────────────

// handleVoiceEntry is fetched by Twilio when the callee answers. It speaks
// the message and records the reply.
func (s *Server) handleVoiceEntry(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondErr(w, http.StatusUnprocessableEntity, "missing required query parameter: user_id")
		return
	}
	message := r.URL.Query().Get("message")
	if message == "" {
		message = OutreachMessage(userID)
	}

	if err := s.results.Advance(r.Context(), userID, StageAnswered, ""); err != nil {
		s.logger.Error("calls: mark answered", "error", err, "user_id", userID)
	}

	action := s.cfg.BaseURL + "/voice/handle_recording?" + url.Values{"user_id": {userID}}.Encode()
	doc, err := telephony.RecordScript(s.cfg.Voice, message, action)
	if err != nil {
		respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondTwiML(w, doc)
}

// ─── POST /voice/handle_recording ────────────────────────────────────────────

// handleRecording receives Twilio's recording callback, completes the user's
// call state and hangs up.
func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondErr(w, http.StatusUnprocessableEntity, "missing required query parameter: user_id")
		return
	}
	if err := r.ParseForm(); err != nil {
		respondErr(w, http.StatusBadRequest, "invalid form body: "+err.Error())
		return
	}

	summary := recordingSummary(r.PostForm.Get("RecordingUrl"), r.PostForm.Get("RecordingDuration"))
	if err := s.results.Advance(r.Context(), userID, StageDone, summary); err != nil {
		s.logger.Error("calls: mark done", "error", err, "user_id", userID)
	}

	e := events.NewCallEvent(events.TypeCallResult, userID)
	e.CallSID = r.PostForm.Get("CallSid")
	e.Summary = summary
	s.publish(r.Context(), e)

	doc, err := telephony.GoodbyeScript(s.cfg.Voice)
	if err != nil {
		respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondTwiML(w, doc)
}

// recordingSummary describes a recording callback. A zero or missing
// duration means the callee never spoke.
func recordingSummary(recordingURL, duration string) string {
	secs, err := strconv.Atoi(strings.TrimSpace(duration))
	if err != nil || secs <= 0 || recordingURL == "" {
		return notConnected
	}
	return fmt.Sprintf("Recorded a %ds reply: %s", secs, recordingURL)
}

// ─── GET /get_call_result ─────────────────────────────────────────────────────

// handleGetCallResult reports "done" with the summary once the recording
// callback has arrived, otherwise "pending".
func (s *Server) handleGetCallResult(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondErr(w, http.StatusUnprocessableEntity, "missing required query parameter: user_id")
		return
	}

	resp := CallResultResponse{Status: ResultPending, UserID: userID}

	// An unknown user reads as pending, e.g. after a restart lost the store.
	st, err := s.results.Get(r.Context(), userID)
	if errors.Is(err, ErrResultNotFound) {
		respond(w, http.StatusOK, resp)
		return
	}
	if err != nil {
		respondErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	if st.Stage == StageDone {
		resp.Status = ResultDone
		resp.Summary = st.Summary
	}
	respond(w, http.StatusOK, resp)
}
