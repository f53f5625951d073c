package calls_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/nyashahama/churn-actions-dashboard/internal/calls"
	"github.com/nyashahama/churn-actions-dashboard/internal/events"
	"github.com/nyashahama/churn-actions-dashboard/internal/metrics"
	"github.com/nyashahama/churn-actions-dashboard/internal/telephony"
)

// ─── STUBS ────────────────────────────────────────────────────────────────────

// stubCaller records every PlaceCall and returns sid or err.
type stubCaller struct {
	mu     sync.Mutex
	params []telephony.CallParams
	sid    string
	err    error
}

func (c *stubCaller) PlaceCall(_ context.Context, p telephony.CallParams) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.params = append(c.params, p)
	return c.sid, c.err
}

func (c *stubCaller) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.params)
}

// stubPublisher captures published events.
type stubPublisher struct {
	mu     sync.Mutex
	events []events.CallEvent
	err    error
}

func (p *stubPublisher) Publish(_ context.Context, e events.CallEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *stubPublisher) Close() error { return nil }

// ─── HELPERS ─────────────────────────────────────────────────────────────────

type testDeps struct {
	caller    *stubCaller
	publisher *stubPublisher
	results   *calls.MemoryResultStore
	metrics   *metrics.Manager
	handler   http.Handler
}

func newTestServer(t *testing.T, cfgOverrides ...func(*calls.Config)) *testDeps {
	t.Helper()

	deps := &testDeps{
		caller:    &stubCaller{sid: "CA123"},
		publisher: &stubPublisher{},
		results:   calls.NewMemoryResultStore(),
		metrics:   metrics.New(),
	}

	cfg := calls.Config{
		CallerNumber: "+15550000000",
		Mode:         calls.ModeScripted,
	}
	for _, fn := range cfgOverrides {
		fn(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps.handler = calls.NewServer(calls.Deps{
		Caller:    deps.caller,
		Publisher: deps.publisher,
		Results:   deps.results,
		Metrics:   deps.metrics,
	}, cfg, logger)
	return deps
}

const (
	testAuthToken = "test-auth-token"
	testPublicURL = "https://calls.example.com"
)

func interactive(cfg *calls.Config) {
	cfg.Mode = calls.ModeInteractive
	cfg.BaseURL = testPublicURL + "/"
	cfg.AuthToken = testAuthToken
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var bodyReader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		bodyReader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		bodyReader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func postForm(t *testing.T, handler http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// twilioSignature signs a webhook the way Twilio does: HMAC-SHA1 over the
// full URL followed by each form key and value in key order.
func twilioSignature(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	payload := fullURL
	for _, k := range keys {
		payload += k + form.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// postSignedForm posts a voice callback signed for the public URL.
func postSignedForm(t *testing.T, handler http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", twilioSignature(testAuthToken, testPublicURL+path, form))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(dst); err != nil {
		t.Fatalf("decode response body: %v (raw: %s)", err, rr.Body.String())
	}
}

func validRequest() calls.CallRequest {
	return calls.CallRequest{
		UserID:      "7",
		PhoneNumber: "+15551234567",
		Message:     calls.OutreachMessage("7"),
	}
}

// ─── GET /healthz ─────────────────────────────────────────────────────────────

func TestHealthz(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodGet, "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

// ─── POST /call_user ──────────────────────────────────────────────────────────

func TestCallUser_SuccessReturnsSIDAndEchoesRequest(t *testing.T) {
	deps := newTestServer(t)
	req := validRequest()

	rr := doRequest(t, deps.handler, http.MethodPost, "/call_user", req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp calls.CallResponse
	decodeJSON(t, rr, &resp)
	if resp.Status != calls.StatusOK || resp.CallSID != "CA123" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.UserID != req.UserID || resp.PhoneNumber != req.PhoneNumber || resp.Message != req.Message {
		t.Errorf("request fields not echoed: %+v", resp)
	}

	if deps.caller.calls() != 1 {
		t.Fatalf("expected one call, got %d", deps.caller.calls())
	}
	p := deps.caller.params[0]
	if p.To != req.PhoneNumber || p.From != "+15550000000" {
		t.Errorf("unexpected call params: %+v", p)
	}
	if !strings.Contains(p.Twiml, "Polly.Joanna") || !strings.Contains(p.Twiml, "decline in your purchase activity") {
		t.Errorf("script should speak the message with the default voice, got %s", p.Twiml)
	}
	if p.URL != "" {
		t.Errorf("scripted mode must not set a callback url, got %q", p.URL)
	}
}

func TestCallUser_MissingPhoneNumberReturns422WithoutCalling(t *testing.T) {
	deps := newTestServer(t)
	req := validRequest()
	req.PhoneNumber = ""

	rr := doRequest(t, deps.handler, http.MethodPost, "/call_user", req)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}

	var resp calls.ErrorResponse
	decodeJSON(t, rr, &resp)
	if resp.Status != calls.StatusError || !strings.Contains(resp.Error, "phone_number") {
		t.Errorf("unexpected error body: %+v", resp)
	}
	if deps.caller.calls() != 0 {
		t.Errorf("caller must not be invoked, got %d calls", deps.caller.calls())
	}
}

func TestCallUser_InvalidJSONReturns400(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodPost, "/call_user", "{not json")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if deps.caller.calls() != 0 {
		t.Errorf("caller must not be invoked")
	}
}

func TestCallUser_MistypedFieldReturns400(t *testing.T) {
	deps := newTestServer(t)
	rr := doRequest(t, deps.handler, http.MethodPost, "/call_user",
		`{"user_id": 7, "phone_number": "+1555", "message": "hi"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCallUser_UnknownFieldsReturns400(t *testing.T) {
	deps := newTestServer(t)
	body := map[string]any{
		"user_id":      "7",
		"phone_number": "+1555",
		"message":      "hi",
		"priority":     "high",
	}
	rr := doRequest(t, deps.handler, http.MethodPost, "/call_user", body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCallUser_CallerErrorReturns500(t *testing.T) {
	deps := newTestServer(t)
	deps.caller.err = errors.New("telephony: twilio error 21211 (status 400): Invalid 'To' Phone Number")

	rr := doRequest(t, deps.handler, http.MethodPost, "/call_user", validRequest())
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}

	var resp calls.ErrorResponse
	decodeJSON(t, rr, &resp)
	if resp.Status != calls.StatusError || !strings.Contains(resp.Error, "Invalid 'To' Phone Number") {
		t.Errorf("unexpected error body: %+v", resp)
	}
	if deps.caller.calls() != 1 {
		t.Errorf("expected exactly one attempt, got %d", deps.caller.calls())
	}
}

func TestCallUser_PublishesEvents(t *testing.T) {
	deps := newTestServer(t)
	doRequest(t, deps.handler, http.MethodPost, "/call_user", validRequest())

	deps.caller.err = errors.New("outage")
	doRequest(t, deps.handler, http.MethodPost, "/call_user", validRequest())

	if len(deps.publisher.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(deps.publisher.events))
	}
	if e := deps.publisher.events[0]; e.Type != events.TypeCallPlaced || e.CallSID != "CA123" {
		t.Errorf("unexpected placed event: %+v", e)
	}
	if e := deps.publisher.events[1]; e.Type != events.TypeCallFailed || e.Error != "outage" {
		t.Errorf("unexpected failed event: %+v", e)
	}
}

func TestCallUser_PublishFailureDoesNotFailCall(t *testing.T) {
	deps := newTestServer(t)
	deps.publisher.err = errors.New("broker down")

	rr := doRequest(t, deps.handler, http.MethodPost, "/call_user", validRequest())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestCallUser_ScriptedModeKeepsNoResultState(t *testing.T) {
	deps := newTestServer(t)
	doRequest(t, deps.handler, http.MethodPost, "/call_user", validRequest())

	if _, err := deps.results.Get(context.Background(), "7"); !errors.Is(err, calls.ErrResultNotFound) {
		t.Errorf("scripted mode must not write results, got %v", err)
	}
	rr := doRequest(t, deps.handler, http.MethodGet, "/get_call_result?user_id=7", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("result endpoint should not exist in scripted mode, got %d", rr.Code)
	}
}

// ─── GET /metrics ─────────────────────────────────────────────────────────────

func TestMetrics_CountsCallOutcomes(t *testing.T) {
	deps := newTestServer(t)
	doRequest(t, deps.handler, http.MethodPost, "/call_user", validRequest())

	rr := doRequest(t, deps.handler, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `churnops_calls_total{outcome="placed"} 1`) {
		t.Errorf("placed call not counted:\n%s", rr.Body.String())
	}
}

// ─── Interactive flow ─────────────────────────────────────────────────────────

func TestInteractive_FullLifecycle(t *testing.T) {
	deps := newTestServer(t, interactive)

	rr := doRequest(t, deps.handler, http.MethodPost, "/call_user", validRequest())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	p := deps.caller.params[0]
	if p.Twiml != "" || !strings.HasPrefix(p.URL, "https://calls.example.com/voice/entry?") {
		t.Fatalf("interactive call should use the entry url, got %+v", p)
	}

	var result calls.CallResultResponse
	rr = doRequest(t, deps.handler, http.MethodGet, "/get_call_result?user_id=7", nil)
	decodeJSON(t, rr, &result)
	if result.Status != calls.ResultPending {
		t.Errorf("expected pending after dispatch, got %+v", result)
	}

	entryPath := strings.TrimPrefix(p.URL, "https://calls.example.com")
	rr = postSignedForm(t, deps.handler, entryPath, url.Values{"CallSid": {"CA123"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("entry: expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/xml" {
		t.Errorf("entry: unexpected content type %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "<Record") || !strings.Contains(rr.Body.String(), "handle_recording") {
		t.Errorf("entry should record and post back, got %s", rr.Body.String())
	}

	rr = doRequest(t, deps.handler, http.MethodGet, "/get_call_result?user_id=7", nil)
	decodeJSON(t, rr, &result)
	if result.Status != calls.ResultPending {
		t.Errorf("answered call is still pending, got %+v", result)
	}

	rr = postSignedForm(t, deps.handler, "/voice/handle_recording?user_id=7", url.Values{
		"CallSid":           {"CA123"},
		"RecordingUrl":      {"https://api.twilio.com/rec/RE1"},
		"RecordingDuration": {"12"},
	})
	if !strings.Contains(rr.Body.String(), "Goodbye") || !strings.Contains(rr.Body.String(), "<Hangup") {
		t.Errorf("recording callback should say goodbye and hang up, got %s", rr.Body.String())
	}

	rr = doRequest(t, deps.handler, http.MethodGet, "/get_call_result?user_id=7", nil)
	decodeJSON(t, rr, &result)
	if result.Status != calls.ResultDone || !strings.Contains(result.Summary, "RE1") {
		t.Errorf("expected done with summary, got %+v", result)
	}

	var types []string
	for _, e := range deps.publisher.events {
		types = append(types, e.Type)
	}
	if strings.Join(types, ",") != "call.placed,call.result" {
		t.Errorf("unexpected event sequence %v", types)
	}
}

func TestInteractive_ZeroDurationIsNotConnected(t *testing.T) {
	deps := newTestServer(t, interactive)
	doRequest(t, deps.handler, http.MethodPost, "/call_user", validRequest())

	postSignedForm(t, deps.handler, "/voice/handle_recording?user_id=7", url.Values{
		"RecordingUrl":      {"https://api.twilio.com/rec/RE1"},
		"RecordingDuration": {"0"},
	})

	var result calls.CallResultResponse
	decodeJSON(t, doRequest(t, deps.handler, http.MethodGet, "/get_call_result?user_id=7", nil), &result)
	if result.Status != calls.ResultDone || result.Summary != "Call not connected." {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestInteractive_UnknownUserIsPending(t *testing.T) {
	deps := newTestServer(t, interactive)
	rr := doRequest(t, deps.handler, http.MethodGet, "/get_call_result?user_id=nobody", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var result calls.CallResultResponse
	decodeJSON(t, rr, &result)
	if result.Status != calls.ResultPending || result.UserID != "nobody" || result.Summary != "" {
		t.Errorf("unknown user should read as pending, got %+v", result)
	}
}

func TestInteractive_UnsignedCallbackIsRejected(t *testing.T) {
	deps := newTestServer(t, interactive)
	doRequest(t, deps.handler, http.MethodPost, "/call_user", validRequest())

	form := url.Values{
		"RecordingUrl":      {"https://evil.example/x"},
		"RecordingDuration": {"9"},
	}
	rr := postForm(t, deps.handler, "/voice/handle_recording?user_id=7", form)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("unsigned callback: expected 403, got %d", rr.Code)
	}

	// Signed with the wrong token.
	req := httptest.NewRequest(http.MethodPost, "/voice/handle_recording?user_id=7", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature",
		twilioSignature("other-token", testPublicURL+"/voice/handle_recording?user_id=7", form))
	rr = httptest.NewRecorder()
	deps.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("wrong-token callback: expected 403, got %d", rr.Code)
	}

	var result calls.CallResultResponse
	decodeJSON(t, doRequest(t, deps.handler, http.MethodGet, "/get_call_result?user_id=7", nil), &result)
	if result.Status != calls.ResultPending {
		t.Errorf("rejected callbacks must not change the result, got %+v", result)
	}
	for _, e := range deps.publisher.events {
		if e.Type == events.TypeCallResult {
			t.Errorf("rejected callback published %+v", e)
		}
	}
}

func TestInteractive_TamperedSignedCallbackIsRejected(t *testing.T) {
	deps := newTestServer(t, interactive)
	doRequest(t, deps.handler, http.MethodPost, "/call_user", validRequest())

	signed := url.Values{"RecordingUrl": {"https://api.twilio.com/rec/RE1"}, "RecordingDuration": {"12"}}
	sig := twilioSignature(testAuthToken, testPublicURL+"/voice/handle_recording?user_id=7", signed)

	// Same signature, different user in the query string.
	req := httptest.NewRequest(http.MethodPost, "/voice/handle_recording?user_id=8", strings.NewReader(signed.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", sig)
	rr := httptest.NewRecorder()
	deps.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestInteractive_NoAuthTokenRejectsCallbacks(t *testing.T) {
	deps := newTestServer(t, interactive, func(cfg *calls.Config) { cfg.AuthToken = "" })

	form := url.Values{"CallSid": {"CA123"}}
	req := httptest.NewRequest(http.MethodPost, "/voice/entry?user_id=7", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Twilio-Signature", twilioSignature("", testPublicURL+"/voice/entry?user_id=7", form))
	rr := httptest.NewRecorder()
	deps.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestInteractive_MissingUserIDReturns422(t *testing.T) {
	deps := newTestServer(t, interactive)
	rr := doRequest(t, deps.handler, http.MethodGet, "/get_call_result", nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
}
