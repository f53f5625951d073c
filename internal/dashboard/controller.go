// Package dashboard is the operator-facing churn actions page. The Controller
// runs one render pass or one batch of call actions against a Session; the
// HTTP layer in handlers.go turns those into pages.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nyashahama/churn-actions-dashboard/internal/calls"
	"github.com/nyashahama/churn-actions-dashboard/internal/churn"
	"github.com/nyashahama/churn-actions-dashboard/internal/dataset"
	"github.com/nyashahama/churn-actions-dashboard/internal/metrics"
	"github.com/nyashahama/churn-actions-dashboard/internal/narrative"
)

// DefaultSummaryContext is passed to the summarizer when none is configured.
const DefaultSummaryContext = "These are customers with high probability to churn in next 2 months"

const (
	outcomeInitiatedPrefix = "Call initiated"
	outcomeDispatching     = "Call in progress"
	pollTimeout            = 5 * time.Second
)

// Narrator writes the narrative for the high-risk table.
type Narrator interface {
	Summarize(ctx context.Context, t churn.HighRiskTable, extraContext string) narrative.Summary
}

// Dispatcher places a call through the call dispatch service.
type Dispatcher interface {
	PlaceCall(ctx context.Context, req calls.CallRequest) (calls.CallResponse, error)
}

// ResultPoller reads interactive call results. Optional.
type ResultPoller interface {
	CallResult(ctx context.Context, userID string) (calls.CallResultResponse, error)
}

// Deps groups the Controller's collaborators. Poller and Metrics may be nil.
type Deps struct {
	Source     dataset.Source
	Narrator   Narrator
	Dispatcher Dispatcher
	Poller     ResultPoller
	Metrics    *metrics.Manager
}

// Controller orchestrates classification, summary and call dispatch.
type Controller struct {
	source     dataset.Source
	narrator   Narrator
	dispatcher Dispatcher
	poller     ResultPoller
	metrics    *metrics.Manager
	summaryCtx string
	logger     *slog.Logger
}

// NewController returns a Controller. An empty summaryContext selects
// DefaultSummaryContext.
func NewController(deps Deps, summaryContext string, logger *slog.Logger) *Controller {
	if strings.TrimSpace(summaryContext) == "" {
		summaryContext = DefaultSummaryContext
	}
	return &Controller{
		source:     deps.Source,
		narrator:   deps.Narrator,
		dispatcher: deps.Dispatcher,
		poller:     deps.Poller,
		metrics:    deps.Metrics,
		summaryCtx: summaryContext,
		logger:     logger,
	}
}

// ─── VIEW ─────────────────────────────────────────────────────────────────────

// Row is one line of the high-risk table.
type Row struct {
	UserID     string
	ChurnProb  string
	RiskBucket churn.RiskLabel
	HasPhone   bool
	Called     bool
	Response   string
}

// View is everything one render pass shows.
type View struct {
	// Error is set when the data could not be loaded or classified; the rest
	// of the view is then empty.
	Error        string
	BucketCounts []churn.BucketCount
	Summary      narrative.Summary
	Rows         []Row
	Flashes      []Flash
}

// ─── RENDER ───────────────────────────────────────────────────────────────────

// Render reloads the data and builds a fresh view. The summary is recomputed
// on every pass.
func (c *Controller) Render(ctx context.Context, sess *Session) View {
	v := View{Flashes: sess.PopFlashes()}

	cls, err := c.load(ctx)
	if err != nil {
		c.logger.Error("dashboard: load data", "error", err)
		v.Error = dataErrorMessage(err)
		c.metrics.RecordRender(true)
		return v
	}

	hr := cls.HighRisk()
	v.BucketCounts = cls.BucketCounts()
	v.Summary = c.narrator.Summarize(ctx, hr, c.summaryCtx)

	if c.poller != nil {
		c.pollResults(ctx, sess)
	}

	outcomes := sess.Outcomes()
	sorted := hr.SortedByProbability()
	v.Rows = make([]Row, 0, sorted.Len())
	for _, r := range sorted.Records {
		outcome, called := outcomes[r.UserID]
		v.Rows = append(v.Rows, Row{
			UserID:     r.UserID,
			ChurnProb:  r.DisplayProbability(),
			RiskBucket: r.Label,
			HasPhone:   r.PhoneNumber != "",
			Called:     called,
			Response:   outcome,
		})
	}

	c.metrics.RecordRender(false)
	return v
}

func (c *Controller) load(ctx context.Context) (churn.Classification, error) {
	tbl, err := c.source.Load(ctx)
	if err != nil {
		return churn.Classification{}, err
	}
	return churn.Classify(tbl)
}

func dataErrorMessage(err error) string {
	var dfe *churn.DataFormatError
	if errors.As(err, &dfe) {
		return "The churn data file is not in the expected format: " + dfe.Error()
	}
	return "Could not load churn data: " + err.Error()
}

// pollResults replaces "Call initiated" outcomes with the call summary once
// the dispatch service reports the call done. Poll failures leave the
// outcome untouched.
func (c *Controller) pollResults(ctx context.Context, sess *Session) {
	for userID, outcome := range sess.Outcomes() {
		if !strings.HasPrefix(outcome, outcomeInitiatedPrefix) {
			continue
		}
		pctx, cancel := context.WithTimeout(ctx, pollTimeout)
		res, err := c.poller.CallResult(pctx, userID)
		cancel()
		if err != nil {
			c.logger.Debug("dashboard: poll call result", "error", err, "user_id", userID)
			continue
		}
		if res.Status == calls.ResultDone {
			sess.SetOutcome(userID, res.Summary)
		}
	}
}

// ─── ACTIONS ──────────────────────────────────────────────────────────────────

// HandleActions dispatches a call for every selected high-risk user that has
// no recorded outcome yet, at most once per user per session. It reports
// whether any outcome was recorded.
func (c *Controller) HandleActions(ctx context.Context, sess *Session, selected []string) bool {
	if len(selected) == 0 {
		return false
	}

	cls, err := c.load(ctx)
	if err != nil {
		c.logger.Error("dashboard: load data for actions", "error", err)
		sess.AddFlash(FlashError, dataErrorMessage(err))
		return false
	}
	hr := cls.HighRisk()

	changed := false
	seen := make(map[string]struct{}, len(selected))
	for _, userID := range selected {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}

		rec, ok := hr.Find(userID)
		if !ok {
			c.logger.Warn("dashboard: selected user is not high risk", "user_id", userID)
			continue
		}
		if c.dispatch(ctx, sess, rec) {
			changed = true
		}
	}
	return changed
}

// dispatch handles one user and reports whether an outcome was recorded.
func (c *Controller) dispatch(ctx context.Context, sess *Session, rec churn.Record) bool {
	if rec.PhoneNumber == "" {
		msg := "No phone number on file for user " + rec.UserID
		if sess.claim(rec.UserID, msg) {
			c.metrics.RecordCall(metrics.OutcomeNoPhone)
			sess.AddFlash(FlashError, msg)
			return true
		}
		return false
	}

	if !sess.claim(rec.UserID, outcomeDispatching) {
		return false
	}

	resp, err := c.dispatcher.PlaceCall(ctx, calls.CallRequest{
		UserID:      rec.UserID,
		PhoneNumber: rec.PhoneNumber,
		Message:     calls.OutreachMessage(rec.UserID),
	})

	var apiErr *calls.APIError
	switch {
	case err == nil:
		sess.SetOutcome(rec.UserID, fmt.Sprintf("Call initiated (SID: %s)", resp.CallSID))
		sess.AddFlash(FlashSuccess, "Call triggered for user "+rec.UserID)
		c.logger.Info("dashboard: call dispatched", "user_id", rec.UserID, "call_sid", resp.CallSID)
	case errors.As(err, &apiErr):
		msg := apiErr.Error()
		sess.SetOutcome(rec.UserID, msg)
		sess.AddFlash(FlashError, msg)
		c.logger.Warn("dashboard: dispatch rejected", "user_id", rec.UserID, "status", apiErr.Status)
	default:
		msg := fmt.Sprintf("Failed to call voice API for customer %s: %v", rec.UserID, err)
		sess.SetOutcome(rec.UserID, msg)
		sess.AddFlash(FlashError, msg)
		c.logger.Error("dashboard: dispatch failed", "error", err, "user_id", rec.UserID)
	}
	return true
}
