// Package narrative turns the high-risk customer table into a short written
// analysis by asking a language model.
package narrative

import (
	"context"
	"log/slog"
	"time"

	"github.com/nyashahama/churn-actions-dashboard/internal/ai"
	"github.com/nyashahama/churn-actions-dashboard/internal/churn"
	"github.com/nyashahama/churn-actions-dashboard/internal/metrics"
)

// EmptyTableSentence is returned, without contacting the model, when there
// are no high-risk customers.
const EmptyTableSentence = "The input dataframe is empty. No high-risk customers to analyze."

const (
	defaultMaxRows     = 100
	defaultMaxChars    = 12000
	defaultMaxCellLen  = 200
	defaultMaxWords    = 200
	summaryTemperature = 0.3
)

// Summary is the outcome of one Summarize call. Exactly one of Text and Err
// is meaningful.
type Summary struct {
	Text     string
	Err      error
	RowsUsed int
	Latency  time.Duration
}

// Display returns the text shown to the operator for either branch.
func (s Summary) Display() string {
	if s.Err != nil {
		return "Error while generating summary: " + s.Err.Error()
	}
	return s.Text
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithMaxRows caps the rows sent before any shrinking.
func WithMaxRows(n int) Option { return func(s *Summarizer) { s.maxRows = n } }

// WithMaxChars caps the rendered table length.
func WithMaxChars(n int) Option { return func(s *Summarizer) { s.maxChars = n } }

// WithMaxCellLen caps a single cell's length.
func WithMaxCellLen(n int) Option { return func(s *Summarizer) { s.maxCellLen = n } }

// WithMaxWords sets the word budget stated in the prompt.
func WithMaxWords(n int) Option {
	return func(s *Summarizer) {
		if n > 0 {
			s.maxWords = n
		}
	}
}

// WithMetrics records request counts and latency on m.
func WithMetrics(m *metrics.Manager) Option { return func(s *Summarizer) { s.metrics = m } }

// Summarizer produces narrative summaries. Safe for concurrent use as long as
// the Completer is.
type Summarizer struct {
	completer  ai.Completer
	logger     *slog.Logger
	metrics    *metrics.Manager
	maxRows    int
	maxChars   int
	maxCellLen int
	maxWords   int
}

// New returns a Summarizer backed by completer.
func New(completer ai.Completer, logger *slog.Logger, opts ...Option) *Summarizer {
	s := &Summarizer{
		completer:  completer,
		logger:     logger,
		maxRows:    defaultMaxRows,
		maxChars:   defaultMaxChars,
		maxCellLen: defaultMaxCellLen,
		maxWords:   defaultMaxWords,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize asks the model for an analysis of t. It never returns an error:
// model failures are carried in Summary.Err.
func (s *Summarizer) Summarize(ctx context.Context, t churn.HighRiskTable, extraContext string) Summary {
	if t.Len() == 0 {
		return Summary{Text: EmptyTableSentence}
	}

	header := t.Header()
	table, rows := RenderTable(header, t.Rows(), s.maxRows, s.maxChars, s.maxCellLen)

	start := time.Now()
	text, err := s.completer.Complete(ctx, ai.ChatRequest{
		System:      systemRole,
		User:        buildPrompt(header, table, extraContext, s.maxWords),
		Temperature: summaryTemperature,
	})
	latency := time.Since(start)
	s.metrics.RecordLLMRequest(err, latency, rows)

	if err != nil {
		s.logger.Error("narrative: summary failed", "error", err, "rows", rows)
		return Summary{Err: err, RowsUsed: rows, Latency: latency}
	}

	s.logger.Info("narrative: summary generated",
		"latency_ms", float64(latency.Microseconds())/1000,
		"rows", rows,
	)
	return Summary{Text: text, RowsUsed: rows, Latency: latency}
}
