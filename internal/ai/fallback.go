package ai

import (
	"context"
	"fmt"
	"log/slog"
)

// fallbackCompleter wraps two Completer implementations. It calls the primary
// first; if that returns an error it logs the failure and tries the secondary.
// Each provider still gets exactly one attempt.
type fallbackCompleter struct {
	primary   Completer
	secondary Completer
	logger    *slog.Logger
}

// NewFallbackCompleter returns a Completer that calls primary and, on failure,
// falls back to secondary. Either argument may be nil — if primary is nil it
// goes straight to secondary; if secondary is nil and primary fails, the
// primary error is returned.
func NewFallbackCompleter(primary, secondary Completer, logger *slog.Logger) Completer {
	return &fallbackCompleter{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

// Complete tries the primary Completer, then the secondary.
func (f *fallbackCompleter) Complete(ctx context.Context, req ChatRequest) (string, error) {
	if f.primary != nil {
		text, err := f.primary.Complete(ctx, req)
		if err == nil {
			return text, nil
		}
		f.logger.Warn("ai: primary completer failed, trying secondary", "error", err)
		if f.secondary == nil {
			return "", fmt.Errorf("ai: primary failed and no secondary configured: %w", err)
		}
	}
	if f.secondary == nil {
		return "", fmt.Errorf("ai: no completer configured")
	}

	return f.secondary.Complete(ctx, req)
}
