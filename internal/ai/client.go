// Package ai defines the text-completion capability used to narrate the
// high-risk cohort and provides OpenAI- and Anthropic-backed implementations.
package ai

import (
	"context"
	"errors"
)

// ErrMissingAPIKey is returned by the constructors when no API key is given.
// It is a configuration error: callers should fail at startup.
var ErrMissingAPIKey = errors.New("ai: API key not provided")

// ChatRequest is one system + user exchange.
type ChatRequest struct {
	System      string
	User        string
	Temperature float32
}

// Completer is the interface the narrative summarizer uses to reach an LLM.
// Tests inject a stub that returns canned responses.
type Completer interface {
	// Complete sends a single chat request and returns the assistant text.
	//
	// Implementations must be safe to call concurrently and must not retry:
	// a non-nil error means this one attempt failed.
	Complete(ctx context.Context, req ChatRequest) (string, error)
}
