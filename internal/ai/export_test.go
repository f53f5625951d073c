package ai

import "net/http"

// NewAnthropicClientForTest points the client at a test server.
func NewAnthropicClientForTest(apiKey, model, endpoint string, hc *http.Client) (Completer, error) {
	return newAnthropicClient(apiKey, model, endpoint, hc)
}
