package calls

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultClientTimeout bounds one dispatch request end to end.
const DefaultClientTimeout = 15 * time.Second

// APIError is a non-2xx response from the call dispatch service. Body is the
// raw response text.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// Client calls the dispatch service over HTTP. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a Client for the service at baseURL. A zero timeout
// selects DefaultClientTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// PlaceCall sends one POST /call_user. It never retries.
func (c *Client) PlaceCall(ctx context.Context, req CallRequest) (CallResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return CallResponse{}, fmt.Errorf("calls: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/call_user", bytes.NewReader(body))
	if err != nil {
		return CallResponse{}, fmt.Errorf("calls: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out CallResponse
	if err := c.do(httpReq, &out); err != nil {
		return CallResponse{}, err
	}
	return out, nil
}

// CallResult polls GET /get_call_result for an interactive call.
func (c *Client) CallResult(ctx context.Context, userID string) (CallResultResponse, error) {
	u := c.baseURL + "/get_call_result?" + url.Values{"user_id": {userID}}.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return CallResultResponse{}, fmt.Errorf("calls: build request: %w", err)
	}

	var out CallResultResponse
	if err := c.do(httpReq, &out); err != nil {
		return CallResultResponse{}, err
	}
	return out, nil
}

func (c *Client) do(req *http.Request, dst any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calls: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB cap
	if err != nil {
		return fmt.Errorf("calls: read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("calls: decode response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}
