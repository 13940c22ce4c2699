package xiaoban

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the xiaoban server (e.g. "http://localhost:8080").
	BaseURL string

	// APIKey is the bearer token set as XIAOBAN_API_KEY on the server.
	// Leave empty when the server runs without one.
	APIKey string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the xiaoban API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL is empty or not an absolute URL.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("xiaoban: BaseURL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("xiaoban: BaseURL must be an absolute URL, got %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  httpClient,
	}, nil
}

// Health reports server, store and scheduler status.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var resp Health
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecordStatus stores a status event.
func (c *Client) RecordStatus(ctx context.Context, req RecordStatusRequest) (*StatusEvent, error) {
	var resp StatusEvent
	if err := c.post(ctx, "/v1/status", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecordCommand stores a status from a quick command such as "study start"
// or "mood 有点累". The event counts as user activity.
func (c *Client) RecordCommand(ctx context.Context, command string) (*StatusEvent, error) {
	var resp StatusEvent
	if err := c.post(ctx, "/v1/status/command", map[string]string{"command": command}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Today returns today's events in the server's timezone, oldest first.
func (c *Client) Today(ctx context.Context) (*StatusList, error) {
	var resp StatusList
	if err := c.get(ctx, "/v1/status/today", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecentOptions are optional filters for the Recent method.
type RecentOptions struct {
	Limit      int
	StatusType string
}

// Recent returns the latest events, newest first.
func (c *Client) Recent(ctx context.Context, opts *RecentOptions) (*StatusList, error) {
	params := url.Values{}
	if opts != nil {
		if opts.Limit > 0 {
			params.Set("limit", strconv.Itoa(opts.Limit))
		}
		if opts.StatusType != "" {
			params.Set("type", opts.StatusType)
		}
	}
	path := "/v1/status/recent"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var resp StatusList
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TouchActivity marks the user as active now, resetting the idle timer.
func (c *Client) TouchActivity(ctx context.Context) (*Activity, error) {
	var resp Activity
	if err := c.post(ctx, "/v1/activity", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VAPIDPublicKey returns the key a browser passes to PushManager.subscribe.
func (c *Client) VAPIDPublicKey(ctx context.Context) (string, error) {
	var resp struct {
		PublicKey string `json:"public_key"`
	}
	if err := c.get(ctx, "/v1/push/vapid-key", &resp); err != nil {
		return "", err
	}
	return resp.PublicKey, nil
}

// Subscribe registers a push subscription. Re-subscribing an endpoint
// replaces its keys.
func (c *Client) Subscribe(ctx context.Context, sub Subscription) error {
	return c.post(ctx, "/v1/push/subscribe", sub, nil)
}

// Unsubscribe removes a push subscription. Unknown endpoints are not an error.
func (c *Client) Unsubscribe(ctx context.Context, endpoint string) error {
	return c.post(ctx, "/v1/push/unsubscribe", map[string]string{"endpoint": endpoint}, nil)
}

// TestPush sends a test notification and returns how many devices got it.
func (c *Client) TestPush(ctx context.Context) (int, error) {
	var resp struct {
		Sent int `json:"sent"`
	}
	if err := c.post(ctx, "/v1/push/test", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Sent, nil
}

// Fire runs one rule evaluation pass now.
func (c *Client) Fire(ctx context.Context) (*FireResult, error) {
	var resp FireResult
	if err := c.post(ctx, "/v1/proactive/fire", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TakePending takes the oldest queued proactive message, if any.
func (c *Client) TakePending(ctx context.Context) (*PendingResult, error) {
	var resp PendingResult
	if err := c.get(ctx, "/v1/proactive/pending", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Rules lists the proactive rules in evaluation order.
func (c *Client) Rules(ctx context.Context) ([]Rule, error) {
	var resp struct {
		Rules []Rule `json:"rules"`
	}
	if err := c.get(ctx, "/v1/proactive/rules", &resp); err != nil {
		return nil, err
	}
	return resp.Rules, nil
}

// Stats returns the proactive engine counters.
func (c *Client) Stats(ctx context.Context) (*EngineStats, error) {
	var resp EngineStats
	if err := c.get(ctx, "/v1/proactive/stats", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the server's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the server's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// post sends body as JSON. A nil body sends no payload.
func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("xiaoban: marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("xiaoban: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.doRequest(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("xiaoban: create request: %w", err)
	}

	return c.doRequest(req, dest)
}

func (c *Client) doRequest(req *http.Request, dest any) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("xiaoban: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("xiaoban: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("xiaoban: decode response envelope: %w", err)
	}
	if envelope.Data == nil {
		return fmt.Errorf("xiaoban: response has no data field")
	}
	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = strings.TrimSpace(string(body))
	}

	return apiErr
}
