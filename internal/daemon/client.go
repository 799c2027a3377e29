package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/runnerr0/tabsentry/internal/settings"
)

// ErrUnreachable means no daemon answered at the configured address.
var ErrUnreachable = errors.New("daemon not reachable")

// CommandError is a command the daemon received and rejected.
type CommandError struct {
	StatusCode int
	Message    string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("daemon: %s (HTTP %d)", e.Message, e.StatusCode)
}

// Client talks to a running daemon over its HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the daemon listening on addr (host:port).
func NewClient(addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    "http://" + addr,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type rawResponse struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Do sends cmd and decodes the response data into out, which may be nil.
func (c *Client) Do(ctx context.Context, cmd Command, out interface{}) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return c.call(ctx, http.MethodPost, "/api/v1/commands", body, out)
}

// Status fetches the daemon status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.call(ctx, http.MethodGet, "/api/v1/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// SaveSettings replaces the daemon's settings with s and returns the result.
func (c *Client) SaveSettings(ctx context.Context, s settings.Settings) (settings.Settings, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return settings.Settings{}, fmt.Errorf("marshal settings: %w", err)
	}
	var saved settings.Settings
	err = c.call(ctx, http.MethodPut, "/api/v1/settings", body, &saved)
	return saved, err
}

// Health reports whether a daemon answers at all.
func (c *Client) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) call(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var r rawResponse
	if err := json.Unmarshal(respBody, &r); err != nil {
		return fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if !r.OK {
		return &CommandError{StatusCode: resp.StatusCode, Message: r.Error}
	}
	if out != nil && len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
