// Package computeruse provides an HTTP client for the bytebotd daemon.
package computeruse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytebot-ai/bytebot/internal/config"
	"github.com/bytebot-ai/bytebot/internal/domain/computer"
	"github.com/bytebot-ai/bytebot/internal/resilience"
)

// Client dispatches computer actions to a bytebotd instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a daemon client from the daemon configuration.
func NewClient(cfg config.Daemon) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.URL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Execute implements computeruse.Driver over HTTP.
func (c *Client) Execute(ctx context.Context, action computer.Action) (*computer.Result, error) {
	body, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("marshal action: %w", err)
	}

	var result *computer.Result
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/computer-use", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return fmt.Errorf("daemon error %d: %s", resp.StatusCode, string(data))
		}

		var r computer.Result
		if err := json.Unmarshal(data, &r); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
		result = &r
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}
