// Package anthropic provides an HTTP client for the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/bytebot-ai/bytebot/internal/config"
	"github.com/bytebot-ai/bytebot/internal/domain/agent"
	"github.com/bytebot-ai/bytebot/internal/domain/message"
	"github.com/bytebot-ai/bytebot/internal/domain/task"
	"github.com/bytebot-ai/bytebot/internal/port/llm"
	"github.com/bytebot-ai/bytebot/internal/resilience"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
)

// Client talks to the Anthropic Messages API.
type Client struct {
	baseURL      string
	apiKey       string
	maxTokens    int
	maxRetries   int
	retryBackoff time.Duration
	httpClient   *http.Client
	breaker      *resilience.Breaker
}

// NewClient creates an Anthropic client from provider credentials and the
// agent loop configuration (token cap, retry policy).
func NewClient(cfg config.Provider, loop config.Agent) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:      baseURL,
		apiKey:       cfg.APIKey,
		maxTokens:    loop.MaxTokens,
		maxRetries:   loop.ProviderMaxRetries,
		retryBackoff: loop.ProviderRetryBackoff,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Name implements llm.Provider.
func (c *Client) Name() string { return "anthropic" }

// Models implements llm.Provider.
func (c *Client) Models() []string {
	return []string{
		"claude-opus-4-1-20250805",
		"claude-sonnet-4-20250514",
		"claude-3-5-sonnet-20240620",
		"claude-3-5-haiku-20241022",
		"claude-3-opus-20240229",
	}
}

// SupportsVision implements llm.Provider.
func (c *Client) SupportsVision() bool { return true }

type apiMessage struct {
	Role    string          `json:"role"`
	Content []message.Block `json:"content"`
}

type apiTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system,omitempty"`
	Messages  []apiMessage `json:"messages"`
	Tools     []apiTool    `json:"tools,omitempty"`
}

type apiResponse struct {
	Content []message.Block `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// GenerateMessage implements llm.Provider.
func (c *Client) GenerateMessage(ctx context.Context, req llm.Request) (*llm.Response, error) {
	body := apiRequest{
		Model:     req.Model,
		MaxTokens: c.maxTokens,
		System:    req.SystemPrompt,
		Messages:  convertMessages(req.Messages),
	}
	if req.UseTools {
		for _, t := range agent.Tools {
			body.Tools = append(body.Tools, apiTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	data, err := c.doRequest(ctx, "/v1/messages", payload)
	if err != nil {
		return nil, err
	}

	var resp apiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &llm.Response{
		Blocks: resp.Content,
		Usage: llm.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

// convertMessages filters the conversation down to the block types the
// Messages API accepts, dropping empty blocks. Images survive inside
// tool results so the model sees post-action screenshots.
func convertMessages(msgs []message.Message) []apiMessage {
	out := make([]apiMessage, 0, len(msgs))
	for _, m := range msgs {
		role := "assistant"
		if m.Role == task.RoleUser {
			role = "user"
		}
		blocks := convertBlocks(m.Content)
		if len(blocks) == 0 {
			continue
		}
		out = append(out, apiMessage{Role: role, Content: blocks})
	}
	return out
}

func convertBlocks(blocks []message.Block) []message.Block {
	var out []message.Block
	for _, b := range blocks {
		switch b.Type {
		case message.TypeText:
			if b.Text != "" {
				out = append(out, message.Text(b.Text))
			}
		case message.TypeImage:
			if b.Source != nil && b.Source.Data != "" {
				out = append(out, message.Block{Type: message.TypeImage, Source: b.Source})
			}
		case message.TypeToolUse:
			if b.Name != "" {
				out = append(out, message.Block{Type: message.TypeToolUse, ID: b.ID, Name: b.Name, Input: b.Input})
			}
		case message.TypeToolResult:
			if b.ToolUseID == "" {
				continue
			}
			nested := convertBlocks(b.Content)
			out = append(out, message.Block{
				Type:      message.TypeToolResult,
				ToolUseID: b.ToolUseID,
				IsError:   b.IsError,
				Content:   nested,
			})
		case message.TypeUserAction:
			// Manual takeover actions are recorded for the UI; the model
			// sees their nested blocks directly.
			out = append(out, convertBlocks(b.Content)...)
		}
	}
	return out
}

// transientError marks an error worth retrying (429, 5xx, network).
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func (c *Client) doRequest(ctx context.Context, path string, body []byte) ([]byte, error) {
	call := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", apiVersion)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &transientError{fmt.Errorf("http request: %w", err)}
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &transientError{fmt.Errorf("read response: %w", err)}
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, &transientError{fmt.Errorf("anthropic API error %d: %s", resp.StatusCode, string(data))}
		}
		if resp.StatusCode >= 400 {
			return nil, backoff.Permanent(fmt.Errorf("anthropic API error %d: %s", resp.StatusCode, string(data)))
		}
		return data, nil
	}

	retried := func() ([]byte, error) {
		bo := backoff.NewExponentialBackOff()
		if c.retryBackoff > 0 {
			bo.InitialInterval = c.retryBackoff
		}
		return backoff.Retry(ctx, call,
			backoff.WithBackOff(bo),
			backoff.WithMaxTries(uint(c.maxRetries+1)))
	}

	if c.breaker != nil {
		var result []byte
		err := c.breaker.Execute(func() error {
			var callErr error
			result, callErr = retried()
			return callErr
		})
		return result, err
	}
	return retried()
}
