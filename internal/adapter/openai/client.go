// Package openai provides an HTTP client for the OpenAI chat completions API.
package openai

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

const defaultBaseURL = "https://api.openai.com"

// Client talks to the OpenAI chat completions API.
type Client struct {
	baseURL      string
	apiKey       string
	maxTokens    int
	maxRetries   int
	retryBackoff time.Duration
	httpClient   *http.Client
	breaker      *resilience.Breaker
}

// NewClient creates an OpenAI client from provider credentials and the
// agent loop configuration.
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
func (c *Client) Name() string { return "openai" }

// Models implements llm.Provider.
func (c *Client) Models() []string {
	return []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo"}
}

// SupportsVision implements llm.Provider.
func (c *Client) SupportsVision() bool { return true }

// The chat completions API has no tool_result message shape compatible
// with nested images, so the conversation is flattened: text parts stay
// text, images become image_url parts on user messages.

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []contentPart
}

type apiTool struct {
	Type     string      `json:"type"`
	Function apiFunction `json:"function"`
}

type apiFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type apiRequest struct {
	Model      string       `json:"model"`
	MaxTokens  int          `json:"max_tokens"`
	Messages   []apiMessage `json:"messages"`
	Tools      []apiTool    `json:"tools,omitempty"`
	ToolChoice string       `json:"tool_choice,omitempty"`
}

type apiResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// GenerateMessage implements llm.Provider.
func (c *Client) GenerateMessage(ctx context.Context, req llm.Request) (*llm.Response, error) {
	body := apiRequest{
		Model:     req.Model,
		MaxTokens: c.maxTokens,
		Messages:  convertMessages(req.SystemPrompt, req.Messages),
	}
	if req.UseTools {
		for _, t := range agent.Tools {
			body.Tools = append(body.Tools, apiTool{
				Type:     "function",
				Function: apiFunction{Name: t.Name, Description: t.Description, Parameters: t.InputSchema},
			})
		}
		body.ToolChoice = "auto"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	data, err := c.doRequest(ctx, "/v1/chat/completions", payload)
	if err != nil {
		return nil, err
	}

	var resp apiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai response has no choices")
	}

	var blocks []message.Block
	choice := resp.Choices[0].Message
	if choice.Content != "" {
		blocks = append(blocks, message.Text(choice.Content))
	}
	for _, tc := range choice.ToolCalls {
		blocks = append(blocks, message.ToolUse(tc.ID, tc.Function.Name, json.RawMessage(tc.Function.Arguments)))
	}

	return &llm.Response{
		Blocks: blocks,
		Usage: llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func convertMessages(systemPrompt string, msgs []message.Message) []apiMessage {
	out := []apiMessage{{Role: "system", Content: systemPrompt}}
	for _, m := range msgs {
		role := "assistant"
		if m.Role == task.RoleUser {
			role = "user"
		}
		parts := flattenBlocks(m.Content)
		if len(parts) == 0 {
			continue
		}
		if len(parts) == 1 && parts[0].Type == "text" {
			out = append(out, apiMessage{Role: role, Content: parts[0].Text})
			continue
		}
		out = append(out, apiMessage{Role: role, Content: parts})
	}
	return out
}

func flattenBlocks(blocks []message.Block) []contentPart {
	var parts []contentPart
	for _, b := range blocks {
		switch b.Type {
		case message.TypeText:
			if b.Text != "" {
				parts = append(parts, contentPart{Type: "text", Text: b.Text})
			}
		case message.TypeImage:
			if b.Source != nil && b.Source.Data != "" {
				parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{
					URL: fmt.Sprintf("data:%s;base64,%s", b.Source.MediaType, b.Source.Data),
				}})
			}
		case message.TypeToolResult, message.TypeUserAction:
			parts = append(parts, flattenBlocks(b.Content)...)
		}
	}
	return parts
}

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
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

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
			return nil, &transientError{fmt.Errorf("openai API error %d: %s", resp.StatusCode, string(data))}
		}
		if resp.StatusCode >= 400 {
			return nil, backoff.Permanent(fmt.Errorf("openai API error %d: %s", resp.StatusCode, string(data)))
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
