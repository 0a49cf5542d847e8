package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bytebot-ai/bytebot/internal/config"
	"github.com/bytebot-ai/bytebot/internal/domain/agent"
	"github.com/bytebot-ai/bytebot/internal/domain/message"
	"github.com/bytebot-ai/bytebot/internal/domain/summary"
	"github.com/bytebot-ai/bytebot/internal/domain/task"
	"github.com/bytebot-ai/bytebot/internal/port/database"
	"github.com/bytebot-ai/bytebot/internal/port/llm"
)

// Summarizer condenses old conversation turns so long-running tasks
// stay within the model context window. Summaries chain: each new one
// absorbs the previous via ParentID, so only the newest is live.
type Summarizer struct {
	store      database.Store
	providers  map[string]llm.Provider
	threshold  int
	keepRecent int
}

// NewSummarizer creates a summarizer. threshold is the live message
// count that triggers a pass; keepRecent messages are never summarized.
func NewSummarizer(store database.Store, providers map[string]llm.Provider, cfg config.Summarizer) *Summarizer {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = 40
	}
	keep := cfg.KeepRecent
	if keep <= 0 {
		keep = 10
	}
	return &Summarizer{store: store, providers: providers, threshold: threshold, keepRecent: keep}
}

// Latest returns the newest summary for a task, or nil when none exist.
func (s *Summarizer) Latest(ctx context.Context, taskID string) (*summary.Summary, error) {
	all, err := s.store.ListSummaries(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	return &all[len(all)-1], nil
}

// MaybeSummarize condenses the oldest live messages when the live count
// exceeds the threshold.
func (s *Summarizer) MaybeSummarize(ctx context.Context, t *task.Task) error {
	live, err := s.store.ListMessages(ctx, t.ID, true)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	if len(live) <= s.threshold {
		return nil
	}

	provider, ok := s.providers[t.Model.Provider]
	if !ok {
		return fmt.Errorf("unknown provider %q", t.Model.Provider)
	}

	cut := len(live) - s.keepRecent
	old := live[:cut]

	prior, err := s.Latest(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("load summaries: %w", err)
	}

	resp, err := provider.GenerateMessage(ctx, buildSummaryRequest(old, prior, t.Model.Name))
	if err != nil {
		return fmt.Errorf("generate summary: %w", err)
	}
	content := message.PlainText(resp.Blocks)
	if content == "" {
		return fmt.Errorf("provider returned an empty summary")
	}

	parentID := ""
	if prior != nil {
		parentID = prior.ID
	}
	created, err := s.store.CreateSummary(ctx, t.ID, content, parentID)
	if err != nil {
		return fmt.Errorf("store summary: %w", err)
	}

	ids := make([]string, len(old))
	for i, m := range old {
		ids[i] = m.ID
	}
	if err := s.store.LinkMessagesToSummary(ctx, ids, created.ID); err != nil {
		return fmt.Errorf("link messages: %w", err)
	}

	slog.Info("conversation summarized", "task_id", t.ID, "messages", len(old), "summary_id", created.ID)
	return nil
}

// buildSummaryRequest flattens the span to summarize into a single user
// turn. Images are dropped; tool calls become one-liners. The previous
// summary, if any, leads so its content carries forward.
func buildSummaryRequest(old []message.Message, prior *summary.Summary, model string) llm.Request {
	var blocks []message.Block
	if prior != nil {
		blocks = append(blocks, message.Text("Previous summary:\n"+prior.Content))
	}
	for _, m := range old {
		for _, b := range m.Content {
			switch b.Type {
			case message.TypeText:
				if b.Text != "" {
					blocks = append(blocks, message.Text(string(m.Role)+": "+b.Text))
				}
			case message.TypeToolUse:
				blocks = append(blocks, message.Text("tool call: "+b.Name))
			case message.TypeToolResult:
				status := "ok"
				if b.IsError {
					status = "error"
				}
				blocks = append(blocks, message.Text("tool result: "+status))
			}
		}
	}
	blocks = append(blocks, message.Text("Summarize the conversation above."))

	return llm.Request{
		SystemPrompt: agent.SummarizationPrompt,
		Messages: []message.Message{
			{Role: task.RoleUser, Content: blocks},
		},
		Model: model,
	}
}
