package service

import (
	"context"
	"strings"
	"testing"

	"github.com/bytebot-ai/bytebot/internal/config"
	"github.com/bytebot-ai/bytebot/internal/domain/message"
	"github.com/bytebot-ai/bytebot/internal/domain/task"
	"github.com/bytebot-ai/bytebot/internal/port/llm"
)

func newSummarizerFixture(t *testing.T, threshold, keep int) (*Summarizer, *mockStore, *mockProvider, *task.Task) {
	t.Helper()
	store := newMockStore()
	provider := &mockProvider{}
	s := NewSummarizer(store, map[string]llm.Provider{"anthropic": provider},
		config.Summarizer{Threshold: threshold, KeepRecent: keep})

	created, err := store.CreateTask(context.Background(), task.CreateRequest{
		Description: "long task",
		Model:       task.DefaultModel(),
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return s, store, provider, created
}

func addTurns(t *testing.T, store *mockStore, taskID string, n int) {
	t.Helper()
	for i := range n {
		role := task.RoleUser
		if i%2 == 1 {
			role = task.RoleAssistant
		}
		if _, err := store.AddMessage(context.Background(), taskID, role,
			[]message.Block{message.Text("turn")}); err != nil {
			t.Fatalf("add message: %v", err)
		}
	}
}

func TestSummarizerBelowThresholdIsNoop(t *testing.T) {
	s, store, provider, created := newSummarizerFixture(t, 10, 3)
	addTurns(t, store, created.ID, 10)

	if err := s.MaybeSummarize(context.Background(), created); err != nil {
		t.Fatalf("MaybeSummarize failed: %v", err)
	}
	if len(provider.requests) != 0 {
		t.Fatal("provider called below threshold")
	}
}

func TestSummarizerCondensesOldMessages(t *testing.T) {
	s, store, provider, created := newSummarizerFixture(t, 10, 3)
	provider.responses = []*llm.Response{
		{Blocks: []message.Block{message.Text("agent opened firefox and logged in")}},
	}
	addTurns(t, store, created.ID, 12)

	if err := s.MaybeSummarize(context.Background(), created); err != nil {
		t.Fatalf("MaybeSummarize failed: %v", err)
	}

	if len(provider.requests) != 1 {
		t.Fatalf("provider called %d times, want 1", len(provider.requests))
	}
	req := provider.requests[0]
	if !strings.Contains(req.SystemPrompt, "summarizes conversations") {
		t.Fatalf("system prompt = %q", req.SystemPrompt)
	}
	if req.UseTools {
		t.Fatal("summarization must not offer tools")
	}

	summaries, _ := store.ListSummaries(context.Background(), created.ID)
	if len(summaries) != 1 || summaries[0].Content != "agent opened firefox and logged in" {
		t.Fatalf("summaries = %+v", summaries)
	}

	// 12 live - 3 kept = 9 linked to the summary.
	live, _ := store.ListMessages(context.Background(), created.ID, true)
	if len(live) != 3 {
		t.Fatalf("got %d live messages, want 3", len(live))
	}
	all, _ := store.ListMessages(context.Background(), created.ID, false)
	linked := 0
	for _, m := range all {
		if m.SummaryID == summaries[0].ID {
			linked++
		}
	}
	if linked != 9 {
		t.Fatalf("linked %d messages, want 9", linked)
	}
}

func TestSummarizerChainsSummaries(t *testing.T) {
	s, store, provider, created := newSummarizerFixture(t, 5, 2)
	provider.responses = []*llm.Response{
		{Blocks: []message.Block{message.Text("first summary")}},
		{Blocks: []message.Block{message.Text("second summary")}},
	}

	addTurns(t, store, created.ID, 6)
	if err := s.MaybeSummarize(context.Background(), created); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	addTurns(t, store, created.ID, 6)
	if err := s.MaybeSummarize(context.Background(), created); err != nil {
		t.Fatalf("second pass: %v", err)
	}

	summaries, _ := store.ListSummaries(context.Background(), created.ID)
	if len(summaries) != 2 {
		t.Fatalf("got %d summaries, want 2", len(summaries))
	}
	if summaries[1].ParentID != summaries[0].ID {
		t.Fatalf("second summary parent = %q, want %q", summaries[1].ParentID, summaries[0].ID)
	}

	// The second request carries the first summary forward.
	second := provider.requests[1]
	text := message.PlainText(second.Messages[0].Content)
	if !strings.Contains(text, "first summary") {
		t.Fatalf("prior summary not included: %q", text)
	}

	latest, err := s.Latest(context.Background(), created.ID)
	if err != nil || latest == nil || latest.Content != "second summary" {
		t.Fatalf("Latest = %+v, %v", latest, err)
	}
}
