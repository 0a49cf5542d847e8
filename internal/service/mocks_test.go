package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bytebot-ai/bytebot/internal/domain"
	"github.com/bytebot-ai/bytebot/internal/domain/computer"
	"github.com/bytebot-ai/bytebot/internal/domain/file"
	"github.com/bytebot-ai/bytebot/internal/domain/message"
	"github.com/bytebot-ai/bytebot/internal/domain/summary"
	"github.com/bytebot-ai/bytebot/internal/domain/task"
	"github.com/bytebot-ai/bytebot/internal/port/database"
	"github.com/bytebot-ai/bytebot/internal/port/llm"
	"github.com/bytebot-ai/bytebot/internal/port/messagequeue"
)

// mockStore is an in-memory database.Store.
type mockStore struct {
	mu        sync.Mutex
	seq       int
	tasks     map[string]*task.Task
	messages  map[string][]message.Message
	summaries map[string][]summary.Summary
	files     map[string][]file.File
}

func newMockStore() *mockStore {
	return &mockStore{
		tasks:     map[string]*task.Task{},
		messages:  map[string][]message.Message{},
		summaries: map[string][]summary.Summary{},
		files:     map[string][]file.File{},
	}
}

func (s *mockStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *mockStore) CreateTask(_ context.Context, req task.CreateRequest) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	t := &task.Task{
		ID:           s.nextID("task"),
		Description:  req.Description,
		Type:         req.Type,
		Status:       task.StatusPending,
		Priority:     req.Priority,
		Control:      task.RoleAssistant,
		CreatedBy:    req.CreatedBy,
		Model:        req.Model,
		ScheduledFor: req.ScheduledFor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.tasks[t.ID] = t
	clone := *t
	return &clone, nil
}

func (s *mockStore) GetTask(_ context.Context, id string) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
	}
	clone := *t
	return &clone, nil
}

func (s *mockStore) ListTasks(_ context.Context, f database.TaskFilter) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []task.Task
	for _, t := range s.tasks {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *mockStore) UpdateTaskStatus(_ context.Context, id string, upd database.StatusUpdate) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
	}
	t.Status = upd.Status
	if upd.Status == task.StatusRunning {
		t.ExecutedAt = time.Now()
	}
	if upd.Status.Terminal() {
		t.CompletedAt = time.Now()
	}
	if upd.Error != "" {
		t.Error = upd.Error
	}
	if upd.Result != nil {
		t.Result = json.RawMessage(upd.Result)
	}
	t.UpdatedAt = time.Now()
	clone := *t
	return &clone, nil
}

func (s *mockStore) UpdateTaskControl(_ context.Context, id string, control task.Role) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
	}
	t.Control = control
	clone := *t
	return &clone, nil
}

func (s *mockStore) MarkTaskQueued(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
	}
	t.QueuedAt = at
	return nil
}

func (s *mockStore) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
	}
	delete(s.tasks, id)
	delete(s.messages, id)
	delete(s.summaries, id)
	delete(s.files, id)
	return nil
}

func (s *mockStore) DeleteTasks(_ context.Context, status task.Status) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.tasks {
		if status != "" && t.Status != status {
			continue
		}
		delete(s.tasks, id)
		n++
	}
	return n, nil
}

func (s *mockStore) DueScheduledTasks(_ context.Context, now time.Time) ([]task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []task.Task
	for _, t := range s.tasks {
		if t.Type != task.TypeScheduled || t.Status != task.StatusPending {
			continue
		}
		if !t.QueuedAt.IsZero() || t.ScheduledFor.After(now) {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := task.PriorityRank(out[i].Priority), task.PriorityRank(out[j].Priority)
		if ri != rj {
			return ri > rj
		}
		return out[i].ScheduledFor.Before(out[j].ScheduledFor)
	})
	return out, nil
}

func (s *mockStore) RunningTaskID(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tasks {
		if t.Status == task.StatusRunning {
			return id, nil
		}
	}
	return "", nil
}

func (s *mockStore) AddMessage(_ context.Context, taskID string, role task.Role, content []message.Block) (*message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return nil, fmt.Errorf("%w: task %s", domain.ErrNotFound, taskID)
	}
	m := message.Message{
		ID:        s.nextID("msg"),
		TaskID:    taskID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	s.messages[taskID] = append(s.messages[taskID], m)
	return &m, nil
}

func (s *mockStore) ListMessages(_ context.Context, taskID string, excludeSummarized bool) ([]message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []message.Message
	for _, m := range s.messages[taskID] {
		if excludeSummarized && m.SummaryID != "" {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *mockStore) LinkMessagesToSummary(_ context.Context, messageIDs []string, summaryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := map[string]bool{}
	for _, id := range messageIDs {
		ids[id] = true
	}
	for taskID, msgs := range s.messages {
		for i := range msgs {
			if ids[msgs[i].ID] {
				msgs[i].SummaryID = summaryID
			}
		}
		s.messages[taskID] = msgs
	}
	return nil
}

func (s *mockStore) CreateSummary(_ context.Context, taskID, content, parentID string) (*summary.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sm := summary.Summary{
		ID:        s.nextID("sum"),
		TaskID:    taskID,
		Content:   content,
		ParentID:  parentID,
		CreatedAt: time.Now(),
	}
	s.summaries[taskID] = append(s.summaries[taskID], sm)
	return &sm, nil
}

func (s *mockStore) ListSummaries(_ context.Context, taskID string) ([]summary.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]summary.Summary(nil), s.summaries[taskID]...), nil
}

func (s *mockStore) AddFile(_ context.Context, taskID string, req file.CreateRequest) (*file.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := file.File{
		ID:        s.nextID("file"),
		TaskID:    taskID,
		Name:      req.Name,
		MediaType: req.MediaType,
		Size:      req.Size,
		Data:      req.Data,
		CreatedAt: time.Now(),
	}
	s.files[taskID] = append(s.files[taskID], f)
	return &f, nil
}

func (s *mockStore) ListFiles(_ context.Context, taskID string) ([]file.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]file.File(nil), s.files[taskID]...), nil
}

// mockQueue records published messages.
type mockQueue struct {
	mu        sync.Mutex
	published []publishedMsg
}

type publishedMsg struct {
	subject string
	data    []byte
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, publishedMsg{subject: subject, data: data})
	return nil
}

func (q *mockQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }
func (q *mockQueue) count(subject string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, m := range q.published {
		if m.subject == subject {
			n++
		}
	}
	return n
}

// mockBroadcaster records WebSocket events.
type mockBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *mockBroadcaster) BroadcastEvent(_ context.Context, eventType string, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, eventType)
}

// mockProvider replays scripted responses in order.
type mockProvider struct {
	mu        sync.Mutex
	name      string
	responses []*llm.Response
	requests  []llm.Request
	err       error
	block     chan struct{} // when set, GenerateMessage waits for it or ctx
}

func (p *mockProvider) Name() string {
	if p.name == "" {
		return "anthropic"
	}
	return p.name
}

func (p *mockProvider) Models() []string { return []string{"test-model"} }

func (p *mockProvider) SupportsVision() bool { return true }

func (p *mockProvider) GenerateMessage(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if p.block != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.block:
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return &llm.Response{Blocks: []message.Block{message.Text("done")}}, nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

// mockDriver records executed actions and returns canned results.
type mockDriver struct {
	mu      sync.Mutex
	actions []computer.Action
	err     error
}

func (d *mockDriver) Execute(_ context.Context, a computer.Action) (*computer.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.actions = append(d.actions, a)
	if d.err != nil {
		return nil, d.err
	}
	switch a.Action {
	case computer.KindScreenshot:
		return &computer.Result{Success: true, Type: "image", Data: "ZnJhbWU=", MediaType: "image/png"}, nil
	case computer.KindCursorPosition:
		return &computer.Result{Success: true, X: 10, Y: 20}, nil
	default:
		return &computer.Result{Success: true}, nil
	}
}

func (d *mockDriver) executed() []computer.Action {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]computer.Action(nil), d.actions...)
}

// mockCache is an in-memory frame cache.
type mockCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMockCache() *mockCache { return &mockCache{items: map[string][]byte{}} }

func (c *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok, nil
}

func (c *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	return nil
}

func (c *mockCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}
