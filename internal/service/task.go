// Package service implements the business logic of the agent: task
// lifecycle, the processing loop, scheduling, and summarization.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bytebot-ai/bytebot/internal/domain"
	"github.com/bytebot-ai/bytebot/internal/domain/file"
	"github.com/bytebot-ai/bytebot/internal/domain/message"
	"github.com/bytebot-ai/bytebot/internal/domain/task"
	"github.com/bytebot-ai/bytebot/internal/port/broadcast"
	"github.com/bytebot-ai/bytebot/internal/port/database"
	"github.com/bytebot-ai/bytebot/internal/port/messagequeue"
)

// TaskService handles task lifecycle: persistence, NATS events, and
// WebSocket broadcasts.
type TaskService struct {
	store       database.Store
	queue       messagequeue.Queue
	broadcaster broadcast.Broadcaster
}

// NewTaskService creates a new TaskService.
func NewTaskService(store database.Store, queue messagequeue.Queue, b broadcast.Broadcaster) *TaskService {
	return &TaskService{store: store, queue: queue, broadcaster: b}
}

// Create validates and persists a task, then announces it.
func (s *TaskService) Create(ctx context.Context, req task.CreateRequest) (*task.Task, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	t, err := s.store.CreateTask(ctx, req)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, messagequeue.SubjectTaskCreated, messagequeue.TaskCreatedPayload{
		TaskID:      t.ID,
		Description: t.Description,
		Priority:    string(t.Priority),
		Type:        string(t.Type),
	})
	return t, nil
}

// Get returns a task by ID.
func (s *TaskService) Get(ctx context.Context, id string) (*task.Task, error) {
	return s.store.GetTask(ctx, id)
}

// List returns tasks, optionally filtered by status.
func (s *TaskService) List(ctx context.Context, f database.TaskFilter) ([]task.Task, error) {
	return s.store.ListTasks(ctx, f)
}

// Delete removes a task and its messages, summaries, and files.
func (s *TaskService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteTask(ctx, id)
}

// DeleteAll removes every task matching the optional status filter and
// returns the number removed.
func (s *TaskService) DeleteAll(ctx context.Context, status task.Status) (int64, error) {
	return s.store.DeleteTasks(ctx, status)
}

// UpdateStatus transitions a task and announces the change. Illegal
// transitions surface as ErrConflict.
func (s *TaskService) UpdateStatus(ctx context.Context, id string, upd database.StatusUpdate) (*task.Task, error) {
	current, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransition(upd.Status) {
		return nil, fmt.Errorf("%w: cannot transition %s from %s to %s",
			domain.ErrConflict, id, current.Status, upd.Status)
	}

	t, err := s.store.UpdateTaskStatus(ctx, id, upd)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, messagequeue.SubjectTaskStatus, messagequeue.TaskStatusPayload{
		TaskID: t.ID,
		Status: string(t.Status),
		Error:  t.Error,
	})
	return t, nil
}

// AddMessage stores a conversation turn and announces it.
func (s *TaskService) AddMessage(ctx context.Context, taskID string, role task.Role, content []message.Block) (*message.Message, error) {
	m, err := s.store.AddMessage(ctx, taskID, role, content)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, messagequeue.SubjectMessageCreated, messagequeue.MessageCreatedPayload{
		TaskID:    m.TaskID,
		MessageID: m.ID,
		Role:      string(m.Role),
	})
	return m, nil
}

// ListMessages returns the conversation for a task in chronological order.
func (s *TaskService) ListMessages(ctx context.Context, taskID string) ([]message.Message, error) {
	return s.store.ListMessages(ctx, taskID, false)
}

// AddUserMessage records guided input typed by a human during takeover.
// The task must be under USER control.
func (s *TaskService) AddUserMessage(ctx context.Context, taskID, text string) (*message.Message, error) {
	t, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Control != task.RoleUser {
		return nil, fmt.Errorf("%w: task %s is not under user control", domain.ErrConflict, taskID)
	}
	if text == "" {
		return nil, fmt.Errorf("%w: message text is required", domain.ErrValidation)
	}
	return s.AddMessage(ctx, taskID, task.RoleUser, []message.Block{message.Text(text)})
}

// Takeover hands desktop control to the human. A running task keeps its
// status; the processor notices the control flip and pauses.
func (s *TaskService) Takeover(ctx context.Context, taskID string) (*task.Task, error) {
	return s.store.UpdateTaskControl(ctx, taskID, task.RoleUser)
}

// Resume hands control back to the assistant.
func (s *TaskService) Resume(ctx context.Context, taskID string) (*task.Task, error) {
	return s.store.UpdateTaskControl(ctx, taskID, task.RoleAssistant)
}

// AddFile attaches an uploaded file to a task.
func (s *TaskService) AddFile(ctx context.Context, taskID string, req file.CreateRequest) (*file.File, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.store.AddFile(ctx, taskID, req)
}

// ListFiles returns a task's attachments without their payloads.
func (s *TaskService) ListFiles(ctx context.Context, taskID string) ([]file.File, error) {
	return s.store.ListFiles(ctx, taskID)
}

// RunningTaskID returns the ID of the currently RUNNING task, if any.
func (s *TaskService) RunningTaskID(ctx context.Context) (string, error) {
	return s.store.RunningTaskID(ctx)
}

// MarkQueued stamps queued_at on a scheduled task claimed by the poller.
func (s *TaskService) MarkQueued(ctx context.Context, taskID string, at time.Time) error {
	if err := s.store.MarkTaskQueued(ctx, taskID, at); err != nil {
		return err
	}
	s.publish(ctx, messagequeue.SubjectTaskQueued, messagequeue.TaskQueuedPayload{
		TaskID:   taskID,
		QueuedAt: at.UTC().Format(time.RFC3339),
	})
	return nil
}

// publish sends an event to NATS and mirrors it on the WebSocket hub.
// Failures are logged, never fatal: the database is the source of truth.
func (s *TaskService) publish(ctx context.Context, subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal event payload", "subject", subject, "error", err)
		return
	}
	if s.queue != nil {
		if err := s.queue.Publish(ctx, subject, data); err != nil {
			slog.Error("publish event", "subject", subject, "error", err)
		}
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastEvent(ctx, subject, json.RawMessage(data))
	}
}
