// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/bytebot-ai/bytebot/internal/domain/file"
	"github.com/bytebot-ai/bytebot/internal/domain/message"
	"github.com/bytebot-ai/bytebot/internal/domain/summary"
	"github.com/bytebot-ai/bytebot/internal/domain/task"
)

// TaskFilter narrows ListTasks results.
type TaskFilter struct {
	Status task.Status // zero value = all statuses
	Limit  int
	Offset int
}

// StatusUpdate carries the fields touched by a status transition.
type StatusUpdate struct {
	Status task.Status
	Error  string
	Result []byte
}

// Store is the port interface for persistence.
type Store interface {
	// Tasks
	CreateTask(ctx context.Context, req task.CreateRequest) (*task.Task, error)
	GetTask(ctx context.Context, id string) (*task.Task, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]task.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, upd StatusUpdate) (*task.Task, error)
	UpdateTaskControl(ctx context.Context, id string, control task.Role) (*task.Task, error)
	MarkTaskQueued(ctx context.Context, id string, at time.Time) error
	DeleteTask(ctx context.Context, id string) error
	DeleteTasks(ctx context.Context, status task.Status) (int64, error)
	DueScheduledTasks(ctx context.Context, now time.Time) ([]task.Task, error)
	RunningTaskID(ctx context.Context) (string, error)

	// Messages
	AddMessage(ctx context.Context, taskID string, role task.Role, content []message.Block) (*message.Message, error)
	ListMessages(ctx context.Context, taskID string, excludeSummarized bool) ([]message.Message, error)
	LinkMessagesToSummary(ctx context.Context, messageIDs []string, summaryID string) error

	// Summaries
	CreateSummary(ctx context.Context, taskID, content, parentID string) (*summary.Summary, error)
	ListSummaries(ctx context.Context, taskID string) ([]summary.Summary, error)

	// Files
	AddFile(ctx context.Context, taskID string, req file.CreateRequest) (*file.File, error)
	ListFiles(ctx context.Context, taskID string) ([]file.File, error)
}
