// Package task defines the Task domain entity and its lifecycle rules.
package task

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bytebot-ai/bytebot/internal/domain"
)

// Status represents the current state of a task.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusRunning     Status = "RUNNING"
	StatusNeedsHelp   Status = "NEEDS_HELP"
	StatusNeedsReview Status = "NEEDS_REVIEW"
	StatusCompleted   Status = "COMPLETED"
	StatusCancelled   Status = "CANCELLED"
	StatusFailed      Status = "FAILED"
)

// Priority orders tasks in the scheduler queue.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Type distinguishes tasks that run immediately from scheduled ones.
type Type string

const (
	TypeImmediate Type = "IMMEDIATE"
	TypeScheduled Type = "SCHEDULED"
)

// Role identifies which side of the conversation an actor is on.
// It doubles as the task control flag: a task under USER control is
// paused for manual takeover.
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
)

// ModelConfig selects the LLM used to drive a task.
type ModelConfig struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`
	Title    string `json:"title,omitempty"`
}

// DefaultModel returns the model used when a create request names none.
func DefaultModel() ModelConfig {
	return ModelConfig{
		Provider: "anthropic",
		Name:     "claude-opus-4-1-20250805",
		Title:    "Claude Opus 4.1",
	}
}

// Task is a unit of work requested of the agent, tracked through a
// status lifecycle.
type Task struct {
	ID           string          `json:"id"`
	Description  string          `json:"description"`
	Type         Type            `json:"type"`
	Status       Status          `json:"status"`
	Priority     Priority        `json:"priority"`
	Control      Role            `json:"control"`
	CreatedBy    Role            `json:"created_by"`
	Model        ModelConfig     `json:"model"`
	ScheduledFor time.Time       `json:"scheduled_for,omitzero"`
	QueuedAt     time.Time       `json:"queued_at,omitzero"`
	ExecutedAt   time.Time       `json:"executed_at,omitzero"`
	CompletedAt  time.Time       `json:"completed_at,omitzero"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Error        string          `json:"error,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
}

// CreateRequest holds the fields needed to create a new task.
type CreateRequest struct {
	Description  string      `json:"description"`
	Priority     Priority    `json:"priority,omitempty"`
	Type         Type        `json:"type,omitempty"`
	Model        ModelConfig `json:"model,omitzero"`
	ScheduledFor time.Time   `json:"scheduled_for,omitzero"`
	CreatedBy    Role        `json:"created_by,omitempty"`
}

// Normalize fills defaults and validates the request.
func (r *CreateRequest) Normalize() error {
	if r.Description == "" {
		return fmt.Errorf("%w: description is required", domain.ErrValidation)
	}
	if r.Priority == "" {
		r.Priority = PriorityMedium
	}
	if r.Type == "" {
		r.Type = TypeImmediate
	}
	if r.Type == TypeScheduled && r.ScheduledFor.IsZero() {
		return fmt.Errorf("%w: scheduled task requires scheduled_for", domain.ErrValidation)
	}
	if r.Model.Provider == "" {
		r.Model = DefaultModel()
	}
	if r.CreatedBy == "" {
		r.CreatedBy = RoleUser
	}
	switch r.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
	default:
		return fmt.Errorf("%w: unknown priority %q", domain.ErrValidation, r.Priority)
	}
	return nil
}

// Terminal reports whether a status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a task may move from s to next.
// Any non-terminal status may be cancelled.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return false
	}
	if next == StatusCancelled {
		return !s.Terminal()
	}
	switch s {
	case StatusPending:
		return next == StatusRunning
	case StatusRunning:
		switch next {
		case StatusCompleted, StatusFailed, StatusNeedsHelp, StatusNeedsReview:
			return true
		}
	case StatusNeedsHelp, StatusNeedsReview:
		return next == StatusRunning
	}
	return false
}

// PriorityRank maps a priority to a sortable weight (higher runs first).
func PriorityRank(p Priority) int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}
