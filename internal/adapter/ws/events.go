package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventTaskCreated    = "tasks.created"
	EventTaskStatus     = "tasks.status"
	EventMessageCreated = "messages.created"
	EventFrameUpdated   = "frames.updated"
)

// TaskCreatedEvent is broadcast when a new task enters the queue.
type TaskCreatedEvent struct {
	TaskID      string `json:"task_id"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Type        string `json:"type"`
}

// TaskStatusEvent is broadcast when a task's status changes.
type TaskStatusEvent struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// MessageCreatedEvent is broadcast when a conversation message is stored.
type MessageCreatedEvent struct {
	TaskID    string `json:"task_id"`
	MessageID string `json:"message_id"`
	Role      string `json:"role"`
}

// FrameUpdatedEvent is broadcast when a fresh desktop screenshot is
// cached for a task. Clients fetch the frame over the API.
type FrameUpdatedEvent struct {
	TaskID string `json:"task_id"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
