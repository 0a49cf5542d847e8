package messagequeue

// TaskCreatedPayload is the schema for tasks.created messages.
type TaskCreatedPayload struct {
	TaskID      string `json:"task_id"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Type        string `json:"type"`
}

// TaskStatusPayload is the schema for tasks.status messages.
type TaskStatusPayload struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// TaskQueuedPayload is the schema for tasks.queued messages.
type TaskQueuedPayload struct {
	TaskID   string `json:"task_id"`
	QueuedAt string `json:"queued_at"`
}

// MessageCreatedPayload is the schema for messages.created messages.
// Content is omitted; consumers fetch it over the API.
type MessageCreatedPayload struct {
	TaskID    string `json:"task_id"`
	MessageID string `json:"message_id"`
	Role      string `json:"role"`
}

// FrameUpdatedPayload is the schema for frames.updated messages.
type FrameUpdatedPayload struct {
	TaskID string `json:"task_id"`
}
