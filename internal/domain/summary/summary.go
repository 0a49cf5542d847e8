// Package summary defines conversation summaries for long-running tasks.
package summary

import "time"

// Summary condenses a span of task messages so the conversation sent to
// the provider stays within the context window. Summaries chain:
// ParentID points at the earlier summary this one absorbed, so only the
// newest summary of a task is live.
type Summary struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Content   string    `json:"content"`
	ParentID  string    `json:"parent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
