// Package file defines task file attachments.
package file

import (
	"fmt"
	"time"

	"github.com/bytebot-ai/bytebot/internal/domain"
)

// MaxSize caps attachment size (decoded bytes).
const MaxSize = 16 << 20 // 16 MB

// File is an attachment uploaded with a task or produced by the agent.
// Data is base64 encoded.
type File struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Name      string    `json:"name"`
	MediaType string    `json:"type"`
	Size      int64     `json:"size"`
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateRequest holds the fields needed to attach a file to a task.
type CreateRequest struct {
	Name      string `json:"name"`
	MediaType string `json:"type"`
	Size      int64  `json:"size"`
	Data      string `json:"data"`
}

// Validate checks the attachment request.
func (r *CreateRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: file name is required", domain.ErrValidation)
	}
	if r.Data == "" {
		return fmt.Errorf("%w: file data is required", domain.ErrValidation)
	}
	if r.Size > MaxSize {
		return fmt.Errorf("%w: file exceeds %d bytes", domain.ErrValidation, MaxSize)
	}
	if r.MediaType == "" {
		r.MediaType = "application/octet-stream"
	}
	return nil
}
