// Package message defines conversation messages and their content blocks.
//
// Content follows the Anthropic block structure: a message carries an
// ordered list of blocks, each discriminated by a "type" field. A single
// Block struct covers the whole union; only the fields for its type are
// populated.
package message

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/bytebot-ai/bytebot/internal/domain/task"
)

// Block type discriminators.
const (
	TypeText             = "text"
	TypeImage            = "image"
	TypeDocument         = "document"
	TypeToolUse          = "tool_use"
	TypeToolResult       = "tool_result"
	TypeThinking         = "thinking"
	TypeRedactedThinking = "redacted_thinking"
	TypeUserAction       = "user_action"
)

// Agent-level tool names that are handled by the processor itself rather
// than dispatched to the desktop daemon.
const (
	ToolSetTaskStatus = "set_task_status"
	ToolCreateTask    = "create_task"
)

// ComputerToolPrefix marks tool_use blocks dispatched to the desktop daemon.
const ComputerToolPrefix = "computer_"

// Source holds base64 payloads for image and document blocks.
type Source struct {
	Type      string `json:"type"`       // always "base64"
	MediaType string `json:"media_type"` // e.g. "image/png"
	Data      string `json:"data"`
}

// Block is one element of a message's content.
type Block struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image / document
	Source *Source `json:"source,omitempty"`
	Name   string  `json:"name,omitempty"`
	Size   int64   `json:"size,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// redacted_thinking
	Data string `json:"data,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// tool_result and user_action nest further blocks
	Content []Block `json:"content,omitempty"`
}

// Message is a persisted conversation turn belonging to a task.
type Message struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	Role      task.Role `json:"role"`
	Content   []Block   `json:"content"`
	SummaryID string    `json:"summary_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Text returns a text block.
func Text(text string) Block {
	return Block{Type: TypeText, Text: text}
}

// ImagePNG returns an image block wrapping a base64 PNG.
func ImagePNG(data string) Block {
	return Block{Type: TypeImage, Source: &Source{Type: "base64", MediaType: "image/png", Data: data}}
}

// ToolUse returns a tool_use block.
func ToolUse(id, name string, input json.RawMessage) Block {
	return Block{Type: TypeToolUse, ID: id, Name: name, Input: input}
}

// ToolResult returns a tool_result block for the given tool_use ID.
func ToolResult(toolUseID string, content []Block, isError bool) Block {
	return Block{Type: TypeToolResult, ToolUseID: toolUseID, Content: content, IsError: isError}
}

// IsToolUse reports whether the block invokes a tool.
func (b Block) IsToolUse() bool { return b.Type == TypeToolUse }

// IsComputerToolUse reports whether the block invokes a desktop tool.
func (b Block) IsComputerToolUse() bool {
	return b.Type == TypeToolUse && strings.HasPrefix(b.Name, ComputerToolPrefix)
}

// IsSetTaskStatus reports whether the block is the status-change tool.
func (b Block) IsSetTaskStatus() bool {
	return b.Type == TypeToolUse && b.Name == ToolSetTaskStatus
}

// IsCreateTask reports whether the block is the subtask-creation tool.
func (b Block) IsCreateTask() bool {
	return b.Type == TypeToolUse && b.Name == ToolCreateTask
}

// InputMap decodes the tool_use input into a generic map.
// Returns an empty map for absent or malformed input.
func (b Block) InputMap() map[string]any {
	m := map[string]any{}
	if len(b.Input) > 0 {
		_ = json.Unmarshal(b.Input, &m)
	}
	return m
}

// PlainText concatenates the text of all top-level text blocks.
func PlainText(blocks []Block) string {
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == TypeText && b.Text != "" {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}
