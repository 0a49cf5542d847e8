// Package computer defines the desktop automation action vocabulary
// shared by the agent service and the bytebotd daemon.
package computer

import (
	"encoding/json"
	"fmt"

	"github.com/bytebot-ai/bytebot/internal/domain"
)

// Kind discriminates the action union (the JSON "action" field).
type Kind string

const (
	KindMoveMouse      Kind = "move_mouse"
	KindTraceMouse     Kind = "trace_mouse"
	KindClickMouse     Kind = "click_mouse"
	KindPressMouse     Kind = "press_mouse"
	KindDragMouse      Kind = "drag_mouse"
	KindScroll         Kind = "scroll"
	KindTypeKeys       Kind = "type_keys"
	KindPressKeys      Kind = "press_keys"
	KindTypeText       Kind = "type_text"
	KindPasteText      Kind = "paste_text"
	KindWait           Kind = "wait"
	KindScreenshot     Kind = "screenshot"
	KindCursorPosition Kind = "cursor_position"
	KindApplication    Kind = "application"
	KindWriteFile      Kind = "write_file"
	KindReadFile       Kind = "read_file"
)

// Button identifies a mouse button.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// Press distinguishes key/button down from up.
type Press string

const (
	PressDown Press = "down"
	PressUp   Press = "up"
)

// Coordinates is a screen position in pixels.
type Coordinates struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Applications the daemon knows how to launch or focus.
var Applications = []string{"firefox", "1password", "thunderbird", "vscode", "terminal", "desktop", "directory"}

// Action is the full action union. Only the fields relevant to Kind are set.
type Action struct {
	Action Kind `json:"action"`

	Coordinates *Coordinates  `json:"coordinates,omitempty"`
	Path        []Coordinates `json:"path,omitempty"`
	Button      Button        `json:"button,omitempty"`
	Press       Press         `json:"press,omitempty"`
	HoldKeys    []string      `json:"holdKeys,omitempty"`
	ClickCount  int           `json:"clickCount,omitempty"`
	Direction   string        `json:"direction,omitempty"`
	ScrollCount int           `json:"scrollCount,omitempty"`
	Keys        []string      `json:"keys,omitempty"`
	Text        string        `json:"text,omitempty"`
	DelayMS     int           `json:"delay,omitempty"`
	Sensitive   bool          `json:"sensitive,omitempty"`
	DurationMS  int           `json:"duration,omitempty"`
	Application string        `json:"application,omitempty"`
	FilePath    string        `json:"-"`
	Data        string        `json:"data,omitempty"`
}

// The wire key "path" is overloaded: mouse actions carry an array of
// coordinates, file actions carry a string. Custom (un)marshalling
// dispatches on the JSON shape.

type actionAlias Action

type actionWire struct {
	actionAlias
	RawPath json.RawMessage `json:"path,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Action) UnmarshalJSON(data []byte) error {
	var w actionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*a = Action(w.actionAlias)
	if len(w.RawPath) == 0 {
		return nil
	}
	if w.RawPath[0] == '"' {
		return json.Unmarshal(w.RawPath, &a.FilePath)
	}
	return json.Unmarshal(w.RawPath, &a.Path)
}

// MarshalJSON implements json.Marshaler.
func (a Action) MarshalJSON() ([]byte, error) {
	w := actionWire{actionAlias: actionAlias(a)}
	switch {
	case a.FilePath != "":
		raw, err := json.Marshal(a.FilePath)
		if err != nil {
			return nil, err
		}
		w.RawPath = raw
	case len(a.Path) > 0:
		raw, err := json.Marshal(a.Path)
		if err != nil {
			return nil, err
		}
		w.RawPath = raw
	}
	w.Path = nil
	return json.Marshal(w)
}

// Result is what the daemon returns for an action. Screenshot and
// read_file carry base64 data; cursor_position carries coordinates.
type Result struct {
	Success   bool   `json:"success"`
	Type      string `json:"type,omitempty"` // "image" for screenshots
	Data      string `json:"data,omitempty"`
	MediaType string `json:"media_type,omitempty"`
	X         int    `json:"x,omitempty"`
	Y         int    `json:"y,omitempty"`
}

// Parse decodes and validates a raw action payload.
func Parse(data []byte) (Action, error) {
	var a Action
	if err := json.Unmarshal(data, &a); err != nil {
		return a, fmt.Errorf("%w: malformed action: %v", domain.ErrValidation, err)
	}
	if err := a.Validate(); err != nil {
		return a, err
	}
	return a, nil
}

// Validate checks required fields per action kind and fills defaults.
func (a *Action) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{domain.ErrValidation}, args...)...)
	}

	switch a.Action {
	case KindMoveMouse:
		if a.Coordinates == nil {
			return invalid("move_mouse requires coordinates")
		}
	case KindTraceMouse, KindDragMouse:
		if len(a.Path) == 0 {
			return invalid("%s requires a non-empty path", a.Action)
		}
		if a.Action == KindDragMouse && a.Button == "" {
			a.Button = ButtonLeft
		}
	case KindClickMouse:
		if a.Button == "" {
			a.Button = ButtonLeft
		}
		if a.ClickCount <= 0 {
			a.ClickCount = 1
		}
	case KindPressMouse:
		if a.Press != PressDown && a.Press != PressUp {
			return invalid("press_mouse requires press up or down")
		}
		if a.Button == "" {
			a.Button = ButtonLeft
		}
	case KindScroll:
		switch a.Direction {
		case "up", "down", "left", "right":
		default:
			return invalid("scroll requires direction up/down/left/right")
		}
		if a.ScrollCount <= 0 {
			a.ScrollCount = 1
		}
	case KindTypeKeys:
		if len(a.Keys) == 0 {
			return invalid("type_keys requires keys")
		}
	case KindPressKeys:
		if len(a.Keys) == 0 {
			return invalid("press_keys requires keys")
		}
		if a.Press != PressDown && a.Press != PressUp {
			return invalid("press_keys requires press up or down")
		}
	case KindTypeText, KindPasteText:
		if a.Text == "" {
			return invalid("%s requires text", a.Action)
		}
	case KindWait:
		if a.DurationMS <= 0 {
			return invalid("wait requires a positive duration")
		}
	case KindScreenshot, KindCursorPosition:
		// no parameters
	case KindApplication:
		if a.Application == "" {
			return invalid("application requires an application name")
		}
	case KindWriteFile:
		if a.FilePath == "" || a.Data == "" {
			return invalid("write_file requires path and data")
		}
	case KindReadFile:
		if a.FilePath == "" {
			return invalid("read_file requires path")
		}
	default:
		return invalid("unsupported action %q", a.Action)
	}

	switch a.Button {
	case "", ButtonLeft, ButtonRight, ButtonMiddle:
	default:
		return invalid("unknown button %q", a.Button)
	}
	return nil
}

// FromToolUse maps an LLM tool name + input to an Action.
// Tool names carry the "computer_" prefix; the action name is the rest.
func FromToolUse(toolName string, input json.RawMessage) (Action, error) {
	const prefix = "computer_"
	if len(toolName) <= len(prefix) || toolName[:len(prefix)] != prefix {
		return Action{}, fmt.Errorf("%w: not a computer tool: %s", domain.ErrValidation, toolName)
	}
	payload := map[string]any{}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &payload); err != nil {
			return Action{}, fmt.Errorf("%w: malformed tool input: %v", domain.ErrValidation, err)
		}
	}
	payload["action"] = toolName[len(prefix):]
	raw, err := json.Marshal(payload)
	if err != nil {
		return Action{}, fmt.Errorf("encode action: %w", err)
	}
	return Parse(raw)
}
