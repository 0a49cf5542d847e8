package agent

// Tool describes one tool offered to the model. InputSchema is a JSON
// Schema fragment; each provider adapter converts it to its own wire
// format.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

func obj(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var coordinatesSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"x": map[string]any{"type": "integer", "description": "X coordinate in pixels"},
		"y": map[string]any{"type": "integer", "description": "Y coordinate in pixels"},
	},
	"required": []string{"x", "y"},
}

var pathSchema = map[string]any{
	"type":        "array",
	"items":       coordinatesSchema,
	"description": "Path of coordinates",
}

var holdKeysSchema = map[string]any{
	"type":        "array",
	"items":       map[string]any{"type": "string"},
	"description": "Keys to hold during the action",
}

var buttonSchema = map[string]any{
	"type": "string", "enum": []string{"left", "right", "middle"}, "default": "left",
}

// Tools is the full catalog offered to the model while a task runs.
var Tools = []Tool{
	{
		Name:        "computer_screenshot",
		Description: "Take a screenshot of the current desktop to see what's displayed",
		InputSchema: obj(map[string]any{}),
	},
	{
		Name:        "computer_click_mouse",
		Description: "Click the mouse at specific coordinates on the screen",
		InputSchema: obj(map[string]any{
			"coordinates": coordinatesSchema,
			"button":      buttonSchema,
			"clickCount":  map[string]any{"type": "integer", "default": 1, "description": "Number of clicks (1=single, 2=double)"},
			"holdKeys":    holdKeysSchema,
		}, "coordinates"),
	},
	{
		Name:        "computer_move_mouse",
		Description: "Move the mouse to specific coordinates without clicking",
		InputSchema: obj(map[string]any{"coordinates": coordinatesSchema}, "coordinates"),
	},
	{
		Name:        "computer_press_mouse",
		Description: "Press or release a mouse button at the current position or specific coordinates",
		InputSchema: obj(map[string]any{
			"coordinates": coordinatesSchema,
			"button":      buttonSchema,
			"press":       map[string]any{"type": "string", "enum": []string{"down", "up"}},
		}, "press"),
	},
	{
		Name:        "computer_drag_mouse",
		Description: "Drag the mouse along a path while holding a button",
		InputSchema: obj(map[string]any{
			"path":     pathSchema,
			"button":   buttonSchema,
			"holdKeys": holdKeysSchema,
		}, "path"),
	},
	{
		Name:        "computer_trace_mouse",
		Description: "Move the mouse along a path without clicking (for hovering)",
		InputSchema: obj(map[string]any{
			"path":     pathSchema,
			"holdKeys": holdKeysSchema,
		}, "path"),
	},
	{
		Name:        "computer_scroll",
		Description: "Scroll at specific coordinates or the current mouse position",
		InputSchema: obj(map[string]any{
			"coordinates": coordinatesSchema,
			"direction":   map[string]any{"type": "string", "enum": []string{"up", "down", "left", "right"}},
			"scrollCount": map[string]any{"type": "integer", "default": 3, "description": "Number of scroll steps"},
			"holdKeys":    holdKeysSchema,
		}, "direction"),
	},
	{
		Name:        "computer_type_text",
		Description: "Type natural text on the keyboard (for regular text input)",
		InputSchema: obj(map[string]any{
			"text":      map[string]any{"type": "string"},
			"delay":     map[string]any{"type": "integer", "description": "Delay between characters in milliseconds"},
			"sensitive": map[string]any{"type": "boolean", "default": false, "description": "Mark as sensitive to avoid logging"},
		}, "text"),
	},
	{
		Name:        "computer_paste_text",
		Description: "Paste text using the clipboard (faster for large text)",
		InputSchema: obj(map[string]any{"text": map[string]any{"type": "string"}}, "text"),
	},
	{
		Name:        "computer_type_keys",
		Description: "Type specific key sequences (for shortcuts and special keys)",
		InputSchema: obj(map[string]any{
			"keys":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"delay": map[string]any{"type": "integer", "description": "Delay between keys in milliseconds"},
		}, "keys"),
	},
	{
		Name:        "computer_press_keys",
		Description: "Press or release specific keys (for key combinations and modifiers)",
		InputSchema: obj(map[string]any{
			"keys":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"press": map[string]any{"type": "string", "enum": []string{"down", "up"}, "default": "down"},
		}, "keys"),
	},
	{
		Name:        "computer_application",
		Description: "Launch or switch to an application",
		InputSchema: obj(map[string]any{
			"application": map[string]any{"type": "string", "enum": []string{"firefox", "1password", "thunderbird", "vscode", "terminal", "desktop", "directory"}},
		}, "application"),
	},
	{
		Name:        "computer_wait",
		Description: "Wait for a specified duration (useful for letting the UI load)",
		InputSchema: obj(map[string]any{
			"duration": map[string]any{"type": "integer", "description": "Duration to wait in milliseconds"},
		}, "duration"),
	},
	{
		Name:        "computer_cursor_position",
		Description: "Get the current cursor position",
		InputSchema: obj(map[string]any{}),
	},
	{
		Name:        "computer_write_file",
		Description: "Write binary data to a file (e.g. save downloaded files)",
		InputSchema: obj(map[string]any{
			"path": map[string]any{"type": "string"},
			"data": map[string]any{"type": "string", "description": "Base64 encoded data to write"},
		}, "path", "data"),
	},
	{
		Name:        "computer_read_file",
		Description: "Read a file and return it as base64 data",
		InputSchema: obj(map[string]any{
			"path": map[string]any{"type": "string"},
		}, "path"),
	},
	{
		Name:        "create_task",
		Description: "Create a new subtask to break down complex work",
		InputSchema: obj(map[string]any{
			"description": map[string]any{"type": "string"},
			"priority":    map[string]any{"type": "string", "enum": []string{"low", "medium", "high", "urgent"}, "default": "medium"},
		}, "description"),
	},
	{
		Name:        "set_task_status",
		Description: "Set the current task status (completed, failed, or needs help)",
		InputSchema: obj(map[string]any{
			"status":      map[string]any{"type": "string", "enum": []string{"completed", "failed", "needs_help"}},
			"description": map[string]any{"type": "string", "description": "Description of the result or issue"},
		}, "status"),
	},
}
