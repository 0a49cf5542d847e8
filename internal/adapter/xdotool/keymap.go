package xdotool

import "strings"

// keysym maps the key names the model uses to X11 keysyms.
var keysym = map[string]string{
	"ctrl":      "Control_L",
	"control":   "Control_L",
	"alt":       "Alt_L",
	"shift":     "Shift_L",
	"cmd":       "Super_L",
	"super":     "Super_L",
	"meta":      "Super_L",
	"enter":     "Return",
	"return":    "Return",
	"space":     "space",
	"tab":       "Tab",
	"escape":    "Escape",
	"esc":       "Escape",
	"backspace": "BackSpace",
	"delete":    "Delete",
	"up":        "Up",
	"down":      "Down",
	"left":      "Left",
	"right":     "Right",
	"home":      "Home",
	"end":       "End",
	"page_up":   "Page_Up",
	"page_down": "Page_Down",
	"f1":        "F1", "f2": "F2", "f3": "F3", "f4": "F4",
	"f5": "F5", "f6": "F6", "f7": "F7", "f8": "F8",
	"f9": "F9", "f10": "F10", "f11": "F11", "f12": "F12",
}

// toKeysym resolves a model key name to an xdotool keysym. Single
// characters pass through unchanged.
func toKeysym(key string) string {
	if sym, ok := keysym[strings.ToLower(key)]; ok {
		return sym
	}
	return key
}

// mouseButton maps a button name to the X11 button number.
func mouseButton(b string) string {
	switch b {
	case "right":
		return "3"
	case "middle":
		return "2"
	default:
		return "1"
	}
}

// scrollButton maps a scroll direction to the X11 wheel button number.
func scrollButton(direction string) string {
	switch direction {
	case "up":
		return "4"
	case "down":
		return "5"
	case "left":
		return "6"
	default:
		return "7"
	}
}
