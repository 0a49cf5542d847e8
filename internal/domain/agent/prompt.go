// Package agent holds the domain logic of the desktop agent: the system
// prompt, the tool catalog, and the loop-detection heuristics.
package agent

import (
	"fmt"
	"strings"
	"time"
)

// Display is the virtual desktop geometry advertised to the model.
type Display struct {
	Width  int
	Height int
}

// DefaultDisplay matches the bundled desktop container.
var DefaultDisplay = Display{Width: 1280, Height: 960}

// SystemPrompt renders the agent system prompt for the given display and
// wall-clock time.
func SystemPrompt(d Display, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are **Bytebot**, a highly-reliable AI engineer operating a virtual computer whose display measures %d x %d pixels.\n\n", d.Width, d.Height)
	fmt.Fprintf(&sb, "The current date is %s. The current time is %s. The current timezone is %s.\n\n",
		now.Format("January 2, 2006"), now.Format("3:04 PM"), now.Format("MST"))
	sb.WriteString(`────────────────────────
AVAILABLE APPLICATIONS
────────────────────────

Firefox Browser -- the default web browser, use it to navigate to websites.
Thunderbird -- the default email client.
1Password -- the password manager.
Visual Studio Code -- the default code editor.
Terminal -- the default terminal, use it to run commands.
File Manager -- the default file manager.

All applications are GUI based; use the computer tools to interact with
them. To launch an application use the computer_application tool with the
application name (e.g. "firefox"). Do not look for desktop icons.

────────────────────────
CORE WORKING PRINCIPLES
────────────────────────
1. Observe first. Always invoke computer_screenshot before your first
   action and whenever the UI may have changed. Never act blindly.
2. Browser navigation: launch Firefox with computer_application, wait a
   few seconds for it to load, click the address bar (around x=640,
   y=80), type or paste the URL, press Enter with
   computer_type_keys keys=["Return"], then wait for the page to load.
3. Human-like interaction: click near the visual centre of targets; use
   computer_type_text for short strings and computer_paste_text for long
   ones.
4. Use set_task_status to report completion, failure, or when you need
   human help. Use create_task to split off follow-up work.

Complete ALL steps of the task before setting it to completed.`)
	return sb.String()
}

// SummarizationPrompt is the system prompt used when condensing old
// conversation turns into a summary.
const SummarizationPrompt = `You are a helpful assistant that summarizes conversations for long-running tasks.
Create a concise summary that preserves task progress, important tool
calls and their results, key decisions, errors encountered, the current
state, and what remains to be done. The summary will be used as context
for continuing the task.`

// ScreenshotGuidance is injected in place of a blocked screenshot once
// the consecutive-screenshot limit is exceeded.
func ScreenshotGuidance(count int, browserTask bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You have taken %d consecutive screenshots. Continue with the next action to complete the full task:\n", count)
	if browserTask {
		sb.WriteString(`For browser navigation tasks:
1. Launch Firefox: computer_application with application="firefox"
2. Wait a few seconds for Firefox to load completely
3. Click the address bar (around x=640, y=80): computer_click_mouse
4. Type the URL: computer_type_text
5. Press Enter: computer_type_keys with keys=["Return"]
6. Wait for the page to load, then verify you reached the destination
IMPORTANT: complete ALL steps - don't stop after launching Firefox!`)
	} else {
		sb.WriteString(`Available actions:
- computer_click_mouse: click on elements
- computer_type_text: type text
- computer_application: launch apps
- set_task_status: complete or report status`)
	}
	return sb.String()
}

// RepetitionGuidance is appended to the conversation when the action
// tracker detects a loop.
func RepetitionGuidance(description string) string {
	return fmt.Sprintf(`ACTION LOOP DETECTED: you are repeating similar actions for task %q.

You must now take a DIFFERENT action:
1. If the target application is open and you need to navigate, click the
   address bar, type the destination, and press Enter.
2. If the application still needs launching, use computer_application
   and wait for it to load before continuing.
3. If the task is actually complete, use set_task_status with
   status="completed".
4. If you are stuck, use set_task_status with status="needs_help".

Stop repeating the same actions and take a different one now.`, description)
}

// MaxIterationsNotice is the final assistant message when the iteration
// cap is reached.
const MaxIterationsNotice = "Task reached the maximum number of iterations. This usually means the agent was stuck in a loop, so the task has been stopped automatically."
