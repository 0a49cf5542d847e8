// Package xdotool drives the X11 desktop by shelling out to xdotool,
// scrot and xclip. It backs the bytebotd daemon.
package xdotool

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bytebot-ai/bytebot/internal/domain/computer"
)

// CommandContext is the function used to create exec.Cmd instances.
// It can be replaced in tests to capture constructed commands.
var CommandContext = exec.CommandContext

// Driver executes computer actions against an X11 display.
type Driver struct {
	display string
}

// New creates a driver bound to the given X display (e.g. ":0").
func New(display string) *Driver {
	if display == "" {
		display = ":0"
	}
	return &Driver{display: display}
}

// command builds one tool invocation with DISPLAY set.
func (d *Driver) command(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), "DISPLAY="+d.display)
	return cmd
}

func (d *Driver) run(ctx context.Context, name string, args ...string) error {
	cmd := d.command(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, stderr.String())
	}
	return nil
}

func (d *Driver) output(ctx context.Context, name string, args ...string) (string, error) {
	cmd := d.command(ctx, name, args...)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return string(out), nil
}

// Execute implements computeruse.Driver.
func (d *Driver) Execute(ctx context.Context, a computer.Action) (*computer.Result, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	switch a.Action {
	case computer.KindMoveMouse:
		return ok(d.moveMouse(ctx, *a.Coordinates))
	case computer.KindTraceMouse:
		return ok(d.traceMouse(ctx, a))
	case computer.KindClickMouse:
		return ok(d.clickMouse(ctx, a))
	case computer.KindPressMouse:
		return ok(d.pressMouse(ctx, a))
	case computer.KindDragMouse:
		return ok(d.dragMouse(ctx, a))
	case computer.KindScroll:
		return ok(d.scroll(ctx, a))
	case computer.KindTypeKeys:
		return ok(d.typeKeys(ctx, a))
	case computer.KindPressKeys:
		return ok(d.pressKeys(ctx, a))
	case computer.KindTypeText:
		return ok(d.typeText(ctx, a))
	case computer.KindPasteText:
		return ok(d.pasteText(ctx, a))
	case computer.KindWait:
		return ok(wait(ctx, a.DurationMS))
	case computer.KindScreenshot:
		return d.screenshot(ctx)
	case computer.KindCursorPosition:
		return d.cursorPosition(ctx)
	case computer.KindApplication:
		return ok(d.application(ctx, a.Application))
	case computer.KindWriteFile:
		return d.writeFile(a)
	case computer.KindReadFile:
		return d.readFile(a)
	}
	return nil, fmt.Errorf("unsupported action %q", a.Action)
}

func ok(err error) (*computer.Result, error) {
	if err != nil {
		return nil, err
	}
	return &computer.Result{Success: true}, nil
}

func (d *Driver) moveMouse(ctx context.Context, c computer.Coordinates) error {
	return d.run(ctx, "xdotool", "mousemove", strconv.Itoa(c.X), strconv.Itoa(c.Y))
}

func (d *Driver) holdKeys(ctx context.Context, keys []string, down bool) error {
	verb := "keyup"
	if down {
		verb = "keydown"
	}
	for _, k := range keys {
		if err := d.run(ctx, "xdotool", verb, toKeysym(k)); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) traceMouse(ctx context.Context, a computer.Action) error {
	if err := d.holdKeys(ctx, a.HoldKeys, true); err != nil {
		return err
	}
	defer func() { _ = d.holdKeys(ctx, a.HoldKeys, false) }()

	for _, c := range a.Path {
		if err := d.moveMouse(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) clickMouse(ctx context.Context, a computer.Action) error {
	if a.Coordinates != nil {
		if err := d.moveMouse(ctx, *a.Coordinates); err != nil {
			return err
		}
	}
	if err := d.holdKeys(ctx, a.HoldKeys, true); err != nil {
		return err
	}
	defer func() { _ = d.holdKeys(ctx, a.HoldKeys, false) }()

	args := []string{"click"}
	if a.ClickCount > 1 {
		args = append(args, "--repeat", strconv.Itoa(a.ClickCount), "--delay", "150")
	}
	args = append(args, mouseButton(string(a.Button)))
	return d.run(ctx, "xdotool", args...)
}

func (d *Driver) pressMouse(ctx context.Context, a computer.Action) error {
	if a.Coordinates != nil {
		if err := d.moveMouse(ctx, *a.Coordinates); err != nil {
			return err
		}
	}
	verb := "mouseup"
	if a.Press == computer.PressDown {
		verb = "mousedown"
	}
	return d.run(ctx, "xdotool", verb, mouseButton(string(a.Button)))
}

func (d *Driver) dragMouse(ctx context.Context, a computer.Action) error {
	if err := d.moveMouse(ctx, a.Path[0]); err != nil {
		return err
	}
	if err := d.holdKeys(ctx, a.HoldKeys, true); err != nil {
		return err
	}
	defer func() { _ = d.holdKeys(ctx, a.HoldKeys, false) }()

	btn := mouseButton(string(a.Button))
	if err := d.run(ctx, "xdotool", "mousedown", btn); err != nil {
		return err
	}
	defer func() { _ = d.run(ctx, "xdotool", "mouseup", btn) }()

	for _, c := range a.Path[1:] {
		if err := d.moveMouse(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) scroll(ctx context.Context, a computer.Action) error {
	if a.Coordinates != nil {
		if err := d.moveMouse(ctx, *a.Coordinates); err != nil {
			return err
		}
	}
	if err := d.holdKeys(ctx, a.HoldKeys, true); err != nil {
		return err
	}
	defer func() { _ = d.holdKeys(ctx, a.HoldKeys, false) }()

	return d.run(ctx, "xdotool", "click", "--repeat", strconv.Itoa(a.ScrollCount), scrollButton(a.Direction))
}

func (d *Driver) typeKeys(ctx context.Context, a computer.Action) error {
	args := []string{"key"}
	if a.DelayMS > 0 {
		args = append(args, "--delay", strconv.Itoa(a.DelayMS))
	}
	for _, k := range a.Keys {
		args = append(args, toKeysym(k))
	}
	return d.run(ctx, "xdotool", args...)
}

func (d *Driver) pressKeys(ctx context.Context, a computer.Action) error {
	return d.holdKeys(ctx, a.Keys, a.Press == computer.PressDown)
}

func (d *Driver) typeText(ctx context.Context, a computer.Action) error {
	delay := a.DelayMS
	if delay <= 0 {
		delay = 12
	}
	return d.run(ctx, "xdotool", "type", "--delay", strconv.Itoa(delay), "--", a.Text)
}

func (d *Driver) pasteText(ctx context.Context, a computer.Action) error {
	cmd := d.command(ctx, "xclip", "-selection", "clipboard")
	cmd.Stdin = strings.NewReader(a.Text)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("xclip: %w", err)
	}
	return d.run(ctx, "xdotool", "key", "ctrl+v")
}

func wait(ctx context.Context, durationMS int) error {
	select {
	case <-time.After(time.Duration(durationMS) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Driver) screenshot(ctx context.Context) (*computer.Result, error) {
	tmp, err := os.CreateTemp("", "bytebot-*.png")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(path) }()

	if err := d.run(ctx, "scrot", "--overwrite", path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read screenshot: %w", err)
	}
	return &computer.Result{
		Success:   true,
		Type:      "image",
		Data:      base64.StdEncoding.EncodeToString(data),
		MediaType: "image/png",
	}, nil
}

func (d *Driver) cursorPosition(ctx context.Context) (*computer.Result, error) {
	out, err := d.output(ctx, "xdotool", "getmouselocation", "--shell")
	if err != nil {
		return nil, err
	}

	res := &computer.Result{Success: true}
	for line := range strings.Lines(out) {
		key, val, found := strings.Cut(strings.TrimSpace(line), "=")
		if !found {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			continue
		}
		switch key {
		case "X":
			res.X = n
		case "Y":
			res.Y = n
		}
	}
	return res, nil
}

// applicationCommands maps application names to launch commands.
var applicationCommands = map[string][]string{
	"firefox":     {"firefox"},
	"1password":   {"1password"},
	"thunderbird": {"thunderbird"},
	"vscode":      {"code"},
	"terminal":    {"xterm"},
	"directory":   {"xdg-open", "."},
}

func (d *Driver) application(ctx context.Context, app string) error {
	if app == "desktop" {
		// Minimize everything instead of launching.
		return d.run(ctx, "xdotool", "key", "super+d")
	}
	argv, found := applicationCommands[app]
	if !found {
		return fmt.Errorf("unknown application %q", app)
	}
	cmd := d.command(ctx, argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", app, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

func (d *Driver) writeFile(a computer.Action) (*computer.Result, error) {
	data, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		return nil, fmt.Errorf("decode file data: %w", err)
	}
	if dir := filepath.Dir(a.FilePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
	}
	if err := os.WriteFile(a.FilePath, data, 0o644); err != nil {
		return nil, fmt.Errorf("write file: %w", err)
	}
	return &computer.Result{Success: true}, nil
}

func (d *Driver) readFile(a computer.Action) (*computer.Result, error) {
	data, err := os.ReadFile(a.FilePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	mediaType := mime.TypeByExtension(filepath.Ext(a.FilePath))
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return &computer.Result{
		Success:   true,
		Data:      base64.StdEncoding.EncodeToString(data),
		MediaType: mediaType,
	}, nil
}
