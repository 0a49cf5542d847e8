package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	otelx "github.com/bytebot-ai/bytebot/internal/adapter/otel"
	"github.com/bytebot-ai/bytebot/internal/config"
	"github.com/bytebot-ai/bytebot/internal/domain"
	"github.com/bytebot-ai/bytebot/internal/domain/agent"
	"github.com/bytebot-ai/bytebot/internal/domain/computer"
	"github.com/bytebot-ai/bytebot/internal/domain/message"
	"github.com/bytebot-ai/bytebot/internal/domain/task"
	"github.com/bytebot-ai/bytebot/internal/port/cache"
	"github.com/bytebot-ai/bytebot/internal/port/computeruse"
	"github.com/bytebot-ai/bytebot/internal/port/database"
	"github.com/bytebot-ai/bytebot/internal/port/llm"
	"github.com/bytebot-ai/bytebot/internal/port/messagequeue"
)

// Processor runs the agentic loop: it feeds the conversation to the
// model, executes the tool calls it returns against the desktop daemon,
// and drives the task to a terminal status. One task at a time.
type Processor struct {
	tasks      *TaskService
	store      database.Store
	providers  map[string]llm.Provider
	driver     computeruse.Driver
	summarizer *Summarizer
	frames     cache.Cache
	cfg        config.Agent
	display    agent.Display
	frameTTL   time.Duration
	limiter    *rate.Limiter
	metrics    Metrics

	mu      sync.Mutex
	current string
	cancel  context.CancelFunc
	done    chan struct{}
}

// Metrics receives loop instrumentation. The otel adapter implements
// it; tests pass nil.
type Metrics interface {
	TaskStarted(ctx context.Context)
	TaskFinished(ctx context.Context, status task.Status, iterations int)
	ToolCall(ctx context.Context, tool string, isError bool)
	FrameBytes(ctx context.Context, n int)
}

// NewProcessor wires the loop dependencies. frames may be nil (no live
// desktop view); metrics may be nil.
func NewProcessor(tasks *TaskService, store database.Store, providers map[string]llm.Provider, driver computeruse.Driver, summarizer *Summarizer, frames cache.Cache, frameTTL time.Duration, cfg config.Agent, display agent.Display, metrics Metrics) *Processor {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	return &Processor{
		tasks:      tasks,
		store:      store,
		providers:  providers,
		driver:     driver,
		summarizer: summarizer,
		frames:     frames,
		frameTTL:   frameTTL,
		cfg:        cfg,
		display:    display,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		metrics:    metrics,
	}
}

// Status reports the task currently being processed, if any.
func (p *Processor) Status() (taskID string, running bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.current != ""
}

// Process starts processing a task in the background. Returns
// ErrConflict when another task is already being processed.
func (p *Processor) Process(ctx context.Context, taskID string) error {
	t, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return fmt.Errorf("%w: task %s is already %s", domain.ErrConflict, taskID, t.Status)
	}
	if _, ok := p.providers[t.Model.Provider]; !ok {
		return fmt.Errorf("%w: unknown provider %q", domain.ErrValidation, t.Model.Provider)
	}

	// Only one RUNNING task, even across restarts: a task left RUNNING
	// by a previous process blocks new work until it is resolved.
	running, err := p.tasks.RunningTaskID(ctx)
	if err != nil {
		return err
	}
	if running != "" && running != taskID {
		return fmt.Errorf("%w: task %s is already RUNNING", domain.ErrConflict, running)
	}

	p.mu.Lock()
	if p.current != "" {
		busy := p.current
		p.mu.Unlock()
		return fmt.Errorf("%w: task %s is already being processed", domain.ErrConflict, busy)
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.current = taskID
	p.cancel = cancel
	p.done = make(chan struct{})
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			p.current = ""
			p.cancel = nil
			close(p.done)
			p.mu.Unlock()
		}()
		p.run(runCtx, taskID)
	}()
	return nil
}

// Abort cancels processing of the given task and waits for the loop to
// unwind. Safe to call when nothing is running.
func (p *Processor) Abort(taskID string) error {
	p.mu.Lock()
	if p.current != taskID {
		current := p.current
		p.mu.Unlock()
		if current == "" {
			return fmt.Errorf("%w: task %s is not being processed", domain.ErrNotFound, taskID)
		}
		return fmt.Errorf("%w: processing task %s, not %s", domain.ErrConflict, current, taskID)
	}
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Shutdown aborts whatever is running. Used on service stop.
func (p *Processor) Shutdown() {
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// outcome is what one loop pass decided about the task's fate.
type outcome struct {
	status task.Status
	errMsg string
	result json.RawMessage
}

// failOutcome maps a loop error to FAILED. Cancellation surfacing
// through a store or provider call returns the empty outcome instead,
// which run maps to CANCELLED.
func failOutcome(ctx context.Context, err error) outcome {
	if ctx.Err() != nil {
		return outcome{}
	}
	return outcome{status: task.StatusFailed, errMsg: err.Error()}
}

func (p *Processor) run(ctx context.Context, taskID string) {
	log := slog.With("task_id", taskID)

	t, err := p.tasks.UpdateStatus(ctx, taskID, database.StatusUpdate{Status: task.StatusRunning})
	if err != nil {
		log.Error("mark task running", "error", err)
		return
	}
	ctx, span := otelx.StartTaskSpan(ctx, taskID, t.Model.Name)
	defer span.End()
	if p.metrics != nil {
		p.metrics.TaskStarted(ctx)
	}

	out, iterations := p.loop(ctx, t)

	// Cancellation unwinds here. Use a detached context so the final
	// status write still lands.
	finalCtx := context.WithoutCancel(ctx)
	if ctx.Err() != nil && out.status == "" {
		out = outcome{status: task.StatusCancelled, errMsg: "processing aborted"}
	}
	if out.status == "" {
		out = outcome{status: task.StatusFailed, errMsg: "task did not reach a terminal status"}
	}

	if _, err := p.tasks.UpdateStatus(finalCtx, taskID, database.StatusUpdate{
		Status: out.status,
		Error:  out.errMsg,
		Result: out.result,
	}); err != nil {
		log.Error("finalize task", "status", out.status, "error", err)
	}
	if p.metrics != nil {
		p.metrics.TaskFinished(finalCtx, out.status, iterations)
	}
	log.Info("task processing finished", "status", out.status, "iterations", iterations)
}

// loop is the iteration engine. It returns once the task reaches a
// terminal decision or the iteration budget runs out.
func (p *Processor) loop(ctx context.Context, t *task.Task) (outcome, int) {
	log := slog.With("task_id", t.ID)
	provider := p.providers[t.Model.Provider]

	if err := p.seedConversation(ctx, t); err != nil {
		return failOutcome(ctx, err), 0
	}

	browser := agent.IsBrowserTask(t.Description)
	screenshotLimit := p.cfg.MaxScreenshots
	actionThreshold := p.cfg.ActionThreshold
	if browser {
		screenshotLimit = p.cfg.BrowserScreenshots
		actionThreshold = p.cfg.BrowserThreshold
	}
	screenshots := agent.NewScreenshotTracker(screenshotLimit)
	actions := agent.NewActionTracker(p.cfg.ActionWindow, actionThreshold)

	budget := p.cfg.MaxIterations
	if budget <= 0 {
		budget = 25
	}
	graceLeft := p.cfg.GraceIterations

	iter := 0
	for ; iter < budget; iter++ {
		if ctx.Err() != nil {
			return outcome{}, iter
		}
		if paused, err := p.waitWhilePaused(ctx, t.ID); err != nil {
			return failOutcome(ctx, err), iter
		} else if paused {
			// Control came back; the human may have typed guidance.
			log.Info("resuming after takeover")
		}

		if p.summarizer != nil {
			if err := p.summarizer.MaybeSummarize(ctx, t); err != nil {
				log.Warn("summarization failed", "error", err)
			}
		}

		conversation, err := p.conversation(ctx, t.ID)
		if err != nil {
			return failOutcome(ctx, err), iter
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return outcome{}, iter
		}
		resp, err := provider.GenerateMessage(ctx, llm.Request{
			SystemPrompt: agent.SystemPrompt(p.display, time.Now()),
			Messages:     conversation,
			Model:        t.Model.Name,
			UseTools:     true,
		})
		if err != nil {
			if ctx.Err() != nil {
				return outcome{}, iter
			}
			log.Error("provider call failed", "provider", provider.Name(), "error", err)
			_, _ = p.tasks.AddMessage(ctx, t.ID, task.RoleAssistant,
				[]message.Block{message.Text("Error communicating with the model: " + err.Error())})
			return outcome{status: task.StatusFailed, errMsg: "provider error: " + err.Error()}, iter
		}

		if _, err := p.tasks.AddMessage(ctx, t.ID, task.RoleAssistant, resp.Blocks); err != nil {
			return failOutcome(ctx, err), iter
		}

		toolUses := toolUseBlocks(resp.Blocks)
		if len(toolUses) == 0 {
			// A plain text answer completes the task.
			result, _ := json.Marshal(map[string]string{"text": message.PlainText(resp.Blocks)})
			return outcome{status: task.StatusCompleted, result: result}, iter + 1
		}

		results := make([]message.Block, 0, len(toolUses))
		var terminal *outcome
		for _, tu := range toolUses {
			switch {
			case tu.IsSetTaskStatus():
				out := p.applyStatusTool(tu)
				results = append(results, message.ToolResult(tu.ID, []message.Block{message.Text("status set")}, false))
				terminal = &out
			case tu.IsCreateTask():
				results = append(results, p.applyCreateTaskTool(ctx, t, tu))
			default:
				results = append(results, p.dispatchComputerTool(ctx, t, tu, screenshots, actions, browser, &budget, &graceLeft))
			}
		}

		if _, err := p.tasks.AddMessage(ctx, t.ID, task.RoleUser, results); err != nil {
			return failOutcome(ctx, err), iter
		}
		if terminal != nil {
			return *terminal, iter + 1
		}

		p.pace(ctx, iter)
	}

	msg := fmt.Sprintf("Task stopped after %d iterations without completing. The agent appears to be stuck.", iter)
	_, _ = p.tasks.AddMessage(ctx, t.ID, task.RoleAssistant, []message.Block{message.Text(msg)})
	return outcome{status: task.StatusFailed, errMsg: "maximum iterations reached"}, iter
}

// seedConversation inserts the task description as the opening user
// message when the conversation is empty.
func (p *Processor) seedConversation(ctx context.Context, t *task.Task) error {
	msgs, err := p.store.ListMessages(ctx, t.ID, false)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	if len(msgs) > 0 {
		return nil
	}
	_, err = p.tasks.AddMessage(ctx, t.ID, task.RoleUser, []message.Block{message.Text(t.Description)})
	return err
}

// conversation builds the provider view: the newest summary (which has
// absorbed all older ones) as a synthetic user turn, then the live
// messages.
func (p *Processor) conversation(ctx context.Context, taskID string) ([]message.Message, error) {
	summaries, err := p.store.ListSummaries(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load summaries: %w", err)
	}
	live, err := p.store.ListMessages(ctx, taskID, true)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}

	out := make([]message.Message, 0, len(live)+1)
	if len(summaries) > 0 {
		newest := summaries[len(summaries)-1]
		out = append(out, message.Message{
			Role:    task.RoleUser,
			Content: []message.Block{message.Text("Summary of earlier progress:\n" + newest.Content)},
		})
	}
	return append(out, live...), nil
}

// waitWhilePaused blocks while the task is under USER control, polling
// the control flag. Returns true when it actually waited.
func (p *Processor) waitWhilePaused(ctx context.Context, taskID string) (bool, error) {
	waited := false
	for {
		t, err := p.store.GetTask(ctx, taskID)
		if err != nil {
			return waited, err
		}
		if t.Control != task.RoleUser {
			return waited, nil
		}
		waited = true
		select {
		case <-ctx.Done():
			return waited, nil
		case <-time.After(time.Second):
		}
	}
}

// applyStatusTool interprets a set_task_status call.
func (p *Processor) applyStatusTool(tu message.Block) outcome {
	input := tu.InputMap()
	desc, _ := input["description"].(string)
	status, _ := input["status"].(string)
	switch strings.ToLower(status) {
	case "completed":
		result, _ := json.Marshal(map[string]string{"text": desc})
		return outcome{status: task.StatusCompleted, result: result}
	case "needs_help":
		return outcome{status: task.StatusNeedsHelp, errMsg: desc}
	default:
		if desc == "" {
			desc = "task failed"
		}
		return outcome{status: task.StatusFailed, errMsg: desc}
	}
}

// applyCreateTaskTool inserts a follow-up task requested by the model.
func (p *Processor) applyCreateTaskTool(ctx context.Context, t *task.Task, tu message.Block) message.Block {
	input := tu.InputMap()
	desc, _ := input["description"].(string)
	req := task.CreateRequest{
		Description: desc,
		CreatedBy:   task.RoleAssistant,
	}
	if pr, ok := input["priority"].(string); ok {
		req.Priority = task.Priority(strings.ToUpper(pr))
	}
	if tt, ok := input["type"].(string); ok {
		req.Type = task.Type(strings.ToUpper(tt))
	}
	if sf, ok := input["scheduled_for"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, sf); err == nil {
			req.ScheduledFor = ts
		}
	}
	req.Model = t.Model

	created, err := p.tasks.Create(ctx, req)
	if err != nil {
		return message.ToolResult(tu.ID, []message.Block{message.Text("failed to create task: " + err.Error())}, true)
	}
	return message.ToolResult(tu.ID, []message.Block{message.Text("created task " + created.ID)}, false)
}

// dispatchComputerTool executes one computer_* call against the desktop
// daemon, applying the loop heuristics first.
func (p *Processor) dispatchComputerTool(ctx context.Context, t *task.Task, tu message.Block, screenshots *agent.ScreenshotTracker, actions *agent.ActionTracker, browser bool, budget, graceLeft *int) message.Block {
	isScreenshot := tu.Name == "computer_screenshot"

	if isScreenshot {
		if over := screenshots.RecordScreenshot(); over {
			guidance := agent.ScreenshotGuidance(screenshots.Count(), browser)
			return message.ToolResult(tu.ID, []message.Block{message.Text(guidance)}, false)
		}
	} else {
		screenshots.RecordOther()
		if looping := actions.Record(tu.Name, string(tu.Input)); looping {
			actions.Reset()
			if *graceLeft > 0 {
				*budget += *graceLeft
				*graceLeft = 0
			}
			guidance := "You appear to be repeating the same actions without progress. Step back, take a screenshot to reassess the current state, and try a different approach."
			return message.ToolResult(tu.ID, []message.Block{message.Text(guidance)}, false)
		}
	}

	action, err := computer.FromToolUse(tu.Name, tu.Input)
	if err != nil {
		if p.metrics != nil {
			p.metrics.ToolCall(ctx, tu.Name, true)
		}
		return message.ToolResult(tu.ID, []message.Block{message.Text(err.Error())}, true)
	}

	callCtx, span := otelx.StartToolCallSpan(ctx, t.ID, tu.Name)
	result, err := p.driver.Execute(callCtx, action)
	span.End()
	if p.metrics != nil {
		p.metrics.ToolCall(ctx, tu.Name, err != nil)
	}
	if err != nil {
		return message.ToolResult(tu.ID, []message.Block{message.Text("action failed: " + err.Error())}, true)
	}

	blocks := resultBlocks(action, result)
	if action.Action == computer.KindScreenshot && result.Data != "" {
		p.cacheFrame(ctx, t.ID, result.Data)
	}

	// Let the UI settle, then show the model what happened.
	if !isScreenshot && action.Action != computer.KindReadFile && action.Action != computer.KindCursorPosition {
		blocks = append(blocks, p.settleScreenshot(ctx, t.ID)...)
	}
	return message.ToolResult(tu.ID, blocks, false)
}

// settleScreenshot waits for the UI to settle and captures a frame.
// Failures are silent: the model simply gets no image.
func (p *Processor) settleScreenshot(ctx context.Context, taskID string) []message.Block {
	delay := p.cfg.SettleDelay
	if delay <= 0 {
		delay = 750 * time.Millisecond
	}
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(delay):
	}

	result, err := p.driver.Execute(ctx, computer.Action{Action: computer.KindScreenshot})
	if err != nil || result.Data == "" {
		return nil
	}
	p.cacheFrame(ctx, taskID, result.Data)
	return []message.Block{message.ImagePNG(result.Data)}
}

// cacheFrame stores the latest screenshot for the live desktop view and
// announces it.
func (p *Processor) cacheFrame(ctx context.Context, taskID, data string) {
	if p.frames == nil {
		return
	}
	if err := p.frames.Set(ctx, FrameKey(taskID), []byte(data), p.frameTTL); err != nil {
		slog.Warn("cache frame", "task_id", taskID, "error", err)
		return
	}
	if p.metrics != nil {
		p.metrics.FrameBytes(ctx, len(data))
	}
	p.tasks.publish(ctx, messagequeue.SubjectFrameUpdated, messagequeue.FrameUpdatedPayload{TaskID: taskID})
}

// pace sleeps between iterations; the delay grows after the first few
// so runaway loops burn less quota.
func (p *Processor) pace(ctx context.Context, iter int) {
	delay := 250 * time.Millisecond
	if iter >= 5 {
		delay = time.Duration(iter-4) * 500 * time.Millisecond
		if delay > 3*time.Second {
			delay = 3 * time.Second
		}
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// FrameKey is the cache key for a task's latest screenshot.
func FrameKey(taskID string) string {
	return "frame:" + taskID
}

func toolUseBlocks(blocks []message.Block) []message.Block {
	var out []message.Block
	for _, b := range blocks {
		if b.IsToolUse() {
			out = append(out, b)
		}
	}
	return out
}

// resultBlocks wraps a daemon result into content blocks.
func resultBlocks(action computer.Action, r *computer.Result) []message.Block {
	switch action.Action {
	case computer.KindScreenshot:
		if r.Data != "" {
			return []message.Block{message.ImagePNG(r.Data)}
		}
	case computer.KindReadFile:
		if r.Data != "" {
			return []message.Block{{
				Type:   message.TypeDocument,
				Name:   action.FilePath,
				Size:   int64(len(r.Data)),
				Source: &message.Source{Type: "base64", MediaType: r.MediaType, Data: r.Data},
			}}
		}
	case computer.KindCursorPosition:
		return []message.Block{message.Text(fmt.Sprintf("cursor at (%d, %d)", r.X, r.Y))}
	}
	return []message.Block{message.Text("done")}
}
