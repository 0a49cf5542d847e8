package http

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bytebot-ai/bytebot/internal/domain"
	"github.com/bytebot-ai/bytebot/internal/domain/file"
	"github.com/bytebot-ai/bytebot/internal/domain/message"
	"github.com/bytebot-ai/bytebot/internal/domain/task"
	"github.com/bytebot-ai/bytebot/internal/port/cache"
	"github.com/bytebot-ai/bytebot/internal/port/database"
	"github.com/bytebot-ai/bytebot/internal/port/llm"
	"github.com/bytebot-ai/bytebot/internal/service"
)

const maxRequestBodySize = 32 << 20 // 32 MB, file uploads carry base64 payloads

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Tasks     *service.TaskService
	Processor *service.Processor
	Providers map[string]llm.Provider
	Frames    cache.Cache
	Queue     interface{ IsConnected() bool }
	StartedAt time.Time
}

// ListTasks handles GET /tasks?status=&limit=&offset=.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := database.TaskFilter{Status: task.Status(q.Get("status"))}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		f.Offset = n
	}

	tasks, err := h.Tasks.List(r.Context(), f)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// DeleteTasks handles DELETE /tasks?status=.
func (h *Handlers) DeleteTasks(w http.ResponseWriter, r *http.Request) {
	n, err := h.Tasks.DeleteAll(r.Context(), task.Status(r.URL.Query().Get("status")))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// ProcessTask handles POST /tasks/{id}/process.
func (h *Handlers) ProcessTask(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.Processor.Process(r.Context(), id); err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id, "state": "processing"})
}

// AbortTask handles POST /tasks/{id}/abort.
func (h *Handlers) AbortTask(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if err := h.Processor.Abort(id); err != nil {
		writeDomainError(w, err, "task is not being processed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"task_id": id, "state": "aborted"})
}

// TakeoverTask handles POST /tasks/{id}/takeover. Processing pauses
// while the human drives the desktop.
func (h *Handlers) TakeoverTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tasks.Takeover(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ResumeTask handles POST /tasks/{id}/resume.
func (h *Handlers) ResumeTask(w http.ResponseWriter, r *http.Request) {
	t, err := h.Tasks.Resume(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type addMessageRequest struct {
	Text string `json:"text"`
}

// AddTaskMessage handles POST /tasks/{id}/messages: guided input typed
// during a takeover.
func (h *Handlers) AddTaskMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[addMessageRequest](w, r, maxRequestBodySize)
	if !ok {
		return
	}
	m, err := h.Tasks.AddUserMessage(r.Context(), urlParam(r, "id"), req.Text)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// TaskScreenshot handles GET /tasks/{id}/screenshot: the latest cached
// desktop frame as a PNG.
func (h *Handlers) TaskScreenshot(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	data, ok, err := h.Frames.Get(r.Context(), service.FrameKey(id))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no frame cached for task")
		return
	}
	png, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// ProcessorStatus handles GET /processor/status.
func (h *Handlers) ProcessorStatus(w http.ResponseWriter, _ *http.Request) {
	id, running := h.Processor.Status()
	resp := map[string]any{"processing": running}
	if running {
		resp["task_id"] = id
	}
	writeJSON(w, http.StatusOK, resp)
}

type modelInfo struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`
	Vision   bool   `json:"vision"`
}

// ListModels handles GET /models: every model across configured providers.
func (h *Handlers) ListModels(w http.ResponseWriter, _ *http.Request) {
	models := []modelInfo{}
	for name, p := range h.Providers {
		for _, m := range p.Models() {
			models = append(models, modelInfo{Provider: name, Name: m, Vision: p.SupportsVision()})
		}
	}
	writeJSON(w, http.StatusOK, models)
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	queueConnected := h.Queue == nil || h.Queue.IsConnected()
	if !queueConnected {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"nats":       queueConnected,
		"uptime_sec": int(time.Since(h.StartedAt).Seconds()),
	})
}

// taskMessages adapts ListMessages to the generic list factory.
func (h *Handlers) taskMessages(ctx context.Context, taskID string) ([]message.Message, error) {
	if _, err := h.Tasks.Get(ctx, taskID); err != nil {
		return nil, err
	}
	return h.Tasks.ListMessages(ctx, taskID)
}

// taskFiles lists attachments without their base64 payloads.
func (h *Handlers) taskFiles(ctx context.Context, taskID string) ([]file.File, error) {
	if _, err := h.Tasks.Get(ctx, taskID); err != nil {
		return nil, err
	}
	files, err := h.Tasks.ListFiles(ctx, taskID)
	if err != nil {
		return nil, err
	}
	for i := range files {
		files[i].Data = ""
	}
	return files, nil
}

// addTaskFile adapts AddFile to the generic update factory shape.
func (h *Handlers) addTaskFile(ctx context.Context, taskID string, req file.CreateRequest) (*file.File, error) {
	if err := sanitizeName(req.Name); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}
	f, err := h.Tasks.AddFile(ctx, taskID, req)
	if err != nil {
		return nil, err
	}
	out := *f
	out.Data = ""
	return &out, nil
}
