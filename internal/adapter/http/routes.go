package http

import (
	"context"

	"github.com/go-chi/chi/v5"

	"github.com/bytebot-ai/bytebot/internal/domain/task"
)

// MountRoutes registers the agent API on the given chi router. The API
// is served at the root, matching the clients that talk to it.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)
	r.Get("/models", h.ListModels)
	r.Get("/processor/status", h.ProcessorStatus)

	// Tasks
	r.Post("/tasks", handleCreate(maxRequestBodySize, func(ctx context.Context, req *task.CreateRequest) (*task.Task, error) {
		return h.Tasks.Create(ctx, *req)
	}))
	r.Get("/tasks", h.ListTasks)
	r.Delete("/tasks", h.DeleteTasks)
	r.Get("/tasks/{id}", handleGet(h.Tasks.Get, "task not found"))
	r.Delete("/tasks/{id}", handleDelete(h.Tasks.Delete, "task not found"))

	// Processing control
	r.Post("/tasks/{id}/process", h.ProcessTask)
	r.Post("/tasks/{id}/abort", h.AbortTask)
	r.Post("/tasks/{id}/takeover", h.TakeoverTask)
	r.Post("/tasks/{id}/resume", h.ResumeTask)

	// Conversation
	r.Get("/tasks/{id}/messages", handleListByParam("id", h.taskMessages, "task not found"))
	r.Post("/tasks/{id}/messages", h.AddTaskMessage)

	// Attachments
	r.Get("/tasks/{id}/files", handleListByParam("id", h.taskFiles, "task not found"))
	r.Post("/tasks/{id}/files", handleUpdate(maxRequestBodySize, h.addTaskFile, "task not found"))

	// Live desktop view
	r.Get("/tasks/{id}/screenshot", h.TaskScreenshot)
}
