package http

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bytebot-ai/bytebot/internal/domain/computer"
	"github.com/bytebot-ai/bytebot/internal/port/computeruse"
)

// DaemonHandlers serves the bytebotd desktop daemon API.
type DaemonHandlers struct {
	Driver    computeruse.Driver
	StartedAt time.Time
}

// MountDaemonRoutes registers the daemon API. The trailing-slash alias
// exists for older clients that post to /computer-use/.
func MountDaemonRoutes(r chi.Router, d *DaemonHandlers) {
	r.Post("/computer-use", d.ComputerUse)
	r.Post("/computer-use/", d.ComputerUse)
	r.Get("/health", d.Health)
}

// ComputerUse handles POST /computer-use: one desktop action per request.
func (d *DaemonHandlers) ComputerUse(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	action, err := computer.Parse(raw)
	if err != nil {
		writeDomainError(w, err, "invalid action")
		return
	}

	result, err := d.Driver.Execute(r.Context(), action)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Health handles GET /health.
func (d *DaemonHandlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"uptime_sec": int(time.Since(d.StartedAt).Seconds()),
	})
}
