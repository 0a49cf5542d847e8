package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bytebot-ai/bytebot/internal/domain/task"
)

const meterName = "bytebot"

// Metrics holds the agent loop instruments. It implements the
// processor's Metrics interface.
type Metrics struct {
	tasksStarted   metric.Int64Counter
	tasksCompleted metric.Int64Counter
	tasksFailed    metric.Int64Counter
	toolCalls      metric.Int64Counter
	iterations     metric.Int64Histogram
	frameBytes     metric.Int64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.tasksStarted, err = meter.Int64Counter("bytebot.tasks.started",
		metric.WithDescription("Tasks the processor started"))
	if err != nil {
		return nil, err
	}

	m.tasksCompleted, err = meter.Int64Counter("bytebot.tasks.completed",
		metric.WithDescription("Tasks that reached COMPLETED"))
	if err != nil {
		return nil, err
	}

	m.tasksFailed, err = meter.Int64Counter("bytebot.tasks.failed",
		metric.WithDescription("Tasks that reached FAILED or CANCELLED"))
	if err != nil {
		return nil, err
	}

	m.toolCalls, err = meter.Int64Counter("bytebot.toolcalls",
		metric.WithDescription("Desktop tool calls dispatched"))
	if err != nil {
		return nil, err
	}

	m.iterations, err = meter.Int64Histogram("bytebot.task.iterations",
		metric.WithDescription("Loop iterations per finished task"))
	if err != nil {
		return nil, err
	}

	m.frameBytes, err = meter.Int64Histogram("bytebot.frame.bytes",
		metric.WithDescription("Cached screenshot frame size"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// TaskStarted records one task entering the loop.
func (m *Metrics) TaskStarted(ctx context.Context) {
	m.tasksStarted.Add(ctx, 1)
}

// TaskFinished records the terminal status and iteration count.
func (m *Metrics) TaskFinished(ctx context.Context, status task.Status, iterations int) {
	attrs := metric.WithAttributes(attribute.String("status", string(status)))
	switch status {
	case task.StatusCompleted:
		m.tasksCompleted.Add(ctx, 1)
	case task.StatusFailed, task.StatusCancelled:
		m.tasksFailed.Add(ctx, 1, attrs)
	}
	m.iterations.Record(ctx, int64(iterations), attrs)
}

// ToolCall records one dispatched desktop action.
func (m *Metrics) ToolCall(ctx context.Context, tool string, isError bool) {
	m.toolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.Bool("error", isError),
	))
}

// FrameBytes records the size of a cached frame.
func (m *Metrics) FrameBytes(ctx context.Context, n int) {
	m.frameBytes.Record(ctx, int64(n))
}
