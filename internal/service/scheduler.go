package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/bytebot-ai/bytebot/internal/config"
)

// Scheduler polls for due SCHEDULED tasks and hands them to the
// processor, highest priority first.
type Scheduler struct {
	tasks     *TaskService
	processor *Processor
	interval  time.Duration
	now       func() time.Time
}

// NewScheduler creates a scheduler with the configured poll interval.
func NewScheduler(tasks *TaskService, processor *Processor, cfg config.Scheduler) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Scheduler{tasks: tasks, processor: processor, interval: interval, now: time.Now}
}

// Run polls until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				slog.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick starts the highest-priority due scheduled task when the
// processor is idle. Unclaimed tasks keep queued_at NULL, so later
// ticks pick them up in order.
func (s *Scheduler) Tick(ctx context.Context) error {
	if _, running := s.processor.Status(); running {
		return nil
	}

	due, err := s.tasks.store.DueScheduledTasks(ctx, s.now())
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	// DueScheduledTasks orders by priority then age.
	next := due[0]
	if err := s.tasks.MarkQueued(ctx, next.ID, s.now()); err != nil {
		return err
	}
	if err := s.processor.Process(ctx, next.ID); err != nil {
		slog.Warn("start scheduled task", "task_id", next.ID, "error", err)
	}
	return nil
}
