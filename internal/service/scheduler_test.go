package service

import (
	"context"
	"testing"
	"time"

	"github.com/bytebot-ai/bytebot/internal/config"
	"github.com/bytebot-ai/bytebot/internal/domain/message"
	"github.com/bytebot-ai/bytebot/internal/domain/task"
	"github.com/bytebot-ai/bytebot/internal/port/llm"
)

func newScheduler(t *testing.T) (*Scheduler, *procFixture) {
	t.Helper()
	f := newProcessor(t, testAgentConfig())
	sched := NewScheduler(f.tasks, f.proc, config.Scheduler{Interval: time.Hour})
	return sched, f
}

func (f *procFixture) createScheduled(t *testing.T, description string, pri task.Priority, at time.Time) *task.Task {
	t.Helper()
	created, err := f.tasks.Create(context.Background(), task.CreateRequest{
		Description:  description,
		Type:         task.TypeScheduled,
		Priority:     pri,
		ScheduledFor: at,
	})
	if err != nil {
		t.Fatalf("create scheduled task: %v", err)
	}
	return created
}

func TestSchedulerClaimsDueTask(t *testing.T) {
	sched, f := newScheduler(t)
	f.provider.responses = []*llm.Response{
		{Blocks: []message.Block{message.Text("done")}},
	}

	past := time.Now().Add(-time.Minute)
	created := f.createScheduled(t, "nightly report", task.PriorityMedium, past)

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	got := f.waitTerminal(t, created.ID)
	if got.Status != task.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got.Status)
	}
	if got.QueuedAt.IsZero() {
		t.Fatal("queued_at not stamped")
	}
}

func TestSchedulerIgnoresFutureTasks(t *testing.T) {
	sched, f := newScheduler(t)

	created := f.createScheduled(t, "later", task.PriorityMedium, time.Now().Add(time.Hour))

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	got, _ := f.store.GetTask(context.Background(), created.ID)
	if got.Status != task.StatusPending || !got.QueuedAt.IsZero() {
		t.Fatalf("future task touched: %+v", got)
	}
}

func TestSchedulerPrefersHigherPriority(t *testing.T) {
	sched, f := newScheduler(t)
	f.provider.responses = []*llm.Response{
		{Blocks: []message.Block{message.Text("done")}},
	}

	past := time.Now().Add(-time.Minute)
	low := f.createScheduled(t, "low", task.PriorityLow, past.Add(-time.Minute))
	urgent := f.createScheduled(t, "urgent", task.PriorityUrgent, past)

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	got := f.waitTerminal(t, urgent.ID)
	if got.Status != task.StatusCompleted {
		t.Fatalf("urgent task status = %s", got.Status)
	}

	remaining, _ := f.store.GetTask(context.Background(), low.ID)
	if remaining.Status != task.StatusPending || !remaining.QueuedAt.IsZero() {
		t.Fatalf("low-priority task should wait for the next tick: %+v", remaining)
	}
}

func TestSchedulerSkipsWhenProcessorBusy(t *testing.T) {
	sched, f := newScheduler(t)
	f.provider.block = make(chan struct{})

	running := f.createTask(t, "in flight")
	if err := f.proc.Process(context.Background(), running.ID); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	t.Cleanup(func() { _ = f.proc.Abort(running.ID) })

	due := f.createScheduled(t, "waiting", task.PriorityHigh, time.Now().Add(-time.Minute))

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	got, _ := f.store.GetTask(context.Background(), due.ID)
	if !got.QueuedAt.IsZero() {
		t.Fatal("scheduler claimed a task while the processor was busy")
	}
}

// Guards the Run loop shutdown path.
func TestSchedulerRunStopsOnCancel(t *testing.T) {
	f := newProcessor(t, testAgentConfig())
	sched := NewScheduler(f.tasks, f.proc, config.Scheduler{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- sched.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
