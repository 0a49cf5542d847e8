package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bytebot-ai/bytebot/internal/adapter/postgres"
	"github.com/bytebot-ai/bytebot/internal/domain"
	"github.com/bytebot-ai/bytebot/internal/domain/file"
	"github.com/bytebot-ai/bytebot/internal/domain/message"
	"github.com/bytebot-ai/bytebot/internal/domain/task"
	"github.com/bytebot-ai/bytebot/internal/port/database"
)

// setupStore creates a pgxpool connection, runs all migrations, and returns a
// ready-to-use Store. The pool is closed via t.Cleanup.
func setupStore(t *testing.T) *postgres.Store {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}

	ctx := context.Background()

	if err := postgres.RunMigrations(ctx, dsn); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	return postgres.NewStore(pool)
}

func createTestTask(t *testing.T, store *postgres.Store) *task.Task {
	t.Helper()
	req := task.CreateRequest{Description: "open firefox and check the weather"}
	if err := req.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	created, err := store.CreateTask(context.Background(), req)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	t.Cleanup(func() {
		_ = store.DeleteTask(context.Background(), created.ID)
	})
	return created
}

func TestTaskLifecycle(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	created := createTestTask(t, store)
	if created.Status != task.StatusPending {
		t.Fatalf("new task status = %s, want PENDING", created.Status)
	}
	if created.Priority != task.PriorityMedium {
		t.Fatalf("default priority = %s, want MEDIUM", created.Priority)
	}
	if created.Model.Provider == "" {
		t.Fatal("model config not persisted")
	}

	got, err := store.GetTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Description != created.Description {
		t.Fatalf("description = %q, want %q", got.Description, created.Description)
	}

	running, err := store.UpdateTaskStatus(ctx, created.ID, database.StatusUpdate{Status: task.StatusRunning})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if running.ExecutedAt.IsZero() {
		t.Fatal("executed_at not stamped on RUNNING")
	}

	id, err := store.RunningTaskID(ctx)
	if err != nil {
		t.Fatalf("running task id: %v", err)
	}
	if id != created.ID {
		t.Fatalf("running task = %s, want %s", id, created.ID)
	}

	done, err := store.UpdateTaskStatus(ctx, created.ID, database.StatusUpdate{
		Status: task.StatusFailed,
		Error:  "loop detected",
	})
	if err != nil {
		t.Fatalf("fail task: %v", err)
	}
	if done.CompletedAt.IsZero() {
		t.Fatal("completed_at not stamped on terminal status")
	}
	if done.Error != "loop detected" {
		t.Fatalf("error = %q", done.Error)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	store := setupStore(t)

	_, err := store.GetTask(context.Background(), "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListTasksStatusFilter(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	created := createTestTask(t, store)

	tasks, err := store.ListTasks(ctx, database.TaskFilter{Status: task.StatusPending, Limit: 100})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	found := false
	for _, tk := range tasks {
		if tk.ID == created.ID {
			found = true
		}
		if tk.Status != task.StatusPending {
			t.Fatalf("filter leaked status %s", tk.Status)
		}
	}
	if !found {
		t.Fatal("created task missing from filtered list")
	}
}

func TestMessagesAndSummaries(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	created := createTestTask(t, store)

	first, err := store.AddMessage(ctx, created.ID, task.RoleUser, []message.Block{message.Text("hello")})
	if err != nil {
		t.Fatalf("add message: %v", err)
	}
	_, err = store.AddMessage(ctx, created.ID, task.RoleAssistant, []message.Block{message.Text("hi")})
	if err != nil {
		t.Fatalf("add message: %v", err)
	}

	msgs, err := store.ListMessages(ctx, created.ID, false)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != task.RoleUser || message.PlainText(msgs[0].Content) != "hello" {
		t.Fatalf("unexpected first message: %+v", msgs[0])
	}

	sm, err := store.CreateSummary(ctx, created.ID, "user greeted the agent", "")
	if err != nil {
		t.Fatalf("create summary: %v", err)
	}
	if err := store.LinkMessagesToSummary(ctx, []string{first.ID}, sm.ID); err != nil {
		t.Fatalf("link messages: %v", err)
	}

	live, err := store.ListMessages(ctx, created.ID, true)
	if err != nil {
		t.Fatalf("list live messages: %v", err)
	}
	if len(live) != 1 {
		t.Fatalf("got %d live messages, want 1", len(live))
	}

	summaries, err := store.ListSummaries(ctx, created.ID)
	if err != nil {
		t.Fatalf("list summaries: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Content != "user greeted the agent" {
		t.Fatalf("unexpected summaries: %+v", summaries)
	}
}

func TestFilesCascadeWithTask(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	created := createTestTask(t, store)

	_, err := store.AddFile(ctx, created.ID, file.CreateRequest{
		Name:      "notes.txt",
		MediaType: "text/plain",
		Size:      5,
		Data:      "aGVsbG8=",
	})
	if err != nil {
		t.Fatalf("add file: %v", err)
	}

	files, err := store.ListFiles(ctx, created.ID)
	if err != nil {
		t.Fatalf("list files: %v", err)
	}
	if len(files) != 1 || files[0].Name != "notes.txt" {
		t.Fatalf("unexpected files: %+v", files)
	}

	if err := store.DeleteTask(ctx, created.ID); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	files, err = store.ListFiles(ctx, created.ID)
	if err != nil {
		t.Fatalf("list files after delete: %v", err)
	}
	if len(files) != 0 {
		t.Fatal("files survived task cascade delete")
	}
}

func TestDueScheduledTasks(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	req := task.CreateRequest{
		Description:  "nightly report",
		Type:         task.TypeScheduled,
		Priority:     task.PriorityHigh,
		ScheduledFor: time.Now().Add(-time.Minute),
	}
	if err := req.Normalize(); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	created, err := store.CreateTask(ctx, req)
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	t.Cleanup(func() { _ = store.DeleteTask(ctx, created.ID) })

	due, err := store.DueScheduledTasks(ctx, time.Now())
	if err != nil {
		t.Fatalf("due scheduled: %v", err)
	}
	found := false
	for _, tk := range due {
		if tk.ID == created.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("due task not claimed")
	}

	if err := store.MarkTaskQueued(ctx, created.ID, time.Now()); err != nil {
		t.Fatalf("mark queued: %v", err)
	}
	due, err = store.DueScheduledTasks(ctx, time.Now())
	if err != nil {
		t.Fatalf("due scheduled: %v", err)
	}
	for _, tk := range due {
		if tk.ID == created.ID {
			t.Fatal("queued task returned again")
		}
	}
}
