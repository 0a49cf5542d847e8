package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bytebot-ai/bytebot/internal/domain/task"
	"github.com/bytebot-ai/bytebot/internal/port/database"
)

const taskColumns = `id, description, type, status, priority, control, created_by, model,
	scheduled_for, queued_at, executed_at, completed_at, error, result, created_at, updated_at`

func (s *Store) CreateTask(ctx context.Context, req task.CreateRequest) (*task.Task, error) {
	modelJSON, err := json.Marshal(req.Model)
	if err != nil {
		return nil, fmt.Errorf("marshal model: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO tasks (description, type, priority, created_by, model, scheduled_for)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+taskColumns,
		req.Description, string(req.Type), string(req.Priority), string(req.CreatedBy),
		modelJSON, nullTime(req.ScheduledFor))

	t, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &t, nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)

	t, err := scanTask(row)
	if err != nil {
		return nil, notFoundWrap(err, "get task %s", id)
	}
	return &t, nil
}

func (s *Store) ListTasks(ctx context.Context, f database.TaskFilter) ([]task.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks`
	args := []any{}
	if f.Status != "" {
		args = append(args, string(f.Status))
		q += ` WHERE status = $1`
	}
	q += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTaskStatus persists a status transition and its timestamp
// bookkeeping: executed_at on entering RUNNING, completed_at on entering
// a terminal status.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, upd database.StatusUpdate) (*task.Task, error) {
	now := time.Now().UTC()
	var executedAt, completedAt any
	if upd.Status == task.StatusRunning {
		executedAt = now
	}
	if upd.Status.Terminal() {
		completedAt = now
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE tasks SET status = $2,
		        executed_at = COALESCE($3, executed_at),
		        completed_at = COALESCE($4, completed_at),
		        error = CASE WHEN $5 = '' THEN error ELSE $5 END,
		        result = COALESCE($6, result),
		        updated_at = now()
		 WHERE id = $1
		 RETURNING `+taskColumns,
		id, string(upd.Status), executedAt, completedAt, upd.Error, upd.Result)

	t, err := scanTask(row)
	if err != nil {
		return nil, notFoundWrap(err, "update task status %s", id)
	}
	return &t, nil
}

func (s *Store) UpdateTaskControl(ctx context.Context, id string, control task.Role) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE tasks SET control = $2, updated_at = now() WHERE id = $1
		 RETURNING `+taskColumns,
		id, string(control))

	t, err := scanTask(row)
	if err != nil {
		return nil, notFoundWrap(err, "update task control %s", id)
	}
	return &t, nil
}

func (s *Store) MarkTaskQueued(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET queued_at = $2, updated_at = now() WHERE id = $1`, id, at)
	return execExpectOne(tag, err, "mark task queued %s", id)
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete task %s", id)
}

func (s *Store) DeleteTasks(ctx context.Context, status task.Status) (int64, error) {
	var (
		tag pgconn.CommandTag
		err error
	)
	if status == "" {
		tag, err = s.pool.Exec(ctx, `DELETE FROM tasks`)
	} else {
		tag, err = s.pool.Exec(ctx, `DELETE FROM tasks WHERE status = $1`, string(status))
	}
	if err != nil {
		return 0, fmt.Errorf("delete tasks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DueScheduledTasks returns PENDING scheduled tasks whose scheduled_for
// has passed and that have not been queued yet, highest priority first.
func (s *Store) DueScheduledTasks(ctx context.Context, now time.Time) ([]task.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE type = $1 AND status = $2 AND queued_at IS NULL AND scheduled_for <= $3
		 ORDER BY CASE priority
		            WHEN 'URGENT' THEN 3
		            WHEN 'HIGH' THEN 2
		            WHEN 'MEDIUM' THEN 1
		            ELSE 0
		          END DESC, scheduled_for ASC`,
		string(task.TypeScheduled), string(task.StatusPending), now)
	if err != nil {
		return nil, fmt.Errorf("due scheduled tasks: %w", err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// RunningTaskID returns the id of the single RUNNING task, or "" if none.
func (s *Store) RunningTaskID(ctx context.Context) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM tasks WHERE status = $1 LIMIT 1`, string(task.StatusRunning)).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("running task: %w", err)
	}
	return id, nil
}

func scanTask(row scannable) (task.Task, error) {
	var (
		t                                      task.Task
		modelJSON                              []byte
		scheduled, queued, executed, completed *time.Time
		errMsg                                 *string
	)
	err := row.Scan(&t.ID, &t.Description, &t.Type, &t.Status, &t.Priority, &t.Control,
		&t.CreatedBy, &modelJSON, &scheduled, &queued, &executed, &completed,
		&errMsg, &t.Result, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if err := json.Unmarshal(modelJSON, &t.Model); err != nil {
		return t, fmt.Errorf("unmarshal model: %w", err)
	}
	t.ScheduledFor = deref(scheduled)
	t.QueuedAt = deref(queued)
	t.ExecutedAt = deref(executed)
	t.CompletedAt = deref(completed)
	if errMsg != nil {
		t.Error = *errMsg
	}
	return t, nil
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
