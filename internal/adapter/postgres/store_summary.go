package postgres

import (
	"context"
	"fmt"

	"github.com/bytebot-ai/bytebot/internal/domain/summary"
)

func (s *Store) CreateSummary(ctx context.Context, taskID, content, parentID string) (*summary.Summary, error) {
	var sm summary.Summary
	err := s.pool.QueryRow(ctx,
		`INSERT INTO summaries (task_id, content, parent_id) VALUES ($1, $2, $3)
		 RETURNING id, task_id, content, COALESCE(parent_id::text, ''), created_at, updated_at`,
		taskID, content, nullIfEmpty(parentID),
	).Scan(&sm.ID, &sm.TaskID, &sm.Content, &sm.ParentID, &sm.CreatedAt, &sm.UpdatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "create summary for task %s", taskID)
	}
	return &sm, nil
}

func (s *Store) ListSummaries(ctx context.Context, taskID string) ([]summary.Summary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, task_id, content, COALESCE(parent_id::text, ''), created_at, updated_at
		 FROM summaries WHERE task_id = $1 ORDER BY created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	var summaries []summary.Summary
	for rows.Next() {
		var sm summary.Summary
		if err := rows.Scan(&sm.ID, &sm.TaskID, &sm.Content, &sm.ParentID, &sm.CreatedAt, &sm.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, sm)
	}
	return summaries, rows.Err()
}
