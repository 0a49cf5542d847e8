package postgres

import (
	"context"
	"fmt"

	"github.com/bytebot-ai/bytebot/internal/domain/file"
)

func (s *Store) AddFile(ctx context.Context, taskID string, req file.CreateRequest) (*file.File, error) {
	var f file.File
	err := s.pool.QueryRow(ctx,
		`INSERT INTO files (task_id, name, media_type, size, data) VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, task_id, name, media_type, size, data, created_at, updated_at`,
		taskID, req.Name, req.MediaType, req.Size, req.Data,
	).Scan(&f.ID, &f.TaskID, &f.Name, &f.MediaType, &f.Size, &f.Data, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "add file to task %s", taskID)
	}
	return &f, nil
}

func (s *Store) ListFiles(ctx context.Context, taskID string) ([]file.File, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, task_id, name, media_type, size, data, created_at, updated_at
		 FROM files WHERE task_id = $1 ORDER BY created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []file.File
	for rows.Next() {
		var f file.File
		if err := rows.Scan(&f.ID, &f.TaskID, &f.Name, &f.MediaType, &f.Size, &f.Data, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
