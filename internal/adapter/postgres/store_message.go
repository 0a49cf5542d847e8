package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bytebot-ai/bytebot/internal/domain/message"
	"github.com/bytebot-ai/bytebot/internal/domain/task"
)

const messageColumns = `id, task_id, COALESCE(summary_id::text, ''), role, content, created_at, updated_at`

func (s *Store) AddMessage(ctx context.Context, taskID string, role task.Role, content []message.Block) (*message.Message, error) {
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO messages (task_id, role, content) VALUES ($1, $2, $3)
		 RETURNING `+messageColumns,
		taskID, string(role), contentJSON)

	m, err := scanMessage(row)
	if err != nil {
		return nil, notFoundWrap(err, "add message to task %s", taskID)
	}
	return &m, nil
}

func (s *Store) ListMessages(ctx context.Context, taskID string, excludeSummarized bool) ([]message.Message, error) {
	q := `SELECT ` + messageColumns + ` FROM messages WHERE task_id = $1`
	if excludeSummarized {
		q += ` AND summary_id IS NULL`
	}
	q += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, q, taskID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []message.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Store) LinkMessagesToSummary(ctx context.Context, messageIDs []string, summaryID string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE messages SET summary_id = $2, updated_at = now() WHERE id = ANY($1)`,
		messageIDs, summaryID)
	if err != nil {
		return fmt.Errorf("link messages to summary %s: %w", summaryID, err)
	}
	return nil
}

func scanMessage(row scannable) (message.Message, error) {
	var (
		m           message.Message
		contentJSON []byte
	)
	err := row.Scan(&m.ID, &m.TaskID, &m.SummaryID, &m.Role, &contentJSON, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(contentJSON, &m.Content); err != nil {
		return m, fmt.Errorf("unmarshal content: %w", err)
	}
	return m, nil
}
