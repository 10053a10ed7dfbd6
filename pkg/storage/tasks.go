package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TaskRow is the durable record backing the Durable Task Supervisor (C9):
// one row per turn attempt-tracking task, distinct from the ChatMessage row
// it drives.
type TaskRow struct {
	ID        string
	MessageID string
	SessionID string
	Status    string
	Attempt   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Store) CreateTask(ctx context.Context, t TaskRow) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, message_id, session_id, status, attempt, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.MessageID, t.SessionID, t.Status, t.Attempt, now, now)
	if err != nil {
		return fmt.Errorf("storage: create task: %w", err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*TaskRow, error) {
	var t TaskRow
	err := s.db.QueryRowContext(ctx,
		`SELECT id, message_id, session_id, status, attempt, created_at, updated_at FROM tasks WHERE id = ?`, id,
	).Scan(&t.ID, &t.MessageID, &t.SessionID, &t.Status, &t.Attempt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTask sets status and attempt count for task id.
func (s *Store) UpdateTask(ctx context.Context, id, status string, attempt int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, attempt = ?, updated_at = ? WHERE id = ?`,
		status, attempt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("storage: update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
