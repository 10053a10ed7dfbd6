package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ChatSession is a persisted conversation thread.
type ChatSession struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CreateSession inserts a new session, or returns the existing row if id
// already exists (idempotent for C9's synchronous session creation).
func (s *Store) CreateSession(ctx context.Context, id, title string) (*ChatSession, error) {
	existing, err := s.GetSession(ctx, id)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, title, now, now)
	if err != nil {
		return nil, fmt.Errorf("storage: create session: %w", err)
	}
	return &ChatSession{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

// GetSession returns sql.ErrNoRows if the session does not exist.
func (s *Store) GetSession(ctx context.Context, id string) (*ChatSession, error) {
	var cs ChatSession
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM chat_sessions WHERE id = ?`, id,
	).Scan(&cs.ID, &cs.Title, &cs.CreatedAt, &cs.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &cs, nil
}
