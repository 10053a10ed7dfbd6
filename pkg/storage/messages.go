package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Message roles (§3 ChatMessage.role).
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message lifecycle statuses (§3 Lifecycle invariants): pending is the only
// valid initial status, and the row may only move pending -> streaming ->
// one of {completed, error, interrupted}, never backwards.
const (
	StatusPending     = "pending"
	StatusStreaming   = "streaming"
	StatusCompleted   = "completed"
	StatusError       = "error"
	StatusInterrupted = "interrupted"
)

// ChatMessage is one persisted turn message.
type ChatMessage struct {
	ID                   string
	SessionID            string
	Role                 string
	Content              string
	ToolCallsJSON        string
	Reasoning            string
	PatientReferencesJSON string
	Status               string
	TaskID               string
	LogsJSON             string
	StreamingStartedAt   sql.NullTime
	CompletedAt          sql.NullTime
	ErrorMessage         string
	TokenUsageJSON       string
	CreatedAt            time.Time
	LastUpdatedAt        time.Time
}

// CreateMessage inserts a new row. Assistant rows created ahead of a worker
// starting must be created with Status=StatusPending (§4.9 step 1).
func (s *Store) CreateMessage(ctx context.Context, m *ChatMessage) error {
	now := time.Now().UTC()
	m.CreatedAt = now
	m.LastUpdatedAt = now
	if m.Status == "" {
		m.Status = StatusCompleted
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO chat_messages (
	id, session_id, role, content, tool_calls_json, reasoning,
	patient_references_json, status, task_id, logs_json,
	streaming_started_at, completed_at, error_message, token_usage_json,
	created_at, last_updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.Role, m.Content, nullableString(m.ToolCallsJSON), nullableString(m.Reasoning),
		nullableString(m.PatientReferencesJSON), m.Status, nullableString(m.TaskID), nullableString(m.LogsJSON),
		m.StreamingStartedAt, m.CompletedAt, nullableString(m.ErrorMessage), nullableString(m.TokenUsageJSON),
		m.CreatedAt, m.LastUpdatedAt)
	if err != nil {
		return fmt.Errorf("storage: create message: %w", err)
	}
	return nil
}

// MessageUpdate is a partial update applied transactionally to a single
// row; nil fields are left untouched. This is the vehicle for both C7's
// incremental flushes and its terminal writes.
type MessageUpdate struct {
	Content               *string
	ToolCallsJSON         *string
	Reasoning             *string
	PatientReferencesJSON *string
	Status                *string
	TaskID                *string
	LogsJSON              *string
	StreamingStartedAt    *time.Time
	CompletedAt           *time.Time
	ErrorMessage          *string
	TokenUsageJSON        *string
}

// UpdateMessage applies upd to message id inside a single transaction,
// satisfying §6.3's "transactional append semantics for an assistant row
// update (single-row write)".
func (s *Store) UpdateMessage(ctx context.Context, id string, upd MessageUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: update message: begin: %w", err)
	}
	defer tx.Rollback()

	sets := []string{"last_updated_at = ?"}
	args := []interface{}{time.Now().UTC()}

	addString := func(col string, v *string) {
		if v != nil {
			sets = append(sets, col+" = ?")
			args = append(args, *v)
		}
	}
	addTime := func(col string, v *time.Time) {
		if v != nil {
			sets = append(sets, col+" = ?")
			args = append(args, *v)
		}
	}

	addString("content", upd.Content)
	addString("tool_calls_json", upd.ToolCallsJSON)
	addString("reasoning", upd.Reasoning)
	addString("patient_references_json", upd.PatientReferencesJSON)
	addString("status", upd.Status)
	addString("task_id", upd.TaskID)
	addString("logs_json", upd.LogsJSON)
	addString("error_message", upd.ErrorMessage)
	addString("token_usage_json", upd.TokenUsageJSON)
	addTime("streaming_started_at", upd.StreamingStartedAt)
	addTime("completed_at", upd.CompletedAt)

	query := "UPDATE chat_messages SET " + joinSets(sets) + " WHERE id = ?"
	args = append(args, id)

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("storage: update message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: update message: rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

// GetMessage returns sql.ErrNoRows if the message does not exist.
func (s *Store) GetMessage(ctx context.Context, id string) (*ChatMessage, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, session_id, role, content, tool_calls_json, reasoning,
	patient_references_json, status, task_id, logs_json,
	streaming_started_at, completed_at, error_message, token_usage_json,
	created_at, last_updated_at
FROM chat_messages WHERE id = ?`, id)
	return scanMessage(row)
}

// ListMessages returns every message in session, ordered by creation time
// (§6.3's "ordered reads of all messages in a session by creation time").
func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, role, content, tool_calls_json, reasoning,
	patient_references_json, status, task_id, logs_json,
	streaming_started_at, completed_at, error_message, token_usage_json,
	created_at, last_updated_at
FROM chat_messages WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("storage: list messages: %w", err)
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*ChatMessage, error) {
	var m ChatMessage
	var toolCalls, reasoning, refs, taskID, logs, errMsg, usage sql.NullString
	err := row.Scan(
		&m.ID, &m.SessionID, &m.Role, &m.Content, &toolCalls, &reasoning,
		&refs, &m.Status, &taskID, &logs,
		&m.StreamingStartedAt, &m.CompletedAt, &errMsg, &usage,
		&m.CreatedAt, &m.LastUpdatedAt)
	if err != nil {
		return nil, err
	}
	m.ToolCallsJSON = toolCalls.String
	m.Reasoning = reasoning.String
	m.PatientReferencesJSON = refs.String
	m.TaskID = taskID.String
	m.LogsJSON = logs.String
	m.ErrorMessage = errMsg.String
	m.TokenUsageJSON = usage.String
	return &m, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func joinSets(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}

// MarshalUsage is a small convenience used by pkg/turn to serialize
// accumulated token usage for the token_usage_json column.
func MarshalUsage(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
