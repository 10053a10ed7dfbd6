// Package storage implements the durable persistence contract of §6.3:
// ChatSession, ChatMessage, Specialist, and ToolRecord tables over
// modernc.org/sqlite, with the transactional single-row update and
// ordered-by-creation-time message reads the core requires.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

// Store owns the single shared *sql.DB connection. SQLite only supports one
// writer at a time, so the pool is pinned to a single connection rather
// than serialized by hand elsewhere.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// applies the schema. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		slog.Warn("storage: failed to enable WAL mode", "error", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=10000"); err != nil {
		slog.Warn("storage: failed to set busy_timeout", "error", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		slog.Warn("storage: failed to enable foreign_keys", "error", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return s, nil
}

// NewInMemory opens an ephemeral store, for tests.
func NewInMemory() (*Store, error) {
	return Open(":memory:")
}

func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id                       TEXT PRIMARY KEY,
	session_id               TEXT NOT NULL REFERENCES chat_sessions(id),
	role                     TEXT NOT NULL,
	content                  TEXT NOT NULL DEFAULT '',
	tool_calls_json          TEXT,
	reasoning                TEXT,
	patient_references_json  TEXT,
	status                   TEXT NOT NULL DEFAULT 'completed',
	task_id                  TEXT,
	logs_json                TEXT,
	streaming_started_at     TIMESTAMP,
	completed_at             TIMESTAMP,
	error_message            TEXT,
	token_usage_json         TEXT,
	created_at               TIMESTAMP NOT NULL,
	last_updated_at          TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_session_created ON chat_messages(session_id, created_at);

CREATE TABLE IF NOT EXISTS patients (
	id     TEXT PRIMARY KEY,
	name   TEXT NOT NULL,
	dob    TEXT NOT NULL DEFAULT '',
	gender TEXT NOT NULL DEFAULT '',
	records_json TEXT NOT NULL DEFAULT '[]',
	imaging_json TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS specialists (
	id            TEXT PRIMARY KEY,
	role          TEXT NOT NULL UNIQUE,
	display_name  TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	system_prompt TEXT NOT NULL DEFAULT '',
	enabled       INTEGER NOT NULL DEFAULT 1,
	tool_symbols_json TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS tool_records (
	symbol                TEXT PRIMARY KEY,
	display_name          TEXT NOT NULL DEFAULT '',
	description           TEXT NOT NULL DEFAULT '',
	kind                  TEXT NOT NULL,
	scope                 TEXT NOT NULL,
	assigned_specialist_id TEXT,
	enabled               INTEGER NOT NULL DEFAULT 1,
	endpoint              TEXT,
	args_schema_json       TEXT
);

CREATE TABLE IF NOT EXISTS records (
	id            TEXT PRIMARY KEY,
	content       TEXT NOT NULL DEFAULT '',
	metadata_json TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS tasks (
	id            TEXT PRIMARY KEY,
	message_id    TEXT NOT NULL,
	session_id    TEXT NOT NULL,
	status        TEXT NOT NULL,
	attempt       INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);
`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
