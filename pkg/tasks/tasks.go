// Package tasks implements the Durable Task Supervisor (C9): it accepts a
// turn request, synchronously creates the session/message rows, enqueues a
// background worker to drive the Turn Runtime, and reconciles terminal
// state on failure or cancellation. Retry semantics generalize the
// teacher's task state machine (submitted/working/completed/failed/
// cancelled) to this spec's pending/streaming/completed/error/interrupted
// lifecycle.
package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/klarahealth/agentcore/pkg/storage"
)

// State mirrors the ChatMessage status values a task's lifecycle tracks.
type State string

const (
	StatePending     State = State(storage.StatusPending)
	StateStreaming   State = State(storage.StatusStreaming)
	StateCompleted   State = State(storage.StatusCompleted)
	StateError       State = State(storage.StatusError)
	StateInterrupted State = State(storage.StatusInterrupted)
)

// IsTerminal reports whether no further transitions are expected.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateError, StateInterrupted:
		return true
	}
	return false
}

// MaxAttempts is the retry ceiling for a turn job (§4.9 "Workers").
const MaxAttempts = 3

// Request is the inbound turn request (§6.4 SendTurn).
type Request struct {
	SessionID string // empty creates a new session
	UserID    string
	Message   string
	PatientID string
	RecordID  string
}

// Handle is what SendTurn returns synchronously.
type Handle struct {
	TaskID    string
	MessageID string
	SessionID string
	Status    State
}

// Job is the unit of work a Runner executes: one attempt at driving one
// turn to completion.
type Job struct {
	TaskID             string
	SessionID          string
	AssistantMessageID string
	UserID             string
	UserMessageText    string
	PatientID          string
	RecordID           string
	Attempt            int
}

// Runner drives one turn attempt to completion. pkg/turn implements this;
// pkg/tasks depends only on the interface to avoid an import cycle (the
// turn runtime imports pkg/tasks for the Job type; pkg/tasks never
// imports pkg/turn).
type Runner interface {
	RunTurn(ctx context.Context, job Job) error
}

// Service is the SQLite-backed Durable Task Supervisor.
type Service struct {
	store       *storage.Store
	runner      Runner
	maxAttempts int
	jobs        chan Job
	workers     int
}

// NewService builds a supervisor with workerCount long-lived workers, each
// bound to a single turn at a time per §4.9 "Workers".
func NewService(store *storage.Store, runner Runner, workerCount int) *Service {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Service{
		store:       store,
		runner:      runner,
		maxAttempts: MaxAttempts,
		jobs:        make(chan Job, 64),
		workers:     workerCount,
	}
}

// Start launches the worker pool; it returns immediately and workers run
// until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	for i := 0; i < s.workers; i++ {
		go s.workerLoop(ctx)
	}
}

func (s *Service) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-s.jobs:
			if !ok {
				return
			}
			s.runAttempts(ctx, job)
		}
	}
}

// SendTurn implements §4.9's synchronous setup: create the session (if
// needed), a user message row, a pending assistant message row, a task row,
// then enqueue the job and return immediately.
func (s *Service) SendTurn(ctx context.Context, req Request) (Handle, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	if _, err := s.store.CreateSession(ctx, sessionID, ""); err != nil {
		return Handle{}, fmt.Errorf("tasks: create session: %w", err)
	}

	userMsgID := uuid.New().String()
	if err := s.store.CreateMessage(ctx, &storage.ChatMessage{
		ID: userMsgID, SessionID: sessionID, Role: storage.RoleUser,
		Content: req.Message, Status: storage.StatusCompleted,
	}); err != nil {
		return Handle{}, fmt.Errorf("tasks: create user message: %w", err)
	}

	assistantMsgID := uuid.New().String()
	if err := s.store.CreateMessage(ctx, &storage.ChatMessage{
		ID: assistantMsgID, SessionID: sessionID, Role: storage.RoleAssistant,
		Status: storage.StatusPending,
	}); err != nil {
		return Handle{}, fmt.Errorf("tasks: create assistant message: %w", err)
	}

	taskID := uuid.New().String()
	if err := s.store.CreateTask(ctx, storage.TaskRow{
		ID: taskID, MessageID: assistantMsgID, SessionID: sessionID,
		Status: string(StatePending), Attempt: 0,
	}); err != nil {
		return Handle{}, fmt.Errorf("tasks: create task: %w", err)
	}

	job := Job{
		TaskID: taskID, SessionID: sessionID, AssistantMessageID: assistantMsgID,
		UserID: req.UserID, UserMessageText: req.Message,
		PatientID: req.PatientID, RecordID: req.RecordID, Attempt: 1,
	}
	select {
	case s.jobs <- job:
	default:
		go s.runAttempts(ctx, job)
	}

	return Handle{TaskID: taskID, MessageID: assistantMsgID, SessionID: sessionID, Status: StatePending}, nil
}

// runAttempts drives job to completion, retrying up to maxAttempts on
// non-terminal failure. A retried attempt first checks whether the
// assistant row has already reached a terminal status; if so, the retry is
// a no-op (§4.9 "Workers").
func (s *Service) runAttempts(ctx context.Context, job Job) {
	for attempt := job.Attempt; attempt <= s.maxAttempts; attempt++ {
		job.Attempt = attempt

		msg, err := s.store.GetMessage(ctx, job.AssistantMessageID)
		if err == nil && isTerminalStatus(msg.Status) {
			slog.Info("task retry observed terminal row, no-op", "task_id", job.TaskID, "message_id", job.AssistantMessageID)
			return
		}

		_ = s.store.UpdateTask(ctx, job.TaskID, string(StateStreaming), attempt)

		runErr := s.runner.RunTurn(ctx, job)
		if runErr == nil {
			_ = s.store.UpdateTask(ctx, job.TaskID, string(StateCompleted), attempt)
			return
		}

		slog.Warn("turn attempt failed", "task_id", job.TaskID, "attempt", attempt, "error", runErr)
		if attempt == s.maxAttempts {
			_ = s.store.UpdateTask(ctx, job.TaskID, string(StateError), attempt)
			return
		}
	}
}

func isTerminalStatus(status string) bool {
	return State(status).IsTerminal()
}

// TaskStatusView is the §6.4 TaskStatus response shape.
type TaskStatusView struct {
	Status         string
	MessageID      string
	ContentPreview string
	Error          string
}

// TaskStatus reports the durable task's current state alongside a preview
// of the assistant message content it drives.
func (s *Service) TaskStatus(ctx context.Context, taskID string) (TaskStatusView, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return TaskStatusView{}, fmt.Errorf("tasks: get task: %w", err)
	}
	msg, err := s.store.GetMessage(ctx, task.MessageID)
	if err != nil {
		return TaskStatusView{}, fmt.Errorf("tasks: get message: %w", err)
	}

	preview := msg.Content
	if len(preview) > 200 {
		preview = preview[:200]
	}
	return TaskStatusView{
		Status: task.Status, MessageID: task.MessageID,
		ContentPreview: preview, Error: msg.ErrorMessage,
	}, nil
}
