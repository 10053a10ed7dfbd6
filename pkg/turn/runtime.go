// Package turn implements the Turn Runtime (C7): it owns a single user
// turn end to end — assembling the initial TurnState, driving the Graph
// Execution Engine, flushing partial progress to durable storage, and
// publishing every event on the Event Bus for a live consumer.
package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klarahealth/agentcore/pkg/bus"
	"github.com/klarahealth/agentcore/pkg/entities"
	"github.com/klarahealth/agentcore/pkg/graph"
	"github.com/klarahealth/agentcore/pkg/messages"
	"github.com/klarahealth/agentcore/pkg/storage"
	"github.com/klarahealth/agentcore/pkg/tasks"
)

// ContextResolver resolves a patient_id or record_id reference into the
// text the turn prefixes/suffixes onto the user message (§4.7 Setup).
// patient_id and record_id are both "context injectors" over this single
// port — a generalization of the distillation's two bespoke-looking lines,
// made explicit here (see SPEC_FULL.md's C7 supplement).
type ContextResolver interface {
	ResolvePatientContext(ctx context.Context, patientID string) (string, error)
	ResolveRecordContext(ctx context.Context, recordID string) (string, error)
	GetPatientProfile(ctx context.Context, patientID string) (id, name string, found bool, err error)
}

// flushEvery/flushEveryEvents implement §4.7's incremental-persistence
// trigger: whichever condition is met first forces a partial write.
const (
	flushEvery       = 5 * time.Second
	flushEveryEvents = 50
)

// Runtime drives one turn at a time; it is safe to share across
// concurrently-running turns since all mutable state lives in the
// per-call accumulator.
type Runtime struct {
	Store    *storage.Store
	Bus      bus.Bus
	Resolver ContextResolver
	Engine   *graph.Engine

	// Recall is the optional contextual-lookup collaborator (§1 non-goal:
	// treated as an opaque Recall(query,user)→[]string). Nil disables it.
	Recall func(ctx context.Context, query, userID string) ([]string, error)
}

// RunTurn implements tasks.Runner: it drives job to completion, handling
// every termination path §4.7 describes (normal DONE, uncaught error,
// cancellation).
func (rt *Runtime) RunTurn(ctx context.Context, job tasks.Job) (err error) {
	acc := newAccumulator(rt.Store, rt.Bus, job.AssistantMessageID)

	defer func() {
		if r := recover(); r != nil {
			acc.finishError(ctx, fmt.Sprintf("panic: %v", r))
			err = fmt.Errorf("turn: panicked: %v", r)
		}
	}()

	now := time.Now().UTC()
	streaming := storage.StatusStreaming
	taskID := job.TaskID
	if uerr := rt.Store.UpdateMessage(ctx, job.AssistantMessageID, storage.MessageUpdate{
		Status: &streaming, StreamingStartedAt: &now, TaskID: &taskID,
	}); uerr != nil {
		return fmt.Errorf("turn: transition to streaming: %w", uerr)
	}

	state, tracker, err := rt.assembleState(ctx, job)
	if err != nil {
		acc.finishError(ctx, err.Error())
		return fmt.Errorf("turn: assemble state: %w", err)
	}

	_, runErr := rt.Engine.Run(ctx, state, func(ev graph.Event) {
		acc.observe(ctx, ev, tracker)
	})

	if runErr != nil {
		if ctx.Err() != nil {
			acc.finishInterrupted(ctx, "cancelled: "+ctx.Err().Error())
			return ctx.Err()
		}
		acc.finishError(ctx, runErr.Error())
		return fmt.Errorf("turn: run: %w", runErr)
	}

	acc.finishCompleted(ctx)
	return nil
}

// assembleState implements §4.7's Setup: build the context prefix, load
// prior session history, and construct the initial TurnState.
func (rt *Runtime) assembleState(ctx context.Context, job tasks.Job) (*graph.TurnState, *entities.Tracker, error) {
	var prefix string
	var profile *graph.PatientProfile

	if job.PatientID != "" {
		line, err := rt.Resolver.ResolvePatientContext(ctx, job.PatientID)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve patient context: %w", err)
		}
		if line != "" {
			prefix = line + " "
		}
		if id, name, found, err := rt.Resolver.GetPatientProfile(ctx, job.PatientID); err == nil && found {
			profile = &graph.PatientProfile{ID: id, Name: name}
		}
	}

	var suffix string
	if job.RecordID != "" {
		text, err := rt.Resolver.ResolveRecordContext(ctx, job.RecordID)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve record context: %w", err)
		}
		if text != "" {
			suffix = "\n\n" + text
		}
	}

	var recallSnippets []messages.Message
	if rt.Recall != nil {
		snippets, err := rt.Recall(ctx, job.UserMessageText, job.UserID)
		if err == nil {
			for _, s := range snippets {
				recallSnippets = append(recallSnippets, messages.System(s))
			}
		}
	}

	history, err := rt.loadHistory(ctx, job.SessionID, job.AssistantMessageID)
	if err != nil {
		return nil, nil, err
	}

	msgs := make([]messages.Message, 0, len(history)+1)
	msgs = append(msgs, recallSnippets...)
	msgs = append(msgs, history...)
	msgs = append(msgs, messages.User(prefix+job.UserMessageText+suffix))

	state := &graph.TurnState{Messages: msgs, PatientProfile: profile}

	candidates, err := rt.Store.ListEntityCandidates(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list entity candidates: %w", err)
	}
	if profile != nil {
		found := false
		for _, c := range candidates {
			if c.ID == profile.ID {
				found = true
				break
			}
		}
		if !found {
			candidates = append(candidates, entities.Entity{ID: profile.ID, Name: profile.Name})
		}
	}

	return state, entities.NewTracker(candidates), nil
}

// loadHistory converts every prior, non-empty message in the session
// (excluding the just-created assistant row itself) into a messages.Message
// (§4.7 Setup).
func (rt *Runtime) loadHistory(ctx context.Context, sessionID, excludeMessageID string) ([]messages.Message, error) {
	rows, err := rt.Store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	var out []messages.Message
	for _, row := range rows {
		if row.ID == excludeMessageID || row.Content == "" {
			continue
		}
		switch row.Role {
		case storage.RoleUser:
			out = append(out, messages.User(row.Content))
		case storage.RoleAssistant:
			out = append(out, messages.Assistant(row.Content))
		case storage.RoleSystem:
			out = append(out, messages.System(row.Content))
		}
	}
	return out, nil
}

func marshalJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
