package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/klarahealth/agentcore/pkg/bus"
	"github.com/klarahealth/agentcore/pkg/storage"
)

// statusFrame is the §6.2 `status` event shape: a one-time snapshot used
// both for reconnect catch-up and the terminal forward.
type statusFrame struct {
	Type              string          `json:"type"`
	Status            string          `json:"status"`
	Content           string          `json:"content,omitempty"`
	ToolCalls         json.RawMessage `json:"tool_calls,omitempty"`
	Reasoning         string          `json:"reasoning,omitempty"`
	Logs              json.RawMessage `json:"logs,omitempty"`
	PatientReferences json.RawMessage `json:"patient_references,omitempty"`
	ErrorMessage      string          `json:"error_message,omitempty"`
	Usage             json.RawMessage `json:"usage,omitempty"`
}

type doneFrame struct {
	Type string `json:"type"`
}

// StreamingService wraps Service with the bus dependency StreamTurn needs;
// Service itself stays bus-agnostic so non-streaming callers (batch
// reconciliation, tests) don't need a Bus at all.
type StreamingService struct {
	*Service
	Bus bus.Bus
}

// StreamTurn implements §4.9's reconnect catch-up semantics: read the
// durable row once, and either emit its snapshot plus a done frame and
// close (terminal) or emit a resume snapshot and then forward the live bus
// tail.
func (s *StreamingService) StreamTurn(ctx context.Context, messageID string) (<-chan []byte, error) {
	out := make(chan []byte, 16)

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("tasks: stream turn: %w", err)
	}

	if isTerminalStatus(msg.Status) {
		go func() {
			defer close(out)
			emitFrame(out, snapshotFrame(msg))
			emitFrame(out, doneFrame{Type: "done"})
		}()
		return out, nil
	}

	live, unsubscribe, err := s.Bus.Subscribe(ctx, bus.ChannelFor(messageID))
	if err != nil {
		return nil, fmt.Errorf("tasks: subscribe: %w", err)
	}

	go func() {
		defer close(out)
		defer unsubscribe()

		emitFrame(out, snapshotFrame(msg))

		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-live:
				if !ok {
					return
				}
				select {
				case out <- frame:
				case <-ctx.Done():
					return
				}
				if isTerminalFrame(frame) {
					return
				}
			}
		}
	}()

	return out, nil
}

func snapshotFrame(msg *storage.ChatMessage) statusFrame {
	f := statusFrame{Type: "status", Status: msg.Status, Content: msg.Content, Reasoning: msg.Reasoning, ErrorMessage: msg.ErrorMessage}
	if msg.ToolCallsJSON != "" {
		f.ToolCalls = json.RawMessage(msg.ToolCallsJSON)
	}
	if msg.LogsJSON != "" {
		f.Logs = json.RawMessage(msg.LogsJSON)
	}
	if msg.PatientReferencesJSON != "" {
		f.PatientReferences = json.RawMessage(msg.PatientReferencesJSON)
	}
	if msg.TokenUsageJSON != "" {
		f.Usage = json.RawMessage(msg.TokenUsageJSON)
	}
	return f
}

func emitFrame(out chan<- []byte, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	out <- b
}

func isTerminalFrame(frame []byte) bool {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &probe); err != nil {
		return false
	}
	return probe.Type == "done" || probe.Type == "error"
}
