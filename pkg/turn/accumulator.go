package turn

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/klarahealth/agentcore/pkg/bus"
	"github.com/klarahealth/agentcore/pkg/entities"
	"github.com/klarahealth/agentcore/pkg/graph"
	"github.com/klarahealth/agentcore/pkg/storage"
)

// frame is the wire shape published to the bus; its Type field is what
// StreamingService.StreamTurn watches for to recognize a terminal frame.
type frame struct {
	Type       string                 `json:"type"`
	Content    string                 `json:"content,omitempty"`
	ToolCallID string                 `json:"tool_call_id,omitempty"`
	ToolName   string                 `json:"tool_name,omitempty"`
	ToolArgs   map[string]interface{} `json:"tool_args,omitempty"`
	ResultText string                 `json:"result_text,omitempty"`
	LogMessage string                 `json:"log_message,omitempty"`
	LogLevel   string                 `json:"log_level,omitempty"`
	References []entityReference      `json:"references,omitempty"`
	Status     string                 `json:"status,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// entityReference is the bus/storage projection of one detected span
// (§4.6 step 6 "patient_references").
type entityReference struct {
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

// accumulator owns the mutable state of one in-flight turn: the
// incrementally-growing content buffer, the tool-call log, token usage,
// and the bookkeeping that drives the time/event-count flush trigger
// (§4.7 "Incremental persistence").
type accumulator struct {
	store     *storage.Store
	bus       bus.Bus
	messageID string
	channel   string

	content     strings.Builder
	toolCalls   []toolCallRecord
	logs        []logEntry
	references  []entityReference
	usage       graph.Usage
	lastFlush   time.Time
	eventsSince int
}

type toolCallRecord struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Args     map[string]interface{} `json:"args,omitempty"`
	Result   string                 `json:"result,omitempty"`
}

type logEntry struct {
	Message  string `json:"message"`
	Level    string `json:"level"`
	Duration string `json:"duration,omitempty"`
}

func newAccumulator(store *storage.Store, b bus.Bus, messageID string) *accumulator {
	return &accumulator{
		store:     store,
		bus:       b,
		messageID: messageID,
		channel:   bus.ChannelFor(messageID),
		lastFlush: time.Now(),
	}
}

// observe is the graph's emit callback: it folds one event into the
// accumulator, republishes it on the bus, runs an entity-detection pass
// when due, and flushes to storage when the time/event-count trigger
// fires (§4.7 steps "Execution" and "Incremental persistence").
func (a *accumulator) observe(ctx context.Context, ev graph.Event, tracker *entities.Tracker) {
	a.eventsSince++

	passDue := false
	switch ev.Type {
	case graph.EventContent:
		a.content.WriteString(ev.Content)
		passDue = tracker.Observe(ev.Content)
		a.publish(ctx, frame{Type: "content", Content: ev.Content})
	case graph.EventToolCall:
		a.toolCalls = append(a.toolCalls, toolCallRecord{ID: ev.ToolCallID, Name: ev.ToolName, Args: ev.ToolArgs})
		a.publish(ctx, frame{Type: "tool_call", ToolCallID: ev.ToolCallID, ToolName: ev.ToolName, ToolArgs: ev.ToolArgs})
	case graph.EventToolResult:
		for i := range a.toolCalls {
			if a.toolCalls[i].ID == ev.ToolCallID {
				a.toolCalls[i].Result = ev.ResultText
				break
			}
		}
		a.publish(ctx, frame{Type: "tool_result", ToolCallID: ev.ToolCallID, ResultText: ev.ResultText})
	case graph.EventLog:
		entry := logEntry{Message: ev.LogMessage, Level: ev.LogLevel}
		if ev.LogDuration > 0 {
			entry.Duration = ev.LogDuration.String()
		}
		a.logs = append(a.logs, entry)
		a.publish(ctx, frame{Type: "log", LogMessage: ev.LogMessage, LogLevel: ev.LogLevel})
	case graph.EventUsage:
		a.usage.PromptTokens += ev.Usage.PromptTokens
		a.usage.CompletionTokens += ev.Usage.CompletionTokens
		a.usage.TotalTokens += ev.Usage.TotalTokens
	case graph.EventDone:
		passDue = true // force a final detector pass before the terminal write
	}

	if passDue {
		a.runDetectorPass(ctx, tracker)
	}

	if a.eventsSince >= flushEventsTrigger() || time.Since(a.lastFlush) >= flushEvery {
		a.flush(ctx, storage.StatusStreaming, "")
	}
}

// flushEventsTrigger returns the event-count flush threshold that observe
// compares eventsSince against.
func flushEventsTrigger() int { return flushEveryEvents }

func (a *accumulator) runDetectorPass(ctx context.Context, tracker *entities.Tracker) {
	fresh := tracker.Pass(a.content.String())
	if len(fresh) == 0 {
		return
	}
	for _, s := range fresh {
		ref := entityReference{EntityID: s.EntityID, EntityName: s.EntityName, Start: s.Start, End: s.End}
		a.references = append(a.references, ref)
		a.publish(ctx, frame{Type: "patient_references", References: []entityReference{ref}})
	}
}

func (a *accumulator) publish(ctx context.Context, f frame) {
	payload, err := json.Marshal(f)
	if err != nil {
		slog.Warn("turn: failed to marshal frame", "error", err)
		return
	}
	if err := a.bus.Publish(ctx, a.channel, payload); err != nil {
		slog.Warn("turn: failed to publish frame", "channel", a.channel, "error", err)
	}
}

// flush persists the accumulator's current state to the message row. When
// status is terminal, callers should use one of finishCompleted/
// finishError/finishInterrupted instead, which also set completed_at.
func (a *accumulator) flush(ctx context.Context, status, errMsg string) {
	content := a.content.String()
	toolCallsJSON := marshalJSON(a.toolCalls)
	logsJSON := marshalJSON(a.logs)
	refsJSON := marshalJSON(a.references)
	usageJSON := marshalJSON(a.usage)

	upd := storage.MessageUpdate{
		Content:               &content,
		ToolCallsJSON:         &toolCallsJSON,
		LogsJSON:              &logsJSON,
		PatientReferencesJSON: &refsJSON,
		TokenUsageJSON:        &usageJSON,
		Status:                &status,
	}
	if errMsg != "" {
		upd.ErrorMessage = &errMsg
	}

	if err := a.store.UpdateMessage(ctx, a.messageID, upd); err != nil {
		slog.Error("turn: failed to flush message", "message_id", a.messageID, "error", err)
	}
	a.lastFlush = time.Now()
	a.eventsSince = 0
}

func (a *accumulator) finishCompleted(ctx context.Context) {
	now := time.Now().UTC()
	a.flush(ctx, storage.StatusCompleted, "")
	_ = a.store.UpdateMessage(ctx, a.messageID, storage.MessageUpdate{CompletedAt: &now})
	a.publish(ctx, frame{Type: "done", Status: storage.StatusCompleted})
}

func (a *accumulator) finishError(ctx context.Context, errMsg string) {
	now := time.Now().UTC()
	a.flush(ctx, storage.StatusError, errMsg)
	_ = a.store.UpdateMessage(ctx, a.messageID, storage.MessageUpdate{CompletedAt: &now})
	a.publish(ctx, frame{Type: "error", Status: storage.StatusError, Error: errMsg})
}

func (a *accumulator) finishInterrupted(ctx context.Context, reason string) {
	now := time.Now().UTC()
	a.flush(ctx, storage.StatusInterrupted, reason)
	_ = a.store.UpdateMessage(ctx, a.messageID, storage.MessageUpdate{CompletedAt: &now})
	a.publish(ctx, frame{Type: "error", Status: storage.StatusInterrupted, Error: reason})
}
