package graph

import "time"

// EventType discriminates the events the engine emits while driving one
// turn; the turn runtime (C7) consumes these to build incremental
// persistence and bus publication (§4.7, §6.2).
type EventType string

const (
	EventContent   EventType = "content"
	EventToolCall  EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventLog       EventType = "log"
	EventUsage     EventType = "usage"
	EventDone      EventType = "done"
)

// Usage is a cumulative token count, summed by the turn runtime across
// every usage event in a turn.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Event is one unit of the graph's output stream. Only the fields
// relevant to Type are populated.
type Event struct {
	Type EventType

	Content string // EventContent

	ToolCallID string                 // EventToolCall, EventToolResult
	ToolName   string                 // EventToolCall
	ToolArgs   map[string]interface{} // EventToolCall
	ResultText string                 // EventToolResult

	LogMessage  string        // EventLog
	LogLevel    string        // EventLog
	LogDuration time.Duration // EventLog, optional

	Usage Usage // EventUsage
}

// Entity detection (C6) runs in the turn runtime against the accumulated
// content buffer, not inside the graph engine — detection spans reference
// text positions the engine has no reason to track. The engine only ever
// emits EventContent; the turn runtime decides when to invoke the
// detector pass (§4.6 step 5) and emits its own patient_references events
// on the bus.
