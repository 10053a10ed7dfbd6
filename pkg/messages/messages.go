// Package messages defines the tagged-union Message type shared by the
// graph engine, the specialist scheduler, and the turn runtime. A Message
// is one of System, User, Assistant, or ToolResult — never a single struct
// with optional fields for every variant, so a caller that pattern-matches
// on Kind cannot forget a case the compiler would otherwise hide in a
// zero-valued field.
package messages

import "fmt"

// Kind discriminates the Message union.
type Kind string

const (
	KindSystem     Kind = "system"
	KindUser       Kind = "user"
	KindAssistant  Kind = "assistant"
	KindToolResult Kind = "tool_result"
)

// ToolCall is one function call an assistant message requested.
type ToolCall struct {
	ID   string                 `json:"id"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// Message is the append-only unit of conversation state. Construct one via
// System, User, Assistant, or NewToolResult — never the zero value, which
// carries an empty Kind no switch below matches.
type Message struct {
	Kind      Kind
	Text      string
	ToolCalls []ToolCall // set only on KindAssistant
	CallID    string     // set only on KindToolResult
}

// System builds a system-role message.
func System(text string) Message { return Message{Kind: KindSystem, Text: text} }

// User builds a user-role message.
func User(text string) Message { return Message{Kind: KindUser, Text: text} }

// Assistant builds an assistant-role message, optionally carrying tool
// calls the model requested.
func Assistant(text string, toolCalls ...ToolCall) Message {
	return Message{Kind: KindAssistant, Text: text, ToolCalls: toolCalls}
}

// NewToolResult builds the message fed back to the model after a tool call
// completes; text carries the tool's rendered output (or error text) for
// the call identified by callID.
func NewToolResult(callID, text string) Message {
	return Message{Kind: KindToolResult, CallID: callID, Text: text}
}

// IsAssistant reports whether m is an assistant-role message.
func (m Message) IsAssistant() bool { return m.Kind == KindAssistant }

// HasToolCalls reports whether an assistant message requested tool calls.
func (m Message) HasToolCalls() bool { return m.Kind == KindAssistant && len(m.ToolCalls) > 0 }

// String renders a short human-readable form, useful in logs and tests.
func (m Message) String() string {
	switch m.Kind {
	case KindToolResult:
		return fmt.Sprintf("tool_result[%s]: %s", m.CallID, m.Text)
	case KindAssistant:
		if len(m.ToolCalls) > 0 {
			return fmt.Sprintf("assistant: %s (+%d tool call(s))", m.Text, len(m.ToolCalls))
		}
		return fmt.Sprintf("assistant: %s", m.Text)
	default:
		return fmt.Sprintf("%s: %s", m.Kind, m.Text)
	}
}
