package messages

import "github.com/klarahealth/agentcore/pkg/llms"

// ToLLM translates a turn's Message history into the provider wire format.
// A ToolResult becomes a "tool" role message addressed by ToolCallID, the
// shape every provider adapter expects for feeding a tool's output back in.
func ToLLM(history []Message) []llms.Message {
	out := make([]llms.Message, 0, len(history))
	for _, m := range history {
		switch m.Kind {
		case KindSystem:
			out = append(out, llms.Message{Role: "system", Content: m.Text})
		case KindUser:
			out = append(out, llms.Message{Role: "user", Content: m.Text})
		case KindAssistant:
			out = append(out, llms.Message{Role: "assistant", Content: m.Text, ToolCalls: toLLMToolCalls(m.ToolCalls)})
		case KindToolResult:
			out = append(out, llms.Message{Role: "tool", Content: m.Text, ToolCallID: m.CallID})
		}
	}
	return out
}

func toLLMToolCalls(calls []ToolCall) []llms.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]llms.ToolCall, len(calls))
	for i, c := range calls {
		out[i] = llms.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Args}
	}
	return out
}

// FromLLMToolCalls converts a provider's returned tool calls back into the
// domain ToolCall shape used to build an Assistant message.
func FromLLMToolCalls(calls []llms.ToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolCall, len(calls))
	for i, c := range calls {
		out[i] = ToolCall{ID: c.ID, Name: c.Name, Args: c.Arguments}
	}
	return out
}
