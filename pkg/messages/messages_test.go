package messages

import (
	"testing"

	"github.com/klarahealth/agentcore/pkg/llms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsSetKind(t *testing.T) {
	assert.Equal(t, KindSystem, System("hi").Kind)
	assert.Equal(t, KindUser, User("hi").Kind)
	assert.Equal(t, KindAssistant, Assistant("hi").Kind)
	assert.Equal(t, KindToolResult, NewToolResult("call-1", "42").Kind)
}

func TestHasToolCalls(t *testing.T) {
	plain := Assistant("no calls here")
	assert.False(t, plain.HasToolCalls())

	withCalls := Assistant("", ToolCall{ID: "c1", Name: "get_weather"})
	assert.True(t, withCalls.HasToolCalls())
}

func TestToLLMRoundTrip(t *testing.T) {
	history := []Message{
		System("you are a clinical assistant"),
		User("what's the weather"),
		Assistant("", ToolCall{ID: "c1", Name: "get_weather", Args: map[string]interface{}{"location": "Boston"}}),
		NewToolResult("c1", "Clear sky, 20C"),
	}

	out := ToLLM(history)
	require.Len(t, out, 4)
	assert.Equal(t, "system", out[0].Role)
	assert.Equal(t, "user", out[1].Role)
	assert.Equal(t, "assistant", out[2].Role)
	require.Len(t, out[2].ToolCalls, 1)
	assert.Equal(t, "get_weather", out[2].ToolCalls[0].Name)
	assert.Equal(t, "tool", out[3].Role)
	assert.Equal(t, "c1", out[3].ToolCallID)
}

func TestFromLLMToolCalls(t *testing.T) {
	calls := FromLLMToolCalls([]llms.ToolCall{
		{ID: "c1", Name: "get_weather", Arguments: map[string]interface{}{"location": "NYC"}},
	})
	require.Len(t, calls, 1)
	assert.Equal(t, "c1", calls[0].ID)
	assert.Equal(t, "NYC", calls[0].Args["location"])
}

func TestFromLLMToolCallsEmpty(t *testing.T) {
	assert.Nil(t, FromLLMToolCalls(nil))
}
