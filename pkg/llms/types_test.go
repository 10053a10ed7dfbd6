package llms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToolDefinitionRoundTripsParameters(t *testing.T) {
	def := ToolDefinition{
		Name:        "query_patient_info",
		Description: "Look up a patient record",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"patient_id": map[string]interface{}{"type": "string"},
			},
			"required": []string{"patient_id"},
		},
	}

	assert.Equal(t, "query_patient_info", def.Name)
	props, ok := def.Parameters["properties"].(map[string]interface{})
	assert.True(t, ok)
	assert.Contains(t, props, "patient_id")
}

func TestStreamChunkVariants(t *testing.T) {
	text := StreamChunk{Type: "text", Text: "hello"}
	assert.Equal(t, "hello", text.Text)

	call := StreamChunk{Type: "tool_call", ToolCall: &ToolCall{Name: "get_weather"}}
	assert.Equal(t, "get_weather", call.ToolCall.Name)

	done := StreamChunk{Type: "done", Tokens: 42}
	assert.Equal(t, 42, done.Tokens)
}
