package llms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	name string
}

func (m *mockProvider) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (string, []ToolCall, int, error) {
	return "ok", nil, 1, nil
}

func (m *mockProvider) GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 1)
	ch <- StreamChunk{Type: "done"}
	close(ch)
	return ch, nil
}

func (m *mockProvider) GetModelName() string    { return m.name }
func (m *mockProvider) GetMaxTokens() int       { return 4096 }
func (m *mockProvider) GetTemperature() float64 { return 0 }
func (m *mockProvider) Close() error            { return nil }

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterLLM("anthropic", &mockProvider{name: "claude-sonnet-4"}))

	got, err := r.GetLLM("anthropic")
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4", got.GetModelName())
}

func TestRegistry_RegisterRejectsEmptyName(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterLLM("", &mockProvider{})
	assert.Error(t, err)
}

func TestRegistry_RegisterRejectsNilProvider(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterLLM("anthropic", nil)
	assert.Error(t, err)
}

func TestRegistry_GetMissing(t *testing.T) {
	r := NewRegistry()
	_, err := r.GetLLM("missing")
	assert.Error(t, err)
}
