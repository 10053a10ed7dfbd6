package graph

import (
	"context"
	"testing"

	"github.com/klarahealth/agentcore/pkg/llms"
	"github.com/klarahealth/agentcore/pkg/specialists"
	"github.com/klarahealth/agentcore/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	step int
	gens []func([]llms.Message, []llms.ToolDefinition) (string, []llms.ToolCall, int, error)
}

func (p *scriptedProvider) Generate(ctx context.Context, msgs []llms.Message, toolDefs []llms.ToolDefinition) (string, []llms.ToolCall, int, error) {
	idx := p.step
	p.step++
	if idx >= len(p.gens) {
		return "fallback", nil, 0, nil
	}
	return p.gens[idx](msgs, toolDefs)
}
func (p *scriptedProvider) GenerateStreaming(ctx context.Context, msgs []llms.Message, toolDefs []llms.ToolDefinition) (<-chan llms.StreamChunk, error) {
	return nil, nil // force the non-streaming degradation path
}
func (p *scriptedProvider) GetModelName() string     { return "scripted" }
func (p *scriptedProvider) GetMaxTokens() int         { return 1024 }
func (p *scriptedProvider) GetTemperature() float64   { return 0 }
func (p *scriptedProvider) Close() error              { return nil }

func textOnly(text string) func([]llms.Message, []llms.ToolDefinition) (string, []llms.ToolCall, int, error) {
	return func(msgs []llms.Message, defs []llms.ToolDefinition) (string, []llms.ToolCall, int, error) {
		return text, nil, 0, nil
	}
}

func toolCallThen(name string, args map[string]interface{}) func([]llms.Message, []llms.ToolDefinition) (string, []llms.ToolCall, int, error) {
	return func(msgs []llms.Message, defs []llms.ToolDefinition) (string, []llms.ToolCall, int, error) {
		return "", []llms.ToolCall{{ID: "c1", Name: name, Arguments: args}}, 0, nil
	}
}

func newTestEngine(t *testing.T, provider llms.LLMProvider, reg *tools.Registry) *Engine {
	cat, err := specialists.Load(nil)
	require.NoError(t, err)
	return &Engine{
		MainSystemPrompt: "you are a helpful clinical assistant",
		Registry:         reg,
		Catalogue:        cat,
		Provider:         provider,
	}
}

func TestRun_DirectToolPath(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register("get_current_datetime", tools.NewGetCurrentDatetimeTool(), tools.ScopeGlobal, "", false))

	provider := &scriptedProvider{gens: []func([]llms.Message, []llms.ToolDefinition) (string, []llms.ToolCall, int, error){
		toolCallThen("get_current_datetime", map[string]interface{}{"timezone": "Asia/Tokyo"}),
		textOnly("It is currently... in Tokyo."),
	}}

	engine := newTestEngine(t, provider, reg)
	state := &TurnState{}

	var events []Event
	final, err := engine.Run(context.Background(), state, func(e Event) { events = append(events, e) })
	require.NoError(t, err)

	assert.Equal(t, 2, state.StepsTaken)
	assert.Equal(t, EventDone, events[len(events)-1].Type)

	var toolCalls, toolResults int
	for _, e := range events {
		if e.Type == EventToolCall {
			toolCalls++
		}
		if e.Type == EventToolResult {
			toolResults++
		}
	}
	assert.Equal(t, 1, toolCalls)
	assert.Equal(t, 1, toolResults)
	assert.Len(t, final.Messages, 3) // assistant(tool_call) + tool_result + assistant(final)
}

func TestRun_ScopeViolationReportsNotFound(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register("secret_lookup", tools.NewGetCurrentDatetimeTool(), tools.ScopeAssignable, "some-specialist", false))

	provider := &scriptedProvider{gens: []func([]llms.Message, []llms.ToolDefinition) (string, []llms.ToolCall, int, error){
		toolCallThen("secret_lookup", map[string]interface{}{}),
		textOnly("done"),
	}}

	engine := newTestEngine(t, provider, reg)
	state := &TurnState{}

	_, err := engine.Run(context.Background(), state, func(Event) {})
	require.NoError(t, err)

	var sawError bool
	for _, m := range state.Messages {
		if m.Kind == "tool_result" && m.Text == "Error: Tool 'secret_lookup' not found" {
			sawError = true
		}
	}
	assert.True(t, sawError)
}

func TestRun_IterationCapForcesOverflow(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register("get_current_datetime", tools.NewGetCurrentDatetimeTool(), tools.ScopeGlobal, "", false))

	provider := &alwaysToolCallProvider{}
	engine := newTestEngine(t, provider, reg)
	engine.MaxIterations = 3
	state := &TurnState{}

	final, err := engine.Run(context.Background(), state, func(Event) {})
	require.NoError(t, err)

	assert.Equal(t, 4, state.StepsTaken) // 3 real calls + the overflow-triggering increment
	assert.Equal(t, 3, provider.calls)   // overflow message never calls the LLM
	last := final.Messages[len(final.Messages)-1]
	assert.Contains(t, last.Text, "budget")
}

type alwaysToolCallProvider struct{ calls int }

func (p *alwaysToolCallProvider) Generate(ctx context.Context, msgs []llms.Message, toolDefs []llms.ToolDefinition) (string, []llms.ToolCall, int, error) {
	p.calls++
	return "", []llms.ToolCall{{ID: "c", Name: "get_current_datetime", Arguments: map[string]interface{}{}}}, 0, nil
}
func (p *alwaysToolCallProvider) GenerateStreaming(ctx context.Context, msgs []llms.Message, toolDefs []llms.ToolDefinition) (<-chan llms.StreamChunk, error) {
	return nil, nil
}
func (p *alwaysToolCallProvider) GetModelName() string   { return "always" }
func (p *alwaysToolCallProvider) GetMaxTokens() int       { return 1024 }
func (p *alwaysToolCallProvider) GetTemperature() float64 { return 0 }
func (p *alwaysToolCallProvider) Close() error            { return nil }

func TestRun_AppendOnlyMessages(t *testing.T) {
	reg := tools.NewRegistry()
	provider := &scriptedProvider{gens: []func([]llms.Message, []llms.ToolDefinition) (string, []llms.ToolCall, int, error){
		textOnly("a simple answer, no tools needed"),
	}}
	engine := newTestEngine(t, provider, reg)
	state := &TurnState{}

	prevLen := 0
	_, err := engine.Run(context.Background(), state, func(Event) {
		assert.GreaterOrEqual(t, len(state.Messages), prevLen)
		prevLen = len(state.Messages)
	})
	require.NoError(t, err)
}
