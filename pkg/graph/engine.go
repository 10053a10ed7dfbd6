// Package graph implements the Graph Execution Engine (C5): a bounded
// two-node state machine (agent, tools) with one conditional edge, driving
// a TurnState to completion and emitting a typed event stream as it goes.
package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/klarahealth/agentcore/pkg/llms"
	"github.com/klarahealth/agentcore/pkg/messages"
	"github.com/klarahealth/agentcore/pkg/observability"
	"github.com/klarahealth/agentcore/pkg/specialists"
	"github.com/klarahealth/agentcore/pkg/tools"
)

// DefaultMaxIterations is the §3 TurnState.steps_taken cap.
const DefaultMaxIterations = 10

// Engine drives one turn's agent/tools loop.
type Engine struct {
	MainSystemPrompt string
	MaxIterations    int
	Registry         *tools.Registry
	Catalogue        *specialists.Catalogue
	Provider         llms.LLMProvider

	// SchedulerMaxConcurrent/SchedulerTimeout are forwarded to every
	// scheduler.Consult call a delegate_to_specialist dispatch makes.
	SchedulerMaxConcurrent int
	SchedulerTimeout       time.Duration
}

// Run drives state to DONE, emitting every event via emit as it's
// produced (§4.7 "Execution" — the turn runtime is the consumer). It
// returns the final state. The iteration counter is incremented before
// the LLM call it gates; the cap check happens before that call is
// issued, so a turn makes at most MaxIterations agent-node LLM calls
// (§9 "Iteration counter semantics" — the overflow message itself never
// calls the LLM).
func (e *Engine) Run(ctx context.Context, state *TurnState, emit func(Event)) (*TurnState, error) {
	maxIterations := e.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	for {
		state.StepsTaken++
		observability.GetGlobalMetrics().RecordGraphIteration(ctx, state.StepsTaken)

		if state.StepsTaken > maxIterations {
			overflow := messages.Assistant("I've reached my tool-execution budget for this turn and must stop here. Please ask a follow-up question to continue.")
			state.AppendMessage(overflow)
			emit(Event{Type: EventContent, Content: overflow.Text})
			emit(Event{Type: EventDone})
			return state, nil
		}

		toolInfos := e.Registry.ListForScope(scopePtr(tools.ScopeGlobal))
		allowedSymbols := make(map[string]bool, len(toolInfos))
		for _, info := range toolInfos {
			allowedSymbols[info.Symbol] = true
		}
		toolDefs := append(tools.Definitions(toolInfos), delegateToolDefinition())

		llmMessages := messages.ToLLM(append([]messages.Message{messages.System(e.MainSystemPrompt)}, state.Messages...))

		assistantMsg, err := e.callAgent(ctx, llmMessages, toolDefs, emit)
		if err != nil {
			return state, err
		}
		state.AppendMessage(assistantMsg)

		if !assistantMsg.HasToolCalls() {
			emit(Event{Type: EventDone})
			return state, nil
		}

		e.runToolsNode(ctx, state, assistantMsg.ToolCalls, allowedSymbols, emit)
	}
}

// callAgent invokes the LLM in streaming mode, degrading to a single
// synthetic content event when the provider does not support streaming
// (§6.1 degradation).
func (e *Engine) callAgent(ctx context.Context, llmMessages []llms.Message, toolDefs []llms.ToolDefinition, emit func(Event)) (messages.Message, error) {
	stream, err := e.Provider.GenerateStreaming(ctx, llmMessages, toolDefs)
	if err == nil && stream != nil {
		text, calls, usage, streamErr := consumeStream(stream, emit)
		if streamErr != nil {
			return messages.Message{}, streamErr
		}
		if usage.TotalTokens > 0 {
			emit(Event{Type: EventUsage, Usage: usage})
		}
		return messages.Assistant(text, calls...), nil
	}

	text, rawCalls, tokens, genErr := e.Provider.Generate(ctx, llmMessages, toolDefs)
	if genErr != nil {
		return messages.Message{}, genErr
	}
	emit(Event{Type: EventContent, Content: text})
	if tokens > 0 {
		emit(Event{Type: EventUsage, Usage: Usage{TotalTokens: tokens}})
	}
	return messages.Assistant(text, messages.FromLLMToolCalls(rawCalls)...), nil
}

func consumeStream(stream <-chan llms.StreamChunk, emit func(Event)) (string, []messages.ToolCall, Usage, error) {
	var text strings.Builder
	var calls []messages.ToolCall
	var usage Usage
	var streamErr error

	for chunk := range stream {
		switch chunk.Type {
		case "text":
			text.WriteString(chunk.Text)
			emit(Event{Type: EventContent, Content: chunk.Text})
		case "tool_call":
			if chunk.ToolCall != nil {
				calls = append(calls, messages.ToolCall{ID: chunk.ToolCall.ID, Name: chunk.ToolCall.Name, Args: chunk.ToolCall.Arguments})
			}
		case "done":
			if chunk.Tokens > 0 {
				usage.TotalTokens = chunk.Tokens
			}
		case "error":
			if chunk.Error != nil {
				streamErr = chunk.Error
			}
		}
	}
	return text.String(), calls, usage, streamErr
}

// runToolsNode dispatches every tool call from the last assistant message,
// appending a ToolResult message for each (§4.5 "tools node").
func (e *Engine) runToolsNode(ctx context.Context, state *TurnState, calls []messages.ToolCall, allowedSymbols map[string]bool, emit func(Event)) {
	for _, call := range calls {
		emit(Event{Type: EventToolCall, ToolCallID: call.ID, ToolName: call.Name, ToolArgs: call.Args})

		start := time.Now()
		var resultText string

		switch {
		case call.Name == delegateToolSymbol:
			resultText = e.dispatchDelegate(ctx, call.Args, emit)
		case allowedSymbols[call.Name]:
			result := e.Registry.Execute(ctx, call.Name, call.Args)
			if result.OK {
				resultText = result.Value
			} else {
				resultText = "Error: " + result.Err
			}
		default:
			// Scope violation: the symbol may exist in the registry under
			// a different scope, but the main agent never sees it — it
			// is reported exactly like a missing tool (§7 Scope violation).
			resultText = fmt.Sprintf("Error: Tool '%s' not found", call.Name)
		}

		emit(Event{Type: EventLog, LogMessage: fmt.Sprintf("tool %s completed", call.Name), LogLevel: "info", LogDuration: time.Since(start)})
		emit(Event{Type: EventToolResult, ToolCallID: call.ID, ResultText: resultText})

		state.AppendMessage(messages.NewToolResult(call.ID, resultText))
	}
}

func scopePtr(s tools.Scope) *tools.Scope { return &s }
