// Package scheduler implements the Specialist Consultation Scheduler
// (C4): fan-out N specialist workers concurrently under a semaphore and a
// wall-clock deadline, each performing a single-step ReAct turn, then
// fan-in their reports in input role order.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/klarahealth/agentcore/pkg/llms"
	"github.com/klarahealth/agentcore/pkg/messages"
	"github.com/klarahealth/agentcore/pkg/observability"
	"github.com/klarahealth/agentcore/pkg/specialists"
	"github.com/klarahealth/agentcore/pkg/tools"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrentSpecialists and DefaultSpecialistTimeout are the
// §5 concurrency-limit defaults, used whenever a Request leaves its
// corresponding field unset.
const (
	DefaultMaxConcurrentSpecialists = 5
	DefaultSpecialistTimeout        = 30 * time.Second
)

// Request describes one consultation batch.
type Request struct {
	Roles         []string
	Query         messages.Message // the forwarded query, typically messages.User(...)
	Catalogue     *specialists.Catalogue
	Provider      llms.LLMProvider
	Registry      *tools.Registry
	MaxConcurrent int
	Timeout       time.Duration

	// EmitLog, if set, receives one call per tool dispatched during a
	// worker's ReAct step (§4.4 step 4d: start, end, duration), so a
	// specialist's internal tool activity surfaces as a typed log event on
	// the caller's stream instead of only a server-side slog line. Optional:
	// callers outside a live turn (tests, offline batch runs) may leave it
	// nil.
	EmitLog func(message, level string, duration time.Duration)
}

// Consult runs Request.Roles concurrently, at most Request.MaxConcurrent
// at a time, joined under Request.Timeout, and returns one report Message
// per role in input order (§4.4). A batch-wide deadline discards whatever
// partial results existed and returns a single synthetic report instead
// (§9 "Partial specialist results on timeout": discard, matching observed
// behavior).
func Consult(ctx context.Context, req Request) []messages.Message {
	maxConcurrent := req.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentSpecialists
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultSpecialistTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make([]messages.Message, len(req.Roles))
	sem := semaphore.NewWeighted(int64(maxConcurrent))

	var wg sync.WaitGroup
	done := make(chan struct{})

	for i, role := range req.Roles {
		sp, ok := req.Catalogue.Resolve(role)
		if !ok {
			results[i] = errorReport(role, fmt.Sprintf(
				"specialist %q not found. Available specialists: %s",
				role, strings.Join(req.Catalogue.DisplayNames(), ", ")))
			continue
		}

		wg.Add(1)
		go func(idx int, sp specialists.Specialist) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				results[idx] = errorReport(sp.DisplayName, "batch deadline exceeded before this worker could start")
				return
			}
			defer sem.Release(1)
			results[idx] = runWorker(ctx, req, sp)
		}(i, sp)
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return results
	case <-ctx.Done():
		return []messages.Message{messages.System(
			"REPORT: the specialist consultation deadline was exceeded before all specialists finished; no partial results were kept.",
		)}
	}
}

// runWorker performs the one-step ReAct turn for a single specialist
// (§4.4 step 4): one LLM call, an optional sequential tool batch, one
// follow-up LLM call, then stop — no further tool rounds.
func runWorker(ctx context.Context, req Request, sp specialists.Specialist) (result messages.Message) {
	start := time.Now()
	tracer := observability.GetTracer("agentcore.scheduler")
	ctx, span := tracer.Start(ctx, observability.SpanSpecialistConsult,
		trace.WithAttributes(observability.AttrSpecialistID.String(sp.ID)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			result = errorReport(sp.DisplayName, fmt.Sprintf("%v", r))
			span.RecordError(fmt.Errorf("%v", r))
			span.SetStatus(codes.Error, "specialist worker panicked")
		}
		observability.GetGlobalMetrics().RecordSpecialistConsultation(ctx, sp.ID, time.Since(start))
	}()

	toolInfos := dedupeToolInfos(
		req.Registry.ListForSpecialist(sp.ID, sp.ToolSymbols),
		req.Registry.ListForScope(scopePtr(tools.ScopeGlobal)),
	)
	toolDefs := tools.Definitions(toolInfos)

	history := []messages.Message{messages.System(sp.SystemPrompt), req.Query}

	text, calls, _, err := req.Provider.Generate(ctx, messages.ToLLM(history), toolDefs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "initial generation failed")
		return errorReport(sp.DisplayName, err.Error())
	}
	if len(calls) == 0 {
		span.SetStatus(codes.Ok, "no tool calls")
		return wrapReport(sp.DisplayName, text)
	}

	domainCalls := messages.FromLLMToolCalls(calls)
	history = append(history, messages.Assistant(text, domainCalls...))

	for _, call := range domainCalls {
		callStart := time.Now()
		callResult := req.Registry.Execute(ctx, call.Name, call.Args)
		duration := time.Since(callStart)
		slog.Info("specialist tool call",
			"specialist", sp.DisplayName, "tool", call.Name,
			"ok", callResult.OK, "duration", duration)
		if req.EmitLog != nil {
			level := "info"
			if !callResult.OK {
				level = "error"
			}
			req.EmitLog(fmt.Sprintf("specialist %s: tool %s completed", sp.DisplayName, call.Name), level, duration)
		}

		resultText := callResult.Value
		if !callResult.OK {
			resultText = "Error: " + callResult.Err
		}
		history = append(history, messages.NewToolResult(call.ID, resultText))
	}

	followUpText, _, _, err := req.Provider.Generate(ctx, messages.ToLLM(history), toolDefs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "follow-up generation failed")
		return errorReport(sp.DisplayName, err.Error())
	}

	span.SetStatus(codes.Ok, "completed")
	return wrapReport(sp.DisplayName, followUpText)
}

func wrapReport(displayName, content string) messages.Message {
	return messages.System(fmt.Sprintf("REPORT FROM SPECIALIST **[%s]**:\n%s", displayName, content))
}

func errorReport(displayName, errText string) messages.Message {
	return messages.System(fmt.Sprintf("REPORT FROM SPECIALIST **[%s]**: Error: %s", displayName, errText))
}

func dedupeToolInfos(sets ...[]tools.Info) []tools.Info {
	seen := make(map[string]bool)
	var out []tools.Info
	for _, set := range sets {
		for _, info := range set {
			if seen[info.Symbol] {
				continue
			}
			seen[info.Symbol] = true
			out = append(out, info)
		}
	}
	return out
}

func scopePtr(s tools.Scope) *tools.Scope { return &s }
