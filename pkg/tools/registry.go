package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/klarahealth/agentcore/pkg/observability"
	"github.com/klarahealth/agentcore/pkg/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RegistryError carries which subsystem/action failed, following the same
// component-scoped error shape used across the core's ambient error
// handling.
type RegistryError struct {
	Component string
	Action    string
	Message   string
	Err       error
}

func (e *RegistryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Component, e.Action, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Component, e.Action, e.Message)
}

func (e *RegistryError) Unwrap() error { return e.Err }

func newRegistryError(action, message string, err error) *RegistryError {
	return &RegistryError{Component: "ToolRegistry", Action: action, Message: message, Err: err}
}

// entry is what the store actually holds per symbol: the callable plus
// its scope metadata. The enabled bit itself lives in registry.Store, not
// here — Enable/Disable flip that bit directly rather than round-tripping
// through a read-modify-write of this struct.
type entry struct {
	tool                 Tool
	scope                Scope
	assignedSpecialistID string
}

// Registry is the process-wide tool catalogue (C1). It is the one
// process-wide mutable singleton in the core; writes happen at process
// start and during the per-turn dynamic reload, reads happen constantly
// during graph execution — the embedded store's RWMutex is what keeps a
// reload from tearing a concurrent lookup.
type Registry struct {
	store *registry.Store[entry]
}

// NewRegistry constructs an empty registry. Callers must explicitly call
// Register for every built-in tool at startup — there is no side-effecting
// init() registration in this package, by design (§9).
func NewRegistry() *Registry {
	return &Registry{store: registry.New[entry]()}
}

// Register adds symbol to the registry. Re-registering an existing symbol
// is a no-op warning unless allowOverwrite is set, in which case it
// replaces the entry.
func (r *Registry) Register(symbol string, tool Tool, scope Scope, assignedSpecialistID string, allowOverwrite bool) error {
	if symbol == "" {
		return newRegistryError("Register", "symbol cannot be empty", nil)
	}
	if _, exists := r.store.GetAny(symbol); exists && !allowOverwrite {
		slog.Warn("tool already registered, skipping", "symbol", symbol)
		return nil
	}
	return r.store.Put(symbol, entry{
		tool:                 tool,
		scope:                scope,
		assignedSpecialistID: assignedSpecialistID,
	})
}

// Get returns the tool for symbol, but only if it is currently enabled.
func (r *Registry) Get(symbol string) (Tool, bool) {
	e, ok := r.store.Get(symbol)
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// Enable flips a tool's enabled bit on, making it visible to lookups and
// listings again.
func (r *Registry) Enable(symbol string) error {
	return r.setEnabled(symbol, true)
}

// Disable flips a tool's enabled bit off; a disabled tool is invisible to
// Get, ListForScope, and ListForSpecialist.
func (r *Registry) Disable(symbol string) error {
	return r.setEnabled(symbol, false)
}

func (r *Registry) setEnabled(symbol string, enabled bool) error {
	if err := r.store.SetEnabled(symbol, enabled); err != nil {
		return newRegistryError("setEnabled", fmt.Sprintf("symbol %q not found", symbol), nil)
	}
	return nil
}

// ListForScope returns enabled tools matching scopeFilter, or every
// enabled tool when scopeFilter is nil. A tool of scope ScopeBoth matches
// any non-nil filter.
func (r *Registry) ListForScope(scopeFilter *Scope) []Info {
	var out []Info
	for _, e := range r.store.List() {
		if scopeFilter != nil && e.scope != *scopeFilter && e.scope != ScopeBoth {
			continue
		}
		out = append(out, e.tool.GetInfo())
	}
	sortInfos(out)
	return out
}

// ListForSpecialist returns enabled tools assigned directly to
// specialistID plus every tool named in toolSymbols, deduplicated by
// symbol.
func (r *Registry) ListForSpecialist(specialistID string, toolSymbols []string) []Info {
	seen := make(map[string]bool)
	var out []Info

	for _, e := range r.store.List() {
		if e.assignedSpecialistID == specialistID {
			if !seen[e.tool.Symbol()] {
				seen[e.tool.Symbol()] = true
				out = append(out, e.tool.GetInfo())
			}
		}
	}
	for _, symbol := range toolSymbols {
		if seen[symbol] {
			continue
		}
		if e, ok := r.store.Get(symbol); ok {
			seen[symbol] = true
			out = append(out, e.tool.GetInfo())
		}
	}

	sortInfos(out)
	return out
}

func sortInfos(infos []Info) {
	sort.Slice(infos, func(i, j int) bool { return infos[i].Symbol < infos[j].Symbol })
}

// Execute invokes symbol with args under a trace span, recording duration
// and error metrics for every call regardless of outcome (C2).
func (r *Registry) Execute(ctx context.Context, symbol string, args map[string]interface{}) Result {
	start := time.Now()

	tracer := observability.GetTracer("agentcore.tools")
	ctx, span := tracer.Start(ctx, observability.SpanToolExecution,
		trace.WithAttributes(observability.AttrToolName.String(symbol)))
	defer span.End()

	tool, ok := r.Get(symbol)
	if !ok {
		err := fmt.Errorf("tool %q not found", symbol)
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool not found")
		observability.GetGlobalMetrics().RecordToolExecution(ctx, symbol, time.Since(start), err)
		return Result{OK: false, Err: fmt.Sprintf("Tool '%s' not found", symbol)}
	}

	result := safeExecute(ctx, tool, args)
	duration := time.Since(start)

	var recordErr error
	if !result.OK {
		recordErr = fmt.Errorf("%s", result.Err)
		span.RecordError(recordErr)
		span.SetStatus(codes.Error, result.Err)
	} else {
		span.SetStatus(codes.Ok, "success")
	}
	observability.GetGlobalMetrics().RecordToolExecution(ctx, symbol, duration, recordErr)
	span.SetAttributes(attribute.Bool("tool.ok", result.OK))

	return result
}

// safeExecute never lets a tool panic escape — a recovered panic is
// reported through the same Result{ok=false} contract as a returned error
// (§4.2 "never propagates").
func safeExecute(ctx context.Context, tool Tool, args map[string]interface{}) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{OK: false, Err: fmt.Sprintf("%v", r)}
		}
	}()
	return tool.Execute(ctx, args)
}
