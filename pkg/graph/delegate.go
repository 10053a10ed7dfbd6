package graph

import (
	"context"
	"strings"
	"time"

	"github.com/klarahealth/agentcore/pkg/llms"
	"github.com/klarahealth/agentcore/pkg/messages"
	"github.com/klarahealth/agentcore/pkg/scheduler"
)

// delegateToolSymbol is the synthetic tool name the agent node binds
// alongside every global-scope tool; it is never backed by the registry
// (§4.5).
const delegateToolSymbol = "delegate_to_specialist"

func delegateToolDefinition() llms.ToolDefinition {
	return llms.ToolDefinition{
		Name:        delegateToolSymbol,
		Description: "Delegate a clinical question to a specialist sub-agent, identified by role id or display name, and receive back their written report.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"specialist_name": map[string]interface{}{
					"type":        "string",
					"description": "The specialist's role id (e.g. clinical_text) or display name (e.g. Internist).",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The question or task to forward to the specialist.",
				},
			},
			"required": []interface{}{"specialist_name", "query"},
		},
	}
}

// dispatchDelegate resolves the named specialist and runs a single-role
// consultation batch through the scheduler, returning the specialist's
// report text as the tool call's string result (§4.5 delegate_to_specialist
// behaviour). The specialist's own internal tool activity (§4.4 step 4d)
// is forwarded to emit as EventLog so it is visible on the turn's stream
// and persisted to logs_json, not just the top-level delegate call/result.
func (e *Engine) dispatchDelegate(ctx context.Context, args map[string]interface{}, emit func(Event)) string {
	name, _ := args["specialist_name"].(string)
	query, _ := args["query"].(string)

	sp, ok := e.Catalogue.Resolve(name)
	if !ok {
		return "Error: specialist \"" + name + "\" not found. Available specialists: " +
			strings.Join(e.Catalogue.DisplayNames(), ", ")
	}

	reports := scheduler.Consult(ctx, scheduler.Request{
		Roles:         []string{sp.Role},
		Query:         messages.User(query),
		Catalogue:     e.Catalogue,
		Provider:      e.Provider,
		Registry:      e.Registry,
		MaxConcurrent: e.SchedulerMaxConcurrent,
		Timeout:       e.SchedulerTimeout,
		EmitLog: func(message, level string, duration time.Duration) {
			emit(Event{Type: EventLog, LogMessage: message, LogLevel: level, LogDuration: duration})
		},
	})

	var b strings.Builder
	for i, r := range reports {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(r.Text)
	}
	return b.String()
}
