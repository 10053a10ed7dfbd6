package tools

import "github.com/klarahealth/agentcore/pkg/llms"

// ToDefinition converts Info into the provider-agnostic ToolDefinition
// shape every LLM adapter binds a tool call against.
func (i Info) ToDefinition() llms.ToolDefinition {
	schema := i.Schema
	if schema == nil {
		schema = map[string]interface{}{"type": "object"}
	}
	return llms.ToolDefinition{
		Name:        i.Symbol,
		Description: i.Description,
		Parameters:  schema,
	}
}

// Definitions converts a slice of Info into provider-agnostic definitions,
// the shape the graph engine and specialist scheduler bind per LLM call.
func Definitions(infos []Info) []llms.ToolDefinition {
	out := make([]llms.ToolDefinition, len(infos))
	for idx, info := range infos {
		out[idx] = info.ToDefinition()
	}
	return out
}
