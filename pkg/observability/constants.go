package observability

import "go.opentelemetry.io/otel/attribute"

// DefaultServiceName is the resource service.name reported by this
// process when no override is configured.
const DefaultServiceName = "agentcore"

// Span names. The core starts spans only with SpanToolExecution and
// SpanSpecialistConsult; SpanGraphIteration and SpanTurnExecute are
// defined but not used by any code in this module.
const (
	SpanToolExecution      = "tool.execute"
	SpanSpecialistConsult   = "specialist.consult"
	SpanGraphIteration      = "graph.iteration"
	SpanTurnExecute         = "turn.execute"
)

// Attribute keys shared across spans and log lines.
var (
	AttrServiceNameKey  = attribute.Key("service.name")
	AttrToolName        = attribute.Key("tool.name")
	AttrToolScope        = attribute.Key("tool.scope")
	AttrSpecialistID     = attribute.Key("specialist.id")
	AttrTurnID           = attribute.Key("turn.id")
	AttrSessionID        = attribute.Key("session.id")
	AttrLLMModel         = attribute.Key("llm.model")
	AttrLLMTokensInput   = attribute.Key("llm.tokens.input")
	AttrLLMTokensOutput  = attribute.Key("llm.tokens.output")
	AttrGraphStep        = attribute.Key("graph.step")
	AttrErrorType        = attribute.Key("error.type")
)
