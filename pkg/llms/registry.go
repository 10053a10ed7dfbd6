package llms

import (
	"context"
	"fmt"

	"github.com/klarahealth/agentcore/pkg/registry"
)

// LLMProvider is the one abstraction the core takes a dependency on for
// model access; the provider's own internals (retries, rate limiting,
// backend choice) are out of scope here.
type LLMProvider interface {
	Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (text string, toolCalls []ToolCall, tokens int, err error)
	GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error)
	GetModelName() string
	GetMaxTokens() int
	GetTemperature() float64
	Close() error
}

// Registry is a named lookup of configured providers, reusing the same
// generic store as the tool registry.
type Registry struct {
	store *registry.Store[LLMProvider]
}

func NewRegistry() *Registry {
	return &Registry{store: registry.New[LLMProvider]()}
}

func (r *Registry) RegisterLLM(name string, provider LLMProvider) error {
	if name == "" {
		return fmt.Errorf("llms: provider name cannot be empty")
	}
	if provider == nil {
		return fmt.Errorf("llms: provider cannot be nil")
	}
	return r.store.Put(name, provider)
}

func (r *Registry) GetLLM(name string) (LLMProvider, error) {
	provider, ok := r.store.Get(name)
	if !ok {
		return nil, fmt.Errorf("llms: provider %q not found", name)
	}
	return provider, nil
}
