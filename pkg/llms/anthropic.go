package llms

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures the Anthropic provider adapter.
type AnthropicConfig struct {
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// AnthropicProvider is a thin LLMProvider adapter over the official SDK.
// The provider's own retry/backoff/rate-limit behavior is the SDK's
// concern, not this adapter's — per the non-goal that the LLM provider
// itself is an external black box.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
}

func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llms: anthropic API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &AnthropicProvider{
		client:      anthropic.NewClient(opts...),
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}, nil
}

func (p *AnthropicProvider) GetModelName() string    { return p.model }
func (p *AnthropicProvider) GetMaxTokens() int        { return p.maxTokens }
func (p *AnthropicProvider) GetTemperature() float64  { return p.temperature }
func (p *AnthropicProvider) Close() error              { return nil }

// Generate performs a single non-streaming completion.
func (p *AnthropicProvider) Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (string, []ToolCall, int, error) {
	params, err := p.buildParams(messages, tools)
	if err != nil {
		return "", nil, 0, err
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", nil, 0, fmt.Errorf("llms: anthropic generate: %w", err)
	}

	var text string
	var calls []ToolCall
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text += variant.Text
		case anthropic.ToolUseBlock:
			raw, _ := json.Marshal(variant.Input)
			var args map[string]interface{}
			_ = json.Unmarshal(raw, &args)
			calls = append(calls, ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: args,
				RawArgs:   string(raw),
			})
		}
	}

	tokens := int(resp.Usage.InputTokens + resp.Usage.OutputTokens)
	return text, calls, tokens, nil
}

// GenerateStreaming performs a streaming completion, translating Anthropic
// SSE events into StreamChunk values on the returned channel.
func (p *AnthropicProvider) GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error) {
	params, err := p.buildParams(messages, tools)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)

		stream := p.client.Messages.NewStreaming(ctx, params)

		var currentCall *ToolCall
		var currentArgs []byte
		var totalTokens int

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "content_block_start":
				block := event.AsContentBlockStart().ContentBlock
				if block.Type == "tool_use" {
					use := block.AsToolUse()
					currentCall = &ToolCall{ID: use.ID, Name: use.Name}
					currentArgs = currentArgs[:0]
				}
			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				switch delta.Type {
				case "text_delta":
					if delta.Text != "" {
						out <- StreamChunk{Type: "text", Text: delta.Text}
					}
				case "input_json_delta":
					currentArgs = append(currentArgs, []byte(delta.PartialJSON)...)
				}
			case "content_block_stop":
				if currentCall != nil {
					var args map[string]interface{}
					_ = json.Unmarshal(currentArgs, &args)
					currentCall.Arguments = args
					currentCall.RawArgs = string(currentArgs)
					out <- StreamChunk{Type: "tool_call", ToolCall: currentCall}
					currentCall = nil
				}
			case "message_delta":
				delta := event.AsMessageDelta()
				if delta.Usage.OutputTokens > 0 {
					totalTokens += int(delta.Usage.OutputTokens)
				}
			case "message_stop":
				out <- StreamChunk{Type: "done", Tokens: totalTokens}
				return
			}
		}

		if err := stream.Err(); err != nil {
			out <- StreamChunk{Type: "error", Error: fmt.Errorf("llms: anthropic stream: %w", err)}
		}
	}()

	return out, nil
}

func (p *AnthropicProvider) buildParams(messages []Message, tools []ToolDefinition) (anthropic.MessageNewParams, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(p.maxTokens),
	}

	var converted []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == "system" {
			params.System = append(params.System, anthropic.TextBlockParam{Text: msg.Content})
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		if msg.Role == "tool" {
			content = append(content, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		}
		for _, call := range msg.ToolCalls {
			content = append(content, anthropic.NewToolUseBlock(call.ID, call.Arguments, call.Name))
		}

		role := anthropic.MessageParamRoleUser
		if msg.Role == "assistant" {
			role = anthropic.MessageParamRoleAssistant
		}
		converted = append(converted, anthropic.MessageParam{Role: role, Content: content})
	}
	params.Messages = converted

	if len(tools) > 0 {
		toolParams := make([]anthropic.ToolUnionParam, 0, len(tools))
		for _, t := range tools {
			raw, err := json.Marshal(t.Parameters)
			if err != nil {
				return params, fmt.Errorf("llms: marshal tool schema for %s: %w", t.Name, err)
			}
			var schema anthropic.ToolInputSchemaParam
			if err := json.Unmarshal(raw, &schema); err != nil {
				return params, fmt.Errorf("llms: invalid tool schema for %s: %w", t.Name, err)
			}
			tp := anthropic.ToolUnionParamOfTool(schema, t.Name)
			if tp.OfTool != nil {
				tp.OfTool.Description = anthropic.String(t.Description)
			}
			toolParams = append(toolParams, tp)
		}
		params.Tools = toolParams
	}

	return params, nil
}
