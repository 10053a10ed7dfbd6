package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/klarahealth/agentcore/pkg/llms"
	"github.com/klarahealth/agentcore/pkg/messages"
	"github.com/klarahealth/agentcore/pkg/specialists"
	"github.com/klarahealth/agentcore/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProvider struct {
	calls     int
	responses []func(msgs []llms.Message, tools []llms.ToolDefinition) (string, []llms.ToolCall, int, error)
	delay     time.Duration
}

func (p *scriptedProvider) Generate(ctx context.Context, msgs []llms.Message, toolDefs []llms.ToolDefinition) (string, []llms.ToolCall, int, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", nil, 0, ctx.Err()
		}
	}
	idx := p.calls
	p.calls++
	if idx >= len(p.responses) {
		return "done", nil, 0, nil
	}
	return p.responses[idx](msgs, toolDefs)
}
func (p *scriptedProvider) GenerateStreaming(ctx context.Context, msgs []llms.Message, toolDefs []llms.ToolDefinition) (<-chan llms.StreamChunk, error) {
	return nil, nil
}
func (p *scriptedProvider) GetModelName() string     { return "scripted" }
func (p *scriptedProvider) GetMaxTokens() int         { return 1024 }
func (p *scriptedProvider) GetTemperature() float64   { return 0 }
func (p *scriptedProvider) Close() error              { return nil }

func echoTextResponse(text string) func([]llms.Message, []llms.ToolDefinition) (string, []llms.ToolCall, int, error) {
	return func(msgs []llms.Message, toolDefs []llms.ToolDefinition) (string, []llms.ToolCall, int, error) {
		return text, nil, 0, nil
	}
}

// imagingStore persists a single non-core specialist so tests can exercise
// a consultation batch spanning more than just the core clinical_text role.
type imagingStore struct{}

func (imagingStore) ListEnabledSpecialists() ([]specialists.Specialist, error) {
	return []specialists.Specialist{
		{ID: "p-imaging", Role: "imaging", DisplayName: "Radiologist", SystemPrompt: "Review imaging studies.", Enabled: true},
	}, nil
}

func TestConsult_ReturnsReportInInputOrder(t *testing.T) {
	cat, err := specialists.Load(imagingStore{})
	require.NoError(t, err)
	reg := tools.NewRegistry()

	provider := &scriptedProvider{responses: []func([]llms.Message, []llms.ToolDefinition) (string, []llms.ToolCall, int, error){
		echoTextResponse("clinical_text says hi"),
		echoTextResponse("imaging says hi"),
	}}

	results := Consult(context.Background(), Request{
		Roles:     []string{"clinical_text", "imaging"},
		Query:     messages.User("tell me about the patient"),
		Catalogue: cat,
		Provider:  provider,
		Registry:  reg,
	})

	require.Len(t, results, 2)
	assert.Contains(t, results[0].Text, "Internist")
	assert.Contains(t, results[0].Text, "clinical_text says hi")
	assert.Contains(t, results[1].Text, "Radiologist")
}

func TestConsult_UnknownRoleDoesNotAbortBatch(t *testing.T) {
	cat, err := specialists.Load(nil)
	require.NoError(t, err)
	reg := tools.NewRegistry()

	provider := &scriptedProvider{responses: []func([]llms.Message, []llms.ToolDefinition) (string, []llms.ToolCall, int, error){
		echoTextResponse("clinical_text says hi"),
	}}

	results := Consult(context.Background(), Request{
		Roles:     []string{"nonexistent_role", "clinical_text"},
		Query:     messages.User("hi"),
		Catalogue: cat,
		Provider:  provider,
		Registry:  reg,
	})

	require.Len(t, results, 2)
	assert.Contains(t, results[0].Text, "not found")
	assert.Contains(t, results[1].Text, "clinical_text says hi")
}

func TestConsult_ExecutesToolBatchThenFollowsUp(t *testing.T) {
	cat, err := specialists.Load(nil)
	require.NoError(t, err)
	reg := tools.NewRegistry()
	require.NoError(t, reg.Register("query_patient_info",
		tools.NewQueryPatientInfoTool(&alwaysFoundStore{}), tools.ScopeAssignable, "core-clinical-text", false))

	provider := &scriptedProvider{responses: []func([]llms.Message, []llms.ToolDefinition) (string, []llms.ToolCall, int, error){
		func(msgs []llms.Message, toolDefs []llms.ToolDefinition) (string, []llms.ToolCall, int, error) {
			return "", []llms.ToolCall{{ID: "c1", Name: "query_patient_info", Arguments: map[string]interface{}{"query": "23"}}}, 0, nil
		},
		echoTextResponse("Patient 23 is doing well."),
	}}

	results := Consult(context.Background(), Request{
		Roles:     []string{"clinical_text"},
		Query:     messages.User("who is patient 23?"),
		Catalogue: cat,
		Provider:  provider,
		Registry:  reg,
	})

	require.Len(t, results, 1)
	assert.Contains(t, results[0].Text, "Patient 23 is doing well.")
	assert.Equal(t, 2, provider.calls)
}

func TestConsult_DeadlineExceededYieldsSingleSyntheticReport(t *testing.T) {
	cat, err := specialists.Load(imagingStore{})
	require.NoError(t, err)
	reg := tools.NewRegistry()

	provider := &scriptedProvider{delay: 200 * time.Millisecond}

	results := Consult(context.Background(), Request{
		Roles:     []string{"clinical_text", "imaging"},
		Query:     messages.User("hi"),
		Catalogue: cat,
		Provider:  provider,
		Registry:  reg,
		Timeout:   20 * time.Millisecond,
	})

	require.Len(t, results, 1)
	assert.Contains(t, results[0].Text, "deadline")
}

func TestConsult_ConcurrencyNeverExceedsMax(t *testing.T) {
	cat, err := specialists.Load(imagingStore{})
	require.NoError(t, err)
	reg := tools.NewRegistry()

	var mu sync.Mutex
	current, peak := 0, 0
	provider := &trackingProvider{
		onStart: func() {
			mu.Lock()
			defer mu.Unlock()
			current++
			if current > peak {
				peak = current
			}
		},
		onEnd: func() {
			mu.Lock()
			defer mu.Unlock()
			current--
		},
		delay: 30 * time.Millisecond,
	}

	roles := []string{"clinical_text", "imaging", "clinical_text", "imaging", "clinical_text"}
	_ = Consult(context.Background(), Request{
		Roles:         roles,
		Query:         messages.User("hi"),
		Catalogue:     cat,
		Provider:      provider,
		Registry:      reg,
		MaxConcurrent: 2,
		Timeout:       2 * time.Second,
	})

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2)
}

type alwaysFoundStore struct{}

func (a *alwaysFoundStore) FindPatient(ctx context.Context, query string) (tools.PatientSummary, bool, error) {
	return tools.PatientSummary{ID: "23", Name: "Jane Roe"}, true, nil
}

type trackingProvider struct {
	onStart func()
	onEnd   func()
	delay   time.Duration
}

func (p *trackingProvider) Generate(ctx context.Context, msgs []llms.Message, toolDefs []llms.ToolDefinition) (string, []llms.ToolCall, int, error) {
	p.onStart()
	defer p.onEnd()
	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		return "", nil, 0, ctx.Err()
	}
	return "ok", nil, 0, nil
}
func (p *trackingProvider) GenerateStreaming(ctx context.Context, msgs []llms.Message, toolDefs []llms.ToolDefinition) (<-chan llms.StreamChunk, error) {
	return nil, nil
}
func (p *trackingProvider) GetModelName() string   { return "tracking" }
func (p *trackingProvider) GetMaxTokens() int       { return 1024 }
func (p *trackingProvider) GetTemperature() float64 { return 0 }
func (p *trackingProvider) Close() error            { return nil }
