// Command agentcore is a thin demonstration entrypoint: it wires the
// Tool Registry, Specialist Catalogue, Graph Execution Engine, Durable
// Task Supervisor, and Turn Runtime into one process and drives a single
// turn from a prompt on the command line, streaming frames to stdout as
// they arrive. There is no HTTP transport here by design — operators
// embed the packages above into their own service instead.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/klarahealth/agentcore/pkg/bus"
	"github.com/klarahealth/agentcore/pkg/config"
	"github.com/klarahealth/agentcore/pkg/graph"
	"github.com/klarahealth/agentcore/pkg/llms"
	"github.com/klarahealth/agentcore/pkg/logger"
	"github.com/klarahealth/agentcore/pkg/observability"
	"github.com/klarahealth/agentcore/pkg/specialists"
	"github.com/klarahealth/agentcore/pkg/storage"
	"github.com/klarahealth/agentcore/pkg/tasks"
	"github.com/klarahealth/agentcore/pkg/tools"
	"github.com/klarahealth/agentcore/pkg/turn"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file; defaults are used when omitted")
	message := flag.String("message", "", "user message to send as the turn's prompt")
	patientID := flag.String("patient", "", "optional patient_id to inject as context")
	recordID := flag.String("record", "", "optional record_id to inject as context")
	flag.Parse()

	if err := run(*configPath, *message, *patientID, *recordID); err != nil {
		fmt.Fprintln(os.Stderr, "agentcore:", err)
		os.Exit(1)
	}
}

func run(configPath, message, patientID, recordID string) error {
	cfg := &config.Config{}
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Init(logger.ParseLevel(cfg.LogLevel), os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tp, err := observability.InitGlobalTracer(ctx, observability.TracerConfig{
		Enabled: cfg.Observability.TracingEnabled, ServiceName: cfg.Observability.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		if shutdowner, ok := tp.(interface{ Shutdown(context.Context) error }); ok {
			_ = shutdowner.Shutdown(context.Background())
		}
	}()
	if _, err := observability.InitGlobalMetrics(); err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	store, err := storage.Open(cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	eventBus := buildBus(cfg.Bus.RedisAddr)

	provider, err := buildProvider(cfg.LLM)
	if err != nil {
		return fmt.Errorf("build LLM provider: %w", err)
	}
	defer provider.Close()

	registry := tools.NewRegistry()
	if err := registry.Register("query_patient_info", tools.NewQueryPatientInfoTool(store), tools.ScopeAssignable, "core-clinical-text", false); err != nil {
		return fmt.Errorf("register query_patient_info: %w", err)
	}
	if err := registry.Register("get_current_datetime", tools.NewGetCurrentDatetimeTool(), tools.ScopeGlobal, "", false); err != nil {
		return fmt.Errorf("register get_current_datetime: %w", err)
	}
	httpClient := &http.Client{Timeout: cfg.Tools.HTTPTimeout}
	if err := registry.Register("get_weather", tools.NewGetWeatherTool(httpClient), tools.ScopeGlobal, "", false); err != nil {
		return fmt.Errorf("register get_weather: %w", err)
	}
	if dynamicRecords, err := store.ListToolRecords(ctx); err == nil {
		registry.ReconcileDynamic(ctx, dynamicRecords, httpClient)
	}

	specialistStore := storage.SpecialistStore{Store: store, Ctx: ctx}
	catalogue, err := specialists.Load(specialistStore)
	if err != nil {
		return fmt.Errorf("load specialist catalogue: %w", err)
	}

	engine := &graph.Engine{
		MainSystemPrompt:       mainSystemPrompt,
		MaxIterations:          cfg.Graph.MaxIterations,
		Registry:               registry,
		Catalogue:              catalogue,
		Provider:               provider,
		SchedulerMaxConcurrent: cfg.Scheduler.MaxConcurrentSpecialists,
		SchedulerTimeout:       cfg.Scheduler.SpecialistTimeout,
	}

	runtime := &turn.Runtime{
		Store:    store,
		Bus:      eventBus,
		Resolver: store,
		Engine:   engine,
	}

	supervisor := tasks.NewService(store, runtime, 4)
	supervisor.Start(ctx)
	streaming := &tasks.StreamingService{Service: supervisor, Bus: eventBus}

	if message == "" {
		return fmt.Errorf("-message is required")
	}

	handle, err := supervisor.SendTurn(ctx, tasks.Request{
		UserID: "cli-user", Message: message, PatientID: patientID, RecordID: recordID,
	})
	if err != nil {
		return fmt.Errorf("send turn: %w", err)
	}

	frames, err := streaming.StreamTurn(ctx, handle.MessageID)
	if err != nil {
		return fmt.Errorf("stream turn: %w", err)
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	for raw := range frames {
		var pretty map[string]interface{}
		if err := json.Unmarshal(raw, &pretty); err == nil {
			b, _ := json.Marshal(pretty)
			fmt.Fprintln(out, string(b))
		}
	}
	return nil
}

func buildBus(redisAddr string) bus.Bus {
	if redisAddr == "" {
		return bus.NewMemoryBus()
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	return bus.NewRedisBus(client)
}

func buildProvider(cfg config.LLMConfig) (llms.LLMProvider, error) {
	switch cfg.Provider {
	case "anthropic", "":
		return llms.NewAnthropicProvider(llms.AnthropicConfig{
			APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model,
			MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature,
		})
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

const mainSystemPrompt = `You are a clinical assistant supporting a licensed clinician. You have access to tools for looking up patient information and the current date/time, and you may delegate specialist clinical questions to a consulting specialist via delegate_to_specialist. Always be precise, cite the source of any clinical fact you state, and never fabricate patient data.`
