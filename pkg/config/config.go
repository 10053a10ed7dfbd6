// Package config loads the process configuration once at startup: YAML into
// a loosely-typed map, environment variable expansion over that map, then a
// typed decode via mapstructure. There is no hot-reload or watch path — this
// core's configuration is a startup-only concern.
package config

import (
	"fmt"
	"time"
)

// Config is the full typed configuration for one process.
type Config struct {
	Graph       GraphConfig       `yaml:"graph" mapstructure:"graph"`
	Scheduler   SchedulerConfig   `yaml:"scheduler" mapstructure:"scheduler"`
	Storage     StorageConfig     `yaml:"storage" mapstructure:"storage"`
	Bus         BusConfig         `yaml:"bus" mapstructure:"bus"`
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Tools       ToolsConfig       `yaml:"tools" mapstructure:"tools"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	LogLevel    string            `yaml:"log_level" mapstructure:"log_level"`
}

// GraphConfig bounds the agent/tools execution loop (C5).
type GraphConfig struct {
	MaxIterations int `yaml:"max_iterations" mapstructure:"max_iterations"`
}

// SchedulerConfig bounds specialist consultation fan-out (C4).
type SchedulerConfig struct {
	MaxConcurrentSpecialists int           `yaml:"max_concurrent_specialists" mapstructure:"max_concurrent_specialists"`
	SpecialistTimeout        time.Duration `yaml:"specialist_timeout" mapstructure:"specialist_timeout"`
}

// StorageConfig configures the SQLite-backed durable store.
type StorageConfig struct {
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// BusConfig configures the event bus (C8); when RedisAddr is empty the
// in-memory implementation is used instead.
type BusConfig struct {
	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr"`
}

// LLMConfig configures the one wired LLM provider adapter.
type LLMConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"`
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// ToolsConfig carries one HTTP timeout shared by the HTTP-backed tools; it
// is not set per tool.
type ToolsConfig struct {
	HTTPTimeout time.Duration `yaml:"http_timeout" mapstructure:"http_timeout"`
}

// ObservabilityConfig toggles tracing.
type ObservabilityConfig struct {
	TracingEnabled bool   `yaml:"tracing_enabled" mapstructure:"tracing_enabled"`
	ServiceName    string `yaml:"service_name" mapstructure:"service_name"`
}

// SetDefaults fills zero-valued fields with the core's operating defaults.
func (c *Config) SetDefaults() {
	if c.Graph.MaxIterations <= 0 {
		c.Graph.MaxIterations = 10
	}
	if c.Scheduler.MaxConcurrentSpecialists <= 0 {
		c.Scheduler.MaxConcurrentSpecialists = 5
	}
	if c.Scheduler.SpecialistTimeout <= 0 {
		c.Scheduler.SpecialistTimeout = 30 * time.Second
	}
	if c.Storage.DSN == "" {
		c.Storage.DSN = "file:agentcore.db?_pragma=busy_timeout(5000)"
	}
	if c.Tools.HTTPTimeout <= 0 {
		c.Tools.HTTPTimeout = 90 * time.Second
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "anthropic"
	}
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = "agentcore"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks invariants that SetDefaults cannot repair on its own.
func (c *Config) Validate() error {
	if c.Graph.MaxIterations <= 0 {
		return fmt.Errorf("config: graph.max_iterations must be positive")
	}
	if c.Scheduler.MaxConcurrentSpecialists <= 0 {
		return fmt.Errorf("config: scheduler.max_concurrent_specialists must be positive")
	}
	if c.LLM.Provider == "anthropic" && c.LLM.APIKey == "" {
		return fmt.Errorf("config: llm.api_key is required for provider %q", c.LLM.Provider)
	}
	return nil
}
