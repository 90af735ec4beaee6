// Package config provides configuration loading and validation for the
// workflow engine. Config files are JSON with ${VAR} environment variable
// substitution, so API keys stay out of the file itself.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"medflow/pkg/llm"
)

// Defaults applied when the file omits a value.
const (
	DefaultGatewayTimeoutSec   = 30
	DefaultInferenceTimeoutSec = 60
	DefaultClassifyTimeoutSec  = 15
	DefaultMaxRounds           = 3
	DefaultHistoryPath         = "medflow.db"
	DefaultMetricsAddr         = ":9090"
)

// OracleConfig selects the language model used for intent classification and
// report polishing.
type OracleConfig struct {
	Provider string `json:"provider"` // "openai", "anthropic" or "ollama"
	Model    string `json:"model"`
	APIKey   string `json:"api_key,omitempty"`
	BaseURL  string `json:"base_url,omitempty"` // For LM Studio / self-hosted endpoints
}

// GatewayConfig points at the patient-data backend.
type GatewayConfig struct {
	BaseURL    string `json:"base_url"`
	TimeoutSec int    `json:"timeout_sec"`
}

// InferenceConfig describes how to launch and reach the medical inference
// service over MCP stdio.
type InferenceConfig struct {
	Command    string   `json:"command"`
	Args       []string `json:"args,omitempty"`
	ToolName   string   `json:"tool_name"`
	TimeoutSec int      `json:"timeout_sec"`
}

// Config is the full engine configuration.
type Config struct {
	Oracle    OracleConfig    `json:"oracle"`
	Gateway   GatewayConfig   `json:"gateway"`
	Inference InferenceConfig `json:"inference"`

	ClassifyTimeoutSec int    `json:"classify_timeout_sec"`
	MaxRounds          int    `json:"max_rounds"`   // Clarification round bound
	PolicyPath         string `json:"policy_path"`  // Empty selects the embedded profiles
	HistoryPath        string `json:"history_path"` // SQLite consultation store
	MetricsAddr        string `json:"metrics_addr"` // Empty disables the metrics endpoint
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv substitutes ${VAR} references with environment values. Unset
// variables expand to the empty string; validation catches the fallout.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := string(match[2 : len(match)-1])
		return []byte(os.Getenv(name))
	})
}

// Load reads, substitutes and validates the config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(expandEnv(data), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Gateway.TimeoutSec <= 0 {
		c.Gateway.TimeoutSec = DefaultGatewayTimeoutSec
	}
	if c.Inference.TimeoutSec <= 0 {
		c.Inference.TimeoutSec = DefaultInferenceTimeoutSec
	}
	if c.ClassifyTimeoutSec <= 0 {
		c.ClassifyTimeoutSec = DefaultClassifyTimeoutSec
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = DefaultMaxRounds
	}
	if c.HistoryPath == "" {
		c.HistoryPath = DefaultHistoryPath
	}
}

// Validate rejects configs that cannot produce a working engine.
func (c *Config) Validate() error {
	switch c.Oracle.Provider {
	case llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderOllama:
	case "":
		return fmt.Errorf("oracle.provider is required")
	default:
		return fmt.Errorf("unknown oracle provider %q", c.Oracle.Provider)
	}
	if c.Oracle.Model == "" {
		return fmt.Errorf("oracle.model is required")
	}
	if c.Oracle.Provider != llm.ProviderOllama && c.Oracle.APIKey == "" && c.Oracle.BaseURL == "" {
		return fmt.Errorf("oracle.api_key is required for provider %s", c.Oracle.Provider)
	}
	if strings.TrimSpace(c.Gateway.BaseURL) == "" {
		return fmt.Errorf("gateway.base_url is required")
	}
	if strings.TrimSpace(c.Inference.Command) == "" {
		return fmt.Errorf("inference.command is required")
	}
	if c.Inference.ToolName == "" {
		return fmt.Errorf("inference.tool_name is required")
	}
	return nil
}

// OracleEndpoint converts the oracle section into an LLM endpoint config.
func (c *Config) OracleEndpoint() llm.EndpointConfig {
	return llm.EndpointConfig{
		Provider: c.Oracle.Provider,
		Model:    c.Oracle.Model,
		APIKey:   c.Oracle.APIKey,
		BaseURL:  c.Oracle.BaseURL,
	}
}

// GatewayTimeout returns the gateway timeout as a duration.
func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.Gateway.TimeoutSec) * time.Second
}

// InferenceTimeout returns the inference timeout as a duration.
func (c *Config) InferenceTimeout() time.Duration {
	return time.Duration(c.Inference.TimeoutSec) * time.Second
}

// ClassifyTimeout returns the intent oracle timeout as a duration.
func (c *Config) ClassifyTimeout() time.Duration {
	return time.Duration(c.ClassifyTimeoutSec) * time.Second
}
