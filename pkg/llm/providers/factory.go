// Package providers constructs concrete LLM clients from endpoint
// configuration. It lives apart from package llm so the interface package
// stays free of provider SDK dependencies.
package providers

import (
	"fmt"

	"medflow/pkg/llm"
	"medflow/pkg/llm/anthropic"
	"medflow/pkg/llm/ollama"
	"medflow/pkg/llm/openaiofficial"
)

// New builds a client for the endpoint, wrapped with default retry behavior.
func New(cfg llm.EndpointConfig) (llm.Client, error) {
	var client llm.Client

	switch cfg.Provider {
	case llm.ProviderOpenAI:
		if cfg.BaseURL != "" {
			client = openaiofficial.NewClientWithBaseURL(cfg.APIKey, cfg.Model, cfg.BaseURL)
		} else {
			client = openaiofficial.NewClient(cfg.APIKey, cfg.Model)
		}
	case llm.ProviderAnthropic:
		client = anthropic.NewClient(cfg.APIKey, cfg.Model)
	case llm.ProviderOllama:
		client = ollama.NewClient(cfg.BaseURL, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}

	return llm.NewRetryableClient(client, llm.DefaultRetryConfig), nil
}
