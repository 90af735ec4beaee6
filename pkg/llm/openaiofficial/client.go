// Package openaiofficial provides an LLM client backed by the official OpenAI
// Go package. It also serves OpenAI-compatible endpoints (LM Studio, vLLM)
// through a base URL override, which is how locally hosted clinical models
// such as MedGemma are reached.
package openaiofficial

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"medflow/pkg/llm"
	"medflow/pkg/llm/llmerrors"
)

// Client wraps the official OpenAI Go client to implement llm.Client.
type Client struct {
	client openai.Client
	model  string
}

// NewClient creates a client against the hosted OpenAI API.
func NewClient(apiKey, model string) llm.Client {
	return &Client{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// NewClientWithBaseURL creates a client against an OpenAI-compatible endpoint.
// baseURL should include the /v1 suffix (e.g. "http://localhost:1234/v1").
func NewClientWithBaseURL(apiKey, model, baseURL string) llm.Client {
	opts := []option.RequestOption{option.WithBaseURL(baseURL)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &Client{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Complete implements the llm.Client interface.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(in.Messages))
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case llm.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case llm.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt,
				fmt.Sprintf("unsupported message role: %s", msg.Role))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		MaxTokens:   openai.Int(int64(in.MaxTokens)),
		Temperature: openai.Float(float64(in.Temperature)),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse,
			"received empty response from OpenAI-compatible endpoint")
	}

	return llm.CompletionResponse{Content: resp.Choices[0].Message.Content}, nil
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit"):
		return llmerrors.WrapError(llmerrors.ErrorTypeRateLimit, "endpoint rate limited", err)
	case strings.Contains(errStr, "401") || strings.Contains(errStr, "403") || strings.Contains(errStr, "api key"):
		return llmerrors.WrapError(llmerrors.ErrorTypeAuth, "endpoint authentication failed", err)
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "EOF") || strings.Contains(errStr, "502") || strings.Contains(errStr, "503"):
		return llmerrors.WrapError(llmerrors.ErrorTypeTransient, "endpoint unreachable", err)
	case strings.Contains(errStr, "400") || strings.Contains(errStr, "maximum context length"):
		return llmerrors.WrapError(llmerrors.ErrorTypeBadPrompt, "endpoint rejected request", err)
	default:
		return llmerrors.WrapError(llmerrors.ErrorTypeUnknown, "endpoint error", err)
	}
}
