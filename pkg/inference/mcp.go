package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"medflow/pkg/logx"
)

// DefaultCallTimeout bounds one prediction call when no timeout is configured.
const DefaultCallTimeout = 60 * time.Second

// MCPAdapter reaches the inference service through an MCP server process.
type MCPAdapter struct {
	client   *client.Client
	toolName string
	timeout  time.Duration
	logger   *logx.Logger
}

// MCPConfig describes how to launch and address the inference MCP server.
type MCPConfig struct {
	Command  string        // Server executable
	Args     []string      // Arguments to the executable
	ToolName string        // Prediction tool to invoke (e.g. "predict_risk")
	Timeout  time.Duration // Per-call timeout; zero selects DefaultCallTimeout
}

// NewMCPAdapter launches the MCP server process, initializes the session and
// verifies the prediction tool is offered.
func NewMCPAdapter(ctx context.Context, cfg MCPConfig) (*MCPAdapter, error) {
	mcpClient, err := client.NewStdioMCPClient(cfg.Command, nil, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = "2024-11-05"
	initReq.Params.Capabilities = mcp.ClientCapabilities{}
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "medflow",
		Version: "1.0.0",
	}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("failed to initialize MCP session: %w", err)
	}

	listCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	listResult, err := mcpClient.ListTools(listCtx, mcp.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("failed to list inference tools: %w", err)
	}

	found := false
	for _, tool := range listResult.Tools {
		if tool.Name == cfg.ToolName {
			found = true
			break
		}
	}
	if !found {
		mcpClient.Close()
		return nil, fmt.Errorf("inference server does not offer tool %q", cfg.ToolName)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	return &MCPAdapter{
		client:   mcpClient,
		toolName: cfg.ToolName,
		timeout:  timeout,
		logger:   logx.NewLogger("inference"),
	}, nil
}

// Diagnose implements Adapter. The input map must already be validated and
// transformed for the target model; this adapter does not fill gaps.
func (a *MCPAdapter) Diagnose(ctx context.Context, modelType string, input map[string]any) (*Prediction, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, &Error{Kind: KindInvalidInput, Message: "input is not serializable", Err: err}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	a.logger.Debug("Calling %s for model %s (%d fields)", a.toolName, modelType, len(input))
	result, err := a.client.CallTool(callCtx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name: a.toolName,
			Arguments: map[string]any{
				"model_type":   modelType,
				"patient_data": string(payload),
			},
		},
	})
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, &Error{Kind: KindTimeout, Message: "prediction call timed out", Err: err}
		}
		return nil, &Error{Kind: KindUnavailable, Message: "prediction call failed", Err: err}
	}

	text := flattenTextContent(result)
	if result.IsError {
		return nil, &Error{Kind: KindInvalidInput, Message: strings.TrimSpace(text)}
	}

	return parsePredictionPayload(text)
}

// Close shuts down the MCP server process.
func (a *MCPAdapter) Close() error {
	return a.client.Close()
}

func flattenTextContent(result *mcp.CallToolResult) string {
	var sb strings.Builder
	for _, content := range result.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}
