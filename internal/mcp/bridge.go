package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aipp-workbench/engine/internal/mcpregistry"
)

// ToolCaller defines the MCP tool execution contract used by the executor.
type ToolCaller interface {
	CallTool(ctx context.Context, serverID, toolName string, arguments map[string]any) (*ToolCallResult, error)
}

// TransportExecutor implements dispatcher.Executor for mcpregistry.Handle
// values of kind HandleTransport, dispatching the call over the manager's
// live JSON-RPC connection to the target server.
type TransportExecutor struct {
	caller ToolCaller
}

// NewTransportExecutor wraps caller (typically a *Manager) as a
// dispatcher.Executor.
func NewTransportExecutor(caller ToolCaller) *TransportExecutor {
	return &TransportExecutor{caller: caller}
}

// Execute satisfies dispatcher.Executor. Built-in handles (handle.Kind ==
// mcpregistry.HandleBuiltin) are never routed here by the dispatcher; this
// executor only ever sees HandleTransport handles.
func (e *TransportExecutor) Execute(ctx context.Context, conversationID string, handle *mcpregistry.Handle, parameters string) (string, error) {
	var arguments map[string]any
	if strings.TrimSpace(parameters) != "" {
		if err := json.Unmarshal([]byte(parameters), &arguments); err != nil {
			return "", fmt.Errorf("decode tool parameters: %w", err)
		}
	}

	result, err := e.caller.CallTool(ctx, handle.Server.ID, handle.Tool.ToolName, arguments)
	if err != nil {
		return "", err
	}

	content, isError := formatToolCallResult(result)
	if isError {
		return content, fmt.Errorf("mcp tool %s.%s returned an error result", handle.Server.Name, handle.Tool.ToolName)
	}
	return content, nil
}

func formatToolCallResult(result *ToolCallResult) (string, bool) {
	if result == nil {
		return "", false
	}
	if len(result.Content) == 0 {
		return "", result.IsError
	}

	allText := true
	var combined strings.Builder
	for _, item := range result.Content {
		if item.Type != "text" {
			allText = false
			break
		}
		if item.Text == "" {
			continue
		}
		if combined.Len() > 0 {
			combined.WriteString("\n")
		}
		combined.WriteString(item.Text)
	}

	if allText && combined.Len() > 0 {
		return combined.String(), result.IsError
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return "", result.IsError
	}
	return string(payload), result.IsError
}
