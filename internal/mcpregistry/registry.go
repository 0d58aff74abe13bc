// Package mcpregistry implements read-only enumeration and resolution
// over the configured MCP servers and tools backed by store.McpCatalogStore.
package mcpregistry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aipp-workbench/engine/internal/engineerr"
	"github.com/aipp-workbench/engine/internal/store"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// HandleKind distinguishes a built-in server from a transport-backed one.
type HandleKind string

const (
	HandleBuiltin   HandleKind = "builtin"
	HandleTransport HandleKind = "transport"
)

// Handle is the resolved target of a (server, tool) pair.
type Handle struct {
	Kind      HandleKind
	Namespace string // populated for HandleBuiltin: "search" | "operation" | "agent"
	Server    *store.McpServer
	Tool      *store.McpTool
}

// ServerWithTools pairs a server with its enabled tool list.
type ServerWithTools struct {
	Server *store.McpServer
	Tools  []*store.McpTool
}

// Registry exposes the catalog read operations over a McpCatalogStore.
type Registry struct {
	catalog store.McpCatalogStore
}

// New builds a Registry over catalog.
func New(catalog store.McpCatalogStore) *Registry {
	return &Registry{catalog: catalog}
}

// ListServersForAssistant returns every enabled server with its enabled
// tools. assistant_id scoping (which servers an assistant may use) is
// applied by the caller via FilterEnabled; the catalog itself has no
// assistant-specific enablement state.
func (r *Registry) ListServersForAssistant(ctx context.Context, assistantID string) ([]ServerWithTools, error) {
	servers, err := r.catalog.ListServersForAssistant(ctx, assistantID)
	if err != nil {
		return nil, fmt.Errorf("list servers for assistant: %w", err)
	}
	out := make([]ServerWithTools, 0, len(servers))
	for _, s := range servers {
		tools, err := r.catalog.ListToolsForServer(ctx, s.ID)
		if err != nil {
			return nil, fmt.Errorf("list tools for server %s: %w", s.Name, err)
		}
		out = append(out, ServerWithTools{Server: s, Tools: tools})
	}
	return out, nil
}

// Resolve looks up (serverName, toolName) and classifies it as a built-in or
// transport handle: a server whose command begins with "aipp:"
// resolves to a built-in handle carrying the namespace id.
func (r *Registry) Resolve(ctx context.Context, serverName, toolName string) (*Handle, error) {
	server, err := r.catalog.GetServerByName(ctx, serverName)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, engineerr.Wrap(engineerr.KindNotFound, fmt.Sprintf("mcp server %q not found", serverName), err)
		}
		return nil, fmt.Errorf("get server %q: %w", serverName, err)
	}
	if !server.IsEnabled {
		return nil, engineerr.New(engineerr.KindPermissionDenied, fmt.Sprintf("mcp server %q is disabled", serverName))
	}
	tool, err := r.catalog.GetTool(ctx, server.ID, toolName)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, engineerr.Wrap(engineerr.KindNotFound, fmt.Sprintf("tool %q not found on server %q", toolName, serverName), err)
		}
		return nil, fmt.Errorf("get tool %q: %w", toolName, err)
	}
	if !tool.IsEnabled {
		return nil, engineerr.New(engineerr.KindPermissionDenied, fmt.Sprintf("tool %q is disabled", toolName))
	}

	handle := &Handle{Server: server, Tool: tool}
	if ns, ok := server.IsBuiltin(); ok {
		handle.Kind = HandleBuiltin
		handle.Namespace = ns
	} else {
		handle.Kind = HandleTransport
	}
	return handle, nil
}

// FilterEnabled narrows a server/tools list to the ids present in
// enabledServerIDs, and within each surviving server to the tool names
// present in enabledToolMap[server.Name]. A nil enabledToolMap entry for a
// server means "no tools enabled" for it.
func FilterEnabled(servers []ServerWithTools, enabledServerIDs map[string]bool, enabledToolMap map[string]map[string]bool) []ServerWithTools {
	out := make([]ServerWithTools, 0, len(servers))
	for _, sw := range servers {
		if !enabledServerIDs[sw.Server.ID] {
			continue
		}
		allowedTools := enabledToolMap[sw.Server.Name]
		var tools []*store.McpTool
		for _, t := range sw.Tools {
			if allowedTools[t.ToolName] {
				tools = append(tools, t)
			}
		}
		out = append(out, ServerWithTools{Server: sw.Server, Tools: tools})
	}
	return out
}

// ValidateParameters compiles tool.ParametersSchema and validates parameters
// (raw JSON bytes) against it before a call reaches the dispatcher. A tool
// with no schema configured is treated as accepting any parameters.
func ValidateParameters(tool *store.McpTool, parameters []byte) error {
	if tool.ParametersSchema == "" {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	const resourceName = "tool-parameters.json"
	if err := compiler.AddResource(resourceName, bytes.NewReader([]byte(tool.ParametersSchema))); err != nil {
		return engineerr.Wrap(engineerr.KindInternal, fmt.Sprintf("compile schema for tool %q", tool.ToolName), err)
	}
	schema, err := compiler.Compile(resourceName)
	if err != nil {
		return engineerr.Wrap(engineerr.KindInternal, fmt.Sprintf("compile schema for tool %q", tool.ToolName), err)
	}

	var doc any
	if err := json.Unmarshal(parameters, &doc); err != nil {
		return engineerr.Wrap(engineerr.KindValidation, "parameters are not valid JSON", err)
	}
	if err := schema.Validate(doc); err != nil {
		return engineerr.Wrap(engineerr.KindValidation, fmt.Sprintf("parameters for tool %q failed schema validation", tool.ToolName), err)
	}
	return nil
}
