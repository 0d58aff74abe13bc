package mcpregistry

import (
	"context"
	"testing"

	"github.com/aipp-workbench/engine/internal/store"
)

type fakeCatalog struct {
	servers map[string]*store.McpServer // by name
	tools   map[string][]*store.McpTool // by server id
}

func (f *fakeCatalog) ListServersForAssistant(ctx context.Context, assistantID string) ([]*store.McpServer, error) {
	var out []*store.McpServer
	for _, s := range f.servers {
		if s.IsEnabled {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeCatalog) ListToolsForServer(ctx context.Context, serverID string) ([]*store.McpTool, error) {
	var out []*store.McpTool
	for _, t := range f.tools[serverID] {
		if t.IsEnabled {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeCatalog) GetServerByName(ctx context.Context, name string) (*store.McpServer, error) {
	if s, ok := f.servers[name]; ok {
		return s, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeCatalog) GetTool(ctx context.Context, serverID, toolName string) (*store.McpTool, error) {
	for _, t := range f.tools[serverID] {
		if t.ToolName == toolName {
			return t, nil
		}
	}
	return nil, store.ErrNotFound
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{servers: map[string]*store.McpServer{}, tools: map[string][]*store.McpTool{}}
}

func TestResolveClassifiesBuiltinServer(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.servers["search"] = &store.McpServer{ID: "srv-search", Name: "search", Command: "aipp:search", IsEnabled: true}
	catalog.tools["srv-search"] = []*store.McpTool{{ID: "t1", ServerID: "srv-search", ToolName: "web_search", IsEnabled: true}}

	r := New(catalog)
	handle, err := r.Resolve(context.Background(), "search", "web_search")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if handle.Kind != HandleBuiltin || handle.Namespace != "search" {
		t.Errorf("Resolve() = %+v, want builtin handle with namespace %q", handle, "search")
	}
}

func TestResolveClassifiesTransportServer(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.servers["filesystem"] = &store.McpServer{ID: "srv-fs", Name: "filesystem", Command: "/usr/bin/fs-server", IsEnabled: true}
	catalog.tools["srv-fs"] = []*store.McpTool{{ID: "t1", ServerID: "srv-fs", ToolName: "read_file", IsEnabled: true}}

	r := New(catalog)
	handle, err := r.Resolve(context.Background(), "filesystem", "read_file")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if handle.Kind != HandleTransport {
		t.Errorf("Resolve() kind = %v, want HandleTransport", handle.Kind)
	}
}

func TestResolveRejectsDisabledServer(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.servers["filesystem"] = &store.McpServer{ID: "srv-fs", Name: "filesystem", IsEnabled: false}

	r := New(catalog)
	_, err := r.Resolve(context.Background(), "filesystem", "read_file")
	if err == nil {
		t.Fatal("Resolve() error = nil, want permission error for disabled server")
	}
}

func TestFilterEnabledDropsUnlistedServersAndTools(t *testing.T) {
	servers := []ServerWithTools{
		{
			Server: &store.McpServer{ID: "srv-fs", Name: "filesystem"},
			Tools: []*store.McpTool{
				{ToolName: "read_file"},
				{ToolName: "write_file"},
			},
		},
		{
			Server: &store.McpServer{ID: "srv-other", Name: "other"},
			Tools:  []*store.McpTool{{ToolName: "whatever"}},
		},
	}
	enabledServerIDs := map[string]bool{"srv-fs": true}
	enabledToolMap := map[string]map[string]bool{"filesystem": {"read_file": true}}

	got := FilterEnabled(servers, enabledServerIDs, enabledToolMap)
	if len(got) != 1 {
		t.Fatalf("FilterEnabled() returned %d servers, want 1", len(got))
	}
	if len(got[0].Tools) != 1 || got[0].Tools[0].ToolName != "read_file" {
		t.Errorf("FilterEnabled() tools = %+v, want only read_file", got[0].Tools)
	}
}

func TestValidateParametersRejectsSchemaMismatch(t *testing.T) {
	tool := &store.McpTool{
		ToolName: "read_file",
		ParametersSchema: `{
			"type": "object",
			"properties": {"path": {"type": "string"}},
			"required": ["path"]
		}`,
	}
	if err := ValidateParameters(tool, []byte(`{"path":"/tmp/a"}`)); err != nil {
		t.Errorf("ValidateParameters() with valid params error = %v", err)
	}
	if err := ValidateParameters(tool, []byte(`{}`)); err == nil {
		t.Error("ValidateParameters() with missing required field error = nil, want error")
	}
}
