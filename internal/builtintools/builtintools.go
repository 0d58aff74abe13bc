// Package builtintools implements dispatcher.Executor for the "aipp:"
// built-in MCP namespaces: tool calls that never leave the process,
// routed straight to the fsexec/searchexec components instead of a
// transport.
package builtintools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aipp-workbench/engine/internal/fsexec"
	"github.com/aipp-workbench/engine/internal/mcpregistry"
	"github.com/aipp-workbench/engine/internal/searchexec"
	"github.com/aipp-workbench/engine/internal/searchexec/engines"
)

// Executor dispatches built-in tool calls by (namespace, tool name). Each
// "operation" call runs its permission check against gate, scoped to
// the call's conversation, before touching the filesystem or a shell.
type Executor struct {
	shell  *fsexec.Shell
	files  *fsexec.Files
	gate   *fsexec.Gate
	search *searchexec.Executor
}

// New builds a builtin tool Executor over the given permission gate and
// fs/shell/search components.
func New(gate *fsexec.Gate, search *searchexec.Executor) *Executor {
	return &Executor{
		shell:  fsexec.NewShell(),
		files:  fsexec.NewFiles(),
		gate:   gate,
		search: search,
	}
}

// Execute satisfies dispatcher.Executor for HandleBuiltin handles.
func (e *Executor) Execute(ctx context.Context, conversationID string, handle *mcpregistry.Handle, parameters string) (string, error) {
	switch handle.Namespace {
	case "operation":
		return e.executeOperation(ctx, conversationID, handle.Tool.ToolName, parameters)
	case "search":
		return e.executeSearch(ctx, parameters)
	default:
		return "", fmt.Errorf("builtintools: unknown namespace %q", handle.Namespace)
	}
}

// check runs the permission gate for kind/target scoped to
// conversationID. get_bash_output is exempt: it only reads a buffer already
// produced by a gated execute_bash call.
func (e *Executor) check(ctx context.Context, conversationID, kind, target string) error {
	if e.gate == nil {
		return nil
	}
	return e.gate.Check(ctx, conversationID, kind, target)
}

func (e *Executor) executeOperation(ctx context.Context, conversationID, toolName, parameters string) (string, error) {
	switch toolName {
	case "read_file":
		var p struct {
			Path   string `json:"path"`
			Offset int    `json:"offset"`
			Limit  int    `json:"limit"`
		}
		if err := json.Unmarshal([]byte(parameters), &p); err != nil {
			return "", err
		}
		if err := e.check(ctx, conversationID, "read_file", p.Path); err != nil {
			return "", err
		}
		return e.files.ReadFile(p.Path, p.Offset, p.Limit)
	case "write_file":
		var p struct {
			Path    string `json:"path"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal([]byte(parameters), &p); err != nil {
			return "", err
		}
		if err := e.check(ctx, conversationID, "write_file", p.Path); err != nil {
			return "", err
		}
		if err := e.files.WriteFile(p.Path, p.Content); err != nil {
			return "", err
		}
		return "ok", nil
	case "edit_file":
		var p struct {
			Path       string `json:"path"`
			OldString  string `json:"old_string"`
			NewString  string `json:"new_string"`
			ReplaceAll bool   `json:"replace_all"`
		}
		if err := json.Unmarshal([]byte(parameters), &p); err != nil {
			return "", err
		}
		if err := e.check(ctx, conversationID, "edit_file", p.Path); err != nil {
			return "", err
		}
		n, err := e.files.EditFile(p.Path, p.OldString, p.NewString, p.ReplaceAll)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d replacement(s) made", n), nil
	case "list_directory":
		var p struct {
			Path      string `json:"path"`
			Pattern   string `json:"pattern"`
			Recursive bool   `json:"recursive"`
		}
		if err := json.Unmarshal([]byte(parameters), &p); err != nil {
			return "", err
		}
		if err := e.check(ctx, conversationID, "list_directory", p.Path); err != nil {
			return "", err
		}
		entries, err := fsexec.ListDirectory(p.Path, p.Pattern, p.Recursive)
		if err != nil {
			return "", err
		}
		payload, err := json.Marshal(entries)
		return string(payload), err
	case "execute_bash":
		var p struct {
			Command    string `json:"command"`
			Background bool   `json:"run_in_background"`
			TimeoutMs  int    `json:"timeout_ms"`
		}
		if err := json.Unmarshal([]byte(parameters), &p); err != nil {
			return "", err
		}
		if err := e.check(ctx, conversationID, "execute_bash", p.Command); err != nil {
			return "", err
		}
		result, bashID, err := e.shell.ExecuteBash(ctx, p.Command, p.Background, p.TimeoutMs)
		if err != nil {
			return "", err
		}
		payload, err := json.Marshal(struct {
			Output   string `json:"output"`
			ExitCode int    `json:"exit_code"`
			BashID   string `json:"bash_id,omitempty"`
		}{result.Output, result.ExitCode, bashID})
		return string(payload), err
	case "get_bash_output":
		var p struct {
			BashID      string `json:"bash_id"`
			LastReadPos int    `json:"last_read_pos"`
			Filter      string `json:"filter"`
		}
		if err := json.Unmarshal([]byte(parameters), &p); err != nil {
			return "", err
		}
		out, err := e.shell.GetBashOutput(p.BashID, p.LastReadPos, p.Filter)
		if err != nil {
			return "", err
		}
		payload, err := json.Marshal(out)
		return string(payload), err
	default:
		return "", fmt.Errorf("builtintools: unknown operation tool %q", toolName)
	}
}

func (e *Executor) executeSearch(ctx context.Context, parameters string) (string, error) {
	var p struct {
		Query      string `json:"query"`
		URL        string `json:"url"`
		Engine     string `json:"engine"`
		ResultType string `json:"result_type"`
		SessionURL string `json:"session_url"`
	}
	if err := json.Unmarshal([]byte(parameters), &p); err != nil {
		return "", err
	}
	req := searchexec.SearchRequest{
		Query:      p.Query,
		URL:        p.URL,
		Engine:     engines.Name(p.Engine),
		ResultType: searchexec.ResultType(p.ResultType),
		SessionURL: p.SessionURL,
	}
	if req.ResultType == "" {
		req.ResultType = searchexec.ResultMarkdown
	}
	resp, err := e.search.Run(ctx, req)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(resp)
	return string(payload), err
}
