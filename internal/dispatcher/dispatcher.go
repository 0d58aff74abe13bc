// Package dispatcher detects MCP tool-call markers in
// completed assistant turns, deduplicating and executing them, and
// re-injecting their results as tool_result messages.
package dispatcher

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/aipp-workbench/engine/internal/events"
	"github.com/aipp-workbench/engine/internal/mcpregistry"
	"github.com/aipp-workbench/engine/internal/metrics"
	"github.com/aipp-workbench/engine/internal/store"
	"github.com/google/uuid"
)

// maxRecursionDepth bounds how many Dispatch/DispatchForSubtask calls may be
// in progress at once for one conversation. Each call releases its depth
// before returning, so calls made one after another do not accumulate.
const maxRecursionDepth = 3

const maxErrorLen = 400

var detectionPattern = regexp.MustCompile(`(?s)<mcp_tool_call>\s*<server_name>([^<]*)</server_name>\s*<tool_name>([^<]*)</tool_name>\s*<parameters>([\s\S]*?)</parameters>\s*</mcp_tool_call>`)

// Executor runs a resolved tool call and returns its raw result text.
// conversationID scopes any permission gating the executor performs
// to the conversation the call belongs to.
type Executor interface {
	Execute(ctx context.Context, conversationID string, handle *mcpregistry.Handle, parameters string) (string, error)
}

// Summarizer condenses a long tool result before re-injection. McpToolCall.Result
// always retains the untruncated text; only the re-injected message body is
// shortened.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// detected is one parsed <mcp_tool_call> marker.
type detected struct {
	ServerName string
	ToolName   string
	Parameters string
}

// detect scans content for the first <mcp_tool_call> marker. Additional
// matches in the same turn are ignored.
func detect(content string) (detected, bool) {
	m := detectionPattern.FindStringSubmatch(content)
	if m == nil {
		return detected{}, false
	}
	return detected{
		ServerName: strings.TrimSpace(m[1]),
		ToolName:   strings.TrimSpace(m[2]),
		Parameters: strings.TrimSpace(m[3]),
	}, true
}

// Dispatcher wires tool-call detection to resolution, execution, and
// persistence.
type Dispatcher struct {
	registry  *mcpregistry.Registry
	toolCalls store.McpToolCallStore
	messages  store.MessageStore
	executor  Executor
	bus       *events.Bus

	summarizer         Summarizer
	summarizeThreshold int

	mu    sync.Mutex
	depth map[string]int
}

// New builds a Dispatcher with no summarizer and a summarization threshold
// of 4000 characters.
func New(registry *mcpregistry.Registry, toolCalls store.McpToolCallStore, messages store.MessageStore, executor Executor, bus *events.Bus) *Dispatcher {
	return &Dispatcher{
		registry:           registry,
		toolCalls:          toolCalls,
		messages:           messages,
		executor:           executor,
		bus:                bus,
		summarizeThreshold: 4000,
		depth:              make(map[string]int),
	}
}

// WithSummarizer attaches a result summarizer and the length threshold above
// which it is applied. A threshold <= 0 disables summarization.
func (d *Dispatcher) WithSummarizer(s Summarizer, threshold int) *Dispatcher {
	d.summarizer = s
	d.summarizeThreshold = threshold
	return d
}

// enterDepth increments the recursion depth for conversationID. It reports
// false if the guard is already at maxRecursionDepth, in which case no
// release is needed. Every successful enter must have its release called on
// every exit path, including early returns and panics (via defer).
func (d *Dispatcher) enterDepth(conversationID string) (ok bool, release func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.depth[conversationID] >= maxRecursionDepth {
		return false, func() {}
	}
	d.depth[conversationID]++
	return true, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.depth[conversationID]--
		if d.depth[conversationID] <= 0 {
			delete(d.depth, conversationID)
		}
	}
}

// Outcome describes what Dispatch did with a detected call.
type Outcome struct {
	Call      *store.McpToolCall
	Executed  bool
	ResultMsg *store.Message // the tool_result message appended, if executed
}

// Dispatch scans an assistant turn's content for the first tool-call marker,
// dedups/creates the McpToolCall row, and either executes it immediately
// (auto-run) or leaves it pending and emits a permission-request event.
// Returns (nil, nil) if no marker was found or the recursion guard tripped.
func (d *Dispatcher) Dispatch(ctx context.Context, conversationID, messageID string, content string) (*Outcome, error) {
	match, found := detect(content)
	if !found {
		return nil, nil
	}

	ok, release := d.enterDepth(conversationID)
	defer release()
	if !ok {
		return nil, nil
	}

	call, err := d.findOrCreateCall(ctx, conversationID, messageID, "", match)
	if err != nil {
		return nil, err
	}

	handle, err := d.registry.Resolve(ctx, match.ServerName, match.ToolName)
	if err != nil {
		return &Outcome{Call: call}, nil
	}

	if !handle.Tool.IsAutoRun {
		d.bus.Publish(conversationID, events.Event{
			Kind: events.KindToolPermissionReq,
			Data: events.ToolPermissionRequest{RequestID: call.ID, Kind: "mcp_tool_call", Target: fmt.Sprintf("%s.%s", match.ServerName, match.ToolName)},
		})
		return &Outcome{Call: call}, nil
	}

	resultMsg, err := d.executeAndPersist(ctx, handle, call, conversationID)
	if err != nil {
		return &Outcome{Call: call}, err
	}
	return &Outcome{Call: call, Executed: true, ResultMsg: resultMsg}, nil
}

// DispatchForSubtask executes tool calls on behalf of a background scheduled
// run. It mirrors Dispatch but always executes immediately (there is no user
// present to grant/deny permission) and never publishes UI events, per the
// original subtask detection path.
func (d *Dispatcher) DispatchForSubtask(ctx context.Context, conversationID, subtaskID string, content string) (*Outcome, error) {
	match, found := detect(content)
	if !found {
		return nil, nil
	}

	ok, release := d.enterDepth(conversationID)
	defer release()
	if !ok {
		return nil, nil
	}

	call, err := d.findOrCreateCall(ctx, conversationID, "", subtaskID, match)
	if err != nil {
		return nil, err
	}

	handle, err := d.registry.Resolve(ctx, match.ServerName, match.ToolName)
	if err != nil {
		return &Outcome{Call: call}, nil
	}

	resultMsg, err := d.executeAndPersist(ctx, handle, call, conversationID)
	if err != nil {
		return &Outcome{Call: call}, err
	}
	return &Outcome{Call: call, Executed: true, ResultMsg: resultMsg}, nil
}

func (d *Dispatcher) findOrCreateCall(ctx context.Context, conversationID, messageID, subtaskID string, match detected) (*store.McpToolCall, error) {
	if messageID != "" {
		if existing, err := d.toolCalls.FindDuplicate(ctx, messageID, match.ServerName, match.ToolName, match.Parameters); err != nil {
			return nil, fmt.Errorf("find duplicate tool call: %w", err)
		} else if existing != nil {
			return existing, nil
		}
	}

	serverID := ""
	handle, resolveErr := d.registry.Resolve(ctx, match.ServerName, match.ToolName)
	if resolveErr == nil {
		serverID = handle.Server.ID
	}

	call := &store.McpToolCall{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		MessageID:      messageID,
		SubtaskID:      subtaskID,
		ServerID:       serverID,
		ServerName:     match.ServerName,
		ToolName:       match.ToolName,
		Parameters:     match.Parameters,
		Status:         store.ToolCallPending,
		CreatedTime:    time.Now(),
	}
	if err := d.toolCalls.Create(ctx, call); err != nil {
		return nil, fmt.Errorf("create tool call: %w", err)
	}
	return call, nil
}

func (d *Dispatcher) executeAndPersist(ctx context.Context, handle *mcpregistry.Handle, call *store.McpToolCall, conversationID string) (*store.Message, error) {
	start := time.Now()
	result, execErr := d.executor.Execute(ctx, conversationID, handle, call.Parameters)
	metrics.ToolExecutionDuration.WithLabelValues(call.ToolName).Observe(time.Since(start).Seconds())

	var body string
	if execErr != nil {
		truncated := execErr.Error()
		if len(truncated) > maxErrorLen {
			truncated = truncated[:maxErrorLen]
		}
		call.Status = store.ToolCallFailed
		call.Error = truncated
		body = fmt.Sprintf("Tool execution failed:\n\nTool Call ID: %s\nError:\n%s", toolCallWireID(call), truncated)
		metrics.ToolExecutions.WithLabelValues(call.ToolName, "error").Inc()
	} else {
		call.Status = store.ToolCallSuccess
		call.Result = result
		metrics.ToolExecutions.WithLabelValues(call.ToolName, "success").Inc()
		injected := result
		if d.summarizer != nil && d.summarizeThreshold > 0 && len(result) > d.summarizeThreshold {
			summary, sumErr := d.summarizer.Summarize(ctx, result)
			if sumErr == nil {
				injected = summary
			}
		}
		body = fmt.Sprintf("Tool execution completed:\n\nTool Call ID: %s\nResult:\n%s", toolCallWireID(call), injected)
	}

	if err := d.toolCalls.Update(ctx, call); err != nil {
		return nil, fmt.Errorf("update tool call: %w", err)
	}

	msg := &store.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		MessageType:    store.MessageToolResult,
		Content:        body,
		CreatedTime:    time.Now(),
	}
	if err := d.messages.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("append tool result message: %w", err)
	}
	return msg, nil
}

func toolCallWireID(call *store.McpToolCall) string {
	if call.LLMCallID != "" {
		return call.LLMCallID
	}
	return call.ID
}
