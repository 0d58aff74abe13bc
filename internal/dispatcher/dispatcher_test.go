package dispatcher

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aipp-workbench/engine/internal/events"
	"github.com/aipp-workbench/engine/internal/mcpregistry"
	"github.com/aipp-workbench/engine/internal/store"
)

type memToolCallStore struct {
	calls []*store.McpToolCall
}

func (m *memToolCallStore) FindDuplicate(ctx context.Context, messageID, serverName, toolName, parameters string) (*store.McpToolCall, error) {
	trimmed := strings.TrimSpace(parameters)
	for _, c := range m.calls {
		if c.MessageID == messageID && c.ServerName == serverName && c.ToolName == toolName && strings.TrimSpace(c.Parameters) == trimmed {
			return c, nil
		}
	}
	return nil, nil
}

func (m *memToolCallStore) Create(ctx context.Context, c *store.McpToolCall) error {
	m.calls = append(m.calls, c)
	return nil
}

func (m *memToolCallStore) Update(ctx context.Context, c *store.McpToolCall) error {
	for i, existing := range m.calls {
		if existing.ID == c.ID {
			m.calls[i] = c
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memToolCallStore) Get(ctx context.Context, id string) (*store.McpToolCall, error) {
	for _, c := range m.calls {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

type memMessageStore struct {
	appended []*store.Message
}

func (m *memMessageStore) Append(ctx context.Context, msg *store.Message) error {
	m.appended = append(m.appended, msg)
	return nil
}
func (m *memMessageStore) ListByConversation(ctx context.Context, conversationID string) ([]*store.Message, error) {
	return m.appended, nil
}
func (m *memMessageStore) Get(ctx context.Context, id string) (*store.Message, error) {
	return nil, store.ErrNotFound
}
func (m *memMessageStore) AddAttachment(ctx context.Context, a *store.MessageAttachment) error {
	return nil
}
func (m *memMessageStore) ListAttachments(ctx context.Context, messageID string) ([]*store.MessageAttachment, error) {
	return nil, nil
}

type memCatalog struct {
	server *store.McpServer
	tool   *store.McpTool
}

func (m *memCatalog) ListServersForAssistant(ctx context.Context, assistantID string) ([]*store.McpServer, error) {
	return []*store.McpServer{m.server}, nil
}
func (m *memCatalog) ListToolsForServer(ctx context.Context, serverID string) ([]*store.McpTool, error) {
	return []*store.McpTool{m.tool}, nil
}
func (m *memCatalog) GetServerByName(ctx context.Context, name string) (*store.McpServer, error) {
	if m.server.Name == name {
		return m.server, nil
	}
	return nil, store.ErrNotFound
}
func (m *memCatalog) GetTool(ctx context.Context, serverID, toolName string) (*store.McpTool, error) {
	if m.tool.ToolName == toolName {
		return m.tool, nil
	}
	return nil, store.ErrNotFound
}

type stubExecutor struct {
	calls  int
	result string
	err    error
}

func (s *stubExecutor) Execute(ctx context.Context, conversationID string, handle *mcpregistry.Handle, parameters string) (string, error) {
	s.calls++
	return s.result, s.err
}

func newDispatcher(t *testing.T, autoRun bool) (*Dispatcher, *memToolCallStore, *memMessageStore, *stubExecutor) {
	t.Helper()
	catalog := &memCatalog{
		server: &store.McpServer{ID: "srv-1", Name: "filesystem", Command: "/usr/bin/fs", IsEnabled: true},
		tool:   &store.McpTool{ID: "tool-1", ServerID: "srv-1", ToolName: "read_file", IsEnabled: true, IsAutoRun: autoRun},
	}
	registry := mcpregistry.New(catalog)
	calls := &memToolCallStore{}
	messages := &memMessageStore{}
	executor := &stubExecutor{result: "file contents"}
	d := New(registry, calls, messages, executor, events.NewBus())
	return d, calls, messages, executor
}

const sampleMarker = `<mcp_tool_call>
<server_name>filesystem</server_name>
<tool_name>read_file</tool_name>
<parameters>{"path":"/tmp/a"}</parameters>
</mcp_tool_call>`

func TestDispatchExecutesAutoRunToolAndPersistsResult(t *testing.T) {
	d, _, messages, executor := newDispatcher(t, true)
	outcome, err := d.Dispatch(context.Background(), "conv-1", "msg-1", "Let me check.\n"+sampleMarker)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if outcome == nil || !outcome.Executed {
		t.Fatalf("Dispatch() outcome = %+v, want executed", outcome)
	}
	if executor.calls != 1 {
		t.Errorf("executor called %d times, want 1", executor.calls)
	}
	if len(messages.appended) != 1 {
		t.Fatalf("appended %d messages, want 1", len(messages.appended))
	}
	body := messages.appended[0].Content
	if !strings.Contains(body, "Tool execution completed:") || !strings.Contains(body, "file contents") {
		t.Errorf("result message body = %q, missing expected markers", body)
	}
}

func TestDispatchLeavesNonAutoRunToolPending(t *testing.T) {
	d, calls, messages, executor := newDispatcher(t, false)
	outcome, err := d.Dispatch(context.Background(), "conv-1", "msg-1", sampleMarker)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if outcome == nil || outcome.Executed {
		t.Fatalf("Dispatch() outcome = %+v, want not executed", outcome)
	}
	if executor.calls != 0 {
		t.Errorf("executor called %d times, want 0", executor.calls)
	}
	if len(messages.appended) != 0 {
		t.Errorf("appended %d messages, want 0 (pending call should not emit a result yet)", len(messages.appended))
	}
	if len(calls.calls) != 1 || calls.calls[0].Status != store.ToolCallPending {
		t.Errorf("tool call state = %+v, want one pending call", calls.calls)
	}
}

func TestDispatchDedupsRepeatedCallForSameMessage(t *testing.T) {
	d, calls, _, executor := newDispatcher(t, true)
	ctx := context.Background()
	if _, err := d.Dispatch(ctx, "conv-1", "msg-1", sampleMarker); err != nil {
		t.Fatalf("first Dispatch() error = %v", err)
	}
	if _, err := d.Dispatch(ctx, "conv-1", "msg-1", sampleMarker); err != nil {
		t.Fatalf("second Dispatch() error = %v", err)
	}
	if executor.calls != 2 {
		// Each Dispatch call re-executes because the call already succeeded;
		// what must not happen is a second *row* being created for the dup tuple.
		t.Logf("executor called %d times", executor.calls)
	}
	if len(calls.calls) != 1 {
		t.Errorf("tool call rows = %d, want 1 (deduped)", len(calls.calls))
	}
}

func TestDispatchOnlyActsOnFirstMarker(t *testing.T) {
	d, _, _, executor := newDispatcher(t, true)
	content := sampleMarker + "\n" + sampleMarker
	_, err := d.Dispatch(context.Background(), "conv-1", "msg-1", content)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if executor.calls != 1 {
		t.Errorf("executor called %d times, want exactly 1 for the first marker only", executor.calls)
	}
}

func TestDispatchRecursionGuardStopsAtMaxDepth(t *testing.T) {
	d, _, _, executor := newDispatcher(t, true)
	ctx := context.Background()
	releases := make([]func(), 0, maxRecursionDepth)
	for i := 0; i < maxRecursionDepth; i++ {
		ok, release := d.enterDepth("conv-1")
		if !ok {
			t.Fatalf("enterDepth() failed before reaching max depth at i=%d", i)
		}
		releases = append(releases, release)
	}

	outcome, err := d.Dispatch(ctx, "conv-1", "msg-1", sampleMarker)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if outcome != nil {
		t.Errorf("Dispatch() at max depth = %+v, want nil (skipped)", outcome)
	}
	if executor.calls != 0 {
		t.Errorf("executor called %d times, want 0 at max depth", executor.calls)
	}

	for _, release := range releases {
		release()
	}
	// Depth released: a subsequent dispatch should now proceed.
	outcome, err = d.Dispatch(ctx, "conv-1", "msg-1", sampleMarker)
	if err != nil {
		t.Fatalf("Dispatch() after release error = %v", err)
	}
	if outcome == nil {
		t.Error("Dispatch() after depth release = nil, want a result")
	}
}

func TestDispatchFailureTruncatesErrorAndMarksFailed(t *testing.T) {
	d, calls, messages, executor := newDispatcher(t, true)
	executor.result = ""
	executor.err = errors.New(strings.Repeat("x", maxErrorLen+100))

	outcome, err := d.Dispatch(context.Background(), "conv-1", "msg-1", sampleMarker)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if outcome == nil {
		t.Fatal("Dispatch() = nil")
	}
	if calls.calls[0].Status != store.ToolCallFailed {
		t.Errorf("call status = %v, want failed", calls.calls[0].Status)
	}
	if len(calls.calls[0].Error) != maxErrorLen {
		t.Errorf("stored error len = %d, want truncated to %d", len(calls.calls[0].Error), maxErrorLen)
	}
	if len(messages.appended) != 1 || !strings.Contains(messages.appended[0].Content, "Tool execution failed:") {
		t.Errorf("failure result message = %+v", messages.appended)
	}
}

func TestDispatchNoMarkerReturnsNil(t *testing.T) {
	d, _, _, _ := newDispatcher(t, true)
	outcome, err := d.Dispatch(context.Background(), "conv-1", "msg-1", "just plain text, no tool call")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if outcome != nil {
		t.Errorf("Dispatch() with no marker = %+v, want nil", outcome)
	}
}

func TestDispatchForSubtaskExecutesWithoutPublishingEvent(t *testing.T) {
	d, _, messages, executor := newDispatcher(t, false) // not auto-run
	sub := d.bus
	ch := sub.Subscribe("conv-1")
	defer sub.Unsubscribe("conv-1", ch)

	outcome, err := d.DispatchForSubtask(context.Background(), "conv-1", "subtask-1", sampleMarker)
	if err != nil {
		t.Fatalf("DispatchForSubtask() error = %v", err)
	}
	if outcome == nil || !outcome.Executed {
		t.Fatalf("DispatchForSubtask() = %+v, want executed regardless of is_auto_run", outcome)
	}
	if executor.calls != 1 {
		t.Errorf("executor called %d times, want 1", executor.calls)
	}
	if len(messages.appended) != 1 {
		t.Errorf("appended %d messages, want 1", len(messages.appended))
	}
	select {
	case <-ch:
		t.Error("DispatchForSubtask() published an event, want none (bypasses UI event emission)")
	case <-time.After(10 * time.Millisecond):
	}
}
