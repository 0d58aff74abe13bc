package branch

import (
	"testing"
	"time"

	"github.com/aipp-workbench/engine/internal/store"
	"github.com/aipp-workbench/engine/pkg/models"
)

func t0(sec int64) time.Time { return time.Unix(sec, 0) }

func TestSelectBranchKeepsLatestRegenerationOverAncestor(t *testing.T) {
	messages := []store.Message{
		{ID: "u1", MessageType: store.MessageUser, Content: "hi", CreatedTime: t0(1)},
		{ID: "a1", MessageType: store.MessageResponse, Content: "first answer", GenerationGroupID: "g1", CreatedTime: t0(2)},
		{ID: "a2", MessageType: store.MessageResponse, Content: "regenerated answer", GenerationGroupID: "g2", ParentGroupID: "g1", CreatedTime: t0(3)},
	}

	got := SelectBranch(messages)
	if len(got) != 2 {
		t.Fatalf("SelectBranch() len = %d, want 2: %+v", len(got), got)
	}
	if got[1].ID != "a2" {
		t.Errorf("SelectBranch()[1].ID = %q, want %q", got[1].ID, "a2")
	}
}

func TestSelectBranchPreservesTurnsAfterRegenerationPoint(t *testing.T) {
	messages := []store.Message{
		{ID: "u1", MessageType: store.MessageUser, Content: "hi", CreatedTime: t0(1)},
		{ID: "a1", MessageType: store.MessageResponse, Content: "first answer", GenerationGroupID: "g1", CreatedTime: t0(2)},
		{ID: "a2", MessageType: store.MessageResponse, Content: "regenerated answer", GenerationGroupID: "g2", ParentGroupID: "g1", CreatedTime: t0(3)},
		{ID: "u2", MessageType: store.MessageUser, Content: "follow up", CreatedTime: t0(4)},
		{ID: "a3", MessageType: store.MessageResponse, Content: "second answer", GenerationGroupID: "g3", CreatedTime: t0(5)},
	}

	got := SelectBranch(messages)
	ids := make([]string, len(got))
	for i, m := range got {
		ids[i] = m.ID
	}
	want := []string{"u1", "a2", "u2", "a3"}
	if len(ids) != len(want) {
		t.Fatalf("SelectBranch() ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("SelectBranch() ids[%d] = %q, want %q (full: %v)", i, ids[i], want[i], ids)
		}
	}
}

func TestSelectBranchDropsToolResultOwnedByDroppedResponse(t *testing.T) {
	messages := []store.Message{
		{ID: "u1", MessageType: store.MessageUser, Content: "hi", CreatedTime: t0(1)},
		{ID: "a1", MessageType: store.MessageResponse, Content: "calls a tool", GenerationGroupID: "g1", CreatedTime: t0(2)},
		{ID: "tr1", MessageType: store.MessageToolResult, Content: "Tool Call ID: x\nResult: ok", CreatedTime: t0(3)},
		{ID: "a2", MessageType: store.MessageResponse, Content: "regenerated, no tool call", GenerationGroupID: "g2", ParentGroupID: "g1", CreatedTime: t0(4)},
	}

	got := SelectBranch(messages)
	for _, m := range got {
		if m.ID == "tr1" {
			t.Fatalf("SelectBranch() kept tool_result %q whose owning response was superseded", m.ID)
		}
	}
}

func TestFilterForRegenerationRemovesTruncatedGroupAndLaterToolResults(t *testing.T) {
	messages := []store.Message{
		{ID: "u1", MessageType: store.MessageUser, Content: "hi", CreatedTime: t0(1)},
		{ID: "a1", MessageType: store.MessageResponse, Content: "answer", GenerationGroupID: "g1", CreatedTime: t0(2)},
		{ID: "tr1", MessageType: store.MessageToolResult, Content: "result", CreatedTime: t0(3)},
	}

	got := FilterForRegeneration(messages, "g1")
	for _, m := range got {
		if m.ID == "a1" || m.ID == "tr1" {
			t.Errorf("FilterForRegeneration() kept %q, want it removed", m.ID)
		}
	}
	if len(got) != 1 || got[0].ID != "u1" {
		t.Fatalf("FilterForRegeneration() = %+v, want only u1", got)
	}
}

func TestBuildChatMessagesNativeStrategyParsesToolCallMarker(t *testing.T) {
	content := `Let me check that.
<!-- MCP_TOOL_CALL: {"server_name":"filesystem","tool_name":"read_file","parameters":"{\"path\":\"/tmp/a\"}","call_id":7,"llm_call_id":"call-42"} -->`
	messages := []store.Message{
		{ID: "u1", MessageType: store.MessageUser, Content: "read the file", CreatedTime: t0(1)},
		{ID: "a1", MessageType: store.MessageResponse, Content: content, GenerationGroupID: "g1", CreatedTime: t0(2)},
		{ID: "tr1", MessageType: store.MessageToolResult, Content: "Tool execution completed:\n\nTool Call ID: call-42\nResult:\nfile contents", CreatedTime: t0(3)},
	}

	got, err := BuildChatMessages(messages, BuildOptions{Strategy: StrategyNative})
	if err != nil {
		t.Fatalf("BuildChatMessages() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("BuildChatMessages() len = %d, want 3: %+v", len(got), got)
	}
	assistantMsg := got[1]
	if assistantMsg.Role != "assistant" || len(assistantMsg.ToolCalls) != 1 {
		t.Fatalf("assistant message = %+v, want one tool call", assistantMsg)
	}
	if assistantMsg.ToolCalls[0].ID != "call-42" || assistantMsg.ToolCalls[0].Name != "filesystem__read_file" {
		t.Errorf("tool call = %+v, want id call-42 name filesystem__read_file", assistantMsg.ToolCalls[0])
	}
	if string(assistantMsg.ToolCalls[0].Input) != `{"path":"/tmp/a"}` {
		t.Errorf("arguments = %s, want parsed from the parameters string", assistantMsg.ToolCalls[0].Input)
	}
	toolMsg := got[2]
	if toolMsg.Role != "tool" || len(toolMsg.ToolResults) != 1 || toolMsg.ToolResults[0].ToolCallID != "call-42" {
		t.Errorf("tool result message = %+v, want paired tool_call_id call-42", toolMsg)
	}
}

func TestBuildChatMessagesDowngradesOrphanToolResultToUser(t *testing.T) {
	messages := []store.Message{
		{ID: "u1", MessageType: store.MessageUser, Content: "hi", CreatedTime: t0(1)},
		{ID: "a1", MessageType: store.MessageResponse, Content: "plain text, no tool call", CreatedTime: t0(2)},
		{ID: "tr1", MessageType: store.MessageToolResult, Content: "Tool Call ID: unknown\nResult: stray", CreatedTime: t0(3)},
	}

	got, err := BuildChatMessages(messages, BuildOptions{Strategy: StrategyNative})
	if err != nil {
		t.Fatalf("BuildChatMessages() error = %v", err)
	}
	last := got[len(got)-1]
	if last.Role != "user" {
		t.Errorf("orphan tool_result role = %q, want %q", last.Role, "user")
	}
}

func TestBuildChatMessagesOmitsReasoningMessages(t *testing.T) {
	messages := []store.Message{
		{ID: "u1", MessageType: store.MessageUser, Content: "hi", CreatedTime: t0(1)},
		{ID: "r1", MessageType: store.MessageReasoning, Content: "thinking...", CreatedTime: t0(2)},
		{ID: "a1", MessageType: store.MessageResponse, Content: "answer", CreatedTime: t0(3)},
	}

	got, err := BuildChatMessages(messages, BuildOptions{Strategy: StrategyNative})
	if err != nil {
		t.Fatalf("BuildChatMessages() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("BuildChatMessages() len = %d, want 2 (reasoning omitted): %+v", len(got), got)
	}
}

func TestBuildChatMessagesCallIDFallsBackToNumericCallID(t *testing.T) {
	content := `<!-- MCP_TOOL_CALL: {"server_name":"search","tool_name":"web_search","parameters":"{\"query\":\"go\"}","call_id":3} -->`
	messages := []store.Message{
		{ID: "a1", MessageType: store.MessageResponse, Content: content, GenerationGroupID: "g1", CreatedTime: t0(1)},
	}

	got, err := BuildChatMessages(messages, BuildOptions{Strategy: StrategyNative})
	if err != nil {
		t.Fatalf("BuildChatMessages() error = %v", err)
	}
	if len(got) != 1 || len(got[0].ToolCalls) != 1 {
		t.Fatalf("got = %+v", got)
	}
	if got[0].ToolCalls[0].ID != "3" {
		t.Errorf("call id = %q, want stringified call_id 3", got[0].ToolCalls[0].ID)
	}
}

func TestBuildChatMessagesNonNativeStrategyKeepsMarkersVerbatim(t *testing.T) {
	content := `Running it now.
<!-- MCP_TOOL_CALL: {"server_name":"filesystem","tool_name":"read_file","parameters":"{}","llm_call_id":"call-9"} -->`
	messages := []store.Message{
		{ID: "a1", MessageType: store.MessageResponse, Content: content, GenerationGroupID: "g1", CreatedTime: t0(1)},
		{ID: "tr1", MessageType: store.MessageToolResult, Content: "Tool Call ID: call-9\nResult:\nok", CreatedTime: t0(2)},
	}

	got, err := BuildChatMessages(messages, BuildOptions{Strategy: StrategyNonNative})
	if err != nil {
		t.Fatalf("BuildChatMessages() error = %v", err)
	}
	if got[0].Role != "assistant" || got[0].Content != content {
		t.Errorf("assistant content = %q, want marker preserved verbatim", got[0].Content)
	}
	if len(got[0].ToolCalls) != 0 {
		t.Errorf("non-native strategy emitted structured calls: %+v", got[0].ToolCalls)
	}
	if got[1].Role != "user" || got[1].Content == "" {
		t.Errorf("tool result = %+v, want inlined as user text", got[1])
	}
}

func TestBuildChatMessagesSkipsUnparseableMarkerKeepsOthers(t *testing.T) {
	content := `<!-- MCP_TOOL_CALL: {broken json} -->
<!-- MCP_TOOL_CALL: {"server_name":"search","tool_name":"web_search","parameters":"{}","llm_call_id":"call-1"} -->`
	messages := []store.Message{
		{ID: "a1", MessageType: store.MessageResponse, Content: content, GenerationGroupID: "g1", CreatedTime: t0(1)},
	}

	got, err := BuildChatMessages(messages, BuildOptions{Strategy: StrategyNative})
	if err != nil {
		t.Fatalf("BuildChatMessages() error = %v", err)
	}
	if len(got[0].ToolCalls) != 1 || got[0].ToolCalls[0].ID != "call-1" {
		t.Errorf("tool calls = %+v, want only the parseable marker", got[0].ToolCalls)
	}
}

func TestBuildChatMessagesAttachesUserAttachments(t *testing.T) {
	messages := []store.Message{
		{ID: "u1", MessageType: store.MessageUser, Content: "what is in this image", CreatedTime: t0(1)},
	}
	atts := map[string][]store.MessageAttachment{
		"u1": {
			{ID: "att1", MessageID: "u1", AttachmentType: store.AttachmentImage, AttachmentURL: "data:image/png;base64,AA=="},
			{ID: "att2", MessageID: "u1", AttachmentType: store.AttachmentPDF, AttachmentContent: "extracted"},
		},
	}

	got, err := BuildChatMessages(messages, BuildOptions{Strategy: StrategyNative, Attachments: atts})
	if err != nil {
		t.Fatalf("BuildChatMessages() error = %v", err)
	}
	if len(got[0].Attachments) != 2 {
		t.Fatalf("attachments = %+v, want 2", got[0].Attachments)
	}
	if got[0].Attachments[0].Kind != models.AttachmentImage || !got[0].Attachments[0].IsDataURL() {
		t.Errorf("image attachment = %+v", got[0].Attachments[0])
	}
	if got[0].Attachments[1].Kind != models.AttachmentPDF || got[0].Attachments[1].Content != "extracted" {
		t.Errorf("pdf attachment = %+v", got[0].Attachments[1])
	}
}
