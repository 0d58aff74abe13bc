package store

import (
	"context"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMcpToolCallFindDuplicateMatchesTrimmedParameters(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	calls := s.McpToolCalls()

	tc := &McpToolCall{
		ID:             "call-1",
		ConversationID: "conv-1",
		MessageID:      "msg-1",
		ServerID:       "srv-1",
		ServerName:     "filesystem",
		ToolName:       "read_file",
		Parameters:     `{"path":"/tmp/a"}`,
		Status:         ToolCallSuccess,
		CreatedTime:    time.Unix(1000, 0),
	}
	if err := calls.Create(ctx, tc); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := calls.FindDuplicate(ctx, "msg-1", "filesystem", "read_file", `  {"path":"/tmp/a"}  `)
	if err != nil {
		t.Fatalf("FindDuplicate() error = %v", err)
	}
	if got == nil {
		t.Fatal("FindDuplicate() = nil, want a match despite surrounding whitespace")
	}
	if got.ID != tc.ID {
		t.Errorf("FindDuplicate() id = %q, want %q", got.ID, tc.ID)
	}

	miss, err := calls.FindDuplicate(ctx, "msg-1", "filesystem", "read_file", `{"path":"/tmp/b"}`)
	if err != nil {
		t.Fatalf("FindDuplicate() error = %v", err)
	}
	if miss != nil {
		t.Errorf("FindDuplicate() with different parameters = %+v, want nil", miss)
	}
}

func TestScheduledTaskListDueOrdersByNextRunAtAndExcludesDisabledOrFuture(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tasks := s.ScheduledTasks()

	now := time.Unix(10_000, 0)
	mk := func(id string, enabled bool, nextRun *time.Time) *ScheduledTask {
		return &ScheduledTask{
			ID:           id,
			Name:         id,
			IsEnabled:    enabled,
			ScheduleType: ScheduleInterval,
			NextRunAt:    nextRun,
			AssistantID:  "assistant-1",
			TaskPrompt:   "do the thing",
			NotifyPrompt: "done",
			CreatedTime:  now,
			UpdatedTime:  now,
		}
	}
	due := now.Add(-1 * time.Minute)
	laterDue := now
	future := now.Add(time.Hour)

	for _, task := range []*ScheduledTask{
		mk("later", true, &laterDue),
		mk("due", true, &due),
		mk("disabled", false, &due),
		mk("future", true, &future),
		mk("no-next-run", true, nil),
	} {
		if err := tasks.Create(ctx, task); err != nil {
			t.Fatalf("Create(%s) error = %v", task.ID, err)
		}
	}

	got, err := tasks.ListDue(ctx, now)
	if err != nil {
		t.Fatalf("ListDue() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListDue() returned %d tasks, want 2: %+v", len(got), got)
	}
	if got[0].ID != "due" || got[1].ID != "later" {
		t.Errorf("ListDue() order = [%s, %s], want [due, later]", got[0].ID, got[1].ID)
	}
}

func TestFeatureConfigSetPairUpdatesBothKeysTogether(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	cfg := s.FeatureConfig()

	if err := cfg.Set(ctx, "artifact_render", "files_hash", "old-files"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := cfg.Set(ctx, "artifact_render", "deps_hash", "old-deps"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	err := cfg.SetPair(ctx, "artifact_render", map[string]string{
		"files_hash": "new-files",
		"deps_hash":  "new-deps",
	})
	if err != nil {
		t.Fatalf("SetPair() error = %v", err)
	}

	files, ok, err := cfg.Get(ctx, "artifact_render", "files_hash")
	if err != nil || !ok {
		t.Fatalf("Get(files_hash) = %q, %v, err %v", files, ok, err)
	}
	if files != "new-files" {
		t.Errorf("files_hash = %q, want %q", files, "new-files")
	}

	deps, ok, err := cfg.Get(ctx, "artifact_render", "deps_hash")
	if err != nil || !ok {
		t.Fatalf("Get(deps_hash) = %q, %v, err %v", deps, ok, err)
	}
	if deps != "new-deps" {
		t.Errorf("deps_hash = %q, want %q", deps, "new-deps")
	}
}

func TestMessageTypeNormalizedOnRead(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	conversations := s.Conversations()
	messages := s.Messages()

	conv := &Conversation{ID: "conv-1", Name: "test", CreatedTime: time.Unix(1, 0)}
	if err := conversations.Create(ctx, conv); err != nil {
		t.Fatalf("Create(conversation) error = %v", err)
	}

	msg := &Message{
		ID:             "msg-1",
		ConversationID: conv.ID,
		MessageType:    messageLegacyAssistant,
		Content:        "hello",
		CreatedTime:    time.Unix(2, 0),
	}
	if err := messages.Append(ctx, msg); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, err := messages.Get(ctx, msg.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.MessageType != MessageResponse {
		t.Errorf("MessageType = %q, want %q", got.MessageType, MessageResponse)
	}
}

func TestConversationGetReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Conversations().Get(ctx, "missing")
	if err != ErrNotFound {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}
