package store

import (
	"context"
	"time"
)

// ConversationStore persists Conversation rows.
type ConversationStore interface {
	Create(ctx context.Context, c *Conversation) error
	Get(ctx context.Context, id string) (*Conversation, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Conversation, error)
}

// MessageStore persists Message rows and their attachments.
type MessageStore interface {
	Append(ctx context.Context, m *Message) error
	ListByConversation(ctx context.Context, conversationID string) ([]*Message, error)
	Get(ctx context.Context, id string) (*Message, error)
	AddAttachment(ctx context.Context, a *MessageAttachment) error
	ListAttachments(ctx context.Context, messageID string) ([]*MessageAttachment, error)
}

// McpCatalogStore persists McpServer and McpTool rows.
type McpCatalogStore interface {
	ListServersForAssistant(ctx context.Context, assistantID string) ([]*McpServer, error)
	ListToolsForServer(ctx context.Context, serverID string) ([]*McpTool, error)
	GetServerByName(ctx context.Context, name string) (*McpServer, error)
	GetTool(ctx context.Context, serverID, toolName string) (*McpTool, error)
}

// McpToolCallStore persists McpToolCall rows with dedup lookup.
type McpToolCallStore interface {
	// FindDuplicate returns an existing call matching the dedup tuple
	// (message_id, server_name, tool_name, trimmed parameters), if any.
	FindDuplicate(ctx context.Context, messageID, serverName, toolName, parameters string) (*McpToolCall, error)
	Create(ctx context.Context, c *McpToolCall) error
	Update(ctx context.Context, c *McpToolCall) error
	Get(ctx context.Context, id string) (*McpToolCall, error)
}

// ScheduledTaskStore persists ScheduledTask rows and their run/log history.
type ScheduledTaskStore interface {
	ListDue(ctx context.Context, now time.Time) ([]*ScheduledTask, error)
	Get(ctx context.Context, id string) (*ScheduledTask, error)
	Update(ctx context.Context, t *ScheduledTask) error
	Create(ctx context.Context, t *ScheduledTask) error

	CreateRun(ctx context.Context, r *ScheduledTaskRun) error
	UpdateRun(ctx context.Context, r *ScheduledTaskRun) error
	AppendLog(ctx context.Context, l *ScheduledTaskLog) error
	ListLogs(ctx context.Context, runID string) ([]*ScheduledTaskLog, error)
}

// FeatureConfigStore persists (feature_code, key) -> value pairs.
type FeatureConfigStore interface {
	Get(ctx context.Context, featureCode, key string) (string, bool, error)
	Set(ctx context.Context, featureCode, key, value string) error
	// SetPair atomically sets several keys together (used for the
	// {kind}_files_hash / {kind}_deps_hash template-cache pair).
	SetPair(ctx context.Context, featureCode string, kv map[string]string) error
}

// ArtifactRecordStore persists the supplemented artifact collection catalog.
type ArtifactRecordStore interface {
	Create(ctx context.Context, r *ArtifactRecord) error
	List(ctx context.Context) ([]*ArtifactRecord, error)
	Delete(ctx context.Context, id string) error
}

// TodoStore persists the supplemented per-conversation todo list.
type TodoStore interface {
	List(ctx context.Context, conversationID string) ([]*TodoItem, error)
	Add(ctx context.Context, t *TodoItem) error
	Toggle(ctx context.Context, id string, done bool) error
}

// Store aggregates every entity store the engine needs behind one
// closeable handle.
type Store interface {
	Conversations() ConversationStore
	Messages() MessageStore
	McpCatalog() McpCatalogStore
	McpToolCalls() McpToolCallStore
	ScheduledTasks() ScheduledTaskStore
	FeatureConfig() FeatureConfigStore
	Artifacts() ArtifactRecordStore
	Todos() TodoStore
	Close() error
}
