// Package store implements persistence for conversations, messages,
// attachments, the MCP catalog, scheduled tasks and their run history,
// feature configuration, and the artifact/todo bookkeeping entities.
package store

import "time"

// MessageType enumerates the kinds of message a Message row can hold.
type MessageType string

const (
	MessageSystem     MessageType = "system"
	MessageUser       MessageType = "user"
	MessageResponse   MessageType = "response"
	MessageReasoning  MessageType = "reasoning"
	MessageToolResult MessageType = "tool_result"
	// messageLegacyAssistant is accepted on read and normalized to MessageResponse.
	messageLegacyAssistant MessageType = "assistant"
)

// NormalizeMessageType maps the legacy "assistant" tag to "response"; every
// other value passes through unchanged.
func NormalizeMessageType(t MessageType) MessageType {
	if t == messageLegacyAssistant {
		return MessageResponse
	}
	return t
}

// AttachmentType enumerates MessageAttachment.attachment_type values.
type AttachmentType string

const (
	AttachmentImage      AttachmentType = "Image"
	AttachmentText       AttachmentType = "Text"
	AttachmentPDF        AttachmentType = "PDF"
	AttachmentWord       AttachmentType = "Word"
	AttachmentPowerPoint AttachmentType = "PowerPoint"
	AttachmentExcel      AttachmentType = "Excel"
)

// Transport enumerates McpServer.transport values.
type Transport string

const (
	TransportStdio   Transport = "stdio"
	TransportSSE     Transport = "sse"
	TransportHTTP    Transport = "http"
	TransportBuiltin Transport = "builtin"
)

// BuiltinCommandPrefix is the literal prefix that marks an McpServer.command
// as a built-in server rather than a launchable/connectable transport.
const BuiltinCommandPrefix = "aipp:"

// ToolCallStatus enumerates McpToolCall.status values.
type ToolCallStatus string

const (
	ToolCallPending ToolCallStatus = "pending"
	ToolCallSuccess ToolCallStatus = "success"
	ToolCallFailed  ToolCallStatus = "failed"
)

// ScheduleType enumerates ScheduledTask.schedule_type values.
type ScheduleType string

const (
	ScheduleOnce     ScheduleType = "once"
	ScheduleInterval ScheduleType = "interval"

	// ScheduleCron is additive: not part of the task-facing schedule_type
	// enum, but used internally for maintenance jobs (e.g. artifact
	// template-cache pruning) whose fire times are easiest to express as a
	// raw cron expression rather than interval_value/interval_unit.
	ScheduleCron ScheduleType = "cron"
)

// IntervalUnit enumerates ScheduledTask.interval_unit values.
type IntervalUnit string

const (
	UnitMinute IntervalUnit = "minute"
	UnitHour   IntervalUnit = "hour"
	UnitDay    IntervalUnit = "day"
	UnitWeek   IntervalUnit = "week"
	UnitMonth  IntervalUnit = "month"
)

// RunStatus enumerates ScheduledTaskRun.status values.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// Conversation is the top-level container for a message history.
type Conversation struct {
	ID          string
	Name        string
	AssistantID string
	CreatedTime time.Time
}

// Message is one entry in a conversation's version DAG.
type Message struct {
	ID                string
	ConversationID    string
	ParentID          string // regenerated-user-message pointer only; empty if none
	MessageType       MessageType
	Content           string
	LLMModelID        string
	LLMModelName      string
	CreatedTime       time.Time
	StartTime         *time.Time
	FinishTime        *time.Time
	TokenCount        int
	GenerationGroupID string // empty for user/system/tool_result
	ParentGroupID     string // empty unless this is a regenerated assistant turn
	ToolCallsJSON     string
}

// MessageAttachment is a file or inline payload attached to a Message.
type MessageAttachment struct {
	ID               string
	MessageID        string
	AttachmentType   AttachmentType
	AttachmentURL    string
	AttachmentContent string
	AttachmentHash   string
	UseVector        bool
	TokenCount       *int
}

// McpServer describes one configured MCP server, built-in or transport-backed.
type McpServer struct {
	ID        string
	Name      string
	Command   string
	Transport Transport
	IsEnabled bool
}

// IsBuiltin reports whether Command begins with the builtin prefix, and if
// so returns the namespace that follows it (e.g. "search", "operation",
// "agent").
func (s McpServer) IsBuiltin() (namespace string, ok bool) {
	if len(s.Command) > len(BuiltinCommandPrefix) && s.Command[:len(BuiltinCommandPrefix)] == BuiltinCommandPrefix {
		return s.Command[len(BuiltinCommandPrefix):], true
	}
	return "", false
}

// McpTool describes one tool exposed by an McpServer.
type McpTool struct {
	ID               string
	ServerID         string
	ToolName         string
	ParametersSchema string
	IsEnabled        bool
	IsAutoRun        bool
	CatalogSummary   string
}

// McpToolCall records one invocation of an McpTool.
type McpToolCall struct {
	ID          string
	ConversationID string
	MessageID   string
	SubtaskID   string
	ServerID    string
	ServerName  string
	ToolName    string
	Parameters  string
	Status      ToolCallStatus
	Result      string
	Error       string
	LLMCallID   string
	CreatedTime time.Time
}

// ScheduledTask is a recurring or one-shot task definition.
type ScheduledTask struct {
	ID           string
	Name         string
	IsEnabled    bool
	ScheduleType ScheduleType
	IntervalValue int
	IntervalUnit IntervalUnit
	StartTime    string // "HH:MM", optional
	WeekDays     []int  // 1..7, optional
	MonthDays    []int  // 1..31, optional
	CronExpr     string // five/six-field cron expression, ScheduleCron only
	RunAt        *time.Time
	NextRunAt    *time.Time
	LastRunAt    *time.Time
	AssistantID  string
	TaskPrompt   string
	NotifyPrompt string
	CreatedTime  time.Time
	UpdatedTime  time.Time
}

// ScheduledTaskRun is one execution record for a ScheduledTask.
type ScheduledTaskRun struct {
	ID           string
	TaskID       string
	RunID        string
	Status       RunStatus
	Notify       bool
	Summary      string
	Error        string
	StartedTime  time.Time
	FinishedTime *time.Time
}

// ScheduledTaskLog is one log line produced during a ScheduledTaskRun.
type ScheduledTaskLog struct {
	ID          string
	TaskID      string
	RunID       string
	MessageType MessageType
	Content     string
	CreatedTime time.Time
}

// ArtifactRecord is the supplemented artifact collection catalog entry.
type ArtifactRecord struct {
	ID              string
	Kind            string
	ComponentSource string
	CreatedTime     time.Time
}

// TodoItem is the supplemented per-conversation todo list entry.
type TodoItem struct {
	ID             string
	ConversationID string
	Text           string
	Done           bool
	Position       int
	CreatedTime    time.Time
}
