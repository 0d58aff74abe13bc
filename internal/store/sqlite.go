package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no cgo
)

// SQLiteStore implements Store over a single *sql.DB. The engine is a
// single-process desktop sidecar, so an embedded SQLite file is the whole
// persistence story.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates (or opens) a SQLite-backed Store at path. Use ":memory:"
// for an ephemeral store.
func Open(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers on one file handle
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite store: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			assistant_id TEXT,
			created_time INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			parent_id TEXT,
			message_type TEXT NOT NULL,
			content TEXT NOT NULL,
			llm_model_id TEXT,
			llm_model_name TEXT,
			created_time INTEGER NOT NULL,
			start_time INTEGER,
			finish_time INTEGER,
			token_count INTEGER NOT NULL DEFAULT 0,
			generation_group_id TEXT,
			parent_group_id TEXT,
			tool_calls_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_time)`,
		`CREATE TABLE IF NOT EXISTS message_attachments (
			id TEXT PRIMARY KEY,
			message_id TEXT NOT NULL,
			attachment_type TEXT NOT NULL,
			attachment_url TEXT,
			attachment_content TEXT,
			attachment_hash TEXT,
			use_vector INTEGER NOT NULL DEFAULT 0,
			token_count INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attachments_message ON message_attachments(message_id)`,
		`CREATE TABLE IF NOT EXISTS mcp_servers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			command TEXT,
			transport TEXT NOT NULL,
			is_enabled INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS mcp_tools (
			id TEXT PRIMARY KEY,
			server_id TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			parameters_schema TEXT,
			is_enabled INTEGER NOT NULL DEFAULT 1,
			is_auto_run INTEGER NOT NULL DEFAULT 0,
			catalog_summary TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mcp_tools_server ON mcp_tools(server_id)`,
		`CREATE TABLE IF NOT EXISTS mcp_tool_calls (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			message_id TEXT,
			subtask_id TEXT,
			server_id TEXT NOT NULL,
			server_name TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			parameters TEXT NOT NULL,
			status TEXT NOT NULL,
			result TEXT,
			error TEXT,
			llm_call_id TEXT,
			created_time INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_calls_dedup ON mcp_tool_calls(message_id, server_name, tool_name)`,
		`CREATE TABLE IF NOT EXISTS scheduled_tasks (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			is_enabled INTEGER NOT NULL DEFAULT 1,
			schedule_type TEXT NOT NULL,
			interval_value INTEGER,
			interval_unit TEXT,
			start_time TEXT,
			week_days TEXT,
			month_days TEXT,
			run_at INTEGER,
			next_run_at INTEGER,
			last_run_at INTEGER,
			assistant_id TEXT NOT NULL,
			task_prompt TEXT NOT NULL,
			notify_prompt TEXT NOT NULL,
			created_time INTEGER NOT NULL,
			updated_time INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_tasks_due ON scheduled_tasks(is_enabled, next_run_at)`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_tasks_assistant ON scheduled_tasks(assistant_id)`,
		`CREATE TABLE IF NOT EXISTS scheduled_task_runs (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			status TEXT NOT NULL,
			notify INTEGER NOT NULL DEFAULT 0,
			summary TEXT,
			error TEXT,
			started_time INTEGER NOT NULL,
			finished_time INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS scheduled_task_logs (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			message_type TEXT NOT NULL,
			content TEXT NOT NULL,
			created_time INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_logs_run ON scheduled_task_logs(run_id)`,
		`CREATE TABLE IF NOT EXISTS feature_config (
			feature_code TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (feature_code, key)
		)`,
		`CREATE TABLE IF NOT EXISTS artifact_records (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			component_source TEXT NOT NULL,
			created_time INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS todo_items (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			text TEXT NOT NULL,
			done INTEGER NOT NULL DEFAULT 0,
			position INTEGER NOT NULL,
			created_time INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_todo_items_conversation ON todo_items(conversation_id, position)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Conversations() ConversationStore   { return conversationStore{s.db} }
func (s *SQLiteStore) Messages() MessageStore             { return messageStore{s.db} }
func (s *SQLiteStore) McpCatalog() McpCatalogStore        { return mcpCatalogStore{s.db} }
func (s *SQLiteStore) McpToolCalls() McpToolCallStore     { return mcpToolCallStore{s.db} }
func (s *SQLiteStore) ScheduledTasks() ScheduledTaskStore { return scheduledTaskStore{s.db} }
func (s *SQLiteStore) FeatureConfig() FeatureConfigStore  { return featureConfigStore{s.db} }
func (s *SQLiteStore) Artifacts() ArtifactRecordStore     { return artifactRecordStore{s.db} }
func (s *SQLiteStore) Todos() TodoStore                   { return todoStore{s.db} }

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timePtrFromUnix(ns sql.NullInt64) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := time.Unix(ns.Int64, 0)
	return &t
}

// --- conversations ---

type conversationStore struct{ db *sql.DB }

func (c conversationStore) Create(ctx context.Context, v *Conversation) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO conversations (id, name, assistant_id, created_time) VALUES (?, ?, ?, ?)`,
		v.ID, v.Name, nullableStr(v.AssistantID), v.CreatedTime.Unix())
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (c conversationStore) Get(ctx context.Context, id string) (*Conversation, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, name, assistant_id, created_time FROM conversations WHERE id = ?`, id)
	var v Conversation
	var assistantID sql.NullString
	var created int64
	if err := row.Scan(&v.ID, &v.Name, &assistantID, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	v.AssistantID = assistantID.String
	v.CreatedTime = time.Unix(created, 0)
	return &v, nil
}

func (c conversationStore) Delete(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	return err
}

func (c conversationStore) List(ctx context.Context) ([]*Conversation, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, name, assistant_id, created_time FROM conversations ORDER BY created_time ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Conversation
	for rows.Next() {
		var v Conversation
		var assistantID sql.NullString
		var created int64
		if err := rows.Scan(&v.ID, &v.Name, &assistantID, &created); err != nil {
			return nil, err
		}
		v.AssistantID = assistantID.String
		v.CreatedTime = time.Unix(created, 0)
		out = append(out, &v)
	}
	return out, rows.Err()
}

// --- messages ---

type messageStore struct{ db *sql.DB }

func (m messageStore) Append(ctx context.Context, v *Message) error {
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, parent_id, message_type, content, llm_model_id, llm_model_name,
			created_time, start_time, finish_time, token_count, generation_group_id, parent_group_id, tool_calls_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.ConversationID, nullableStr(v.ParentID), string(v.MessageType), v.Content,
		nullableStr(v.LLMModelID), nullableStr(v.LLMModelName), v.CreatedTime.Unix(),
		unixOrNil(v.StartTime), unixOrNil(v.FinishTime), v.TokenCount,
		nullableStr(v.GenerationGroupID), nullableStr(v.ParentGroupID), nullableStr(v.ToolCallsJSON))
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func scanMessage(row interface {
	Scan(dest ...any) error
}) (*Message, error) {
	var v Message
	var parentID, modelID, modelName, groupID, parentGroup, toolCalls sql.NullString
	var created int64
	var start, finish sql.NullInt64
	var msgType string
	if err := row.Scan(&v.ID, &v.ConversationID, &parentID, &msgType, &v.Content, &modelID, &modelName,
		&created, &start, &finish, &v.TokenCount, &groupID, &parentGroup, &toolCalls); err != nil {
		return nil, err
	}
	v.ParentID = parentID.String
	v.MessageType = NormalizeMessageType(MessageType(msgType))
	v.LLMModelID = modelID.String
	v.LLMModelName = modelName.String
	v.CreatedTime = time.Unix(created, 0)
	v.StartTime = timePtrFromUnix(start)
	v.FinishTime = timePtrFromUnix(finish)
	v.GenerationGroupID = groupID.String
	v.ParentGroupID = parentGroup.String
	v.ToolCallsJSON = toolCalls.String
	return &v, nil
}

func (m messageStore) ListByConversation(ctx context.Context, conversationID string) ([]*Message, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, conversation_id, parent_id, message_type, content, llm_model_id, llm_model_name,
			created_time, start_time, finish_time, token_count, generation_group_id, parent_group_id, tool_calls_json
		 FROM messages WHERE conversation_id = ? ORDER BY created_time ASC, id ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Message
	for rows.Next() {
		v, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (m messageStore) Get(ctx context.Context, id string) (*Message, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, parent_id, message_type, content, llm_model_id, llm_model_name,
			created_time, start_time, finish_time, token_count, generation_group_id, parent_group_id, tool_calls_json
		 FROM messages WHERE id = ?`, id)
	v, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return v, err
}

func (m messageStore) AddAttachment(ctx context.Context, a *MessageAttachment) error {
	var tokenCount any
	if a.TokenCount != nil {
		tokenCount = *a.TokenCount
	}
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO message_attachments (id, message_id, attachment_type, attachment_url, attachment_content, attachment_hash, use_vector, token_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.MessageID, string(a.AttachmentType), nullableStr(a.AttachmentURL), nullableStr(a.AttachmentContent),
		nullableStr(a.AttachmentHash), boolToInt(a.UseVector), tokenCount)
	return err
}

func (m messageStore) ListAttachments(ctx context.Context, messageID string) ([]*MessageAttachment, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, message_id, attachment_type, attachment_url, attachment_content, attachment_hash, use_vector, token_count
		 FROM message_attachments WHERE message_id = ?`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*MessageAttachment
	for rows.Next() {
		var a MessageAttachment
		var url, content, hash sql.NullString
		var useVector int
		var tokenCount sql.NullInt64
		var attType string
		if err := rows.Scan(&a.ID, &a.MessageID, &attType, &url, &content, &hash, &useVector, &tokenCount); err != nil {
			return nil, err
		}
		a.AttachmentType = AttachmentType(attType)
		a.AttachmentURL = url.String
		a.AttachmentContent = content.String
		a.AttachmentHash = hash.String
		a.UseVector = useVector != 0
		if tokenCount.Valid {
			v := int(tokenCount.Int64)
			a.TokenCount = &v
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// --- mcp catalog ---

type mcpCatalogStore struct{ db *sql.DB }

func (c mcpCatalogStore) ListServersForAssistant(ctx context.Context, _ string) ([]*McpServer, error) {
	// Built-in and transport servers are global in this engine; assistant_id
	// scoping is left to the caller's enabled_server_ids filter.
	rows, err := c.db.QueryContext(ctx, `SELECT id, name, command, transport, is_enabled FROM mcp_servers WHERE is_enabled = 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*McpServer
	for rows.Next() {
		var s McpServer
		var command sql.NullString
		var enabled int
		if err := rows.Scan(&s.ID, &s.Name, &command, &s.Transport, &enabled); err != nil {
			return nil, err
		}
		s.Command = command.String
		s.IsEnabled = enabled != 0
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (c mcpCatalogStore) ListToolsForServer(ctx context.Context, serverID string) ([]*McpTool, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, server_id, tool_name, parameters_schema, is_enabled, is_auto_run, catalog_summary
		 FROM mcp_tools WHERE server_id = ? AND is_enabled = 1`, serverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*McpTool
	for rows.Next() {
		var t McpTool
		var schema, summary sql.NullString
		var enabled, autoRun int
		if err := rows.Scan(&t.ID, &t.ServerID, &t.ToolName, &schema, &enabled, &autoRun, &summary); err != nil {
			return nil, err
		}
		t.ParametersSchema = schema.String
		t.IsEnabled = enabled != 0
		t.IsAutoRun = autoRun != 0
		t.CatalogSummary = summary.String
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (c mcpCatalogStore) GetServerByName(ctx context.Context, name string) (*McpServer, error) {
	row := c.db.QueryRowContext(ctx, `SELECT id, name, command, transport, is_enabled FROM mcp_servers WHERE name = ?`, name)
	var s McpServer
	var command sql.NullString
	var enabled int
	if err := row.Scan(&s.ID, &s.Name, &command, &s.Transport, &enabled); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	s.Command = command.String
	s.IsEnabled = enabled != 0
	return &s, nil
}

func (c mcpCatalogStore) GetTool(ctx context.Context, serverID, toolName string) (*McpTool, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, server_id, tool_name, parameters_schema, is_enabled, is_auto_run, catalog_summary
		 FROM mcp_tools WHERE server_id = ? AND tool_name = ?`, serverID, toolName)
	var t McpTool
	var schema, summary sql.NullString
	var enabled, autoRun int
	if err := row.Scan(&t.ID, &t.ServerID, &t.ToolName, &schema, &enabled, &autoRun, &summary); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.ParametersSchema = schema.String
	t.IsEnabled = enabled != 0
	t.IsAutoRun = autoRun != 0
	t.CatalogSummary = summary.String
	return &t, nil
}

// --- mcp tool calls ---

type mcpToolCallStore struct{ db *sql.DB }

func (s mcpToolCallStore) FindDuplicate(ctx context.Context, messageID, serverName, toolName, parameters string) (*McpToolCall, error) {
	trimmed := strings.TrimSpace(parameters)
	row := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, message_id, subtask_id, server_id, server_name, tool_name, parameters, status, result, error, llm_call_id, created_time
		 FROM mcp_tool_calls WHERE message_id = ? AND server_name = ? AND tool_name = ? AND TRIM(parameters) = ?
		 ORDER BY created_time ASC LIMIT 1`,
		messageID, serverName, toolName, trimmed)
	tc, err := scanToolCall(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return tc, err
}

func scanToolCall(row interface {
	Scan(dest ...any) error
}) (*McpToolCall, error) {
	var tc McpToolCall
	var messageID, subtaskID, result, errText, llmCallID sql.NullString
	var created int64
	var status string
	if err := row.Scan(&tc.ID, &tc.ConversationID, &messageID, &subtaskID, &tc.ServerID, &tc.ServerName, &tc.ToolName,
		&tc.Parameters, &status, &result, &errText, &llmCallID, &created); err != nil {
		return nil, err
	}
	tc.MessageID = messageID.String
	tc.SubtaskID = subtaskID.String
	tc.Status = ToolCallStatus(status)
	tc.Result = result.String
	tc.Error = errText.String
	tc.LLMCallID = llmCallID.String
	tc.CreatedTime = time.Unix(created, 0)
	return &tc, nil
}

func (s mcpToolCallStore) Create(ctx context.Context, tc *McpToolCall) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mcp_tool_calls (id, conversation_id, message_id, subtask_id, server_id, server_name, tool_name,
			parameters, status, result, error, llm_call_id, created_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tc.ID, tc.ConversationID, nullableStr(tc.MessageID), nullableStr(tc.SubtaskID), tc.ServerID, tc.ServerName,
		tc.ToolName, tc.Parameters, string(tc.Status), nullableStr(tc.Result), nullableStr(tc.Error),
		nullableStr(tc.LLMCallID), tc.CreatedTime.Unix())
	return err
}

func (s mcpToolCallStore) Update(ctx context.Context, tc *McpToolCall) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE mcp_tool_calls SET status = ?, result = ?, error = ?, llm_call_id = ? WHERE id = ?`,
		string(tc.Status), nullableStr(tc.Result), nullableStr(tc.Error), nullableStr(tc.LLMCallID), tc.ID)
	return err
}

func (s mcpToolCallStore) Get(ctx context.Context, id string) (*McpToolCall, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, message_id, subtask_id, server_id, server_name, tool_name, parameters, status, result, error, llm_call_id, created_time
		 FROM mcp_tool_calls WHERE id = ?`, id)
	tc, err := scanToolCall(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return tc, err
}

// --- scheduled tasks ---

type scheduledTaskStore struct{ db *sql.DB }

func intsToCSV(vals []int) string {
	if len(vals) == 0 {
		return ""
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func csvToInts(s string) []int {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err == nil {
			out = append(out, n)
		}
	}
	return out
}

func (s scheduledTaskStore) ListDue(ctx context.Context, now time.Time) ([]*ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, is_enabled, schedule_type, interval_value, interval_unit, start_time, week_days, month_days,
			run_at, next_run_at, last_run_at, assistant_id, task_prompt, notify_prompt, created_time, updated_time
		 FROM scheduled_tasks WHERE is_enabled = 1 AND next_run_at IS NOT NULL AND next_run_at <= ?
		 ORDER BY next_run_at ASC`, now.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ScheduledTask
	for rows.Next() {
		t, err := scanScheduledTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanScheduledTask(row interface {
	Scan(dest ...any) error
}) (*ScheduledTask, error) {
	var t ScheduledTask
	var enabled int
	var scheduleType string
	var intervalValue sql.NullInt64
	var intervalUnit, startTime, weekDays, monthDays sql.NullString
	var runAt, nextRunAt, lastRunAt sql.NullInt64
	var created, updated int64
	if err := row.Scan(&t.ID, &t.Name, &enabled, &scheduleType, &intervalValue, &intervalUnit, &startTime,
		&weekDays, &monthDays, &runAt, &nextRunAt, &lastRunAt, &t.AssistantID, &t.TaskPrompt, &t.NotifyPrompt,
		&created, &updated); err != nil {
		return nil, err
	}
	t.IsEnabled = enabled != 0
	t.ScheduleType = ScheduleType(scheduleType)
	t.IntervalValue = int(intervalValue.Int64)
	t.IntervalUnit = IntervalUnit(intervalUnit.String)
	t.StartTime = startTime.String
	t.WeekDays = csvToInts(weekDays.String)
	t.MonthDays = csvToInts(monthDays.String)
	t.RunAt = timePtrFromUnix(runAt)
	t.NextRunAt = timePtrFromUnix(nextRunAt)
	t.LastRunAt = timePtrFromUnix(lastRunAt)
	t.CreatedTime = time.Unix(created, 0)
	t.UpdatedTime = time.Unix(updated, 0)
	return &t, nil
}

func (s scheduledTaskStore) Get(ctx context.Context, id string) (*ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, is_enabled, schedule_type, interval_value, interval_unit, start_time, week_days, month_days,
			run_at, next_run_at, last_run_at, assistant_id, task_prompt, notify_prompt, created_time, updated_time
		 FROM scheduled_tasks WHERE id = ?`, id)
	t, err := scanScheduledTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return t, err
}

func (s scheduledTaskStore) Create(ctx context.Context, t *ScheduledTask) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_tasks (id, name, is_enabled, schedule_type, interval_value, interval_unit, start_time,
			week_days, month_days, run_at, next_run_at, last_run_at, assistant_id, task_prompt, notify_prompt, created_time, updated_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, boolToInt(t.IsEnabled), string(t.ScheduleType), nullableInt(t.IntervalValue),
		nullableStr(string(t.IntervalUnit)), nullableStr(t.StartTime), nullableStr(intsToCSV(t.WeekDays)),
		nullableStr(intsToCSV(t.MonthDays)), unixOrNil(t.RunAt), unixOrNil(t.NextRunAt), unixOrNil(t.LastRunAt),
		t.AssistantID, t.TaskPrompt, t.NotifyPrompt, t.CreatedTime.Unix(), t.UpdatedTime.Unix())
	return err
}

func (s scheduledTaskStore) Update(ctx context.Context, t *ScheduledTask) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_tasks SET name = ?, is_enabled = ?, schedule_type = ?, interval_value = ?, interval_unit = ?,
			start_time = ?, week_days = ?, month_days = ?, run_at = ?, next_run_at = ?, last_run_at = ?,
			task_prompt = ?, notify_prompt = ?, updated_time = ? WHERE id = ?`,
		t.Name, boolToInt(t.IsEnabled), string(t.ScheduleType), nullableInt(t.IntervalValue),
		nullableStr(string(t.IntervalUnit)), nullableStr(t.StartTime), nullableStr(intsToCSV(t.WeekDays)),
		nullableStr(intsToCSV(t.MonthDays)), unixOrNil(t.RunAt), unixOrNil(t.NextRunAt), unixOrNil(t.LastRunAt),
		t.TaskPrompt, t.NotifyPrompt, t.UpdatedTime.Unix(), t.ID)
	return err
}

func (s scheduledTaskStore) CreateRun(ctx context.Context, r *ScheduledTaskRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_task_runs (id, task_id, run_id, status, notify, summary, error, started_time, finished_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TaskID, r.RunID, string(r.Status), boolToInt(r.Notify), nullableStr(r.Summary),
		nullableStr(r.Error), r.StartedTime.Unix(), unixOrNil(r.FinishedTime))
	return err
}

func (s scheduledTaskStore) UpdateRun(ctx context.Context, r *ScheduledTaskRun) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_task_runs SET status = ?, summary = ?, error = ?, finished_time = ? WHERE id = ?`,
		string(r.Status), nullableStr(r.Summary), nullableStr(r.Error), unixOrNil(r.FinishedTime), r.ID)
	return err
}

func (s scheduledTaskStore) AppendLog(ctx context.Context, l *ScheduledTaskLog) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_task_logs (id, task_id, run_id, message_type, content, created_time) VALUES (?, ?, ?, ?, ?, ?)`,
		l.ID, l.TaskID, l.RunID, string(l.MessageType), l.Content, l.CreatedTime.Unix())
	return err
}

func (s scheduledTaskStore) ListLogs(ctx context.Context, runID string) ([]*ScheduledTaskLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, run_id, message_type, content, created_time FROM scheduled_task_logs WHERE run_id = ? ORDER BY created_time ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ScheduledTaskLog
	for rows.Next() {
		var l ScheduledTaskLog
		var created int64
		var msgType string
		if err := rows.Scan(&l.ID, &l.TaskID, &l.RunID, &msgType, &l.Content, &created); err != nil {
			return nil, err
		}
		l.MessageType = MessageType(msgType)
		l.CreatedTime = time.Unix(created, 0)
		out = append(out, &l)
	}
	return out, rows.Err()
}

// --- feature config ---

type featureConfigStore struct{ db *sql.DB }

func (f featureConfigStore) Get(ctx context.Context, featureCode, key string) (string, bool, error) {
	var value string
	err := f.db.QueryRowContext(ctx, `SELECT value FROM feature_config WHERE feature_code = ? AND key = ?`, featureCode, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (f featureConfigStore) Set(ctx context.Context, featureCode, key, value string) error {
	_, err := f.db.ExecContext(ctx,
		`INSERT INTO feature_config (feature_code, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(feature_code, key) DO UPDATE SET value = excluded.value`,
		featureCode, key, value)
	return err
}

// SetPair updates several keys for one feature_code inside a single
// transaction; the {kind}_files_hash / {kind}_deps_hash pair must be
// updated together.
func (f featureConfigStore) SetPair(ctx context.Context, featureCode string, kv map[string]string) error {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin feature config tx: %w", err)
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO feature_config (feature_code, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(feature_code, key) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for k, v := range kv {
		if _, err := stmt.ExecContext(ctx, featureCode, k, v); err != nil {
			return fmt.Errorf("set feature config %s/%s: %w", featureCode, k, err)
		}
	}
	return tx.Commit()
}

// --- artifact records ---

type artifactRecordStore struct{ db *sql.DB }

func (a artifactRecordStore) Create(ctx context.Context, r *ArtifactRecord) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO artifact_records (id, kind, component_source, created_time) VALUES (?, ?, ?, ?)`,
		r.ID, r.Kind, r.ComponentSource, r.CreatedTime.Unix())
	return err
}

func (a artifactRecordStore) List(ctx context.Context) ([]*ArtifactRecord, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT id, kind, component_source, created_time FROM artifact_records ORDER BY created_time DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*ArtifactRecord
	for rows.Next() {
		var r ArtifactRecord
		var created int64
		if err := rows.Scan(&r.ID, &r.Kind, &r.ComponentSource, &created); err != nil {
			return nil, err
		}
		r.CreatedTime = time.Unix(created, 0)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (a artifactRecordStore) Delete(ctx context.Context, id string) error {
	_, err := a.db.ExecContext(ctx, `DELETE FROM artifact_records WHERE id = ?`, id)
	return err
}

// --- todos ---

type todoStore struct{ db *sql.DB }

func (t todoStore) List(ctx context.Context, conversationID string) ([]*TodoItem, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT id, conversation_id, text, done, position, created_time FROM todo_items WHERE conversation_id = ? ORDER BY position ASC`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*TodoItem
	for rows.Next() {
		var item TodoItem
		var done int
		var created int64
		if err := rows.Scan(&item.ID, &item.ConversationID, &item.Text, &done, &item.Position, &created); err != nil {
			return nil, err
		}
		item.Done = done != 0
		item.CreatedTime = time.Unix(created, 0)
		out = append(out, &item)
	}
	return out, rows.Err()
}

func (t todoStore) Add(ctx context.Context, item *TodoItem) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO todo_items (id, conversation_id, text, done, position, created_time) VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.ConversationID, item.Text, boolToInt(item.Done), item.Position, item.CreatedTime.Unix())
	return err
}

func (t todoStore) Toggle(ctx context.Context, id string, done bool) error {
	_, err := t.db.ExecContext(ctx, `UPDATE todo_items SET done = ? WHERE id = ?`, boolToInt(done), id)
	return err
}

// --- scalar helpers ---

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}
