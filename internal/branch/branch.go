// Package branch computes the "latest branch" view over a
// conversation's stored messages and building provider-neutral chat requests
// from it. There is no stored branch entity — every call recomputes the view
// from the ordered message list, the way a pure function would.
package branch

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aipp-workbench/engine/internal/agent"
	"github.com/aipp-workbench/engine/internal/store"
	"github.com/aipp-workbench/engine/pkg/models"
	"github.com/google/uuid"
)

// Strategy selects how tool calls/results are represented in a built request.
type Strategy int

const (
	// StrategyNative emits structured tool_call/tool message parts.
	StrategyNative Strategy = iota
	// StrategyNonNative inlines the same calls/results as plain text,
	// preserving the MCP_TOOL_CALL comment markers verbatim.
	StrategyNonNative
)

var markerPattern = regexp.MustCompile(`(?s)<!--\s*MCP_TOOL_CALL:\s*(\{.*?\})\s*-->`)
var toolCallIDPattern = regexp.MustCompile(`Tool Call ID:\s*(\S+)`)

type toolCallMarker struct {
	ServerName string          `json:"server_name"`
	ToolName   string          `json:"tool_name"`
	Parameters json.RawMessage `json:"parameters"`
	CallID     json.Number     `json:"call_id"`
	LLMCallID  string          `json:"llm_call_id"`
}

// arguments returns the call arguments as raw JSON. The marker usually
// carries parameters as a JSON string holding the arguments object, but an
// inline object is accepted too.
func (m *toolCallMarker) arguments() json.RawMessage {
	if len(m.Parameters) == 0 {
		return json.RawMessage("{}")
	}
	var inner string
	if err := json.Unmarshal(m.Parameters, &inner); err == nil {
		return json.RawMessage(inner)
	}
	return m.Parameters
}

// SelectBranch computes the displayed/requestable branch of an ordered
// (by created_time) message list: one message per generation group,
// the most recent regeneration winning over its ancestors, with any
// tool_result orphaned by a dropped response also dropped.
func SelectBranch(messages []store.Message) []store.Message {
	latestByGroup := map[string]store.Message{}
	for _, m := range messages {
		if m.GenerationGroupID == "" {
			continue
		}
		if cur, ok := latestByGroup[m.GenerationGroupID]; !ok || isLaterMessage(m, cur) {
			latestByGroup[m.GenerationGroupID] = m
		}
	}

	// replacedGroups maps a superseded parent_group_id to the created_time
	// of the message that replaced it; messages in that group created
	// before the replacement are dropped, later ones survive (a
	// regeneration only truncates the tail up to the replacement point).
	replacedGroups := map[string]time.Time{}
	for _, m := range latestByGroup {
		if m.ParentGroupID != "" {
			if cutoff, ok := replacedGroups[m.ParentGroupID]; !ok || m.CreatedTime.Before(cutoff) {
				replacedGroups[m.ParentGroupID] = m.CreatedTime
			}
		}
	}

	out := make([]store.Message, 0, len(messages))
	droppedOwner := map[string]bool{} // message IDs of dropped response/reasoning messages
	var lastResponseID string
	var lastResponseDropped bool

	for _, m := range messages {
		switch m.MessageType {
		case store.MessageSystem, store.MessageUser:
			out = append(out, m)
			continue
		case store.MessageToolResult:
			if lastResponseDropped {
				continue
			}
			out = append(out, m)
			continue
		}

		keep := true
		if m.GenerationGroupID != "" {
			latest := latestByGroup[m.GenerationGroupID]
			if m.ID != latest.ID {
				keep = false
			} else if cutoff, replaced := replacedGroups[m.GenerationGroupID]; replaced && m.CreatedTime.Before(cutoff) {
				keep = false
			}
		}
		if m.MessageType == store.MessageResponse {
			lastResponseID = m.ID
			lastResponseDropped = !keep
		}
		if !keep {
			droppedOwner[m.ID] = true
			continue
		}
		out = append(out, m)
	}
	_ = lastResponseID
	return out
}

func isLaterMessage(a, b store.Message) bool {
	if a.CreatedTime.After(b.CreatedTime) {
		return true
	}
	if a.CreatedTime.Before(b.CreatedTime) {
		return false
	}
	return a.ID > b.ID
}

// FilterForRegeneration applies the parent-group filter: every message whose
// generation_group_id equals truncateAt, and every tool_result produced
// after that group started, is removed before building the request.
func FilterForRegeneration(messages []store.Message, truncateAt string) []store.Message {
	if truncateAt == "" {
		return messages
	}
	var groupStart time.Time
	found := false
	for _, m := range messages {
		if m.GenerationGroupID == truncateAt {
			if !found || m.CreatedTime.Before(groupStart) {
				groupStart = m.CreatedTime
				found = true
			}
		}
	}
	out := make([]store.Message, 0, len(messages))
	for _, m := range messages {
		if m.GenerationGroupID == truncateAt {
			continue
		}
		if found && m.MessageType == store.MessageToolResult && !m.CreatedTime.Before(groupStart) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// BuildOptions configures request construction.
type BuildOptions struct {
	Strategy   Strategy
	TruncateAt string

	// Attachments maps a user message id to its stored attachments;
	// prefetched by the caller so request building stays pure.
	Attachments map[string][]store.MessageAttachment
}

// BuildChatMessages walks the filtered, latest branch of messages and
// emits provider-neutral chat messages, ready to hand to an
// agent.LLMProvider via agent.CompletionRequest.Messages.
func BuildChatMessages(messages []store.Message, opts BuildOptions) ([]agent.CompletionMessage, error) {
	filtered := FilterForRegeneration(messages, opts.TruncateAt)
	branch := SelectBranch(filtered)

	var out []agent.CompletionMessage
	var pendingCallIDs []string // ids of tool calls in the most recent assistant turn awaiting a result

	for _, m := range branch {
		switch m.MessageType {
		case store.MessageSystem:
			out = append(out, agent.CompletionMessage{Role: "system", Content: m.Content})
		case store.MessageUser:
			out = append(out, agent.CompletionMessage{
				Role:        "user",
				Content:     m.Content,
				Attachments: attachmentParts(opts.Attachments[m.ID]),
			})
		case store.MessageReasoning:
			// UI-only; omitted from the request.
			continue
		case store.MessageResponse:
			cm, callIDs, err := buildAssistantMessage(m, opts.Strategy)
			if err != nil {
				return nil, fmt.Errorf("build assistant message %s: %w", m.ID, err)
			}
			out = append(out, cm)
			pendingCallIDs = callIDs
		case store.MessageToolResult:
			cm := buildToolResultMessage(m, pendingCallIDs, opts.Strategy)
			out = append(out, cm)
		}
	}
	return out, nil
}

// attachmentParts converts stored attachments into the neutral parts the
// provider adapters understand.
func attachmentParts(rows []store.MessageAttachment) []models.Attachment {
	if len(rows) == 0 {
		return nil
	}
	out := make([]models.Attachment, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.Attachment{
			Kind:    models.AttachmentKind(row.AttachmentType),
			URL:     row.AttachmentURL,
			Content: row.AttachmentContent,
		})
	}
	return out
}

func buildAssistantMessage(m store.Message, strategy Strategy) (agent.CompletionMessage, []string, error) {
	matches := markerPattern.FindAllStringSubmatch(m.Content, -1)
	if len(matches) == 0 {
		return agent.CompletionMessage{Role: "assistant", Content: m.Content}, nil, nil
	}
	if strategy == StrategyNonNative {
		// Inline verbatim: markers stay in the text, no structured parts.
		return agent.CompletionMessage{Role: "assistant", Content: m.Content}, nil, nil
	}

	var calls []models.ToolCall
	var callIDs []string
	for _, match := range matches {
		var marker toolCallMarker
		if err := json.Unmarshal([]byte(match[1]), &marker); err != nil {
			// Unparseable marker: skip it, keep the surrounding text intact.
			continue
		}
		id := marker.LLMCallID
		if id == "" {
			id = marker.CallID.String()
		}
		if id == "" {
			id = uuid.NewString()
		}
		calls = append(calls, models.ToolCall{
			ID:    id,
			Name:  fmt.Sprintf("%s__%s", marker.ServerName, marker.ToolName),
			Input: marker.arguments(),
		})
		callIDs = append(callIDs, id)
	}
	return agent.CompletionMessage{Role: "assistant", Content: "", ToolCalls: calls}, callIDs, nil
}

func buildToolResultMessage(m store.Message, pendingCallIDs []string, strategy Strategy) agent.CompletionMessage {
	if strategy == StrategyNonNative {
		return agent.CompletionMessage{Role: "user", Content: m.Content}
	}

	callID := ""
	if match := toolCallIDPattern.FindStringSubmatch(m.Content); match != nil {
		callID = match[1]
	}
	matched := callID != ""
	if matched {
		matched = false
		for _, id := range pendingCallIDs {
			if id == callID {
				matched = true
				break
			}
		}
	}
	if !matched {
		// No matching call id in the preceding assistant turn: downgrade to
		// a plain user message rather than emit an orphan tool response.
		return agent.CompletionMessage{Role: "user", Content: m.Content}
	}

	isError := strings.Contains(m.Content, "Error:") || strings.Contains(m.Content, "failed")
	return agent.CompletionMessage{
		Role: "tool",
		ToolResults: []models.ToolResult{{
			ToolCallID: callID,
			Content:    m.Content,
			IsError:    isError,
		}},
	}
}
