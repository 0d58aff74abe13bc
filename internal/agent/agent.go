// Package agent defines the provider-neutral completion contract between
// the orchestrator and the LLM provider adapters in providers/.
package agent

import (
	"context"
	"encoding/json"

	"github.com/aipp-workbench/engine/pkg/models"
)

// LLMProvider is implemented by every backend adapter. Implementations must
// be safe for concurrent use; the orchestrator may run turns for several
// conversations at once against the same provider instance.
type LLMProvider interface {
	// Complete sends one request and returns a channel of streamed chunks.
	// The channel is closed when the stream ends; a chunk with a non-nil
	// Error terminates the stream.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	Name() string
	Models() []Model
	SupportsTools() bool
}

// CompletionRequest is the request shape built by the branch engine
// and handed unchanged to whichever provider the turn resolved to.
type CompletionRequest struct {
	// Model is the backend model id; empty selects the provider default.
	Model string `json:"model"`

	// System is the system prompt, kept out of Messages because most
	// backends carry it as a separate parameter.
	System string `json:"system,omitempty"`

	Messages []CompletionMessage `json:"messages"`

	// Tools advertises the callable tool schemas for native tool-call
	// strategies. Empty under the non-native strategy, where calls travel
	// inline as marker text.
	Tools []ToolSpec `json:"tools,omitempty"`

	MaxTokens int `json:"max_tokens,omitempty"`

	// EnableThinking requests extended reasoning on backends that support
	// it; ThinkingBudgetTokens bounds it (0 means the backend default).
	EnableThinking       bool `json:"enable_thinking,omitempty"`
	ThinkingBudgetTokens int  `json:"thinking_budget_tokens,omitempty"`
}

// CompletionMessage is one provider-neutral chat message. Role is one of
// "system", "user", "assistant", or "tool".
type CompletionMessage struct {
	Role        string              `json:"role"`
	Content     string              `json:"content,omitempty"`
	ToolCalls   []models.ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []models.ToolResult `json:"tool_results,omitempty"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
}

// ToolSpec describes one callable tool to a provider. Parameters is a JSON
// Schema object.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// CompletionChunk is one streamed increment of a completion. Exactly one of
// Text/Thinking/ToolCall/Done/Error is meaningful per chunk, except the
// final Done chunk which also carries the token counts when the backend
// reports them.
type CompletionChunk struct {
	Text     string           `json:"text,omitempty"`
	Thinking string           `json:"thinking,omitempty"`
	ToolCall *models.ToolCall `json:"tool_call,omitempty"`

	// ThinkingStart/ThinkingEnd bracket a reasoning block so the consumer
	// can persist it as a separate reasoning message.
	ThinkingStart bool `json:"thinking_start,omitempty"`
	ThinkingEnd   bool `json:"thinking_end,omitempty"`

	Done         bool  `json:"done,omitempty"`
	InputTokens  int   `json:"input_tokens,omitempty"`
	OutputTokens int   `json:"output_tokens,omitempty"`
	Error        error `json:"-"`
}

// Model describes one selectable backend model.
type Model struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ContextSize    int    `json:"context_size"`
	SupportsVision bool   `json:"supports_vision"`
}
