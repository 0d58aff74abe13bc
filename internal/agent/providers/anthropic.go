package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/aipp-workbench/engine/internal/agent"
	"github.com/aipp-workbench/engine/pkg/models"
)

const defaultThinkingBudget = 8192

// AnthropicConfig configures the Anthropic adapter.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// AnthropicProvider serves the Anthropic Messages API.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	retry        retryPolicy
}

// NewAnthropicProvider builds a provider for the Anthropic API.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, &ProviderError{Provider: "anthropic", Reason: ReasonAuth, Cause: errMissingAPIKey}
	}
	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = string(anthropic.ModelClaudeSonnet4_20250514)
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(options...),
		defaultModel: defaultModel,
		retry:        defaultRetryPolicy(),
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: string(anthropic.ModelClaudeOpus4_0), Name: "Claude Opus 4", ContextSize: 200000, SupportsVision: true},
		{ID: string(anthropic.ModelClaudeSonnet4_20250514), Name: "Claude Sonnet 4", ContextSize: 200000, SupportsVision: true},
		{ID: string(anthropic.ModelClaude3_5Haiku20241022), Name: "Claude Haiku 3.5", ContextSize: 200000, SupportsVision: true},
	}
}

func (p *AnthropicProvider) SupportsTools() bool { return true }

func (p *AnthropicProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

// Complete implements agent.LLMProvider over the streaming Messages API.
func (p *AnthropicProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	model := p.model(req.Model)
	params, err := p.buildParams(ctx, req, model)
	if err != nil {
		return nil, err
	}

	var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
	err = p.retry.do(ctx, func() error {
		stream = p.client.Messages.NewStreaming(ctx, *params)
		return normalizeAnthropicError(model, stream.Err())
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.pump(stream, chunks, model)
	return chunks, nil
}

func (p *AnthropicProvider) buildParams(ctx context.Context, req *agent.CompletionRequest, model string) (*anthropic.MessageNewParams, error) {
	messages, err := anthropicMessages(ctx, req.Messages)
	if err != nil {
		return nil, wrapError("anthropic", model, 0, err)
	}
	params := &anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokensOr(req.MaxTokens)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if tools, convErr := anthropicTools(req.Tools); convErr != nil {
		return nil, wrapError("anthropic", model, 0, convErr)
	} else if len(tools) > 0 {
		params.Tools = tools
	}
	if req.EnableThinking {
		budget := int64(req.ThinkingBudgetTokens)
		if budget <= 0 {
			budget = defaultThinkingBudget
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}
	return params, nil
}

// pump translates Messages API stream events into neutral chunks. Tool-use
// input json arrives fragmented and is assembled until the owning content
// block stops.
func (p *AnthropicProvider) pump(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- *agent.CompletionChunk, model string) {
	defer close(chunks)

	var pendingTool *models.ToolCall
	var pendingInput strings.Builder
	inThinking := false
	var inputTokens, outputTokens int

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			start := event.AsMessageStart()
			inputTokens = int(start.Message.Usage.InputTokens)

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			switch block.Type {
			case "thinking":
				inThinking = true
				chunks <- &agent.CompletionChunk{ThinkingStart: true}
			case "tool_use":
				use := block.AsToolUse()
				pendingTool = &models.ToolCall{ID: use.ID, Name: use.Name}
				pendingInput.Reset()
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					chunks <- &agent.CompletionChunk{Text: delta.Text}
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					chunks <- &agent.CompletionChunk{Thinking: delta.Thinking}
				}
			case "input_json_delta":
				pendingInput.WriteString(delta.PartialJSON)
			}

		case "content_block_stop":
			if inThinking {
				inThinking = false
				chunks <- &agent.CompletionChunk{ThinkingEnd: true}
			} else if pendingTool != nil {
				pendingTool.Input = json.RawMessage(pendingInput.String())
				chunks <- &agent.CompletionChunk{ToolCall: pendingTool}
				pendingTool = nil
			}

		case "message_delta":
			delta := event.AsMessageDelta()
			if delta.Usage.OutputTokens > 0 {
				outputTokens = int(delta.Usage.OutputTokens)
			}

		case "message_stop":
			chunks <- &agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
			return
		}
	}

	if err := stream.Err(); err != nil {
		chunks <- &agent.CompletionChunk{Error: normalizeAnthropicError(model, err)}
		return
	}
	chunks <- &agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
}

// anthropicMessages converts neutral messages into Messages API params.
// Tool results ride in user-role messages; consecutive roles are kept as-is
// since the API accepts alternation violations only between user turns.
func anthropicMessages(ctx context.Context, messages []agent.CompletionMessage) ([]anthropic.MessageParam, error) {
	var out []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == "system" {
			// System travels in MessageNewParams.System, never inline.
			continue
		}

		var blocks []anthropic.ContentBlockParamUnion
		content := appendDocumentText(msg.Content, msg.Attachments)
		if content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(content))
		}
		for _, att := range msg.Attachments {
			if !att.IsImage() {
				continue
			}
			block, err := anthropicImageBlock(ctx, att)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, block)
		}
		for _, tr := range msg.ToolResults {
			blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		}
		for _, tc := range msg.ToolCalls {
			var input any
			if len(tc.Input) > 0 {
				if err := json.Unmarshal(tc.Input, &input); err != nil {
					input = map[string]any{}
				}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}
		if len(blocks) == 0 {
			continue
		}

		if msg.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out, nil
}

func anthropicImageBlock(ctx context.Context, att models.Attachment) (anthropic.ContentBlockParamUnion, error) {
	if att.IsHTTPURL() {
		return anthropic.ContentBlockParamUnion{
			OfImage: &anthropic.ImageBlockParam{
				Source: anthropic.ImageBlockParamSourceUnion{
					OfURL: &anthropic.URLImageSourceParam{URL: att.URL},
				},
			},
		}, nil
	}
	data, mediaType, err := imageBytes(ctx, att)
	if err != nil {
		return anthropic.ContentBlockParamUnion{}, err
	}
	return anthropic.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(data)), nil
}

func anthropicTools(specs []agent.ToolSpec) ([]anthropic.ToolUnionParam, error) {
	var out []anthropic.ToolUnionParam
	for _, spec := range specs {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(spec.Parameters, &schema); err != nil {
			return nil, errors.New("invalid schema for tool " + spec.Name)
		}
		tool := anthropic.ToolUnionParamOfTool(schema, spec.Name)
		if tool.OfTool != nil && spec.Description != "" {
			tool.OfTool.Description = anthropic.String(spec.Description)
		}
		out = append(out, tool)
	}
	return out, nil
}

func normalizeAnthropicError(model string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return wrapError("anthropic", model, apiErr.StatusCode, err)
	}
	return wrapError("anthropic", model, 0, err)
}
