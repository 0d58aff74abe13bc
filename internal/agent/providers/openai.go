package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aipp-workbench/engine/internal/agent"
)

// compatProvider is the shared core behind every Chat Completions
// compatible backend: OpenAI itself plus OpenRouter, Azure OpenAI, Ollama,
// and the Copilot proxy, which differ only in client configuration, default
// model, and model catalog.
type compatProvider struct {
	client       *openai.Client
	name         string
	defaultModel string
	models       []agent.Model
	retry        retryPolicy
}

// OpenAIProvider serves the OpenAI API.
type OpenAIProvider struct{ compatProvider }

// NewOpenAIProvider builds a provider for api.openai.com.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{compatProvider{
		client:       openai.NewClient(apiKey),
		name:         "openai",
		defaultModel: "gpt-4o",
		models: []agent.Model{
			{ID: "gpt-4o", Name: "GPT-4o", ContextSize: 128000, SupportsVision: true},
			{ID: "gpt-4o-mini", Name: "GPT-4o mini", ContextSize: 128000, SupportsVision: true},
			{ID: "o3-mini", Name: "o3-mini", ContextSize: 200000},
		},
		retry: defaultRetryPolicy(),
	}}
}

func (p *compatProvider) Name() string          { return p.name }
func (p *compatProvider) Models() []agent.Model { return p.models }
func (p *compatProvider) SupportsTools() bool   { return true }

func (p *compatProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

// Complete implements agent.LLMProvider over the Chat Completions
// streaming API.
func (p *compatProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	model := p.model(req.Model)
	messages, err := compatMessages(ctx, req.Messages, req.System)
	if err != nil {
		return nil, wrapError(p.name, model, 0, err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokensOr(req.MaxTokens),
		Stream:    true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
		Tools: compatTools(req.Tools),
	}

	var stream *openai.ChatCompletionStream
	err = p.retry.do(ctx, func() error {
		var streamErr error
		stream, streamErr = p.client.CreateChatCompletionStream(ctx, chatReq)
		return normalizeOpenAIError(p.name, model, streamErr)
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.pump(ctx, stream, chunks, model)
	return chunks, nil
}

// pump forwards streamed deltas onto chunks, assembling tool calls whose
// arguments arrive fragmented across deltas.
func (p *compatProvider) pump(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *agent.CompletionChunk, model string) {
	defer close(chunks)
	defer stream.Close()

	asm := newToolCallAssembler()
	var inputTokens, outputTokens int

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			for _, tc := range asm.finished() {
				chunks <- &agent.CompletionChunk{ToolCall: tc}
			}
			chunks <- &agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				chunks <- &agent.CompletionChunk{Error: ctx.Err()}
				return
			}
			chunks <- &agent.CompletionChunk{Error: wrapError(p.name, model, 0, err)}
			return
		}

		if resp.Usage != nil {
			inputTokens = resp.Usage.PromptTokens
			outputTokens = resp.Usage.CompletionTokens
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if choice.Delta.Content != "" {
			chunks <- &agent.CompletionChunk{Text: choice.Delta.Content}
		}
		asm.add(choice.Delta.ToolCalls)
		if choice.FinishReason == openai.FinishReasonToolCalls {
			for _, tc := range asm.finished() {
				chunks <- &agent.CompletionChunk{ToolCall: tc}
			}
			asm.reset()
		}
	}
}

// compatMessages converts neutral messages into Chat Completions form. The
// system prompt becomes the leading message; user attachments become
// multi-part content; each tool result becomes its own tool-role message.
func compatMessages(ctx context.Context, messages []agent.CompletionMessage, system string) ([]openai.ChatCompletionMessage, error) {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, msg := range messages {
		if msg.Role == "tool" {
			for _, tr := range msg.ToolResults {
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
			continue
		}

		m := openai.ChatCompletionMessage{Role: msg.Role}
		content := appendDocumentText(msg.Content, msg.Attachments)

		var parts []openai.ChatMessagePart
		for _, att := range msg.Attachments {
			if !att.IsImage() {
				continue
			}
			url, err := imageDataURL(ctx, att)
			if err != nil {
				return nil, err
			}
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailAuto},
			})
		}
		if len(parts) > 0 {
			if content != "" {
				parts = append([]openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: content}}, parts...)
			}
			m.MultiContent = parts
		} else {
			m.Content = content
		}

		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Input),
				},
			})
		}
		out = append(out, m)
	}
	return out, nil
}

func compatTools(specs []agent.ToolSpec) []openai.Tool {
	if len(specs) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(specs))
	for _, spec := range specs {
		var schema any
		if len(spec.Parameters) > 0 {
			if err := json.Unmarshal(spec.Parameters, &schema); err != nil {
				continue
			}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  schema,
			},
		})
	}
	return out
}

// normalizeOpenAIError lifts the SDK's APIError status into ProviderError.
func normalizeOpenAIError(provider, model string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return wrapError(provider, model, apiErr.HTTPStatusCode, err)
	}
	return wrapError(provider, model, 0, err)
}
