package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"google.golang.org/genai"

	"github.com/aipp-workbench/engine/internal/agent"
	"github.com/aipp-workbench/engine/pkg/models"
)

// GoogleConfig configures the Gemini adapter.
type GoogleConfig struct {
	APIKey       string
	DefaultModel string
}

// GoogleProvider serves the Gemini API through the genai SDK.
type GoogleProvider struct {
	client       *genai.Client
	defaultModel string
	retry        retryPolicy
}

// NewGoogleProvider builds a provider for the Gemini API.
func NewGoogleProvider(cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.APIKey == "" {
		return nil, &ProviderError{Provider: "google", Reason: ReasonAuth, Cause: errMissingAPIKey}
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, wrapError("google", cfg.DefaultModel, 0, err)
	}
	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	return &GoogleProvider{client: client, defaultModel: defaultModel, retry: defaultRetryPolicy()}, nil
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", ContextSize: 1000000, SupportsVision: true},
		{ID: "gemini-2.0-flash-lite", Name: "Gemini 2.0 Flash Lite", ContextSize: 1000000, SupportsVision: true},
		{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro", ContextSize: 2000000, SupportsVision: true},
	}
}

func (p *GoogleProvider) SupportsTools() bool { return true }

func (p *GoogleProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

// Complete implements agent.LLMProvider over GenerateContentStream.
func (p *GoogleProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	model := p.model(req.Model)
	contents, err := geminiContents(ctx, req.Messages)
	if err != nil {
		return nil, wrapError("google", model, 0, err)
	}
	config := geminiConfig(req)

	chunks := make(chan *agent.CompletionChunk)
	go func() {
		defer close(chunks)

		var inputTokens, outputTokens int
		callSeq := 0
		for resp, iterErr := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
			if iterErr != nil {
				if ctx.Err() != nil {
					chunks <- &agent.CompletionChunk{Error: ctx.Err()}
				} else {
					chunks <- &agent.CompletionChunk{Error: wrapError("google", model, 0, iterErr)}
				}
				return
			}
			if resp == nil {
				continue
			}
			if resp.UsageMetadata != nil {
				inputTokens = int(resp.UsageMetadata.PromptTokenCount)
				outputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
			}
			for _, candidate := range resp.Candidates {
				if candidate == nil || candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					if part == nil {
						continue
					}
					if part.Text != "" {
						chunks <- &agent.CompletionChunk{Text: part.Text}
					}
					if part.FunctionCall != nil {
						args, marshalErr := json.Marshal(part.FunctionCall.Args)
						if marshalErr != nil {
							args = []byte("{}")
						}
						callSeq++
						chunks <- &agent.CompletionChunk{ToolCall: &models.ToolCall{
							// Gemini does not assign call ids; synthesize a
							// per-turn-stable one from the name and position.
							ID:    fmt.Sprintf("%s-%d", part.FunctionCall.Name, callSeq),
							Name:  part.FunctionCall.Name,
							Input: args,
						}}
					}
				}
			}
		}
		chunks <- &agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
	}()
	return chunks, nil
}

// geminiContents converts neutral messages to Gemini contents. Assistant
// maps to the model role; tool results ride as user-role function
// responses, the only form the API accepts them in.
func geminiContents(ctx context.Context, messages []agent.CompletionMessage) ([]*genai.Content, error) {
	// Function responses need their originating call's name; index the
	// calls seen so far by id.
	callNames := map[string]string{}
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			callNames[tc.ID] = tc.Name
		}
	}

	var out []*genai.Content
	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}
		content := &genai.Content{Role: genai.RoleUser}
		if msg.Role == "assistant" {
			content.Role = genai.RoleModel
		}

		if text := appendDocumentText(msg.Content, msg.Attachments); text != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: text})
		}
		for _, att := range msg.Attachments {
			if !att.IsImage() {
				continue
			}
			part, err := geminiImagePart(ctx, att)
			if err != nil {
				return nil, err
			}
			content.Parts = append(content.Parts, part)
		}
		for _, tc := range msg.ToolCalls {
			var args map[string]any
			if err := json.Unmarshal(tc.Input, &args); err != nil {
				args = map[string]any{}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: args},
			})
		}
		for _, tr := range msg.ToolResults {
			var response map[string]any
			if err := json.Unmarshal([]byte(tr.Content), &response); err != nil {
				response = map[string]any{"result": tr.Content, "error": tr.IsError}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     callNames[tr.ToolCallID],
					Response: response,
				},
			})
		}

		if len(content.Parts) > 0 {
			out = append(out, content)
		}
	}
	return out, nil
}

func geminiImagePart(ctx context.Context, att models.Attachment) (*genai.Part, error) {
	if att.IsHTTPURL() {
		return &genai.Part{
			FileData: &genai.FileData{FileURI: att.URL, MIMEType: mediaTypeForPath(att.URL)},
		}, nil
	}
	data, mediaType, err := imageBytes(ctx, att)
	if err != nil {
		return nil, err
	}
	return &genai.Part{InlineData: &genai.Blob{Data: data, MIMEType: mediaType}}, nil
}

func geminiConfig(req *agent.CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(min(req.MaxTokens, math.MaxInt32))
	}
	if tools := geminiTools(req.Tools); len(tools) > 0 {
		config.Tools = tools
	}
	return config
}

func geminiTools(specs []agent.ToolSpec) []*genai.Tool {
	if len(specs) == 0 {
		return nil
	}
	declarations := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  geminiSchema(spec.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// geminiSchema maps a JSON Schema object onto genai.Schema, keeping the
// subset Gemini understands.
func geminiSchema(raw json.RawMessage) *genai.Schema {
	if len(raw) == 0 {
		return nil
	}
	var node struct {
		Type        string                     `json:"type"`
		Description string                     `json:"description"`
		Enum        []string                   `json:"enum"`
		Properties  map[string]json.RawMessage `json:"properties"`
		Items       json.RawMessage            `json:"items"`
		Required    []string                   `json:"required"`
	}
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil
	}

	schema := &genai.Schema{Description: node.Description, Enum: node.Enum, Required: node.Required}
	switch node.Type {
	case "object":
		schema.Type = genai.TypeObject
	case "array":
		schema.Type = genai.TypeArray
	case "string":
		schema.Type = genai.TypeString
	case "number":
		schema.Type = genai.TypeNumber
	case "integer":
		schema.Type = genai.TypeInteger
	case "boolean":
		schema.Type = genai.TypeBoolean
	default:
		schema.Type = genai.TypeObject
	}
	if len(node.Properties) > 0 {
		schema.Properties = make(map[string]*genai.Schema, len(node.Properties))
		for name, sub := range node.Properties {
			if converted := geminiSchema(sub); converted != nil {
				schema.Properties[name] = converted
			}
		}
	}
	if len(node.Items) > 0 {
		schema.Items = geminiSchema(node.Items)
	}
	return schema
}
