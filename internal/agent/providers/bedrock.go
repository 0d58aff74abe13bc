package providers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/aipp-workbench/engine/internal/agent"
	"github.com/aipp-workbench/engine/pkg/models"
)

// BedrockConfig configures the AWS Bedrock adapter. Empty credentials fall
// back to the default AWS credential chain.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
}

// BedrockProvider serves Anthropic and other models through the Bedrock
// Converse streaming API.
type BedrockProvider struct {
	client       *bedrockruntime.Client
	defaultModel string
	region       string
	retry        retryPolicy
}

// NewBedrockProvider builds a provider for AWS Bedrock.
func NewBedrockProvider(cfg BedrockConfig) (*BedrockProvider, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, wrapError("bedrock", cfg.DefaultModel, 0, err)
	}

	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "anthropic.claude-sonnet-4-20250514-v1:0"
	}
	return &BedrockProvider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: defaultModel,
		region:       region,
		retry:        defaultRetryPolicy(),
	}, nil
}

func (p *BedrockProvider) Name() string { return "bedrock" }

func (p *BedrockProvider) Models() []agent.Model {
	return []agent.Model{
		{ID: "anthropic.claude-sonnet-4-20250514-v1:0", Name: "Claude Sonnet 4 (Bedrock)", ContextSize: 200000, SupportsVision: true},
		{ID: "anthropic.claude-3-5-haiku-20241022-v1:0", Name: "Claude Haiku 3.5 (Bedrock)", ContextSize: 200000, SupportsVision: true},
		{ID: "amazon.nova-pro-v1:0", Name: "Amazon Nova Pro", ContextSize: 300000, SupportsVision: true},
	}
}

func (p *BedrockProvider) SupportsTools() bool { return true }

func (p *BedrockProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

// Complete implements agent.LLMProvider over ConverseStream.
func (p *BedrockProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	model := p.model(req.Model)
	messages, err := bedrockMessages(ctx, req.Messages)
	if err != nil {
		return nil, wrapError("bedrock", model, 0, err)
	}

	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: messages,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(maxTokensOr(req.MaxTokens))),
		},
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}
	if toolCfg := bedrockTools(req.Tools); toolCfg != nil {
		input.ToolConfig = toolCfg
	}

	var stream *bedrockruntime.ConverseStreamOutput
	err = p.retry.do(ctx, func() error {
		var callErr error
		stream, callErr = p.client.ConverseStream(ctx, input)
		return wrapError("bedrock", model, 0, callErr)
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.pump(ctx, stream, chunks, model)
	return chunks, nil
}

func (p *BedrockProvider) pump(ctx context.Context, stream *bedrockruntime.ConverseStreamOutput, chunks chan<- *agent.CompletionChunk, model string) {
	defer close(chunks)

	eventStream := stream.GetStream()
	defer eventStream.Close()

	var pendingTool *models.ToolCall
	var pendingInput strings.Builder
	var inputTokens, outputTokens int

	for {
		select {
		case <-ctx.Done():
			chunks <- &agent.CompletionChunk{Error: ctx.Err()}
			return
		case event, ok := <-eventStream.Events():
			if !ok {
				if err := eventStream.Err(); err != nil {
					chunks <- &agent.CompletionChunk{Error: wrapError("bedrock", model, 0, err)}
					return
				}
				chunks <- &agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
				return
			}

			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if toolUse, isTool := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); isTool {
					pendingTool = &models.ToolCall{
						ID:   aws.ToString(toolUse.Value.ToolUseId),
						Name: aws.ToString(toolUse.Value.Name),
					}
					pendingInput.Reset()
				}

			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := ev.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if delta.Value != "" {
						chunks <- &agent.CompletionChunk{Text: delta.Value}
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if delta.Value.Input != nil {
						pendingInput.WriteString(*delta.Value.Input)
					}
				}

			case *types.ConverseStreamOutputMemberContentBlockStop:
				if pendingTool != nil {
					pendingTool.Input = json.RawMessage(pendingInput.String())
					chunks <- &agent.CompletionChunk{ToolCall: pendingTool}
					pendingTool = nil
				}

			case *types.ConverseStreamOutputMemberMetadata:
				if ev.Value.Usage != nil {
					inputTokens = int(aws.ToInt32(ev.Value.Usage.InputTokens))
					outputTokens = int(aws.ToInt32(ev.Value.Usage.OutputTokens))
				}

			case *types.ConverseStreamOutputMemberMessageStop:
				chunks <- &agent.CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
				return
			}
		}
	}
}

// bedrockMessages converts neutral messages to Converse form. Tool results
// ride in user-role messages as tool-result blocks.
func bedrockMessages(ctx context.Context, messages []agent.CompletionMessage) ([]types.Message, error) {
	out := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}

		var content []types.ContentBlock
		if text := appendDocumentText(msg.Content, msg.Attachments); text != "" {
			content = append(content, &types.ContentBlockMemberText{Value: text})
		}
		for _, att := range msg.Attachments {
			if !att.IsImage() {
				continue
			}
			block, err := bedrockImageBlock(ctx, att)
			if err != nil {
				return nil, err
			}
			content = append(content, block)
		}
		for _, tc := range msg.ToolCalls {
			var input any
			if err := json.Unmarshal(tc.Input, &input); err != nil {
				input = map[string]any{}
			}
			content = append(content, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Name),
					Input:     document.NewLazyDocument(input),
				},
			})
		}
		for _, tr := range msg.ToolResults {
			status := types.ToolResultStatusSuccess
			if tr.IsError {
				status = types.ToolResultStatusError
			}
			content = append(content, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(tr.ToolCallID),
					Status:    status,
					Content: []types.ToolResultContentBlock{
						&types.ToolResultContentBlockMemberText{Value: tr.Content},
					},
				},
			})
		}
		if len(content) == 0 {
			continue
		}

		role := types.ConversationRoleUser
		if msg.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{Role: role, Content: content})
	}
	return out, nil
}

func bedrockImageBlock(ctx context.Context, att models.Attachment) (types.ContentBlock, error) {
	data, mediaType, err := imageBytes(ctx, att)
	if err != nil {
		return nil, err
	}
	format, ok := bedrockImageFormat(mediaType)
	if !ok {
		format = types.ImageFormatPng
	}
	return &types.ContentBlockMemberImage{
		Value: types.ImageBlock{
			Format: format,
			Source: &types.ImageSourceMemberBytes{Value: data},
		},
	}, nil
}

func bedrockImageFormat(mediaType string) (types.ImageFormat, bool) {
	switch mediaType {
	case "image/png":
		return types.ImageFormatPng, true
	case "image/jpeg", "image/jpg":
		return types.ImageFormatJpeg, true
	case "image/gif":
		return types.ImageFormatGif, true
	case "image/webp":
		return types.ImageFormatWebp, true
	default:
		return "", false
	}
}

func bedrockTools(specs []agent.ToolSpec) *types.ToolConfiguration {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]types.Tool, 0, len(specs))
	for _, spec := range specs {
		var schema any
		if err := json.Unmarshal(spec.Parameters, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools = append(tools, &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(spec.Name),
				Description: aws.String(spec.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}
	return &types.ToolConfiguration{Tools: tools}
}
