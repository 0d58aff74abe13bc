package providers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/aipp-workbench/engine/internal/agent"
	"github.com/aipp-workbench/engine/pkg/models"
)

func TestBedrockMessages(t *testing.T) {
	ctx := context.Background()

	out, err := bedrockMessages(ctx, []agent.CompletionMessage{
		{Role: "system", Content: "dropped"},
		{Role: "user", Content: "q"},
		{Role: "assistant", ToolCalls: []models.ToolCall{
			{ID: "tool_1", Name: "fs__read_file", Input: json.RawMessage(`{"path":"/tmp/a"}`)},
		}},
		{Role: "tool", ToolResults: []models.ToolResult{
			{ToolCallID: "tool_1", Content: "contents", IsError: true},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d messages, want system dropped", len(out))
	}

	if out[0].Role != types.ConversationRoleUser {
		t.Errorf("first role = %v", out[0].Role)
	}
	if out[1].Role != types.ConversationRoleAssistant {
		t.Errorf("second role = %v", out[1].Role)
	}
	toolUse, ok := out[1].Content[0].(*types.ContentBlockMemberToolUse)
	if !ok || aws.ToString(toolUse.Value.ToolUseId) != "tool_1" {
		t.Errorf("tool use block = %+v", out[1].Content[0])
	}

	if out[2].Role != types.ConversationRoleUser {
		t.Errorf("tool result role = %v, want user", out[2].Role)
	}
	toolResult, ok := out[2].Content[0].(*types.ContentBlockMemberToolResult)
	if !ok || aws.ToString(toolResult.Value.ToolUseId) != "tool_1" {
		t.Fatalf("tool result block = %+v", out[2].Content[0])
	}
	if toolResult.Value.Status != types.ToolResultStatusError {
		t.Errorf("status = %v, want error", toolResult.Value.Status)
	}
}

func TestBedrockImageFormat(t *testing.T) {
	tests := []struct {
		mediaType string
		want      types.ImageFormat
		ok        bool
	}{
		{"image/png", types.ImageFormatPng, true},
		{"image/jpeg", types.ImageFormatJpeg, true},
		{"image/jpg", types.ImageFormatJpeg, true},
		{"image/gif", types.ImageFormatGif, true},
		{"image/webp", types.ImageFormatWebp, true},
		{"image/tiff", "", false},
	}
	for _, tt := range tests {
		got, ok := bedrockImageFormat(tt.mediaType)
		if got != tt.want || ok != tt.ok {
			t.Errorf("bedrockImageFormat(%q) = %v, %v", tt.mediaType, got, ok)
		}
	}
}

func TestBedrockTools(t *testing.T) {
	if bedrockTools(nil) != nil {
		t.Error("no specs should yield nil config")
	}
	cfg := bedrockTools([]agent.ToolSpec{
		{Name: "search", Description: "web search", Parameters: json.RawMessage(`{"type":"object"}`)},
	})
	if cfg == nil || len(cfg.Tools) != 1 {
		t.Fatalf("config = %+v", cfg)
	}
	spec, ok := cfg.Tools[0].(*types.ToolMemberToolSpec)
	if !ok || aws.ToString(spec.Value.Name) != "search" {
		t.Errorf("tool = %+v", cfg.Tools[0])
	}
}
