package providers

import (
	"context"
	"encoding/json"
	"testing"

	"google.golang.org/genai"

	"github.com/aipp-workbench/engine/internal/agent"
	"github.com/aipp-workbench/engine/pkg/models"
)

func TestGeminiContents(t *testing.T) {
	ctx := context.Background()

	t.Run("role mapping", func(t *testing.T) {
		out, err := geminiContents(ctx, []agent.CompletionMessage{
			{Role: "system", Content: "ignored here"},
			{Role: "user", Content: "q"},
			{Role: "assistant", Content: "a"},
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(out) != 2 {
			t.Fatalf("got %d contents, want system dropped", len(out))
		}
		if out[0].Role != genai.RoleUser || out[1].Role != genai.RoleModel {
			t.Errorf("roles = %q, %q", out[0].Role, out[1].Role)
		}
	})

	t.Run("function response resolves call name", func(t *testing.T) {
		out, err := geminiContents(ctx, []agent.CompletionMessage{
			{Role: "assistant", ToolCalls: []models.ToolCall{
				{ID: "call_7", Name: "fs__read_file", Input: json.RawMessage(`{"path":"/tmp/a"}`)},
			}},
			{Role: "tool", ToolResults: []models.ToolResult{
				{ToolCallID: "call_7", Content: `{"lines":3}`},
			}},
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(out) != 2 {
			t.Fatalf("got %d contents", len(out))
		}
		call := out[0].Parts[0].FunctionCall
		if call == nil || call.Name != "fs__read_file" || call.Args["path"] != "/tmp/a" {
			t.Errorf("function call = %+v", call)
		}
		resp := out[1].Parts[0].FunctionResponse
		if resp == nil || resp.Name != "fs__read_file" {
			t.Errorf("function response = %+v, want name from originating call", resp)
		}
		if resp.Response["lines"] != float64(3) {
			t.Errorf("response payload = %+v", resp.Response)
		}
	})

	t.Run("non-json result wrapped", func(t *testing.T) {
		out, err := geminiContents(ctx, []agent.CompletionMessage{
			{Role: "tool", ToolResults: []models.ToolResult{
				{ToolCallID: "call_1", Content: "plain text", IsError: true},
			}},
		})
		if err != nil {
			t.Fatal(err)
		}
		resp := out[0].Parts[0].FunctionResponse
		if resp.Response["result"] != "plain text" || resp.Response["error"] != true {
			t.Errorf("wrapped payload = %+v", resp.Response)
		}
	})

	t.Run("inline image from data url", func(t *testing.T) {
		out, err := geminiContents(ctx, []agent.CompletionMessage{
			{Role: "user", Content: "look", Attachments: []models.Attachment{
				{Kind: models.AttachmentImage, URL: "data:image/png;base64,iVBORw0KGgo="},
			}},
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(out[0].Parts) != 2 {
			t.Fatalf("got %d parts", len(out[0].Parts))
		}
		blob := out[0].Parts[1].InlineData
		if blob == nil || blob.MIMEType != "image/png" || len(blob.Data) == 0 {
			t.Errorf("inline data = %+v", blob)
		}
	})
}

func TestGeminiSchema(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "object",
		"description": "search params",
		"properties": {
			"query": {"type": "string"},
			"limit": {"type": "integer"},
			"engines": {"type": "array", "items": {"type": "string", "enum": ["google", "bing"]}}
		},
		"required": ["query"]
	}`)

	schema := geminiSchema(raw)
	if schema == nil || schema.Type != genai.TypeObject {
		t.Fatalf("schema = %+v", schema)
	}
	if schema.Description != "search params" || len(schema.Required) != 1 {
		t.Errorf("metadata = %+v", schema)
	}
	if schema.Properties["query"].Type != genai.TypeString {
		t.Errorf("query = %+v", schema.Properties["query"])
	}
	if schema.Properties["limit"].Type != genai.TypeInteger {
		t.Errorf("limit = %+v", schema.Properties["limit"])
	}
	engines := schema.Properties["engines"]
	if engines.Type != genai.TypeArray || engines.Items == nil || len(engines.Items.Enum) != 2 {
		t.Errorf("engines = %+v", engines)
	}

	if geminiSchema(nil) != nil {
		t.Error("empty schema should be nil")
	}
	if geminiSchema(json.RawMessage(`{broken`)) != nil {
		t.Error("unparseable schema should be nil")
	}
}
