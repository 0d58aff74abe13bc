// Package models holds the provider-neutral chat types shared by the
// branch engine, the orchestrator, and the LLM provider adapters.
package models

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// ToolCall is an assistant's request to execute a tool, reconstructed from
// a stored MCP_TOOL_CALL marker or received from a provider stream.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"` // "{server}__{tool}"
	Input json.RawMessage `json:"input"`
}

// ToolResult is the outcome of one tool execution, paired with its call by
// ToolCallID.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// AttachmentKind enumerates the attachment types a message can carry.
type AttachmentKind string

const (
	AttachmentImage      AttachmentKind = "Image"
	AttachmentText       AttachmentKind = "Text"
	AttachmentPDF        AttachmentKind = "PDF"
	AttachmentWord       AttachmentKind = "Word"
	AttachmentPowerPoint AttachmentKind = "PowerPoint"
	AttachmentExcel      AttachmentKind = "Excel"
)

// Attachment is one attachment part of a user message. Images reference
// their bytes through URL (a data: URL, an http(s) URL, or an absolute
// local path); document kinds carry their extracted text in Content and
// are appended to the message text rather than sent as binary.
type Attachment struct {
	Kind    AttachmentKind `json:"kind"`
	URL     string         `json:"url,omitempty"`
	Content string         `json:"content,omitempty"`
	Name    string         `json:"name,omitempty"`
}

// IsImage reports whether the attachment should be sent as an image block.
func (a Attachment) IsImage() bool { return a.Kind == AttachmentImage }

// IsDataURL reports whether URL inlines the payload as a data: URL.
func (a Attachment) IsDataURL() bool { return strings.HasPrefix(a.URL, "data:") }

// IsHTTPURL reports whether URL is a fetchable http(s) reference.
func (a Attachment) IsHTTPURL() bool {
	return strings.HasPrefix(a.URL, "http://") || strings.HasPrefix(a.URL, "https://")
}

// DecodeDataURL splits a data: URL into its media type and decoded bytes.
// Only base64-encoded payloads are supported; that is the only form the
// engine ever writes.
func DecodeDataURL(url string) (mediaType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data url")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data url: no comma separator")
	}
	mediaType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("unsupported data url encoding %q", meta)
	}
	if mediaType == "" {
		mediaType = "text/plain"
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data url payload: %w", err)
	}
	return mediaType, data, nil
}
