package models

import (
	"encoding/base64"
	"testing"
)

func TestDecodeDataURL(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	tests := []struct {
		name     string
		url      string
		wantMime string
		wantData []byte
		wantErr  bool
	}{
		{
			name:     "png",
			url:      "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
			wantMime: "image/png",
			wantData: png,
		},
		{
			name:     "default media type",
			url:      "data:;base64," + base64.StdEncoding.EncodeToString([]byte("hi")),
			wantMime: "text/plain",
			wantData: []byte("hi"),
		},
		{
			name:    "not a data url",
			url:     "https://example.com/a.png",
			wantErr: true,
		},
		{
			name:    "percent-encoded payload rejected",
			url:     "data:text/plain,hello%20world",
			wantErr: true,
		},
		{
			name:    "bad base64",
			url:     "data:image/png;base64,!!!",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mime, data, err := DecodeDataURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("DecodeDataURL(%q) succeeded, want error", tt.url)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeDataURL(%q): %v", tt.url, err)
			}
			if mime != tt.wantMime {
				t.Errorf("media type = %q, want %q", mime, tt.wantMime)
			}
			if string(data) != string(tt.wantData) {
				t.Errorf("data = %q, want %q", data, tt.wantData)
			}
		})
	}
}

func TestAttachmentClassification(t *testing.T) {
	img := Attachment{Kind: AttachmentImage, URL: "data:image/png;base64,AA=="}
	if !img.IsImage() || !img.IsDataURL() || img.IsHTTPURL() {
		t.Errorf("data-url image misclassified: %+v", img)
	}

	remote := Attachment{Kind: AttachmentImage, URL: "https://example.com/a.png"}
	if !remote.IsHTTPURL() || remote.IsDataURL() {
		t.Errorf("http image misclassified: %+v", remote)
	}

	doc := Attachment{Kind: AttachmentPDF, Content: "extracted text"}
	if doc.IsImage() || doc.IsDataURL() || doc.IsHTTPURL() {
		t.Errorf("document misclassified: %+v", doc)
	}
}
