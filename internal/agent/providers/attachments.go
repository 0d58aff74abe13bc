package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/aipp-workbench/engine/pkg/models"
)

// maxRemoteImageBytes caps how much of a fetched image is read; anything
// larger is rejected rather than buffered.
const maxRemoteImageBytes = 20 << 20

// documentText renders a non-image attachment as the text part appended to
// the owning user message.
func documentText(att models.Attachment) string {
	if att.Content == "" {
		return ""
	}
	name := att.Name
	if name == "" {
		name = strings.ToLower(string(att.Kind)) + " attachment"
	}
	return fmt.Sprintf("\n\n[%s]\n%s", name, att.Content)
}

// appendDocumentText folds every non-image attachment's text into content.
func appendDocumentText(content string, attachments []models.Attachment) string {
	for _, att := range attachments {
		if att.IsImage() {
			continue
		}
		content += documentText(att)
	}
	return content
}

// imageBytes resolves an image attachment to raw bytes and a media type,
// whichever of the three reference forms (data URL, http(s) URL, local
// path) it uses.
func imageBytes(ctx context.Context, att models.Attachment) ([]byte, string, error) {
	switch {
	case att.IsDataURL():
		mediaType, data, err := models.DecodeDataURL(att.URL)
		return data, mediaType, err
	case att.IsHTTPURL():
		return fetchImage(ctx, att.URL)
	case att.URL != "":
		data, err := os.ReadFile(att.URL)
		if err != nil {
			return nil, "", fmt.Errorf("read image %s: %w", att.URL, err)
		}
		return data, mediaTypeForPath(att.URL), nil
	default:
		return nil, "", fmt.Errorf("image attachment has no url")
	}
}

// imageDataURL resolves an image attachment to a data: URL, fetching or
// reading it if necessary. Attachments already carried as data or http(s)
// URLs pass through unchanged; http URLs are left to the backend to fetch.
func imageDataURL(ctx context.Context, att models.Attachment) (string, error) {
	if att.IsDataURL() || att.IsHTTPURL() {
		return att.URL, nil
	}
	data, mediaType, err := imageBytes(ctx, att)
	if err != nil {
		return "", err
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func fetchImage(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch image %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteImageBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > maxRemoteImageBytes {
		return nil, "", fmt.Errorf("fetch image %s: exceeds %d bytes", url, maxRemoteImageBytes)
	}
	mediaType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	if mediaType == "" {
		mediaType = mediaTypeForPath(url)
	}
	return data, mediaType, nil
}

func mediaTypeForPath(path string) string {
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = mt[:i]
		}
		return mt
	}
	return "image/png"
}
