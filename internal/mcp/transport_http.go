package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// HTTPTransport speaks streamable HTTP: one POST per request, with the
// response delivered either as plain JSON or as a short-lived SSE stream
// ending in the response frame.
type HTTPTransport struct {
	config *ServerConfig
	logger *slog.Logger
	client *http.Client

	sessionID     atomic.Value // string
	nextID        atomic.Int64
	notifications chan *JSONRPCNotification
	connected     atomic.Bool
}

// NewHTTPTransport builds a streamable-HTTP transport for cfg.URL.
func NewHTTPTransport(cfg *ServerConfig) *HTTPTransport {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		config:        cfg,
		logger:        slog.Default().With("mcp_server", cfg.ID, "transport", "http"),
		client:        &http.Client{Timeout: timeout},
		notifications: make(chan *JSONRPCNotification, 64),
	}
}

// Connect validates the URL; the first Call performs the real handshake.
func (t *HTTPTransport) Connect(_ context.Context) error {
	if t.config.URL == "" {
		return fmt.Errorf("http transport: url is required")
	}
	t.connected.Store(true)
	return nil
}

func (t *HTTPTransport) Close() error {
	t.connected.Store(false)
	return nil
}

// Call implements Transport.
func (t *HTTPTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, fmt.Errorf("http transport: not connected")
	}
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	id := t.nextID.Add(1)
	body, err := json.Marshal(JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := t.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("http transport: %s returned %d: %s", method, resp.StatusCode, payload)
	}
	if sid := resp.Header.Get("Mcp-Session-Id"); sid != "" {
		t.sessionID.Store(sid)
	}

	var rpcResp *JSONRPCResponse
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		rpcResp, err = t.readEventStream(resp.Body, id)
	} else {
		rpcResp = &JSONRPCResponse{}
		err = json.NewDecoder(resp.Body).Decode(rpcResp)
	}
	if err != nil {
		return nil, fmt.Errorf("http transport: decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// Notify implements Transport.
func (t *HTTPTransport) Notify(ctx context.Context, method string, params any) error {
	if !t.connected.Load() {
		return fmt.Errorf("http transport: not connected")
	}
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}
	body, err := json.Marshal(JSONRPCNotification{JSONRPC: "2.0", Method: method, Params: raw})
	if err != nil {
		return err
	}
	resp, err := t.post(ctx, body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (t *HTTPTransport) Notifications() <-chan *JSONRPCNotification { return t.notifications }

func (t *HTTPTransport) Connected() bool { return t.connected.Load() }

func (t *HTTPTransport) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if sid, ok := t.sessionID.Load().(string); ok && sid != "" {
		req.Header.Set("Mcp-Session-Id", sid)
	}
	for k, v := range t.config.Headers {
		req.Header.Set(k, v)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http transport: %w", err)
	}
	return resp, nil
}

// readEventStream scans an SSE response body, forwarding notifications and
// returning the frame whose id matches wantID.
func (t *HTTPTransport) readEventStream(body io.Reader, wantID int64) (*JSONRPCResponse, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), stdioMaxLineBytes)

	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}

		var envelope struct {
			ID     any             `json:"id"`
			Method string          `json:"method"`
			Result json.RawMessage `json:"result"`
			Error  *JSONRPCError   `json:"error"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal([]byte(data), &envelope); err != nil {
			continue
		}
		if envelope.Method != "" && envelope.ID == nil {
			select {
			case t.notifications <- &JSONRPCNotification{JSONRPC: "2.0", Method: envelope.Method, Params: envelope.Params}:
			default:
				t.logger.Warn("notification channel full, dropping", "method", envelope.Method)
			}
			continue
		}
		if id, isNum := envelope.ID.(float64); isNum && int64(id) == wantID {
			return &JSONRPCResponse{JSONRPC: "2.0", ID: envelope.ID, Result: envelope.Result, Error: envelope.Error}, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("event stream ended without a response for id %d", wantID)
}
