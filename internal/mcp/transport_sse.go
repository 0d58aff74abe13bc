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
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// SSETransport speaks the legacy HTTP+SSE pairing: a long-lived GET stream
// carries everything server→client, and the first "endpoint" event names
// the URL that client→server frames are POSTed to.
type SSETransport struct {
	config *ServerConfig
	logger *slog.Logger
	client *http.Client

	endpoint   atomic.Value // string
	endpointCh chan struct{}
	streamBody io.Closer

	pending   map[int64]chan *JSONRPCResponse
	pendingMu sync.Mutex
	nextID    atomic.Int64

	notifications chan *JSONRPCNotification
	connected     atomic.Bool
	done          chan struct{}
	wg            sync.WaitGroup
}

// NewSSETransport builds an SSE transport for cfg.URL.
func NewSSETransport(cfg *ServerConfig) *SSETransport {
	return &SSETransport{
		config: cfg,
		logger: slog.Default().With("mcp_server", cfg.ID, "transport", "sse"),
		// The event stream must outlive any per-call timeout; calls get
		// their own deadline from the caller's context.
		client:        &http.Client{},
		endpointCh:    make(chan struct{}),
		pending:       make(map[int64]chan *JSONRPCResponse),
		notifications: make(chan *JSONRPCNotification, 64),
		done:          make(chan struct{}),
	}
}

// Connect opens the event stream and waits for the endpoint event.
func (t *SSETransport) Connect(ctx context.Context) error {
	if t.config.URL == "" {
		return fmt.Errorf("sse transport: url is required")
	}

	req, err := http.NewRequest(http.MethodGet, t.config.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	for k, v := range t.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sse transport: open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("sse transport: stream returned %d", resp.StatusCode)
	}
	t.streamBody = resp.Body
	t.connected.Store(true)

	t.wg.Add(1)
	go t.readLoop(resp.Body)

	timeout := t.config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-t.endpointCh:
		return nil
	case <-ctx.Done():
		t.Close()
		return ctx.Err()
	case <-time.After(timeout):
		t.Close()
		return fmt.Errorf("sse transport: no endpoint event within %s", timeout)
	}
}

func (t *SSETransport) Close() error {
	if !t.connected.CompareAndSwap(true, false) {
		return nil
	}
	close(t.done)
	if t.streamBody != nil {
		_ = t.streamBody.Close()
	}
	t.wg.Wait()
	t.failPending(fmt.Errorf("transport closed"))
	return nil
}

// Call implements Transport. The response arrives over the event stream,
// not the POST body.
func (t *SSETransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, fmt.Errorf("sse transport: not connected")
	}
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	id := t.nextID.Add(1)
	respCh := make(chan *JSONRPCResponse, 1)
	t.pendingMu.Lock()
	t.pending[id] = respCh
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
	}()

	if err := t.postFrame(ctx, JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: raw}); err != nil {
		return nil, err
	}

	timeout := t.config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, fmt.Errorf("sse transport: closed while waiting for %s", method)
	case <-timer.C:
		return nil, fmt.Errorf("sse transport: %s timed out after %s", method, timeout)
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

// Notify implements Transport.
func (t *SSETransport) Notify(ctx context.Context, method string, params any) error {
	if !t.connected.Load() {
		return fmt.Errorf("sse transport: not connected")
	}
	raw, err := marshalParams(params)
	if err != nil {
		return err
	}
	return t.postFrame(ctx, JSONRPCNotification{JSONRPC: "2.0", Method: method, Params: raw})
}

func (t *SSETransport) Notifications() <-chan *JSONRPCNotification { return t.notifications }

func (t *SSETransport) Connected() bool { return t.connected.Load() }

func (t *SSETransport) postFrame(ctx context.Context, frame any) error {
	endpoint, _ := t.endpoint.Load().(string)
	if endpoint == "" {
		return fmt.Errorf("sse transport: no endpoint announced yet")
	}
	body, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.config.Headers {
		req.Header.Set(k, v)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sse transport: post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("sse transport: post returned %d: %s", resp.StatusCode, payload)
	}
	return nil
}

// readLoop parses the event stream: the endpoint event, call responses,
// and notifications.
func (t *SSETransport) readLoop(body io.Reader) {
	defer t.wg.Done()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), stdioMaxLineBytes)

	eventType := "message"
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			eventType = "message"
			continue
		}
		if name, ok := strings.CutPrefix(line, "event:"); ok {
			eventType = strings.TrimSpace(name)
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)

		if eventType == "endpoint" {
			t.setEndpoint(data)
			continue
		}
		t.dispatch([]byte(data))
	}

	t.connected.Store(false)
	t.failPending(fmt.Errorf("server closed event stream"))
}

// setEndpoint resolves a possibly-relative endpoint against the stream URL
// and unblocks Connect the first time around.
func (t *SSETransport) setEndpoint(raw string) {
	base, err := url.Parse(t.config.URL)
	if err != nil {
		return
	}
	ref, err := url.Parse(raw)
	if err != nil {
		t.logger.Warn("unparseable endpoint event", "data", raw)
		return
	}
	resolved := base.ResolveReference(ref).String()

	first := t.endpoint.Load() == nil
	t.endpoint.Store(resolved)
	if first {
		close(t.endpointCh)
	}
}

func (t *SSETransport) dispatch(data []byte) {
	var envelope struct {
		ID     any             `json:"id"`
		Method string          `json:"method"`
		Result json.RawMessage `json:"result"`
		Error  *JSONRPCError   `json:"error"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return
	}

	if envelope.Method != "" && envelope.ID == nil {
		select {
		case t.notifications <- &JSONRPCNotification{JSONRPC: "2.0", Method: envelope.Method, Params: envelope.Params}:
		default:
			t.logger.Warn("notification channel full, dropping", "method", envelope.Method)
		}
		return
	}

	id, ok := envelope.ID.(float64)
	if !ok {
		return
	}
	t.pendingMu.Lock()
	respCh := t.pending[int64(id)]
	t.pendingMu.Unlock()
	if respCh != nil {
		respCh <- &JSONRPCResponse{JSONRPC: "2.0", ID: envelope.ID, Result: envelope.Result, Error: envelope.Error}
	}
}

func (t *SSETransport) failPending(err error) {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	for id, ch := range t.pending {
		select {
		case ch <- &JSONRPCResponse{Error: &JSONRPCError{Code: -32000, Message: err.Error()}}:
		default:
		}
		delete(t.pending, id)
	}
}
