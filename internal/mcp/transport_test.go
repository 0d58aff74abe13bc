package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// startStdioHarness wires a StdioTransport to in-process pipes and runs
// respond for every request frame the transport writes, standing in for a
// spawned server process.
func startStdioHarness(t *testing.T, tr *StdioTransport, respond func(req JSONRPCRequest) any) {
	t.Helper()

	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	tr.stdin = stdinW
	tr.connected.Store(true)
	tr.wg.Add(1)
	go tr.readLoop(stdoutR)

	go func() {
		scanner := bufio.NewScanner(stdinR)
		for scanner.Scan() {
			var req JSONRPCRequest
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				continue
			}
			if req.Method == "" {
				continue
			}
			if frame := respond(req); frame != nil {
				data, _ := json.Marshal(frame)
				_, _ = stdoutW.Write(append(data, '\n'))
			}
		}
	}()

	t.Cleanup(func() {
		_ = stdinW.Close()
		_ = stdoutW.Close()
	})
}

func TestStdioTransportCall(t *testing.T) {
	tr := NewStdioTransport(&ServerConfig{ID: "test", Timeout: 2 * time.Second})
	startStdioHarness(t, tr, func(req JSONRPCRequest) any {
		if req.Method != "tools/list" {
			t.Errorf("method = %q", req.Method)
		}
		return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{"tools":[]}`)}
	})

	result, err := tr.Call(context.Background(), "tools/list", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(result) != `{"tools":[]}` {
		t.Errorf("result = %s", result)
	}
}

func TestStdioTransportCallError(t *testing.T) {
	tr := NewStdioTransport(&ServerConfig{ID: "test", Timeout: 2 * time.Second})
	startStdioHarness(t, tr, func(req JSONRPCRequest) any {
		return JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: &JSONRPCError{Code: -32002, Message: "tool not found"}}
	})

	_, err := tr.Call(context.Background(), "tools/call", CallToolParams{Name: "nope"})
	if err == nil {
		t.Fatal("want rpc error")
	}
	var rpcErr *JSONRPCError
	if !asJSONRPCError(err, &rpcErr) || rpcErr.Code != -32002 {
		t.Errorf("err = %v", err)
	}
}

func asJSONRPCError(err error, target **JSONRPCError) bool {
	e, ok := err.(*JSONRPCError)
	if ok {
		*target = e
	}
	return ok
}

func TestStdioTransportNotificationRouting(t *testing.T) {
	tr := NewStdioTransport(&ServerConfig{ID: "test", Timeout: 2 * time.Second})
	stdoutR, stdoutW := io.Pipe()
	_, tr.stdin = io.Pipe()
	tr.connected.Store(true)
	tr.wg.Add(1)
	go tr.readLoop(stdoutR)
	t.Cleanup(func() { _ = stdoutW.Close() })

	frame := `{"jsonrpc":"2.0","method":"notifications/tools/list_changed"}` + "\n"
	if _, err := io.WriteString(stdoutW, frame); err != nil {
		t.Fatal(err)
	}

	select {
	case notif := <-tr.Notifications():
		if notif.Method != "notifications/tools/list_changed" {
			t.Errorf("method = %q", notif.Method)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification never delivered")
	}
}

func TestHTTPTransportJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req JSONRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Mcp-Session-Id", "sess-1")
		_ = json.NewEncoder(w).Encode(JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{"ok":true}`)})
	}))
	defer srv.Close()

	tr := NewHTTPTransport(&ServerConfig{ID: "test", Transport: TransportHTTP, URL: srv.URL})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	result, err := tr.Call(context.Background(), "initialize", map[string]any{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(result) != `{"ok":true}` {
		t.Errorf("result = %s", result)
	}
	if sid, _ := tr.sessionID.Load().(string); sid != "sess-1" {
		t.Errorf("session id = %q", sid)
	}
}

func TestHTTPTransportEventStreamResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req JSONRPCRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"jsonrpc\":\"2.0\",\"method\":\"notifications/progress\"}\n\n")
		resp, _ := json.Marshal(JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{"streamed":true}`)})
		fmt.Fprintf(w, "data: %s\n\n", resp)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(&ServerConfig{ID: "test", Transport: TransportHTTP, URL: srv.URL})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	result, err := tr.Call(context.Background(), "tools/call", CallToolParams{Name: "x"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(result) != `{"streamed":true}` {
		t.Errorf("result = %s", result)
	}

	select {
	case notif := <-tr.Notifications():
		if notif.Method != "notifications/progress" {
			t.Errorf("method = %q", notif.Method)
		}
	case <-time.After(time.Second):
		t.Fatal("interleaved notification not forwarded")
	}
}

func TestHTTPTransportErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(&ServerConfig{ID: "test", Transport: TransportHTTP, URL: srv.URL})
	_ = tr.Connect(context.Background())
	if _, err := tr.Call(context.Background(), "tools/list", nil); err == nil {
		t.Fatal("want error for 502")
	}
}

func TestSSETransportCall(t *testing.T) {
	// The stream handler serves the endpoint event, then echoes back a
	// response for every frame POSTed to /messages.
	frames := make(chan JSONRPCRequest, 4)
	mux := http.NewServeMux()
	mux.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: endpoint\ndata: /messages\n\n")
		flusher.Flush()
		for {
			select {
			case req := <-frames:
				resp, _ := json.Marshal(JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{"echoed":"` + req.Method + `"}`)})
				fmt.Fprintf(w, "data: %s\n\n", resp)
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
	mux.HandleFunc("/messages", func(w http.ResponseWriter, r *http.Request) {
		var req JSONRPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.ID != nil {
			frames <- req
		}
		w.WriteHeader(http.StatusAccepted)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tr := NewSSETransport(&ServerConfig{ID: "test", Transport: TransportSSE, URL: srv.URL + "/sse", Timeout: 3 * time.Second})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	result, err := tr.Call(context.Background(), "tools/list", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(result) != `{"echoed":"tools/list"}` {
		t.Errorf("result = %s", result)
	}
}

func TestNewTransportSelection(t *testing.T) {
	if _, ok := NewTransport(&ServerConfig{Transport: TransportHTTP, URL: "https://x"}).(*HTTPTransport); !ok {
		t.Error("http config should build HTTPTransport")
	}
	if _, ok := NewTransport(&ServerConfig{Transport: TransportSSE, URL: "https://x"}).(*SSETransport); !ok {
		t.Error("sse config should build SSETransport")
	}
	if _, ok := NewTransport(&ServerConfig{Command: "npx"}).(*StdioTransport); !ok {
		t.Error("default should build StdioTransport")
	}
}
