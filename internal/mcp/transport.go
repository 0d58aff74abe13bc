package mcp

import (
	"context"
	"encoding/json"
)

// Transport is one live JSON-RPC connection to a server.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error

	// Call sends a request and blocks for its response.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)

	// Notify sends a fire-and-forget notification.
	Notify(ctx context.Context, method string, params any) error

	// Notifications delivers server-initiated notifications
	// (tools/list_changed and friends).
	Notifications() <-chan *JSONRPCNotification

	Connected() bool
}

// NewTransport builds the transport matching cfg.Transport. An empty
// transport defaults to stdio, matching how catalog rows predate the
// transport column.
func NewTransport(cfg *ServerConfig) Transport {
	switch cfg.Transport {
	case TransportHTTP:
		return NewHTTPTransport(cfg)
	case TransportSSE:
		return NewSSETransport(cfg)
	default:
		return NewStdioTransport(cfg)
	}
}
