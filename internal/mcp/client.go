package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Client drives one server connection through its lifecycle: transport
// connect, initialize handshake, tool discovery, and calls.
type Client struct {
	config    *ServerConfig
	transport Transport
	logger    *slog.Logger

	mu         sync.RWMutex
	tools      []*MCPTool
	serverInfo ServerInfo

	watchOnce sync.Once
}

// NewClient builds a client for cfg using the transport cfg selects.
func NewClient(cfg *ServerConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:    cfg,
		transport: NewTransport(cfg),
		logger:    logger.With("mcp_server", cfg.ID),
	}
}

// Connect establishes the transport, performs the initialize handshake,
// and loads the tool list.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("transport connect: %w", err)
	}

	result, err := c.transport.Call(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "aipp-engine",
			"version": "1.0.0",
		},
	})
	if err != nil {
		_ = c.transport.Close()
		return fmt.Errorf("initialize: %w", err)
	}
	var initResult InitializeResult
	if err := json.Unmarshal(result, &initResult); err != nil {
		_ = c.transport.Close()
		return fmt.Errorf("parse initialize result: %w", err)
	}
	c.mu.Lock()
	c.serverInfo = initResult.ServerInfo
	c.mu.Unlock()

	if err := c.transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		c.logger.Warn("initialized notification failed", "error", err)
	}
	if err := c.RefreshTools(ctx); err != nil {
		c.logger.Warn("initial tools/list failed", "error", err)
	}

	c.watchOnce.Do(func() { go c.watchNotifications() })

	c.logger.Info("connected",
		"name", initResult.ServerInfo.Name,
		"version", initResult.ServerInfo.Version,
		"protocol", initResult.ProtocolVersion,
		"tools", len(c.Tools()))
	return nil
}

// Close tears down the transport.
func (c *Client) Close() error { return c.transport.Close() }

// Config returns the server configuration the client was built from.
func (c *Client) Config() *ServerConfig { return c.config }

// ServerInfo returns the identity reported during initialize.
func (c *Client) ServerInfo() ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverInfo
}

// Connected reports transport liveness.
func (c *Client) Connected() bool { return c.transport.Connected() }

// RefreshTools reloads the cached tool list from tools/list.
func (c *Client) RefreshTools(ctx context.Context) error {
	result, err := c.transport.Call(ctx, "tools/list", nil)
	if err != nil {
		return err
	}
	var resp ListToolsResult
	if err := json.Unmarshal(result, &resp); err != nil {
		return fmt.Errorf("parse tools/list result: %w", err)
	}
	c.mu.Lock()
	c.tools = resp.Tools
	c.mu.Unlock()
	return nil
}

// Tools returns the cached tool list.
func (c *Client) Tools() []*MCPTool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

// CallTool invokes a tool by name.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error) {
	params := CallToolParams{Name: name}
	if arguments != nil {
		argsJSON, err := json.Marshal(arguments)
		if err != nil {
			return nil, fmt.Errorf("marshal arguments: %w", err)
		}
		params.Arguments = argsJSON
	}

	result, err := c.transport.Call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}
	var callResult ToolCallResult
	if err := json.Unmarshal(result, &callResult); err != nil {
		return nil, fmt.Errorf("parse tools/call result: %w", err)
	}
	return &callResult, nil
}

// watchNotifications refreshes the tool cache whenever the server announces
// a list change. It exits when the transport closes its channel.
func (c *Client) watchNotifications() {
	for notif := range c.transport.Notifications() {
		if notif == nil || notif.Method != "notifications/tools/list_changed" {
			continue
		}
		if err := c.RefreshTools(context.Background()); err != nil {
			c.logger.Warn("tools refresh after list_changed failed", "error", err)
		}
	}
}
