package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Config is the mcp section of the engine configuration.
type Config struct {
	Enabled bool            `yaml:"enabled"`
	Servers []*ServerConfig `yaml:"servers"`
}

// Manager owns one Client per connected server and is the ToolCaller the
// dispatcher's transport executor routes through.
type Manager struct {
	config *Config
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewManager builds a manager over cfg. Connections are established by
// Start (auto-start servers) or Connect (on demand).
func NewManager(cfg *Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		config:  cfg,
		logger:  logger.With("component", "mcp"),
		clients: make(map[string]*Client),
	}
}

// Start connects every auto-start server. A server that fails to connect
// is logged and skipped; the others still come up.
func (m *Manager) Start(ctx context.Context) error {
	if m.config == nil || !m.config.Enabled {
		m.logger.Debug("mcp disabled")
		return nil
	}
	for _, cfg := range m.config.Servers {
		if !cfg.AutoStart {
			continue
		}
		if err := m.Connect(ctx, cfg.ID); err != nil {
			m.logger.Error("mcp server connect failed", "server", cfg.ID, "error", err)
		}
	}
	return nil
}

// Stop closes every live client.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, client := range m.clients {
		if err := client.Close(); err != nil {
			m.logger.Error("mcp client close failed", "server", id, "error", err)
		}
		delete(m.clients, id)
	}
	return nil
}

// Connect brings up the server with the given id; a no-op when already
// connected.
func (m *Manager) Connect(ctx context.Context, serverID string) error {
	cfg := m.serverConfig(serverID)
	if cfg == nil {
		return fmt.Errorf("mcp server %q not configured", serverID)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.RLock()
	_, exists := m.clients[serverID]
	m.mu.RUnlock()
	if exists {
		return nil
	}

	client := NewClient(cfg, m.logger)
	if err := client.Connect(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.clients[serverID] = client
	m.mu.Unlock()
	return nil
}

// Disconnect closes and forgets one server's client.
func (m *Manager) Disconnect(serverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	client, exists := m.clients[serverID]
	if !exists {
		return nil
	}
	if err := client.Close(); err != nil {
		return err
	}
	delete(m.clients, serverID)
	return nil
}

// Client returns the live client for serverID.
func (m *Manager) Client(serverID string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, exists := m.clients[serverID]
	return client, exists
}

// CallTool implements ToolCaller against the named server.
func (m *Manager) CallTool(ctx context.Context, serverID, toolName string, arguments map[string]any) (*ToolCallResult, error) {
	client, exists := m.Client(serverID)
	if !exists {
		return nil, fmt.Errorf("mcp server %q not connected", serverID)
	}
	return client.CallTool(ctx, toolName, arguments)
}

// AllTools returns the cached tool lists of every connected server, keyed
// by server id.
func (m *Manager) AllTools() map[string][]*MCPTool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string][]*MCPTool)
	for id, client := range m.clients {
		if tools := client.Tools(); len(tools) > 0 {
			result[id] = tools
		}
	}
	return result
}

// FindTool locates a tool by name across connected servers.
func (m *Manager) FindTool(name string) (serverID string, tool *MCPTool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, client := range m.clients {
		for _, t := range client.Tools() {
			if t.Name == name {
				return id, t
			}
		}
	}
	return "", nil
}

// ServerStatus summarizes one configured server for status listings.
type ServerStatus struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Connected bool       `json:"connected"`
	Server    ServerInfo `json:"server"`
	Tools     int        `json:"tools"`
}

// Status reports every configured server, connected or not.
func (m *Manager) Status() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var statuses []ServerStatus
	if m.config == nil {
		return statuses
	}
	for _, cfg := range m.config.Servers {
		status := ServerStatus{ID: cfg.ID, Name: cfg.Name}
		if client, exists := m.clients[cfg.ID]; exists {
			status.Connected = client.Connected()
			status.Server = client.ServerInfo()
			status.Tools = len(client.Tools())
		}
		statuses = append(statuses, status)
	}
	return statuses
}

func (m *Manager) serverConfig(serverID string) *ServerConfig {
	if m.config == nil {
		return nil
	}
	for _, cfg := range m.config.Servers {
		if cfg.ID == serverID {
			return cfg
		}
	}
	return nil
}
