// Package mcpruntime implements the default stdio-based interp.MCPManager,
// connecting to external MCP tool servers via mark3labs/mcp-go the way the
// teacher's pkg/tool/mcptoolset connects — lazy, per-server, one subprocess
// client per configured server.
package mcpruntime

import (
	"context"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/orchidlang/orchid/pkg/module"
	"github.com/orchidlang/orchid/pkg/value"
)

type server struct {
	cfg    module.MCPServerConfig
	client *client.Client
	tools  map[string]mcp.Tool
}

// Manager is the default MCPManager: every configured server connects
// lazily on first use via stdio (Command/Args/Env), matching spec.md §4.10
// "Use MCP(name)" semantics.
type Manager struct {
	mu      sync.Mutex
	configs map[string]module.MCPServerConfig
	servers map[string]*server
}

// New builds a Manager from the `mcpServers` block of orchid.config.json.
func New(configs []module.MCPServerConfig) *Manager {
	m := &Manager{
		configs: make(map[string]module.MCPServerConfig, len(configs)),
		servers: make(map[string]*server),
	}
	for _, c := range configs {
		m.configs[c.Name] = c
	}
	return m
}

func (m *Manager) IsConfigured(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.configs[name]
	return ok
}

func (m *Manager) HasServer(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.servers[name]
	return ok
}

// Connect starts the configured server's stdio subprocess, initializes the
// MCP handshake, and lists its tools.
func (m *Manager) Connect(ctx context.Context, name string) error {
	m.mu.Lock()
	cfg, ok := m.configs[name]
	if _, already := m.servers[name]; already {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("MCP server %q is not configured", name)
	}

	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}

	c, err := client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	if err != nil {
		return fmt.Errorf("failed to create MCP client %q: %w", name, err)
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MCP client %q: %w", name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "orchid", Version: "1.0.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return fmt.Errorf("failed to initialize MCP %q: %w", name, err)
	}

	listResp, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		c.Close()
		return fmt.Errorf("failed to list tools for MCP %q: %w", name, err)
	}

	tools := make(map[string]mcp.Tool, len(listResp.Tools))
	for _, t := range listResp.Tools {
		tools[t.Name] = t
	}

	m.mu.Lock()
	m.servers[name] = &server{cfg: cfg, client: c, tools: tools}
	m.mu.Unlock()
	return nil
}

func (m *Manager) Disconnect(name string) error {
	m.mu.Lock()
	s, ok := m.servers[name]
	delete(m.servers, name)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return s.client.Close()
}

func (m *Manager) GetTools(name string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.servers[name]
	if !ok {
		return nil, fmt.Errorf("MCP server %q is not connected", name)
	}
	out := make([]string, 0, len(s.tools))
	for t := range s.tools {
		out = append(out, t)
	}
	return out, nil
}

// CallTool invokes one tool on a connected server, converting Orchid
// Values to/from the plain any-maps mcp-go's wire format expects.
func (m *Manager) CallTool(ctx context.Context, name, op string, args map[string]value.Value) (value.Value, error) {
	m.mu.Lock()
	s, ok := m.servers[name]
	m.mu.Unlock()
	if !ok {
		return value.Null, fmt.Errorf("MCP server %q is not connected", name)
	}

	rawArgs := make(map[string]any, len(args))
	for k, v := range args {
		rawArgs[k] = toRaw(v)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = op
	req.Params.Arguments = rawArgs

	resp, err := s.client.CallTool(ctx, req)
	if err != nil {
		return value.Null, fmt.Errorf("MCP call %s:%s failed: %w", name, op, err)
	}

	if resp.IsError {
		msg := "unknown error"
		for _, c := range resp.Content {
			if tc, ok := c.(mcp.TextContent); ok {
				msg = tc.Text
				break
			}
		}
		return value.Null, fmt.Errorf("MCP tool %s:%s returned an error: %s", name, op, msg)
	}

	var texts []string
	for _, c := range resp.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	switch len(texts) {
	case 0:
		return value.Null, nil
	case 1:
		return value.String(texts[0]), nil
	default:
		items := make([]value.Value, len(texts))
		for i, t := range texts {
			items[i] = value.String(t)
		}
		return value.List(items), nil
	}
}

func toRaw(v value.Value) any {
	switch v.Kind {
	case value.KindString:
		return v.Str()
	case value.KindNumber:
		return v.Num()
	case value.KindBoolean:
		return v.Bool()
	case value.KindList:
		items := v.ListItems()
		out := make([]any, len(items))
		for i, it := range items {
			out[i] = toRaw(it)
		}
		return out
	case value.KindDict:
		out := make(map[string]any)
		for _, k := range v.DictKeys() {
			vv, _ := v.DictGet(k)
			out[k] = toRaw(vv)
		}
		return out
	default:
		return v.String()
	}
}
