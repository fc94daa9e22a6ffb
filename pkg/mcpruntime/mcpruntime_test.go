package mcpruntime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchidlang/orchid/pkg/module"
	"github.com/orchidlang/orchid/pkg/value"
)

func TestIsConfiguredAndHasServer(t *testing.T) {
	m := New([]module.MCPServerConfig{{Name: "fs", Command: "mcp-fs"}})
	assert.True(t, m.IsConfigured("fs"))
	assert.False(t, m.IsConfigured("missing"))
	assert.False(t, m.HasServer("fs"))
}

func TestDisconnectUnknownServerIsNoOp(t *testing.T) {
	m := New(nil)
	assert.NoError(t, m.Disconnect("missing"))
}

func TestGetToolsUnconnectedServerErrors(t *testing.T) {
	m := New([]module.MCPServerConfig{{Name: "fs", Command: "mcp-fs"}})
	_, err := m.GetTools("fs")
	require.Error(t, err)
}

func TestCallToolUnconnectedServerErrors(t *testing.T) {
	m := New(nil)
	_, err := m.CallTool(nil, "fs", "read", nil)
	require.Error(t, err)
}

func TestToRawConvertsValueKinds(t *testing.T) {
	assert.Equal(t, "hi", toRaw(value.String("hi")))
	assert.Equal(t, 2.5, toRaw(value.Number(2.5)))
	assert.Equal(t, true, toRaw(value.Boolean(true)))

	list := toRaw(value.List([]value.Value{value.Number(1), value.Number(2)}))
	assert.Equal(t, []any{1.0, 2.0}, list)

	dict := toRaw(value.DictFrom([]string{"a"}, map[string]value.Value{"a": value.String("b")}))
	assert.Equal(t, map[string]any{"a": "b"}, dict)
}
