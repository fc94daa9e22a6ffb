// Package module holds the shared configuration shapes and path-resolution
// helpers used by Orchid's import/Use dispatch (spec.md §4.10, C10), kept
// separate from pkg/interp so pkg/config can decode into these types
// without importing the interpreter core.
package module

import (
	"path/filepath"
	"strings"
)

// MCPServerConfig describes one entry of `orchid.config.json`'s
// `mcpServers` block (SPEC_FULL.md "Config file gains an optional
// mcpServers[].auth jwx-verified block").
type MCPServerConfig struct {
	Name    string            `koanf:"name" mapstructure:"name"`
	Command string            `koanf:"command" mapstructure:"command"`
	Args    []string          `koanf:"args" mapstructure:"args"`
	Env     map[string]string `koanf:"env" mapstructure:"env"`
	Auth    *AuthConfig       `koanf:"auth" mapstructure:"auth"`
}

// AuthConfig is the jwx-verified auth block for an MCP server entry.
type AuthConfig struct {
	JWKSURL  string `koanf:"jwksUrl" mapstructure:"jwksUrl"`
	Audience string `koanf:"audience" mapstructure:"audience"`
}

// PluginConfig describes one entry of `orchid.config.json`'s top-level
// `plugins` map: alias -> {path, signature?}.
type PluginConfig struct {
	Path      string `koanf:"path" mapstructure:"path"`
	Signature string `koanf:"signature" mapstructure:"signature"`
}

// ResolvePath implements spec.md §4.10's Import path resolution: dotted
// segments translate to path separators, relative to scriptDir, with an
// `.orch` extension appended.
func ResolvePath(scriptDir, dotted string) string {
	rel := filepath.FromSlash(strings.ReplaceAll(dotted, ".", "/")) + ".orch"
	return filepath.Join(scriptDir, rel)
}

// PluginCandidates returns the ordered set of filenames Use Plugin(name)
// searches for under a plugins/ root, per spec.md §4.10.
func PluginCandidates(name string) []string {
	return []string{
		name + ".js",
		filepath.Join(name, "index.js"),
		name + ".orch",
		filepath.Join(name, "index.orch"),
	}
}

// StripVersionSuffix removes a trailing `@version` suffix from a Use
// name/alias, per spec.md §4.2's Use grammar.
func StripVersionSuffix(name string) string {
	if i := strings.LastIndexByte(name, '@'); i > 0 {
		return name[:i]
	}
	return name
}
