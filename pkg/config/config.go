// Package config loads `orchid.config.json` / `.orchidrc.json` through
// koanf, the way the teacher's pkg/config/koanf_loader.go does — a
// file.Provider by default, with consul/etcd/zookeeper providers available
// for centrally-managed MCP server catalogs across a fleet of orchid hosts.
package config

import (
	"github.com/orchidlang/orchid/pkg/module"
)

// Config is the decoded shape of orchid.config.json / .orchidrc.json.
type Config struct {
	LogLevel       string                          `koanf:"logLevel" mapstructure:"logLevel"`
	LogFormat      string                          `koanf:"logFormat" mapstructure:"logFormat"`
	CostPerKTokens float64                         `koanf:"costPerKTokens" mapstructure:"costPerKTokens"`
	PluginPath     []string                        `koanf:"pluginPath" mapstructure:"pluginPath"`
	MCPServers     []module.MCPServerConfig        `koanf:"mcpServers" mapstructure:"mcpServers"`
	Plugins        map[string]module.PluginConfig  `koanf:"plugins" mapstructure:"plugins"`
}

// SetDefaults fills zero-valued fields with the production defaults, the
// way the teacher's config types carry a SetDefaults method.
func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	if c.LogFormat == "" {
		c.LogFormat = "simple"
	}
}
