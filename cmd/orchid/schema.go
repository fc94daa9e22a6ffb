package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/orchidlang/orchid/pkg/config"
	"github.com/orchidlang/orchid/pkg/module"
)

// SchemaCmd emits JSON Schema for orchid.config.json or a native Plugin's
// manifest, so editors and a config-building UI can validate either shape
// without hand-maintaining a second schema definition.
type SchemaCmd struct {
	Target  string `arg:"" optional:"" enum:"config,plugin" default:"config" help:"Which schema to emit: config or plugin."`
	Compact bool   `short:"c" help:"Compact JSON output (no indentation)."`
}

func (c *SchemaCmd) Run() error {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	var schema *jsonschema.Schema
	switch c.Target {
	case "plugin":
		schema = reflector.Reflect(&module.PluginConfig{})
		schema.ID = "https://orchid.dev/schemas/plugin.json"
		schema.Title = "Orchid Plugin Manifest Schema"
		schema.Description = "Schema for a single entry of orchid.config.json's plugins map"
	default:
		schema = reflector.Reflect(&config.Config{})
		schema.ID = "https://orchid.dev/schemas/config.json"
		schema.Title = "Orchid Configuration Schema"
		schema.Description = "Schema for orchid.config.json"
	}
	schema.Version = "http://json-schema.org/draft-07/schema#"

	encoder := json.NewEncoder(os.Stdout)
	if !c.Compact {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(schema); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	return nil
}
