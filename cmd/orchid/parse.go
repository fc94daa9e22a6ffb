package main

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/orchidlang/orchid/pkg/parser"
)

// ParseCmd prints the parsed AST for a script as YAML, for inspecting how
// the parser resolved a script's grammar.
type ParseCmd struct {
	Script string `arg:"" help:"Path to the .orch script." type:"path"`
}

func (c *ParseCmd) Run() error {
	src, err := readScript(c.Script)
	if err != nil {
		return err
	}
	prog, err := parser.ParseFile(c.Script, src)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(prog)
	if err != nil {
		return fmt.Errorf("failed to render AST: %w", err)
	}
	fmt.Print(string(out))
	return nil
}
