package main

import (
	"fmt"

	"github.com/orchidlang/orchid/pkg/lexer"
)

// LexCmd prints the token stream for a script, one token per line.
type LexCmd struct {
	Script string `arg:"" help:"Path to the .orch script." type:"path"`
}

func (c *LexCmd) Run() error {
	src, err := readScript(c.Script)
	if err != nil {
		return err
	}
	l := lexer.New(c.Script, src)
	toks, err := l.Tokenize()
	if err != nil {
		return err
	}
	for _, t := range toks {
		fmt.Printf("%4d:%-3d type=%-3d %q\n", t.Pos.Line, t.Pos.Column, t.Type, t.Literal)
	}
	return nil
}
