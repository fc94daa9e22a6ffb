package main

import (
	"context"
	"fmt"

	"github.com/orchidlang/orchid/pkg/parser"
)

// RunCmd executes a script and prints its final value.
type RunCmd struct {
	scriptOpts
}

func (c *RunCmd) Run() error {
	src, err := readScript(c.Script)
	if err != nil {
		return err
	}
	prog, err := parser.ParseFile(c.Script, src)
	if err != nil {
		return err
	}

	rt, err := buildInterpreter(c.scriptOpts)
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := rt.Interp.Run(context.Background(), prog)
	if err != nil {
		return err
	}
	fmt.Println(result.String())
	return nil
}
