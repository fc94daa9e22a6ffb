package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/orchidlang/orchid/pkg/parser"
)

// TraceCmd runs a script and prints its recorded operation trace
// (pkg/tracelog), wrapped to the terminal width when attached to one.
type TraceCmd struct {
	scriptOpts
	Depth int `help:"Number of trailing trace lines to print (0 = all)." default:"0"`
}

func (c *TraceCmd) Run() error {
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

	result, runErr := rt.Interp.Run(context.Background(), prog)

	width := 100
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}

	depth := c.Depth
	if depth <= 0 {
		depth = math.MaxInt32
	}
	for _, line := range rt.Trace.Recent(depth) {
		fmt.Println(wrap(line, width))
	}

	if runErr != nil {
		return runErr
	}
	fmt.Println("=>", result.String())
	return nil
}

// wrap breaks a trace line at word boundaries once it exceeds width, using
// a small indent for continuation lines so wrapped traces stay scannable.
func wrap(line string, width int) string {
	if width <= 0 || len(line) <= width {
		return line
	}
	var b strings.Builder
	remaining := line
	for len(remaining) > width {
		cut := strings.LastIndex(remaining[:width], " ")
		if cut <= 0 {
			cut = width
		}
		b.WriteString(remaining[:cut])
		b.WriteString("\n    ")
		remaining = strings.TrimLeft(remaining[cut:], " ")
	}
	b.WriteString(remaining)
	return b.String()
}
