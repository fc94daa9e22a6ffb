// Command orchid is the CLI for the Orchid runtime.
//
// Usage:
//
//	orchid run script.orch
//	orchid lex script.orch
//	orchid parse script.orch
//	orchid trace script.orch
//	orchid schema
//	orchid serve script.orch --config orchid.config.json
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/orchidlang/orchid/pkg/logger"
)

// CLI defines the top-level command-line interface, mirroring the
// teacher's CLI struct-of-subcommands style.
type CLI struct {
	Run     RunCmd     `cmd:"" help:"Run an Orchid script."`
	Lex     LexCmd     `cmd:"" help:"Print the token stream for a script."`
	Parse   ParseCmd   `cmd:"" help:"Print the parsed AST for a script."`
	Trace   TraceCmd   `cmd:"" help:"Run a script and print its operation trace."`
	Schema  SchemaCmd  `cmd:"" help:"Emit JSON Schema for orchid.config.json or a Plugin manifest."`
	Serve   ServeCmd   `cmd:"" help:"Start the HTTP server exposing scripts as A2A agents."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"warn"`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("orchid version %s\n", version)
	return nil
}

func main() {
	_ = godotenv.Load()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("orchid"),
		kong.Description("Orchid — a small orchestration/scripting language runtime"),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}
	logger.Init(level, os.Stderr, cli.LogFormat)

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
