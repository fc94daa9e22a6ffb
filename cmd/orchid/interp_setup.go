package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/orchidlang/orchid/pkg/config"
	"github.com/orchidlang/orchid/pkg/cost"
	"github.com/orchidlang/orchid/pkg/interp"
	"github.com/orchidlang/orchid/pkg/logger"
	"github.com/orchidlang/orchid/pkg/mcpruntime"
	"github.com/orchidlang/orchid/pkg/obsv"
	"github.com/orchidlang/orchid/pkg/plugin"
	"github.com/orchidlang/orchid/pkg/provider"
	"github.com/orchidlang/orchid/pkg/tracelog"
)

// scriptOpts are the flags shared by run/lex/parse/trace for locating a
// script and its optional orchid.config.json.
type scriptOpts struct {
	Script string `arg:"" help:"Path to the .orch script to run." type:"path"`
	Config string `help:"Path to orchid.config.json." type:"path"`
}

// runtime bundles the collaborators a CLI subcommand needs after building
// an Interpreter: the interpreter itself, its trace sink, and its metrics
// collector, plus a cleanup func releasing all three.
type runtime struct {
	Interp  *interp.Interpreter
	Trace   *tracelog.Sink
	Metrics *obsv.Metrics
	Close   func()
}

// buildInterpreter loads orchid.config.json (if present), wires every
// ambient/domain collaborator named in SPEC_FULL.md's DOMAIN STACK, and
// returns a ready-to-run runtime bundle.
func buildInterpreter(opts scriptOpts) (*runtime, error) {
	var cfg *config.Config
	if opts.Config != "" {
		loaded, err := config.Load(config.LoaderOptions{Backend: config.BackendFile, Path: opts.Config})
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = &config.Config{}
		cfg.SetDefaults()
	}

	// A real LLM Provider is supplied by an embedding application, not this
	// CLI (pkg/provider ships only the interface plus the Stub).
	var prov provider.Provider = &provider.Stub{}

	var mcpMgr interp.MCPManager
	if len(cfg.MCPServers) > 0 {
		mcpMgr = mcpruntime.New(cfg.MCPServers)
	}

	trace := tracelog.New()
	metrics := obsv.New()

	scriptDir := filepath.Dir(opts.Script)
	pluginPath := cfg.PluginPath
	if envPath := os.Getenv("ORCHID_PLUGIN_PATH"); envPath != "" {
		pluginPath = append(pluginPath, strings.Split(envPath, string(os.PathListSeparator))...)
	}

	it := interp.New(interp.Options{
		Provider:           prov,
		MCP:                mcpMgr,
		PluginSearch:       pluginPath,
		ScriptDir:          scriptDir,
		Trace:              trace,
		Logger:             logger.GetLogger(),
		CostPerKTokens:     cfg.CostPerKTokens,
		TokenCounter:       cost.Counter(),
		Metrics:            metrics,
		NativePluginLoader: plugin.Loader,
	})

	rt := &runtime{
		Interp:  it,
		Trace:   trace,
		Metrics: metrics,
	}
	rt.Close = func() {
		it.Shutdown()
		trace.Close()
	}
	return rt, nil
}

func readScript(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read script %s: %w", path, err)
	}
	return string(data), nil
}
