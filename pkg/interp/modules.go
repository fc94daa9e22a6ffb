package interp

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/orchidlang/orchid/pkg/ast"
	"github.com/orchidlang/orchid/pkg/errs"
	"github.com/orchidlang/orchid/pkg/parser"
	"github.com/orchidlang/orchid/pkg/value"
)

// execImport implements spec.md §4.10's Import semantics: dotted path to
// `/`-joined `.orch` file relative to the script directory, cycle detection
// via import_stack, memoization via import_cache, merge into the importer's
// env with or without an alias Dict wrapper.
func (it *Interpreter) execImport(ctx context.Context, n *ast.Import, envH value.EnvHandle) (value.Value, error) {
	resolved := filepath.Join(it.opts.ScriptDir, filepath.FromSlash(strings.ReplaceAll(n.Path, ".", "/"))+".orch")

	it.imports.mu.Lock()
	if it.imports.stack[resolved] {
		cycle := strings.Join(append(it.sortedImportStack(), resolved), " -> ")
		it.imports.mu.Unlock()
		return value.Null, errs.New(errs.CyclicDependency, n.Pos(), "import cycle detected: %s", cycle)
	}
	if cached, ok := it.imports.cache[resolved]; ok {
		it.imports.mu.Unlock()
		it.mergeModule(envH, cached, n.Alias)
		return value.Null, nil
	}
	it.imports.stack[resolved] = true
	it.imports.mu.Unlock()
	defer func() {
		it.imports.mu.Lock()
		delete(it.imports.stack, resolved)
		it.imports.mu.Unlock()
	}()

	src, err := os.ReadFile(resolved)
	if err != nil {
		return value.Null, errs.New(errs.ImportError, n.Pos(), "cannot read module %q: %v", resolved, err)
	}
	prog, err := parser.ParseFile(resolved, string(src))
	if err != nil {
		return value.Null, errs.New(errs.ImportError, n.Pos(), "cannot parse module %q: %v", resolved, err)
	}

	sub := New(Options{
		Provider:       it.opts.Provider,
		MCP:            it.opts.MCP,
		PluginSearch:   it.opts.PluginSearch,
		ScriptDir:      filepath.Dir(resolved),
		Trace:          it.opts.Trace,
		Logger:         it.opts.Logger,
		CostPerKTokens: it.opts.CostPerKTokens,
		TokenCounter:   it.opts.TokenCounter,
		imports:        it.imports,
	})
	if _, err := sub.Run(ctx, prog); err != nil {
		return value.Null, err
	}

	mr := moduleResult{env: sub.global, macros: sub.macros, agents: sub.agents}
	it.imports.mu.Lock()
	it.imports.cache[resolved] = mr
	it.imports.mu.Unlock()

	it.mergeModule(envH, mr, n.Alias)
	return value.Null, nil
}

func (it *Interpreter) sortedImportStack() []string {
	out := make([]string, 0, len(it.imports.stack))
	for k := range it.imports.stack {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// mergeModule merges an imported module's bindings into envH: as a single
// Dict under alias when given, otherwise member-by-member into envH
// directly; macros/agents propagate with an alias prefix when present.
func (it *Interpreter) mergeModule(envH value.EnvHandle, mr moduleResult, alias string) {
	own := it.arena.OwnBindings(mr.env)
	if alias != "" {
		keys := make([]string, 0, len(own))
		for k := range own {
			keys = append(keys, k)
		}
		it.arena.Set(envH, alias, value.DictFrom(keys, own))
	} else {
		for k, v := range own {
			it.arena.Set(envH, k, v)
		}
	}

	it.mu.Lock()
	defer it.mu.Unlock()
	for name, c := range mr.macros {
		it.macros[qualify(alias, name)] = c
	}
	for name, c := range mr.agents {
		it.agents[qualify(alias, name)] = c
	}
}

func qualify(alias, name string) string {
	if alias == "" {
		return name
	}
	return alias + "." + name
}

// execUse implements spec.md §4.10's `Use MCP(name)` / `Use Plugin(name)`.
func (it *Interpreter) execUse(ctx context.Context, n *ast.Use, envH value.EnvHandle) (value.Value, error) {
	alias := n.Alias
	if alias == "" {
		alias = n.Name
	}

	it.mu.Lock()
	it.namespaces[alias] = n.Name
	it.mu.Unlock()

	switch n.Kind {
	case ast.UseMCP:
		if it.mcp == nil {
			it.logger.Warn("Use MCP: no MCP manager configured", "name", n.Name)
			return value.Null, nil
		}
		if !it.mcp.IsConfigured(n.Name) {
			it.logger.Warn("Use MCP: server not configured, falling back to Provider.ToolCall", "name", n.Name)
			return value.Null, nil
		}
		if err := it.mcp.Connect(ctx, n.Name); err != nil {
			it.logger.Warn("Use MCP: connect failed, falling back to Provider.ToolCall", "name", n.Name, "error", err)
		}
		return value.Null, nil

	case ast.UsePlugin:
		pm, err := it.loadPlugin(ctx, n.Name)
		if err != nil {
			return value.Null, errs.New(errs.ToolNotFound, n.Pos(), "Use Plugin(%q): %v", n.Name, err)
		}
		it.mu.Lock()
		it.plugins[alias] = pm
		it.mu.Unlock()
		return value.Null, nil
	}
	return value.Null, nil
}

// loadPlugin resolves a Plugin by name under each plugins/ root (script
// directory first, then ORCHID_PLUGIN_PATH entries), trying, in order,
// `<name>.js`, `<name>/index.js`, `<name>.orch`, `<name>/index.orch`.
// Native JS-hosted plugins are loaded via pkg/plugin (go-plugin/hclog
// transport); `.orch` plugins run as a sub-interpreter exposing their
// macros/agents as operations.
func (it *Interpreter) loadPlugin(ctx context.Context, name string) (PluginModule, error) {
	roots := append([]string{filepath.Join(it.opts.ScriptDir, "plugins")}, it.opts.PluginSearch...)
	candidates := []string{
		filepath.Join(name + ".js"),
		filepath.Join(name, "index.js"),
		filepath.Join(name + ".orch"),
		filepath.Join(name, "index.orch"),
	}
	for _, root := range roots {
		for _, c := range candidates {
			full := filepath.Join(root, c)
			if _, err := os.Stat(full); err != nil {
				continue
			}
			if strings.HasSuffix(full, ".orch") {
				return it.loadOrchPlugin(ctx, name, full)
			}
			return it.opts.NativePluginLoader(name, full)
		}
	}
	return nil, errs.New(errs.ToolNotFound, errs.Position{}, "plugin %q not found under any plugins/ root", name)
}

func (it *Interpreter) loadOrchPlugin(ctx context.Context, name, path string) (PluginModule, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	prog, err := parser.ParseFile(path, string(src))
	if err != nil {
		return nil, err
	}
	sub := New(Options{
		Provider:       it.opts.Provider,
		MCP:            it.opts.MCP,
		PluginSearch:   it.opts.PluginSearch,
		ScriptDir:      filepath.Dir(path),
		Trace:          it.opts.Trace,
		Logger:         it.opts.Logger,
		CostPerKTokens: it.opts.CostPerKTokens,
		TokenCounter:   it.opts.TokenCounter,
		imports:        it.imports,
	})
	if _, err := sub.Run(ctx, prog); err != nil {
		return nil, err
	}
	return &orchPlugin{name: name, interp: sub}, nil
}

// orchPlugin adapts a `.orch` sub-interpreter's macros/agents to the
// PluginModule surface.
type orchPlugin struct {
	name   string
	interp *Interpreter
}

func (p *orchPlugin) Name() string { return p.name }

func (p *orchPlugin) HasOperation(name string) bool {
	_, m := p.interp.macros[name]
	_, a := p.interp.agents[name]
	return m || a
}

// Operations lists the sub-interpreter's macro and agent names, for
// Discover("alias.*") (spec.md §4.11).
func (p *orchPlugin) Operations() []string {
	names := make([]string, 0, len(p.interp.macros)+len(p.interp.agents))
	for name := range p.interp.macros {
		names = append(names, name)
	}
	for name := range p.interp.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *orchPlugin) Call(ctx context.Context, operation string, args map[string]value.Value, pctx PluginContext) (value.Value, error) {
	c, ok := p.interp.macros[operation]
	if !ok {
		c, ok = p.interp.agents[operation]
	}
	if !ok {
		return value.Null, errs.New(errs.ToolNotFound, errs.Position{}, "plugin %q has no operation %q", p.name, operation)
	}
	return p.interp.callCallable(ctx, c, nil, args, p.interp.global)
}

func (p *orchPlugin) Teardown() error { return nil }
