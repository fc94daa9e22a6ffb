// Package interp implements Orchid's tree-walking interpreter: the
// statement/expression dispatcher (C5), the parallel fork scheduler (C6),
// atomic transactions (C7), the event system (C8), behavior tags (C9),
// module/plugin dispatch (C10), and the distinguished built-in operations
// (C11), per spec.md §3–§5.
package interp

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/orchidlang/orchid/pkg/ast"
	"github.com/orchidlang/orchid/pkg/env"
	"github.com/orchidlang/orchid/pkg/errs"
	"github.com/orchidlang/orchid/pkg/obsv"
	"github.com/orchidlang/orchid/pkg/provider"
	"github.com/orchidlang/orchid/pkg/recall"
	"github.com/orchidlang/orchid/pkg/session"
	"github.com/orchidlang/orchid/pkg/value"
)

// PluginModule is the dispatch surface a loaded native/`.orch` Plugin
// exposes to the interpreter (spec.md §4.10/§6). Concrete implementations
// live in pkg/plugin, kept out of pkg/interp to avoid importing go-plugin
// et al. into the core.
type PluginModule interface {
	Name() string
	HasOperation(name string) bool
	Operations() []string
	Call(ctx context.Context, operation string, args map[string]value.Value, pctx PluginContext) (value.Value, error)
	Teardown() error
}

// PluginContext is passed to a native Plugin operation, per spec.md §6's
// Plugin interface shape.
type PluginContext struct {
	Provider        provider.Provider
	ImplicitContext value.Value
	Trace           func(msg string)
	Tags            []provider.Tag
}

// MCPManager is the dispatch surface for the external MCP tool transport
// (spec.md §6). A concrete stdio-based default lives in pkg/mcpruntime.
type MCPManager interface {
	Connect(ctx context.Context, name string) error
	Disconnect(name string) error
	HasServer(name string) bool
	IsConfigured(name string) bool
	GetTools(name string) ([]string, error)
	CallTool(ctx context.Context, name, op string, args map[string]value.Value) (value.Value, error)
}

// TraceSink receives a line per dispatched operation for the `Trace` /
// `Elapsed` built-ins (spec.md §4.11). pkg/tracelog supplies the default
// sqlite-backed ring buffer; tests can supply an in-memory slice sink.
type TraceSink interface {
	Record(line string)
	Recent(depth int) []string
	Clear()
}

// checkpoint is a labeled snapshot of bindings + implicit context
// (spec.md §3, Checkpoint/Rollback).
type checkpoint struct {
	bindings map[string]value.Value
	context  value.Value
}

// eventHandler is a registered `on Name as var: body` listener.
type eventHandler struct {
	varName string
	body    *ast.Block
	env     value.EnvHandle
}

// waiter is a single-shot resolver registered by a blocked `listen()` call.
type waiter struct {
	resolve chan value.Value
}

// moduleResult is what an `import` caches per resolved path: the module's
// top-level env plus the macros/agents it defined (spec.md §4.10).
type moduleResult struct {
	env    value.EnvHandle
	macros map[string]*value.Callable
	agents map[string]*value.Callable
}

// Options configures an Interpreter at construction (spec.md §9,
// "process-wide concerns ... treat as config passed to the Interpreter at
// construction to keep test isolation possible").
type Options struct {
	Provider        provider.Provider
	MCP             MCPManager
	PluginSearch    []string // ORCHID_PLUGIN_PATH entries, script-dir-first
	ScriptDir       string
	Trace           TraceSink
	Logger          *slog.Logger
	CostPerKTokens  float64
	TokenCounter    func(s string) int // pkg/cost's tiktoken-backed counter
	SessionID       string             // pkg/session id; generated if empty
	Recall          *recall.Store      // pkg/recall store; a fresh one is created if nil
	Metrics         *obsv.Metrics      // pkg/obsv Prometheus collectors; nil disables metrics
	Tracer          trace.Tracer       // pkg/obsv OTel tracer; a no-op tracer is used if nil

	// NativePluginLoader loads a non-`.orch` plugin file (typically a
	// go-plugin/hclog-hosted binary located by Use Plugin's search path).
	// pkg/plugin supplies the production implementation; nil defaults to an
	// implementation that always reports ToolNotFound, matching offline use.
	NativePluginLoader func(name, path string) (PluginModule, error)

	// imports is the import_cache/import_stack shared across an entire
	// import tree (spec.md §3). Unexported: only execImport/loadOrchPlugin,
	// constructing sub-interpreters for nested `import`/Plugin loads, pass
	// the parent's value through; a top-level New() always gets a fresh one.
	imports *importState
}

// importState holds the Interpreter-state invariant's import_cache (at-most-
// once execution per resolved path) and import_stack (cycle membership).
// It's shared by pointer across a parent Interpreter and every sub-
// Interpreter execImport/loadOrchPlugin creates for nested imports, so a
// cycle spanning several import levels is still detected.
type importState struct {
	mu    sync.Mutex
	cache map[string]moduleResult
	stack map[string]bool
}

func newImportState() *importState {
	return &importState{cache: make(map[string]moduleResult), stack: make(map[string]bool)}
}

// Interpreter owns all session state described in spec.md §3.
type Interpreter struct {
	opts Options

	arena  *env.Arena
	global value.EnvHandle

	implicitContext value.Value

	checkpoints   map[string]checkpoint
	eventHandlers map[string][]eventHandler
	eventBuffer   map[string][]value.Value
	listenWaiters []*waiter

	namespaces map[string]string
	macros     map[string]*value.Callable
	agents     map[string]*value.Callable
	plugins    map[string]PluginModule

	imports *importState

	cache  map[string]value.Value
	frozen map[string]bool

	startTime time.Time

	provider provider.Provider
	mcp      MCPManager
	trace    TraceSink
	logger   *slog.Logger
	recall   *recall.Store
	metrics  *obsv.Metrics
	tracer   trace.Tracer

	retryCount int
	errorCount int
	forkDepth  int
	opDepth    int

	sessionID string
	searchSeq int

	// mu guards interpreter-owned maps (cache, checkpoints, frozen, macros,
	// agents, event state) against concurrent fork branches. ctxMu guards
	// implicitContext specifically, swapped per statement by fork branches
	// to mask interleaving (spec.md §4.5).
	mu    sync.Mutex
	ctxMu sync.Mutex
}

const maxEventBuffer = 1000

// New constructs an Interpreter ready to run a single script session.
func New(opts Options) *Interpreter {
	arena, root := env.NewArena()
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Provider == nil {
		opts.Provider = &offlineUnconfigured{}
	}
	if opts.NativePluginLoader == nil {
		opts.NativePluginLoader = func(name, path string) (PluginModule, error) {
			return nil, errs.New(errs.ToolNotFound, errs.Position{}, "no native plugin loader configured for %q", name)
		}
	}
	if opts.SessionID == "" {
		opts.SessionID = session.NewID()
	}
	if opts.Recall == nil {
		opts.Recall = recall.New()
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("orchid/interp")
	}
	if opts.imports == nil {
		opts.imports = newImportState()
	}
	it := &Interpreter{
		opts:          opts,
		sessionID:     opts.SessionID,
		recall:        opts.Recall,
		metrics:       opts.Metrics,
		tracer:        opts.Tracer,
		arena:         arena,
		global:        root,
		implicitContext: value.Null,
		checkpoints:   make(map[string]checkpoint),
		eventHandlers: make(map[string][]eventHandler),
		eventBuffer:   make(map[string][]value.Value),
		namespaces:    make(map[string]string),
		macros:        make(map[string]*value.Callable),
		agents:        make(map[string]*value.Callable),
		plugins:       make(map[string]PluginModule),
		imports:       opts.imports,
		cache:         make(map[string]value.Value),
		frozen:        make(map[string]bool),
		provider:      opts.Provider,
		mcp:           opts.MCP,
		trace:         opts.Trace,
		logger:        opts.Logger,
	}
	return it
}

// offlineUnconfigured is used when no Provider is supplied; every call
// fails with ToolNotFound so scripts without reasoning macros still run
// (e.g. pure control-flow/data-manipulation scripts).
type offlineUnconfigured struct{}

func (offlineUnconfigured) Execute(ctx context.Context, operation, input string, ctxVars map[string]string, tags []provider.Tag, opts *provider.Options) (value.Value, error) {
	return value.Null, errs.New(errs.ToolNotFound, errs.Position{}, "no Provider configured for operation %q", operation)
}
func (offlineUnconfigured) Search(ctx context.Context, query string, tags []provider.Tag) (value.Value, error) {
	return value.Null, errs.New(errs.ToolNotFound, errs.Position{}, "no Provider configured")
}
func (offlineUnconfigured) Confidence(ctx context.Context, scope string) (float64, error) {
	return 0, errs.New(errs.ToolNotFound, errs.Position{}, "no Provider configured")
}
func (offlineUnconfigured) ToolCall(ctx context.Context, namespace, operation string, args map[string]value.Value, tags []provider.Tag) (value.Value, error) {
	return value.Null, errs.New(errs.ToolNotFound, errs.Position{}, "no Provider configured for %s:%s", namespace, operation)
}
func (offlineUnconfigured) Generate(ctx context.Context, prompt string, format provider.Format, tags []provider.Tag) (value.Value, error) {
	return value.Null, errs.New(errs.ToolNotFound, errs.Position{}, "no Provider configured")
}
func (offlineUnconfigured) Subtract(ctx context.Context, a, b string) (value.Value, error) {
	return value.Null, errs.New(errs.ToolNotFound, errs.Position{}, "no Provider configured")
}

// Run executes a parsed Program: metadata pass, then the body statements in
// order. The result is the value of the last statement (spec.md §4.3).
func (it *Interpreter) Run(ctx context.Context, prog *ast.Program) (value.Value, error) {
	it.startTime = time.Now()
	if err := it.processMetadata(ctx, prog.Metadata); err != nil {
		return value.Null, err
	}
	result := value.Null
	for _, stmt := range prog.Body {
		v, err := it.execute(ctx, stmt, it.global)
		if err != nil {
			if _, ok := isReturn(err); ok {
				return v, nil
			}
			return value.Null, err
		}
		result = v
	}
	return result, nil
}

// processMetadata handles `@orchid`, `@name`, and `@requires` directives
// eagerly before any body statement runs (spec.md §4.3 step 1, §4.10
// "@requires MCP/Plugin").
func (it *Interpreter) processMetadata(ctx context.Context, mds []ast.Metadata) error {
	for _, m := range mds {
		switch m.Name {
		case "requires":
			if err := it.checkRequires(ctx, m.Value); err != nil {
				return err
			}
		default:
			// "orchid", "name", and any other directive are accepted without
			// runtime effect (declarative metadata).
		}
	}
	return nil
}

func (it *Interpreter) checkRequires(ctx context.Context, spec string) error {
	// spec is e.g. "MCP(search)" or "Plugin(github)" — a minimal parse since
	// full expression parsing isn't needed for a single-call directive.
	name, kind, ok := parseRequiresDirective(spec)
	if !ok {
		return nil
	}
	switch kind {
	case "MCP":
		if it.mcp == nil || !it.mcp.IsConfigured(name) {
			return errs.New(errs.ToolNotFound, errs.Position{}, "required MCP %q is not configured", name)
		}
	case "Plugin":
		if _, ok := it.plugins[name]; !ok {
			return errs.New(errs.ToolNotFound, errs.Position{}, "required Plugin %q is not available", name)
		}
	}
	return nil
}

func parseRequiresDirective(spec string) (name, kind string, ok bool) {
	for _, k := range []string{"MCP", "Plugin"} {
		prefix := k + "("
		if len(spec) > len(prefix)+1 && spec[:len(prefix)] == prefix && spec[len(spec)-1] == ')' {
			return spec[len(prefix) : len(spec)-1], k, true
		}
	}
	return "", "", false
}

// Elapsed returns the time.Duration since Run started, backing the
// `Elapsed()` built-in.
func (it *Interpreter) Elapsed() time.Duration { return time.Since(it.startTime) }

// Agents returns the names of every top-level Callable defined with the
// agent keyword (spec.md §4.10), for hosts that expose a loaded script's
// agents over a transport such as A2A.
func (it *Interpreter) Agents() []string {
	names := make([]string, 0, len(it.agents))
	for name, c := range it.agents {
		if c.IsAgent {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Agent looks up a top-level agent Callable by name, reporting ok=false if
// no such agent exists.
func (it *Interpreter) Agent(name string) (*value.Callable, bool) {
	c, ok := it.agents[name]
	if !ok || !c.IsAgent {
		return nil, false
	}
	return c, true
}

// CallAgent invokes a top-level agent by name with keyword arguments, for
// hosts (such as the A2A server surface) that dispatch into a loaded
// script's agents without going through Orchid source syntax.
func (it *Interpreter) CallAgent(ctx context.Context, name string, kwargs map[string]value.Value) (value.Value, error) {
	c, ok := it.Agent(name)
	if !ok {
		return value.Null, errs.New(errs.ToolNotFound, errs.Position{}, "agent %q is not defined", name)
	}
	return it.callCallable(ctx, c, nil, kwargs, it.global)
}

// Shutdown calls teardown on every loaded plugin, best-effort: failures are
// logged, never thrown (spec.md §5, "Resource lifecycle").
func (it *Interpreter) Shutdown() {
	for alias, p := range it.plugins {
		if err := p.Teardown(); err != nil {
			it.logger.Warn("plugin teardown failed", "plugin", alias, "error", err)
		}
	}
}
