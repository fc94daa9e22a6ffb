package interp

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/orchidlang/orchid/pkg/ast"
	"github.com/orchidlang/orchid/pkg/asset"
	"github.com/orchidlang/orchid/pkg/errs"
	"github.com/orchidlang/orchid/pkg/value"
)

// describeInput renders a Value as the input string handed to the
// Provider, per spec.md §4.4: a document Asset is summarized via
// pkg/asset.Describe rather than the generic "<asset mime>" placeholder.
func describeInput(v value.Value) string {
	if v.Kind == value.KindAsset {
		if a := v.Asset(); a != nil && a.MediaType == value.MediaDocument {
			return asset.Describe(a.Mime, a.Path, a.Inline)
		}
	}
	return v.String()
}

// primaryInput picks the call's primary input per spec.md §4.4 "Argument
// resolution": the first positional argument, or implicit_context if there
// is none.
func (it *Interpreter) primaryInput(positional []value.Value) value.Value {
	if len(positional) > 0 {
		return positional[0]
	}
	return it.implicitContext
}

// dispatchOperation resolves an unqualified `Name(args)<tags>` call per
// spec.md §4.4's four-step order: user macro/agent, env Callable,
// distinguished built-in, reasoning macro via the Provider. The whole
// dispatch runs inside the tag-enforcement pipeline (§4.9).
func (it *Interpreter) dispatchOperation(ctx context.Context, n *ast.Operation, envH value.EnvHandle) (value.Value, contextEffect, error) {
	resolved, err := it.resolveTags(ctx, n.Tags, envH)
	if err != nil {
		return value.Null, ctxDefault, err
	}
	plan := buildTagPlan(resolved, n.Tags)

	positional, kwargs, err := it.resolveArgs(ctx, n.Args, envH)
	if err != nil {
		return value.Null, ctxDefault, err
	}
	cacheKey := value.CanonicalKey(n.Name, it.primaryInput(positional), kwargs)

	call := func(ctx context.Context) (value.Value, error) {
		if plan.isolated {
			kwargs = map[string]value.Value{}
			positional = nil
		}

		if c, ok := it.macros[n.Name]; ok {
			return it.callCallable(ctx, c, positional, kwargs, envH)
		}
		if c, ok := it.agents[n.Name]; ok {
			return it.callCallable(ctx, c, positional, kwargs, envH)
		}
		if v, ok := it.arena.Lookup(envH, n.Name); ok && v.Kind == value.KindCallable {
			return it.callCallable(ctx, v.Callable(), positional, kwargs, envH)
		}
		if v, handled, err := it.dispatchBuiltin(ctx, n.Name, positional, kwargs, asProviderTags(resolved), envH, n.Pos()); handled {
			return v, err
		}

		// Step 4: reasoning macro — delegate to the Provider.
		ctxVars := make(map[string]string, len(kwargs))
		for k, v := range kwargs {
			ctxVars[k] = v.String()
		}
		return it.provider.Execute(ctx, n.Name, describeInput(it.primaryInput(positional)), ctxVars, asProviderTags(resolved), nil)
	}

	result, effect, err := it.traceOperation(ctx, n.Name, resolved, func(ctx context.Context) (value.Value, contextEffect, error) {
		return it.runWithTags(ctx, plan, cacheKey, envH, call)
	})
	return result, effect, err
}

// traceOperation wraps one dispatch in an OTel span (name, tags, duration)
// and a Prometheus duration observation, per SPEC_FULL.md's "one span per
// Operation dispatch" addition to §4.4.
func (it *Interpreter) traceOperation(ctx context.Context, name string, tags []ResolvedTag, fn func(context.Context) (value.Value, contextEffect, error)) (value.Value, contextEffect, error) {
	ctx, span := it.tracer.Start(ctx, name)
	defer span.End()
	for _, t := range tags {
		span.SetAttributes(attribute.String("tag."+t.Name, t.Value.String()))
	}

	start := time.Now()
	v, effect, err := fn(ctx)
	it.metrics.ObserveOperation(name, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		it.metrics.RecordOperationError(name, errorKind(err))
	}
	return v, effect, err
}

func errorKind(err error) string {
	if oe, ok := asOrchidError(err); ok {
		return string(oe.Kind)
	}
	return "unknown"
}

// dispatchNamespacedOperation resolves `ns:Name(args)<tags>` per spec.md
// §4.4: a loaded Plugin, a live or connectable MCP server, or finally the
// Provider's simulated ToolCall.
func (it *Interpreter) dispatchNamespacedOperation(ctx context.Context, n *ast.NamespacedOperation, envH value.EnvHandle) (value.Value, contextEffect, error) {
	resolved, err := it.resolveTags(ctx, n.Tags, envH)
	if err != nil {
		return value.Null, ctxDefault, err
	}
	plan := buildTagPlan(resolved, n.Tags)

	positional, kwargs, err := it.resolveArgs(ctx, n.Args, envH)
	if err != nil {
		return value.Null, ctxDefault, err
	}
	cacheKey := value.CanonicalKey(n.Namespace+":"+n.Name, it.primaryInput(positional), kwargs)

	alias := n.Namespace
	if canonical, ok := it.namespaces[alias]; ok {
		alias = canonical
	}

	call := func(ctx context.Context) (value.Value, error) {
		if plan.isolated {
			kwargs = map[string]value.Value{}
		}
		args := namedArgs(positional, kwargs)

		if pl, ok := it.plugins[alias]; ok && pl.HasOperation(n.Name) {
			pctx := PluginContext{
				Provider:        it.provider,
				ImplicitContext: it.implicitContext,
				Trace:           func(msg string) { it.traceLine("plugin:" + alias + ":" + n.Name + " " + msg) },
				Tags:            asProviderTags(resolved),
			}
			return pl.Call(ctx, n.Name, args, pctx)
		}

		if it.mcp != nil {
			if it.mcp.HasServer(alias) {
				return it.mcp.CallTool(ctx, alias, n.Name, args)
			}
			if it.mcp.IsConfigured(alias) {
				if err := it.mcp.Connect(ctx, alias); err != nil {
					return value.Null, errs.New(errs.ToolNotFound, n.Pos(), "failed to connect MCP %q: %v", alias, err)
				}
				return it.mcp.CallTool(ctx, alias, n.Name, args)
			}
		}

		return it.provider.ToolCall(ctx, alias, n.Name, args, asProviderTags(resolved))
	}

	result, effect, err := it.traceOperation(ctx, alias+":"+n.Name, resolved, func(ctx context.Context) (value.Value, contextEffect, error) {
		return it.runWithTags(ctx, plan, cacheKey, envH, call)
	})
	return result, effect, err
}

func namedArgs(positional []value.Value, kwargs map[string]value.Value) map[string]value.Value {
	args := make(map[string]value.Value, len(kwargs)+len(positional))
	for k, v := range kwargs {
		args[k] = v
	}
	for i, v := range positional {
		if i == 0 {
			if _, exists := args["input"]; !exists {
				args["input"] = v
				continue
			}
		}
		args[indexArgName(i)] = v
	}
	return args
}

func indexArgName(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	if i < len(letters) {
		return "arg_" + string(letters[i])
	}
	return "arg"
}

func (it *Interpreter) traceLine(s string) {
	if it.trace != nil {
		it.trace.Record(s)
	}
}
