package interp

import (
	"context"

	"github.com/orchidlang/orchid/pkg/ast"
	"github.com/orchidlang/orchid/pkg/errs"
	"github.com/orchidlang/orchid/pkg/value"
)

// resolveArgs evaluates an operation/call's argument list into positional
// values (in order) and a by-name keyword dict, per spec.md §4.4 "Argument
// resolution".
func (it *Interpreter) resolveArgs(ctx context.Context, args []ast.Arg, envH value.EnvHandle) ([]value.Value, map[string]value.Value, error) {
	var positional []value.Value
	kwargs := make(map[string]value.Value)
	for _, a := range args {
		v, err := it.evalExpr(ctx, a.Value, envH)
		if err != nil {
			return nil, nil, err
		}
		if a.Name == "" {
			positional = append(positional, v)
		} else {
			kwargs[a.Name] = v
		}
	}
	return positional, kwargs, nil
}

// callCallable executes a macro/agent Callable per spec.md §4.6's call
// contract: named arguments bind by name, positional arguments bind left to
// right skipping already-bound names, defaulted parameters fall back to
// their defaults evaluated in the caller's env, unmatched parameters bind
// to Null.
func (it *Interpreter) callCallable(ctx context.Context, c *value.Callable, positional []value.Value, kwargs map[string]value.Value, callerEnv value.EnvHandle) (value.Value, error) {
	if it.opDepth > 256 {
		return value.Null, errs.New(errs.RuntimeError, errs.Position{}, "call depth exceeded (possible infinite recursion)")
	}
	it.opDepth++
	defer func() { it.opDepth-- }()

	callEnv := it.arena.Child(c.Closure)
	bound := make(map[string]bool, len(c.Params))
	for name, v := range kwargs {
		it.arena.Set(callEnv, name, v)
		bound[name] = true
	}
	pi := 0
	for _, p := range c.Params {
		if bound[p.Name] {
			continue
		}
		if pi < len(positional) {
			it.arena.Set(callEnv, p.Name, positional[pi])
			pi++
			continue
		}
		if p.Default != nil {
			defNode, ok := p.Default.(ast.Node)
			if !ok {
				it.arena.Set(callEnv, p.Name, value.Null)
				continue
			}
			dv, err := it.evalExpr(ctx, defNode, callerEnv)
			if err != nil {
				return value.Null, err
			}
			it.arena.Set(callEnv, p.Name, dv)
			continue
		}
		it.arena.Set(callEnv, p.Name, value.Null)
	}

	body, ok := c.Body.(*ast.Block)
	if !ok {
		return value.Null, errs.New(errs.RuntimeError, errs.Position{}, "callable %q has no body", c.Name)
	}
	result, err := it.execBlock(ctx, body, callEnv)
	if err != nil {
		if rv, ok := isReturn(err); ok {
			return rv, nil
		}
		return value.Null, err
	}
	return result, nil
}
