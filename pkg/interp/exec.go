package interp

import (
	"context"

	"github.com/orchidlang/orchid/pkg/ast"
	"github.com/orchidlang/orchid/pkg/errs"
	"github.com/orchidlang/orchid/pkg/value"
)

const maxWhileIterations = 1000
const defaultUntilIterations = 10

// execute dispatches a single statement node, per spec.md §4.3's
// execute(node, env) contract. It returns the statement's value so callers
// (Block execution, control-flow bodies) can treat "the last statement's
// value" as the block's result.
func (it *Interpreter) execute(ctx context.Context, node ast.Node, envH value.EnvHandle) (value.Value, error) {
	switch n := node.(type) {
	case *ast.Block:
		return it.execBlock(ctx, n, envH)
	case *ast.Assignment:
		return it.execAssignment(ctx, n, envH)
	case *ast.PlusAssignment:
		return it.execPlusAssignment(ctx, n, envH)
	case *ast.If:
		return it.execIf(ctx, n, envH)
	case *ast.For:
		return it.execFor(ctx, n, envH)
	case *ast.While:
		return it.execWhile(ctx, n, envH)
	case *ast.Until:
		return it.execUntil(ctx, n, envH)
	case *ast.Try:
		return it.execTry(ctx, n, envH)
	case *ast.Assert:
		return it.execAssert(ctx, n, envH)
	case *ast.Require:
		return it.execRequire(ctx, n, envH)
	case *ast.AgentDef:
		return it.execCallableDef(n.Name, n.Params, n.Body, true, envH)
	case *ast.MacroDef:
		return it.execCallableDef(n.Name, n.Params, n.Body, false, envH)
	case *ast.PermissionsBlock:
		return value.Null, nil
	case *ast.Import:
		return it.execImport(ctx, n, envH)
	case *ast.Use:
		return it.execUse(ctx, n, envH)
	case *ast.Emit:
		return it.execEmit(ctx, n, envH)
	case *ast.On:
		return it.execOn(ctx, n, envH)
	case *ast.ReturnStatement:
		return it.execReturn(ctx, n, envH)
	case *ast.BreakStatement:
		return value.Null, &signal{kind: sigBreak}
	case *ast.AtomicBlock:
		return it.execAtomic(ctx, n, envH)
	default:
		return it.evalTopLevel(ctx, node, envH)
	}
}

// execBlock runs a sequence of statements sharing one lexical scope, per
// spec.md §3's Block semantics; the block's value is its last statement's
// value (Null for an empty block).
func (it *Interpreter) execBlock(ctx context.Context, b *ast.Block, envH value.EnvHandle) (value.Value, error) {
	result := value.Null
	for _, stmt := range b.Statements {
		v, err := it.execute(ctx, stmt, envH)
		if err != nil {
			return value.Null, err
		}
		result = v
	}
	return result, nil
}

// evalTopLevel evaluates a node that is not itself a dedicated statement
// form: a bare expression, or the right-hand side of an assignment, and
// updates implicit_context for it, implementing the invariant in spec.md §3: every
// successful statement that yields a value updates implicit_context, except
// `private` (no update) and `append` (merge) on the specific Operation call
// being evaluated.
func (it *Interpreter) evalTopLevel(ctx context.Context, node ast.Node, envH value.EnvHandle) (value.Value, error) {
	switch n := node.(type) {
	case *ast.Operation:
		v, effect, err := it.dispatchOperation(ctx, n, envH)
		if err != nil {
			return value.Null, err
		}
		it.applyContextEffect(v, effect)
		return v, nil
	case *ast.NamespacedOperation:
		v, effect, err := it.dispatchNamespacedOperation(ctx, n, envH)
		if err != nil {
			return value.Null, err
		}
		it.applyContextEffect(v, effect)
		return v, nil
	default:
		v, err := it.evalExpr(ctx, node, envH)
		if err != nil {
			return value.Null, err
		}
		it.implicitContext = v
		return v, nil
	}
}

type contextEffect int

const (
	ctxDefault contextEffect = iota
	ctxPrivate
	ctxAppend
)

func (it *Interpreter) applyContextEffect(v value.Value, effect contextEffect) {
	switch effect {
	case ctxPrivate:
		// no-op: implicit_context is left untouched.
	case ctxAppend:
		it.implicitContext = value.Merge(it.implicitContext, v)
	default:
		it.implicitContext = v
	}
}

// --- assignment ---

func (it *Interpreter) execAssignment(ctx context.Context, n *ast.Assignment, envH value.EnvHandle) (value.Value, error) {
	for _, t := range n.Targets {
		if it.frozen[t] {
			return value.Null, errs.New(errs.ValidationError, n.Pos(), "binding %q is frozen", t)
		}
	}
	v, err := it.evalTopLevel(ctx, n.Value, envH)
	if err != nil {
		return value.Null, err
	}
	if len(n.Targets) == 1 {
		it.arena.Assign(envH, n.Targets[0], v)
		if hasFrozenTag(n.Value) {
			it.mu.Lock()
			it.frozen[n.Targets[0]] = true
			it.mu.Unlock()
		}
		return v, nil
	}
	// Destructure assignment: `[a,b,c] := expr`. Non-list values destructure
	// to Null for every target.
	items := v.ListItems()
	for i, t := range n.Targets {
		if i < len(items) {
			it.arena.Assign(envH, t, items[i])
		} else {
			it.arena.Assign(envH, t, value.Null)
		}
	}
	return v, nil
}

func (it *Interpreter) execPlusAssignment(ctx context.Context, n *ast.PlusAssignment, envH value.EnvHandle) (value.Value, error) {
	if it.frozen[n.Target] {
		return value.Null, errs.New(errs.ValidationError, n.Pos(), "binding %q is frozen", n.Target)
	}
	rhs, err := it.evalTopLevel(ctx, n.Value, envH)
	if err != nil {
		return value.Null, err
	}
	cur := it.arena.Get(envH, n.Target)
	merged := value.Merge(cur, rhs)
	it.arena.Assign(envH, n.Target, merged)
	it.implicitContext = merged
	return merged, nil
}

// hasFrozenTag reports whether the assigned expression is an Operation call
// carrying a bare `<frozen>` tag, per spec.md §4.9: a frozen binding rejects
// any later reassignment.
func hasFrozenTag(node ast.Node) bool {
	var tags []ast.Tag
	switch n := node.(type) {
	case *ast.Operation:
		tags = n.Tags
	case *ast.NamespacedOperation:
		tags = n.Tags
	default:
		return false
	}
	for _, t := range tags {
		if t.Name == "frozen" {
			return true
		}
	}
	return false
}

// --- control flow ---

func (it *Interpreter) execIf(ctx context.Context, n *ast.If, envH value.EnvHandle) (value.Value, error) {
	cond, err := it.evalExpr(ctx, n.Cond, envH)
	if err != nil {
		return value.Null, err
	}
	if cond.Truthy() {
		return it.execBlock(ctx, n.Then, it.arena.Child(envH))
	}
	for _, elif := range n.Elifs {
		c, err := it.evalExpr(ctx, elif.Cond, envH)
		if err != nil {
			return value.Null, err
		}
		if c.Truthy() {
			return it.execBlock(ctx, elif.Body, it.arena.Child(envH))
		}
	}
	if n.Else != nil {
		return it.execBlock(ctx, n.Else, it.arena.Child(envH))
	}
	return value.Null, nil
}

func (it *Interpreter) execFor(ctx context.Context, n *ast.For, envH value.EnvHandle) (value.Value, error) {
	iter, err := it.evalExpr(ctx, n.Iter, envH)
	if err != nil {
		return value.Null, err
	}
	if iter.Kind != value.KindList {
		return value.Null, errs.New(errs.TypeError, n.Pos(), "for loop requires a list, got %s", iter.Kind)
	}
	result := value.Null
	for _, item := range iter.ListItems() {
		child := it.arena.Child(envH)
		it.arena.Set(child, n.Var, item)
		v, err := it.execBlock(ctx, n.Body, child)
		if err != nil {
			if isBreak(err) {
				break
			}
			return value.Null, err
		}
		result = v
	}
	return result, nil
}

func (it *Interpreter) execWhile(ctx context.Context, n *ast.While, envH value.EnvHandle) (value.Value, error) {
	result := value.Null
	for i := 0; ; i++ {
		if i >= maxWhileIterations {
			return value.Null, errs.New(errs.RuntimeError, n.Pos(), "while loop exceeded %d iterations", maxWhileIterations)
		}
		cond, err := it.evalExpr(ctx, n.Cond, envH)
		if err != nil {
			return value.Null, err
		}
		if !cond.Truthy() {
			break
		}
		v, err := it.execBlock(ctx, n.Body, it.arena.Child(envH))
		if err != nil {
			if isBreak(err) {
				break
			}
			return value.Null, err
		}
		result = v
	}
	return result, nil
}

func (it *Interpreter) execUntil(ctx context.Context, n *ast.Until, envH value.EnvHandle) (value.Value, error) {
	maxIter := defaultUntilIterations
	var fallback ast.Node
	bestEffort := false
	for _, t := range n.Tags {
		switch t.Name {
		case "retry":
			if t.Value != nil {
				v, err := it.evalExpr(ctx, t.Value, envH)
				if err == nil && v.Kind == value.KindNumber {
					maxIter = int(v.Num())
				}
			}
		case "fallback":
			fallback = t.Value
		case "best_effort":
			bestEffort = true
		}
	}
	result := value.Null
	for i := 0; i < maxIter; i++ {
		v, err := it.execBlock(ctx, n.Body, it.arena.Child(envH))
		if err != nil {
			if isBreak(err) {
				return result, nil
			}
			return value.Null, err
		}
		result = v
		cond, err := it.evalExpr(ctx, n.Cond, envH)
		if err != nil {
			return value.Null, err
		}
		if cond.Truthy() {
			return result, nil
		}
	}
	if fallback != nil {
		return it.evalExpr(ctx, fallback, envH)
	}
	if bestEffort {
		return result, nil
	}
	return value.Null, errs.New(errs.ValidationError, n.Pos(), "until exhausted %d iterations without satisfying condition", maxIter)
}

func (it *Interpreter) execTry(ctx context.Context, n *ast.Try, envH value.EnvHandle) (value.Value, error) {
	v, err := it.execBlock(ctx, n.Body, it.arena.Child(envH))
	if err != nil && !isControlSignal(err) {
		if oe, ok := asOrchidError(err); ok {
			for _, ex := range n.Excepts {
				if ex.ErrorType == "" || ex.ErrorType == string(oe.Kind) {
					v, err = it.execBlock(ctx, ex.Body, it.arena.Child(envH))
					break
				}
			}
		}
	}
	if n.Finally != nil {
		if _, ferr := it.execBlock(ctx, n.Finally, it.arena.Child(envH)); ferr != nil && !isControlSignal(ferr) {
			it.logger.Warn("finally block raised", "error", ferr)
		}
	}
	return v, err
}

func (it *Interpreter) execAssert(ctx context.Context, n *ast.Assert, envH value.EnvHandle) (value.Value, error) {
	cond, err := it.evalExpr(ctx, n.Cond, envH)
	if err != nil {
		return value.Null, err
	}
	if cond.Truthy() {
		return value.Boolean(true), nil
	}
	msg := "assertion failed"
	if n.Msg != nil {
		mv, err := it.evalExpr(ctx, n.Msg, envH)
		if err == nil {
			msg = mv.String()
		}
	}
	return value.Null, errs.New(errs.ValidationError, n.Pos(), "%s", msg)
}

func (it *Interpreter) execRequire(ctx context.Context, n *ast.Require, envH value.EnvHandle) (value.Value, error) {
	if op, ok := n.Cond.(*ast.Operation); ok && (op.Name == "MCP" || op.Name == "Plugin") && len(op.Args) == 1 {
		nameVal, err := it.evalExpr(ctx, op.Args[0].Value, envH)
		if err != nil {
			return value.Null, err
		}
		name := nameVal.String()
		available := false
		if op.Name == "MCP" {
			available = it.mcp != nil && it.mcp.IsConfigured(name)
		} else {
			_, available = it.plugins[name]
		}
		if !available {
			return value.Null, errs.New(errs.ToolNotFound, n.Pos(), "%s(%q) is not available", op.Name, name)
		}
		return value.Boolean(true), nil
	}
	cond, err := it.evalExpr(ctx, n.Cond, envH)
	if err != nil {
		return value.Null, err
	}
	if cond.Truthy() {
		return value.Boolean(true), nil
	}
	msg := "permission denied"
	if n.Msg != nil {
		mv, err := it.evalExpr(ctx, n.Msg, envH)
		if err == nil {
			msg = mv.String()
		}
	}
	return value.Null, errs.New(errs.PermissionDenied, n.Pos(), "%s", msg)
}

// --- definitions ---

func (it *Interpreter) execCallableDef(name string, params []ast.ParamDef, body *ast.Block, isAgent bool, envH value.EnvHandle) (value.Value, error) {
	valueParams := make([]value.Param, len(params))
	for i, p := range params {
		valueParams[i] = value.Param{Name: p.Name, Default: p.Default}
	}
	c := &value.Callable{Name: name, Params: valueParams, Body: body, Closure: envH, IsAgent: isAgent}
	cv := value.CallableValue(c)
	it.arena.Set(envH, name, cv)
	if isAgent {
		it.agents[name] = c
	} else {
		it.macros[name] = c
	}
	return cv, nil
}

// --- return ---

func (it *Interpreter) execReturn(ctx context.Context, n *ast.ReturnStatement, envH value.EnvHandle) (value.Value, error) {
	v := value.Null
	if n.Value != nil {
		var err error
		v, err = it.evalTopLevel(ctx, n.Value, envH)
		if err != nil {
			return value.Null, err
		}
	}
	return v, &signal{kind: sigReturn, value: v}
}
