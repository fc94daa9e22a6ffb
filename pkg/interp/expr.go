package interp

import (
	"context"
	"strings"

	"github.com/orchidlang/orchid/pkg/ast"
	"github.com/orchidlang/orchid/pkg/errs"
	"github.com/orchidlang/orchid/pkg/value"
)

// evalExpr dispatches an expression node. Operation/NamespacedOperation
// nodes update implicit_context as a side effect of dispatch itself (via
// evalOperationNode), matching spec.md §4.9's "on success update ...
// implicit-context policy" being a property of operation dispatch rather
// than of statement placement.
func (it *Interpreter) evalExpr(ctx context.Context, node ast.Node, envH value.EnvHandle) (value.Value, error) {
	switch n := node.(type) {
	case *ast.StringLiteral:
		return value.String(n.Value), nil
	case *ast.InterpolatedString:
		return it.evalInterpolated(ctx, n, envH)
	case *ast.NumberLiteral:
		return value.NumberWithUnit(n.Value, value.Unit(n.Unit)), nil
	case *ast.BooleanLiteral:
		return value.Boolean(n.Value), nil
	case *ast.NullLiteral:
		return value.Null, nil
	case *ast.ListLiteral:
		items := make([]value.Value, len(n.Items))
		for i, it2 := range n.Items {
			v, err := it.evalExpr(ctx, it2, envH)
			if err != nil {
				return value.Null, err
			}
			items[i] = v
		}
		return value.List(items), nil
	case *ast.DictLiteral:
		keys := make([]string, len(n.Entries))
		values := make(map[string]value.Value, len(n.Entries))
		for i, e := range n.Entries {
			v, err := it.evalExpr(ctx, e.Value, envH)
			if err != nil {
				return value.Null, err
			}
			keys[i] = e.Key
			values[e.Key] = v
		}
		return value.DictFrom(keys, values), nil
	case *ast.Identifier:
		return it.arena.Get(envH, n.Name), nil
	case *ast.ImplicitContext:
		return it.implicitContext, nil
	case *ast.Operation:
		return it.evalOperationNode(ctx, n, envH)
	case *ast.NamespacedOperation:
		return it.evalOperationNode(ctx, n, envH)
	case *ast.BinaryExpr:
		return it.evalBinary(ctx, n, envH)
	case *ast.UnaryExpr:
		return it.evalUnary(ctx, n, envH)
	case *ast.MemberExpr:
		return it.evalMember(ctx, n, envH)
	case *ast.IndexExpr:
		return it.evalIndex(ctx, n, envH)
	case *ast.CallExpr:
		return it.evalCall(ctx, n, envH)
	case *ast.ForkExpression:
		return it.evalFork(ctx, n, envH)
	case *ast.ListenExpression:
		return it.evalListen(ctx, envH)
	case *ast.StreamExpression:
		return it.evalStream(ctx, n, envH)
	default:
		return value.Null, errs.New(errs.RuntimeError, node.Pos(), "unsupported expression node %T", node)
	}
}

func (it *Interpreter) evalOperationNode(ctx context.Context, node ast.Node, envH value.EnvHandle) (value.Value, error) {
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
	}
	return value.Null, errs.New(errs.RuntimeError, node.Pos(), "not an operation node")
}

func (it *Interpreter) evalInterpolated(ctx context.Context, n *ast.InterpolatedString, envH value.EnvHandle) (value.Value, error) {
	var sb strings.Builder
	for _, part := range n.Parts {
		if part.Expr == nil {
			sb.WriteString(part.Literal)
			continue
		}
		v, err := it.evalExpr(ctx, part.Expr, envH)
		if err != nil {
			return value.Null, err
		}
		sb.WriteString(v.String())
	}
	return value.String(sb.String()), nil
}

func (it *Interpreter) evalUnary(ctx context.Context, n *ast.UnaryExpr, envH value.EnvHandle) (value.Value, error) {
	v, err := it.evalExpr(ctx, n.Operand, envH)
	if err != nil {
		return value.Null, err
	}
	switch n.Op {
	case "not":
		return value.Boolean(!v.Truthy()), nil
	case "-":
		if v.Kind != value.KindNumber {
			return value.Null, errs.New(errs.TypeError, n.Pos(), "unary - requires a number")
		}
		return value.NumberWithUnit(-v.Num(), v.Unit()), nil
	}
	return value.Null, errs.New(errs.RuntimeError, n.Pos(), "unknown unary operator %q", n.Op)
}

func (it *Interpreter) evalMember(ctx context.Context, n *ast.MemberExpr, envH value.EnvHandle) (value.Value, error) {
	target, err := it.evalExpr(ctx, n.Target, envH)
	if err != nil {
		return value.Null, err
	}
	switch target.Kind {
	case value.KindDict:
		v, ok := target.DictGet(n.Name)
		if !ok {
			return value.Null, nil
		}
		return v, nil
	case value.KindEvent:
		switch n.Name {
		case "name":
			return value.String(target.Event().Name), nil
		case "payload":
			return target.Event().Payload, nil
		}
		return value.Null, nil
	case value.KindAsset:
		a := target.Asset()
		switch n.Name {
		case "mediaType":
			return value.String(string(a.MediaType)), nil
		case "mime":
			return value.String(a.Mime), nil
		case "description":
			return value.String(a.Description), nil
		case "path":
			return value.String(a.Path), nil
		case "url":
			return value.String(a.URL), nil
		}
		return value.Null, nil
	default:
		return value.Null, nil
	}
}

func (it *Interpreter) evalIndex(ctx context.Context, n *ast.IndexExpr, envH value.EnvHandle) (value.Value, error) {
	target, err := it.evalExpr(ctx, n.Target, envH)
	if err != nil {
		return value.Null, err
	}
	idx, err := it.evalExpr(ctx, n.Index, envH)
	if err != nil {
		return value.Null, err
	}
	switch target.Kind {
	case value.KindList:
		items := target.ListItems()
		i := int(idx.Num())
		if i < 0 {
			i += len(items)
		}
		if i < 0 || i >= len(items) {
			return value.Null, errs.New(errs.RuntimeError, n.Pos(), "list index %d out of range", i)
		}
		return items[i], nil
	case value.KindDict:
		v, _ := target.DictGet(idx.String())
		return v, nil
	case value.KindString:
		runes := []rune(target.Str())
		i := int(idx.Num())
		if i < 0 {
			i += len(runes)
		}
		if i < 0 || i >= len(runes) {
			return value.Null, errs.New(errs.RuntimeError, n.Pos(), "string index %d out of range", i)
		}
		return value.String(string(runes[i])), nil
	default:
		return value.Null, nil
	}
}

// evalCall handles `expr(args)` where expr is a resolved Callable value
// (e.g. a callable stored in a variable or returned by another call),
// distinct from the Name(args) Operation call form handled by
// dispatchOperation.
func (it *Interpreter) evalCall(ctx context.Context, n *ast.CallExpr, envH value.EnvHandle) (value.Value, error) {
	callee, err := it.evalExpr(ctx, n.Callee, envH)
	if err != nil {
		return value.Null, err
	}
	if callee.Kind != value.KindCallable {
		return value.Null, errs.New(errs.TypeError, n.Pos(), "value is not callable")
	}
	positional, kwargs, err := it.resolveArgs(ctx, n.Args, envH)
	if err != nil {
		return value.Null, err
	}
	return it.callCallable(ctx, callee.Callable(), positional, kwargs, envH)
}

func (it *Interpreter) evalBinary(ctx context.Context, n *ast.BinaryExpr, envH value.EnvHandle) (value.Value, error) {
	switch n.Op {
	case ">>":
		left, err := it.evalExpr(ctx, n.Left, envH)
		if err != nil {
			return value.Null, err
		}
		it.implicitContext = left
		return it.evalExpr(ctx, n.Right, envH)
	case "|":
		left, lerr := func() (v value.Value, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = errs.New(errs.RuntimeError, n.Pos(), "panic: %v", r)
				}
			}()
			return it.evalExpr(ctx, n.Left, envH)
		}()
		if lerr == nil && !left.IsNull() && left.Truthy() {
			return left, nil
		}
		return it.evalExpr(ctx, n.Right, envH)
	case "or":
		left, err := it.evalExpr(ctx, n.Left, envH)
		if err != nil {
			return value.Null, err
		}
		if left.Truthy() {
			return left, nil
		}
		return it.evalExpr(ctx, n.Right, envH)
	case "and":
		left, err := it.evalExpr(ctx, n.Left, envH)
		if err != nil {
			return value.Null, err
		}
		if !left.Truthy() {
			return left, nil
		}
		return it.evalExpr(ctx, n.Right, envH)
	}

	left, err := it.evalExpr(ctx, n.Left, envH)
	if err != nil {
		return value.Null, err
	}
	right, err := it.evalExpr(ctx, n.Right, envH)
	if err != nil {
		return value.Null, err
	}
	switch n.Op {
	case "+":
		return value.Merge(left, right), nil
	case "-":
		return it.evalMinus(ctx, left, right, n.Pos())
	case "*":
		return evalStar(left, right), nil
	case "/":
		return it.evalSlash(ctx, left, right, n.Pos())
	case "in":
		return value.Boolean(value.In(left, right)), nil
	case "==":
		return value.Boolean(value.Equal(left, right)), nil
	case "!=":
		return value.Boolean(!value.Equal(left, right)), nil
	case "<", "<=", ">", ">=":
		return evalCompare(n.Op, left, right), nil
	}
	return value.Null, errs.New(errs.RuntimeError, n.Pos(), "unknown binary operator %q", n.Op)
}

// evalMinus implements `-` per spec.md §4.4: number-number is arithmetic
// subtraction, string-string delegates to the Provider's semantic Subtract,
// mixed types yield Null.
func (it *Interpreter) evalMinus(ctx context.Context, left, right value.Value, pos errs.Position) (value.Value, error) {
	switch {
	case left.Kind == value.KindNumber && right.Kind == value.KindNumber:
		return value.Number(left.Num() - right.Num()), nil
	case left.Kind == value.KindString && right.Kind == value.KindString:
		return it.provider.Subtract(ctx, left.Str(), right.Str())
	default:
		return value.Null, nil
	}
}

// evalStar implements `*`: number*number is arithmetic, string*string is
// raw concatenation (no separator, unlike merge's `+`), mixed types Null.
func evalStar(left, right value.Value) value.Value {
	switch {
	case left.Kind == value.KindNumber && right.Kind == value.KindNumber:
		return value.Number(left.Num() * right.Num())
	case left.Kind == value.KindString && right.Kind == value.KindString:
		return value.String(left.Str() + right.Str())
	default:
		return value.Null
	}
}

// evalSlash implements `/`: number/number is arithmetic (may yield ±Inf or
// NaN), string/string removes every occurrence of the right substring from
// the left (or returns the left unchanged if absent), mixed types Null.
func (it *Interpreter) evalSlash(ctx context.Context, left, right value.Value, pos errs.Position) (value.Value, error) {
	switch {
	case left.Kind == value.KindNumber && right.Kind == value.KindNumber:
		return value.Number(left.Num() / right.Num()), nil
	case left.Kind == value.KindString && right.Kind == value.KindString:
		return value.String(strings.ReplaceAll(left.Str(), right.Str(), "")), nil
	default:
		return value.Null, nil
	}
}

func evalCompare(op string, left, right value.Value) value.Value {
	a, b := left.Num(), right.Num()
	switch op {
	case "<":
		return value.Boolean(a < b)
	case "<=":
		return value.Boolean(a <= b)
	case ">":
		return value.Boolean(a > b)
	case ">=":
		return value.Boolean(a >= b)
	}
	return value.Boolean(false)
}
