package interp

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/orchidlang/orchid/pkg/ast"
	"github.com/orchidlang/orchid/pkg/errs"
	"github.com/orchidlang/orchid/pkg/session"
	"github.com/orchidlang/orchid/pkg/value"
)

const maxForkDepth = 16

// evalFork implements spec.md §4.5: named branches execute concurrently
// under an errgroup.Group, first error cancels siblings, results collect
// into a Dict keyed by branch name (or a List for unnamed branches). The
// fork-for variant spawns one branch per element of a list.
func (it *Interpreter) evalFork(ctx context.Context, n *ast.ForkExpression, envH value.EnvHandle) (value.Value, error) {
	it.mu.Lock()
	it.forkDepth++
	depth := it.forkDepth
	it.mu.Unlock()
	defer func() {
		it.mu.Lock()
		it.forkDepth--
		it.mu.Unlock()
	}()
	if depth > maxForkDepth {
		return value.Null, errs.New(errs.RuntimeError, n.Pos(), "fork nesting exceeded %d levels", maxForkDepth)
	}

	if n.ForLoop != nil {
		return it.evalForkFor(ctx, n, envH)
	}

	branches := n.Branches
	if n.Count != nil {
		cv, err := it.evalExpr(ctx, n.Count, envH)
		if err != nil {
			return value.Null, err
		}
		branches = repeatBranches(branches, int(cv.Num()))
	}

	named := branchesAreNamed(branches)
	results := make([]value.Value, len(branches))

	g, gctx := errgroup.WithContext(ctx)
	for i, br := range branches {
		i, br := i, br
		g.Go(func() error {
			taskID := session.NewTaskID(it.sessionID)
			it.logger.Debug("fork branch start", "task", session.Short(taskID))
			it.metrics.ForkStarted()
			defer it.metrics.ForkFinished()
			localCtx := it.implicitContext.Clone()
			child := it.arena.Child(envH)
			v, err := it.evalForkExpr(gctx, br.Expr, child, &localCtx)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return value.Null, err
	}

	return it.collectForkResults(branches, results, named), nil
}

func (it *Interpreter) evalForkFor(ctx context.Context, n *ast.ForkExpression, envH value.EnvHandle) (value.Value, error) {
	fl := n.ForLoop
	iter, err := it.evalExpr(ctx, fl.Iter, envH)
	if err != nil {
		return value.Null, err
	}
	if iter.Kind != value.KindList {
		return value.Null, errs.New(errs.TypeError, n.Pos(), "fork-for requires a list, got %s", iter.Kind)
	}
	items := iter.ListItems()
	results := make([]value.Value, len(items))

	g, gctx := errgroup.WithContext(ctx)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			it.metrics.ForkStarted()
			defer it.metrics.ForkFinished()
			localCtx := it.implicitContext.Clone()
			child := it.arena.Child(envH)
			it.arena.Set(child, fl.Var, item)
			v, err := it.execForkBlock(gctx, fl.Body, child, &localCtx)
			if err != nil {
				return err
			}
			results[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return value.Null, err
	}
	return value.List(results), nil
}

// evalForkExpr evaluates a single branch expression (spec.md §4.2's fork
// branch grammar only ever parses an expression, never a block), swapping
// in the branch's local implicit_context around the call the same way
// execForkBlock does around a branch body's statements.
func (it *Interpreter) evalForkExpr(ctx context.Context, node ast.Node, envH value.EnvHandle, localCtx *value.Value) (value.Value, error) {
	it.ctxMu.Lock()
	saved := it.implicitContext
	it.implicitContext = *localCtx
	it.ctxMu.Unlock()

	v, err := it.evalTopLevel(ctx, node, envH)

	it.ctxMu.Lock()
	*localCtx = it.implicitContext
	it.implicitContext = saved
	it.ctxMu.Unlock()
	return v, err
}

// execForkBlock runs a branch body statement by statement, swapping a
// branch-local implicit_context in and out of the shared field around each
// statement so concurrent branches never observe each other's updates
// (spec.md §4.5: "per-branch local implicit context... mask interleaving").
func (it *Interpreter) execForkBlock(ctx context.Context, b *ast.Block, envH value.EnvHandle, localCtx *value.Value) (value.Value, error) {
	result := value.Null
	for _, stmt := range b.Statements {
		it.ctxMu.Lock()
		saved := it.implicitContext
		it.implicitContext = *localCtx
		it.ctxMu.Unlock()

		v, err := it.execute(ctx, stmt, envH)

		it.ctxMu.Lock()
		*localCtx = it.implicitContext
		it.implicitContext = saved
		it.ctxMu.Unlock()

		if err != nil {
			return value.Null, err
		}
		result = v
	}
	return result, nil
}

func branchesAreNamed(branches []ast.ForkBranch) bool {
	for _, b := range branches {
		if b.Name != "" {
			return true
		}
	}
	return false
}

func (it *Interpreter) collectForkResults(branches []ast.ForkBranch, results []value.Value, named bool) value.Value {
	if named {
		keys := make([]string, len(branches))
		values := make(map[string]value.Value, len(branches))
		for i, b := range branches {
			keys[i] = b.Name
			values[b.Name] = results[i]
		}
		return value.DictFrom(keys, values)
	}
	return value.List(results)
}

func repeatBranches(branches []ast.ForkBranch, count int) []ast.ForkBranch {
	if count <= 0 || len(branches) == 0 {
		return branches
	}
	out := make([]ast.ForkBranch, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, branches[i%len(branches)])
	}
	return out
}
