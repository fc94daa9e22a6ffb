package interp

import (
	"context"

	"github.com/orchidlang/orchid/pkg/ast"
	"github.com/orchidlang/orchid/pkg/value"
)

// atomicSnapshot captures everything an atomic block must restore on
// failure, per spec.md §4.7.
type atomicSnapshot struct {
	context       value.Value
	eventBuffer   map[string][]value.Value
	eventHandlers map[string][]eventHandler
	checkpoints   map[string]checkpoint
	listenWaiters []*waiter
}

func (it *Interpreter) snapshotAtomic() atomicSnapshot {
	it.mu.Lock()
	defer it.mu.Unlock()

	eb := make(map[string][]value.Value, len(it.eventBuffer))
	for k, vs := range it.eventBuffer {
		cp := make([]value.Value, len(vs))
		for i, v := range vs {
			cp[i] = v.Clone()
		}
		eb[k] = cp
	}
	eh := make(map[string][]eventHandler, len(it.eventHandlers))
	for k, hs := range it.eventHandlers {
		cp := make([]eventHandler, len(hs))
		copy(cp, hs)
		eh[k] = cp
	}
	cps := make(map[string]checkpoint, len(it.checkpoints))
	for k, c := range it.checkpoints {
		cps[k] = checkpoint{bindings: cloneBindings(c.bindings), context: c.context.Clone()}
	}
	waiters := make([]*waiter, len(it.listenWaiters))
	copy(waiters, it.listenWaiters)

	return atomicSnapshot{
		context:       it.implicitContext.Clone(),
		eventBuffer:   eb,
		eventHandlers: eh,
		checkpoints:   cps,
		listenWaiters: waiters,
	}
}

func (it *Interpreter) restoreAtomic(snap atomicSnapshot) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.implicitContext = snap.context
	it.eventBuffer = snap.eventBuffer
	it.eventHandlers = snap.eventHandlers
	it.checkpoints = snap.checkpoints
	it.listenWaiters = snap.listenWaiters
}

// execAtomic implements spec.md §4.7: snapshot everything observable
// outside the block, run the body in a child scope, commit the scope to
// the parent on normal completion or `return` propagation, and restore the
// full snapshot (discarding the child scope) on any other error.
func (it *Interpreter) execAtomic(ctx context.Context, n *ast.AtomicBlock, envH value.EnvHandle) (value.Value, error) {
	snap := it.snapshotAtomic()
	// Own bindings of every enclosing scope up to the global one, so that
	// assignments reaching outside the block are undone on failure too.
	scopes := map[value.EnvHandle]map[string]value.Value{}
	for h, ok := envH, true; ok; h, ok = it.arena.Parent(h) {
		scopes[h] = cloneBindings(it.arena.OwnBindings(h))
	}
	child := it.arena.Child(envH)

	v, err := it.execBlock(ctx, n.Body, child)
	if err != nil && !isReturnErr(err) {
		it.restoreAtomic(snap)
		for h, b := range scopes {
			it.arena.ReplaceOwnBindings(h, b)
		}
		return value.Null, err
	}
	it.arena.CommitToParent(child)
	return v, err
}

func isReturnErr(err error) bool {
	_, ok := isReturn(err)
	return ok
}
