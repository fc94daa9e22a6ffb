package interp

import (
	"context"

	"github.com/orchidlang/orchid/pkg/ast"
	"github.com/orchidlang/orchid/pkg/value"
)

// execEmit implements spec.md §4.8: prefer the oldest queued `listen()`
// waiter across all event names; else invoke every registered `on` handler
// in registration order, each in its own child scope with the event bound;
// else buffer, bounded at maxEventBuffer with oldest-drop.
func (it *Interpreter) execEmit(ctx context.Context, n *ast.Emit, envH value.EnvHandle) (value.Value, error) {
	payload := value.Null
	if n.Payload != nil {
		v, err := it.evalExpr(ctx, n.Payload, envH)
		if err != nil {
			return value.Null, err
		}
		payload = v
	}
	ev := value.EventValue(&value.Event{Name: n.Name, Payload: payload})

	it.mu.Lock()
	var w *waiter
	if len(it.listenWaiters) > 0 {
		w = it.listenWaiters[0]
		it.listenWaiters = it.listenWaiters[1:]
	}
	handlers := append([]eventHandler(nil), it.eventHandlers[n.Name]...)
	it.mu.Unlock()

	if w != nil {
		w.resolve <- ev
		return value.Null, nil
	}

	if len(handlers) > 0 {
		for _, h := range handlers {
			child := it.arena.Child(h.env)
			it.arena.Set(child, h.varName, ev)
			if _, err := it.execBlock(ctx, h.body, child); err != nil && !isControlSignal(err) {
				return value.Null, err
			}
		}
		return value.Null, nil
	}

	it.mu.Lock()
	buf := it.eventBuffer[n.Name]
	buf = append(buf, payload)
	if len(buf) > maxEventBuffer {
		buf = buf[len(buf)-maxEventBuffer:]
	}
	it.eventBuffer[n.Name] = buf
	it.mu.Unlock()
	return value.Null, nil
}

// execOn registers a handler and immediately drains any buffered payloads
// for that event name, in arrival order, per spec.md §4.8.
func (it *Interpreter) execOn(ctx context.Context, n *ast.On, envH value.EnvHandle) (value.Value, error) {
	it.mu.Lock()
	it.eventHandlers[n.Name] = append(it.eventHandlers[n.Name], eventHandler{varName: n.Var, body: n.Body, env: envH})
	buffered := it.eventBuffer[n.Name]
	delete(it.eventBuffer, n.Name)
	it.mu.Unlock()

	for _, payload := range buffered {
		child := it.arena.Child(envH)
		it.arena.Set(child, n.Var, value.EventValue(&value.Event{Name: n.Name, Payload: payload}))
		if _, err := it.execBlock(ctx, n.Body, child); err != nil && !isControlSignal(err) {
			return value.Null, err
		}
	}
	return value.Null, nil
}

// evalListen implements `listen()`: return the oldest buffered event of the
// first non-empty name found (names are visited in Go map order, which is
// not defined; within a name, queue order), or
// cooperatively block on a single-shot waiter until `emit` resolves it.
func (it *Interpreter) evalListen(ctx context.Context, envH value.EnvHandle) (value.Value, error) {
	it.mu.Lock()
	for name, buf := range it.eventBuffer {
		if len(buf) > 0 {
			payload := buf[0]
			it.eventBuffer[name] = buf[1:]
			it.mu.Unlock()
			return value.EventValue(&value.Event{Name: name, Payload: payload}), nil
		}
	}
	w := &waiter{resolve: make(chan value.Value, 1)}
	it.listenWaiters = append(it.listenWaiters, w)
	it.mu.Unlock()

	select {
	case v := <-w.resolve:
		return v, nil
	case <-ctx.Done():
		return value.Null, ctx.Err()
	}
}

// evalStream implements `Stream(source)` per spec.md §4.8: a List source
// passes through unchanged, a string source drains every buffered event for
// that name into a List of Events, anything else wraps as a single-element
// List.
func (it *Interpreter) evalStream(ctx context.Context, n *ast.StreamExpression, envH value.EnvHandle) (value.Value, error) {
	src, err := it.evalExpr(ctx, n.Source, envH)
	if err != nil {
		return value.Null, err
	}
	switch src.Kind {
	case value.KindList:
		return src, nil
	case value.KindString:
		name := src.Str()
		it.mu.Lock()
		buf := it.eventBuffer[name]
		delete(it.eventBuffer, name)
		it.mu.Unlock()
		out := make([]value.Value, len(buf))
		for i, payload := range buf {
			out[i] = value.EventValue(&value.Event{Name: name, Payload: payload})
		}
		return value.List(out), nil
	default:
		return value.List([]value.Value{src}), nil
	}
}
