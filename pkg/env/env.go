// Package env implements Orchid's lexically chained scopes as an arena of
// nodes addressed by stable handles, so that Callables (pkg/value) can hold
// a handle rather than an owning pointer into the chain. Module environments
// live for the session and are never collected; no cycle-breaking GC is
// required (see DESIGN.md, "Closures and reference cycles").
package env

import "github.com/orchidlang/orchid/pkg/value"

// Arena owns every scope created during a session.
type Arena struct {
	nodes []*scope
}

type scope struct {
	bindings map[string]value.Value
	parent   value.EnvHandle // -1 for the root
}

const noParent value.EnvHandle = -1

// NewArena creates an arena with a single root (global) scope and returns
// its handle.
func NewArena() (*Arena, value.EnvHandle) {
	a := &Arena{}
	root := a.alloc(noParent)
	return a, root
}

func (a *Arena) alloc(parent value.EnvHandle) value.EnvHandle {
	a.nodes = append(a.nodes, &scope{bindings: make(map[string]value.Value), parent: parent})
	return value.EnvHandle(len(a.nodes) - 1)
}

func (a *Arena) node(h value.EnvHandle) *scope {
	return a.nodes[int(h)]
}

// Child creates a new empty scope with h as parent.
func (a *Arena) Child(h value.EnvHandle) value.EnvHandle {
	return a.alloc(h)
}

// Get walks the chain from h returning the bound value, or Null if unbound
// anywhere in the chain (per the spec's `get` contract).
func (a *Arena) Get(h value.EnvHandle, name string) value.Value {
	for cur := h; cur != noParent; cur = a.node(cur).parent {
		if v, ok := a.node(cur).bindings[name]; ok {
			return v
		}
	}
	return value.Null
}

// Lookup is like Get but also reports whether the name was bound anywhere
// in the chain, distinguishing "bound to Null" from "unbound".
func (a *Arena) Lookup(h value.EnvHandle, name string) (value.Value, bool) {
	for cur := h; cur != noParent; cur = a.node(cur).parent {
		if v, ok := a.node(cur).bindings[name]; ok {
			return v, true
		}
	}
	return value.Null, false
}

// Set writes to the scope h directly (no chain walk); it binds loop
// variables, parameters and imported names. `:=` goes through Assign.
func (a *Arena) Set(h value.EnvHandle, name string, v value.Value) {
	a.node(h).bindings[name] = v
}

// Assign walks the chain looking for an existing binding and updates that
// scope; if none is found, it writes to h (the current scope), matching the
// spec's `assign` contract used by `:=` and `+=`.
func (a *Arena) Assign(h value.EnvHandle, name string, v value.Value) {
	for cur := h; cur != noParent; cur = a.node(cur).parent {
		if _, ok := a.node(cur).bindings[name]; ok {
			a.node(cur).bindings[name] = v
			return
		}
	}
	a.Set(h, name, v)
}

// Has reports whether name is bound in scope h directly, without walking
// the parent chain.
func (a *Arena) Has(h value.EnvHandle, name string) bool {
	_, ok := a.node(h).bindings[name]
	return ok
}

// OwnBindings returns a copy of the scope's own bindings (not the chain).
func (a *Arena) OwnBindings(h value.EnvHandle) map[string]value.Value {
	out := make(map[string]value.Value, len(a.node(h).bindings))
	for k, v := range a.node(h).bindings {
		out[k] = v
	}
	return out
}

// ReplaceOwnBindings overwrites h's own bindings wholesale; used to restore
// a scope snapshot on atomic-block rollback.
func (a *Arena) ReplaceOwnBindings(h value.EnvHandle, bindings map[string]value.Value) {
	cp := make(map[string]value.Value, len(bindings))
	for k, v := range bindings {
		cp[k] = v
	}
	a.node(h).bindings = cp
}

// CommitToParent copies h's own bindings into its parent scope, per the
// spec's `commit_to_parent`. It is a no-op for the root scope.
func (a *Arena) CommitToParent(h value.EnvHandle) {
	n := a.node(h)
	if n.parent == noParent {
		return
	}
	parent := a.node(n.parent)
	for k, v := range n.bindings {
		parent.bindings[k] = v
	}
}

// Parent returns h's parent handle, or false if h is the root.
func (a *Arena) Parent(h value.EnvHandle) (value.EnvHandle, bool) {
	p := a.node(h).parent
	return p, p != noParent
}
