// Copyright 2025 samber.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://github.com/samber/ro/blob/main/licenses/LICENSE.apache.md
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package flowgraph

import (
	"context"
	"strconv"
)

// Path is a single node of the dataflow graph: a versioned cell plus the
// consumers (observers, downstream Paths) demanding its value, plus the
// reference-counted activator deciding whether the node is "live" at all.
// Every operator (In, Map, SwitchMap, Join, Link) builds one Path.
type Path[T any] struct {
	name      string
	cell      *cell[T]
	observers *observerSet[T]
	children  *childSet[T]
	act       *activator

	// onPanic, when non-nil, receives panics raised by this node's own
	// observers instead of routing them to the package-level
	// OnUnhandledError hook. Nothing in this package sets it, so observer
	// panics go to OnUnhandledError.
	onPanic func(context.Context, error)

	// invalidFilter is Join's predicate_invalid: when set and it reports
	// true for the cell's current value, Add's catch-up dispatch is
	// suppressed (the node is initialized but not yet in a dispatchable
	// state). Every other Path kind leaves this nil.
	invalidFilter func(T) bool

	// debugCAS is Getter's cas_attempt instrumentation hook (spec.md §4.9):
	// called by write and writeNonCont (In.Accept, and In.AcceptCompute
	// under Cont), with success=false when an equal value is dropped.
	// In.Update, In.AcceptCompute under NonCont, and the operator writes of
	// derived nodes (Map, SwitchMap, Join, Link) do not call it. It is a
	// pure observation hook and must not mutate the Path; a panic from it
	// is swallowed rather than allowed to break dispatch.
	debugCAS CASHook[T]
}

// newPath allocates a bare Path. Callers (the operator constructors in
// in.go, map.go, switchmap.go, join.go, link.go) still need to call
// setActivator once they have built their onActivate/onDeactivate closures,
// since those closures typically capture the Path itself.
func newPath[T any](name string, equal EqualFunc[T]) *Path[T] {
	return &Path[T]{
		name:      name,
		cell:      newCell(equal),
		observers: newObserverSet[T](),
		children:  newChildSet[T](),
	}
}

func (p *Path[T]) setActivator(onActivate, onDeactivate func()) {
	p.act = newActivator(onActivate, onDeactivate)
}

// Name returns the node's debug name, as given at construction time.
func (p *Path[T]) Name() string { return p.name }

// String renders a short debug form: name, current version, and active
// count. Intended for logs, not for parsing.
func (p *Path[T]) String() string {
	v := p.cell.load()
	return p.name + debugStateString(v.Version, p.act.activeCount())
}

// IsActive reports whether this node currently has at least one downstream
// consumer (an Observer, a Getter, or an active child Path).
func (p *Path[T]) IsActive() bool {
	return p.act.isActive()
}

// ActiveCount returns the node's current active_count (spec.md §3).
func (p *Path[T]) ActiveCount() int32 {
	return p.act.activeCount()
}

// GetCache returns a Supplier-style closure yielding the node's current
// value, or ErrUninitialized if the node has never produced a value. Unlike
// Add/Remove, calling GetCache does not affect active_count: a cache read
// is a passive peek, not a subscription.
func (p *Path[T]) GetCache() func() (T, error) {
	return func() (T, error) {
		v := p.cell.load()
		if !v.Initialized() {
			var zero T
			return zero, ErrUninitialized
		}
		return v.Value, nil
	}
}

// TryGet is a convenience wrapper over GetCache for a single read.
func (p *Path[T]) TryGet() (T, error) {
	return p.GetCache()()
}

// Add registers obs as a leaf observer of this node, incrementing
// active_count. If the node already holds an initialized value, obs
// receives a synchronous catch-up dispatch of the current value before Add
// returns, matching the "late subscriber sees current state immediately"
// semantics required by spec.md §4.4.
//
// act.incr() runs before obs is registered, on purpose: for a derived node
// (Map, SwitchMap) whose first activation seeds its own cell and dispatches
// that seed synchronously inside onActivate, obs must not already be in
// the observer set while that cascade runs, or it would receive the seed
// value once there and a second time from the explicit catch-up below —
// two deliveries of the same version, which violates the
// strictly-increasing-versions-per-observer invariant.
func (p *Path[T]) Add(ctx context.Context, obs Observer[T]) {
	p.act.incr()
	p.observers.add(obs)
	if v := p.cell.load(); v.Initialized() && (p.invalidFilter == nil || !p.invalidFilter(v.Value)) {
		dispatchSafe(ctx, obs, v.Value, p.onPanic)
	}
}

// Remove unregisters obs, decrementing active_count if it was present.
func (p *Path[T]) Remove(obs Observer[T]) {
	if p.observers.remove(obs) {
		p.act.decr()
	}
}

// addChild registers a downstream derived Path (Map, SwitchMap, Join, Link)
// as a childLink, incrementing active_count. Unlike Add, there is no
// catch-up dispatch here: a child that seeds from the parent's current
// cache does so itself in its onActivate (see map.go's mapNode.onActivate),
// since the write protocol needs the parent's version, which a direct
// childLink.writeV call with the loaded V already carries.
func (p *Path[T]) addChild(c childLink[T]) {
	p.children.add(c)
	p.act.incr()
}

func (p *Path[T]) removeChild(c childLink[T]) {
	if p.children.remove(c) {
		p.act.decr()
	}
}

// write installs newValue unconditionally (CONT policy: always advance,
// regardless of equality to the previous value) and dispatches to every
// current observer and child. Used by In sources configured with CONT.
func (p *Path[T]) write(ctx context.Context, newValue T) V[T] {
	prev := p.cell.load()
	v := p.cell.forceAdvance(newValue)
	callCASHook(p.debugCAS, true, prev, v)
	p.dispatch(ctx, v)
	return v
}

// writeNonCont installs newValue only if it differs (per the node's
// EqualFunc) from the current value, dispatching only on actual advance.
// Used by In sources configured with NON_CONT (the default).
func (p *Path[T]) writeNonCont(ctx context.Context, newValue T) (V[T], bool) {
	for {
		cur := p.cell.load()
		v, outcome := p.cell.casAdvance(cur.Version, newValue)
		if outcome == casStale {
			// Lost the race to a concurrent writer; newValue does not depend
			// on the previous value, so retry against the fresher version.
			continue
		}
		if outcome == casEqual {
			callCASHook(p.debugCAS, false, cur, cur)
			return cur, false
		}
		callCASHook(p.debugCAS, true, cur, v)
		p.dispatch(ctx, v)
		return v, true
	}
}

// update runs a load-compute-casAdvance retry loop with f, dispatching
// exactly once if and when a new version is accepted. Used by In.Update.
func (p *Path[T]) update(ctx context.Context, f func(T) T) V[T] {
	for {
		cur := p.cell.load()
		v, outcome := p.cell.casAdvance(cur.Version, f(cur.Value))
		switch outcome {
		case casAccepted:
			p.dispatch(ctx, v)
			return v
		case casEqual:
			return cur
		}
	}
}

// dispatch fans a freshly-written version out to every current observer
// (bare value) and child (versioned), using a single consistent snapshot of
// each collection.
func (p *Path[T]) dispatch(ctx context.Context, v V[T]) {
	p.observers.dispatch(ctx, v.Value, p.onPanic)
	p.children.dispatch(ctx, v)
}

func debugStateString(version uint64, active int32) string {
	if version == 0 {
		return "<uninitialized>"
	}
	return "<v=" + strconv.FormatUint(version, 10) + " active=" + strconv.FormatInt(int64(active), 10) + ">"
}
