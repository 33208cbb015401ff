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

	"github.com/samber/lo"
)

// MapOptions are the enumerated knobs of Path.map (spec.md §4.4): an
// override for derived-value equality, and predicates to discard an
// incoming parent value before it is even computed, or a computed value
// before it is dispatched.
type MapOptions[T, U any] struct {
	Equal      EqualFunc[U]
	ExcludeIn  func(T) bool
	ExcludeOut func(U) bool
}

// MapOption configures a Map node.
type MapOption[T, U any] func(*MapOptions[T, U])

// WithMapEqual overrides the derived node's equality predicate.
func WithMapEqual[T, U any](eq EqualFunc[U]) MapOption[T, U] {
	return func(o *MapOptions[T, U]) { o.Equal = eq }
}

// WithExcludeIn discards a parent value before f is even applied.
func WithExcludeIn[T, U any](pred func(T) bool) MapOption[T, U] {
	return func(o *MapOptions[T, U]) { o.ExcludeIn = pred }
}

// WithExcludeOut discards a computed value after f is applied, before
// dispatch (the write to the local cell never happens).
func WithExcludeOut[T, U any](pred func(U) bool) MapOption[T, U] {
	return func(o *MapOptions[T, U]) { o.ExcludeOut = pred }
}

// CASHook observes every write attempt on a node (successful or not),
// independent of whether it ultimately dispatches. Used by OpenMap and
// OpenSwitchMap for tests and tracing; a panicking hook must never prevent
// propagation, so it is always invoked through dispatchSafe-style recovery.
type CASHook[U any] func(success bool, prev, next V[U])

func callCASHook[U any](hook CASHook[U], success bool, prev, next V[U]) {
	if hook == nil {
		return
	}
	defer func() { recover() }()
	hook(success, prev, next)
}

type mapNode[T, U any] struct {
	*Path[U]
	parent  *Path[T]
	f       func(T) U
	opts    MapOptions[T, U]
	casHook CASHook[U]
}

// Map creates a derived node whose operator reads the parent's value,
// applies f, and writes the derived cell carrying the parent's transported
// version (spec.md §4.4's map, dispatch protocol in step-by-step form at
// §4.4 "Dispatch protocol").
func Map[T, U any](parent *Path[T], name string, f func(T) U, opts ...MapOption[T, U]) *Path[U] {
	return newMapNode(parent, name, f, nil, opts...).Path
}

// OpenMap is Map plus a user-supplied CAS observer hook, called on every
// write attempt regardless of outcome (spec.md §4.6's open_map, generalized
// here to plain Map since the hook is equally useful without switching).
func OpenMap[T, U any](parent *Path[T], name string, f func(T) U, hook CASHook[U], opts ...MapOption[T, U]) *Path[U] {
	return newMapNode(parent, name, f, hook, opts...).Path
}

func newMapNode[T, U any](parent *Path[T], name string, f func(T) U, hook CASHook[U], opts ...MapOption[T, U]) *mapNode[T, U] {
	var cfg MapOptions[T, U]
	for _, o := range opts {
		o(&cfg)
	}
	p := newPath[U](name, cfg.Equal)
	n := &mapNode[T, U]{Path: p, parent: parent, f: f, opts: cfg, casHook: hook}
	p.setActivator(n.onActivate, n.onDeactivate)
	return n
}

// onActivate is the only place a Map node subscribes to its parent: it
// registers as a childLink (incrementing the parent's active_count) and, if
// the parent already holds an initialized value, seeds its own cell from it
// immediately so a late-activated Map need not wait for the next parent
// write.
func (n *mapNode[T, U]) onActivate() {
	n.parent.addChild(n)
	if v := n.parent.cell.load(); v.Initialized() {
		n.writeV(context.Background(), v)
	}
}

func (n *mapNode[T, U]) onDeactivate() {
	n.parent.removeChild(n)
}

// writeV implements childLink[T]: the dispatch protocol of spec.md §4.4
// applied to a single parent write.
func (n *mapNode[T, U]) writeV(ctx context.Context, v V[T]) {
	if n.opts.ExcludeIn != nil && n.opts.ExcludeIn(v.Value) {
		return
	}
	var y U
	ok := true
	lo.TryCatchWithErrorValue(
		func() error {
			y = n.f(v.Value)
			return nil
		},
		func(e any) {
			ok = false
			OnUnhandledError(ctx, newUserCallbackPanicError(n.name, e))
		},
	)
	if !ok {
		return
	}
	if n.opts.ExcludeOut != nil && n.opts.ExcludeOut(y) {
		return
	}
	prev := n.cell.load()
	next := n.cell.forceAdvanceMax(v.Version, y)
	callCASHook(n.casHook, true, prev, next)
	n.dispatch(ctx, next)
}
