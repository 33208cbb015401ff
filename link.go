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

import "context"

// linkAdapter is the type-erased handle a Link holds on its current parent,
// whatever that parent's value type happens to be (the lift function in
// BindLift absorbs the type difference, so the adapter's own writeV is
// typed over the parent's value type, not T, and cannot appear here).
type linkAdapter[T any] interface {
	unbindFrom()
	source() any
}

// Link is the rebindable-parent node of spec.md §4.8: its parent is a
// mutable slot rather than a fixed graph edge. Bind/Unbind own the node's
// lifecycle directly; unlike Map/SwitchMap/Join, a Link keeps its parent
// subscription for as long as it is bound, independent of its own
// downstream active_count — binding is the explicit lifecycle contract a
// caller of Link opts into.
type Link[T any] struct {
	*Path[T]
	transition spinlock
	current    linkAdapter[T]
}

// NewLink constructs an initially-unbound Link with an uninitialized cell.
func NewLink[T any](name string, equal EqualFunc[T]) *Link[T] {
	p := newPath[T](name, equal)
	l := &Link[T]{Path: p}
	p.setActivator(func() {}, func() {})
	return l
}

// NewLinkWithSeed constructs an initially-unbound Link whose cell already
// holds seed, so a cache read or catch-up Add observes it before any Bind.
func NewLinkWithSeed[T any](name string, equal EqualFunc[T], seed T) *Link[T] {
	l := NewLink[T](name, equal)
	l.cell.forceAdvance(seed)
	return l
}

// IsBound reports whether the Link currently has a parent.
func (l *Link[T]) IsBound() bool {
	l.transition.lock()
	defer l.transition.unlock()
	return l.current != nil
}

// Bind attaches p as this Link's parent. A no-op if already bound to p; if
// bound to a different parent, that parent is unsubscribed first.
func (l *Link[T]) Bind(p *Path[T]) {
	BindLift[T, T](l, p, identity[T])
}

// Subscribe binds p as this Link's parent and returns a Subscription whose
// teardown unbinds it again (only if p is still the current parent at that
// point — a rebind in between makes the teardown a no-op, matching UnbindIf).
func (l *Link[T]) Subscribe(p *Path[T]) Subscription {
	l.Bind(p)
	return NewSubscription(func() { l.UnbindIf(p) })
}

func identity[T any](v T) T { return v }

// Unbind releases the current parent, if any. The cell retains its last
// value but stops receiving updates.
func (l *Link[T]) Unbind() {
	l.transition.lock()
	defer l.transition.unlock()
	l.releaseLocked()
}

// UnbindIf releases the current parent only if it is p (by identity),
// matching spec.md §4.8's unbind(p) overload: a no-op if the Link has since
// been rebound to something else.
func (l *Link[T]) UnbindIf(p *Path[T]) {
	l.transition.lock()
	defer l.transition.unlock()
	if l.current != nil {
		if src, ok := l.current.source().(*Path[T]); ok && src == p {
			l.releaseLocked()
		}
	}
}

func (l *Link[T]) releaseLocked() {
	if l.current == nil {
		return
	}
	l.current.unbindFrom()
	l.current = nil
}

type linkChildLink[T, U any] struct {
	link   *Link[T]
	parent *Path[U]
	lift   func(U) T
}

func (a *linkChildLink[T, U]) unbindFrom() { a.parent.removeChild(a) }
func (a *linkChildLink[T, U]) source() any { return a.parent }

func (a *linkChildLink[T, U]) writeV(ctx context.Context, v V[U]) {
	a.link.transition.lock()
	current := a.link.current == linkAdapter[T](a)
	a.link.transition.unlock()
	if !current {
		return
	}
	y := a.lift(v.Value)
	next := a.link.cell.forceAdvanceMax(v.Version, y)
	a.link.dispatch(context.Background(), next)
}

// BindLift is Link.bind(p, lift): like Bind, but p's value type U need not
// match the Link's own T, translated by lift on every write.
func BindLift[T, U any](l *Link[T], p *Path[U], lift func(U) T) {
	l.transition.lock()
	if l.current != nil {
		if src, ok := l.current.source().(*Path[U]); ok && src == p {
			l.transition.unlock()
			return
		}
		l.current.unbindFrom()
		l.current = nil
	}
	adapter := &linkChildLink[T, U]{link: l, parent: p, lift: lift}
	l.current = adapter
	l.transition.unlock()

	p.addChild(adapter)
	if v := p.cell.load(); v.Initialized() {
		adapter.writeV(context.Background(), v)
	}
}
