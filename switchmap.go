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

	"go.uber.org/zap"
)

// dummyPath returns the sentinel Path of spec.md §4.6's get_dummy(): its
// cell never initializes and its activator is inert (addChild/removeChild
// on it are no-ops as far as upstream demand is concerned, since nothing
// ever calls incr/decr on its activator from outside this package). Binding
// it as a SwitchMap's inner means the switch momentarily holds no real
// inner subscription.
func dummyPath[B any]() *Path[B] {
	p := newPath[B]("<dummy>", nil)
	p.setActivator(func() {}, func() {})
	return p
}

// innerLink is the childLink a switchMapNode registers on its current
// inner Path. It is tagged with the outer version that created it so a
// write arriving from a since-superseded inner can be recognized and
// dropped (spec.md §4.6 "Tie-break").
type innerLink[A, B any] struct {
	owner *switchMapNode[A, B]
	tag   uint64
}

func (l *innerLink[A, B]) writeV(ctx context.Context, v V[B]) {
	l.owner.onInnerWrite(ctx, l, v)
}

// outerLink is the childLink a switchMapNode registers on its outer Path.
type outerLink[A, B any] struct {
	owner *switchMapNode[A, B]
}

func (l *outerLink[A, B]) writeV(ctx context.Context, v V[A]) {
	l.owner.onOuterWrite(ctx, v)
}

type switchMapNode[A, B any] struct {
	*Path[B]
	outer   *Path[A]
	g       func(A) *Path[B]
	casHook CASHook[B]

	// transition guards the Idle/Bound/Switching bookkeeping fields below:
	// an outer write holds it while reading and swapping them, and runs the
	// removeChild/addChild calls of the inner subscription outside it (see
	// onOuterWrite). Inner writes only need it for the brief tag check in
	// onInnerWrite, not for the whole recompute.
	transition spinlock

	outerLinkRef *outerLink[A, B]
	inner        *Path[B]
	innerLinkRef *innerLink[A, B]
	outerVersion uint64 // version tag of the outer write that selected `inner`
	bound        bool

	// lastInnerApplied is the highest inner version already written through
	// to the local cell for the current inner subscription, reset to 0 on
	// every switch. It exists because seeding a freshly-bound inner can
	// reach applyWrite twice for the same version: once reentrantly (the
	// inner's own onActivate dispatches to its freshly added children,
	// which includes our innerLink, before addChild below even returns) and
	// once from the explicit post-addChild seed check. Gating on version
	// rather than skipping the explicit check outright also covers the
	// case where the inner was already active (no activation-time cascade
	// at all), which still needs the explicit check to see its value.
	lastInnerApplied uint64
}

// SwitchMap implements spec.md §4.6: src.switch_map(g) yields a Path<B>
// whose current parent for B-values is whatever Path g returns for src's
// latest A.
func SwitchMap[A, B any](src *Path[A], name string, g func(A) *Path[B], opts ...MapOption[A, B]) *Path[B] {
	return newSwitchMapNode(src, name, g, nil, opts...).Path
}

// OpenSwitchMap is SwitchMap plus a CAS observer hook called on every write
// attempt to the derived cell (spec.md §4.6's open_switch_map).
func OpenSwitchMap[A, B any](src *Path[A], name string, g func(A) *Path[B], hook CASHook[B], opts ...MapOption[A, B]) *Path[B] {
	return newSwitchMapNode(src, name, g, hook, opts...).Path
}

func newSwitchMapNode[A, B any](src *Path[A], name string, g func(A) *Path[B], hook CASHook[B], opts ...MapOption[A, B]) *switchMapNode[A, B] {
	var cfg MapOptions[A, B]
	for _, o := range opts {
		o(&cfg)
	}
	p := newPath[B](name, cfg.Equal)
	n := &switchMapNode[A, B]{Path: p, outer: src, g: g, casHook: hook, inner: dummyPath[B]()}
	p.setActivator(n.onActivate, n.onDeactivate)
	return n
}

// onActivate subscribes to the outer Path and, if it already holds an
// initialized value, immediately performs the same switch-and-seed work as
// a live outer write would (spec.md §4.3: "on_activate ... seeds its cell
// from [parents]"). Without this a late-activated SwitchMap (for example
// one freshly constructed inside another SwitchMap's g) would sit on an
// uninitialized cell until the outer happened to write again.
func (n *switchMapNode[A, B]) onActivate() {
	n.outerLinkRef = &outerLink[A, B]{owner: n}
	n.outer.addChild(n.outerLinkRef)
	if v := n.outer.cell.load(); v.Initialized() {
		n.onOuterWrite(context.Background(), v)
	}
}

func (n *switchMapNode[A, B]) onDeactivate() {
	n.transition.lock()
	wasBound := n.bound
	oldInner, oldLink := n.inner, n.innerLinkRef
	n.inner = dummyPath[B]()
	n.innerLinkRef = nil
	n.bound = false
	n.transition.unlock()

	if wasBound {
		oldInner.removeChild(oldLink)
	}
	n.outer.removeChild(n.outerLinkRef)
	n.outerLinkRef = nil
}

// onOuterWrite is the "On outer write" transition of spec.md §4.6: it tears
// down the old inner subscription (if any), resolves the new inner via g,
// subscribes to it, and seeds the local cell from its current value.
//
// The field mutation is only held under `transition` for as long as it
// takes to swap the bookkeeping; removeChild/addChild run outside the lock,
// because addChild on a freshly-activated inner can cascade synchronously
// back into this very node's onInnerWrite (when the inner is itself a
// SwitchMap or Map whose own activation immediately dispatches to its new
// children) — holding the lock across that call would deadlock a spinlock,
// which has no notion of reentrancy.
func (n *switchMapNode[A, B]) onOuterWrite(ctx context.Context, v V[A]) {
	n.transition.lock()
	if v.Version <= n.outerVersion && n.bound {
		// A stale/duplicate outer delivery (can happen if Add's catch-up
		// races a live write); never unwind an already-current binding.
		n.transition.unlock()
		return
	}
	wasBound := n.bound
	oldInner, oldLink := n.inner, n.innerLinkRef
	n.bound = false
	n.transition.unlock()

	if wasBound {
		oldInner.removeChild(oldLink)
	}

	newInner := n.g(v.Value)
	if newInner == nil {
		newInner = dummyPath[B]()
	}
	link := &innerLink[A, B]{owner: n, tag: v.Version}

	n.transition.lock()
	n.inner = newInner
	n.innerLinkRef = link
	n.outerVersion = v.Version
	n.lastInnerApplied = 0
	n.bound = true
	n.transition.unlock()

	newInner.addChild(link)

	debugLog(n.Name(), "switch_map.transition",
		zap.Uint64("outer_version", v.Version), zap.String("inner", newInner.Name()))

	if iv := newInner.cell.load(); iv.Initialized() {
		n.applyWrite(ctx, iv.Version, iv.Value)
	}
}

// onInnerWrite is the "On inner write" transition: accepted only while l is
// still the current inner subscription (identity) and its tag has not been
// superseded by a later outer switch.
func (n *switchMapNode[A, B]) onInnerWrite(ctx context.Context, l *innerLink[A, B], v V[B]) {
	n.transition.lock()
	current := n.bound && n.innerLinkRef == l && l.tag >= n.outerVersion
	n.transition.unlock()
	if !current {
		return
	}
	n.applyWrite(ctx, v.Version, v.Value)
}

// applyWrite forwards an inner value to the local cell, deduped against
// lastInnerApplied so the reentrant seed-time cascade and the explicit
// post-addChild seed check in onOuterWrite (see its doc comment) cannot
// both dispatch the same inner version.
func (n *switchMapNode[A, B]) applyWrite(ctx context.Context, hint uint64, value B) {
	n.transition.lock()
	if hint <= n.lastInnerApplied {
		n.transition.unlock()
		return
	}
	n.lastInnerApplied = hint
	n.transition.unlock()

	prev := n.cell.load()
	next := n.cell.forceAdvanceMax(hint, value)
	callCASHook(n.casHook, true, prev, next)
	n.dispatch(ctx, next)
}
