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
	"sync/atomic"
)

// GetterOption configures a Getter's instrumentation hooks.
type GetterOption[T any] func(*Getter[T])

// WithOnStateChange installs the on_state_change(is_active) hook, called
// after every Activate/Deactivate transition. It must not mutate the
// underlying Path.
func WithOnStateChange[T any](fn func(isActive bool)) GetterOption[T] {
	return func(g *Getter[T]) { g.onStateChange = fn }
}

// WithCASAttempt installs the Path's cas_attempt hook (spec.md §4.9),
// called on every In.Accept write attempt to the Path this Getter wraps
// (and In.AcceptCompute under Cont), whether or not it was this Getter that
// triggered it. Writes made by In.Update, by In.AcceptCompute under NonCont,
// and by derived-node operators do not reach it.
func WithCASAttempt[T any](hook CASHook[T]) GetterOption[T] {
	return func(g *Getter[T]) { g.path.debugCAS = hook }
}

// Getter is the imperative pull/peek handle of spec.md §4.9: it wraps a
// Path and translates its activation into a plain observer registration.
type Getter[T any] struct {
	path          *Path[T]
	backing       Observer[T]
	active        atomic.Bool
	onStateChange func(isActive bool)
}

// NewGetter wraps path in a Getter, initially inactive.
func NewGetter[T any](path *Path[T], opts ...GetterOption[T]) *Getter[T] {
	g := &Getter[T]{path: path}
	g.backing = ObserverFunc[T](func(T) {})
	for _, o := range opts {
		o(g)
	}
	return g
}

// Activate registers the Getter's backing observer with the Path,
// incrementing its active_count. A no-op if already active.
func (g *Getter[T]) Activate(ctx context.Context) {
	if g.active.CompareAndSwap(false, true) {
		g.path.Add(ctx, g.backing)
		if g.onStateChange != nil {
			g.onStateChange(true)
		}
	}
}

// Deactivate removes the Getter's backing observer. A no-op if already
// inactive.
func (g *Getter[T]) Deactivate() {
	if g.active.CompareAndSwap(true, false) {
		g.path.Remove(g.backing)
		if g.onStateChange != nil {
			g.onStateChange(false)
		}
	}
}

// IsActive reports whether this Getter is currently activated.
func (g *Getter[T]) IsActive() bool { return g.active.Load() }

// Subscribe activates the Getter and returns a Subscription whose teardown
// deactivates it. Useful for composing a Getter's lifetime with other
// resources via Subscription.Add/AddUnsubscribable.
func (g *Getter[T]) Subscribe(ctx context.Context) Subscription {
	g.Activate(ctx)
	return NewSubscription(g.Deactivate)
}

// Get returns the Path's current value. Requires the Getter to be active;
// returns ErrInactive otherwise, or ErrUninitialized if the Path has never
// produced a value.
func (g *Getter[T]) Get() (T, error) {
	var zero T
	if !g.active.Load() {
		return zero, ErrInactive
	}
	v := g.path.cell.load()
	if !v.Initialized() {
		return zero, ErrUninitialized
	}
	return v.Value, nil
}

// PassiveGet returns the Path's current value without activating the
// Getter. Fails with ErrInactive if the Path has never been written to
// (version 0) — the Path has, in effect, never been activated by anyone.
func (g *Getter[T]) PassiveGet() (T, error) {
	var zero T
	v := g.path.cell.load()
	if !v.Initialized() {
		return zero, ErrInactive
	}
	return v.Value, nil
}

// First registers a one-shot observer: consumer runs on the next dispatch
// (or immediately, as catch-up, if the Path already holds a value), then
// the observer is removed automatically.
func (g *Getter[T]) First(ctx context.Context, consumer func(T)) {
	var obs Observer[T]
	obs = ObserverFunc[T](func(v T) {
		g.path.Remove(obs)
		consumer(v)
	})
	g.path.Add(ctx, obs)
}

// PassiveNext registers a one-shot observer without activating anything:
// it requires the Path to already be active (someone else is holding
// demand), failing synchronously with ErrInactive otherwise.
func (g *Getter[T]) PassiveNext(ctx context.Context, consumer func(T)) error {
	if !g.path.IsActive() {
		return ErrInactive
	}
	g.First(ctx, consumer)
	return nil
}
