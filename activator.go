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
	"runtime"
	"sync/atomic"
)

// spinlock is a CAS-based mutual-exclusion primitive used to serialize a
// short, non-blocking critical section (an activation edge, a switch-map
// transition, a Link bind) without ever parking on an OS futex. It is
// deliberately not exported: every user of it in this package holds it only
// across a handful of atomic operations, never across a user callback that
// might block indefinitely.
type spinlock struct {
	busy atomic.Int32
}

func (l *spinlock) lock() {
	for !l.busy.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

func (l *spinlock) unlock() {
	l.busy.Store(0)
}

// activator is the reference-counted demand tracker behind every Path. It
// flips active/inactive on the 0→1 / 1→0 edges of its counter and runs
// onActivate/onDeactivate exactly once per edge, never concurrently with
// each other, without ever holding a blocking OS lock across either
// callback: the only synchronization primitive is a CAS spin used solely to
// serialize the two edges against each other, not to protect the counter
// itself (the counter is mutated purely with atomic add/CAS).
type activator struct {
	count atomic.Int32

	// edgeBusy is a CAS spinlock held only while running onActivate or
	// onDeactivate, and only by the goroutine that owns the corresponding
	// edge. It exists to prevent the torn-activation race described in
	// spec.md §4.3: without it, a decr() that races the 0→1 incr() could
	// observe the counter reach 0 and start tearing down parents before
	// onActivate() has finished subscribing to them.
	edgeBusy atomic.Int32

	onActivate   func()
	onDeactivate func()
}

func newActivator(onActivate, onDeactivate func()) *activator {
	if onActivate == nil {
		onActivate = func() {}
	}
	if onDeactivate == nil {
		onDeactivate = func() {}
	}
	return &activator{onActivate: onActivate, onDeactivate: onDeactivate}
}

func (a *activator) lockEdge() {
	for !a.edgeBusy.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

func (a *activator) unlockEdge() {
	a.edgeBusy.Store(0)
}

// incr registers one more unit of downstream demand. If this is the first
// (0→1), it runs onActivate before returning.
func (a *activator) incr() {
	for {
		cur := a.count.Load()
		if cur == 0 {
			a.lockEdge()
			// The 0→1 transition itself must be a CAS, not a check-then-
			// Store: a concurrent non-edge incr (e.g. a second observer
			// arriving just as a third departs) could otherwise slip its
			// increment into the gap between the check and the Store and
			// have it silently overwritten.
			if !a.count.CompareAndSwap(0, 1) {
				a.unlockEdge()
				continue
			}
			a.onActivate()
			a.unlockEdge()
			return
		}
		if a.count.CompareAndSwap(cur, cur+1) {
			return
		}
	}
}

// decr releases one unit of downstream demand. If this is the last (1→0),
// it runs onDeactivate before returning.
func (a *activator) decr() {
	for {
		cur := a.count.Load()
		if cur == 1 {
			a.lockEdge()
			if !a.count.CompareAndSwap(1, 0) {
				a.unlockEdge()
				continue
			}
			a.onDeactivate()
			a.unlockEdge()
			return
		}
		if a.count.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

func (a *activator) isActive() bool {
	return a.count.Load() > 0
}

func (a *activator) activeCount() int32 {
	return a.count.Load()
}
