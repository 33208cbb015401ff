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

// Observer receives values from a Path. Implementations should be
// pointer-backed: Remove matches by interface identity (==), and that is
// only meaningful across calls for heap-allocated receivers, mirroring how
// the teacher package's Observer/Subscriber implementations are always
// constructed as pointers.
type Observer[T any] interface {
	Next(value T)
}

// ObserverFunc adapts a plain function to Observer. Each call to
// ObserverFunc allocates a distinct pointer-backed observer, so two
// ObserverFunc values wrapping the same underlying function are never
// considered the same observer by Remove — allocate one and keep it if you
// need to remove it later.
func ObserverFunc[T any](fn func(value T)) Observer[T] {
	return &funcObserver[T]{fn: fn}
}

type funcObserver[T any] struct {
	fn func(value T)
}

func (o *funcObserver[T]) Next(value T) { o.fn(value) }

// observerSet is a lock-free, copy-on-write collection of observers. Reads
// (dispatch, size) take one atomic load of the current snapshot; mutations
// (add, remove) install a new snapshot slice via a CAS retry loop. This
// gives dispatch exactly the "consistent set for one cycle" guarantee
// required by the data model: a dispatch that has already loaded its
// snapshot is unaffected by concurrent add/remove.
type observerSet[T any] struct {
	snapshot atomic.Pointer[[]Observer[T]]
}

func newObserverSet[T any]() *observerSet[T] {
	s := &observerSet[T]{}
	empty := make([]Observer[T], 0)
	s.snapshot.Store(&empty)
	return s
}

func (s *observerSet[T]) add(obs Observer[T]) {
	for {
		old := s.snapshot.Load()
		next := make([]Observer[T], len(*old)+1)
		copy(next, *old)
		next[len(*old)] = obs
		if s.snapshot.CompareAndSwap(old, &next) {
			return
		}
	}
}

// remove deletes a single occurrence of obs (by identity), returning true
// if one was found and removed.
func (s *observerSet[T]) remove(obs Observer[T]) bool {
	for {
		old := s.snapshot.Load()
		idx := -1
		for i, o := range *old {
			if o == obs {
				idx = i
				break
			}
		}
		if idx == -1 {
			return false
		}
		next := make([]Observer[T], 0, len(*old)-1)
		next = append(next, (*old)[:idx]...)
		next = append(next, (*old)[idx+1:]...)
		if s.snapshot.CompareAndSwap(old, &next) {
			return true
		}
	}
}

func (s *observerSet[T]) size() int {
	return len(*s.snapshot.Load())
}

func (s *observerSet[T]) contains(obs Observer[T]) bool {
	for _, o := range *s.snapshot.Load() {
		if o == obs {
			return true
		}
	}
	return false
}

// dispatch delivers value to a consistent snapshot of observers, isolating
// a panicking observer from the rest: one bad observer never prevents the
// others in the same cycle from receiving the value.
func (s *observerSet[T]) dispatch(ctx context.Context, value T, onPanic func(context.Context, error)) {
	for _, o := range *s.snapshot.Load() {
		dispatchSafe(ctx, o, value, onPanic)
	}
}
