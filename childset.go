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

// childLink is how a derived Path (Map, SwitchMap, Join, Link) subscribes to
// a parent. Unlike the public Observer[T], a childLink receives the full
// versioned value: derived nodes need the parent's version to compute their
// own write's monotonic hint (spec.md §4.4 step 3), not just the bare value.
type childLink[T any] interface {
	writeV(ctx context.Context, v V[T])
}

// childSet is the node-to-node analogue of observerSet: a lock-free,
// copy-on-write collection of childLink subscribers. A Path's active_count
// is the sum of its observerSet's size and its childSet's size (plus active
// Getters, which register through observerSet like any other leaf).
type childSet[T any] struct {
	snapshot atomic.Pointer[[]childLink[T]]
}

func newChildSet[T any]() *childSet[T] {
	s := &childSet[T]{}
	empty := make([]childLink[T], 0)
	s.snapshot.Store(&empty)
	return s
}

func (s *childSet[T]) add(c childLink[T]) {
	for {
		old := s.snapshot.Load()
		next := make([]childLink[T], len(*old)+1)
		copy(next, *old)
		next[len(*old)] = c
		if s.snapshot.CompareAndSwap(old, &next) {
			return
		}
	}
}

func (s *childSet[T]) remove(c childLink[T]) bool {
	for {
		old := s.snapshot.Load()
		idx := -1
		for i, o := range *old {
			if o == c {
				idx = i
				break
			}
		}
		if idx == -1 {
			return false
		}
		next := make([]childLink[T], 0, len(*old)-1)
		next = append(next, (*old)[:idx]...)
		next = append(next, (*old)[idx+1:]...)
		if s.snapshot.CompareAndSwap(old, &next) {
			return true
		}
	}
}

func (s *childSet[T]) size() int {
	return len(*s.snapshot.Load())
}

func (s *childSet[T]) dispatch(ctx context.Context, v V[T]) {
	for _, c := range *s.snapshot.Load() {
		c.writeV(ctx, v)
	}
}
