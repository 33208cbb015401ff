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

// inConfig holds the enumerated options of spec.md §4.5: dispatch location
// (Back/Front) and equal-write policy (Cont/NonCont).
type inConfig struct {
	back bool
	cont bool
	pool *executorPool
}

// InOption configures a newly constructed In.
type InOption func(*inConfig)

// Back runs recomputation and dispatch on the Work executor pool instead of
// the caller's goroutine.
func Back() InOption { return func(c *inConfig) { c.back = true } }

// Front dispatches synchronously on the caller (the default).
func Front() InOption { return func(c *inConfig) { c.back = false } }

// Cont (continue-on-equal) advances the version even when the new value
// compares equal to the current one.
func Cont() InOption { return func(c *inConfig) { c.cont = true } }

// NonCont (the default) drops writes whose value compares equal to the
// current one: no version bump, no dispatch.
func NonCont() InOption { return func(c *inConfig) { c.cont = false } }

// WithPool overrides the executor pool used for Back-configured dispatch,
// in place of Settings.DefaultSettings's Work pool.
func WithPool(pool *executorPool) InOption { return func(c *inConfig) { c.pool = pool } }

// In is an input source: the only node kind with no parents, whose cell is
// written from outside the graph via Accept/Update/AcceptCompute.
type In[T any] struct {
	*Path[T]
	cfg inConfig
}

// NewIn constructs a source node. With no options the node dispatches on
// the caller (Front) and drops equal writes (NonCont).
func NewIn[T any](name string, equal EqualFunc[T], opts ...InOption) *In[T] {
	cfg := inConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	p := newPath(name, equal)
	p.setActivator(func() {}, func() {})
	return &In[T]{Path: p, cfg: cfg}
}

func (in *In[T]) run(ctx context.Context, job func()) error {
	if !in.cfg.back {
		job()
		return nil
	}
	return submitTo(ctx, in.cfg.pool, job)
}

// Accept is Consume.accept(x): writes x through the cell's equality/Cont
// policy. Writes before any activation still advance the cell; the fresh
// value is delivered as catch-up on first Add.
func (in *In[T]) Accept(ctx context.Context, x T) error {
	return in.run(ctx, func() {
		if in.cfg.cont {
			in.write(ctx, x)
		} else {
			in.writeNonCont(ctx, x)
		}
	})
}

// AcceptCompute is Compute.accept(supplier): like Accept, but the value is
// produced lazily inside the write's critical section. Under NonCont, a
// lost CAS race retries the whole load-compute-CAS cycle, so supplier may
// be invoked more than once; it should be cheap and side-effect free.
func (in *In[T]) AcceptCompute(ctx context.Context, supplier func() T) error {
	return in.run(ctx, func() {
		if in.cfg.cont {
			in.write(ctx, supplier())
			return
		}
		for {
			cur := in.cell.load()
			x := supplier()
			v, outcome := in.cell.casAdvance(cur.Version, x)
			switch outcome {
			case casAccepted:
				in.dispatch(ctx, v)
				return
			case casEqual:
				return
			case casStale:
				continue
			}
		}
	})
}

// Update is Update.update(f): an atomic read-compute-write retry loop. f
// must tolerate repeated invocation; Update loops until a write is
// accepted, with no bounded retry.
func (in *In[T]) Update(ctx context.Context, f func(T) T) error {
	return in.run(ctx, func() {
		in.update(ctx, f)
	})
}
