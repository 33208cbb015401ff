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

// joinParentLink is the type-erased activation surface a JoinEntry installs
// on a joinNode: every parent, regardless of its own value type, can be
// activated/deactivated uniformly.
type joinParentLink interface {
	activate()
	deactivate()
}

// JoinEntry binds one parent Path to a Join[State] via a reducer. Build one
// with On and pass it to Join.
type JoinEntry[State any] struct {
	attach func(j *joinNode[State]) joinParentLink
}

// On binds parent to a Join with the given reducer: on every write from
// parent, the Join's state is replaced by reducer(currentState, newValue).
func On[State, P any](parent *Path[P], reducer func(State, P) State) JoinEntry[State] {
	return JoinEntry[State]{
		attach: func(j *joinNode[State]) joinParentLink {
			return &joinChildLink[State, P]{join: j, parent: parent, reducer: reducer}
		},
	}
}

type joinChildLink[State, P any] struct {
	join    *joinNode[State]
	parent  *Path[P]
	reducer func(State, P) State
}

func (l *joinChildLink[State, P]) activate()   { l.parent.addChild(l) }
func (l *joinChildLink[State, P]) deactivate() { l.parent.removeChild(l) }

func (l *joinChildLink[State, P]) writeV(ctx context.Context, v V[P]) {
	l.join.applyReduce(ctx, v.Version, func(state State) State {
		return l.reducer(state, v.Value)
	})
}

type joinNode[State any] struct {
	*Path[State]
	parents []joinParentLink
}

// Join is the N-way fold of spec.md §4.7: it holds one State value, seeded
// at construction, updated by whichever entry's reducer matches an incoming
// parent write. predicateInvalid suppresses dispatch (but not the state
// update itself) while it reports true for the current state; pass nil to
// never suppress.
func Join[State any](name string, seed State, predicateInvalid func(State) bool, entries ...JoinEntry[State]) *Path[State] {
	n := buildJoinNode(name, seed, predicateInvalid, entries...)
	return n.Path
}

func buildJoinNode[State any](name string, seed State, predicateInvalid func(State) bool, entries ...JoinEntry[State]) *joinNode[State] {
	p := newPath[State](name, nil)
	p.invalidFilter = predicateInvalid
	p.cell.forceAdvance(seed)

	n := &joinNode[State]{Path: p}
	for _, e := range entries {
		n.parents = append(n.parents, e.attach(n))
	}
	p.setActivator(n.onActivate, n.onDeactivate)
	return n
}

func (n *joinNode[State]) onActivate() {
	for _, pl := range n.parents {
		pl.activate()
	}
}

func (n *joinNode[State]) onDeactivate() {
	for _, pl := range n.parents {
		pl.deactivate()
	}
}

// applyReduce runs the single-attempt CAS of spec.md §4.4 step 5: on
// rejection (a sibling parent's write already advanced the state past this
// write's hint), the stale recomputation is discarded rather than retried,
// since the reducer already ran against a State snapshot that is no longer
// current.
func (n *joinNode[State]) applyReduce(ctx context.Context, hint uint64, reduce func(State) State) {
	cur := n.cell.load()
	var next State
	ok := true
	lo.TryCatchWithErrorValue(
		func() error {
			next = reduce(cur.Value)
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
	v, outcome := n.cell.casAdvanceMaxOnce(hint, next)
	if outcome != casAccepted {
		return
	}
	if n.invalidFilter != nil && n.invalidFilter(v.Value) {
		return
	}
	n.dispatch(ctx, v)
}

// JoinUpdatable is Join.Updatable (spec.md §4.7): a Join state that can also
// be written to directly, racing fairly with parent-driven reduction using
// the same version CAS.
type JoinUpdatable[State any] struct {
	*Path[State]
	join *joinNode[State]
}

// NewJoinUpdatable builds a Join and wraps it with a direct Update entry
// point.
func NewJoinUpdatable[State any](name string, seed State, predicateInvalid func(State) bool, entries ...JoinEntry[State]) *JoinUpdatable[State] {
	n := buildJoinNode(name, seed, predicateInvalid, entries...)
	return &JoinUpdatable[State]{Path: n.Path, join: n}
}

// Update atomically reads-computes-writes the Join's state, retrying on
// contention just like In.Update, and dispatching if the write advances the
// version and the resulting state is not suppressed by predicate_invalid.
func (j *JoinUpdatable[State]) Update(ctx context.Context, f func(State) State) {
	for {
		cur := j.cell.load()
		next, outcome := j.cell.casAdvance(cur.Version, f(cur.Value))
		switch outcome {
		case casEqual:
			return
		case casStale:
			continue
		}
		if j.invalidFilter != nil && j.invalidFilter(next.Value) {
			return
		}
		j.dispatch(ctx, next)
		return
	}
}
