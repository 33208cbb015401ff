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
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/samber/flowgraph/internal/xerrors"
)

// Sentinel errors for the taxonomy of spec.md §7. Wrap one of these with
// fmt.Errorf("...: %w", ErrX) or compare with errors.Is.
var (
	// ErrUninitialized is returned by a cache read before any value has
	// been written to the node.
	ErrUninitialized = errors.New("flowgraph: uninitialized")

	// ErrInactive is returned by Getter.Get on an inactive Getter, by
	// Getter.PassiveNext on a Path that is not currently active, and by
	// Getter.PassiveGet on a Path that has never been written.
	ErrInactive = errors.New("flowgraph: inactive")

	// ErrDoubleBind names the concurrent-bind error kind. Link.Bind
	// serializes concurrent binds on its transition lock and never returns
	// it.
	ErrDoubleBind = errors.New("flowgraph: bind already in progress")

	// ErrShutdownInProgress is returned by accept/update calls against an
	// executor pool that has begun shutting down.
	ErrShutdownInProgress = errors.New("flowgraph: shutdown in progress")
)

// UserCallbackPanicError wraps a panic recovered from an observer, a map
// function, or a Join reducer. It is never returned to a caller; it is
// reported via OnUnhandledError (or, for an observer panic, the node's
// onPanic handler when one is set) and the node continues running.
type UserCallbackPanicError struct {
	Node  string
	Cause error
}

func (e *UserCallbackPanicError) Error() string {
	return fmt.Sprintf("flowgraph: panic in user callback (node=%s): %s", e.Node, e.Cause.Error())
}

func (e *UserCallbackPanicError) Unwrap() error { return e.Cause }

func newUserCallbackPanicError(node string, recovered any) *UserCallbackPanicError {
	return &UserCallbackPanicError{Node: node, Cause: xerrors.RecoverValueToError(recovered)}
}

// dispatchSafe calls obs.Next(value), converting any panic into a
// UserCallbackPanicError routed to onPanic (or, if nil, to the package-level
// OnUnhandledError hook). A panicking observer never prevents sibling
// observers in the same dispatch cycle from being called, matching the
// per-observer error isolation required by spec.md §7.
func dispatchSafe[T any](ctx context.Context, obs Observer[T], value T, onPanic func(context.Context, error)) {
	lo.TryCatchWithErrorValue(
		func() error {
			obs.Next(value)
			return nil
		},
		func(e any) {
			err := newUserCallbackPanicError("", e)
			if onPanic != nil {
				onPanic(ctx, err)
			} else {
				OnUnhandledError(ctx, err)
			}
		},
	)
}
