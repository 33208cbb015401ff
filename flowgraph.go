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

// Package flowgraph implements a single-state, lock-free reactive dataflow
// graph: nodes hold at most one current (value, version) pair, observers
// attach dynamically at the leaves, and intermediate nodes subscribe to
// their parents only while at least one transitive observer is present.
package flowgraph

import (
	"context"
	"fmt"
	"sync/atomic"
)

var (
	// onUnhandledError stores the current handler for errors that a node
	// could not route anywhere more specific (e.g. a panic from a user
	// callback when no caller is positioned to receive it). Held in an
	// atomic.Value so concurrent readers/writers never race.
	onUnhandledError atomic.Value // func(context.Context, error)

	// onDroppedWrite stores the current handler run by OnDroppedWrite.
	// Nothing in this package calls OnDroppedWrite: an observer removed
	// while a dispatch snapshot still holds it simply receives that
	// dispatch.
	onDroppedWrite atomic.Value // func(context.Context, fmt.Stringer)
)

func init() {
	onUnhandledError.Store(IgnoreUnhandledError)
	onDroppedWrite.Store(IgnoreDroppedWrite)
}

// SetOnUnhandledError sets the process-wide handler invoked for errors with
// no more specific destination. Passing nil restores the default (ignore).
func SetOnUnhandledError(fn func(ctx context.Context, err error)) {
	if fn == nil {
		fn = IgnoreUnhandledError
	}
	onUnhandledError.Store(fn)
}

// OnUnhandledError invokes the currently configured unhandled-error handler.
func OnUnhandledError(ctx context.Context, err error) {
	onUnhandledError.Load().(func(context.Context, error))(ctx, err)
}

// SetOnDroppedWrite sets the process-wide handler run by OnDroppedWrite.
// Passing nil restores the default (ignore).
func SetOnDroppedWrite(fn func(ctx context.Context, w fmt.Stringer)) {
	if fn == nil {
		fn = IgnoreDroppedWrite
	}
	onDroppedWrite.Store(fn)
}

// OnDroppedWrite invokes the currently configured dropped-write handler.
func OnDroppedWrite(ctx context.Context, w fmt.Stringer) {
	onDroppedWrite.Load().(func(context.Context, fmt.Stringer))(ctx, w)
}

// IgnoreUnhandledError is the zero-value unhandled-error handler.
func IgnoreUnhandledError(ctx context.Context, err error) {}

// IgnoreDroppedWrite is the zero-value dropped-write handler.
func IgnoreDroppedWrite(ctx context.Context, w fmt.Stringer) {}

// droppedWrite describes a single dropped dispatch, used as the argument to
// OnDroppedWrite.
type droppedWrite struct {
	node    string
	version uint64
}

func (d droppedWrite) String() string {
	return fmt.Sprintf("dropped write: node=%s version=%d", d.node, d.version)
}
