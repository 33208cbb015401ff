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

import "github.com/samber/flowgraph/internal/constraints"

// SumJoin builds a Join whose state is the running sum of its parents'
// values, each parent contributing through plain addition. Useful for
// dashboards/aggregation nodes that fold several numeric sources into one
// total without hand-writing a reducer per entry.
func SumJoin[N constraints.Numeric](name string, parents ...*Path[N]) *Path[N] {
	entries := make([]JoinEntry[N], 0, len(parents))
	for _, parent := range parents {
		entries = append(entries, sumEntry[N](parent))
	}
	return Join[N](name, 0, nil, entries...)
}

// sumEntry binds parent into a sum-accumulating Join. Previous contribution
// tracking is intentionally absent: SumJoin models a running total over
// edge events (deltas), not a recomputed sum-of-latest-values; callers that
// need the latter should use Join directly with a reducer that replaces
// rather than accumulates.
func sumEntry[N constraints.Numeric](parent *Path[N]) JoinEntry[N] {
	return On[N, N](parent, func(state N, v N) N {
		return state + v
	})
}

// CountJoin builds a Join whose state is the number of writes observed
// across all of its parents combined, regardless of parent value type.
func CountJoin[P any](name string, parents ...*Path[P]) *Path[int] {
	entries := make([]JoinEntry[int], 0, len(parents))
	for _, parent := range parents {
		entries = append(entries, On[int, P](parent, func(state int, _ P) int {
			return state + 1
		}))
	}
	return Join[int](name, 0, nil, entries...)
}
