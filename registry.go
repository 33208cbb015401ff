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
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// LifecycleKind governs when a registered model is constructed and
// activated relative to Settings.ActivateModelStore.
type LifecycleKind int

const (
	// CoreModel is constructed and activated eagerly by ActivateModelStore.
	CoreModel LifecycleKind = iota
	// LazyCoreModel is constructed and activated only on first Get, but
	// once constructed is treated like Core for deactivation ordering.
	LazyCoreModel
	// GuestModel never auto-activates; callers must obtain it and drive its
	// own Path activation directly via Add/Getter.
	GuestModel
	// PlainModel has no activation lifecycle at all: it is a singleton
	// value with no OnActivate/OnDeactivate hooks.
	PlainModel
)

// Model is implemented by a registered singleton that holds resources which
// must be released on Settings.ShutdownNow.
type Model interface {
	OnDestroy()
}

// ActivatableModel is a Model that participates in bulk activation via
// Settings.ActivateModelStore / DeactivateModelStore (Core and LazyCore
// kinds).
type ActivatableModel interface {
	Model
	OnActivate()
	OnDeactivate()
}

// RegistryEntry describes one model to install via Registry.Load.
type RegistryEntry struct {
	Tag     string
	Factory func(*Registry) any
	Kind    LifecycleKind
}

type modelEntry struct {
	kind     LifecycleKind
	factory  func(*Registry) any
	group    singleflight.Group
	instance atomic.Pointer[any]
	active   atomic.Bool
}

func (me *modelEntry) construct(r *Registry) any {
	if p := me.instance.Load(); p != nil {
		return *p
	}
	v, _, _ := me.group.Do("", func() (interface{}, error) {
		if p := me.instance.Load(); p != nil {
			return *p, nil
		}
		inst := me.factory(r)
		me.instance.Store(&inst)
		return inst, nil
	})
	return v
}

// Registry is the process-wide model registry of spec.md §6: a map from
// type-tag to lazily-constructed singleton, plus the UUID→Ref store backing
// Ref.Lazy identity lookups.
type Registry struct {
	settings *Settings

	mu      sync.RWMutex
	entries map[string]*modelEntry

	store *refStore
}

func newRegistry(s *Settings) *Registry {
	return &Registry{
		settings: s,
		entries:  map[string]*modelEntry{},
		store:    newRefStore(),
	}
}

// Load installs or replaces registry entries. Existing instances for
// replaced tags are left untouched: Load does not construct anything.
func (r *Registry) Load(entries ...RegistryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.entries[e.Tag] = &modelEntry{kind: e.Kind, factory: e.Factory}
	}
}

// Get returns the singleton instance registered under tag, constructing it
// on first call (exactly once, even under concurrent callers, via
// singleflight). Returns nil if no entry is registered under tag.
func (r *Registry) Get(tag string) any {
	r.mu.RLock()
	me, ok := r.entries[tag]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	inst := me.construct(r)
	if me.kind == LazyCoreModel && me.active.CompareAndSwap(false, true) {
		if a, ok := inst.(ActivatableModel); ok {
			a.OnActivate()
		}
	}
	return inst
}

// ActivateModelStore constructs and activates every Core-kind entry.
// LazyCore entries are left untouched until their first Get; Guest and
// Plain entries are never auto-activated.
func (r *Registry) ActivateModelStore() {
	for _, me := range r.snapshotEntries() {
		if me.kind != CoreModel {
			continue
		}
		inst := me.construct(r)
		if me.active.CompareAndSwap(false, true) {
			if a, ok := inst.(ActivatableModel); ok {
				a.OnActivate()
			}
		}
	}
}

// DeactivateModelStore deactivates every currently-active Core/LazyCore
// entry, without destroying their instances.
func (r *Registry) DeactivateModelStore() {
	for _, me := range r.snapshotEntries() {
		if me.kind != CoreModel && me.kind != LazyCoreModel {
			continue
		}
		if !me.active.CompareAndSwap(true, false) {
			continue
		}
		if p := me.instance.Load(); p != nil {
			if a, ok := (*p).(ActivatableModel); ok {
				a.OnDeactivate()
			}
		}
	}
}

func (r *Registry) snapshotEntries() []*modelEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*modelEntry, 0, len(r.entries))
	for _, me := range r.entries {
		out = append(out, me)
	}
	return out
}

// destroyAll calls OnDestroy on every constructed instance and clears the
// registry. Called from Settings.ShutdownNow.
func (r *Registry) destroyAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, me := range r.entries {
		if p := me.instance.Load(); p != nil {
			if m, ok := (*p).(Model); ok {
				m.OnDestroy()
			}
		}
	}
	r.entries = map[string]*modelEntry{}
}

// refStore maps a Ref.Lazy's process-unique UUID back to the Ref itself,
// so it can be retrieved by identity (spec.md §6 persistence surface).
type refStore struct {
	mu   sync.RWMutex
	refs map[uuid.UUID]any
}

func newRefStore() *refStore {
	return &refStore{refs: map[uuid.UUID]any{}}
}

func (s *refStore) put(id uuid.UUID, ref any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[id] = ref
}

func (s *refStore) get(id uuid.UUID) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.refs[id]
	return v, ok
}

// LazyRef is Ref.Lazy<T> from spec.md §6: a deferred reference to a Path
// owned by a registered model. Resolving it triggers the owner's
// construction (and, for Core/LazyCore owners, activation) via Registry.Get.
type LazyRef[T any] struct {
	id       uuid.UUID
	ownerTag string
	accessor func(owner any) *Path[T]
	registry *Registry
}

// NewLazyRef creates a Ref.Lazy bound to the model registered under
// ownerTag, and records it in the registry's UUID store.
func NewLazyRef[T any](registry *Registry, ownerTag string, accessor func(owner any) *Path[T]) *LazyRef[T] {
	ref := &LazyRef[T]{
		id:       uuid.New(),
		ownerTag: ownerTag,
		accessor: accessor,
		registry: registry,
	}
	registry.store.put(ref.id, ref)
	return ref
}

// ID returns this Ref's process-unique identity.
func (r *LazyRef[T]) ID() uuid.UUID { return r.id }

// Resolve constructs (if necessary) the owning model and returns the Path
// this Ref points to.
func (r *LazyRef[T]) Resolve() *Path[T] {
	owner := r.registry.Get(r.ownerTag)
	return r.accessor(owner)
}

// LookupRef retrieves a previously-created LazyRef by UUID from the
// registry's store. The type parameter T must match the original Ref's
// type or the second return is false.
func LookupRef[T any](registry *Registry, id uuid.UUID) (*LazyRef[T], bool) {
	v, ok := registry.store.get(id)
	if !ok {
		return nil, false
	}
	ref, ok := v.(*LazyRef[T])
	return ref, ok
}
