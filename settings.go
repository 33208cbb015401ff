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

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/samber/flowgraph/internal/xsync"
	"github.com/samber/flowgraph/internal/xtime"
)

// ExecutorKind identifies one of the two process-wide executor pools a
// Settings instance owns.
type ExecutorKind int

const (
	// Work runs operator recomputation and observer dispatch for In sources
	// configured with Back().
	Work ExecutorKind = iota
	// Exit is the second pool a Settings owns. Nothing in this package
	// submits work to it: deactivation cascades (parent decr chains) run
	// synchronously on the goroutine that releases the last unit of demand.
	Exit
)

// executorPool is a small fixed-size worker pool. It is intentionally not a
// general task queue: jobs are fire-and-forget closures, and the pool's only
// contract is "run this eventually, unless shutting down."
type executorPool struct {
	jobs    chan func()
	group   errgroup.Group
	closing atomic.Bool
	closeCh chan struct{}
}

func newExecutorPool(workers int) *executorPool {
	if workers < 1 {
		workers = 1
	}
	p := &executorPool{
		jobs:    make(chan func(), 256),
		closeCh: make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		p.group.Go(func() error {
			for {
				select {
				case job, ok := <-p.jobs:
					if !ok {
						return nil
					}
					job()
				case <-p.closeCh:
					return nil
				}
			}
		})
	}
	return p
}

// submit enqueues job for execution on a worker goroutine. It returns
// ErrShutdownInProgress if the pool has begun shutting down.
func (p *executorPool) submit(job func()) error {
	if p.closing.Load() {
		return ErrShutdownInProgress
	}
	select {
	case p.jobs <- job:
		return nil
	case <-p.closeCh:
		return ErrShutdownInProgress
	}
}

// shutdown stops accepting new jobs and waits for in-flight workers to drain.
func (p *executorPool) shutdown() {
	if !p.closing.CompareAndSwap(false, true) {
		return
	}
	close(p.closeCh)
	_ = p.group.Wait()
}

// Settings is the process-wide configuration surface described by spec.md
// §6: the two executor pools, the debug-mode toggle and its structured
// logger, and the model registry.
type Settings struct {
	mu   xsync.Mutex
	work *executorPool
	exit *executorPool

	debugMode atomic.Bool
	logger    *zap.Logger

	registry *Registry
}

var globalSettings = newDefaultSettings()

func newDefaultSettings() *Settings {
	s := &Settings{
		mu:     xsync.NewMutexWithLock(),
		work:   newExecutorPool(4),
		exit:   newExecutorPool(2),
		logger: zap.NewNop(),
	}
	s.registry = newRegistry(s)
	return s
}

// DefaultSettings returns the process-wide Settings singleton.
func DefaultSettings() *Settings { return globalSettings }

// Registry returns this Settings' model registry.
func (s *Settings) Registry() *Registry { return s.registry }

func (s *Settings) workPool() *executorPool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.work
}

func (s *Settings) exitPool() *executorPool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exit
}

// RedefineDefault replaces one of the two executor pools with the pool
// factory returns. The swap takes effect whenever it is called, including
// after the old pool has run jobs; the replaced pool is not shut down.
func (s *Settings) RedefineDefault(kind ExecutorKind, factory func() *executorPool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case Work:
		s.work = factory()
	case Exit:
		s.exit = factory()
	}
}

// ShutdownNow terminates both executor pools and destroys every constructed
// model in the registry (invoking each model's on_destroy).
func (s *Settings) ShutdownNow() {
	s.mu.Lock()
	work, exit := s.work, s.exit
	s.mu.Unlock()
	work.shutdown()
	exit.shutdown()
	s.registry.destroyAll()
}

// SetDebugMode toggles structured debug logging. The only events logged are
// SwitchMap transitions, through debugLog, which consults DefaultSettings
// only; activation edges and CAS attempts are not logged. debugLog calls
// Settings.debugLogger() rather than caching the decision, so toggling takes
// effect for the very next event.
func (s *Settings) SetDebugMode(enabled bool) {
	s.debugMode.Store(enabled)
}

// SetLogger installs the zap logger used when debug mode is enabled. A nil
// logger restores a no-op logger.
func (s *Settings) SetLogger(logger *zap.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger == nil {
		logger = zap.NewNop()
	}
	s.logger = logger
}

func (s *Settings) debugLogger() *zap.Logger {
	if !s.debugMode.Load() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logger
}

// debugLog emits a structured debug-mode log line tagged with the node's
// name and a monotonic timestamp, iff debug mode is enabled. It is a no-op
// (and allocates nothing beyond the call itself) otherwise, so call sites
// such as SwitchMap's transition don't need to guard the call themselves.
func debugLog(node, event string, fields ...zap.Field) {
	logger := DefaultSettings().debugLogger()
	if logger == nil {
		return
	}
	all := make([]zap.Field, 0, len(fields)+2)
	all = append(all, zap.String("node", node), zap.Int64("t_ns", xtime.NowNanoMonotonic()))
	all = append(all, fields...)
	logger.Debug(event, all...)
}

func submitTo(ctx context.Context, pool *executorPool, job func()) error {
	if pool == nil {
		pool = DefaultSettings().workPool()
	}
	return pool.submit(job)
}
