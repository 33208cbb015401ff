package flowgraph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInBackDispatchesOnWorkPool(t *testing.T) {
	ctx := context.Background()
	pool := newExecutorPool(2)
	t.Cleanup(pool.shutdown)

	in := NewIn[int]("async", nil, Back(), WithPool(pool))

	done := make(chan int, 1)
	in.Add(ctx, ObserverFunc[int](func(v int) { done <- v }))

	require.NoError(t, in.Accept(ctx, 9))
	select {
	case v := <-done:
		assert.Equal(t, 9, v)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for async dispatch")
	}
}

func TestInFrontIsSynchronous(t *testing.T) {
	ctx := context.Background()
	in := NewIn[int]("sync", nil, Front())
	var got int
	in.Add(ctx, ObserverFunc[int](func(v int) { got = v }))
	require.NoError(t, in.Accept(ctx, 3))
	assert.Equal(t, 3, got)
}

func TestExecutorPoolRejectsAfterShutdown(t *testing.T) {
	pool := newExecutorPool(1)
	pool.shutdown()
	err := pool.submit(func() {})
	assert.ErrorIs(t, err, ErrShutdownInProgress)
}

func TestExecutorPoolShutdownIsIdempotent(t *testing.T) {
	pool := newExecutorPool(1)
	assert.NotPanics(t, func() {
		pool.shutdown()
		pool.shutdown()
	})
}
