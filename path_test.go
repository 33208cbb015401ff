package flowgraph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIn[T any](name string, opts ...InOption) *In[T] {
	return NewIn[T](name, nil, opts...)
}

func TestPathTryGetUninitialized(t *testing.T) {
	in := newTestIn[int]("src")
	_, err := in.TryGet()
	assert.ErrorIs(t, err, ErrUninitialized)
}

func TestPathAcceptThenTryGet(t *testing.T) {
	ctx := context.Background()
	in := newTestIn[int]("src")
	require.NoError(t, in.Accept(ctx, 10))
	v, err := in.TryGet()
	require.NoError(t, err)
	assert.Equal(t, 10, v)
}

func TestPathAddDeliversCatchUp(t *testing.T) {
	ctx := context.Background()
	in := newTestIn[int]("src")
	require.NoError(t, in.Accept(ctx, 5))

	var got int
	in.Add(ctx, ObserverFunc[int](func(v int) { got = v }))
	assert.Equal(t, 5, got)
}

func TestPathAddBeforeAnyWriteSkipsCatchUp(t *testing.T) {
	ctx := context.Background()
	in := newTestIn[int]("src")
	called := false
	in.Add(ctx, ObserverFunc[int](func(int) { called = true }))
	assert.False(t, called)
}

func TestPathNonContDropsEqualWrites(t *testing.T) {
	ctx := context.Background()
	in := newTestIn[int]("src")
	var deliveries []int
	in.Add(ctx, ObserverFunc[int](func(v int) { deliveries = append(deliveries, v) }))

	require.NoError(t, in.Accept(ctx, 1))
	require.NoError(t, in.Accept(ctx, 1))
	require.NoError(t, in.Accept(ctx, 2))
	assert.Equal(t, []int{1, 2}, deliveries)
}

func TestPathContAlwaysDispatches(t *testing.T) {
	ctx := context.Background()
	in := newTestIn[int]("src", Cont())
	var deliveries []int
	in.Add(ctx, ObserverFunc[int](func(v int) { deliveries = append(deliveries, v) }))

	require.NoError(t, in.Accept(ctx, 1))
	require.NoError(t, in.Accept(ctx, 1))
	assert.Equal(t, []int{1, 1}, deliveries)
}

func TestPathActiveCountTracksAddRemove(t *testing.T) {
	ctx := context.Background()
	in := newTestIn[int]("src")
	obs := ObserverFunc[int](func(int) {})
	assert.False(t, in.IsActive())
	in.Add(ctx, obs)
	assert.True(t, in.IsActive())
	assert.Equal(t, int32(1), in.ActiveCount())
	in.Remove(obs)
	assert.False(t, in.IsActive())
}

func TestPathUpdateRetriesUnderContention(t *testing.T) {
	ctx := context.Background()
	in := newTestIn[int]("counter")
	require.NoError(t, in.Accept(ctx, 0))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			_ = in.Update(ctx, func(x int) int { return x + 1 })
		}
		close(done)
	}()
	for i := 0; i < 100; i++ {
		_ = in.Update(ctx, func(x int) int { return x + 1 })
	}
	<-done

	v, err := in.TryGet()
	require.NoError(t, err)
	assert.Equal(t, 200, v)
}

func TestPathAcceptComputeRetriesOnLostRace(t *testing.T) {
	ctx := context.Background()
	in := newTestIn[int]("src")
	require.NoError(t, in.Accept(ctx, 0))

	calls := 0
	err := in.AcceptCompute(ctx, func() int {
		calls++
		if calls == 1 {
			// Simulate a concurrent writer landing mid-compute.
			_, _ = in.writeNonCont(ctx, 1)
		}
		return 2
	})
	require.NoError(t, err)
	v, _ := in.TryGet()
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, calls)
}

func TestDispatchSafeRoutesPanicToOnUnhandledErrorByDefault(t *testing.T) {
	var captured error
	SetOnUnhandledError(func(_ context.Context, err error) { captured = err })
	t.Cleanup(func() { SetOnUnhandledError(nil) })

	obs := ObserverFunc[int](func(int) { panic(errors.New("kaboom")) })
	dispatchSafe(context.Background(), obs, 1, nil)

	require.Error(t, captured)
	var panicErr *UserCallbackPanicError
	assert.ErrorAs(t, captured, &panicErr)
}

func TestPathStringForm(t *testing.T) {
	ctx := context.Background()
	in := newTestIn[int]("named")
	assert.Contains(t, in.String(), "named")
	assert.Contains(t, in.String(), "uninitialized")
	require.NoError(t, in.Accept(ctx, 1))
	assert.Contains(t, in.String(), "v=1")
}
