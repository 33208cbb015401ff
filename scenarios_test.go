package flowgraph

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarioThreeSourceProduct is spec.md §8 scenario 1: a three-source
// product built from nested SwitchMap/Map, exercising the full
// activate-and-seed cascade through three live levels at once.
func TestScenarioThreeSourceProduct(t *testing.T) {
	ctx := context.Background()
	a := NewIn[int]("a", nil)
	b := NewIn[int]("b", nil)
	c := NewIn[int]("c", nil)
	require.NoError(t, a.Accept(ctx, 4))
	require.NoError(t, b.Accept(ctx, 6))
	require.NoError(t, c.Accept(ctx, 7))

	r := SwitchMap(a.Path, "r", func(av int) *Path[int] {
		return SwitchMap(b.Path, "r.b", func(bv int) *Path[int] {
			return Map(c.Path, "r.b.c", func(cv int) int { return av * bv * cv })
		})
	})

	var got []int
	obs := ObserverFunc[int](func(v int) { got = append(got, v) })
	r.Add(ctx, obs)
	require.Equal(t, []int{168}, got)

	require.NoError(t, a.Accept(ctx, 7))
	assert.Equal(t, []int{168, 294}, got)

	// b and c are accepted as two separate writes, not one transaction, so
	// the graph recomputes once per write: b=9 first recombines with c's
	// still-stale value of 7 (7*9*7=441) before c=17 lands and the product
	// reaches its final 7*9*17=1071. There is no batching in this model, so
	// both intermediate and final values reach the observer.
	require.NoError(t, b.Accept(ctx, 9))
	assert.Equal(t, []int{168, 294, 441}, got)
	require.NoError(t, c.Accept(ctx, 17))
	assert.Equal(t, []int{168, 294, 441, 1071}, got)

	r.Remove(obs)
	assert.False(t, r.IsActive())
	assert.False(t, a.IsActive())
	assert.False(t, b.IsActive())
	assert.False(t, c.IsActive())
}

// TestScenarioMapEqualDrop is spec.md §8 scenario 2. NonCont and Cont are
// fixed at construction time in this implementation (spec.md §4.5 lists
// them as "config options", not per-call overrides), so the "S.accept(3)
// under CONT" half of the scenario uses a second, Cont-configured source
// feeding an equivalent Map chain.
func TestScenarioMapEqualDrop(t *testing.T) {
	ctx := context.Background()

	s := NewIn[int]("s", nil, NonCont())
	require.NoError(t, s.Accept(ctx, 3))
	m := Map(s.Path, "m", func(x int) int { return x * 2 })
	var got []int
	m.Add(ctx, ObserverFunc[int](func(v int) { got = append(got, v) }))
	require.Equal(t, []int{6}, got)

	require.NoError(t, s.Accept(ctx, 3))
	assert.Equal(t, []int{6}, got, "equal write under NonCont must not reach the observer")

	sCont := NewIn[int]("s-cont", nil, Cont())
	require.NoError(t, sCont.Accept(ctx, 3))
	mCont := Map(sCont.Path, "m-cont", func(x int) int { return x * 2 })
	var gotCont []int
	mCont.Add(ctx, ObserverFunc[int](func(v int) { gotCont = append(gotCont, v) }))
	require.NoError(t, sCont.Accept(ctx, 3))
	require.Equal(t, []int{6, 6}, gotCont, "seed plus one CONT-forced re-dispatch of the same value")

	require.NoError(t, sCont.Accept(ctx, 3))
	assert.Equal(t, []int{6, 6, 6}, gotCont, "CONT re-accepts an equal value and forwards it again")
}

// TestScenarioSwitchToDummy is spec.md §8 scenario 3: switching to a nil
// inner binds the sentinel dummy path, producing no dispatch and no panic.
func TestScenarioSwitchToDummy(t *testing.T) {
	ctx := context.Background()
	s := NewIn[int]("s", nil)
	require.NoError(t, s.Accept(ctx, 3))

	p := SwitchMap(s.Path, "p", func(x int) *Path[int] {
		if x == 3 {
			return nil
		}
		return NewIn[int]("unreachable", nil).Path
	})

	called := false
	assert.NotPanics(t, func() {
		p.Add(ctx, ObserverFunc[int](func(int) { called = true }))
	})
	assert.NotPanics(t, func() {
		require.NoError(t, s.Accept(ctx, 4))
	})
	assert.False(t, called)
}

// TestScenarioExcludeInExcludeOut is spec.md §8 scenario 4.
func TestScenarioExcludeInExcludeOut(t *testing.T) {
	const (
		AA = 10
		BB = 20
		CC = 30
		FF = 40
	)
	ctx := context.Background()
	a := NewIn[int]("a", nil, Cont())
	b := Map(a.Path, "b", func(s int) int { return s + AA },
		WithExcludeIn[int, int](func(x int) bool { return x == BB }),
		WithExcludeOut[int, int](func(y int) bool { return y == CC+AA }))

	var got []int
	b.Add(ctx, ObserverFunc[int](func(v int) { got = append(got, v) }))

	require.NoError(t, a.Accept(ctx, AA))
	assert.Equal(t, []int{AA + AA}, got)

	require.NoError(t, a.Accept(ctx, BB))
	assert.Equal(t, []int{AA + AA}, got, "input excluded: no recompute, no dispatch")

	require.NoError(t, a.Accept(ctx, CC))
	assert.Equal(t, []int{AA + AA}, got, "output excluded: neither cell write nor dispatch happens")
	cached, err := b.TryGet()
	require.NoError(t, err)
	assert.Equal(t, AA+AA, cached, "cell keeps its last accepted value when the computed output is excluded")

	require.NoError(t, a.Accept(ctx, FF))
	assert.Equal(t, []int{AA + AA, FF + AA}, got)
}

// TestScenarioLinkRebind is spec.md §8 scenario 5.
func TestScenarioLinkRebind(t *testing.T) {
	ctx := context.Background()
	l := NewLinkWithSeed[int]("l", nil, 4)
	src := NewIn[int]("src", nil)
	require.NoError(t, src.Accept(ctx, 0))

	var got []int
	l.Add(ctx, ObserverFunc[int](func(v int) { got = append(got, v) }))
	assert.Equal(t, []int{4}, got)

	l.Bind(src.Path)
	assert.Equal(t, []int{4, 0}, got)

	require.NoError(t, src.Accept(ctx, 5))
	assert.Equal(t, []int{4, 0, 5}, got)

	l.Unbind()
	require.NoError(t, src.Accept(ctx, 9))
	assert.Equal(t, []int{4, 0, 5}, got, "unbound: no further delivery")
	cached, err := l.TryGet()
	require.NoError(t, err)
	assert.Equal(t, 5, cached, "cache retains the last value seen while bound")

	l.Bind(src.Path)
	assert.Equal(t, []int{4, 0, 5, 9}, got)
}

// TestScenarioConcurrentUpdate is spec.md §8 scenario 6: 20 goroutines each
// add their index onto an Update<int>(0), mapped by *5, converging to
// 5*sum(1..20)=1050.
func TestScenarioConcurrentUpdate(t *testing.T) {
	ctx := context.Background()
	u := NewIn[int]("u", nil)
	m := Map(u.Path, "m", func(x int) int { return x * 5 })

	var mu sync.Mutex
	var deliveries int
	m.Add(ctx, ObserverFunc[int](func(int) {
		mu.Lock()
		deliveries++
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	const n = 20
	wg.Add(n)
	for i := 1; i <= n; i++ {
		i := i
		go func() {
			defer wg.Done()
			require.NoError(t, u.Update(ctx, func(x int) int { return x + i }))
		}()
	}
	wg.Wait()

	final, err := u.TryGet()
	require.NoError(t, err)
	assert.Equal(t, 210, final)

	mapped, err := m.TryGet()
	require.NoError(t, err)
	assert.Equal(t, 1050, mapped)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, n, deliveries, "each of the 20 accepted updates dispatches exactly once")
}

// --- Invariants (spec.md §8) ---

func TestInvariantObserverVersionsStrictlyIncreasing(t *testing.T) {
	ctx := context.Background()
	in := NewIn[int]("src", nil, Cont())

	var lastSeen int
	var seenAny bool
	in.Add(ctx, ObserverFunc[int](func(v int) {
		if seenAny {
			assert.Greater(t, v, lastSeen)
		}
		lastSeen = v
		seenAny = true
	}))

	for i := 1; i <= 10; i++ {
		require.NoError(t, in.Accept(ctx, i))
	}
}

func TestInvariantActiveCountZeroImpliesNoUpstreamSubscription(t *testing.T) {
	ctx := context.Background()
	parent := NewIn[int]("parent", nil)
	child := Map(parent.Path, "child", func(x int) int { return x })

	assert.Equal(t, int32(0), parent.ActiveCount())
	obs := ObserverFunc[int](func(int) {})
	child.Add(ctx, obs)
	assert.Equal(t, int32(1), parent.ActiveCount())
	child.Remove(obs)
	assert.Equal(t, int32(0), parent.ActiveCount())
}

func TestInvariantSwitchMapHoldsExactlyOneInnerAfterQuiescence(t *testing.T) {
	ctx := context.Background()
	outer := NewIn[string]("outer", nil)
	innerA := NewIn[int]("innerA", nil)
	innerB := NewIn[int]("innerB", nil)
	inners := map[string]*Path[int]{"a": innerA.Path, "b": innerB.Path}
	sm := SwitchMap(outer.Path, "sm", func(k string) *Path[int] { return inners[k] })

	sm.Add(ctx, ObserverFunc[int](func(int) {}))
	require.NoError(t, outer.Accept(ctx, "a"))
	require.NoError(t, outer.Accept(ctx, "b"))

	assert.Equal(t, int32(0), innerA.ActiveCount(), "superseded inner must be fully released")
	assert.Equal(t, int32(1), innerB.ActiveCount(), "exactly the latest inner is held")
}

func TestInvariantAddThenRemoveLeavesActiveCountUnchanged(t *testing.T) {
	ctx := context.Background()
	in := NewIn[int]("src", nil)
	before := in.ActiveCount()
	obs := ObserverFunc[int](func(int) {})
	in.Add(ctx, obs)
	in.Remove(obs)
	assert.Equal(t, before, in.ActiveCount())
}

// --- Round-trip laws (spec.md §8) ---

func TestRoundTripActivateDeactivateIsNoopOnCache(t *testing.T) {
	ctx := context.Background()
	in := NewIn[int]("src", nil)
	require.NoError(t, in.Accept(ctx, 5))
	g := NewGetter(in.Path)

	before, err := g.PassiveGet()
	require.NoError(t, err)

	g.Activate(ctx)
	g.Deactivate()

	after, err := g.PassiveGet()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRoundTripBindUnbindLeavesParentLastValue(t *testing.T) {
	ctx := context.Background()
	parent := NewIn[int]("parent", nil)
	require.NoError(t, parent.Accept(ctx, 1))
	require.NoError(t, parent.Accept(ctx, 2))

	l := NewLink[int]("l", nil)
	l.Bind(parent.Path)
	l.Unbind()

	cached, err := l.TryGet()
	require.NoError(t, err)
	assert.Equal(t, 2, cached)
}
