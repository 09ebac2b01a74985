package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// blockUntilCancelled returns a RunFunc that counts live instances.
func blockUntilCancelled(live *atomic.Int32) RunFunc {
	return func(ctx context.Context) {
		live.Add(1)
		defer live.Add(-1)
		<-ctx.Done()
	}
}

func mustReplace(t *testing.T, table *Table, parent context.Context, key Key, run RunFunc) *Handle {
	t.Helper()
	h, err := table.Replace(context.Background(), parent, key, run)
	require.NoError(t, err)
	return h
}

func TestKeys(t *testing.T) {
	assert.Equal(t, Key("pod_watch:c1:default"), PodWatchKey("c1", "default"))
	assert.Equal(t, Key("pod_watch:c1:all"), PodWatchKey("c1", "all"))
	assert.Equal(t, Key("logs:abc"), LogTailKey("abc"))
}

func TestReplace_StartsAndRegisters(t *testing.T) {
	table := NewTable()
	var live atomic.Int32

	h := mustReplace(t, table, context.Background(), "k", blockUntilCancelled(&live))
	require.Eventually(t, func() bool { return live.Load() == 1 }, waitFor, time.Millisecond)

	got, ok := table.Get("k")
	require.True(t, ok)
	assert.Same(t, h, got)
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, Key("k"), h.Key())

	h.Cancel()
	require.NoError(t, h.Wait(context.Background()))
	assert.Eventually(t, func() bool { return table.Len() == 0 }, waitFor, time.Millisecond)
}

func TestReplace_StopsPreviousFirst(t *testing.T) {
	table := NewTable()
	var live atomic.Int32

	first := mustReplace(t, table, context.Background(), "k", blockUntilCancelled(&live))
	require.Eventually(t, func() bool { return live.Load() == 1 }, waitFor, time.Millisecond)

	var overlap atomic.Bool
	second := mustReplace(t, table, context.Background(), "k", func(ctx context.Context) {
		// The previous session must have fully returned before this one runs.
		if live.Load() != 0 {
			overlap.Store(true)
		}
		blockUntilCancelled(&live)(ctx)
	})

	select {
	case <-first.Done():
	default:
		t.Fatal("first session still running after Replace returned")
	}

	require.Eventually(t, func() bool { return live.Load() == 1 }, waitFor, time.Millisecond)
	assert.False(t, overlap.Load())

	got, ok := table.Get("k")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.Equal(t, 1, table.Len())

	require.NoError(t, table.CancelAll(context.Background()))
}

func TestReplace_ConcurrentOnSameKey(t *testing.T) {
	table := NewTable()
	var live atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := table.Replace(context.Background(), context.Background(), "k", blockUntilCancelled(&live))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return live.Load() == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, 1, table.Len())
	// Give any straggler a chance to show up as a second live session.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), live.Load())

	require.NoError(t, table.CancelAll(context.Background()))
	assert.Equal(t, int32(0), live.Load())
}

func TestReplace_DistinctKeysIndependent(t *testing.T) {
	table := NewTable()
	var live atomic.Int32

	a := mustReplace(t, table, context.Background(), PodWatchKey("c", "a"), blockUntilCancelled(&live))
	mustReplace(t, table, context.Background(), PodWatchKey("c", "b"), blockUntilCancelled(&live))
	require.Eventually(t, func() bool { return live.Load() == 2 }, waitFor, time.Millisecond)

	_, ok := table.Remove(PodWatchKey("c", "a"))
	require.True(t, ok)
	require.NoError(t, a.Wait(context.Background()))

	assert.Equal(t, []Key{PodWatchKey("c", "b")}, table.Keys())
	require.NoError(t, table.CancelAll(context.Background()))
}

func TestReplace_SessionThatEndsImmediately(t *testing.T) {
	table := NewTable()

	h := mustReplace(t, table, context.Background(), "k", func(context.Context) {})
	require.NoError(t, h.Wait(context.Background()))

	assert.Eventually(t, func() bool { return table.Len() == 0 }, waitFor, time.Millisecond)
}

func TestReplace_ParentCancellation(t *testing.T) {
	table := NewTable()
	var live atomic.Int32
	parent, cancel := context.WithCancel(context.Background())

	h := mustReplace(t, table, parent, "k", blockUntilCancelled(&live))
	cancel()

	require.NoError(t, h.Wait(context.Background()))
	assert.Eventually(t, func() bool { return table.Len() == 0 }, waitFor, time.Millisecond)
}

func TestReplace_PreviousSessionDoesNotStopInTime(t *testing.T) {
	table := NewTable()
	var live, maxLive atomic.Int32
	track := func(ctx context.Context, teardown time.Duration) {
		n := live.Add(1)
		defer live.Add(-1)
		for {
			m := maxLive.Load()
			if n <= m || maxLive.CompareAndSwap(m, n) {
				break
			}
		}
		<-ctx.Done()
		time.Sleep(teardown)
	}

	first := mustReplace(t, table, context.Background(), "k", func(ctx context.Context) {
		track(ctx, 200*time.Millisecond)
	})
	require.Eventually(t, func() bool { return live.Load() == 1 }, waitFor, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var started atomic.Bool
	h, err := table.Replace(ctx, context.Background(), "k", func(ctx context.Context) {
		started.Store(true)
		track(ctx, 0)
	})
	require.ErrorIs(t, err, ErrStopTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, h)

	// The old session keeps its slot until it has returned.
	got, ok := table.Get("k")
	require.True(t, ok)
	assert.Same(t, first, got)

	require.NoError(t, first.Wait(context.Background()))
	assert.Eventually(t, func() bool { return table.Len() == 0 }, waitFor, time.Millisecond)
	assert.False(t, started.Load())
	assert.Equal(t, int32(1), maxLive.Load())

	// Once the old session is gone the key can be reused.
	second := mustReplace(t, table, context.Background(), "k", func(ctx context.Context) { track(ctx, 0) })
	require.Eventually(t, func() bool { return live.Load() == 1 }, waitFor, time.Millisecond)
	second.Cancel()
	require.NoError(t, second.Wait(context.Background()))
	assert.Equal(t, int32(1), maxLive.Load())
}

func TestRemove_RightAfterReplace(t *testing.T) {
	table := NewTable()
	var live atomic.Int32

	for i := 0; i < 50; i++ {
		h := mustReplace(t, table, context.Background(), "k", blockUntilCancelled(&live))

		removed, ok := table.Remove("k")
		require.True(t, ok, "iteration %d", i)
		assert.Same(t, h, removed)
		require.NoError(t, h.Wait(context.Background()))
	}

	assert.Equal(t, int32(0), live.Load())
	assert.Equal(t, 0, table.Len())
}

func TestRemove(t *testing.T) {
	table := NewTable()
	var live atomic.Int32

	h := mustReplace(t, table, context.Background(), "k", blockUntilCancelled(&live))

	removed, ok := table.Remove("k")
	require.True(t, ok)
	assert.Same(t, h, removed)
	require.NoError(t, h.Wait(context.Background()))

	// Idempotent.
	_, ok = table.Remove("k")
	assert.False(t, ok)
	_, ok = table.Remove("never")
	assert.False(t, ok)
}

func TestRelease_OnlyRemovesOwnHandle(t *testing.T) {
	table := NewTable()
	var live atomic.Int32

	first := mustReplace(t, table, context.Background(), "k", blockUntilCancelled(&live))
	second := mustReplace(t, table, context.Background(), "k", blockUntilCancelled(&live))

	// A late release from the stale handle must not evict the new one.
	table.release("k", first)

	got, ok := table.Get("k")
	require.True(t, ok)
	assert.Same(t, second, got)

	require.NoError(t, table.CancelAll(context.Background()))
}

func TestCancelAll(t *testing.T) {
	table := NewTable()
	var live atomic.Int32

	for _, k := range []Key{"a", "b", "c"} {
		mustReplace(t, table, context.Background(), k, blockUntilCancelled(&live))
	}
	require.Eventually(t, func() bool { return live.Load() == 3 }, waitFor, time.Millisecond)

	require.NoError(t, table.CancelAll(context.Background()))
	assert.Equal(t, int32(0), live.Load())
	assert.Equal(t, 0, table.Len())
}
