package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishDepth(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, 0, publishDepth(ctx))

	one := nested(ctx, publishDepth(ctx))
	two := nested(one, publishDepth(one))
	assert.Equal(t, 1, publishDepth(one))
	assert.Equal(t, 2, publishDepth(two))
}

func TestNested_DropsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inner := nested(ctx, 0)
	assert.NoError(t, inner.Err())
	assert.Equal(t, 1, publishDepth(inner))
}

func TestMaxDepth_Default(t *testing.T) {
	assert.Equal(t, DefaultMaxPublishDepth, maxDepth(0))
	assert.Equal(t, DefaultMaxPublishDepth, maxDepth(-3))
	assert.Equal(t, 7, maxDepth(7))
}

func TestContext_DispatchCarriesDepth(t *testing.T) {
	e := newTestEngine(t)
	assert.Equal(t, 0, publishDepth(e.Context().Dispatch()))

	var depths []int
	_, err := e.Register(KindShutdown, CallbackFunc(func(c *Context, _ Event) error {
		depths = append(depths, publishDepth(c.Dispatch()))
		return nil
	}))
	require.NoError(t, err)
	_, err = e.Register(KindStartup, CallbackFunc(func(c *Context, _ Event) error {
		depths = append(depths, publishDepth(c.Dispatch()))
		return e.PublishContext(c.Dispatch(), Shutdown{})
	}))
	require.NoError(t, err)

	require.NoError(t, e.Publish(Startup{}))
	assert.Equal(t, []int{1, 2}, depths)
}

func TestPublish_SelfRepublishingCallbackStops(t *testing.T) {
	rec := newCountingRecorder()
	e := newTestEngine(t, WithMaxPublishDepth(4), WithMetrics(rec))

	calls := 0
	var innermost error
	_, err := e.Register(KindStartup, CallbackFunc(func(c *Context, ev Event) error {
		calls++
		err := e.PublishContext(c.Dispatch(), ev)
		if IsCycle(err) {
			innermost = err
		}
		return err
	}))
	require.NoError(t, err)

	require.NoError(t, e.Publish(Startup{}), "the outermost publish isolates callback failures")

	assert.Equal(t, 4, calls)
	require.Error(t, innermost)
	assert.Contains(t, innermost.Error(), "nested publish depth exceeded 4")
	assert.Equal(t, 1, rec.failed[KindStartup.String()], "only the innermost callback sees the cycle error")
}

func TestPublish_NestedBelowLimitSucceeds(t *testing.T) {
	e := newTestEngine(t, WithMaxPublishDepth(3))
	shutdowns := record(t, e, KindShutdown)

	_, err := e.Register(KindStartup, CallbackFunc(func(c *Context, _ Event) error {
		return e.PublishContext(c.Dispatch(), Shutdown{})
	}))
	require.NoError(t, err)

	require.NoError(t, e.Publish(Startup{}))
	assert.Equal(t, 1, shutdowns.Len())
}

// Publishes blocked in callbacks on other goroutines are separate chains and
// must not use up the depth of an unrelated publish.
func TestPublish_ConcurrentPublishersDoNotAddUp(t *testing.T) {
	const blocked = 8
	e := newTestEngine(t, WithMaxPublishDepth(2))

	release := make(chan struct{})
	var entered sync.WaitGroup
	entered.Add(blocked)
	_, err := e.Register(KindStartup, CallbackFunc(func(*Context, Event) error {
		entered.Done()
		<-release
		return nil
	}))
	require.NoError(t, err)
	shutdowns := record(t, e, KindShutdown)

	var done sync.WaitGroup
	for i := 0; i < blocked; i++ {
		done.Add(1)
		go func() {
			defer done.Done()
			assert.NoError(t, e.Publish(Startup{}))
		}()
	}
	entered.Wait()

	require.NoError(t, e.Publish(Shutdown{}))
	assert.Equal(t, 1, shutdowns.Len())

	require.NoError(t, e.PublishContext(e.Context().Dispatch(), Shutdown{}))
	assert.Equal(t, 2, shutdowns.Len())

	close(release)
	waitGroupDone(t, &done)
}

func waitGroupDone(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	ch := make(chan struct{})
	go func() {
		wg.Wait()
		close(ch)
	}()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("publishers did not finish")
	}
}
