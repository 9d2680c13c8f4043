package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/0xcha05/prime/internal/types"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestPublishDispatchesToMatchingPattern(t *testing.T) {
	b := New(zaptest.NewLogger(t))
	defer b.Close()

	var mu sync.Mutex
	var got []types.Event
	b.Subscribe("daemon:*", func(_ context.Context, e types.Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})

	b.Publish(types.Event{Source: "daemon", Type: "connected"})
	b.Publish(types.Event{Source: "scheduler", Type: "tick"})

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	require.Equal(t, "connected", got[0].Type)
}

func TestPublishWildcardType(t *testing.T) {
	b := New(zaptest.NewLogger(t))
	defer b.Close()

	ch := make(chan types.Event, 4)
	b.Subscribe("*:tick", func(_ context.Context, e types.Event) { ch <- e })

	b.Publish(types.Event{Source: "scheduler", Type: "tick"})
	b.Publish(types.Event{Source: "workspace", Type: "tick"})

	for i := 0; i < 2; i++ {
		select {
		case e := <-ch:
			require.Equal(t, "tick", e.Type)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(zaptest.NewLogger(t))
	defer b.Close()

	var calls int
	var mu sync.Mutex
	id := b.Subscribe("*", func(_ context.Context, _ types.Event) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.True(t, b.Unsubscribe(id))
	require.False(t, b.Unsubscribe(id))

	b.Publish(types.Event{Source: "x", Type: "y"})
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Zero(t, calls)
}

func TestHandlerPanicDoesNotStopDispatch(t *testing.T) {
	b := New(zaptest.NewLogger(t))
	defer b.Close()

	ch := make(chan struct{}, 1)
	b.Subscribe("*", func(_ context.Context, _ types.Event) { panic("boom") })
	b.Subscribe("*", func(_ context.Context, _ types.Event) { ch <- struct{}{} })

	b.Publish(types.Event{Source: "a", Type: "b"})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("second handler never ran after first panicked")
	}
}

func TestPublishDropsOldestWhenQueueFull(t *testing.T) {
	b := &Bus{queue: make(chan types.Event, 2), done: make(chan struct{})}
	b.log = zaptest.NewLogger(t)

	b.Publish(types.Event{Source: "s", Type: "1"})
	b.Publish(types.Event{Source: "s", Type: "2"})
	b.Publish(types.Event{Source: "s", Type: "3"})

	require.Len(t, b.queue, 2)
	first := <-b.queue
	require.Equal(t, "2", first.Type)
}

func TestMatchPattern(t *testing.T) {
	require.True(t, matchPattern("*", "daemon", "connected"))
	require.True(t, matchPattern("daemon:*", "daemon", "connected"))
	require.True(t, matchPattern("*:connected", "daemon", "connected"))
	require.True(t, matchPattern("daemon:connected", "daemon", "connected"))
	require.False(t, matchPattern("daemon:connected", "daemon", "disconnected"))
	require.False(t, matchPattern("scheduler:*", "daemon", "connected"))
}
