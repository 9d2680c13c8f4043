package chatturn

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/0xcha05/prime/internal/types"
)

func TestSubmitRunsImmediatelyWhenIdle(t *testing.T) {
	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 1)

	s := New(func(_ context.Context, chatID string, trigger types.Event) {
		mu.Lock()
		got = append(got, trigger.ID)
		mu.Unlock()
		done <- struct{}{}
	})

	s.Submit(context.Background(), "chat-1", types.Event{ID: "e1"})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("turn never ran")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"e1"}, got)
}

func TestSubmitQueuesWhileTurnRunning(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var order []string
	var mu sync.Mutex
	turnDone := make(chan struct{}, 2)

	s := New(func(_ context.Context, chatID string, trigger types.Event) {
		mu.Lock()
		order = append(order, trigger.ID)
		mu.Unlock()
		if trigger.ID == "e1" {
			close(started)
			<-release
		}
		turnDone <- struct{}{}
	})

	s.Submit(context.Background(), "chat-1", types.Event{ID: "e1"})
	<-started
	require.True(t, s.InFlight("chat-1"))

	s.Submit(context.Background(), "chat-1", types.Event{ID: "e2"})
	close(release)

	<-turnDone
	<-turnDone

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"e1", "e2"}, order)
}

func TestDrainReturnsAndClearsQueuedEvents(t *testing.T) {
	s := New(func(_ context.Context, _ string, _ types.Event) {})
	s.mu.Lock()
	s.running["chat-1"] = true
	s.mu.Unlock()

	s.Submit(context.Background(), "chat-1", types.Event{ID: "a"})
	s.Submit(context.Background(), "chat-1", types.Event{ID: "b"})

	drained := s.Drain("chat-1")
	require.Len(t, drained, 2)
	require.Empty(t, s.Drain("chat-1"))
}

func TestIndependentChatsRunConcurrently(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(2)
	s := New(func(_ context.Context, chatID string, _ types.Event) {
		defer wg.Done()
		time.Sleep(20 * time.Millisecond)
	})

	start := time.Now()
	s.Submit(context.Background(), "chat-1", types.Event{ID: "a"})
	s.Submit(context.Background(), "chat-2", types.Event{ID: "b"})
	wg.Wait()
	require.Less(t, time.Since(start), 100*time.Millisecond)
}
