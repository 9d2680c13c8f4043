// Package chatturn enforces that at most one brain-loop turn is in flight
// per chat_id, queues events that arrive while a turn is running, and lets
// the in-flight turn periodically absorb newly-queued events mid-turn
// instead of making them wait for the next turn. Grounded on the
// cooperative-suspension idiom golang.org/x/sync's errgroup/singleflight
// apply elsewhere in the pack, adapted here to a per-key (not global)
// single-flight since each chat_id serializes independently of every other.
package chatturn

import (
	"context"
	"sync"

	"github.com/0xcha05/prime/internal/types"
)

// Dispatch runs one brain-loop turn for chatID, triggered by trigger. It is
// expected to call Serializer.Drain(chatID) between tool-result batches to
// absorb mid-turn arrivals.
type Dispatch func(ctx context.Context, chatID string, trigger types.Event)

// Serializer owns the per-chat in-flight flag and pending-event queue.
type Serializer struct {
	dispatch Dispatch

	mu      sync.Mutex
	running map[string]bool
	queue   map[string][]types.Event
}

// New creates a Serializer that calls dispatch to run each turn.
func New(dispatch Dispatch) *Serializer {
	return &Serializer{
		dispatch: dispatch,
		running:  make(map[string]bool),
		queue:    make(map[string][]types.Event),
	}
}

// Submit enqueues event for chatID. If no turn is currently running for that
// chat, it starts one immediately (using event as the trigger); otherwise
// event joins the pending queue for absorption or a later turn.
func (s *Serializer) Submit(ctx context.Context, chatID string, event types.Event) {
	s.mu.Lock()
	if s.running[chatID] {
		s.queue[chatID] = append(s.queue[chatID], event)
		s.mu.Unlock()
		return
	}
	s.running[chatID] = true
	s.mu.Unlock()

	go s.runTurn(ctx, chatID, event)
}

func (s *Serializer) runTurn(ctx context.Context, chatID string, trigger types.Event) {
	s.dispatch(ctx, chatID, trigger)
	s.completeTurn(chatID)
}

// completeTurn implements SPEC_FULL.md §4.5's completion rule: if the
// pending queue is non-empty, pop the head and start the next turn;
// entries past the head remain queued in arrival order for later turns.
func (s *Serializer) completeTurn(chatID string) {
	s.mu.Lock()
	q := s.queue[chatID]
	if len(q) == 0 {
		s.running[chatID] = false
		s.mu.Unlock()
		return
	}
	next := q[0]
	s.queue[chatID] = q[1:]
	s.mu.Unlock()

	go s.runTurn(context.Background(), chatID, next)
}

// Drain removes and returns every event currently queued for chatID. Called
// by an in-flight turn between tool-result batches to absorb "wait, also do
// X" messages into the next model round instead of deferring them.
func (s *Serializer) Drain(chatID string) []types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.queue[chatID]
	s.queue[chatID] = nil
	return msgs
}

// InFlight reports whether a turn is currently running for chatID. No HTTP
// route exposes it.
func (s *Serializer) InFlight(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[chatID]
}
