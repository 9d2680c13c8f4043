// Package eventbus is Prime's internal publish/subscribe fabric. Components
// publish events with a free-form (source, type) pair — not a closed enum —
// and subscribers match on "*:type", "source:*", "source:type", or "*".
// Grounded on steveyegge/beads' internal/eventbus.Bus (priority-ordered,
// resilient dispatch with an optional JetStream fan-out), generalized from
// beads' fixed hook-event EventType to an open vocabulary since daemons,
// the scheduler, chat adapters, and the brain loop each mint their own event
// types without a central registry.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/0xcha05/prime/internal/telemetry"
	"github.com/0xcha05/prime/internal/types"
)

// dispatchMetrics holds lazily-initialized OTel instruments for bus dispatch.
var dispatchMetrics struct {
	dispatched metric.Int64Counter
	dropped    metric.Int64Counter
}

var dispatchMetricsOnce sync.Once

func initDispatchMetrics() {
	m := telemetry.Meter("github.com/0xcha05/prime/eventbus")
	dispatchMetrics.dispatched, _ = m.Int64Counter("prime.eventbus.dispatched",
		metric.WithDescription("Events dispatched to matched subscribers"),
		metric.WithUnit("{event}"),
	)
	dispatchMetrics.dropped, _ = m.Int64Counter("prime.eventbus.dropped",
		metric.WithDescription("Events dropped because the queue was full"),
		metric.WithUnit("{event}"),
	)
}

// QueueCapacity bounds the number of events buffered ahead of the dispatcher.
// Publish never blocks: once full, the oldest queued event is dropped to make
// room, matching the "non-blocking publish" invariant.
const QueueCapacity = 1024

// Bus dispatches events to pattern-matched subscribers on a background
// goroutine and optionally fans them out to NATS JetStream for durable,
// cross-process consumption.
type Bus struct {
	log *zap.Logger

	mu   sync.RWMutex
	subs []subscription
	js   nats.JetStreamContext

	queue chan types.Event
	done  chan struct{}
	wg    sync.WaitGroup
}

// New creates a Bus and starts its dispatcher goroutine. Call Close to stop it.
func New(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	dispatchMetricsOnce.Do(initDispatchMetrics)
	b := &Bus{
		log:   log,
		queue: make(chan types.Event, QueueCapacity),
		done:  make(chan struct{}),
	}
	b.wg.Add(1)
	go b.loop()
	return b
}

// SetJetStream attaches a JetStream context. Once set, every published event
// is additionally published to "prime.events.<source>.<type>" best-effort.
func (b *Bus) SetJetStream(js nats.JetStreamContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.js = js
}

// Subscribe registers a handler for events matching pattern and returns a
// subscription ID for later Unsubscribe.
func (b *Bus) Subscribe(pattern string, h Handler) string {
	id := uuid.NewString()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{id: id, pattern: pattern, handler: h})
	return id
}

// Unsubscribe removes a handler by ID. Returns true if it was found.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Publish enqueues an event for dispatch. Non-blocking: if the queue is full,
// the oldest pending event is dropped and logged so a slow subscriber can
// never stall a publisher.
func (b *Bus) Publish(event types.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case b.queue <- event:
		return
	default:
	}
	select {
	case dropped := <-b.queue:
		b.log.Warn("eventbus: queue full, dropped oldest event",
			zap.String("dropped_source", dropped.Source), zap.String("dropped_type", dropped.Type))
		if dispatchMetrics.dropped != nil {
			dispatchMetrics.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("prime.source", dropped.Source)))
		}
	default:
	}
	select {
	case b.queue <- event:
	default:
		b.log.Warn("eventbus: publish lost race against concurrent drain", zap.String("source", event.Source), zap.String("type", event.Type))
	}
}

// loop is the single dispatcher goroutine: it owns no lock while calling
// handlers, so a handler publishing a new event cannot deadlock the bus.
func (b *Bus) loop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return
		case event := <-b.queue:
			b.dispatch(event)
		}
	}
}

func (b *Bus) dispatch(event types.Event) {
	tracer := telemetry.Tracer("github.com/0xcha05/prime/eventbus")
	ctx, span := tracer.Start(context.Background(), "eventbus.dispatch")
	span.SetAttributes(attribute.String("prime.source", event.Source), attribute.String("prime.event_type", event.Type))
	defer span.End()

	b.mu.RLock()
	matched := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if matchPattern(s.pattern, event.Source, event.Type) {
			matched = append(matched, s)
		}
	}
	js := b.js
	b.mu.RUnlock()

	span.SetAttributes(attribute.Int("prime.matched_subscribers", len(matched)))
	if dispatchMetrics.dispatched != nil {
		dispatchMetrics.dispatched.Add(ctx, int64(len(matched)), metric.WithAttributes(
			attribute.String("prime.source", event.Source), attribute.String("prime.event_type", event.Type),
		))
	}

	for _, s := range matched {
		b.invoke(s, event)
	}

	if js != nil {
		b.publishToJetStream(js, event)
	}
}

// invoke calls a single handler with panic recovery: one misbehaving
// subscriber must never take down dispatch for the rest.
func (b *Bus) invoke(s subscription, event types.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("eventbus: handler panicked", zap.String("subscription", s.id), zap.Any("panic", r))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.handler(ctx, event)
}

func (b *Bus) publishToJetStream(js nats.JetStreamContext, event types.Event) {
	subject := fmt.Sprintf("prime.events.%s.%s", event.Source, event.Type)
	data, err := json.Marshal(event)
	if err != nil {
		b.log.Error("eventbus: marshal event for JetStream", zap.Error(err))
		return
	}
	if _, err := js.Publish(subject, data); err != nil {
		b.log.Warn("eventbus: JetStream publish failed", zap.String("subject", subject), zap.Error(err))
	}
}

// Close stops the dispatcher goroutine. Queued events not yet dispatched are
// dropped.
func (b *Bus) Close() {
	close(b.done)
	b.wg.Wait()
}
