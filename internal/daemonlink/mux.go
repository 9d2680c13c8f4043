// Package daemonlink is the command multiplexer: it owns one outbound FIFO
// and one command_id-keyed completion map per connected daemon, and
// implements the request/reply correlation the wire protocol needs on top of
// a transport that otherwise only carries independent frames. Grounded on
// beads' internal/dialog.Client (a single mutex-guarded connection) and
// internal/rpc/server_lifecycle_conn.go's per-connection goroutine and panic
// recovery idiom, generalized from "one request in flight" to many
// concurrently pending commands per daemon.
package daemonlink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/0xcha05/prime/internal/telemetry"
	"github.com/0xcha05/prime/internal/types"
)

// commandMetrics holds lazily-initialized OTel instruments for daemon
// command dispatch.
var commandMetrics struct {
	sent     metric.Int64Counter
	duration metric.Float64Histogram
}

var commandMetricsOnce sync.Once

func initCommandMetrics() {
	m := telemetry.Meter("github.com/0xcha05/prime/daemonlink")
	commandMetrics.sent, _ = m.Int64Counter("prime.daemonlink.commands_sent",
		metric.WithDescription("Commands sent to daemons"),
		metric.WithUnit("{command}"),
	)
	commandMetrics.duration, _ = m.Float64Histogram("prime.daemonlink.command.duration",
		metric.WithDescription("Daemon command round-trip duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}

// ErrDaemonNotConnected is returned by Send when no link exists for the
// requested daemon.
var ErrDaemonNotConnected = types.NewError(types.ErrDaemonNotConnected, fmt.Errorf("daemon not connected"))

// link is the multiplexer's bookkeeping for one connected daemon: an
// outbound FIFO drained by the writer goroutine, and a map of commands
// awaiting a result frame.
type link struct {
	daemonID string
	out      chan []byte
	closed   chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	pending map[string]chan types.CommandOutcome
}

func newLink(daemonID string) *link {
	return &link{
		daemonID: daemonID,
		out:      make(chan []byte, 64),
		closed:   make(chan struct{}),
		pending:  make(map[string]chan types.CommandOutcome),
	}
}

// register installs a completion slot for commandID and returns the channel
// the caller should wait on.
func (l *link) register(commandID string) chan types.CommandOutcome {
	ch := make(chan types.CommandOutcome, 1)
	l.mu.Lock()
	l.pending[commandID] = ch
	l.mu.Unlock()
	return ch
}

// complete delivers a result to a pending command's slot, if one still
// exists. A result for an already-timed-out (and thus already-removed)
// command is silently dropped, per SPEC_FULL.md §4.3.
func (l *link) complete(commandID string, outcome types.CommandOutcome) {
	l.mu.Lock()
	ch, ok := l.pending[commandID]
	if ok {
		delete(l.pending, commandID)
	}
	l.mu.Unlock()
	if ok {
		ch <- outcome
	}
}

// remove drops a command's completion slot without delivering anything;
// used when Send gives up waiting (timeout or caller cancellation).
func (l *link) remove(commandID string) {
	l.mu.Lock()
	delete(l.pending, commandID)
	l.mu.Unlock()
}

// disconnect fails every still-pending command on this link and marks it
// closed so future Send calls fail fast.
func (l *link) disconnect() {
	l.closeOnce.Do(func() { close(l.closed) })
	l.mu.Lock()
	pending := l.pending
	l.pending = make(map[string]chan types.CommandOutcome)
	l.mu.Unlock()
	for _, ch := range pending {
		ch <- types.CommandOutcome{Err: types.NewError(types.ErrDaemonDisconnected, fmt.Errorf("daemon disconnected"))}
	}
}

// Multiplexer tracks one link per connected daemon and implements the
// correlated request/reply Send call used by everything upstream (the brain
// loop's execute_shell tool, the scheduler, the HTTP operator API).
type Multiplexer struct {
	log *zap.Logger

	mu    sync.RWMutex
	links map[string]*link
}

// New creates an empty Multiplexer.
func New(log *zap.Logger) *Multiplexer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Multiplexer{log: log, links: make(map[string]*link)}
}

// addLink installs a link for a newly-registered daemon and returns it so
// the caller (server.go) can start its writer/reader goroutines.
func (m *Multiplexer) addLink(daemonID string) *link {
	l := newLink(daemonID)
	m.mu.Lock()
	m.links[daemonID] = l
	m.mu.Unlock()
	return l
}

// DropLink removes and disconnects a daemon's link. Safe to call more than
// once; the second call is a no-op.
func (m *Multiplexer) DropLink(daemonID string) {
	m.mu.Lock()
	l, ok := m.links[daemonID]
	if ok {
		delete(m.links, daemonID)
	}
	m.mu.Unlock()
	if ok {
		l.disconnect()
	}
}

// Send implements the five-step correlated command protocol:
//  1. allocate a command_id
//  2. register a pending completion slot
//  3. enqueue {type, id, params} on the daemon's outbound FIFO
//  4. wait for the slot, the timeout, ctx cancellation, or a disconnect —
//     whichever comes first
//  5. always remove the pending entry on exit, whichever way it exits
func (m *Multiplexer) Send(ctx context.Context, daemonID, commandType string, params any, timeout time.Duration) (json.RawMessage, error) {
	commandMetricsOnce.Do(initCommandMetrics)
	tracer := telemetry.Tracer("github.com/0xcha05/prime/daemonlink")
	ctx, span := tracer.Start(ctx, "daemonlink.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("prime.daemon_id", daemonID),
		attribute.String("prime.command_type", commandType),
	)
	t0 := time.Now()
	result, err := m.send(ctx, daemonID, commandType, params, timeout)
	ms := float64(time.Since(t0).Milliseconds())

	attrs := metric.WithAttributes(attribute.String("prime.command_type", commandType))
	if commandMetrics.sent != nil {
		commandMetrics.sent.Add(ctx, 1, attrs)
		commandMetrics.duration.Record(ctx, ms, attrs)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}

func (m *Multiplexer) send(ctx context.Context, daemonID, commandType string, params any, timeout time.Duration) (json.RawMessage, error) {
	m.mu.RLock()
	l, ok := m.links[daemonID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrDaemonNotConnected
	}

	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("daemonlink: marshal params: %w", err)
	}
	commandID := uuid.NewString()
	frame, err := json.Marshal(CommandMsg{Type: commandType, ID: commandID, Params: rawParams})
	if err != nil {
		return nil, fmt.Errorf("daemonlink: marshal command: %w", err)
	}

	slot := l.register(commandID)
	defer l.remove(commandID)

	select {
	case l.out <- frame:
	case <-l.closed:
		return nil, types.NewError(types.ErrDaemonDisconnected, fmt.Errorf("daemon disconnected before send"))
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case outcome := <-slot:
		return outcome.Result, outcome.Err
	case <-timer.C:
		return nil, types.NewError(types.ErrCommandTimedOut, fmt.Errorf("command %s timed out after %s", commandID, timeout))
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closed:
		return nil, types.NewError(types.ErrDaemonDisconnected, fmt.Errorf("daemon disconnected while waiting"))
	}
}

// Connected reports whether daemonID currently has an active link.
func (m *Multiplexer) Connected(daemonID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.links[daemonID]
	return ok
}
