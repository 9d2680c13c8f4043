package daemonlink

import (
	"encoding/json"
	"fmt"
	"net"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/0xcha05/prime/internal/audit"
	"github.com/0xcha05/prime/internal/eventbus"
	"github.com/0xcha05/prime/internal/registry"
	"github.com/0xcha05/prime/internal/types"
	"github.com/0xcha05/prime/internal/wire"
)

// HandshakeTimeout bounds how long Server waits for the mandatory first
// registration frame before dropping a connection.
const HandshakeTimeout = 10 * time.Second

// Server accepts daemon connections, performs the registration handshake,
// and spawns a reader/writer goroutine pair per connected daemon.
type Server struct {
	log             *zap.Logger
	registry        *registry.Registry
	mux             *Multiplexer
	bus             *eventbus.Bus
	sink            *audit.Sink
	registrationKey string
}

// NewServer wires a Server against the shared registry, multiplexer, event
// bus, and audit sink.
func NewServer(log *zap.Logger, reg *registry.Registry, mux *Multiplexer, bus *eventbus.Bus, sink *audit.Sink, registrationKey string) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{log: log, registry: reg, mux: mux, bus: bus, sink: sink, registrationKey: registrationKey}
	reg.OnDisconnect(mux.DropLink)
	return s
}

// Serve accepts connections on ln until it returns an error (typically
// because ln was closed during shutdown).
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(nc net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("daemonlink: connection handler panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
	}()

	conn := wire.NewConn(nc)
	defer conn.Close()

	daemonID, ok := s.handshake(conn)
	if !ok {
		return
	}
	defer s.registry.Unregister(daemonID)

	l := s.mux.addLink(daemonID)
	defer s.mux.DropLink(daemonID)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(conn, l)
	}()

	s.readLoop(conn, daemonID, l)
	<-writerDone
}

// handshake enforces that the first frame on a new connection is a
// registration message, per SPEC_FULL.md §4.1/§6. It returns the assigned
// daemon_id, or ok=false if the connection should be dropped.
func (s *Server) handshake(conn *wire.Conn) (string, bool) {
	_ = conn.Raw().SetReadDeadline(time.Now().Add(HandshakeTimeout))
	env, raw, err := conn.ReadEnvelope()
	if err != nil {
		s.log.Warn("daemonlink: handshake read failed", zap.Error(err))
		return "", false
	}
	_ = conn.Raw().SetReadDeadline(time.Time{})

	if env.Type != TypeRegistration {
		s.log.Warn("daemonlink: first frame was not a registration message", zap.String("type", env.Type))
		return "", false
	}
	var reg RegistrationMsg
	if err := json.Unmarshal(raw, &reg); err != nil {
		s.log.Warn("daemonlink: malformed registration frame", zap.Error(err))
		return "", false
	}

	result := s.registry.Register(reg.RegistrationKey, reg.Name, reg.Hostname, reg.Capabilities, reg.IsSoulDaemon)
	ack := RegistrationAck{Type: TypeRegistrationAck, Success: result.Success}
	if result.Success {
		ack.DaemonID = result.Handle.DaemonID
		ack.Message = "registered"
	} else {
		ack.Message = result.Reason
	}
	if err := conn.WriteJSON(ack); err != nil {
		s.log.Warn("daemonlink: failed to write registration ack", zap.Error(err))
		return "", false
	}
	if !result.Success {
		return "", false
	}

	if s.bus != nil {
		s.bus.Publish(types.Event{Source: "daemonlink", Type: "connected", Payload: mustJSON(result.Handle)})
	}
	if s.sink != nil {
		_, _ = s.sink.Append(audit.Entry{Source: "daemonlink", Action: "daemon_registered", Detail: map[string]any{
			"daemon_id": result.Handle.DaemonID, "name": reg.Name, "hostname": reg.Hostname,
		}})
	}
	return result.Handle.DaemonID, true
}

// writeLoop drains the link's outbound FIFO onto the wire until the
// connection or link is closed.
func (s *Server) writeLoop(conn *wire.Conn, l *link) {
	for {
		select {
		case frame := <-l.out:
			if err := conn.WriteFrame(frame); err != nil {
				s.log.Warn("daemonlink: write failed", zap.String("daemon_id", l.daemonID), zap.Error(err))
				return
			}
		case <-l.closed:
			return
		}
	}
}

// readLoop demultiplexes inbound frames by type: heartbeats update the
// registry, results complete pending Send calls, alerts and daemon-originated
// events are forwarded to the audit sink and event bus respectively.
func (s *Server) readLoop(conn *wire.Conn, daemonID string, l *link) {
	defer l.disconnect()
	for {
		env, raw, err := conn.ReadEnvelope()
		if err != nil {
			return
		}
		switch env.Type {
		case TypeHeartbeat:
			var hb HeartbeatMsg
			if json.Unmarshal(raw, &hb) == nil {
				s.registry.UpdateHeartbeat(daemonID, types.Gauges{
					CPUPercent: hb.CPUPercent, MemoryPercent: hb.MemoryPercent,
					DiskPercent: hb.DiskPercent, ActiveTasks: hb.ActiveTasks,
				})
			}
		case TypeResult:
			var res struct {
				CommandID string          `json:"command_id"`
				Result    json.RawMessage `json:"result"`
				Error     string          `json:"error"`
			}
			if json.Unmarshal(raw, &res) != nil {
				continue
			}
			var outErr error
			if res.Error != "" {
				outErr = types.NewError(types.ErrToolFailed, fmt.Errorf("%s", res.Error))
			}
			l.complete(res.CommandID, types.CommandOutcome{Result: res.Result, Err: outErr})
		case TypeAlert:
			var alert AlertMsg
			if json.Unmarshal(raw, &alert) == nil && s.sink != nil {
				_, _ = s.sink.Append(audit.Entry{Source: "daemonlink", Action: "alert", Detail: map[string]any{
					"daemon_id": daemonID, "alert_type": alert.AlertType, "severity": alert.Severity, "message": alert.Message,
				}})
			}
		case TypeEvent:
			var ev EventMsg
			if json.Unmarshal(raw, &ev) == nil && s.bus != nil {
				name := daemonID
				if h := s.registry.Get(daemonID); h != nil {
					name = h.Name
				}
				eventType := ev.EventType
				if eventType == "" {
					eventType = "alert"
				}
				s.bus.Publish(types.Event{Source: "daemon:" + name, Type: eventType, Payload: ev.Payload})
			}
		default:
			s.log.Debug("daemonlink: unrecognized frame type", zap.String("type", env.Type), zap.String("daemon_id", daemonID))
		}
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
