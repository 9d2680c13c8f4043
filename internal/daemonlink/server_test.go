package daemonlink

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/0xcha05/prime/internal/audit"
	"github.com/0xcha05/prime/internal/eventbus"
	"github.com/0xcha05/prime/internal/registry"
	"github.com/0xcha05/prime/internal/types"
	"github.com/0xcha05/prime/internal/wire"
)

func startTestServer(t *testing.T, registrationKey string) (net.Listener, *Server, *Multiplexer, *registry.Registry) {
	t.Helper()
	ln, mux, reg, _ := startTestServerWithBus(t, registrationKey)
	return ln, nil, mux, reg
}

func startTestServerWithBus(t *testing.T, registrationKey string) (net.Listener, *Multiplexer, *registry.Registry, *eventbus.Bus) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	reg := registry.New(registrationKey)
	mux := New(nil)
	bus := eventbus.New(nil)
	t.Cleanup(bus.Close)
	sink, err := audit.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	srv := NewServer(nil, reg, mux, bus, sink, registrationKey)
	go func() { _ = srv.Serve(ln) }()
	return ln, mux, reg, bus
}

func TestHandshakeRegistersDaemonAndSendsAck(t *testing.T) {
	ln, _, mux, reg := startTestServer(t, "")

	raw, err := wire.Dial(ln.Addr().String(), time.Second)
	require.NoError(t, err)
	client := wire.NewConn(raw)
	defer client.Close()

	require.NoError(t, client.WriteJSON(RegistrationMsg{Type: TypeRegistration, Name: "macbook", Hostname: "mb.local"}))
	env, body, err := client.ReadEnvelope()
	require.NoError(t, err)
	require.Equal(t, TypeRegistrationAck, env.Type)

	var ack RegistrationAck
	require.NoError(t, json.Unmarshal(body, &ack))
	require.True(t, ack.Success)
	require.NotEmpty(t, ack.DaemonID)

	require.Eventually(t, func() bool { return mux.Connected(ack.DaemonID) }, time.Second, 10*time.Millisecond)
	require.NotNil(t, reg.Get(ack.DaemonID))
}

func TestHandshakeRejectsNonRegistrationFirstFrame(t *testing.T) {
	ln, _, _, _ := startTestServer(t, "")

	raw, err := wire.Dial(ln.Addr().String(), time.Second)
	require.NoError(t, err)
	client := wire.NewConn(raw)
	defer client.Close()

	require.NoError(t, client.WriteJSON(HeartbeatMsg{Type: TypeHeartbeat}))
	_, err = client.ReadFrame()
	require.Error(t, err)
}

func TestCommandRoundTripOverWire(t *testing.T) {
	ln, _, mux, _ := startTestServer(t, "secret")

	raw, err := wire.Dial(ln.Addr().String(), time.Second)
	require.NoError(t, err)
	client := wire.NewConn(raw)
	defer client.Close()

	require.NoError(t, client.WriteJSON(RegistrationMsg{Type: TypeRegistration, RegistrationKey: "secret", Name: "macbook", Hostname: "mb.local"}))
	_, ackBody, err := client.ReadEnvelope()
	require.NoError(t, err)
	var ack RegistrationAck
	require.NoError(t, json.Unmarshal(ackBody, &ack))
	require.True(t, ack.Success)

	require.Eventually(t, func() bool { return mux.Connected(ack.DaemonID) }, time.Second, 10*time.Millisecond)

	type sendResult struct {
		result json.RawMessage
		err    error
	}
	done := make(chan sendResult, 1)
	go func() {
		res, err := mux.Send(context.Background(), ack.DaemonID, "execute_shell", map[string]string{"cmd": "echo hi"}, 2*time.Second)
		done <- sendResult{res, err}
	}()

	env, body, err := client.ReadEnvelope()
	require.NoError(t, err)
	require.Equal(t, "execute_shell", env.Type)
	var cmd CommandMsg
	require.NoError(t, json.Unmarshal(body, &cmd))

	require.NoError(t, client.WriteJSON(map[string]any{
		"type":       TypeResult,
		"command_id": cmd.ID,
		"result":     json.RawMessage(`{"output":"hi"}`),
	}))

	out := <-done
	require.NoError(t, out.err)
	require.JSONEq(t, `{"output":"hi"}`, string(out.result))
}

func TestEventFrameRepublishesWithDaemonSourceAndAlertDefault(t *testing.T) {
	ln, _, _, bus := startTestServerWithBus(t, "")

	raw, err := wire.Dial(ln.Addr().String(), time.Second)
	require.NoError(t, err)
	client := wire.NewConn(raw)
	defer client.Close()

	require.NoError(t, client.WriteJSON(RegistrationMsg{Type: TypeRegistration, Name: "macbook", Hostname: "mb.local"}))
	_, ackBody, err := client.ReadEnvelope()
	require.NoError(t, err)
	var ack RegistrationAck
	require.NoError(t, json.Unmarshal(ackBody, &ack))
	require.True(t, ack.Success)

	seen := make(chan types.Event, 1)
	bus.Subscribe("*", func(_ context.Context, ev types.Event) {
		if ev.Source == "daemon:macbook" {
			seen <- ev
		}
	})

	// Omits both source and event_type, both optional on the wire.
	require.NoError(t, client.WriteJSON(map[string]any{"type": TypeEvent}))

	select {
	case ev := <-seen:
		require.Equal(t, "daemon:macbook", ev.Source)
		require.Equal(t, "alert", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("event was not republished onto the bus")
	}
}

func TestRegistrationBadKeyRejected(t *testing.T) {
	ln, _, _, _ := startTestServer(t, "secret")

	raw, err := wire.Dial(ln.Addr().String(), time.Second)
	require.NoError(t, err)
	client := wire.NewConn(raw)
	defer client.Close()

	require.NoError(t, client.WriteJSON(RegistrationMsg{Type: TypeRegistration, RegistrationKey: "wrong", Name: "macbook"}))
	_, body, err := client.ReadEnvelope()
	require.NoError(t, err)
	var ack RegistrationAck
	require.NoError(t, json.Unmarshal(body, &ack))
	require.False(t, ack.Success)
}
