package daemonlink

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/0xcha05/prime/internal/types"
)

func TestSendReturnsErrDaemonNotConnected(t *testing.T) {
	m := New(nil)
	_, err := m.Send(context.Background(), "daemon-0001", "execute_shell", nil, time.Second)
	require.ErrorIs(t, err, ErrDaemonNotConnected)
}

func TestSendRoundTripsThroughLink(t *testing.T) {
	m := New(nil)
	l := m.addLink("daemon-0001")

	done := make(chan struct {
		result json.RawMessage
		err    error
	}, 1)
	go func() {
		res, err := m.Send(context.Background(), "daemon-0001", "ping", nil, time.Second)
		done <- struct {
			result json.RawMessage
			err    error
		}{res, err}
	}()

	var frame []byte
	select {
	case frame = <-l.out:
	case <-time.After(time.Second):
		t.Fatal("command never enqueued")
	}
	var cmd CommandMsg
	require.NoError(t, json.Unmarshal(frame, &cmd))
	require.Equal(t, "ping", cmd.Type)

	l.complete(cmd.ID, types.CommandOutcome{Result: json.RawMessage(`{"ok":true}`)})

	out := <-done
	require.NoError(t, out.err)
	require.JSONEq(t, `{"ok":true}`, string(out.result))
}

func TestSendTimesOutWhenNoResultArrives(t *testing.T) {
	m := New(nil)
	m.addLink("daemon-0001")

	_, err := m.Send(context.Background(), "daemon-0001", "ping", nil, 20*time.Millisecond)
	var coded *types.CodedError
	require.ErrorAs(t, err, &coded)
	require.Equal(t, types.ErrCommandTimedOut, coded.Kind)
}

func TestDisconnectFailsAllPendingCommands(t *testing.T) {
	m := New(nil)
	m.addLink("daemon-0001")

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := m.Send(context.Background(), "daemon-0001", "ping", nil, time.Second)
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	m.DropLink("daemon-0001")

	for i := 0; i < 2; i++ {
		err := <-errs
		var coded *types.CodedError
		require.ErrorAs(t, err, &coded)
		require.Equal(t, types.ErrDaemonDisconnected, coded.Kind)
	}
}

func TestSendRespectsContextCancellation(t *testing.T) {
	m := New(nil)
	m.addLink("daemon-0001")

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := m.Send(ctx, "daemon-0001", "ping", nil, time.Minute)
		errs <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	require.ErrorIs(t, <-errs, context.Canceled)
}
