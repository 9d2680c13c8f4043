package wire

import (
	"net"
	"time"
)

// Listen creates a TCP listener for the daemon wire protocol. TLS, when
// configured, is layered on by the caller (crypto/tls.NewListener) before
// Accept is called in a loop — this keeps the framing layer transport-
// agnostic, same split beads draws between its unix-socket and TCP
// listeners.
func Listen(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}

// Dial connects to a Prime daemon listener with a bounded timeout.
func Dial(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, timeout)
}
