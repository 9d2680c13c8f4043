// Package wire implements Prime's daemon wire protocol: a length-prefixed
// JSON frame over a reliable byte stream. A message is a 4-byte big-endian
// unsigned length followed by that many bytes of UTF-8 JSON. The transport
// defines no application semantics beyond framing and the rule that the
// first frame from a daemon MUST be a registration message.
package wire

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
)

// MaxFrameBytes bounds a single frame to guard against a misbehaving or
// malicious peer declaring an enormous length and exhausting memory.
const MaxFrameBytes = 64 << 20 // 64 MiB

// ErrFrameTooLarge is returned by ReadFrame when the declared length exceeds
// MaxFrameBytes.
var ErrFrameTooLarge = fmt.Errorf("wire: frame exceeds %d bytes", MaxFrameBytes)

// Envelope is the minimal shape every wire message satisfies: every JSON
// object carries a "type" discriminator. Application packages decode the
// rest of the payload themselves once they've dispatched on Type.
type Envelope struct {
	Type string `json:"type"`
}

// Conn wraps a net.Conn with buffered framed read/write. Reads and writes
// are not safe for concurrent use from multiple goroutines on the same
// side (callers serialize writes through a single writer task, per
// SPEC_FULL.md §4.3/§5).
type Conn struct {
	nc     net.Conn
	reader *bufio.Reader
}

// NewConn wraps an established connection for framed I/O.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc, reader: bufio.NewReaderSize(nc, 32*1024)}
}

// Raw returns the underlying net.Conn, e.g. to set deadlines or close.
func (c *Conn) Raw() net.Conn { return c.nc }

// ReadFrame reads one length-prefixed JSON message. io.EOF and short reads
// both terminate the connection — callers should close on any error.
func (c *Conn) ReadFrame() (json.RawMessage, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.reader, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameBytes {
		return nil, ErrFrameTooLarge
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.reader, buf); err != nil {
		return nil, err
	}
	return json.RawMessage(buf), nil
}

// WriteFrame writes one length-prefixed JSON message. Callers are
// responsible for ensuring writes to one Conn are serialized (one writer
// goroutine per connection), so frames are never interleaved.
func (c *Conn) WriteFrame(payload json.RawMessage) error {
	if len(payload) > MaxFrameBytes {
		return ErrFrameTooLarge
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := c.nc.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := c.nc.Write(payload)
	return err
}

// WriteJSON marshals v and writes it as one frame.
func (c *Conn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: marshal: %w", err)
	}
	return c.WriteFrame(data)
}

// ReadEnvelope reads one frame and decodes just its "type" discriminator,
// returning the raw frame alongside for a second, type-specific decode.
// A missing "type" field is reported as an error; callers should close the
// connection with a protocol error in that case, per SPEC_FULL.md §4.1.
func (c *Conn) ReadEnvelope() (Envelope, json.RawMessage, error) {
	raw, err := c.ReadFrame()
	if err != nil {
		return Envelope{}, nil, err
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, raw, fmt.Errorf("wire: invalid frame: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, raw, fmt.Errorf("wire: frame missing \"type\" field")
	}
	return env, raw, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.nc.Close() }
