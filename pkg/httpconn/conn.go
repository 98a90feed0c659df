// Package httpconn implements the HTTP/1.1 protocol engine: serializing a
// message.Request onto the wire and parsing a message.Response back off
// it, plus (in socks.go) the SOCKS4/4a tunnel handshake that the same
// engine runs over transparently once established. A Conn understands one
// physical connection; pipelining two requests down it is the caller's
// concern (pkg/requester) -- WriteRequest and ReadResponse only need to be
// called in matching order, not serialized against each other, since one
// only ever writes and the other only ever reads.
package httpconn

import (
	"bufio"
	"net"
	"time"
)

const maxHeaderBytes = 64 * 1024

// Options configures per-connection timeouts. Zero values mean "no
// deadline".
type Options struct {
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

// Conn is an HTTP/1.1 connection: a net.Conn plus the buffered reader its
// response parsing needs to survive across multiple ReadResponse calls
// (pipelined responses arrive back to back on the same stream).
type Conn struct {
	raw    net.Conn
	reader *bufio.Reader
	opts   Options
}

// New wraps an established net.Conn (direct, TLS, or post-SOCKS-handshake
// tunnel -- all look the same from here) as an HTTP/1.1 Conn.
func New(raw net.Conn, opts Options) *Conn {
	return &Conn{
		raw:    raw,
		reader: bufio.NewReader(raw),
		opts:   opts,
	}
}

// Raw returns the underlying net.Conn, e.g. so a caller can upgrade it to
// TLS after a SOCKS handshake grants the tunnel.
func (c *Conn) Raw() net.Conn {
	return c.raw
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.raw.Close()
}

func (c *Conn) applyWriteDeadline() error {
	if c.opts.WriteTimeout <= 0 {
		return nil
	}
	return c.raw.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
}

func (c *Conn) applyReadDeadline() error {
	if c.opts.ReadTimeout <= 0 {
		return nil
	}
	return c.raw.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
}
