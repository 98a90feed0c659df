package httpconn

import (
	"fmt"
	"strings"

	"github.com/corvid-labs/httpagent/pkg/message"
)

// WriteRequest serializes req onto the wire: request line, headers
// (PrepareHeaders defaults merged with req.Headers, then
// UnredirectedHeaders layered on top since those only ever apply to the
// hop they were set for), and body.
func (c *Conn) WriteRequest(req *message.Request) error {
	req.PrepareHeaders()

	headers := req.Headers.Clone()
	headers.Merge(req.UnredirectedHeaders)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", req.Method, req.URL.RequestURI())
	for _, key := range headers.Keys() {
		for _, v := range headers.Values(key) {
			fmt.Fprintf(&b, "%s: %s\r\n", key, v)
		}
	}
	b.WriteString("\r\n")

	if err := c.applyWriteDeadline(); err != nil {
		return err
	}
	if _, err := c.raw.Write([]byte(b.String())); err != nil {
		return err
	}
	if len(req.Data) > 0 {
		if err := c.applyWriteDeadline(); err != nil {
			return err
		}
		if _, err := c.raw.Write(req.Data); err != nil {
			return err
		}
	}
	return nil
}
