package httpconn

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/corvid-labs/httpagent/pkg/constants"
	"github.com/corvid-labs/httpagent/pkg/decode"
	rherrors "github.com/corvid-labs/httpagent/pkg/errors"
	"github.com/corvid-labs/httpagent/pkg/message"
)

// ReadResponse parses one HTTP/1.1 response off the wire into resp:
// status line, headers, then body (dispatched on Transfer-Encoding,
// Content-Length, or read-until-close, in that priority order). method is
// the request method that produced this response (HEAD responses never
// carry a body regardless of what the headers claim).
func (c *Conn) ReadResponse(method string, resp *message.Response) error {
	if err := c.applyReadDeadline(); err != nil {
		return err
	}

	statusLine, err := c.readLine()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return &rherrors.Timeout{Elapsed: c.opts.ReadTimeout.String()}
		}
		return rherrors.NewProtocolError("reading status line", err)
	}
	proto, code, status, err := parseStatusLine(statusLine)
	if err != nil {
		return err
	}
	resp.GotStatus(proto, code, status)

	if err := c.readHeaders(resp); err != nil {
		return err
	}

	return c.readBody(method, resp)
}

func (c *Conn) readLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func parseStatusLine(line string) (proto string, code int, status string, err error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return "", 0, "", rherrors.NewProtocolError("invalid status line", nil)
	}
	code, convErr := strconv.Atoi(parts[1])
	if convErr != nil {
		return "", 0, "", rherrors.NewProtocolError("invalid status code", convErr)
	}
	statusText := ""
	if len(parts) == 3 {
		statusText = parts[2]
	}
	return parts[0], code, statusText, nil
}

// readHeaders reads header lines (handling RFC 7230 §3.2.4 continuation)
// until the blank line that ends the header block, feeding each into
// resp.GotHeader.
func (c *Conn) readHeaders(resp *message.Response) error {
	total := 0
	var lastKey string

	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return &rherrors.Timeout{Elapsed: c.opts.ReadTimeout.String()}
			}
			return rherrors.NewProtocolError("reading headers", err)
		}
		total += len(line)
		if total > maxHeaderBytes {
			return rherrors.NewProtocolError("headers exceed maximum size", nil)
		}
		if line == "\r\n" || line == "\n" {
			return nil
		}

		trimmed := strings.TrimRight(line, "\r\n")
		if strings.HasPrefix(trimmed, " ") || strings.HasPrefix(trimmed, "\t") {
			if lastKey == "" {
				continue
			}
			resp.Header.Set(lastKey, resp.Header.Get(lastKey)+" "+strings.TrimSpace(trimmed))
			continue
		}

		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		resp.GotHeader(key, value)
		lastKey = key
	}
}

// readBody dispatches to the framing the headers describe. Per RFC 9110
// §6.4.1, 1xx/204/304 responses and responses to HEAD never carry a body:
// they are finalized without reading anything further, leaving whatever
// follows on the connection for the next ReadResponse.
func (c *Conn) readBody(method string, resp *message.Response) error {
	noBodyExpected := method == "HEAD" ||
		(resp.StatusCode >= 100 && resp.StatusCode < 200) ||
		resp.StatusCode == 204 ||
		resp.StatusCode == 304

	if noBodyExpected {
		return resp.Done()
	}

	transferEncoding := resp.Header.Get("Transfer-Encoding")
	contentLength := resp.Header.Get("Content-Length")

	switch {
	case strings.Contains(strings.ToLower(transferEncoding), "chunked"):
		if err := c.readChunkedBody(resp); err != nil {
			return err
		}
	case contentLength != "":
		length, err := strconv.ParseInt(strings.TrimSpace(contentLength), 10, 64)
		if err != nil {
			return rherrors.NewProtocolError("invalid content-length", err)
		}
		if length < 0 {
			return rherrors.NewProtocolError("negative content-length", nil)
		}
		if length > constants.MaxContentLength {
			return rherrors.NewProtocolError("content-length exceeds maximum", nil)
		}
		if err := c.readFixedBody(resp, length); err != nil {
			return err
		}
	default:
		if err := c.readUntilClose(resp); err != nil {
			return err
		}
	}

	return resp.Done()
}

func (c *Conn) readChunkedBody(resp *message.Response) error {
	dec := decode.NewChunkedDecoder()
	var received int64
	buf := make([]byte, 4096)
	for !dec.Finished() {
		n, err := c.reader.Read(buf)
		if n > 0 {
			received += int64(n)
			decoded, decErr := dec.Feed(buf[:n], false)
			if decErr != nil {
				return decErr
			}
			if len(decoded) > 0 {
				if err := resp.DataReceived(decoded); err != nil {
					return err
				}
			}
		}
		if err != nil {
			if err == io.EOF && dec.Finished() {
				break
			}
			if err == io.EOF {
				return &rherrors.IncompleteResponse{BytesReceived: received}
			}
			return c.bodyReadError("reading chunked body", err)
		}
	}
	// Trailing bytes belong to the next pipelined response; push them back
	// onto the buffered reader so the next ReadResponse sees them first.
	if trailing := dec.Trailing(); len(trailing) > 0 {
		c.unread(trailing)
	}
	return nil
}

func (c *Conn) readFixedBody(resp *message.Response, length int64) error {
	var received int64
	buf := make([]byte, 4096)
	for received < length {
		want := int64(len(buf))
		if remaining := length - received; remaining < want {
			want = remaining
		}
		n, err := c.reader.Read(buf[:want])
		if n > 0 {
			received += int64(n)
			if err := resp.DataReceived(buf[:n]); err != nil {
				return err
			}
		}
		if err != nil {
			if err == io.EOF {
				return &rherrors.IncompleteResponse{BytesReceived: received, BytesExpected: length}
			}
			return c.bodyReadError("reading fixed-length body", err)
		}
	}
	return nil
}

func (c *Conn) readUntilClose(resp *message.Response) error {
	buf := make([]byte, 4096)
	for {
		n, err := c.reader.Read(buf)
		if n > 0 {
			if derr := resp.DataReceived(buf[:n]); derr != nil {
				return derr
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return c.bodyReadError("reading until-close body", err)
		}
	}
}

// bodyReadError classifies an error from the body-reading loop: a
// net.Error whose Timeout() is true means the read/write deadline armed by
// applyReadDeadline fired while a response was still pending, which the
// control loop needs to see as a Timeout outcome rather than an opaque I/O
// failure so it can be classified as such up through Agent.run.
func (c *Conn) bodyReadError(operation string, err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return &rherrors.Timeout{Elapsed: c.opts.ReadTimeout.String()}
	}
	return rherrors.NewIOError(operation, err)
}

// unread pushes bytes back in front of whatever the buffered reader has
// not yet handed out, by wrapping it with a fresh bufio.Reader over the
// concatenation. Only used for the rare pipelined-data-after-chunked-
// trailer case.
func (c *Conn) unread(b []byte) {
	c.reader = bufio.NewReader(io.MultiReader(bytes.NewReader(b), c.reader))
}
