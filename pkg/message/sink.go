package message

import (
	"io"
	"os"

	"github.com/corvid-labs/httpagent/pkg/buffer"
)

// Sink is where a Response's decoded body bytes go. *buffer.Buffer and
// *os.File already satisfy this directly.
type Sink interface {
	io.Writer
	Close() error
}

// streamSink adapts a caller-supplied io.Writer (spec: "Stream: writes to a
// caller-supplied writable"). Closing it is not our business unless the
// caller's writer is itself an io.Closer.
type streamSink struct {
	w io.Writer
}

func (s streamSink) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s streamSink) Close() error {
	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// counterSink discards bytes and only records how many were written (spec:
// "Counter: records length only").
type counterSink struct {
	n int64
}

func (c *counterSink) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

func (c *counterSink) Close() error { return nil }

// newSink picks the sink variant for a request: a file at DownloadTo, a
// caller-supplied writer at DownloadWriter, or the default in-memory
// buffer.
func newSink(req *Request) (Sink, error) {
	switch {
	case req.DownloadTo != "":
		f, err := os.Create(req.DownloadTo)
		if err != nil {
			return nil, err
		}
		return f, nil
	case req.DownloadWriter != nil:
		return streamSink{w: req.DownloadWriter}, nil
	default:
		return buffer.New(buffer.DefaultMemoryLimit), nil
	}
}
