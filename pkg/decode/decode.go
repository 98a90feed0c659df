// Package decode implements the incremental, pull-style stream decoders the
// HTTP protocol engine and Response install around a body: chunked transfer
// coding, and the deflate/gzip content codings. All three expose the same
// contract so the engine can compose them without caring which is which.
package decode

import rherrors "github.com/corvid-labs/httpagent/pkg/errors"

// Decoder is the pull contract every decoder in this package satisfies.
// Feed is called with newly-available raw bytes (possibly empty) and a
// final flag that is true on the last call for this body; it returns
// whatever decoded bytes could be produced from the input seen so far.
// Finished reports whether the decoder reached its own framing terminator
// (the chunked 0-chunk, or a verified gzip/deflate trailer) independent of
// the final flag. Trailing returns bytes fed past that terminator, which
// belong to whatever comes next on the connection (a pipelined response, or
// an outer decoder's trailer).
type Decoder interface {
	Feed(data []byte, final bool) ([]byte, error)
	Finished() bool
	Trailing() []byte
}

// NewDecoder builds a Decoder for a Transfer-Encoding or Content-Encoding
// token. Unknown tokens return (nil, false); callers degrade to
// pass-through per spec.
func NewDecoder(token string) (Decoder, bool) {
	switch token {
	case "chunked":
		return NewChunkedDecoder(), true
	case "gzip", "x-gzip":
		return NewGzipDecoder(), true
	case "deflate":
		return NewDeflateDecoder(), true
	default:
		return nil, false
	}
}

func framingError(message string) error {
	return rherrors.NewProtocolError(message, nil)
}
