package message

import (
	"crypto/md5"
	"encoding/base64"
	"hash"
	"strings"

	"github.com/corvid-labs/httpagent/pkg/decode"
	rherrors "github.com/corvid-labs/httpagent/pkg/errors"
	"github.com/corvid-labs/httpagent/pkg/urlutil"
)

// Response is fed incrementally by the protocol engine: GotStatus, then
// GotHeader per header line, then DataReceived per body chunk, then Done.
// DataReceived runs the content-decoder chain before updating the running
// MD5 and writing into the sink, so both the digest and the sink see
// decoded bytes, never wire bytes.
type Response struct {
	Request *Request
	URL     *urlutil.URL

	Proto      string
	StatusCode int
	Status     string

	Header *Headers

	CloseConnection bool

	decoders []decode.Decoder
	digest   hash.Hash
	length   int64
	sink     Sink
}

// NewResponse allocates a Response bound to req, picking its body sink from
// req's DownloadTo/DownloadWriter.
func NewResponse(req *Request) (*Response, error) {
	sink, err := newSink(req)
	if err != nil {
		return nil, err
	}
	return &Response{
		Request: req,
		URL:     req.URL,
		Header:  NewHeaders(),
		digest:  md5.New(),
		sink:    sink,
	}, nil
}

// GotStatus records the parsed status line.
func (r *Response) GotStatus(proto string, code int, status string) {
	r.Proto = proto
	r.StatusCode = code
	r.Status = status
}

// GotHeader records one header line and reacts to the ones that affect
// framing: Connection: close, Content-Encoding, and the non-"chunked"
// tokens of Transfer-Encoding (e.g. "chunked, gzip" applies gzip as a
// transfer coding on top of the dechunked stream, not a content coding) --
// both select decoders appended to the same chain DataReceived runs, in
// the order their headers were seen, matching the wire order the encodings
// were applied in.
func (r *Response) GotHeader(key, value string) {
	r.Header.Add(key, value)

	switch {
	case strings.EqualFold(key, "Connection"):
		for _, tok := range strings.Split(value, ",") {
			if strings.EqualFold(strings.TrimSpace(tok), "close") {
				r.CloseConnection = true
			}
		}
	case strings.EqualFold(key, "Content-Encoding"):
		r.appendDecoders(value)
	case strings.EqualFold(key, "Transfer-Encoding"):
		for _, tok := range strings.Split(value, ",") {
			tok = strings.ToLower(strings.TrimSpace(tok))
			if tok == "" || tok == "chunked" || tok == "identity" {
				continue
			}
			if d, ok := decode.NewDecoder(tok); ok {
				r.decoders = append(r.decoders, d)
			}
		}
	}
}

func (r *Response) appendDecoders(value string) {
	for _, tok := range strings.Split(value, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" || tok == "identity" {
			continue
		}
		if d, ok := decode.NewDecoder(tok); ok {
			r.decoders = append(r.decoders, d)
		}
	}
}

// DataReceived feeds data (nil/empty signals end-of-body) through the
// content-decoder chain, updates the running MD5 over the decoded bytes,
// and writes the decoded bytes into the sink.
func (r *Response) DataReceived(data []byte) error {
	final := len(data) == 0
	cur := data
	for _, d := range r.decoders {
		out, err := d.Feed(cur, final)
		if err != nil {
			return err
		}
		cur = out
	}

	if len(cur) == 0 {
		return nil
	}

	r.length += int64(len(cur))
	r.digest.Write(cur)
	if _, err := r.sink.Write(cur); err != nil {
		return rherrors.NewIOError("writing response body", err)
	}
	return nil
}

// Done flushes any decoder still holding buffered-but-undelivered output
// and closes the sink. Call exactly once, after the engine has determined
// the body is complete.
func (r *Response) Done() error {
	if err := r.DataReceived(nil); err != nil {
		return err
	}
	return r.sink.Close()
}

// Length returns the number of decoded body bytes seen so far.
func (r *Response) Length() int64 {
	return r.length
}

// Content returns the response body if it was buffered in memory. It
// returns (nil, false) for file/stream/counter sinks or a disk-spilled
// buffer.
func (r *Response) Content() ([]byte, bool) {
	b, ok := r.sink.(interface {
		Bytes() []byte
		IsSpilled() bool
	})
	if !ok || b.IsSpilled() {
		return nil, false
	}
	return b.Bytes(), true
}

// VerifyDigest compares the running MD5 over decoded body bytes against a
// Content-MD5 response header, if present. A missing header is not an
// error -- there is nothing to verify against.
func (r *Response) VerifyDigest() error {
	expected := r.Header.Get("Content-MD5")
	if expected == "" {
		return nil
	}
	got := base64.StdEncoding.EncodeToString(r.digest.Sum(nil))
	if got != expected {
		return &rherrors.MD5Mismatch{Calculated: got, Expected: expected}
	}
	return nil
}
