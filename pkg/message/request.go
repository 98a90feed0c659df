package message

import (
	"fmt"
	"io"
	"time"

	"github.com/corvid-labs/httpagent/pkg/auth"
	"github.com/corvid-labs/httpagent/pkg/transport"
	"github.com/corvid-labs/httpagent/pkg/urlutil"
)

// Result is what a Request's pending response promise resolves to: either a
// completed Response, or a classified error from pkg/errors (Redirected,
// Unauthorized, Retry, Timeout, MD5Mismatch, WebError, a transport error,
// ...).
type Result struct {
	Response *Response
	Err      error
}

// Request is built by the Agent and carried through a Requester/engine down
// to the wire. Copying a Request (Copy) preserves body and headers but
// allows overriding URL and headers, which is how redirects and
// re-authorization are implemented without mutating the original.
type Request struct {
	URL    *urlutil.URL
	Method string

	Headers             *Headers
	UnredirectedHeaders *Headers

	Data []byte

	// DownloadTo and DownloadWriter select the Response body sink; at most
	// one should be set. Neither set means the default in-memory buffer.
	DownloadTo     string
	DownloadWriter io.Writer

	CloseConnection bool

	Proxy *transport.ProxyConfig

	// Timeout, Authenticator, and FollowRedirect override the Agent-wide
	// Config default for this request alone when non-zero/non-nil.
	Timeout        time.Duration
	Authenticator  auth.Authenticator
	FollowRedirect *bool

	RedirectedFrom *Request
	RedirectedTo   *urlutil.URL

	done chan Result
}

// NewRequest builds a Request for method (defaulting to GET) against u.
func NewRequest(u *urlutil.URL, method string) *Request {
	if method == "" {
		method = "GET"
	}
	return &Request{
		URL:                 u,
		Method:              method,
		Headers:             NewHeaders(),
		UnredirectedHeaders: NewHeaders(),
		done:                make(chan Result, 1),
	}
}

// Done returns the channel the Request's outcome is delivered on. Exactly
// one Result is ever sent.
func (r *Request) Done() <-chan Result {
	return r.done
}

// Resolve delivers res/err as this Request's final outcome. Safe to call
// exactly once.
func (r *Request) Resolve(res *Response, err error) {
	r.done <- Result{Response: res, Err: err}
}

// Redirected reports whether Redirect has been called on this Request.
func (r *Request) Redirected() bool {
	return r.RedirectedTo != nil
}

// PrepareHeaders fills in the headers the wire format requires before
// send: Content-Length (if there is a body), a default Host, and
// Connection: close when the caller asked for it. Returns the header map
// that should actually be serialized (UnredirectedHeaders merged over
// Headers is the caller's concern; PrepareHeaders only fills defaults into
// Headers).
func (r *Request) PrepareHeaders() *Headers {
	if len(r.Data) > 0 {
		r.Headers.Set("Content-Length", fmt.Sprintf("%d", len(r.Data)))
	} else {
		r.Headers.Del("Content-Length")
	}
	r.Headers.SetDefault("Host", r.URL.Host)
	if r.CloseConnection {
		r.Headers.Set("Connection", "close")
	}
	return r.Headers
}

// Copy builds a new Request that shares this one's method, body, headers
// and download target, with a fresh response promise. mutate, if non-nil,
// is applied before the copy is returned (used to override URL/headers for
// redirects and re-authorization).
func (r *Request) Copy(mutate func(*Request)) *Request {
	c := NewRequest(r.URL, r.Method)
	c.Headers = r.Headers.Clone()
	c.UnredirectedHeaders = r.UnredirectedHeaders.Clone()
	c.Data = r.Data
	c.DownloadTo = r.DownloadTo
	c.DownloadWriter = r.DownloadWriter
	c.CloseConnection = r.CloseConnection
	c.Proxy = r.Proxy
	c.Timeout = r.Timeout
	c.Authenticator = r.Authenticator
	c.FollowRedirect = r.FollowRedirect
	if mutate != nil {
		mutate(c)
	}
	return c
}

// Redirect builds a copy of r targeting location (resolved relative to r's
// URL), recording the redirect chain. UnredirectedHeaders are not carried
// over to the new request.
func (r *Request) Redirect(location string) (*Request, error) {
	target, err := r.URL.Click(location)
	if err != nil {
		return nil, fmt.Errorf("message: redirect: %w", err)
	}
	r.RedirectedTo = target
	return r.Copy(func(c *Request) {
		c.URL = target
		c.UnredirectedHeaders = NewHeaders()
		c.RedirectedFrom = r
	}), nil
}
