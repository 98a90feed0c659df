package agent

import (
	"io"
	"time"

	"github.com/corvid-labs/httpagent/pkg/auth"
	"github.com/corvid-labs/httpagent/pkg/message"
	"github.com/corvid-labs/httpagent/pkg/transport"
)

// RequestOption overrides one field of the Request Open builds, applied
// after the URL and method are set and before the control loop runs.
type RequestOption func(*message.Request)

// WithHeader sets a header that is sent on every hop, including after a
// redirect.
func WithHeader(key, value string) RequestOption {
	return func(r *message.Request) { r.Headers.Set(key, value) }
}

// WithUnredirectedHeader sets a header that is sent on this request only
// and dropped when it is redirected (e.g. Authorization, Cookie).
func WithUnredirectedHeader(key, value string) RequestOption {
	return func(r *message.Request) { r.UnredirectedHeaders.Set(key, value) }
}

// WithData attaches a request body.
func WithData(data []byte) RequestOption {
	return func(r *message.Request) { r.Data = data }
}

// WithDownloadTo streams the response body to a file at path instead of
// buffering it in memory.
func WithDownloadTo(path string) RequestOption {
	return func(r *message.Request) { r.DownloadTo = path }
}

// WithDownloadWriter streams the response body to w instead of buffering
// it in memory.
func WithDownloadWriter(w io.Writer) RequestOption {
	return func(r *message.Request) { r.DownloadWriter = w }
}

// WithCloseConnection asks the server to close the connection after this
// response (Connection: close).
func WithCloseConnection(v bool) RequestOption {
	return func(r *message.Request) { r.CloseConnection = v }
}

// WithProxy routes this request through p instead of the Agent's Proxier.
func WithProxy(p *transport.ProxyConfig) RequestOption {
	return func(r *message.Request) { r.Proxy = p }
}

// WithTimeout overrides Config.Timeout for this request alone.
func WithTimeout(d time.Duration) RequestOption {
	return func(r *message.Request) { r.Timeout = d }
}

// WithAuthenticator overrides Config.Authenticators for this request
// alone: only this Authenticator is consulted against a 401's challenges.
func WithAuthenticator(a auth.Authenticator) RequestOption {
	return func(r *message.Request) { r.Authenticator = a }
}

// WithFollowRedirect overrides Config.FollowRedirect for this request
// alone.
func WithFollowRedirect(v bool) RequestOption {
	return func(r *message.Request) { r.FollowRedirect = &v }
}
