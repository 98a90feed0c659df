// Package httpagent provides a raw-socket HTTP/1.1 client: a single Agent
// that builds requests, pools and pipelines connections per origin, follows
// redirects, answers authentication challenges, and verifies response
// digests -- without going through net/http.
package httpagent

import (
	"github.com/corvid-labs/httpagent/pkg/agent"
	"github.com/corvid-labs/httpagent/pkg/auth"
	rherrors "github.com/corvid-labs/httpagent/pkg/errors"
	"github.com/corvid-labs/httpagent/pkg/message"
	"github.com/corvid-labs/httpagent/pkg/transport"
	"github.com/corvid-labs/httpagent/pkg/urlutil"
)

// Version is this module's release version. The default User-Agent an
// Agent sends is Config.Identifier's own default, not derived from Version.
const Version = "1.0.0"

// Re-exported types for callers who only need the top-level surface.
type (
	// Agent is the control loop: origin routing, redirects, auth
	// challenges, MD5 verification, cookie extraction.
	Agent = agent.Agent

	// Config configures an Agent.
	Config = agent.Config

	// CookieStore is the cookie jar collaborator an Agent calls out to.
	CookieStore = agent.CookieStore

	// Proxier selects a proxy per request, or nil for a direct connection.
	Proxier = agent.Proxier

	// Request is a single HTTP request in flight.
	Request = message.Request

	// Response is a request's parsed, fully-received response.
	Response = message.Response

	// Result is what Request.Done() delivers: a Response or an error.
	Result = message.Result

	// ProxyConfig describes a SOCKS4/4a proxy to dial through.
	ProxyConfig = transport.ProxyConfig

	// URL is the parsed request/response URL type used throughout.
	URL = urlutil.URL

	// BasicAuthenticator implements RFC 7617 Basic authentication.
	BasicAuthenticator = auth.BasicAuthenticator

	// DigestAuthenticator implements the MD5 variant of RFC 2617 Digest.
	DigestAuthenticator = auth.DigestAuthenticator

	// Authenticator answers a parsed Www-Authenticate challenge.
	Authenticator = auth.Authenticator

	// RequestOption overrides one field of the Request Open builds.
	RequestOption = agent.RequestOption

	// Error is the structured transport-level error (DNS, connect, TLS,
	// timeout, protocol, I/O, validation) lower layers return.
	Error = rherrors.Error

	// ErrorType classifies an Error.
	ErrorType = rherrors.ErrorType
)

// Re-exported outcome/error types (see pkg/errors for the full taxonomy).
type (
	Redirected             = rherrors.Redirected
	Unauthorized           = rherrors.Unauthorized
	Retry                  = rherrors.Retry
	Timeout                = rherrors.Timeout
	MD5Mismatch            = rherrors.MD5Mismatch
	InsecureAuthentication = rherrors.InsecureAuthentication
	TooManyConnections     = rherrors.TooManyConnections
	IncompleteResponse     = rherrors.IncompleteResponse
	WebError               = rherrors.WebError
	SocksRejected          = rherrors.SocksRejected
	SocksIdentdRejected    = rherrors.SocksIdentdRejected
	SocksUserRejected      = rherrors.SocksUserRejected
)

// New returns an Agent ready to Open requests.
func New(cfg Config) *Agent {
	return agent.New(cfg)
}

// Open is a convenience wrapper around Agent.Open for a one-off request;
// callers issuing more than one request should build an Agent with New and
// reuse it, so connections and cached auth/cookies carry across requests.
func Open(rawURL, method string, opts ...RequestOption) (*Response, error) {
	return New(Config{}).Open(rawURL, method, opts...)
}

// Per-request options, mirroring Request's Timeout/Authenticator/
// FollowRedirect/Proxy/Data/DownloadTo/DownloadWriter/CloseConnection/
// Headers/UnredirectedHeaders fields.
var (
	WithHeader             = agent.WithHeader
	WithUnredirectedHeader = agent.WithUnredirectedHeader
	WithData               = agent.WithData
	WithDownloadTo         = agent.WithDownloadTo
	WithDownloadWriter     = agent.WithDownloadWriter
	WithCloseConnection    = agent.WithCloseConnection
	WithProxy              = agent.WithProxy
	WithTimeout            = agent.WithTimeout
	WithAuthenticator      = agent.WithAuthenticator
	WithFollowRedirect     = agent.WithFollowRedirect
)
