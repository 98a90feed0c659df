// Package agent ties the lower layers together into the single entry
// point a caller uses: Open (build a request), and the control loop that
// runs it to completion (origin routing, redirects, auth challenges, MD5
// verification, cookie extraction).
package agent

import (
	"crypto/tls"
	"time"

	"github.com/corvid-labs/httpagent/pkg/auth"
	"github.com/corvid-labs/httpagent/pkg/constants"
	"github.com/corvid-labs/httpagent/pkg/message"
	"github.com/corvid-labs/httpagent/pkg/transport"
	"github.com/corvid-labs/httpagent/pkg/urlutil"
)

// CookieStore is the cookie jar collaborator: storage and matching
// semantics live entirely outside this module, the Agent only calls out
// to attach a request's cookie header and to let a response's Set-Cookie
// headers update the jar.
type CookieStore interface {
	CookieHeader(u *urlutil.URL) string
	Extract(u *urlutil.URL, setCookie []string)
}

// Proxier selects a proxy for a request, or nil for a direct connection.
type Proxier interface {
	ProxyFor(u *urlutil.URL) *transport.ProxyConfig
}

// Config configures an Agent.
type Config struct {
	Identifier string

	MaxConnections        int
	MaxConnectionsPerSite int

	PreferredConnection        string
	PreferredTransferEncodings []string

	FollowRedirect bool

	// Secure opts the whole Agent into sending authorization over a
	// plain-HTTP connection even for an Authenticator that reports
	// itself insecure (Basic). Per request this guard is also satisfied
	// by the origin being https or the Authenticator itself being
	// Secure() (Digest) -- Secure only needs to be set to allow Basic
	// over plaintext.
	Secure bool

	CookieStore CookieStore
	Proxier     Proxier
	Resolver    transport.Resolver

	Timeout time.Duration

	Authenticators []auth.Authenticator

	TLSConfig *tls.Config
}

const (
	defaultIdentifier            = "httpagent/1.0"
	defaultMaxConnections        = 30
	defaultMaxConnectionsPerSite = 2
	defaultPreferredConnection   = "keep-alive"
	maxRedirects                 = 5
	maxAuthAttempts              = 5
)

var defaultPreferredTransferEncodings = []string{"gzip", "deflate"}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.Identifier == "" {
		cfg.Identifier = defaultIdentifier
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultMaxConnections
	}
	if cfg.MaxConnectionsPerSite <= 0 {
		cfg.MaxConnectionsPerSite = defaultMaxConnectionsPerSite
	}
	if cfg.PreferredConnection == "" {
		cfg.PreferredConnection = defaultPreferredConnection
	}
	if cfg.PreferredTransferEncodings == nil {
		cfg.PreferredTransferEncodings = defaultPreferredTransferEncodings
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultReadTimeout
	}
	return cfg
}

// applyDefaults fills in the headers every outgoing request carries unless
// the caller already set them: Connection, TE, User-Agent.
func (c *Config) applyDefaults(req *message.Request) {
	if c.PreferredConnection != "" {
		req.Headers.SetDefault("Connection", c.PreferredConnection)
	}
	if len(c.PreferredTransferEncodings) > 0 {
		te := ""
		for i, enc := range c.PreferredTransferEncodings {
			if i > 0 {
				te += ","
			}
			te += enc
		}
		req.Headers.SetDefault("TE", te)
	}
	req.Headers.SetDefault("User-Agent", c.Identifier)
}
