// Package transport dials the raw network connection a Requester's protocol
// engine runs over: DNS resolution (through an injectable Resolver, per
// spec an external collaborator), TCP connect, and an optional TLS upgrade.
// Connection pooling/reuse lives one layer up in pkg/requester -- a
// Requester owns at most one transport connection at a time, so this
// package does not keep an idle-connection pool the way the teacher's
// transport did.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/corvid-labs/httpagent/pkg/constants"
	rherrors "github.com/corvid-labs/httpagent/pkg/errors"
	"github.com/corvid-labs/httpagent/pkg/timing"
)

// Resolver resolves a hostname to IP addresses. net.Resolver satisfies
// this; callers may inject their own (spec.md §1: DNS resolution is an
// external collaborator).
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// ProxyConfig describes a SOCKS4/4a proxy to dial through. The CONNECT
// handshake itself is performed by pkg/httpconn (the "SOCKS Tunnel"
// component); this package only dials the TCP connection to the proxy's
// address instead of the target's.
type ProxyConfig struct {
	Host string
	Port int
	// UserID is sent as the SOCKS4 USERID field (often empty).
	UserID string
	// RemoteDNS selects SOCKS4a: the hostname is sent to the proxy instead
	// of a locally-resolved IPv4 address.
	RemoteDNS bool
}

// Config describes one connection to establish.
type Config struct {
	Scheme string
	Host   string
	Port   int

	// ConnectIP bypasses DNS resolution when set.
	ConnectIP string

	Proxy *ProxyConfig

	// TLSConfig is used verbatim (cloned) for the TLS upgrade when Scheme
	// is "https". Trust configuration is deliberately external to this
	// module (spec.md §1); if nil, a minimal default with ServerName set
	// to Host is used.
	TLSConfig *tls.Config

	ConnTimeout time.Duration
	DNSTimeout  time.Duration
}

func (c *Config) dialAddr() string {
	if c.Proxy != nil {
		return net.JoinHostPort(c.Proxy.Host, fmt.Sprintf("%d", c.Proxy.Port))
	}
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

// Transport dials connections for Requesters. It is safe for concurrent
// use; it holds no per-connection state of its own.
type Transport struct {
	resolver Resolver
}

// New returns a Transport using net.DefaultResolver.
func New() *Transport {
	return &Transport{resolver: net.DefaultResolver}
}

// NewWithResolver returns a Transport using a caller-supplied Resolver.
func NewWithResolver(r Resolver) *Transport {
	if r == nil {
		r = net.DefaultResolver
	}
	return &Transport{resolver: r}
}

// Connect dials cfg, performing DNS resolution (or a direct ConnectIP dial),
// TCP connect, and -- for https -- a TLS handshake. The returned net.Conn
// is ready for a SOCKS handshake (if cfg.Proxy is set) followed by the HTTP
// protocol engine, or directly for the engine otherwise.
func (t *Transport) Connect(ctx context.Context, cfg Config) (net.Conn, *timing.Metrics, error) {
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, nil, rherrors.NewValidationError("transport: host and port are required")
	}

	timer := timing.NewTimer()

	addr, err := t.resolveDialAddr(ctx, cfg, timer)
	if err != nil {
		return nil, nil, err
	}

	timer.StartTCP()
	dialer := net.Dialer{Timeout: connTimeout(cfg)}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	timer.EndTCP()
	if err != nil {
		return nil, nil, rherrors.NewConnectionError(cfg.Host, cfg.Port, err)
	}

	if cfg.Scheme == "https" && cfg.Proxy == nil {
		// When proxied, the TLS upgrade happens after the SOCKS handshake
		// grants the tunnel (see pkg/httpconn), not here.
		conn, err = t.upgradeTLS(conn, cfg, timer)
		if err != nil {
			return nil, nil, err
		}
	}

	metrics := timer.GetMetrics()
	return conn, &metrics, nil
}

// UpgradeTLS performs a TLS client handshake over an already-established
// (possibly tunneled) connection. Used by callers that must upgrade after a
// SOCKS handshake completes.
func (t *Transport) UpgradeTLS(conn net.Conn, cfg Config) (net.Conn, error) {
	timer := timing.NewTimer()
	return t.upgradeTLS(conn, cfg, timer)
}

func (t *Transport) upgradeTLS(conn net.Conn, cfg Config, timer *timing.Timer) (net.Conn, error) {
	tlsCfg := cfg.TLSConfig
	if tlsCfg == nil {
		tlsCfg = &tls.Config{}
	} else {
		tlsCfg = tlsCfg.Clone()
	}
	if tlsCfg.ServerName == "" {
		tlsCfg.ServerName = cfg.Host
	}

	timer.StartTLS()
	tlsConn := tls.Client(conn, tlsCfg)
	err := tlsConn.HandshakeContext(context.Background())
	timer.EndTLS()
	if err != nil {
		conn.Close()
		return nil, rherrors.NewTLSError(cfg.Host, cfg.Port, err)
	}
	return tlsConn, nil
}

func (t *Transport) resolveDialAddr(ctx context.Context, cfg Config, timer *timing.Timer) (string, error) {
	if cfg.Proxy != nil {
		// Dial straight to the proxy; the proxy resolves the target
		// (SOCKS4a) or we resolve it ourselves below for SOCKS4 and embed
		// the IP in the handshake -- either way, no DNS lookup of the
		// target is needed here.
		return cfg.dialAddr(), nil
	}

	if cfg.ConnectIP != "" {
		return net.JoinHostPort(cfg.ConnectIP, fmt.Sprintf("%d", cfg.Port)), nil
	}

	if ip := net.ParseIP(cfg.Host); ip != nil {
		return cfg.dialAddr(), nil
	}

	timer.StartDNS()
	dnsCtx := ctx
	if d := dnsTimeout(cfg); d > 0 {
		var cancel context.CancelFunc
		dnsCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	addrs, err := t.resolver.LookupIPAddr(dnsCtx, cfg.Host)
	timer.EndDNS()
	if err != nil || len(addrs) == 0 {
		return "", rherrors.NewDNSError(cfg.Host, err)
	}
	return net.JoinHostPort(addrs[0].IP.String(), fmt.Sprintf("%d", cfg.Port)), nil
}

func connTimeout(cfg Config) time.Duration {
	if cfg.ConnTimeout > 0 {
		return cfg.ConnTimeout
	}
	return constants.DefaultConnTimeout
}

func dnsTimeout(cfg Config) time.Duration {
	if cfg.DNSTimeout > 0 {
		return cfg.DNSTimeout
	}
	return connTimeout(cfg)
}
