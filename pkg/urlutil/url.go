// Package urlutil provides the URL type used throughout the agent: scheme,
// host, port (defaulted by scheme), path, query, fragment, with
// base-relative resolution ("click") and string round-tripping. Parsing
// itself rides on net/url; this package adds the scheme-default-port and
// click semantics the Message Model and Agent need.
package urlutil

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// CRLF is the line terminator used throughout the HTTP/1.1 wire format.
var CRLF = []byte("\r\n")

// DefaultPort returns the conventional port for a scheme, or 0 if unknown.
func DefaultPort(scheme string) int {
	switch strings.ToLower(scheme) {
	case "http":
		return 80
	case "https":
		return 443
	default:
		return 0
	}
}

// URL is a normalized, comparable-by-string representation of a request
// target.
type URL struct {
	Scheme   string
	Host     string
	Port     int
	Path     string
	Query    string
	Fragment string
}

// Parse parses s into a URL, defaulting the port from the scheme when the
// URL doesn't specify one.
func Parse(s string) (*URL, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("urlutil: parse %q: %w", s, err)
	}
	return fromStd(u)
}

func fromStd(u *url.URL) (*URL, error) {
	host := u.Hostname()
	port := DefaultPort(u.Scheme)
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("urlutil: invalid port %q: %w", p, err)
		}
		port = n
	}

	if host != "" {
		ascii, err := idna.Lookup.ToASCII(host)
		if err == nil {
			host = ascii
		}
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	return &URL{
		Scheme:   strings.ToLower(u.Scheme),
		Host:     host,
		Port:     port,
		Path:     path,
		Query:    u.RawQuery,
		Fragment: u.Fragment,
	}, nil
}

// String reassembles the URL into its textual form.
func (u *URL) String() string {
	var b strings.Builder
	if u.Scheme != "" {
		b.WriteString(u.Scheme)
		b.WriteString("://")
	}
	b.WriteString(u.Host)
	if u.Port != 0 && u.Port != DefaultPort(u.Scheme) {
		fmt.Fprintf(&b, ":%d", u.Port)
	}
	b.WriteString(u.Path)
	if u.Query != "" {
		b.WriteString("?")
		b.WriteString(u.Query)
	}
	if u.Fragment != "" {
		b.WriteString("#")
		b.WriteString(u.Fragment)
	}
	return b.String()
}

// RequestURI returns the form used on the HTTP request line: path?query.
func (u *URL) RequestURI() string {
	if u.Query == "" {
		return u.Path
	}
	return u.Path + "?" + u.Query
}

// Authority returns the scheme://host:port origin key, the unit the Agent's
// Multiplexer cache and authorization cache are keyed on.
func (u *URL) Authority() string {
	return fmt.Sprintf("%s://%s:%d", u.Scheme, u.Host, u.Port)
}

// Click resolves href relative to u, the way a browser resolves an anchor
// or a redirect Location header relative to the page it came from.
func (u *URL) Click(href string) (*URL, error) {
	base, err := url.Parse(u.String())
	if err != nil {
		return nil, fmt.Errorf("urlutil: click: rebuild base: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, fmt.Errorf("urlutil: click: parse %q: %w", href, err)
	}
	return fromStd(base.ResolveReference(ref))
}

// Clone returns a shallow copy.
func (u *URL) Clone() *URL {
	c := *u
	return &c
}
