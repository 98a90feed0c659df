package urlutil_test

import (
	"testing"

	"github.com/corvid-labs/httpagent/pkg/urlutil"
)

func TestParseDefaultsPort(t *testing.T) {
	u, err := urlutil.Parse("http://example.com/path?a=1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Port != 80 {
		t.Fatalf("expected default port 80, got %d", u.Port)
	}
	if u.Authority() != "http://example.com:80" {
		t.Fatalf("unexpected authority: %s", u.Authority())
	}
}

func TestClickResolvesRelative(t *testing.T) {
	base, err := urlutil.Parse("http://example.com/a/b")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	resolved, err := base.Click("/new")
	if err != nil {
		t.Fatalf("click: %v", err)
	}
	if resolved.Path != "/new" {
		t.Fatalf("expected /new, got %s", resolved.Path)
	}
	if resolved.Host != "example.com" {
		t.Fatalf("expected host to carry over, got %s", resolved.Host)
	}
}

func TestStringRoundTrip(t *testing.T) {
	u, err := urlutil.Parse("https://example.com:8443/x")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.String() != "https://example.com:8443/x" {
		t.Fatalf("unexpected string form: %s", u.String())
	}
}
