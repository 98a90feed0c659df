package errors_test

import (
	"testing"

	rherrors "github.com/corvid-labs/httpagent/pkg/errors"
)

func TestErrorFormat(t *testing.T) {
	err := rherrors.NewConnectionError("example.com", 443, nil)
	got := err.Error()
	want := "[connection] dial example.com:443: failed to connect to example.com:443"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestErrorIsMatchesByType(t *testing.T) {
	a := rherrors.NewTimeoutError("read", 0)
	b := rherrors.NewTimeoutError("write", 0)
	if !a.Is(b) {
		t.Fatalf("expected errors of the same type to match via Is")
	}
	c := rherrors.NewDNSError("example.com", nil)
	if a.Is(c) {
		t.Fatalf("expected errors of different types not to match")
	}
}

func TestOutcomeErrorsImplementError(t *testing.T) {
	cases := []error{
		&rherrors.Redirected{Status: 301, Location: "/new"},
		&rherrors.Unauthorized{Challenges: []rherrors.Challenge{{Scheme: "Basic"}}},
		&rherrors.Retry{Status: 503, RetryAfter: 5},
		&rherrors.Timeout{Elapsed: "2s"},
		&rherrors.MD5Mismatch{Calculated: "a", Expected: "b"},
		&rherrors.InsecureAuthentication{Scheme: "Basic", Origin: "http://x"},
		&rherrors.TooManyConnections{Origin: "http://x"},
		&rherrors.IncompleteResponse{BytesReceived: 1, BytesExpected: 10},
		&rherrors.WebError{Status: 500, Message: "boom"},
		&rherrors.SocksRejected{Status: 0x5b},
		&rherrors.SocksIdentdRejected{},
		&rherrors.SocksUserRejected{},
	}
	for _, c := range cases {
		if c.Error() == "" {
			t.Fatalf("expected non-empty message for %T", c)
		}
	}
}
