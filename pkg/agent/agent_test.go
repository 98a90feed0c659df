package agent_test

import (
	"bufio"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/corvid-labs/httpagent/pkg/agent"
	"github.com/corvid-labs/httpagent/pkg/auth"
	rherrors "github.com/corvid-labs/httpagent/pkg/errors"
)

// handlerFunc answers one request (method, path, headers) with the raw
// bytes to write back (status line through body, fully framed).
type handlerFunc func(method, path string, headers map[string]string) string

// serveHTTP accepts connections on ln and answers each request on them
// with handler, looping so a keep-alive connection can carry more than
// one request (the Agent reuses its per-origin pool across redirects and
// auth retries).
func serveHTTP(t *testing.T, ln net.Listener, handler handlerFunc) {
	t.Helper()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				r := bufio.NewReader(conn)
				for {
					line, err := r.ReadString('\n')
					if err != nil {
						return
					}
					parts := strings.Fields(line)
					if len(parts) < 2 {
						return
					}
					method, path := parts[0], parts[1]

					headers := map[string]string{}
					for {
						l, err := r.ReadString('\n')
						if err != nil {
							return
						}
						if l == "\r\n" {
							break
						}
						k, v, ok := strings.Cut(l, ":")
						if ok {
							headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
						}
					}

					resp := handler(method, path, headers)
					if _, err := conn.Write([]byte(resp)); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
}

func listenTCP(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return ln
}

func baseURL(ln net.Listener) string {
	return fmt.Sprintf("http://127.0.0.1:%d", ln.Addr().(*net.TCPAddr).Port)
}

func fixedResponse(status, statusText, body string, extraHeaders ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %s %s\r\n", status, statusText)
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	for _, h := range extraHeaders {
		b.WriteString(h)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}

func awaitResult(t *testing.T, a *agent.Agent, url string) (string, error) {
	t.Helper()
	resp, err := a.Open(url, "GET")
	if err != nil {
		return "", err
	}
	content, _ := resp.Content()
	return string(content), nil
}

func TestOpenSuccess(t *testing.T) {
	ln := listenTCP(t)
	defer ln.Close()
	serveHTTP(t, ln, func(method, path string, headers map[string]string) string {
		return fixedResponse("200", "OK", "hello")
	})

	a := agent.New(agent.Config{})
	defer a.Close()

	got, err := awaitResult(t, a, baseURL(ln)+"/")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestRedirectIsFollowed(t *testing.T) {
	ln := listenTCP(t)
	defer ln.Close()
	serveHTTP(t, ln, func(method, path string, headers map[string]string) string {
		if path == "/" {
			return fixedResponse("302", "Found", "", "Location: /next")
		}
		return fixedResponse("200", "OK", "landed")
	})

	a := agent.New(agent.Config{FollowRedirect: true})
	defer a.Close()

	got, err := awaitResult(t, a, baseURL(ln)+"/")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got != "landed" {
		t.Fatalf("got %q", got)
	}
}

func Test303IsNeverAutoFollowed(t *testing.T) {
	ln := listenTCP(t)
	defer ln.Close()
	serveHTTP(t, ln, func(method, path string, headers map[string]string) string {
		return fixedResponse("303", "See Other", "", "Location: /next")
	})

	a := agent.New(agent.Config{FollowRedirect: true})
	defer a.Close()

	_, err := awaitResult(t, a, baseURL(ln)+"/")
	if err == nil {
		t.Fatalf("expected a 303 to surface as an error, not be auto-followed")
	}
	redirected, ok := err.(*rherrors.Redirected)
	if !ok {
		t.Fatalf("expected *errors.Redirected, got %T: %v", err, err)
	}
	if redirected.Status != 303 {
		t.Fatalf("expected status 303, got %d", redirected.Status)
	}
}

func TestRedirectLoopIsBounded(t *testing.T) {
	ln := listenTCP(t)
	defer ln.Close()
	serveHTTP(t, ln, func(method, path string, headers map[string]string) string {
		return fixedResponse("301", "Moved Permanently", "", "Location: /loop")
	})

	a := agent.New(agent.Config{FollowRedirect: true})
	defer a.Close()

	_, err := awaitResult(t, a, baseURL(ln)+"/loop")
	if err == nil {
		t.Fatalf("expected redirect loop to be bounded with an error")
	}
	if _, ok := err.(*rherrors.Redirected); !ok {
		t.Fatalf("expected *errors.Redirected, got %T: %v", err, err)
	}
}

func TestBasicAuthChallengeIsSatisfied(t *testing.T) {
	ln := listenTCP(t)
	defer ln.Close()
	serveHTTP(t, ln, func(method, path string, headers map[string]string) string {
		want := "Basic " + base64.StdEncoding.EncodeToString([]byte("alice:secret"))
		if headers["Authorization"] != want {
			return fixedResponse("401", "Unauthorized", "", `Www-Authenticate: Basic realm="testing"`)
		}
		return fixedResponse("200", "OK", "granted")
	})

	a := agent.New(agent.Config{
		Secure:         true, // opt in to Basic auth over this plain-HTTP test server
		Authenticators: []auth.Authenticator{&auth.BasicAuthenticator{Username: "alice", Password: "secret"}},
	})
	defer a.Close()

	got, err := awaitResult(t, a, baseURL(ln)+"/")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got != "granted" {
		t.Fatalf("got %q", got)
	}
}

func TestInsecureAuthenticationIsRefusedByDefault(t *testing.T) {
	ln := listenTCP(t)
	defer ln.Close()
	serveHTTP(t, ln, func(method, path string, headers map[string]string) string {
		return fixedResponse("401", "Unauthorized", "", `Www-Authenticate: Basic realm="testing"`)
	})

	a := agent.New(agent.Config{
		Authenticators: []auth.Authenticator{&auth.BasicAuthenticator{Username: "alice", Password: "secret"}},
	})
	defer a.Close()

	_, err := awaitResult(t, a, baseURL(ln)+"/")
	if err == nil {
		t.Fatalf("expected Basic auth over plain HTTP to be refused without the Secure opt-in")
	}
	if _, ok := err.(*rherrors.InsecureAuthentication); !ok {
		t.Fatalf("expected *errors.InsecureAuthentication, got %T: %v", err, err)
	}
}

func TestAuthFailsWithoutMatchingAuthenticator(t *testing.T) {
	ln := listenTCP(t)
	defer ln.Close()
	serveHTTP(t, ln, func(method, path string, headers map[string]string) string {
		return fixedResponse("401", "Unauthorized", "", `Www-Authenticate: Digest realm="testing", nonce="abc"`)
	})

	a := agent.New(agent.Config{
		Authenticators: []auth.Authenticator{&auth.BasicAuthenticator{Username: "alice", Password: "secret"}},
	})
	defer a.Close()

	_, err := awaitResult(t, a, baseURL(ln)+"/")
	if err == nil {
		t.Fatalf("expected an error when no authenticator matches the challenge scheme")
	}
}

func TestMD5MismatchSurfaces(t *testing.T) {
	ln := listenTCP(t)
	defer ln.Close()
	serveHTTP(t, ln, func(method, path string, headers map[string]string) string {
		return fixedResponse("200", "OK", "hello", "Content-MD5: "+base64.StdEncoding.EncodeToString(md5.New().Sum(nil)))
	})

	a := agent.New(agent.Config{})
	defer a.Close()

	_, err := awaitResult(t, a, baseURL(ln)+"/")
	if err == nil {
		t.Fatalf("expected MD5 mismatch error")
	}
	if _, ok := err.(*rherrors.MD5Mismatch); !ok {
		t.Fatalf("expected *errors.MD5Mismatch, got %T: %v", err, err)
	}
}

func TestAgentOpenCompletesBeforeClose(t *testing.T) {
	ln := listenTCP(t)
	defer ln.Close()
	serveHTTP(t, ln, func(method, path string, headers map[string]string) string {
		return fixedResponse("200", "OK", "ok")
	})

	a := agent.New(agent.Config{})
	done := make(chan struct{})
	go func() {
		awaitResult(t, a, baseURL(ln)+"/")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("request did not complete in time")
	}
	a.Close()
}

// TestTimeoutSurfacesAsTimeoutError accepts a connection but never answers
// it, so the read deadline set from a per-request WithTimeout must fire and
// be classified as *rherrors.Timeout rather than an opaque I/O failure.
func TestTimeoutSurfacesAsTimeoutError(t *testing.T) {
	ln := listenTCP(t)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// Read the request but never write a response.
		buf := make([]byte, 4096)
		conn.Read(buf)
		time.Sleep(3 * time.Second)
	}()

	a := agent.New(agent.Config{})
	defer a.Close()

	start := time.Now()
	_, err := a.Open(baseURL(ln)+"/", "GET", agent.WithTimeout(200*time.Millisecond))
	elapsed := time.Since(start)

	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if _, ok := err.(*rherrors.Timeout); !ok {
		t.Fatalf("expected *errors.Timeout, got %T: %v", err, err)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("timeout took too long to surface: %s", elapsed)
	}
}

func TestPerRequestAuthenticatorOverridesConfigDefault(t *testing.T) {
	ln := listenTCP(t)
	defer ln.Close()
	serveHTTP(t, ln, func(method, path string, headers map[string]string) string {
		if headers["Authorization"] == "" {
			return fixedResponse("401", "Unauthorized", "", `Www-Authenticate: Basic realm="x"`)
		}
		return fixedResponse("200", "OK", "ok")
	})

	a := agent.New(agent.Config{
		Secure:         true, // opt in to Basic auth over this plain-HTTP test server
		Authenticators: []auth.Authenticator{&auth.BasicAuthenticator{Username: "wrong", Password: "wrong"}},
	})
	defer a.Close()

	resp, err := a.Open(baseURL(ln)+"/", "GET",
		agent.WithAuthenticator(&auth.BasicAuthenticator{Username: "alice", Password: "secret"}))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	content, _ := resp.Content()
	if string(content) != "ok" {
		t.Fatalf("got content %q", content)
	}
}
