package requester_test

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/corvid-labs/httpagent/pkg/httpconn"
	"github.com/corvid-labs/httpagent/pkg/message"
	"github.com/corvid-labs/httpagent/pkg/requester"
	"github.com/corvid-labs/httpagent/pkg/transport"
	"github.com/corvid-labs/httpagent/pkg/urlutil"
)

func listenTCP(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return ln
}

// servePipelined accepts one connection and answers requests one at a time
// as they arrive, replying in order -- it never closes early, exercising
// the same connection for every request the test sends.
func servePipelined(t *testing.T, ln net.Listener, bodies []string) {
	t.Helper()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for _, body := range bodies {
			line, err := r.ReadString('\n')
			if err != nil || !strings.Contains(line, "HTTP/1.1") {
				return
			}
			for {
				l, err := r.ReadString('\n')
				if err != nil || l == "\r\n" {
					break
				}
			}
			resp := "HTTP/1.1 200 OK\r\nContent-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body
			if _, err := conn.Write([]byte(resp)); err != nil {
				return
			}
		}
	}()
}

func targetConfig(t *testing.T, ln net.Listener) transport.Config {
	t.Helper()
	addr := ln.Addr().(*net.TCPAddr)
	return transport.Config{
		Scheme: "http",
		Host:   "127.0.0.1",
		Port:   addr.Port,
	}
}

func TestRequesterPipelinesInOrder(t *testing.T) {
	ln := listenTCP(t)
	defer ln.Close()

	servePipelined(t, ln, []string{"one", "two", "three"})

	tr := transport.New()
	r := requester.New(tr, targetConfig(t, ln), httpconn.Options{}, nil)

	u, _ := urlutil.Parse("http://127.0.0.1/")
	var reqs []*message.Request
	for i := 0; i < 3; i++ {
		req := message.NewRequest(u, "GET")
		reqs = append(reqs, req)
		r.Submit(req)
	}

	want := []string{"one", "two", "three"}
	for i, req := range reqs {
		select {
		case res := <-req.Done():
			if res.Err != nil {
				t.Fatalf("request %d: %v", i, res.Err)
			}
			content, ok := res.Response.Content()
			if !ok || string(content) != want[i] {
				t.Fatalf("request %d: got %q ok=%v", i, content, ok)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("request %d: timed out", i)
		}
	}
}

func TestMultiplexerReusesIdleRequester(t *testing.T) {
	ln := listenTCP(t)
	defer ln.Close()
	servePipelined(t, ln, []string{"a", "b"})

	tr := transport.New()
	m := requester.NewMultiplexer(tr, targetConfig(t, ln), httpconn.Options{}, 2)

	u, _ := urlutil.Parse("http://127.0.0.1/")
	req1 := message.NewRequest(u, "GET")
	m.Dispatch(req1)
	select {
	case res := <-req1.Done():
		if res.Err != nil {
			t.Fatalf("req1: %v", res.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("req1 timed out")
	}

	if m.Size() != 1 {
		t.Fatalf("expected exactly one requester created, got %d", m.Size())
	}

	req2 := message.NewRequest(u, "GET")
	m.Dispatch(req2)
	select {
	case res := <-req2.Done():
		if res.Err != nil {
			t.Fatalf("req2: %v", res.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("req2 timed out")
	}

	if m.Size() != 1 {
		t.Fatalf("expected the idle requester to be reused, got %d requesters", m.Size())
	}
}
