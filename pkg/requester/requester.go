// Package requester implements one physical HTTP connection per origin
// (Requester) and a bounded pool of them per origin (Multiplexer). A
// Requester pipelines: it keeps writing queued requests to the wire ahead
// of reading their responses back, and relies on the server returning
// responses in the same order requests were sent (HTTP/1.1's pipelining
// contract) to match each response to its Request.
package requester

import (
	"context"
	"sync"

	rherrors "github.com/corvid-labs/httpagent/pkg/errors"
	"github.com/corvid-labs/httpagent/pkg/httpconn"
	"github.com/corvid-labs/httpagent/pkg/message"
	"github.com/corvid-labs/httpagent/pkg/transport"
)

// Requester owns at most one connection to one origin at a time, opening a
// new one when work arrives after the previous one was torn down.
// Submitting a request never blocks; the caller waits on the request's own
// Done() channel for the outcome.
type Requester struct {
	mu   sync.Mutex
	cond *sync.Cond

	tr     *transport.Transport
	target transport.Config
	opts   httpconn.Options

	conn *httpconn.Conn

	queue   []*message.Request // not yet written to the wire
	pending []*message.Request // written, awaiting a response

	writerRunning bool
	readerRunning bool

	// reconnected tracks whether this Requester has already used its one
	// reconnect-on-clean-close allowance since its last successful round
	// trip.
	// A second clean close without any successful request in between
	// means the origin is not accepting pipelined/persistent connections
	// at all, so we stop retrying and surface the failure.
	reconnected bool

	// onIdle, if set, is called (without r.mu held) whenever this
	// Requester transitions from active to idle, so a Multiplexer waiting
	// for any Requester in its pool to free up can wake immediately
	// instead of polling.
	onIdle func()
}

// New builds a Requester for one origin. It does not connect until the
// first Submit. onIdle may be nil.
func New(tr *transport.Transport, target transport.Config, opts httpconn.Options, onIdle func()) *Requester {
	r := &Requester{tr: tr, target: target, opts: opts, onIdle: onIdle}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *Requester) notifyIdle() {
	if r.onIdle != nil {
		r.onIdle()
	}
}

// Active reports whether this Requester has queued or in-flight work.
func (r *Requester) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue) > 0 || len(r.pending) > 0
}

// AwaitIdle blocks until Active() is false.
func (r *Requester) AwaitIdle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.queue) > 0 || len(r.pending) > 0 {
		r.cond.Wait()
	}
}

// Submit enqueues req to be written on this Requester's connection,
// starting the write/read loops if they are not already running.
func (r *Requester) Submit(req *message.Request) {
	r.mu.Lock()
	r.queue = append(r.queue, req)
	startWriter := !r.writerRunning
	if startWriter {
		r.writerRunning = true
	}
	r.mu.Unlock()
	r.cond.Broadcast()

	if startWriter {
		go r.writeLoop()
	}
}

func (r *Requester) maybeStartReader() {
	r.mu.Lock()
	start := !r.readerRunning && len(r.pending) > 0
	if start {
		r.readerRunning = true
	}
	r.mu.Unlock()
	if start {
		go r.readLoop()
	}
}

func (r *Requester) writeLoop() {
	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.writerRunning = false
			r.mu.Unlock()
			r.checkIdle()
			return
		}
		req := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()

		if err := r.ensureConn(req); err != nil {
			req.Resolve(nil, err)
			r.failRemaining(err)
			r.mu.Lock()
			r.writerRunning = false
			r.mu.Unlock()
			r.checkIdle()
			return
		}

		if err := r.conn.WriteRequest(req); err != nil {
			req.Resolve(nil, err)
			r.teardown(err)
			r.mu.Lock()
			r.writerRunning = false
			r.mu.Unlock()
			r.checkIdle()
			return
		}

		r.mu.Lock()
		r.pending = append(r.pending, req)
		r.mu.Unlock()
		r.maybeStartReader()
	}
}

func (r *Requester) readLoop() {
	for {
		r.mu.Lock()
		if len(r.pending) == 0 {
			r.readerRunning = false
			r.mu.Unlock()
			r.checkIdle()
			return
		}
		req := r.pending[0]
		r.mu.Unlock()

		resp, err := message.NewResponse(req)
		if err != nil {
			req.Resolve(nil, err)
			r.popPending()
			r.checkIdle()
			continue
		}

		err = r.conn.ReadResponse(req.Method, resp)
		r.popPending()
		if err != nil {
			req.Resolve(nil, err)
			r.teardown(err)
			r.mu.Lock()
			r.readerRunning = false
			r.mu.Unlock()
			r.checkIdle()
			return
		}

		r.reconnected = false // a full round trip succeeded; reset the allowance
		req.Resolve(resp, nil)

		if resp.CloseConnection {
			r.teardown(nil)
		}
		r.checkIdle()
	}
}

func (r *Requester) popPending() {
	r.mu.Lock()
	if len(r.pending) > 0 {
		r.pending = r.pending[1:]
	}
	r.mu.Unlock()
}

// checkIdle wakes any goroutine blocked on r.cond (e.g. AwaitIdle) and, if
// this Requester has no queued or pending work, notifies the Multiplexer
// it belongs to.
func (r *Requester) checkIdle() {
	r.mu.Lock()
	idle := len(r.queue) == 0 && len(r.pending) == 0
	r.mu.Unlock()
	r.cond.Broadcast()
	if idle {
		r.notifyIdle()
	}
}

// ensureConn connects lazily on first use, and reconnects once if the
// connection was cleanly closed by the peer since the last request.
func (r *Requester) ensureConn(req *message.Request) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn != nil {
		return nil
	}

	raw, _, err := r.tr.Connect(context.Background(), r.target)
	if err != nil {
		return err
	}

	if r.target.Proxy != nil {
		if dialErr := httpconn.DialSOCKS4(raw, r.target.Proxy, req.URL.Host, req.URL.Port); dialErr != nil {
			raw.Close()
			return dialErr
		}
		if r.target.Scheme == "https" {
			tlsConn, tlsErr := r.tr.UpgradeTLS(raw, r.target)
			if tlsErr != nil {
				raw.Close()
				return tlsErr
			}
			raw = tlsConn
		}
	}

	r.mu.Lock()
	r.conn = httpconn.New(raw, r.opts)
	r.mu.Unlock()
	return nil
}

// teardown closes the current connection. err == nil means the peer closed
// cleanly (Connection: close, or EOF with nothing pending); a non-nil err
// means an unclean failure, and every request still queued or pending on
// this Requester is failed with it.
func (r *Requester) teardown(err error) {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	if err != nil {
		r.failRemaining(err)
		return
	}
	r.mu.Lock()
	already := r.reconnected
	r.reconnected = true
	r.mu.Unlock()
	if already {
		r.failRemaining(&rherrors.Retry{})
	}
}

func (r *Requester) failRemaining(err error) {
	r.mu.Lock()
	remaining := append(r.queue, r.pending...)
	r.queue = nil
	r.pending = nil
	r.mu.Unlock()
	for _, req := range remaining {
		req.Resolve(nil, err)
	}
	r.cond.Broadcast()
}

// Close tears down the connection and fails any outstanding work.
func (r *Requester) Close() {
	r.teardown(rherrors.NewConnectionError(r.target.Host, r.target.Port, nil))
}
