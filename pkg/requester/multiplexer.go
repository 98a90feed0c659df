package requester

import (
	"sync"

	"github.com/corvid-labs/httpagent/pkg/httpconn"
	"github.com/corvid-labs/httpagent/pkg/message"
	"github.com/corvid-labs/httpagent/pkg/transport"
)

// Multiplexer is a bounded pool of Requesters for one origin. Dispatch
// picks an idle Requester, creates a new one while under the per-origin
// cap, or blocks until one of the existing ones becomes idle.
type Multiplexer struct {
	mu   sync.Mutex
	cond *sync.Cond

	tr     *transport.Transport
	target transport.Config
	opts   httpconn.Options

	maxPerOrigin int
	requesters   []*Requester
}

// NewMultiplexer builds a Multiplexer for one origin, capped at
// maxPerOrigin concurrent connections (at least 1).
func NewMultiplexer(tr *transport.Transport, target transport.Config, opts httpconn.Options, maxPerOrigin int) *Multiplexer {
	if maxPerOrigin < 1 {
		maxPerOrigin = 1
	}
	m := &Multiplexer{
		tr:           tr,
		target:       target,
		opts:         opts,
		maxPerOrigin: maxPerOrigin,
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *Multiplexer) newRequester() *Requester {
	return New(m.tr, m.target, m.opts, m.cond.Broadcast)
}

// Dispatch submits req on an idle Requester, creating one if the pool has
// room, or blocking until one frees up. It never rejects a request outright
// -- the Agent layer is responsible for any "too many connections" policy
// it wants on top (spec's TooManyConnections outcome models a caller
// opting not to wait, which is what TryAcquire is for).
func (m *Multiplexer) Dispatch(req *message.Request) {
	r := m.acquire()
	r.Submit(req)
}

func (m *Multiplexer) acquire() *Requester {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		for _, r := range m.requesters {
			if !r.Active() {
				return r
			}
		}
		if len(m.requesters) < m.maxPerOrigin {
			r := m.newRequester()
			m.requesters = append(m.requesters, r)
			return r
		}
		m.cond.Wait()
	}
}

// TryAcquire returns an idle Requester or creates a new one if the pool has
// room, without blocking. It reports false when the pool is full and every
// Requester is busy.
func (m *Multiplexer) TryAcquire() (*Requester, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range m.requesters {
		if !r.Active() {
			return r, true
		}
	}
	if len(m.requesters) < m.maxPerOrigin {
		r := m.newRequester()
		m.requesters = append(m.requesters, r)
		return r, true
	}
	return nil, false
}

// Size returns the number of Requesters currently held in the pool.
func (m *Multiplexer) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requesters)
}

// Close tears down every Requester in the pool.
func (m *Multiplexer) Close() {
	m.mu.Lock()
	requesters := append([]*Requester(nil), m.requesters...)
	m.requesters = nil
	m.mu.Unlock()
	for _, r := range requesters {
		r.Close()
	}
}
