package agent

import (
	"container/list"
	"strconv"
	"strings"
	"sync"

	"github.com/corvid-labs/httpagent/pkg/auth"
	"github.com/corvid-labs/httpagent/pkg/httpconn"
	"github.com/corvid-labs/httpagent/pkg/message"
	"github.com/corvid-labs/httpagent/pkg/requester"
	"github.com/corvid-labs/httpagent/pkg/transport"
	"github.com/corvid-labs/httpagent/pkg/urlutil"

	rherrors "github.com/corvid-labs/httpagent/pkg/errors"
)

// Agent is the top-level entry point: it builds requests, routes them to
// a per-origin Multiplexer, and runs the control loop (redirects, auth
// challenges, digest verification, cookie extraction) to a final
// Response.
type Agent struct {
	cfg Config
	tr  *transport.Transport

	mu    sync.Mutex
	order *list.List               // origin keys, front = most recently used
	elems map[string]*list.Element // origin key -> its list.Element
	pools map[string]*requester.Multiplexer

	authMu    sync.Mutex
	authCache map[string]string // origin key -> Authorization header value
}

// New builds an Agent from cfg, filling in defaults for anything left
// zero-valued.
func New(cfg Config) *Agent {
	filled := cfg.withDefaults()
	var tr *transport.Transport
	if filled.Resolver != nil {
		tr = transport.NewWithResolver(filled.Resolver)
	} else {
		tr = transport.New()
	}
	return &Agent{
		cfg:       filled,
		tr:        tr,
		order:     list.New(),
		elems:     make(map[string]*list.Element),
		pools:     make(map[string]*requester.Multiplexer),
		authCache: make(map[string]string),
	}
}

// Open builds a Request for rawURL, applies opts, and runs it to
// completion.
func (a *Agent) Open(rawURL, method string, opts ...RequestOption) (*message.Response, error) {
	u, err := urlutil.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	req := message.NewRequest(u, method)
	for _, opt := range opts {
		opt(req)
	}
	return a.Do(req)
}

// Do runs req through the full control loop: origin routing, redirect
// following (bounded, 303 always surfaced per spec's pinned behavior),
// auth challenge handling (bounded, cached per origin), MD5 verification
// on success, and cookie extraction.
func (a *Agent) Do(req *message.Request) (*message.Response, error) {
	return a.run(req, 0, 0)
}

func (a *Agent) run(req *message.Request, redirectCount, authCount int) (*message.Response, error) {
	a.cfg.applyDefaults(req)

	origin := req.URL.Authority()

	if cookies := a.cookieHeader(req.URL); cookies != "" {
		req.Headers.SetDefault("Cookie", cookies)
	}
	if authz := a.cachedAuthorization(origin); authz != "" {
		req.Headers.Set("Authorization", authz)
	}

	pool := a.poolFor(req)
	pool.Dispatch(req)

	result := <-req.Done()
	if result.Err != nil {
		return nil, result.Err
	}
	resp := result.Response

	switch outcome := classify(resp).(type) {
	case nil:
		if err := resp.VerifyDigest(); err != nil {
			return nil, err
		}
		a.extractCookies(req.URL, resp)
		return resp, nil

	case *rherrors.Redirected:
		followRedirect := a.cfg.FollowRedirect
		if req.FollowRedirect != nil {
			followRedirect = *req.FollowRedirect
		}
		if !followRedirect || redirectCount >= maxRedirects || outcome.Status == 303 {
			return nil, outcome
		}
		next, err := req.Redirect(outcome.Location)
		if err != nil {
			return nil, err
		}
		return a.run(next, redirectCount+1, authCount)

	case *rherrors.Unauthorized:
		if a.cachedAuthorization(origin) != "" {
			a.invalidateAuthorization(origin)
		}
		if authCount >= maxAuthAttempts {
			return nil, outcome
		}
		authz, err := a.authorize(req, outcome.Challenges)
		if err != nil {
			if _, insecure := err.(*rherrors.InsecureAuthentication); insecure {
				return nil, err
			}
			return nil, outcome
		}
		next := req.Copy(func(c *message.Request) {
			c.Headers.Set("Authorization", authz)
		})
		resp, err := a.run(next, redirectCount, authCount+1)
		if err == nil {
			a.cacheAuthorization(origin, authz)
		}
		return resp, err

	default:
		return nil, outcome.(error)
	}
}

// classify turns a completed Response's status into the control-loop
// outcome the Do loop reacts to, or nil for a 2xx. Any status the loop
// itself does not intervene on (1xx/3xx-without-Location/4xx-other-than-
// 401/5xx-other-than-503-with-Retry-After) is surfaced as WebError so the
// caller sees a uniform error shape.
func classify(resp *message.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case isRedirectStatus(resp.StatusCode) && resp.Header.Get("Location") != "":
		return &rherrors.Redirected{Status: resp.StatusCode, Location: resp.Header.Get("Location")}
	case resp.StatusCode == 401:
		return &rherrors.Unauthorized{Challenges: parseChallenges(resp.Header.Values("Www-Authenticate"))}
	case resp.StatusCode == 503 && resp.Header.Get("Retry-After") != "":
		return &rherrors.Retry{Status: 503, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	default:
		return &rherrors.WebError{Status: resp.StatusCode, Message: resp.Status}
	}
}

func isRedirectStatus(code int) bool {
	switch code {
	case 301, 302, 303, 307, 308:
		return true
	default:
		return false
	}
}

func parseRetryAfter(v string) int {
	n := 0
	for _, r := range v {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// authorize walks the authenticators available for this request --
// req.Authenticator alone if the caller set a per-request override,
// otherwise Config.Authenticators -- looking for one whose Schemes()
// match a challenge, honoring InsecureAuthentication for non-TLS origins.
func (a *Agent) authorize(req *message.Request, challenges []rherrors.Challenge) (string, error) {
	authenticators := a.cfg.Authenticators
	if req.Authenticator != nil {
		authenticators = []auth.Authenticator{req.Authenticator}
	}
	for _, authr := range authenticators {
		for _, challenge := range challenges {
			if !schemeMatches(authr.Schemes(), challenge.Scheme) {
				continue
			}
			secure := req.URL.Scheme == "https" || a.cfg.Secure || authr.Secure()
			if !secure {
				return "", &rherrors.InsecureAuthentication{Scheme: challenge.Scheme, Origin: req.URL.Authority()}
			}
			return authr.Authorize(req.Method, req.URL.RequestURI(), challenge)
		}
	}
	return "", &rherrors.Unauthorized{Challenges: challenges}
}

func schemeMatches(schemes []string, scheme string) bool {
	for _, s := range schemes {
		if strings.EqualFold(s, scheme) {
			return true
		}
	}
	return false
}

func (a *Agent) cookieHeader(u *urlutil.URL) string {
	if a.cfg.CookieStore == nil {
		return ""
	}
	return a.cfg.CookieStore.CookieHeader(u)
}

func (a *Agent) extractCookies(u *urlutil.URL, resp *message.Response) {
	if a.cfg.CookieStore == nil {
		return
	}
	if setCookie := resp.Header.Values("Set-Cookie"); len(setCookie) > 0 {
		a.cfg.CookieStore.Extract(u, setCookie)
	}
}

func (a *Agent) cachedAuthorization(origin string) string {
	a.authMu.Lock()
	defer a.authMu.Unlock()
	return a.authCache[origin]
}

func (a *Agent) cacheAuthorization(origin, value string) {
	a.authMu.Lock()
	defer a.authMu.Unlock()
	a.authCache[origin] = value
}

func (a *Agent) invalidateAuthorization(origin string) {
	a.authMu.Lock()
	defer a.authMu.Unlock()
	delete(a.authCache, origin)
}

// poolFor resolves the Multiplexer for req's origin, inserting a new one
// (evicting the LRU origin if at capacity) if none exists yet. The proxy
// for this request -- if any -- is resolved and assigned to req before
// the origin key is computed or a new pool is built, so a proxied origin
// never shares a pool with (or gets evicted in favor of) the same origin
// dialed directly. req.Timeout, if set, only takes effect when it causes
// a new pool to be built -- like the rest of a Multiplexer's connections,
// the read/write deadline is a property of the shared pool, not of any
// one request riding it.
func (a *Agent) poolFor(req *message.Request) *requester.Multiplexer {
	if a.cfg.Proxier != nil && req.Proxy == nil {
		req.Proxy = a.cfg.Proxier.ProxyFor(req.URL)
	}

	key := poolKey(req)

	a.mu.Lock()
	defer a.mu.Unlock()

	if elem, ok := a.elems[key]; ok {
		a.order.MoveToFront(elem)
		return a.pools[key]
	}

	if a.order.Len() >= a.cfg.MaxConnections {
		oldest := a.order.Back()
		if oldest != nil {
			oldestKey := oldest.Value.(string)
			a.order.Remove(oldest)
			delete(a.elems, oldestKey)
			if pool, ok := a.pools[oldestKey]; ok {
				pool.Close()
				delete(a.pools, oldestKey)
			}
		}
	}

	target := transport.Config{
		Scheme:    req.URL.Scheme,
		Host:      req.URL.Host,
		Port:      req.URL.Port,
		Proxy:     req.Proxy,
		TLSConfig: a.cfg.TLSConfig,
	}
	timeout := a.cfg.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	opts := httpconn.Options{ReadTimeout: timeout, WriteTimeout: timeout}
	pool := requester.NewMultiplexer(a.tr, target, opts, a.cfg.MaxConnectionsPerSite)

	a.pools[key] = pool
	a.elems[key] = a.order.PushFront(key)
	return pool
}

func poolKey(req *message.Request) string {
	if req.Proxy != nil {
		return req.URL.Authority() + "|via:" + req.Proxy.Host + ":" + strconv.Itoa(req.Proxy.Port)
	}
	return req.URL.Authority()
}

// Close tears down every origin's connection pool.
func (a *Agent) Close() {
	a.mu.Lock()
	pools := make([]*requester.Multiplexer, 0, len(a.pools))
	for _, p := range a.pools {
		pools = append(pools, p)
	}
	a.pools = make(map[string]*requester.Multiplexer)
	a.elems = make(map[string]*list.Element)
	a.order.Init()
	a.mu.Unlock()
	for _, p := range pools {
		p.Close()
	}
}
