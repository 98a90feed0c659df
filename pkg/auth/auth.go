// Package auth implements the authenticators an Agent's auth-challenge
// loop consults: Basic (RFC 7617) and Digest (RFC 2617, MD5 variant).
package auth

import (
	"crypto/md5"
	"encoding/base64"
	"fmt"

	rherrors "github.com/corvid-labs/httpagent/pkg/errors"
)

// Challenge is a parsed WWW-Authenticate challenge: the scheme name plus
// its auth-params (realm, nonce, qop, ...). It is the same shape the Agent
// classifies a 401's Www-Authenticate headers into.
type Challenge = rherrors.Challenge

// Authenticator builds an Authorization header value for a challenge this
// Authenticator's Schemes() claims to handle.
type Authenticator interface {
	// Schemes lists the WWW-Authenticate scheme names (case-insensitive)
	// this Authenticator can answer.
	Schemes() []string
	// Secure reports whether this scheme sends credentials in a form that
	// is not trivially recoverable in transit (Digest: true, Basic:
	// false -- Basic over a plaintext connection is what
	// InsecureAuthentication guards against).
	Secure() bool
	// Authorize builds the Authorization header value for method/uri
	// against challenge.
	Authorize(method, uri string, challenge Challenge) (string, error)
}

// BasicAuthenticator implements RFC 7617 Basic authentication.
type BasicAuthenticator struct {
	Username string
	Password string
}

func (a *BasicAuthenticator) Schemes() []string { return []string{"Basic"} }
func (a *BasicAuthenticator) Secure() bool       { return false }

func (a *BasicAuthenticator) Authorize(method, uri string, challenge Challenge) (string, error) {
	cred := a.Username + ":" + a.Password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(cred)), nil
}

// DigestAuthenticator implements the MD5 variant of RFC 2617 Digest
// authentication (the only algorithm the challenged servers this client
// targets are expected to offer; SHA-256 digest is out of scope).
type DigestAuthenticator struct {
	Username string
	Password string
}

func (a *DigestAuthenticator) Schemes() []string { return []string{"Digest"} }
func (a *DigestAuthenticator) Secure() bool       { return true }

func (a *DigestAuthenticator) Authorize(method, uri string, challenge Challenge) (string, error) {
	realm := challenge.Params["realm"]
	nonce := challenge.Params["nonce"]
	if realm == "" || nonce == "" {
		return "", fmt.Errorf("auth: digest challenge missing realm or nonce")
	}

	response := digestResponse(a.Username, a.Password, realm, method, uri, nonce)

	return fmt.Sprintf(
		`Digest username="%s", realm="%s", nonce="%s", uri="%s", response="%s"`,
		a.Username, realm, nonce, uri, response,
	), nil
}

// digestResponse computes H(A1):nonce:H(A2) per RFC 2617 §3.2.2.1, with
// A1=username:realm:password and A2=method:uri. username and password are
// ordinary parameters, not an implicit receiver -- the original this was
// ported from declared this a static method while still referring to
// "self" inside it, which never resolved.
func digestResponse(username, password, realm, method, uri, nonce string) string {
	ha1 := md5Hex(fmt.Sprintf("%s:%s:%s", username, realm, password))
	ha2 := md5Hex(fmt.Sprintf("%s:%s", method, uri))
	return md5Hex(fmt.Sprintf("%s:%s:%s", ha1, nonce, ha2))
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return fmt.Sprintf("%x", sum)
}
