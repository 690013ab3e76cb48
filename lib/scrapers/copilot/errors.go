package copilot

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// AuthError covers an unreachable login form, rejected credentials, a
// missing session cookie after login, or a login-step timeout.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %s", e.Reason, e.Err)
	}
	return fmt.Sprintf("auth: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// UpstreamError is a non-2xx response from the upstream product API.
type UpstreamError struct {
	Status int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream: unexpected status %d", e.Status)
}

// ParseError is a response body that could not be decoded. Snippet holds a
// truncated piece of the raw body for diagnosis.
type ParseError struct {
	Err     error
	Snippet string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse: %s", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TransportError is a network or navigation failure. It is retried once
// before being surfaced.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// an expired or rejected session mid-fetch, resolved internally with one
// re-auth + retry before surfacing as AuthError
var errSessionExpired = errors.New("session expired")

const snippetLimit = 256

func snippet(body string) string {
	if len(body) <= snippetLimit {
		return body
	}
	// back off to a rune boundary so the diagnostic stays valid utf-8
	cut := snippetLimit
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}
