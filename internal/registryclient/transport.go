// Package registryclient implements the registry client: manifest fetch and
// blob download over a pluggable HTTP transport, with Bearer-token
// negotiation.
package registryclient

import (
	"context"
	"io"
	"net/http"
)

// Transport is the capability set the registry client depends on: a plain
// { get, download } interface rather than a concrete HTTP client type, so
// the same client drives both a real registry and an offline substitute.
type Transport interface {
	// Get issues a GET to url with the given request headers, reading at
	// most maxSize+1 bytes of the body (the extra byte lets the caller
	// detect an over-length body without buffering it unbounded).
	Get(ctx context.Context, url string, headers http.Header, maxSize int64) (*Response, error)

	// Download issues a GET to url and streams the body into w. 401 retry
	// is the caller's responsibility; Download itself does not retry.
	Download(ctx context.Context, url string, headers http.Header, w io.Writer) (*Response, error)
}

// Response carries the parts of an HTTP response the client and its
// callers need; www-authenticate must be observable here when requested.
type Response struct {
	Status  int
	Body    []byte
	Headers http.Header
}

// Factory builds a Transport per request: called fresh for every
// GET/download so that test doubles and offline substitutes stay
// single-purpose and stateless, with no shared mutable auth cache.
// observedHeaders names headers the caller intends to read off the
// response (www-authenticate, in practice).
type Factory func(headers http.Header, observedHeaders []string) Transport
