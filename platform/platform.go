// Copyright 2022 Fastly, Inc.

// Package platform describes the native HTTP request and response objects a
// serverless host runtime hands to a function for each invocation.
//
// The host runtime has already parsed the incoming request into structured
// fields, and delivers whatever is written to the ResponseWriter. Concrete
// runtimes are adapted in the subpackages.
package platform

import (
	"io"
	"net/url"
)

// Header is a platform header collection as delivered by the host runtime.
// Keys are case-insensitive and may arrive in any case. A key with a single
// value holds a one-element slice; multi-valued fields hold every value in
// the order the runtime received them.
type Header map[string][]string

// Keys returns every key of the collection, as delivered.
func (h Header) Keys() []string {
	keys := make([]string, 0, len(h))
	for key := range h {
		keys = append(keys, key)
	}
	return keys
}

// Request is the runtime's view of the incoming client request. It is owned
// by the runtime for the duration of one invocation.
type Request interface {
	// Method returns the HTTP method.
	Method() string

	// URL returns the request target as received, usually an origin-form
	// path with optional query, e.g. "/a/b?c=d".
	URL() string

	// Header returns the request headers.
	Header() Header

	// Body returns the raw request body stream. It may be consumed once.
	Body() io.ReadCloser

	// RemoteAddr returns the client IP address, if known.
	RemoteAddr() string

	// Query returns the parsed query parameters of the request target.
	Query() url.Values

	// OnClose registers f to be called when the client connection closes.
	// Calling stop unregisters f; it is safe to call more than once.
	OnClose(f func()) (stop func())
}

// ResponseWriter is the runtime's output sink for the response to the
// current request.
type ResponseWriter interface {
	// SetStatusCode sets the status code to send with the head.
	SetStatusCode(code int)

	// SetHeader replaces the values of a pending response header.
	SetHeader(key string, values ...string)

	// DeleteHeader removes a pending response header.
	DeleteHeader(key string)

	// WriteHead sends the status line and headers. Every value of a
	// multi-valued key is sent as its own header line. Only the first call
	// has an effect.
	WriteHead(status int, statusText string, header Header) error

	// Write sends body bytes. It must not be called before WriteHead.
	Write(p []byte) (int, error)

	// End finishes the response. After End the sink is terminal.
	End() error
}
