// Copyright 2022 Fastly, Inc.

package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request is a standardized, framework-agnostic HTTP request, shaped after
// the Request object of the Fetch standard. A Request is built once per
// incoming call and must not be reused.
type Request struct {
	// Method specifies the HTTP method: GET, POST, PUT, HEAD, etc.
	Method string

	// URL is the absolute URL of the request.
	URL *url.URL

	// Header contains the request header fields.
	Header Header

	// Body is the request's body. It is nil for GET and HEAD requests, and
	// may only be read once.
	Body io.ReadCloser

	// RemoteAddr contains the IP address of the requesting client, if the
	// platform provided one.
	RemoteAddr string

	// Signal is set when the client connection closes.
	Signal *Signal
}

// ErrNoCookie is returned by Request's Cookie method when a cookie is not found.
var ErrNoCookie = errors.New("fetch: named cookie not present")

// NewRequest constructs a request with the given HTTP method, URI and body.
// The URI is parsed via url.Parse. A body passed for GET or HEAD is dropped.
func NewRequest(method string, uri string, body io.Reader) (*Request, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}

	req := &Request{
		Method: method,
		URL:    u,
		Header: NewHeader(),
		Signal: NewSignal(context.Background()),
	}
	if MethodAllowsBody(method) {
		req.Body = toReadCloser(body)
	}
	return req, nil
}

// Context returns the request's context, which is canceled when its Signal
// is set.
func (r *Request) Context() context.Context {
	if r.Signal == nil {
		return context.Background()
	}
	return r.Signal.Context()
}

// HasBody reports whether the request carries a body.
func (r *Request) HasBody() bool {
	return r.Body != nil
}

// Cookies parses and returns the HTTP cookies sent with the request.
func (r *Request) Cookies() []*http.Cookie {
	values := r.Header.Values("cookie")
	if len(values) == 0 {
		return nil
	}
	hr := http.Request{Header: http.Header{"Cookie": values}}
	return hr.Cookies()
}

// Cookie returns the named cookie provided in the request or ErrNoCookie if
// not found. If multiple cookies match the given name, only one cookie will
// be returned.
func (r *Request) Cookie(name string) (*http.Cookie, error) {
	for _, c := range r.Cookies() {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, ErrNoCookie
}

// MethodAllowsBody reports whether a request with the given method may carry
// a body. GET and HEAD requests may not.
func MethodAllowsBody(method string) bool {
	return !strings.EqualFold(method, http.MethodGet) && !strings.EqualFold(method, http.MethodHead)
}

func toReadCloser(body io.Reader) io.ReadCloser {
	if body == nil {
		return nil
	}
	if rc, ok := body.(io.ReadCloser); ok {
		return rc
	}
	return io.NopCloser(body)
}
