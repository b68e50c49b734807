package bridgetest

import (
	"io"
	"net/url"
	"sync"

	"github.com/fastly/fetch-bridge-go/platform"
)

// Request is an in-memory implementation of platform.Request. Its close
// event can be fired, any number of times, with Close.
type Request struct {
	method     string
	target     string
	header     platform.Header
	body       io.ReadCloser
	remoteAddr string

	mu        sync.Mutex
	nextID    int
	listeners map[int]func()
}

// NewRequest returns a platform request with the given method, request
// target (path and query), headers and body. A nil header is replaced with
// an empty one.
func NewRequest(method, target string, header platform.Header, body io.Reader) *Request {
	if header == nil {
		header = platform.Header{}
	}
	var rc io.ReadCloser
	if body != nil {
		var ok bool
		if rc, ok = body.(io.ReadCloser); !ok {
			rc = io.NopCloser(body)
		}
	}
	return &Request{
		method:     method,
		target:     target,
		header:     header,
		body:       rc,
		remoteAddr: "192.0.2.1",
		listeners:  map[int]func(){},
	}
}

// SetRemoteAddr sets the client address reported by RemoteAddr.
func (r *Request) SetRemoteAddr(addr string) { r.remoteAddr = addr }

func (r *Request) Method() string          { return r.method }
func (r *Request) URL() string             { return r.target }
func (r *Request) Header() platform.Header { return r.header }
func (r *Request) Body() io.ReadCloser     { return r.body }
func (r *Request) RemoteAddr() string      { return r.remoteAddr }

func (r *Request) Query() url.Values {
	u, err := url.ParseRequestURI(r.target)
	if err != nil {
		return url.Values{}
	}
	return u.Query()
}

func (r *Request) OnClose(f func()) (stop func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.listeners[id] = f
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.listeners, id)
	}
}

// Close fires the close event, calling every registered listener
// synchronously.
func (r *Request) Close() {
	r.mu.Lock()
	fs := make([]func(), 0, len(r.listeners))
	for _, f := range r.listeners {
		fs = append(fs, f)
	}
	r.mu.Unlock()

	for _, f := range fs {
		f()
	}
}

// Listeners returns the number of registered close listeners.
func (r *Request) Listeners() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}
