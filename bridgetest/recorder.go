package bridgetest

import (
	"bytes"
	"sync"

	"github.com/fastly/fetch-bridge-go/platform"
)

// Calls recorded by ResponseRecorder.
const (
	CallSetStatusCode = "SetStatusCode"
	CallSetHeader     = "SetHeader"
	CallDeleteHeader  = "DeleteHeader"
	CallWriteHead     = "WriteHead"
	CallWrite         = "Write"
	CallEnd           = "End"
)

// ResponseRecorder is an implementation of platform.ResponseWriter that
// records its mutations, and the order they happened in, for later
// inspection in tests.
type ResponseRecorder struct {
	mu sync.Mutex

	Code       int
	StatusText string
	HeaderMap  platform.Header
	Body       *bytes.Buffer

	// HeadWrites counts WriteHead calls, Ends counts End calls.
	HeadWrites int
	Ends       int

	// Calls lists every method invoked, in order.
	Calls []string

	// WriteHeadErr, WriteErr and EndErr, if set, are returned by the
	// corresponding methods. WriteErr is returned once WriteErrAfter bytes
	// have been accepted.
	WriteHeadErr  error
	WriteErr      error
	WriteErrAfter int
	EndErr        error
}

// NewRecorder returns an initialized ResponseRecorder.
func NewRecorder() *ResponseRecorder {
	return &ResponseRecorder{
		Code:      200,
		HeaderMap: platform.Header{},
		Body:      &bytes.Buffer{},
	}
}

func (r *ResponseRecorder) record(call string) {
	r.Calls = append(r.Calls, call)
}

// SetStatusCode records the status code.
func (r *ResponseRecorder) SetStatusCode(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(CallSetStatusCode)
	r.Code = code
}

// SetHeader replaces the recorded values of key.
func (r *ResponseRecorder) SetHeader(key string, values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(CallSetHeader)
	r.HeaderMap[key] = append([]string(nil), values...)
}

// DeleteHeader removes key from the recorded headers.
func (r *ResponseRecorder) DeleteHeader(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(CallDeleteHeader)
	delete(r.HeaderMap, key)
}

// WriteHead records the status line and merges header into HeaderMap.
func (r *ResponseRecorder) WriteHead(status int, statusText string, header platform.Header) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(CallWriteHead)
	r.HeadWrites++
	if r.WriteHeadErr != nil {
		return r.WriteHeadErr
	}
	r.Code = status
	r.StatusText = statusText
	for key, values := range header {
		r.HeaderMap[key] = append([]string(nil), values...)
	}
	return nil
}

// Write records body bytes in Body.
func (r *ResponseRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(CallWrite)
	if r.WriteErr != nil && r.Body.Len()+len(p) > r.WriteErrAfter {
		n := r.WriteErrAfter - r.Body.Len()
		if n < 0 {
			n = 0
		}
		r.Body.Write(p[:n])
		return n, r.WriteErr
	}
	return r.Body.Write(p)
}

// End records the end of the response.
func (r *ResponseRecorder) End() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(CallEnd)
	r.Ends++
	return r.EndErr
}

// Snapshot returns a copy of the recorded calls.
func (r *ResponseRecorder) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.Calls...)
}

// Ended reports whether End has been called.
func (r *ResponseRecorder) Ended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Ends > 0
}
