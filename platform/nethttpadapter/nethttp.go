// Copyright 2022 Fastly, Inc.

// Package nethttpadapter exposes net/http requests and response writers as
// platform objects, and serves a bridge.Adapter as an http.Handler.
package nethttpadapter

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/fastly/fetch-bridge-go/bridge"
	"github.com/fastly/fetch-bridge-go/fetch"
	"github.com/fastly/fetch-bridge-go/platform"
)

type request struct {
	r *http.Request
}

// NewRequest returns r as a platform.Request. The close event fires when the
// client connection closes, which net/http reports by canceling r's context.
func NewRequest(r *http.Request) platform.Request {
	return request{r: r}
}

func (req request) Method() string { return req.r.Method }

func (req request) URL() string {
	if req.r.RequestURI != "" {
		return req.r.RequestURI
	}
	return req.r.URL.RequestURI()
}

// Header returns the request headers. net/http moves the Host header into
// the Request.Host field; it is put back here.
func (req request) Header() platform.Header {
	h := make(platform.Header, len(req.r.Header)+1)
	for k, vs := range req.r.Header {
		h[k] = vs
	}
	if req.r.Host != "" {
		h["Host"] = []string{req.r.Host}
	}
	return h
}

func (req request) Body() io.ReadCloser { return req.r.Body }

func (req request) RemoteAddr() string {
	host, _, err := net.SplitHostPort(req.r.RemoteAddr)
	if err != nil {
		return req.r.RemoteAddr
	}
	return host
}

func (req request) Query() url.Values { return req.r.URL.Query() }

func (req request) OnClose(f func()) (stop func()) {
	s := context.AfterFunc(req.r.Context(), f)
	return func() { s() }
}

// ResponseWriter is a platform.ResponseWriter on top of an
// http.ResponseWriter.
type ResponseWriter struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	status int

	headWritten bool
	ended       bool
}

// NewResponseWriter returns a platform.ResponseWriter writing to w.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		w:      w,
		rc:     http.NewResponseController(w),
		status: http.StatusOK,
	}
}

func (rw *ResponseWriter) SetStatusCode(code int) {
	rw.status = code
}

func (rw *ResponseWriter) SetHeader(key string, values ...string) {
	h := rw.w.Header()
	h.Del(key)
	for _, v := range values {
		h.Add(key, v)
	}
}

func (rw *ResponseWriter) DeleteHeader(key string) {
	rw.w.Header().Del(key)
}

// WriteHead sends the status line and headers. net/http always sends the
// standard reason phrase, so statusText is not used.
func (rw *ResponseWriter) WriteHead(status int, statusText string, header platform.Header) error {
	if rw.headWritten {
		return nil
	}
	if rw.ended {
		return errors.New("write head: response already ended")
	}
	for key, values := range header {
		rw.SetHeader(key, values...)
	}
	if status != 0 {
		rw.status = status
	}
	rw.headWritten = true
	rw.w.WriteHeader(rw.status)
	return nil
}

// Write writes p and flushes it to the client, so that streamed bodies are
// delivered as they are produced.
func (rw *ResponseWriter) Write(p []byte) (int, error) {
	if rw.ended {
		return 0, errors.New("write: response already ended")
	}
	if !rw.headWritten {
		rw.WriteHead(0, "", nil)
	}
	n, err := rw.w.Write(p)
	if err != nil {
		return n, err
	}
	if err := rw.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return n, err
	}
	return n, nil
}

// End finishes the response. If no head was sent, net/http sends the
// pending status when the handler returns, unless the caller writes an error
// response to the underlying http.ResponseWriter first.
func (rw *ResponseWriter) End() error {
	rw.ended = true
	return nil
}

// HeadWritten reports whether the status line has been sent.
func (rw *ResponseWriter) HeadWritten() bool {
	return rw.headWritten
}

// Handler returns an http.Handler serving every request through a. It is
// the outer layer the adapter leaves error handling to: if HandleRequest
// fails before the response head was sent, Handler responds with 400 for
// invalid requests and 500 otherwise; if it fails mid-body, the connection is
// aborted. log may be nil.
func Handler(a *bridge.Adapter, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pw := NewResponseWriter(w)

		// Client disconnects reach the handler through the close event,
		// not through the parent context.
		ctx := context.WithoutCancel(r.Context())
		err := a.HandleRequest(ctx, NewRequest(r), pw)
		if err == nil {
			return
		}

		log.Error("request_failed",
			zap.String("method", r.Method),
			zap.String("url", r.RequestURI),
			zap.Error(err),
		)
		if pw.HeadWritten() {
			// The body was cut short; abort the connection so the client
			// cannot mistake it for a complete response.
			panic(http.ErrAbortHandler)
		}
		status := bridge.ErrorStatus(err)
		h := w.Header()
		for k := range h {
			delete(h, k)
		}
		h.Set("Content-Type", "text/plain; charset=utf-8")
		h.Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(status)
		io.WriteString(w, fetch.StatusText(status)+"\n")
	})
}
