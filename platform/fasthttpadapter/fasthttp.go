// Copyright 2022 Fastly, Inc.

// Package fasthttpadapter exposes fasthttp request contexts as platform
// objects, and serves a bridge.Adapter as a fasthttp.RequestHandler.
//
// fasthttp sends the response only after the request handler returns, so
// response bodies are collected in the response buffer rather than streamed
// to the client as they are written. Run the server with StreamRequestBody
// enabled to stream request bodies into the handler.
package fasthttpadapter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"sync"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastly/fetch-bridge-go/bridge"
	"github.com/fastly/fetch-bridge-go/fetch"
	"github.com/fastly/fetch-bridge-go/platform"
)

type request struct {
	ctx *fasthttp.RequestCtx
}

// NewRequest returns ctx's request as a platform.Request.
//
// fasthttp has no per-connection close notification, so the close event
// fires when the server shuts down with the request still in flight.
func NewRequest(ctx *fasthttp.RequestCtx) platform.Request {
	return request{ctx: ctx}
}

func (req request) Method() string { return string(req.ctx.Method()) }
func (req request) URL() string    { return string(req.ctx.RequestURI()) }

func (req request) Header() platform.Header {
	h := platform.Header{}
	req.ctx.Request.Header.VisitAll(func(k, v []byte) {
		key := string(k)
		h[key] = append(h[key], string(v))
	})
	return h
}

// Body returns the streamed request body when the server streams request
// bodies, and the buffered body otherwise.
func (req request) Body() io.ReadCloser {
	if s := req.ctx.RequestBodyStream(); s != nil {
		return io.NopCloser(s)
	}
	return io.NopCloser(bytes.NewReader(req.ctx.PostBody()))
}

func (req request) RemoteAddr() string { return req.ctx.RemoteIP().String() }

func (req request) Query() url.Values {
	q := url.Values{}
	req.ctx.QueryArgs().VisitAll(func(k, v []byte) {
		q.Add(string(k), string(v))
	})
	return q
}

func (req request) OnClose(f func()) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-req.ctx.Done():
			f()
		case <-done:
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// ResponseWriter is a platform.ResponseWriter on top of a
// fasthttp.RequestCtx.
type ResponseWriter struct {
	ctx *fasthttp.RequestCtx

	headWritten bool
	ended       bool
}

// NewResponseWriter returns a platform.ResponseWriter writing to ctx.
func NewResponseWriter(ctx *fasthttp.RequestCtx) *ResponseWriter {
	return &ResponseWriter{ctx: ctx}
}

func (rw *ResponseWriter) SetStatusCode(code int) {
	rw.ctx.SetStatusCode(code)
}

func (rw *ResponseWriter) SetHeader(key string, values ...string) {
	rw.ctx.Response.Header.Del(key)
	for _, v := range values {
		rw.ctx.Response.Header.Add(key, v)
	}
}

func (rw *ResponseWriter) DeleteHeader(key string) {
	rw.ctx.Response.Header.Del(key)
}

// WriteHead sets the status line and headers. Every value of a repeated
// key is added as its own header line; fasthttp keeps one Set-Cookie line
// per cookie name.
func (rw *ResponseWriter) WriteHead(status int, statusText string, header platform.Header) error {
	if rw.headWritten {
		return nil
	}
	if rw.ended {
		return errors.New("write head: response already ended")
	}
	if status != 0 {
		rw.ctx.SetStatusCode(status)
	}
	if statusText != "" && statusText != fasthttp.StatusMessage(rw.ctx.Response.StatusCode()) {
		rw.ctx.Response.Header.SetStatusMessage([]byte(statusText))
	}
	for key, values := range header {
		rw.SetHeader(key, values...)
	}
	rw.headWritten = true
	return nil
}

func (rw *ResponseWriter) Write(p []byte) (int, error) {
	if rw.ended {
		return 0, errors.New("write: response already ended")
	}
	rw.headWritten = true
	return rw.ctx.Write(p)
}

func (rw *ResponseWriter) End() error {
	rw.headWritten = true
	rw.ended = true
	return nil
}

// HeadWritten reports whether the status line has been set.
func (rw *ResponseWriter) HeadWritten() bool {
	return rw.headWritten
}

// Handler returns a fasthttp.RequestHandler serving every request through
// a. If HandleRequest fails, Handler responds with 400 for invalid requests
// and 500 otherwise; since fasthttp has sent nothing yet, this also replaces
// a partially projected response. log may be nil.
func Handler(a *bridge.Adapter, log *zap.Logger) fasthttp.RequestHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx *fasthttp.RequestCtx) {
		err := a.HandleRequest(context.Background(), NewRequest(ctx), NewResponseWriter(ctx))
		if err == nil {
			return
		}

		log.Error("request_failed",
			zap.ByteString("method", ctx.Method()),
			zap.ByteString("url", ctx.RequestURI()),
			zap.Error(err),
		)
		status := bridge.ErrorStatus(err)
		ctx.Response.Reset()
		ctx.Error(fetch.StatusText(status), status)
	}
}
