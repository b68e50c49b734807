// Copyright 2022 Fastly, Inc.

package bridge

import (
	"github.com/fastly/fetch-bridge-go/fetch"
	"github.com/fastly/fetch-bridge-go/platform"
)

// Handler is the application request handler. It computes a standardized
// response from a standardized request and an opaque application context,
// which may be nil when no ContextResolver is configured.
//
// Handlers should watch r.Signal (or r.Context()) to stop work early when
// the client goes away. Any error is returned to the caller of
// HandleRequest unmodified.
type Handler interface {
	ServeFetch(r *fetch.Request, appCtx any) (*fetch.Response, error)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(r *fetch.Request, appCtx any) (*fetch.Response, error)

// ServeFetch implements Handler by calling f(r, appCtx).
func (f HandlerFunc) ServeFetch(r *fetch.Request, appCtx any) (*fetch.Response, error) {
	return f(r, appCtx)
}

// ContextResolver derives an application context from the raw platform
// objects. It is called synchronously, once per request, after translation
// and before the handler.
type ContextResolver func(r platform.Request, w platform.ResponseWriter) any

// HandlerFactory builds a Handler for the given runtime mode, e.g.
// "production" or "development". The mode is passed through unmodified.
type HandlerFactory func(mode string) (Handler, error)
