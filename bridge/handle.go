// Copyright 2022 Fastly, Inc.

package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fastly/fetch-bridge-go/fetch"
	"github.com/fastly/fetch-bridge-go/platform"
)

// Options configure an Adapter. The zero value is usable.
type Options struct {
	// DefaultScheme is the URL scheme assumed when a request carries no
	// X-Forwarded-Proto header. If empty, DefaultScheme ("https") is used.
	DefaultScheme string

	// ContextResolver, if set, computes the application context passed to
	// the handler. Otherwise the handler receives a nil context.
	ContextResolver ContextResolver

	// BufferSize bounds the response body copy buffer. If zero or
	// negative, DefaultBufferSize is used.
	BufferSize int

	// Logger receives per-request diagnostics. If nil, nothing is logged.
	Logger *zap.Logger

	// Metrics, if set, records request metrics.
	Metrics *Metrics
}

// Adapter connects a platform runtime to an application Handler. It holds no
// per-request state, so one Adapter may serve any number of concurrent
// requests.
type Adapter struct {
	handler    Handler
	resolve    ContextResolver
	translator Translator
	projector  Projector
	log        *zap.Logger
	metrics    *Metrics
}

// New returns an Adapter serving h. opts may be nil.
func New(h Handler, opts *Options) *Adapter {
	if opts == nil {
		opts = &Options{}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		handler:    h,
		resolve:    opts.ContextResolver,
		translator: Translator{DefaultScheme: opts.DefaultScheme},
		projector:  Projector{BufferSize: opts.BufferSize},
		log:        log,
		metrics:    opts.Metrics,
	}
}

// NewFromFactory builds the handler for mode with f and returns an Adapter
// serving it.
func NewFromFactory(f HandlerFactory, mode string, opts *Options) (*Adapter, error) {
	h, err := f(mode)
	if err != nil {
		return nil, fmt.Errorf("build handler for mode %q: %w", mode, err)
	}
	if h == nil {
		return nil, fmt.Errorf("build handler for mode %q: factory returned nil handler", mode)
	}
	return New(h, opts), nil
}

// HandleRequest serves one platform request. It translates pr, resolves the
// application context, invokes the handler, and projects the handler's
// response onto pw, strictly in that order.
//
// Failures before projection are returned as-is, and pw is left untouched so
// the caller can decide how to respond: translation failures are
// *InvalidRequestError, handler errors are returned unmodified. Once
// projection starts, pw is always ended; transfer failures are returned as
// *StreamError.
//
// The request's Signal is set if the platform reports the client connection
// closing while the request is in flight. HandleRequest does not interrupt
// the handler itself.
func (a *Adapter) HandleRequest(ctx context.Context, pr platform.Request, pw platform.ResponseWriter) error {
	start := time.Now()

	req, detach, err := a.translator.Translate(contextWithPlatform(ctx, pr, pw), pr)
	if err != nil {
		a.metrics.failed(StageTranslate)
		a.log.Debug("bridge_translate_failed", zap.String("method", pr.Method()), zap.String("url", pr.URL()), zap.Error(err))
		return err
	}
	defer detach()

	stopWatch := req.Signal.OnAbort(func() {
		if errors.Is(req.Signal.Reason(), fetch.ErrClientClosed) {
			a.metrics.closed()
			a.log.Debug("bridge_client_closed", zap.String("method", req.Method), zap.Stringer("url", req.URL))
		}
	})
	defer stopWatch()

	a.log.Debug("bridge_request_translated",
		zap.String("method", req.Method),
		zap.Stringer("url", req.URL),
		zap.Bool("body", req.HasBody()),
		zap.String("remote", req.RemoteAddr),
	)

	var appCtx any
	if a.resolve != nil {
		appCtx = a.resolve(pr, pw)
	}

	resp, err := a.handler.ServeFetch(req, appCtx)
	if err != nil {
		a.metrics.failed(StageHandler)
		return err
	}
	if resp == nil {
		a.metrics.failed(StageHandler)
		return ErrNilResponse
	}

	written, err := a.projector.Project(pw, resp)
	if err != nil {
		a.metrics.failed(StageStream)
		a.log.Warn("bridge_stream_failed",
			zap.String("method", req.Method),
			zap.Stringer("url", req.URL),
			zap.Int("status", resp.Status),
			zap.Int64("written", written),
			zap.Error(err),
		)
		return err
	}

	elapsed := time.Since(start)
	a.metrics.observe(req.Method, resp.Status, written, elapsed)
	a.log.Debug("bridge_response_projected",
		zap.String("method", req.Method),
		zap.Stringer("url", req.URL),
		zap.Int("status", resp.Status),
		zap.Int64("written", written),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}
