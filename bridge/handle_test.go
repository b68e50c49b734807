// Copyright 2022 Fastly, Inc.

package bridge

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fastly/fetch-bridge-go/bridgetest"
	"github.com/fastly/fetch-bridge-go/fetch"
	"github.com/fastly/fetch-bridge-go/platform"
)

func hostHeader() platform.Header {
	return platform.Header{"Host": {"example.com"}}
}

func TestHandleRequest(t *testing.T) {
	t.Parallel()

	h := HandlerFunc(func(r *fetch.Request, _ any) (*fetch.Response, error) {
		if PlatformRequestFromContext(r.Context()) == nil {
			return nil, errors.New("no platform.Request in context")
		}
		if PlatformResponseWriterFromContext(r.Context()) == nil {
			return nil, errors.New("no platform.ResponseWriter in context")
		}
		return fetch.Text(fetch.StatusOK, "hello"), nil
	})

	pr := bridgetest.NewRequest("GET", "/", hostHeader(), nil)
	w := bridgetest.NewRecorder()

	if err := New(h, nil).HandleRequest(context.Background(), pr, w); err != nil {
		t.Fatal(err)
	}

	if want, have := fetch.StatusOK, w.Code; want != have {
		t.Errorf("Code: want %d, have %d", want, have)
	}
	if want, have := "text/plain; charset=utf-8", w.HeaderMap["content-type"]; len(have) != 1 || have[0] != want {
		t.Errorf("content-type: want %q, have %q", want, have)
	}
	if want, have := "hello", w.Body.String(); want != have {
		t.Errorf("Body: want %q, have %q", want, have)
	}
	if want, have := 1, w.Ends; want != have {
		t.Errorf("Ends: want %d, have %d", want, have)
	}
	if want, have := 0, pr.Listeners(); want != have {
		t.Errorf("Listeners: want %d, have %d", want, have)
	}
}

func TestHandleRequestEchoesBody(t *testing.T) {
	t.Parallel()

	h := HandlerFunc(func(r *fetch.Request, _ any) (*fetch.Response, error) {
		return fetch.NewResponse(r.Body, fetch.StatusOK, nil), nil
	})

	pr := bridgetest.NewRequest("POST", "/echo", hostHeader(), strings.NewReader("round trip"))
	w := bridgetest.NewRecorder()

	if err := New(h, nil).HandleRequest(context.Background(), pr, w); err != nil {
		t.Fatal(err)
	}
	if want, have := "round trip", w.Body.String(); want != have {
		t.Errorf("Body: want %q, have %q", want, have)
	}
}

func TestHandleRequestHandlerError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	h := HandlerFunc(func(*fetch.Request, any) (*fetch.Response, error) {
		return nil, boom
	})

	pr := bridgetest.NewRequest("GET", "/", hostHeader(), nil)
	w := bridgetest.NewRecorder()

	err := New(h, nil).HandleRequest(context.Background(), pr, w)
	if err != boom {
		t.Fatalf("want %v unmodified, have %v", boom, err)
	}
	if want, have := 0, len(w.Snapshot()); want != have {
		t.Errorf("sink calls: want %d, have %d (%v)", want, have, w.Snapshot())
	}
	if want, have := 0, pr.Listeners(); want != have {
		t.Errorf("Listeners: want %d, have %d", want, have)
	}
}

func TestHandleRequestNilResponse(t *testing.T) {
	t.Parallel()

	h := HandlerFunc(func(*fetch.Request, any) (*fetch.Response, error) {
		return nil, nil
	})

	w := bridgetest.NewRecorder()
	err := New(h, nil).HandleRequest(context.Background(), bridgetest.NewRequest("GET", "/", hostHeader(), nil), w)
	if !errors.Is(err, ErrNilResponse) {
		t.Fatalf("want ErrNilResponse, have %v", err)
	}
	if w.Ended() {
		t.Error("sink: want untouched")
	}
}

func TestHandleRequestInvalid(t *testing.T) {
	t.Parallel()

	called := false
	h := HandlerFunc(func(*fetch.Request, any) (*fetch.Response, error) {
		called = true
		return fetch.Text(fetch.StatusOK, "unreachable"), nil
	})
	resolved := false
	opts := &Options{
		ContextResolver: func(platform.Request, platform.ResponseWriter) any {
			resolved = true
			return nil
		},
	}

	w := bridgetest.NewRecorder()
	err := New(h, opts).HandleRequest(context.Background(), bridgetest.NewRequest("GET", "/%zz", hostHeader(), nil), w)

	var ire *InvalidRequestError
	if !errors.As(err, &ire) {
		t.Fatalf("want *InvalidRequestError, have %T: %v", err, err)
	}
	if called || resolved {
		t.Errorf("handler called %v, resolver called %v: want neither", called, resolved)
	}
	if want, have := 0, len(w.Snapshot()); want != have {
		t.Errorf("sink calls: want %d, have %d", want, have)
	}
}

func TestHandleRequestContextResolver(t *testing.T) {
	t.Parallel()

	type appContext struct{ clientIP string }

	pr := bridgetest.NewRequest("GET", "/", hostHeader(), nil)
	pr.SetRemoteAddr("198.51.100.7")
	w := bridgetest.NewRecorder()

	var calls []string
	opts := &Options{
		ContextResolver: func(r platform.Request, rw platform.ResponseWriter) any {
			calls = append(calls, "resolve")
			if r != platform.Request(pr) || rw != platform.ResponseWriter(w) {
				t.Error("resolver: want the platform request and sink")
			}
			return &appContext{clientIP: r.RemoteAddr()}
		},
	}
	h := HandlerFunc(func(r *fetch.Request, appCtx any) (*fetch.Response, error) {
		calls = append(calls, "handle")
		c, ok := appCtx.(*appContext)
		if !ok {
			return nil, errors.New("missing app context")
		}
		return fetch.Text(fetch.StatusOK, c.clientIP), nil
	})

	if err := New(h, opts).HandleRequest(context.Background(), pr, w); err != nil {
		t.Fatal(err)
	}
	if want, have := "resolve,handle", strings.Join(calls, ","); want != have {
		t.Errorf("calls: want %s, have %s", want, have)
	}
	if want, have := "198.51.100.7", w.Body.String(); want != have {
		t.Errorf("Body: want %q, have %q", want, have)
	}
}

func TestHandleRequestNilAppContext(t *testing.T) {
	t.Parallel()

	h := HandlerFunc(func(_ *fetch.Request, appCtx any) (*fetch.Response, error) {
		if appCtx != nil {
			return nil, errors.New("want nil app context")
		}
		return fetch.NewResponse(nil, fetch.StatusNoContent, nil), nil
	})
	w := bridgetest.NewRecorder()
	if err := New(h, nil).HandleRequest(context.Background(), bridgetest.NewRequest("GET", "/", hostHeader(), nil), w); err != nil {
		t.Fatal(err)
	}
	if want, have := fetch.StatusNoContent, w.Code; want != have {
		t.Errorf("Code: want %d, have %d", want, have)
	}
}

func TestHandleRequestClientClose(t *testing.T) {
	t.Parallel()

	pr := bridgetest.NewRequest("GET", "/", hostHeader(), nil)
	h := HandlerFunc(func(r *fetch.Request, _ any) (*fetch.Response, error) {
		pr.Close()
		pr.Close()
		select {
		case <-r.Signal.Done():
		case <-time.After(5 * time.Second):
			return nil, errors.New("signal not set")
		}
		if !errors.Is(r.Signal.Reason(), fetch.ErrClientClosed) {
			return nil, r.Signal.Reason()
		}
		if !errors.Is(context.Cause(r.Context()), fetch.ErrClientClosed) {
			return nil, errors.New("request context not canceled")
		}
		return fetch.NewResponse(nil, fetch.StatusClientClosedRequest, nil), nil
	})

	w := bridgetest.NewRecorder()
	if err := New(h, nil).HandleRequest(context.Background(), pr, w); err != nil {
		t.Fatal(err)
	}
	if want, have := fetch.StatusClientClosedRequest, w.Code; want != have {
		t.Errorf("Code: want %d, have %d", want, have)
	}
}

func TestHandleRequestStreamError(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	boom := errors.New("upstream went away")
	h := HandlerFunc(func(*fetch.Request, any) (*fetch.Response, error) {
		body := io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(boom))
		return fetch.NewResponse(body, fetch.StatusOK, nil), nil
	})

	w := bridgetest.NewRecorder()
	err := New(h, &Options{Logger: zap.New(core)}).HandleRequest(context.Background(), bridgetest.NewRequest("GET", "/", hostHeader(), nil), w)

	var se *StreamError
	if !errors.As(err, &se) {
		t.Fatalf("want *StreamError, have %T: %v", err, err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("want error wrapping %v, have %v", boom, err)
	}
	if want, have := 1, w.Ends; want != have {
		t.Errorf("Ends: want %d, have %d", want, have)
	}
	if want, have := 1, logs.FilterMessage("bridge_stream_failed").Len(); want != have {
		t.Errorf("bridge_stream_failed logs: want %d, have %d", want, have)
	}
}

func TestHandleRequestDefaultScheme(t *testing.T) {
	t.Parallel()

	var have string
	h := HandlerFunc(func(r *fetch.Request, _ any) (*fetch.Response, error) {
		have = r.URL.String()
		return fetch.NewResponse(nil, fetch.StatusNoContent, nil), nil
	})

	a := New(h, &Options{DefaultScheme: "http"})
	if err := a.HandleRequest(context.Background(), bridgetest.NewRequest("GET", "/x", hostHeader(), nil), bridgetest.NewRecorder()); err != nil {
		t.Fatal(err)
	}
	if want := "http://example.com/x"; want != have {
		t.Errorf("URL: want %q, have %q", want, have)
	}
}

func TestNewFromFactory(t *testing.T) {
	t.Parallel()

	var gotMode string
	f := func(mode string) (Handler, error) {
		gotMode = mode
		return HandlerFunc(func(*fetch.Request, any) (*fetch.Response, error) {
			return fetch.Text(fetch.StatusOK, mode), nil
		}), nil
	}

	a, err := NewFromFactory(f, "development", nil)
	if err != nil {
		t.Fatal(err)
	}
	if want, have := "development", gotMode; want != have {
		t.Errorf("mode: want %q, have %q", want, have)
	}

	w := bridgetest.NewRecorder()
	if err := a.HandleRequest(context.Background(), bridgetest.NewRequest("GET", "/", hostHeader(), nil), w); err != nil {
		t.Fatal(err)
	}
	if want, have := "development", w.Body.String(); want != have {
		t.Errorf("Body: want %q, have %q", want, have)
	}
}

func TestNewFromFactoryErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("unknown mode")
	if _, err := NewFromFactory(func(string) (Handler, error) { return nil, boom }, "x", nil); !errors.Is(err, boom) {
		t.Errorf("factory error: want wrapping %v, have %v", boom, err)
	}
	if _, err := NewFromFactory(func(string) (Handler, error) { return nil, nil }, "x", nil); err == nil {
		t.Error("nil handler: want error")
	}
}

func TestHandleRequestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	ok := HandlerFunc(func(*fetch.Request, any) (*fetch.Response, error) {
		return fetch.Text(fetch.StatusOK, "hello"), nil
	})
	a := New(ok, &Options{Metrics: m})
	for i := 0; i < 2; i++ {
		if err := a.HandleRequest(context.Background(), bridgetest.NewRequest("GET", "/", hostHeader(), nil), bridgetest.NewRecorder()); err != nil {
			t.Fatal(err)
		}
	}
	a.HandleRequest(context.Background(), bridgetest.NewRequest("GET", "/%zz", hostHeader(), nil), bridgetest.NewRecorder())

	if want, have := 2.0, counterValue(t, reg, "fetch_bridge_requests_total", map[string]string{"method": "GET", "code": "200"}); want != have {
		t.Errorf("requests_total: want %v, have %v", want, have)
	}
	if want, have := 10.0, counterValue(t, reg, "fetch_bridge_response_bytes_total", nil); want != have {
		t.Errorf("response_bytes_total: want %v, have %v", want, have)
	}
	if want, have := 1.0, counterValue(t, reg, "fetch_bridge_failures_total", map[string]string{"stage": StageTranslate}); want != have {
		t.Errorf("failures_total{translate}: want %v, have %v", want, have)
	}
}

func TestMethodLabel(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"GET":      "GET",
		"PATCH":    "PATCH",
		"PROPFIND": "OTHER",
		"patch":    "OTHER",
	} {
		if have := methodLabel(in); want != have {
			t.Errorf("%s: want %q, have %q", in, want, have)
		}
	}
}

func TestNilMetrics(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.observe("GET", 200, 1, time.Second)
	m.failed(StageStream)
	m.closed()
}

// counterValue returns the value of the counter name with the given labels,
// or 0 if it has not been observed.
func counterValue(t *testing.T, g prometheus.Gatherer, name string, labels map[string]string) float64 {
	t.Helper()

	mfs, err := g.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestHandleRequestReleasesParentContext(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	var signals []*fetch.Signal
	h := HandlerFunc(func(r *fetch.Request, _ any) (*fetch.Response, error) {
		signals = append(signals, r.Signal)
		return fetch.Text(fetch.StatusOK, "hello"), nil
	})
	a := New(h, nil)

	for i := 0; i < 100; i++ {
		if err := a.HandleRequest(parent, bridgetest.NewRequest("GET", "/", hostHeader(), nil), bridgetest.NewRecorder()); err != nil {
			t.Fatal(err)
		}
	}

	cancel()
	time.Sleep(50 * time.Millisecond)
	for i, s := range signals {
		if s.Aborted() {
			t.Fatalf("request %d: signal set by parent after the response was projected: %v", i, s.Reason())
		}
	}
}

func TestHandleRequestParentCancel(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := HandlerFunc(func(r *fetch.Request, _ any) (*fetch.Response, error) {
		cancel()
		select {
		case <-r.Signal.Done():
		case <-time.After(5 * time.Second):
			return nil, errors.New("signal not set")
		}
		if !errors.Is(r.Signal.Reason(), context.Canceled) {
			return nil, r.Signal.Reason()
		}
		return fetch.NewResponse(nil, fetch.StatusNoContent, nil), nil
	})

	if err := New(h, nil).HandleRequest(parent, bridgetest.NewRequest("GET", "/", hostHeader(), nil), bridgetest.NewRecorder()); err != nil {
		t.Fatal(err)
	}
}

func TestHandleRequestNegativeBufferSize(t *testing.T) {
	t.Parallel()

	h := HandlerFunc(func(*fetch.Request, any) (*fetch.Response, error) {
		return fetch.Text(fetch.StatusOK, "hello"), nil
	})

	w := bridgetest.NewRecorder()
	if err := New(h, &Options{BufferSize: -1}).HandleRequest(context.Background(), bridgetest.NewRequest("GET", "/", hostHeader(), nil), w); err != nil {
		t.Fatal(err)
	}
	if want, have := "hello", w.Body.String(); want != have {
		t.Errorf("Body: want %q, have %q", want, have)
	}
	if want, have := 1, w.Ends; want != have {
		t.Errorf("Ends: want %d, have %d", want, have)
	}
}
