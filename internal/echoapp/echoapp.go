// Copyright 2022 Fastly, Inc.

// Package echoapp is a small application handler used by the serve program
// to exercise the bridge end to end.
package echoapp

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fastly/fetch-bridge-go/bridge"
	"github.com/fastly/fetch-bridge-go/fetch"
	"github.com/fastly/fetch-bridge-go/platform"
)

// Context is the application context the serve program resolves for each
// request.
type Context struct {
	ClientIP string
	Query    url.Values
}

// Resolve is a bridge.ContextResolver producing a *Context.
func Resolve(r platform.Request, _ platform.ResponseWriter) any {
	return &Context{
		ClientIP: r.RemoteAddr(),
		Query:    r.Query(),
	}
}

type app struct {
	mode string
}

// New is a bridge.HandlerFactory. In "development" mode responses carry an
// X-Fetch-Bridge-Mode header.
func New(mode string) (bridge.Handler, error) {
	if mode == "" {
		return nil, errors.New("echoapp: empty mode")
	}
	return &app{mode: mode}, nil
}

func (a *app) ServeFetch(r *fetch.Request, appCtx any) (*fetch.Response, error) {
	var resp *fetch.Response
	switch r.URL.Path {
	case "/":
		resp = a.describe(r, appCtx)
	case "/echo":
		resp = echo(r)
	case "/stream":
		resp = stream(r, appCtx)
	case "/cookies":
		resp = cookies()
	case "/empty":
		resp = fetch.NewResponse(nil, fetch.StatusNoContent, nil)
	default:
		resp = fetch.Text(fetch.StatusNotFound, "not found\n")
	}

	if a.mode == "development" {
		resp.Header.Set("x-fetch-bridge-mode", a.mode)
	}
	return resp, nil
}

func (a *app) describe(r *fetch.Request, appCtx any) *fetch.Response {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", r.Method, r.URL)
	fmt.Fprintf(&b, "mode: %s\n", a.mode)
	if c, ok := appCtx.(*Context); ok {
		fmt.Fprintf(&b, "client: %s\n", c.ClientIP)
	}
	for _, key := range r.Header.Keys() {
		for _, v := range r.Header.Values(key) {
			fmt.Fprintf(&b, "%s: %s\n", key, v)
		}
	}
	return fetch.Text(fetch.StatusOK, b.String())
}

// echo streams the request body back unchanged.
func echo(r *fetch.Request) *fetch.Response {
	if !r.HasBody() {
		return fetch.Text(fetch.StatusMethodNotAllowed, "echo needs a request body\n")
	}
	h := fetch.NewHeader()
	if ct := r.Header.Get("content-type"); ct != "" {
		h.Set("content-type", ct)
	} else {
		h.Set("content-type", "application/octet-stream")
	}
	return fetch.NewResponse(r.Body, fetch.StatusOK, h)
}

// stream writes n chunks, d apart, stopping early if the client goes away.
// If you're using cURL, be sure to use `-N, --no-buffer`.
func stream(r *fetch.Request, appCtx any) *fetch.Response {
	var q url.Values
	if c, ok := appCtx.(*Context); ok {
		q = c.Query
	} else {
		q = r.URL.Query()
	}
	n := getQueryInt(q, "n", 5)
	d := getQueryDuration(q, "d", 250*time.Millisecond)

	pr, pw := io.Pipe()
	go func() {
		fmt.Fprintf(pw, "n=%d, d=%s\n", n, d)
		t := time.NewTicker(d)
		defer t.Stop()
		for i := 1; i <= n; i++ {
			select {
			case <-r.Signal.Done():
				pw.CloseWithError(r.Signal.Reason())
				return
			case <-t.C:
			}
			if _, err := io.WriteString(pw, " ʕ◔ϖ◔ʔ"); err != nil {
				return
			}
		}
		io.WriteString(pw, "\n")
		pw.Close()
	}()

	h := fetch.NewHeader()
	h.Set("content-type", "text/plain; charset=utf-8")
	return fetch.NewResponse(pr, fetch.StatusOK, h)
}

func cookies() *fetch.Response {
	resp := fetch.Text(fetch.StatusOK, "cookies set\n")
	resp.Header.Add("set-cookie", "a=1; Path=/")
	resp.Header.Add("set-cookie", "b=2; Path=/; HttpOnly")
	return resp
}

func getQueryInt(q url.Values, key string, def int) int {
	i, err := strconv.Atoi(q.Get(key))
	if err != nil || i < 0 {
		return def
	}
	return i
}

func getQueryDuration(q url.Values, key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(q.Get(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
