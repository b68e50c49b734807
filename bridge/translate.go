// Copyright 2022 Fastly, Inc.

package bridge

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/fastly/fetch-bridge-go/fetch"
	"github.com/fastly/fetch-bridge-go/platform"
)

// DefaultScheme is the scheme assumed when a request carries no
// X-Forwarded-Proto header. Platforms that terminate TLS upstream deliver
// plain requests that the client sent over HTTPS.
const DefaultScheme = "https"

const forwardedProtoHeader = "x-forwarded-proto"

// Translator builds standardized requests from platform requests.
type Translator struct {
	// DefaultScheme is used when the request has no X-Forwarded-Proto
	// header. If empty, the package-level DefaultScheme is used.
	DefaultScheme string
}

// Translate converts pr into a standardized request whose context carries
// ctx's values. Canceling ctx aborts the request's Signal.
//
// The returned request's Signal is wired to the platform close event before
// Translate returns. Calling detach stops listening for that event and for
// ctx, leaving the Signal as it is; the caller should do so once the response
// has been fully projected.
//
// Malformed requests fail with an *InvalidRequestError. Translate never
// writes a response.
func (t Translator) Translate(ctx context.Context, pr platform.Request) (req *fetch.Request, detach func(), err error) {
	method, err := translateMethod(pr.Method())
	if err != nil {
		return nil, nil, err
	}

	header, err := translateHeader(pr.Header())
	if err != nil {
		return nil, nil, err
	}

	u, err := t.resolveURL(header, pr.URL())
	if err != nil {
		return nil, nil, err
	}

	req = &fetch.Request{
		Method:     method,
		URL:        u,
		Header:     header,
		RemoteAddr: pr.RemoteAddr(),
		Signal:     fetch.NewSignal(ctx),
	}

	// GET and HEAD requests have no body at all, not an empty one.
	if fetch.MethodAllowsBody(method) {
		req.Body = pr.Body()
	}

	signal := req.Signal
	stop := pr.OnClose(func() {
		signal.Abort(fetch.ErrClientClosed)
	})
	detach = func() {
		stop()
		signal.Release()
	}

	return req, detach, nil
}

func (t Translator) scheme() string {
	if t.DefaultScheme != "" {
		return t.DefaultScheme
	}
	return DefaultScheme
}

// standardMethods are normalized to upper case the way the Fetch standard
// normalizes them; any other method is passed through as received.
var standardMethods = []string{
	http.MethodDelete,
	http.MethodGet,
	http.MethodHead,
	http.MethodOptions,
	http.MethodPost,
	http.MethodPut,
}

func translateMethod(method string) (string, error) {
	if method == "" {
		return "", invalid("method", method, nil)
	}
	// A method is a token, the same grammar as a header field name.
	if !httpguts.ValidHeaderFieldName(method) {
		return "", invalid("method", method, nil)
	}
	for _, m := range standardMethods {
		if strings.EqualFold(method, m) {
			return m, nil
		}
	}
	return method, nil
}

func translateHeader(ph platform.Header) (fetch.Header, error) {
	keys := ph.Keys()
	sort.Strings(keys)

	header := fetch.NewHeader()
	for _, key := range keys {
		if !httpguts.ValidHeaderFieldName(key) {
			return nil, invalid("header", key, nil)
		}
		for _, v := range ph[key] {
			if !httpguts.ValidHeaderFieldValue(v) {
				return nil, invalid("header", key, nil)
			}
			header.Add(key, v)
		}
	}
	return header, nil
}

func (t Translator) resolveURL(header fetch.Header, target string) (*url.URL, error) {
	scheme := t.scheme()
	if proto := header.Get(forwardedProtoHeader); proto != "" {
		// Proxy chains append their own value; the first one is the
		// client-facing protocol.
		if i := strings.IndexByte(proto, ','); i >= 0 {
			proto = proto[:i]
		}
		scheme = strings.ToLower(strings.TrimSpace(proto))
		if scheme != "http" && scheme != "https" {
			return nil, invalid("protocol", proto, nil)
		}
	}

	host := header.Get("host")
	if host == "" || !httpguts.ValidHostHeader(host) {
		return nil, invalid("host", host, nil)
	}

	if target == "" {
		target = "/"
	}
	ref, err := url.ParseRequestURI(target)
	if err != nil {
		return nil, invalid("url", target, err)
	}
	if ref.IsAbs() || ref.Host != "" {
		// Absolute-form target: scheme and host come from the headers only.
		ref = &url.URL{Path: ref.Path, RawPath: ref.RawPath, RawQuery: ref.RawQuery}
	}

	base := &url.URL{Scheme: scheme, Host: host, Path: "/"}
	u := base.ResolveReference(ref)
	if u.Host == "" {
		return nil, invalid("url", target, nil)
	}
	return u, nil
}
