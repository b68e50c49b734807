// Copyright 2022 Fastly, Inc.

// Package bridge connects a serverless runtime's native request and
// response objects to an application handler written against the
// standardized types of package fetch.
//
// For each invocation the runtime hands over a platform.Request and a
// platform.ResponseWriter. Adapter.HandleRequest translates the request,
// optionally resolves an application context, calls the Handler, and
// projects the returned fetch.Response back onto the runtime:
//
//	a := bridge.New(bridge.HandlerFunc(func(r *fetch.Request, _ any) (*fetch.Response, error) {
//		return fetch.Text(fetch.StatusOK, "hello"), nil
//	}), nil)
//
//	err := a.HandleRequest(ctx, platformReq, platformResp)
//
// The adapter is a transparent conduit: it never turns an error into a
// response. Runtime integrations in the platform subpackages do that.
package bridge
