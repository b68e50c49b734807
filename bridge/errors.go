// Copyright 2022 Fastly, Inc.

package bridge

import (
	"errors"
	"fmt"

	"github.com/fastly/fetch-bridge-go/fetch"
)

// ErrNilResponse is returned by HandleRequest when the handler returns
// neither a response nor an error.
var ErrNilResponse = errors.New("bridge: handler returned nil response")

// InvalidRequestError reports a platform request that cannot be translated
// into a standardized request, e.g. because its target or headers are
// malformed. It is fatal to the current request.
//
// Use errors.As to extract it:
//
//	if err := a.HandleRequest(ctx, req, w); err != nil {
//		var ire *bridge.InvalidRequestError
//		if errors.As(err, &ire) {
//			// respond 400
//		}
//	}
type InvalidRequestError struct {
	// Field names the offending component: "method", "host", "protocol",
	// "url" or "header".
	Field string

	// Value is the offending raw value, or header key for Field "header".
	Value string

	// Err is the underlying cause, if any.
	Err error
}

func (e *InvalidRequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bridge: invalid request %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("bridge: invalid request %s %q", e.Field, e.Value)
}

func (e *InvalidRequestError) Unwrap() error {
	return e.Err
}

// StreamError reports a failure while transferring the response to the
// platform sink. The sink has been ended regardless.
type StreamError struct {
	// Op is the step that failed: "write head", "read body", "write body"
	// or "end".
	Op string

	// Written is the number of body bytes delivered before the failure.
	Written int64

	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("bridge: stream response: %s: %v", e.Op, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// ErrorStatus maps an error returned by HandleRequest to the status code an
// outer layer should respond with when the response head has not been sent.
func ErrorStatus(err error) int {
	var ire *InvalidRequestError
	if errors.As(err, &ire) {
		return fetch.StatusBadRequest
	}
	return fetch.StatusInternalServerError
}

func invalid(field, value string, err error) error {
	return &InvalidRequestError{Field: field, Value: value, Err: err}
}
