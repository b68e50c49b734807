// Copyright 2022 Fastly, Inc.

package fetch

import (
	"io"
	"strings"
)

// Response is a standardized HTTP response produced by an application
// handler, shaped after the Response object of the Fetch standard.
type Response struct {
	// Status is the numeric status code, e.g. 200. It must lie in the range
	// 200 to 599, like the status of a Fetch Response.
	Status int

	// StatusText is the reason phrase. When empty, the standard phrase for
	// Status is used.
	StatusText string

	// Header contains the response header fields. Repeated keys are sent as
	// independent header lines.
	Header Header

	// Body is the response body, or nil when the response has none. It is
	// streamed to the client and closed once drained.
	Body io.ReadCloser
}

// NewResponse returns a response with the given body, status and headers.
// A nil header is replaced with an empty one.
func NewResponse(body io.Reader, status int, header Header) *Response {
	if header == nil {
		header = NewHeader()
	}
	return &Response{
		Status: status,
		Header: header,
		Body:   toReadCloser(body),
	}
}

// Text returns a response carrying s as a text/plain body.
func Text(status int, s string) *Response {
	h := NewHeader()
	h.Set("content-type", "text/plain; charset=utf-8")
	return NewResponse(strings.NewReader(s), status, h)
}

// Redirect returns a bodiless response redirecting to location. Status
// should be one of the 3xx redirect codes.
func Redirect(location string, status int) *Response {
	h := NewHeader()
	h.Set("location", location)
	return NewResponse(nil, status, h)
}

// StatusTextOrDefault returns StatusText, falling back to the standard
// reason phrase for Status.
func (r *Response) StatusTextOrDefault() string {
	if r.StatusText != "" {
		return r.StatusText
	}
	return StatusText(r.Status)
}

// HasBody reports whether the response carries a body.
func (r *Response) HasBody() bool {
	return r.Body != nil
}
