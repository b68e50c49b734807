// Copyright 2022 Fastly, Inc.

package fetch

import "net/http"

// HTTP status codes, as registered with IANA. They mirror the constants of
// package net/http so handlers need not import it.
const (
	StatusContinue           = http.StatusContinue
	StatusSwitchingProtocols = http.StatusSwitchingProtocols
	StatusEarlyHints         = http.StatusEarlyHints

	StatusOK             = http.StatusOK
	StatusCreated        = http.StatusCreated
	StatusAccepted       = http.StatusAccepted
	StatusNoContent      = http.StatusNoContent
	StatusResetContent   = http.StatusResetContent
	StatusPartialContent = http.StatusPartialContent

	StatusMovedPermanently  = http.StatusMovedPermanently
	StatusFound             = http.StatusFound
	StatusSeeOther          = http.StatusSeeOther
	StatusNotModified       = http.StatusNotModified
	StatusTemporaryRedirect = http.StatusTemporaryRedirect
	StatusPermanentRedirect = http.StatusPermanentRedirect

	StatusBadRequest          = http.StatusBadRequest
	StatusUnauthorized        = http.StatusUnauthorized
	StatusForbidden           = http.StatusForbidden
	StatusNotFound            = http.StatusNotFound
	StatusMethodNotAllowed    = http.StatusMethodNotAllowed
	StatusRequestTimeout      = http.StatusRequestTimeout
	StatusConflict            = http.StatusConflict
	StatusGone                = http.StatusGone
	StatusPayloadTooLarge     = http.StatusRequestEntityTooLarge
	StatusTeapot              = http.StatusTeapot
	StatusUnprocessableEntity = http.StatusUnprocessableEntity
	StatusTooManyRequests     = http.StatusTooManyRequests
	StatusClientClosedRequest = 499

	StatusInternalServerError = http.StatusInternalServerError
	StatusNotImplemented      = http.StatusNotImplemented
	StatusBadGateway          = http.StatusBadGateway
	StatusServiceUnavailable  = http.StatusServiceUnavailable
	StatusGatewayTimeout      = http.StatusGatewayTimeout
)

// StatusText returns a text for the HTTP status code. It returns the empty
// string if the code is unknown.
func StatusText(code int) string {
	if code == StatusClientClosedRequest {
		return "Client Closed Request"
	}
	return http.StatusText(code)
}
