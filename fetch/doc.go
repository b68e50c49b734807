// Copyright 2022 Fastly, Inc.

// Package fetch provides standardized, platform-independent HTTP message
// types modeled on the Request, Response and Headers objects of the Fetch
// standard.
//
// Values of these types are what an application handler sees. They are
// produced from, and projected back onto, a host runtime's native request
// and response objects by package bridge.
package fetch
