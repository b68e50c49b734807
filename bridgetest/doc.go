// Copyright 2022 Fastly, Inc.

// Package bridgetest provides in-memory platform request and response
// implementations for testing code built on package bridge.
package bridgetest
