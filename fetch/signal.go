// Copyright 2022 Fastly, Inc.

package fetch

import (
	"context"
	"errors"
	"sync"
)

// ErrClientClosed is the abort reason recorded when the client connection
// behind a request closes.
var ErrClientClosed = errors.New("fetch: client closed connection")

// ErrAborted is the abort reason used when Abort is called with a nil reason.
var ErrAborted = errors.New("fetch: request aborted")

// Signal is a one-shot cancellation signal attached to a Request. It starts
// unset and transitions to aborted at most once; later aborts are no-ops.
//
// A Signal is backed by a context, so handlers can pass Signal.Context (or
// Request.Context) to anything that honours context cancellation.
type Signal struct {
	ctx    context.Context
	cancel context.CancelCauseFunc

	// stopParent unregisters the watch on the parent context.
	stopParent func() bool

	mu       sync.Mutex
	reason   error
	released bool
}

// NewSignal returns an unset Signal whose context carries parent's values.
// Canceling parent aborts the signal, with the parent's cause as reason,
// until Release is called.
func NewSignal(parent context.Context) *Signal {
	if parent == nil {
		parent = context.Background()
	}
	// The signal's context is not a child of parent, so a long-lived parent
	// keeps no reference to it once Release has run.
	ctx, cancel := context.WithCancelCause(context.WithoutCancel(parent))
	s := &Signal{ctx: ctx, cancel: cancel}
	if parent.Err() != nil {
		s.Abort(context.Cause(parent))
		return s
	}
	s.stopParent = context.AfterFunc(parent, func() {
		s.Abort(context.Cause(parent))
	})
	return s
}

// Abort sets the signal with the given reason. It returns true only for the
// call that performed the transition from unset to aborted. After Release,
// Abort has no effect.
func (s *Signal) Abort(reason error) bool {
	if reason == nil {
		reason = ErrAborted
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reason != nil || s.released {
		return false
	}
	s.reason = reason
	s.cancel(reason)
	return true
}

// Release stops the signal from following its parent context and ignores
// any later Abort. It does not set the signal. Release is called once the
// request it belongs to has been fully served; it is safe to call more than
// once.
func (s *Signal) Release() {
	s.mu.Lock()
	s.released = true
	s.mu.Unlock()

	if s.stopParent != nil {
		s.stopParent()
	}
}

// Aborted reports whether the signal has been set.
func (s *Signal) Aborted() bool {
	return s.ctx.Err() != nil
}

// Done returns a channel that is closed once the signal is set.
func (s *Signal) Done() <-chan struct{} {
	return s.ctx.Done()
}

// Reason returns the abort reason, or nil if the signal is still unset.
func (s *Signal) Reason() error {
	if s.ctx.Err() == nil {
		return nil
	}
	return context.Cause(s.ctx)
}

// Context returns a context that is canceled when the signal is set.
func (s *Signal) Context() context.Context {
	return s.ctx
}

// OnAbort arranges for f to run in its own goroutine once the signal is set.
// Calling stop prevents f from running if it has not started yet; stop
// reports whether it did so.
func (s *Signal) OnAbort(f func()) (stop func() bool) {
	return context.AfterFunc(s.ctx, f)
}
