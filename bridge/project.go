// Copyright 2022 Fastly, Inc.

package bridge

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fastly/fetch-bridge-go/fetch"
	"github.com/fastly/fetch-bridge-go/platform"
)

// DefaultBufferSize is the size of the buffer used to copy response bodies
// to the platform sink.
const DefaultBufferSize = 32 * 1024

// Range of status codes a response may carry. Informational 1xx codes are
// not final responses and cannot be projected.
const (
	MinStatus = 200
	MaxStatus = 599
)

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, DefaultBufferSize)
		return &b
	},
}

// Projector writes standardized responses onto platform response sinks.
type Projector struct {
	// BufferSize bounds the amount of body data held in memory at once.
	// If zero or negative, DefaultBufferSize is used.
	BufferSize int
}

// Project writes resp onto w: the status line and full header map in a
// single WriteHead call, then the body, if any, streamed chunk by chunk.
// w is ended exactly once on every path, and resp.Body is closed.
//
// It returns the number of body bytes written. Transfer failures are
// reported as *StreamError.
func (p Projector) Project(w platform.ResponseWriter, resp *fetch.Response) (written int64, err error) {
	ended := false
	defer func() {
		if resp.Body != nil {
			resp.Body.Close()
		}
		if ended {
			return
		}
		if endErr := w.End(); endErr != nil && err == nil {
			err = &StreamError{Op: "end", Written: written, Err: endErr}
		}
	}()

	if resp.Status < MinStatus || resp.Status > MaxStatus {
		return 0, &StreamError{Op: "write head", Err: fmt.Errorf("status code %d out of range [%d, %d]", resp.Status, MinStatus, MaxStatus)}
	}
	if err := w.WriteHead(resp.Status, resp.StatusTextOrDefault(), platformHeader(resp.Header)); err != nil {
		return 0, &StreamError{Op: "write head", Err: err}
	}

	if resp.Body == nil {
		ended = true
		if err := w.End(); err != nil {
			return 0, &StreamError{Op: "end", Err: err}
		}
		return 0, nil
	}

	buf, release := p.buffer()
	defer release()

	return copyBody(w, resp.Body, buf)
}

func (p Projector) buffer() ([]byte, func()) {
	if p.BufferSize <= 0 || p.BufferSize == DefaultBufferSize {
		bp := bufPool.Get().(*[]byte)
		return *bp, func() { bufPool.Put(bp) }
	}
	return make([]byte, p.BufferSize), func() {}
}

// copyBody copies src to w one buffer at a time, so that a slow sink holds
// back reads from src rather than letting data pile up in memory.
func copyBody(w io.Writer, src io.Reader, buf []byte) (written int64, err error) {
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := w.Write(buf[:nr])
			if nw < 0 || nr < nw {
				nw = 0
				if werr == nil {
					werr = errors.New("invalid write result")
				}
			}
			written += int64(nw)
			if werr == nil && nr != nw {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return written, &StreamError{Op: "write body", Written: written, Err: werr}
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, &StreamError{Op: "read body", Written: written, Err: rerr}
		}
	}
}

func platformHeader(h fetch.Header) platform.Header {
	ph := make(platform.Header, len(h))
	for _, key := range h.Keys() {
		ph[key] = append([]string(nil), h.Values(key)...)
	}
	return ph
}
