// Package rtspcore is the streaming engine core: the description cache and
// container/medium model, the per-session timeline and frame buffer, the
// RTP send loop, the TCP-interleaving multiplexer, and the RTSP
// connection/session state machines and method handlers.
package rtspcore

import (
	"errors"
	"fmt"

	"github.com/kinoglaz/kgd/pkg/base"
)

// ManagedError is a client-surfaceable protocol error: it carries the RTSP
// status code and message the connection should reply with on the
// request's CSeq, one struct per distinct failure the way pkg/liberrors
// gives each client-facing error its own type.
type ManagedError struct {
	Code    base.StatusCode
	Message string
}

func (e *ManagedError) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

func managed(code base.StatusCode, format string, args ...interface{}) *ManagedError {
	return &ManagedError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrSessionNotFound is returned when a Session header names an id this
// connection has no RTSP session for.
func ErrSessionNotFound(id uint32) *ManagedError {
	return managed(base.StatusSessionNotFound, "session %08x not found", id)
}

// ErrTrackNotFound is returned when a tk= component names a track the
// resource's description doesn't have.
func ErrTrackNotFound(track int) *ManagedError {
	return managed(base.StatusNotFound, "track %d not found", track)
}

// ErrFileNotFound is returned when a URL's file component can't be
// resolved under the configured base directory.
func ErrFileNotFound(name string) *ManagedError {
	return managed(base.StatusNotFound, "file %q not found", name)
}

// ErrUnsupportedTransport is returned when no alternative in a Transport
// header is acceptable.
func ErrUnsupportedTransport() *ManagedError {
	return managed(base.StatusUnsupportedTransport, "no supported transport alternative")
}

// ErrBadRequest wraps a malformed-request detail.
func ErrBadRequest(format string, args ...interface{}) *ManagedError {
	return managed(base.StatusBadRequest, format, args...)
}

// ErrPlaylistLoopCount is returned when a `.kls` playlist's `loop <N>`
// header names a count outside [1, 999] (spec §3/§6).
func ErrPlaylistLoopCount(value string, min, max int) *ManagedError {
	return managed(base.StatusBadRequest, "playlist loop count %q out of range [%d, %d]", value, min, max)
}

// ErrNotImplemented marks a method or request feature this server does not
// support (methods without a handler, such as RECORD and ANNOUNCE). A
// Require: header is answered with ErrOptionNotSupported instead.
func ErrNotImplemented(format string, args ...interface{}) *ManagedError {
	return managed(base.StatusNotImplemented, format, args...)
}

// ErrOptionNotSupported marks a Require: header this server doesn't
// understand (RFC 2326 §12.32).
func ErrOptionNotSupported() *ManagedError {
	return managed(base.StatusOptionNotSupported, "option not supported")
}

// ErrInternal wraps an unexpected internal failure into a generic 500. The
// cause is discarded: it is neither included in the reply nor logged by
// this package (spec §7:
// "any internal error yields 500 with a generic message").
func ErrInternal(cause error) *ManagedError {
	_ = cause
	return managed(base.StatusInternalServerError, "internal error")
}

// ChannelError is a transport-layer failure from a Channel read/write.
type ChannelError struct {
	WouldBlock bool
	Cause      error
}

func (e *ChannelError) Error() string {
	if e.WouldBlock {
		return "would block"
	}
	return fmt.Sprintf("channel error: %v", e.Cause)
}

func (e *ChannelError) Unwrap() error {
	return e.Cause
}

// ErrEof signals end-of-input from a Medium or FrameBuffer: a send loop
// observes it and stops cleanly rather than treating it as a failure.
var ErrEof = errors.New("rtspcore: end of input")

// ErrOutOfBounds signals a frame index past a medium's known, finalized
// length.
var ErrOutOfBounds = errors.New("rtspcore: frame index out of bounds")

// ErrInvalidState marks an invariant breach (double-start of a
// MultiSegment, use of a released iterator, etc). It always indicates a
// programming error in this package, never bad client input.
type ErrInvalidState struct {
	Detail string
}

func (e *ErrInvalidState) Error() string {
	return "invalid state: " + e.Detail
}
