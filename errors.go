package kcoro

import (
	"errors"
	"fmt"

	"github.com/ygrebnov/errorc"
)

// Namespace prefixes every sentinel error message.
const Namespace = "kcoro"

// Sentinel errors. Each corresponds one-to-one with an EAGAIN/EPIPE/ETIME/
// ECANCELED/ENOTSUP/EINVAL style error code: ErrWouldBlock, ErrClosed,
// ErrTimeout, ErrCanceled, ErrUnsupported, ErrInvalidFormat.
var (
	ErrWouldBlock    = errors.New(Namespace + ": operation would block")
	ErrClosed        = errors.New(Namespace + ": channel closed")
	ErrTimeout       = errors.New(Namespace + ": operation timed out")
	ErrCanceled      = errors.New(Namespace + ": operation canceled")
	ErrUnsupported   = errors.New(Namespace + ": operation not supported by backend")
	ErrInvalidFormat = errors.New(Namespace + ": region metadata does not satisfy format policy")
)

// ChannelError carries correlation metadata (channel kind and operation
// name) alongside one of the sentinel errors above.
type ChannelError struct {
	Kind string // "rendezvous", "buffered", "conflated", "unbounded", or "zref" (descriptor format-policy failures)
	Op   string // "send", "recv", "close", ...
	err  error
}

func newChannelError(kind, op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &ChannelError{Kind: kind, Op: op, err: errorc.Wrap(cause, fmt.Sprintf("%s %s", kind, op))}
}

func (e *ChannelError) Error() string { return e.err.Error() }
func (e *ChannelError) Unwrap() error { return e.err }

func (e *ChannelError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "channel(kind=%s,op=%s): %+v", e.Kind, e.Op, e.err)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// FatalInvariant is the payload panicked with when an internal invariant is
// violated (corrupted ready list, trampoline return, stack pointer outside
// bounds, ...). These are programming errors, not recoverable conditions:
// the host is expected to let the process crash.
type FatalInvariant struct {
	What   string
	Detail string
}

func (f *FatalInvariant) Error() string {
	return fmt.Sprintf("%s: fatal invariant violated: %s: %s", Namespace, f.What, f.Detail)
}

func fatal(what string, detail string) {
	panic(&FatalInvariant{What: what, Detail: detail})
}
