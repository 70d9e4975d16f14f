package vision

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies an analysis failure.
type Kind int

const (
	// KindTransport covers network, auth, throttling and server errors. The caller may retry.
	KindTransport Kind = iota + 1
	// KindTimeout means the call deadline was exceeded.
	KindTimeout
	// KindInvalidImage is terminal; the same bytes will never succeed.
	KindInvalidImage
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindInvalidImage:
		return "invalid_image"
	default:
		return "unknown"
	}
}

var (
	ErrTransport    = errors.New("vision service unavailable")
	ErrTimeout      = errors.New("vision service timed out")
	ErrInvalidImage = errors.New("invalid image")
)

// Error is the only error type returned by Client implementations.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is match the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrInvalidImage:
		return e.Kind == KindInvalidImage
	}
	return false
}

// Retryable reports whether the caller may resubmit the same request.
func (e *Error) Retryable() bool {
	return e != nil && (e.Kind == KindTransport || e.Kind == KindTimeout)
}

// NewError wraps err with a kind. A nil err still yields an error.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the failure kind of err, or 0 when err is not a *Error.
func KindOf(err error) Kind {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Kind
	}
	return 0
}

// ClassifyTransportError maps a failed round trip to KindTimeout when a
// deadline was hit and KindTransport otherwise.
func ClassifyTransportError(op string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTimeout, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(KindTimeout, op, err)
	}
	return NewError(KindTransport, op, err)
}
