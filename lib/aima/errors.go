package aima

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type ErrorKind int

const (
	ErrUnexpected ErrorKind = iota
	ErrLoginFailed
	ErrTokenNotFound
	ErrStatusRegionNotFound
	ErrTimeout
	ErrTransport
)

func (k ErrorKind) String() string {
	switch k {
	case ErrLoginFailed:
		return "login_failed"
	case ErrTokenNotFound:
		return "token_not_found"
	case ErrStatusRegionNotFound:
		return "status_region_not_found"
	case ErrTimeout:
		return "timeout"
	case ErrTransport:
		return "transport"
	}
	return "unexpected"
}

// Error is the only error type Check returns.
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// KindOf reports the kind of an error returned by Check,
// ErrUnexpected for anything foreign.
func KindOf(err error) ErrorKind {
	var aimaErr *Error
	if errors.As(err, &aimaErr) {
		return aimaErr.Kind
	}
	return ErrUnexpected
}

// classify maps a transport-level failure onto the taxonomy. The
// context deadline check runs first: a timed-out request arrives
// wrapped in a *url.Error here.
func classify(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrTimeout, Detail: err.Error()}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &Error{Kind: ErrTimeout, Detail: err.Error()}
		}
		return &Error{Kind: ErrTransport, Detail: err.Error()}
	}
	return &Error{Kind: ErrUnexpected, Detail: err.Error()}
}
