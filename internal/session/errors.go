package session

import (
	"errors"
	"fmt"

	"github.com/rudransh-shrivastava/connectsphere/internal/transport"
)

type Kind int

const (
	KindTransportUnavailable Kind = iota + 1
	KindChannelNotOpen
	KindAlreadyConnecting
	KindPeerUnavailable
	KindConfirmationTimeout
	KindMaxRetriesExceeded
	KindMessageTooLong
	KindNetworkOffline
	KindNotActive
)

func (k Kind) String() string {
	switch k {
	case KindTransportUnavailable:
		return "TransportUnavailable"
	case KindChannelNotOpen:
		return "ChannelNotOpen"
	case KindAlreadyConnecting:
		return "AlreadyConnecting"
	case KindPeerUnavailable:
		return "PeerUnavailable"
	case KindConfirmationTimeout:
		return "ConfirmationTimeout"
	case KindMaxRetriesExceeded:
		return "MaxRetriesExceeded"
	case KindMessageTooLong:
		return "MessageTooLong"
	case KindNetworkOffline:
		return "NetworkOffline"
	case KindNotActive:
		return "NotActive"
	default:
		return "Unknown"
	}
}

// Error is every failure the session reports. errors.Is matches on Kind,
// so callers compare against the Err* values below.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrTransportUnavailable = &Error{Kind: KindTransportUnavailable}
	ErrChannelNotOpen       = &Error{Kind: KindChannelNotOpen}
	ErrAlreadyConnecting    = &Error{Kind: KindAlreadyConnecting}
	ErrPeerUnavailable      = &Error{Kind: KindPeerUnavailable}
	ErrConfirmationTimeout  = &Error{Kind: KindConfirmationTimeout}
	ErrMaxRetriesExceeded   = &Error{Kind: KindMaxRetriesExceeded}
	ErrMessageTooLong       = &Error{Kind: KindMessageTooLong}
	ErrNetworkOffline       = &Error{Kind: KindNetworkOffline}
	ErrNotActive            = &Error{Kind: KindNotActive}

	// ErrStopped is returned by calls made after Run has returned.
	ErrStopped = errors.New("session: stopped")
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// transportError classifies a transport failure.
func transportError(err error, detail string) *Error {
	kind := KindTransportUnavailable
	switch {
	case errors.Is(err, transport.ErrPeerUnavailable):
		kind = KindPeerUnavailable
	case errors.Is(err, transport.ErrChannelNotOpen):
		kind = KindChannelNotOpen
	}
	return &Error{Kind: kind, Detail: detail, Err: err}
}
