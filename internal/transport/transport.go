package transport

import (
	"context"
	"errors"
	"io"
)

var (
	ErrChannelNotOpen       = errors.New("transport: channel not open")
	ErrPeerUnavailable      = errors.New("transport: peer unavailable")
	ErrTransportUnavailable = errors.New("transport: rendezvous unreachable")
)

// Transport connects this peer to remote peers by opaque identifier.
// Every outcome is reported on Events; no method blocks on the remote side.
type Transport interface {
	// Open registers with the rendezvous and returns the identifier
	// other peers use to reach us.
	Open(ctx context.Context) (string, error)
	// Connect starts an outbound attempt. The returned Conn is not usable
	// until an EventOpen naming it arrives.
	Connect(ctx context.Context, peerID string) (Conn, error)
	Events() <-chan Event
	Close() error
}

type Conn interface {
	PeerID() string
	Send(data []byte) error
	Close() error
}

type EventKind int

const (
	// EventIncoming reports a channel opened by a remote peer. It is
	// already open and needs no separate EventOpen.
	EventIncoming EventKind = iota
	EventOpen
	EventData
	EventClose
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventIncoming:
		return "incoming"
	case EventOpen:
		return "open"
	case EventData:
		return "data"
	case EventClose:
		return "close"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind EventKind
	Conn Conn
	Data []byte
	Err  error
}

// Signaler carries session descriptions between peers through a
// rendezvous service.
type Signaler interface {
	Register(ctx context.Context) (string, error)
	SendSignal(ctx context.Context, peerID string, signal []byte) error
	RecvSignal() <-chan Signal
	io.Closer
}

// Signal is a payload relayed from PeerID. A non-nil Err reports that a
// signal we sent to PeerID could not be delivered.
type Signal struct {
	PeerID  string
	Payload []byte
	Err     error
}
