package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/connectsphere/internal/transport"
)

func nextEvent(t *testing.T, tr *Transport) transport.Event {
	t.Helper()
	select {
	case ev := <-tr.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for event")
		return transport.Event{}
	}
}

func openPair(t *testing.T) (*Hub, *Transport, *Transport) {
	t.Helper()
	hub := NewHub()
	a := hub.NewTransport("a")
	b := hub.NewTransport("b")
	for _, tr := range []*Transport{a, b} {
		if _, err := tr.Open(context.Background()); err != nil {
			t.Fatalf("Open failed: %v", err)
		}
	}
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return hub, a, b
}

func TestConnectDeliversOpenAndIncoming(t *testing.T) {
	_, a, b := openPair(t)

	conn, err := a.Connect(context.Background(), "b")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	ev := nextEvent(t, a)
	if ev.Kind != transport.EventOpen || ev.Conn != conn {
		t.Fatalf("Expected open for our conn, got %s", ev.Kind)
	}

	in := nextEvent(t, b)
	if in.Kind != transport.EventIncoming || in.Conn.PeerID() != "a" {
		t.Fatalf("Expected incoming from a, got %s from %s", in.Kind, in.Conn.PeerID())
	}

	if err := conn.Send([]byte("hi")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	data := nextEvent(t, b)
	if data.Kind != transport.EventData || string(data.Data) != "hi" {
		t.Errorf("Expected data 'hi', got %s %q", data.Kind, data.Data)
	}
}

func TestConnectUnknownPeer(t *testing.T) {
	_, a, _ := openPair(t)

	conn, err := a.Connect(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	ev := nextEvent(t, a)
	if ev.Kind != transport.EventError || !errors.Is(ev.Err, transport.ErrPeerUnavailable) {
		t.Fatalf("Expected peer unavailable, got %s %v", ev.Kind, ev.Err)
	}
	if err := conn.Send([]byte("x")); !errors.Is(err, transport.ErrChannelNotOpen) {
		t.Errorf("Expected ErrChannelNotOpen, got %v", err)
	}
}

func TestBlackholeNeverAnswers(t *testing.T) {
	hub, a, _ := openPair(t)
	hub.Blackhole("void")

	if _, err := a.Connect(context.Background(), "void"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case ev := <-a.Events():
		t.Fatalf("Expected no event, got %s", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseNotifiesRemoteOnly(t *testing.T) {
	_, a, b := openPair(t)

	conn, _ := a.Connect(context.Background(), "b")
	nextEvent(t, a)
	nextEvent(t, b)

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ev := nextEvent(t, b)
	if ev.Kind != transport.EventClose {
		t.Errorf("Expected close on remote, got %s", ev.Kind)
	}

	select {
	case ev := <-a.Events():
		t.Errorf("Expected no local event, got %s", ev.Kind)
	default:
	}

	if err := conn.Send([]byte("late")); !errors.Is(err, transport.ErrChannelNotOpen) {
		t.Errorf("Expected ErrChannelNotOpen after close, got %v", err)
	}
}

func TestTransportCloseClosesConnections(t *testing.T) {
	_, a, b := openPair(t)

	if _, err := a.Connect(context.Background(), "b"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	nextEvent(t, a)
	nextEvent(t, b)

	_ = b.Close()

	ev := nextEvent(t, a)
	if ev.Kind != transport.EventClose {
		t.Errorf("Expected close after remote shutdown, got %s", ev.Kind)
	}
}

func TestConnectBeforeOpen(t *testing.T) {
	hub := NewHub()
	tr := hub.NewTransport("")
	if tr.ID() == "" {
		t.Fatal("Expected generated id")
	}
	if _, err := tr.Connect(context.Background(), "x"); !errors.Is(err, transport.ErrTransportUnavailable) {
		t.Errorf("Expected ErrTransportUnavailable, got %v", err)
	}
}
