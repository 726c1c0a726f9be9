//go:build integration

package webrtc_test

import (
	"context"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/connectsphere/internal/logger"
	"github.com/rudransh-shrivastava/connectsphere/internal/session"
	"github.com/rudransh-shrivastava/connectsphere/internal/signaling"
	rtc "github.com/rudransh-shrivastava/connectsphere/internal/transport/webrtc"
)

// network is a signaling server plus the sessions registered with it.
type network struct {
	server   *signaling.Server
	sessions []*session.Session
	ctx      context.Context
	cancel   context.CancelFunc
	t        *testing.T
}

func newNetwork(t *testing.T) *network {
	t.Helper()

	srv, err := signaling.NewServer(signaling.Config{
		Addr:   "127.0.0.1:0",
		Logger: logger.Discard(),
	})
	if err != nil {
		t.Fatalf("Failed to create signaling server: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	go func() {
		_ = srv.Start(ctx)
	}()

	n := &network{server: srv, ctx: ctx, cancel: cancel, t: t}
	t.Cleanup(n.close)
	return n
}

func (n *network) newSession() (*session.Session, string) {
	n.t.Helper()

	log := logger.Discard()
	client := signaling.NewClient("ws://"+n.server.Addr()+"/ws", log)
	tr := rtc.New(rtc.Options{Signaler: client, Logger: log})

	cfg := session.DefaultConfig()
	cfg.MaxRetries = 2
	cfg.BaseDelay = 200 * time.Millisecond
	cfg.OpenTimeout = 20 * time.Second
	cfg.ConfirmTimeout = 10 * time.Second
	cfg.Logger = log

	s, err := session.New(tr, cfg)
	if err != nil {
		n.t.Fatalf("Failed to create session: %v", err)
	}
	id, err := s.Open(n.ctx)
	if err != nil {
		n.t.Fatalf("Failed to open session: %v", err)
	}
	go func() {
		_ = s.Run(n.ctx)
		_ = tr.Close()
	}()

	n.sessions = append(n.sessions, s)
	return s, id
}

func (n *network) close() {
	n.cancel()
	_ = n.server.Shutdown()
}

func waitFor[E session.Event](t *testing.T, s *session.Session, match func(E) bool) E {
	t.Helper()
	deadline := time.After(40 * time.Second)
	for {
		select {
		case ev := <-s.Events():
			if e, ok := ev.(E); ok && match(e) {
				return e
			}
		case <-deadline:
			var zero E
			t.Fatalf("Timed out waiting for %T", zero)
			return zero
		}
	}
}

func TestSessionsOverWebRTC(t *testing.T) {
	n := newNetwork(t)
	alice, aliceID := n.newSession()
	bob, bobID := n.newSession()

	if err := alice.Connect(n.ctx, bobID); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	active := func(e session.StateChanged) bool { return e.State == session.Active }
	waitFor(t, alice, active)
	if got := waitFor(t, bob, active); got.Remote != aliceID {
		t.Errorf("Expected bob to see %s, got %s", aliceID, got.Remote)
	}

	seq, err := alice.Send(n.ctx, "Thinking of you")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	got := waitFor(t, bob, func(e session.MessageReceived) bool { return true })
	if got.Text != "Thinking of you" {
		t.Errorf("Expected 'Thinking of you', got '%s'", got.Text)
	}

	if err := bob.Acknowledge(n.ctx); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}
	confirmed := waitFor(t, alice, func(e session.DeliveryConfirmed) bool { return true })
	if confirmed.Seq != seq {
		t.Errorf("Expected confirmation of %d, got %d", seq, confirmed.Seq)
	}
}

func TestConnectToUnknownPeerFails(t *testing.T) {
	n := newNetwork(t)
	alice, _ := n.newSession()

	if err := alice.Connect(n.ctx, "nobody"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	e := waitFor(t, alice, func(e session.ErrorEvent) bool { return e.Kind == session.KindMaxRetriesExceeded })
	if e.Detail == "" {
		t.Error("Expected a detail on the error")
	}
}
