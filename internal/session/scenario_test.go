package session

import (
	"context"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/connectsphere/internal/transport/memory"
)

func TestScenarioThinkingOfYou(t *testing.T) {
	hub := memory.NewHub()
	trA := hub.NewTransport("alice")
	trB := hub.NewTransport("bob")
	t.Cleanup(func() {
		_ = trA.Close()
		_ = trB.Close()
	})

	a := startSession(t, trA, testConfig())
	b := startSession(t, trB, testConfig())

	if err := a.Connect(context.Background(), "bob"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	waitState(t, a, Active)
	if sc := waitState(t, b, Active); sc.Remote != "alice" {
		t.Fatalf("expected bob to be talking to alice, got %q", sc.Remote)
	}

	seq, err := a.Send(context.Background(), "Thinking of you")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	got := waitEvent[MessageReceived](t, b)
	if got.Text != "Thinking of you" || got.Remote != "alice" {
		t.Fatalf("unexpected message %+v", got)
	}
	if snap := snapshot(t, a); snap.PendingSeq != seq {
		t.Errorf("expected pending %d before ack, got %d", seq, snap.PendingSeq)
	}

	if err := b.Acknowledge(context.Background()); err != nil {
		t.Fatalf("Acknowledge failed: %v", err)
	}

	confirmed := waitEvent[DeliveryConfirmed](t, a)
	if confirmed.Seq != seq {
		t.Errorf("expected confirmation for %d, got %d", seq, confirmed.Seq)
	}
	if snap := snapshot(t, a); snap.PendingSeq != 0 {
		t.Errorf("expected no pending message, got %d", snap.PendingSeq)
	}

	if err := a.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	waitState(t, a, Idle)
	waitState(t, b, Closed)
	waitState(t, b, Idle)
}

func TestScenarioPeerNeverResponds(t *testing.T) {
	hub := memory.NewHub()
	hub.Blackhole("silent")
	tr := hub.NewTransport("alice")
	t.Cleanup(func() { _ = tr.Close() })

	cfg := testConfig()
	cfg.MaxRetries = 2
	cfg.OpenTimeout = 20 * time.Millisecond
	cfg.BaseDelay = 5 * time.Millisecond
	s := startSession(t, tr, cfg)

	if err := s.Connect(context.Background(), "silent"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	failed := waitState(t, s, Failed)
	if failed.RetryCount != cfg.MaxRetries {
		t.Errorf("expected %d retries, got %d", cfg.MaxRetries, failed.RetryCount)
	}

	ev := waitEvent[ErrorEvent](t, s)
	if ev.Kind != KindMaxRetriesExceeded {
		t.Errorf("expected MaxRetriesExceeded, got %s", ev.Kind)
	}

	if snap := snapshot(t, s); snap.State != Failed || snap.Remote != "" {
		t.Errorf("expected failed session with no target, got %+v", snap)
	}
}

func TestScenarioUnknownPeer(t *testing.T) {
	hub := memory.NewHub()
	tr := hub.NewTransport("alice")
	t.Cleanup(func() { _ = tr.Close() })

	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.BaseDelay = 5 * time.Millisecond
	s := startSession(t, tr, cfg)

	if err := s.Connect(context.Background(), "nobody"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	waitState(t, s, Failed)
	if ev := waitEvent[ErrorEvent](t, s); ev.Kind != KindMaxRetriesExceeded {
		t.Errorf("expected MaxRetriesExceeded, got %s", ev.Kind)
	}
}
