package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/connectsphere/internal/logger"
	"github.com/rudransh-shrivastava/connectsphere/internal/protocol"
	"github.com/rudransh-shrivastava/connectsphere/internal/transport"
)

const waitTimeout = 2 * time.Second

// fakeTransport lets a test decide exactly which transport events happen.
type fakeTransport struct {
	id     string
	events chan transport.Event

	mu    sync.Mutex
	conns []*fakeConn
}

func newFakeTransport(id string) *fakeTransport {
	return &fakeTransport{id: id, events: make(chan transport.Event, 64)}
}

func (f *fakeTransport) Open(ctx context.Context) (string, error) {
	return f.id, nil
}

func (f *fakeTransport) Connect(ctx context.Context, peerID string) (transport.Conn, error) {
	c := &fakeConn{peerID: peerID}
	f.mu.Lock()
	f.conns = append(f.conns, c)
	f.mu.Unlock()
	return c, nil
}

func (f *fakeTransport) Events() <-chan transport.Event {
	return f.events
}

func (f *fakeTransport) Close() error {
	return nil
}

func (f *fakeTransport) dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeTransport) lastConn(t *testing.T) *fakeConn {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		t.Fatal("no connection was dialed")
	}
	return f.conns[len(f.conns)-1]
}

func (f *fakeTransport) inject(kind transport.EventKind, conn transport.Conn, data []byte) {
	f.events <- transport.Event{Kind: kind, Conn: conn, Data: data}
}

func (f *fakeTransport) injectMessage(conn transport.Conn, msg protocol.Message) {
	data, err := protocol.NewCodec().EncodeMessage(msg)
	if err != nil {
		panic(err)
	}
	f.inject(transport.EventData, conn, data)
}

type fakeConn struct {
	peerID string

	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (c *fakeConn) PeerID() string {
	return c.peerID
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrChannelNotOpen
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) messages(t *testing.T) []protocol.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	codec := protocol.NewCodec()
	out := make([]protocol.Message, 0, len(c.sent))
	for _, data := range c.sent {
		msg, err := codec.DecodeMessage(data)
		if err != nil {
			t.Fatalf("sent undecodable frame: %v", err)
		}
		out = append(out, msg)
	}
	return out
}

// testConfig keeps timers out of the way unless a test shortens them.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BaseDelay = 10 * time.Millisecond
	cfg.OpenTimeout = time.Hour
	cfg.ConfirmTimeout = time.Hour
	cfg.Logger = logger.Discard()
	return cfg
}

func startSession(t *testing.T, tr transport.Transport, cfg Config) *Session {
	t.Helper()

	s, err := New(tr, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s
}

func nextEvent(t *testing.T, s *Session) Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for session event")
		return nil
	}
}

// waitState consumes events until the session reports state.
func waitState(t *testing.T, s *Session, state State) StateChanged {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-s.Events():
			if sc, ok := ev.(StateChanged); ok && sc.State == state {
				return sc
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", state)
			return StateChanged{}
		}
	}
}

func waitEvent[E Event](t *testing.T, s *Session) E {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-s.Events():
			if e, ok := ev.(E); ok {
				return e
			}
		case <-deadline:
			var zero E
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

func expectNoEvent(t *testing.T, s *Session, d time.Duration) {
	t.Helper()
	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected event %#v", ev)
	case <-time.After(d):
	}
}

func snapshot(t *testing.T, s *Session) Snapshot {
	t.Helper()
	snap, err := s.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	return snap
}

// activate drives an outbound attempt on a fake transport to Active and
// returns the connection.
func activate(t *testing.T, s *Session, tr *fakeTransport, remote string) *fakeConn {
	t.Helper()
	if err := s.Connect(context.Background(), remote); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitState(t, s, Connecting)

	conn := tr.lastConn(t)
	tr.inject(transport.EventOpen, conn, nil)
	waitState(t, s, AwaitingConfirmation)
	tr.injectMessage(conn, protocol.Confirm())
	waitState(t, s, Active)
	return conn
}
