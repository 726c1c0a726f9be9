// Package memory provides an in-process transport. Peers registered on
// the same Hub reach each other without a network.
package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rudransh-shrivastava/connectsphere/internal/transport"
)

const eventBuffer = 1024

type Hub struct {
	peers     map[string]*Transport
	blackhole map[string]bool
	next      atomic.Int64
	mu        sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		peers:     make(map[string]*Transport),
		blackhole: make(map[string]bool),
	}
}

// NewTransport returns a transport that will register as id on Open. An
// empty id is replaced by a generated one.
func (h *Hub) NewTransport(id string) *Transport {
	if id == "" {
		id = fmt.Sprintf("peer-%d", h.next.Add(1))
	}
	return &Transport{
		hub:    h,
		id:     id,
		events: make(chan transport.Event, eventBuffer),
		done:   make(chan struct{}),
		conns:  make(map[*Conn]struct{}),
	}
}

// Blackhole makes connection attempts to id hang forever, like a peer
// that never answers.
func (h *Hub) Blackhole(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.blackhole[id] = true
}

func (h *Hub) lookup(id string) (*Transport, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peers[id], h.blackhole[id]
}

type Transport struct {
	hub    *Hub
	id     string
	events chan transport.Event
	done   chan struct{}
	opened atomic.Bool
	once   sync.Once

	conns map[*Conn]struct{}
	mu    sync.Mutex
}

func (t *Transport) ID() string {
	return t.id
}

func (t *Transport) Open(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", transport.ErrTransportUnavailable, err)
	}

	t.hub.mu.Lock()
	defer t.hub.mu.Unlock()
	if existing, ok := t.hub.peers[t.id]; ok && existing != t {
		return "", fmt.Errorf("%w: id %s already registered", transport.ErrTransportUnavailable, t.id)
	}
	t.hub.peers[t.id] = t
	t.opened.Store(true)
	return t.id, nil
}

// Connect never blocks; the open or the failure arrives on Events.
func (t *Transport) Connect(ctx context.Context, peerID string) (transport.Conn, error) {
	if !t.opened.Load() {
		return nil, transport.ErrTransportUnavailable
	}

	local := &Conn{owner: t, peerID: peerID}
	remote, hole := t.hub.lookup(peerID)
	switch {
	case hole:
	case remote == nil:
		t.emit(transport.Event{Kind: transport.EventError, Conn: local, Err: transport.ErrPeerUnavailable})
	default:
		accepted := &Conn{owner: remote, peerID: t.id}
		local.peer, accepted.peer = accepted, local
		local.open.Store(true)
		accepted.open.Store(true)
		t.track(local)
		remote.track(accepted)
		t.emit(transport.Event{Kind: transport.EventOpen, Conn: local})
		remote.emit(transport.Event{Kind: transport.EventIncoming, Conn: accepted})
	}
	return local, nil
}

func (t *Transport) track(c *Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[c] = struct{}{}
}

func (t *Transport) untrack(c *Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, c)
}

func (t *Transport) Events() <-chan transport.Event {
	return t.events
}

func (t *Transport) emit(ev transport.Event) {
	select {
	case t.events <- ev:
	case <-t.done:
	}
}

func (t *Transport) Close() error {
	t.once.Do(func() {
		t.mu.Lock()
		conns := make([]*Conn, 0, len(t.conns))
		for c := range t.conns {
			conns = append(conns, c)
		}
		t.mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}

		t.hub.mu.Lock()
		if t.hub.peers[t.id] == t {
			delete(t.hub.peers, t.id)
		}
		t.hub.mu.Unlock()
		close(t.done)
	})
	return nil
}

type Conn struct {
	owner  *Transport
	peerID string
	peer   *Conn
	open   atomic.Bool
}

func (c *Conn) PeerID() string {
	return c.peerID
}

func (c *Conn) Send(data []byte) error {
	if !c.open.Load() || c.peer == nil || !c.peer.open.Load() {
		return transport.ErrChannelNotOpen
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.peer.owner.emit(transport.Event{Kind: transport.EventData, Conn: c.peer, Data: buf})
	return nil
}

// Close notifies the remote side only.
func (c *Conn) Close() error {
	if !c.open.CompareAndSwap(true, false) {
		return nil
	}
	c.owner.untrack(c)
	if c.peer != nil && c.peer.open.CompareAndSwap(true, false) {
		c.peer.owner.untrack(c.peer)
		c.peer.owner.emit(transport.Event{Kind: transport.EventClose, Conn: c.peer})
	}
	return nil
}
