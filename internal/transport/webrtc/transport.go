// Package webrtc implements the transport over WebRTC data channels,
// exchanging complete session descriptions through a Signaler.
package webrtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/connectsphere/internal/protocol"
	"github.com/rudransh-shrivastava/connectsphere/internal/transport"
	"github.com/sirupsen/logrus"
)

type Options struct {
	Signaler    transport.Signaler
	STUNServers []string
	Logger      *logrus.Logger
}

type webrtcTransport struct {
	config   webrtc.Configuration
	signaler transport.Signaler
	codec    *protocol.Codec
	logger   *logrus.Logger

	// outbound and inbound are kept apart so that two peers dialing each
	// other at once each hold both connections until one is dropped.
	outbound map[string]*connection
	inbound  map[string]*connection
	events   chan transport.Event
	done     chan struct{}
	once     sync.Once
	mu       sync.Mutex
}

// New creates a WebRTC transport.
func New(opts Options) transport.Transport {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &webrtcTransport{
		config:   STUNConfig(opts.STUNServers),
		signaler: opts.Signaler,
		codec:    protocol.NewCodec(),
		logger:   logger,
		outbound: make(map[string]*connection),
		inbound:  make(map[string]*connection),
		events:   make(chan transport.Event, 256),
		done:     make(chan struct{}),
	}
}

func (t *webrtcTransport) Open(ctx context.Context) (string, error) {
	id, err := t.signaler.Register(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", transport.ErrTransportUnavailable, err)
	}
	go t.signalLoop()
	return id, nil
}

func (t *webrtcTransport) Connect(ctx context.Context, peerID string) (transport.Conn, error) {
	pc, err := webrtc.NewPeerConnection(t.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	conn := newConnection(t, peerID, pc, true)
	if err := conn.createDataChannel(); err != nil {
		_ = pc.Close()
		return nil, err
	}

	t.mu.Lock()
	if old, ok := t.outbound[peerID]; ok {
		defer func() { _ = old.Close() }()
	}
	t.outbound[peerID] = conn
	t.mu.Unlock()

	go t.sendOffer(ctx, conn)
	return conn, nil
}

func (t *webrtcTransport) sendOffer(ctx context.Context, conn *connection) {
	offer, err := conn.pc.CreateOffer(nil)
	if err != nil {
		conn.fail(fmt.Errorf("failed to create offer: %w", err))
		return
	}

	gathered := webrtc.GatheringCompletePromise(conn.pc)
	if err := conn.pc.SetLocalDescription(offer); err != nil {
		conn.fail(fmt.Errorf("failed to set local description: %w", err))
		return
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return
	case <-t.done:
		return
	}

	if err := t.sendSignal(ctx, conn, protocol.SignalOffer); err != nil {
		conn.fail(fmt.Errorf("failed to send offer: %w", err))
	}
}

func (t *webrtcTransport) sendSignal(ctx context.Context, conn *connection, typ protocol.SignalType) error {
	desc := conn.pc.LocalDescription()
	if desc == nil {
		return errors.New("no local description")
	}
	payload, err := t.codec.EncodeSignal(protocol.Signal{Type: typ, SDP: desc.SDP})
	if err != nil {
		return err
	}
	return t.signaler.SendSignal(ctx, conn.peerID, payload)
}

func (t *webrtcTransport) signalLoop() {
	for {
		select {
		case <-t.done:
			return
		case sig, ok := <-t.signaler.RecvSignal():
			if !ok {
				return
			}
			t.handleSignal(sig)
		}
	}
}

func (t *webrtcTransport) handleSignal(sig transport.Signal) {
	if sig.Err != nil {
		t.mu.Lock()
		conn := t.outbound[sig.PeerID]
		t.mu.Unlock()
		if conn != nil {
			conn.fail(fmt.Errorf("%w: %v", transport.ErrPeerUnavailable, sig.Err))
		}
		return
	}

	s, err := t.codec.DecodeSignal(sig.Payload)
	if err != nil {
		t.logger.Warnf("Dropping malformed signal from %s: %v", sig.PeerID, err)
		return
	}

	switch s.Type {
	case protocol.SignalOffer:
		if err := t.answer(sig.PeerID, s.SDP); err != nil {
			t.logger.Warnf("Failed to answer %s: %v", sig.PeerID, err)
		}
	case protocol.SignalAnswer:
		t.mu.Lock()
		conn := t.outbound[sig.PeerID]
		t.mu.Unlock()
		if conn == nil {
			t.logger.Debugf("Ignoring answer from %s with no pending offer", sig.PeerID)
			return
		}
		desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: s.SDP}
		if err := conn.pc.SetRemoteDescription(desc); err != nil {
			conn.fail(fmt.Errorf("failed to set remote description: %w", err))
		}
	}
}

func (t *webrtcTransport) answer(peerID, sdp string) error {
	pc, err := webrtc.NewPeerConnection(t.config)
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}
	conn := newConnection(t, peerID, pc, false)

	t.mu.Lock()
	old := t.inbound[peerID]
	t.inbound[peerID] = conn
	t.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to set remote description: %w", err)
	}

	ans, err := pc.CreateAnswer(nil)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to create answer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(ans); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to set local description: %w", err)
	}

	go func() {
		select {
		case <-gathered:
		case <-t.done:
			return
		}
		if err := t.sendSignal(context.Background(), conn, protocol.SignalAnswer); err != nil {
			t.logger.Warnf("Failed to send answer to %s: %v", peerID, err)
			_ = conn.Close()
		}
	}()
	return nil
}

func (t *webrtcTransport) emit(ev transport.Event) {
	select {
	case t.events <- ev:
	case <-t.done:
	}
}

func (t *webrtcTransport) forget(c *connection) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.outbound[c.peerID] == c {
		delete(t.outbound, c.peerID)
	}
	if t.inbound[c.peerID] == c {
		delete(t.inbound, c.peerID)
	}
}

func (t *webrtcTransport) Events() <-chan transport.Event {
	return t.events
}

func (t *webrtcTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)

		t.mu.Lock()
		conns := make([]*connection, 0, len(t.outbound)+len(t.inbound))
		for _, c := range t.outbound {
			conns = append(conns, c)
		}
		for _, c := range t.inbound {
			conns = append(conns, c)
		}
		t.mu.Unlock()

		for _, c := range conns {
			_ = c.Close()
		}
		err = t.signaler.Close()
	})
	return err
}
