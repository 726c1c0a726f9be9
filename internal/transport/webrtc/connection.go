package webrtc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v3"
	"github.com/rudransh-shrivastava/connectsphere/internal/transport"
)

type connection struct {
	peerID      string
	pc          *webrtc.PeerConnection
	dc          *webrtc.DataChannel
	isInitiator bool
	owner       *webrtcTransport
	closedLocal atomic.Bool
	closeOnce   sync.Once
	mu          sync.Mutex

	// Data can arrive before the open callback runs. It is held until the
	// open event has been emitted so that the session sees them in order.
	openMu sync.Mutex
	open   bool
	early  [][]byte
}

func newConnection(owner *webrtcTransport, peerID string, pc *webrtc.PeerConnection, isInitiator bool) *connection {
	conn := &connection{
		peerID:      peerID,
		pc:          pc,
		isInitiator: isInitiator,
		owner:       owner,
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		owner.logger.Debugf("Peer connection to %s is %s", peerID, s.String())
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			conn.remoteClosed()
		}
	})

	if !isInitiator {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			conn.setupDataChannel(dc)
		})
	}

	return conn
}

func (c *connection) createDataChannel() error {
	dc, err := c.pc.CreateDataChannel(channelLabel, DefaultDataChannelConfig())
	if err != nil {
		return fmt.Errorf("failed to create data channel: %w", err)
	}
	c.setupDataChannel(dc)
	return nil
}

func (c *connection) setupDataChannel(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		c.owner.logger.Debugf("Data channel '%s'-'%d' open", dc.Label(), dc.ID())
		c.opened()
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		c.received(msg.Data)
	})

	dc.OnError(func(err error) {
		if c.closedLocal.Load() {
			return
		}
		c.owner.emit(transport.Event{Kind: transport.EventError, Conn: c, Err: err})
	})

	dc.OnClose(func() {
		c.owner.logger.Debugf("Data channel '%s'-'%d' closed", dc.Label(), dc.ID())
		c.remoteClosed()
	})
}

func (c *connection) opened() {
	c.openMu.Lock()
	defer c.openMu.Unlock()
	if c.open {
		return
	}
	c.open = true

	kind := transport.EventOpen
	if !c.isInitiator {
		kind = transport.EventIncoming
	}
	c.owner.emit(transport.Event{Kind: kind, Conn: c})

	for _, data := range c.early {
		c.owner.emit(transport.Event{Kind: transport.EventData, Conn: c, Data: data})
	}
	c.early = nil
}

func (c *connection) received(msg []byte) {
	data := make([]byte, len(msg))
	copy(data, msg)

	c.openMu.Lock()
	defer c.openMu.Unlock()
	if !c.open {
		c.early = append(c.early, data)
		return
	}
	c.owner.emit(transport.Event{Kind: transport.EventData, Conn: c, Data: data})
}

// remoteClosed reports the close once, unless we closed it ourselves.
func (c *connection) remoteClosed() {
	c.closeOnce.Do(func() {
		c.owner.forget(c)
		if c.closedLocal.Load() {
			return
		}
		c.owner.emit(transport.Event{Kind: transport.EventClose, Conn: c})
	})
}

func (c *connection) fail(err error) {
	if c.closedLocal.Load() {
		return
	}
	c.owner.emit(transport.Event{Kind: transport.EventError, Conn: c, Err: err})
}

func (c *connection) PeerID() string {
	return c.peerID
}

func (c *connection) Send(data []byte) error {
	c.mu.Lock()
	dc := c.dc
	c.mu.Unlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return transport.ErrChannelNotOpen
	}
	if err := dc.Send(data); err != nil {
		return fmt.Errorf("failed to send on data channel: %w", err)
	}
	return nil
}

func (c *connection) Close() error {
	if !c.closedLocal.CompareAndSwap(false, true) {
		return nil
	}
	c.owner.forget(c)

	c.mu.Lock()
	dc := c.dc
	c.mu.Unlock()

	if dc != nil {
		_ = dc.Close()
	}
	return c.pc.Close()
}
