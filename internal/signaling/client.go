package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rudransh-shrivastava/connectsphere/internal/protocol"
	"github.com/rudransh-shrivastava/connectsphere/internal/transport"
	"github.com/sirupsen/logrus"
)

var ErrNotRegistered = errors.New("signaling: not registered")

// Client is a transport.Signaler backed by the signaling service.
type Client struct {
	url    string
	logger *logrus.Logger
	codec  *protocol.Codec

	conn    *websocket.Conn
	id      string
	signals chan transport.Signal
	done    chan struct{}
	once    sync.Once
	writeMu sync.Mutex

	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewClient(url string, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		url:     url,
		logger:  logger,
		codec:   protocol.NewCodec(),
		signals: make(chan transport.Signal, 16),
		done:    make(chan struct{}),

		pongWait:   pongWait,
		pingPeriod: pingPeriod,
	}
}

// Register connects to the service and waits for our identifier.
func (c *Client) Register(ctx context.Context) (string, error) {
	if c.id != "" {
		return c.id, nil
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to dial %s: %w", c.url, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return "", fmt.Errorf("failed to read assignment: %w", err)
	}
	f, err := c.codec.DecodeFrame(data)
	if err != nil || f.Type != protocol.FrameAssigned || f.To == "" {
		_ = conn.Close()
		return "", fmt.Errorf("expected assignment frame, got %s: %v", f.Type, err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	c.conn = conn
	c.id = f.To
	go c.readLoop()
	go c.pingLoop()
	return c.id, nil
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) SendSignal(ctx context.Context, peerID string, signal []byte) error {
	if c.conn == nil {
		return ErrNotRegistered
	}

	data, err := c.codec.EncodeFrame(protocol.Frame{
		Type:    protocol.FrameRelay,
		From:    c.id,
		To:      peerID,
		Payload: signal,
	})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("failed to send signal: %w", err)
	}
	return nil
}

func (c *Client) RecvSignal() <-chan transport.Signal {
	return c.signals
}

// Done is closed when the connection to the service is lost or closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// readLoop gives up when nothing, not even a pong, arrives within pongWait.
func (c *Client) readLoop() {
	defer c.shutdown()

	extend := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	}
	_ = extend()
	c.conn.SetPongHandler(func(string) error {
		return extend()
	})
	c.conn.SetPingHandler(func(data string) error {
		_ = extend()
		err := c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Warnf("Lost connection to signaling service: %v", err)
			}
			return
		}

		_ = extend()

		f, err := c.codec.DecodeFrame(data)
		if err != nil {
			c.logger.Warnf("Dropping malformed frame: %v", err)
			continue
		}

		var sig transport.Signal
		switch f.Type {
		case protocol.FrameRelay:
			sig = transport.Signal{PeerID: f.From, Payload: f.Payload}
		case protocol.FrameUnavailable:
			sig = transport.Signal{PeerID: f.To, Err: fmt.Errorf("%w: %s", transport.ErrPeerUnavailable, f.Reason)}
		default:
			c.logger.Debugf("Ignoring %s frame", f.Type)
			continue
		}

		select {
		case c.signals <- sig:
		case <-c.done:
			return
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debugf("Ping to signaling service failed: %v", err)
				return
			}
		}
	}
}

func (c *Client) shutdown() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *Client) Close() error {
	c.shutdown()
	if c.conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}
