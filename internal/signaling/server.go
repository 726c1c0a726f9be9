// Package signaling is the rendezvous service peers use to find each
// other: it assigns identifiers and relays session descriptions between
// websocket clients, and provides the matching client.
package signaling

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rudransh-shrivastava/connectsphere/internal/protocol"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxFrameSize   = 64 * 1024
	sendBufferSize = 64
)

type Config struct {
	Addr   string
	Logger *logrus.Logger
	// Broker defaults to a LocalBroker.
	Broker Broker
}

type Server struct {
	config   Config
	logger   *logrus.Logger
	broker   Broker
	codec    *protocol.Codec
	listener net.Listener
	http     *http.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	peers map[string]*peer
}

func NewServer(cfg Config) (*Server, error) {
	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	broker := cfg.Broker
	if broker == nil {
		broker = NewLocalBroker()
	}
	RegisterMetrics()

	s := &Server{
		config:   cfg,
		logger:   logger,
		broker:   broker,
		codec:    protocol.NewCodec(),
		listener: listener,
		peers:    make(map[string]*peer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.http = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	return s, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWS)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

// Start serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Infof("Signaling server started on %s", s.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		_ = s.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down signaling server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.http.Shutdown(ctx)

	// Hijacked websocket connections are not closed by http.Server.
	s.mu.Lock()
	for _, p := range s.peers {
		_ = p.conn.Close()
	}
	s.mu.Unlock()

	if berr := s.broker.Close(); err == nil {
		err = berr
	}
	return err
}

type peer struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

func (p *peer) enqueue(frame []byte) bool {
	select {
	case p.send <- frame:
		return true
	case <-p.done:
		return false
	default:
		return false
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("Websocket upgrade failed: %v", err)
		return
	}

	p := &peer{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	log := s.logger.WithField("peer", p.id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	unsubscribe, err := s.broker.Subscribe(ctx, p.id, func(frame []byte) {
		if !p.enqueue(frame) {
			log.Warn("Dropping frame for slow or closed peer")
		}
	})
	if err != nil {
		log.Errorf("Failed to subscribe: %v", err)
		_ = conn.Close()
		return
	}

	s.mu.Lock()
	s.peers[p.id] = p
	s.mu.Unlock()

	connectedPeers.Inc()
	log.Info("Peer connected")
	defer func() {
		s.mu.Lock()
		delete(s.peers, p.id)
		s.mu.Unlock()

		unsubscribe()
		close(p.done)
		connectedPeers.Dec()
		log.Info("Peer disconnected")
	}()

	go s.writePump(p)
	s.sendFrame(p, protocol.Frame{Type: protocol.FrameAssigned, To: p.id})
	s.readPump(ctx, p)
}

func (s *Server) readPump(ctx context.Context, p *peer) {
	defer func() { _ = p.conn.Close() }()

	p.conn.SetReadLimit(maxFrameSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debugf("Read from %s failed: %v", p.id, err)
			}
			return
		}
		s.handleFrame(ctx, p, data)
	}
}

func (s *Server) writePump(p *peer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()

	for {
		select {
		case frame := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-p.done:
			_ = p.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (s *Server) handleFrame(ctx context.Context, p *peer, data []byte) {
	f, err := s.codec.DecodeFrame(data)
	if err != nil {
		recordFrame(outcomeMalformed)
		s.logger.Warnf("Malformed frame from %s: %v", p.id, err)
		return
	}

	switch f.Type {
	case protocol.FrameRelay:
		s.relay(ctx, p, f)
	default:
		recordFrame(outcomeMalformed)
		s.logger.Warnf("Unhandled frame type %s from %s", f.Type, p.id)
	}
}

func (s *Server) relay(ctx context.Context, p *peer, f protocol.Frame) {
	// The sender cannot choose its From.
	f.From = p.id
	out, err := s.codec.EncodeFrame(f)
	if err != nil {
		s.logger.Errorf("Failed to encode relay frame: %v", err)
		return
	}

	delivered := false
	if f.To != "" && f.To != p.id {
		delivered, err = s.broker.Publish(ctx, f.To, out)
		if err != nil {
			s.logger.Errorf("Failed to relay to %s: %v", f.To, err)
		}
	}

	if !delivered {
		recordFrame(outcomeUnavailable)
		s.logger.Debugf("Peer %s unavailable for %s", f.To, p.id)
		s.sendFrame(p, protocol.Frame{Type: protocol.FrameUnavailable, To: f.To, Reason: "peer not connected"})
		return
	}
	recordFrame(outcomeRelayed)
}

func (s *Server) sendFrame(p *peer, f protocol.Frame) {
	data, err := s.codec.EncodeFrame(f)
	if err != nil {
		s.logger.Errorf("Failed to encode %s frame: %v", f.Type, err)
		return
	}
	if !p.enqueue(data) {
		s.logger.Warnf("Dropping %s frame for %s", f.Type, p.id)
	}
}
