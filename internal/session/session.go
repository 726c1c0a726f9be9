// Package session drives one peer-to-peer conversation: connecting with
// retries, the mutual confirmation handshake, and acknowledged message
// exchange.
//
// All state is owned by the goroutine running Run. Public methods hand a
// closure to that goroutine and wait for its result, so transport events,
// timer expirations and user commands are handled strictly one at a time.
package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff"
	"github.com/rudransh-shrivastava/connectsphere/internal/protocol"
	"github.com/rudransh-shrivastava/connectsphere/internal/transport"
	"github.com/sirupsen/logrus"
)

const eventBuffer = 256

type timerKind int

const (
	timerOpen timerKind = iota
	timerRetry
	timerConfirm
)

func (k timerKind) String() string {
	switch k {
	case timerOpen:
		return "open"
	case timerRetry:
		return "retry"
	case timerConfirm:
		return "confirm"
	default:
		return "unknown"
	}
}

type timerEvent struct {
	kind timerKind
	gen  uint64
}

type command struct {
	fn    func() error
	reply chan error
}

// Snapshot is a point-in-time view of the session.
type Snapshot struct {
	SelfID     string
	Remote     string
	State      State
	RetryCount int
	// PendingSeq is the sequence number of the sent message still
	// awaiting acknowledgment, or zero.
	PendingSeq uint64
	// Displayed is the received message awaiting our acknowledgment.
	Displayed string
	Queued    int
}

type Session struct {
	cfg    Config
	tr     transport.Transport
	codec  *protocol.Codec
	logger *logrus.Logger

	events  chan Event
	cmds    chan command
	timers  chan timerEvent
	done    chan struct{}
	running atomic.Bool
	runCtx  context.Context

	// Everything below is owned by the Run goroutine.
	selfID     string
	remoteID   string
	state      State
	retryCount int
	conn       transport.Conn
	outbound   bool
	hs         handshake
	backoff    backoff.BackOff
	timer      *time.Timer
	timerGen   uint64
	nextSeq    uint64
	pending    *protocol.Message
	displayed  *protocol.Message
	inbound    []protocol.Message
}

func New(tr transport.Transport, cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.normalized()

	return &Session{
		cfg:     cfg,
		tr:      tr,
		codec:   protocol.NewCodec(),
		logger:  cfg.Logger,
		events:  make(chan Event, eventBuffer),
		cmds:    make(chan command),
		timers:  make(chan timerEvent, 1),
		done:    make(chan struct{}),
		runCtx:  context.Background(),
		state:   Idle,
		backoff: newBackOff(cfg),
	}, nil
}

// Open registers with the transport and returns our identifier. It must
// be called before Run.
func (s *Session) Open(ctx context.Context) (string, error) {
	if s.running.Load() {
		return "", errors.New("session: Open called after Run")
	}
	if s.selfID != "" {
		return s.selfID, nil
	}

	id, err := s.tr.Open(ctx)
	if err != nil {
		return "", &Error{Kind: KindTransportUnavailable, Detail: "could not reach rendezvous", Err: err}
	}
	s.selfID = id
	s.logger.Infof("Registered as %s", id)
	return id, nil
}

// Events returns the stream of presentation events. It must be drained
// while Run is active.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Run processes commands, transport events and timers until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("session: already running")
	}
	s.runCtx = ctx
	defer close(s.done)
	defer s.shutdown()

	trEvents := s.tr.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-s.cmds:
			cmd.reply <- cmd.fn()
		case ev := <-trEvents:
			s.handleTransport(ev)
		case te := <-s.timers:
			s.handleTimer(te)
		}
	}
}

func (s *Session) do(ctx context.Context, fn func() error) error {
	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case s.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-s.done:
		return ErrStopped
	}
}

// Connect starts an attempt to reach remoteID. From Failed it resets to
// Idle first.
func (s *Session) Connect(ctx context.Context, remoteID string) error {
	return s.do(ctx, func() error {
		if s.state == Failed {
			s.toIdle()
		}
		if s.state != Idle {
			return newError(KindAlreadyConnecting, "already %s", s.state)
		}
		if remoteID == "" {
			return newError(KindPeerUnavailable, "no peer identifier given")
		}
		if remoteID == s.selfID {
			return newError(KindPeerUnavailable, "cannot connect to ourselves")
		}

		s.remoteID = remoteID
		s.retryCount = 0
		s.backoff.Reset()
		s.logger.WithField("remote", remoteID).Info("Connecting")
		s.transition(Connecting)
		s.dial()
		return nil
	})
}

// Send transmits text and returns its sequence number. The message stays
// pending until the remote acknowledges it or a newer send supersedes it.
func (s *Session) Send(ctx context.Context, text string) (uint64, error) {
	var seq uint64
	err := s.do(ctx, func() error {
		if s.state != Active {
			return newError(KindNotActive, "cannot send while %s", s.state)
		}
		if limit := s.cfg.MaxMessageLength; limit > 0 {
			if n := utf8.RuneCountInString(text); n > limit {
				return newError(KindMessageTooLong, "%d characters, limit is %d", n, limit)
			}
		}

		s.nextSeq++
		msg := protocol.UserText(s.nextSeq, text)
		if err := s.write(msg); err != nil {
			return err
		}
		if s.pending != nil {
			s.logger.Debugf("Message %d superseded by %d", s.pending.Seq, msg.Seq)
		}
		s.pending = &msg
		seq = msg.Seq
		s.emit(MessageSent{Remote: s.remoteID, Seq: msg.Seq, Text: text})
		return nil
	})
	return seq, err
}

// Acknowledge confirms the displayed message to the remote and shows the
// next queued one. With nothing displayed it does nothing.
func (s *Session) Acknowledge(ctx context.Context) error {
	return s.do(ctx, func() error {
		if s.displayed == nil {
			return nil
		}
		if err := s.write(protocol.Ack(s.displayed.Seq)); err != nil {
			return err
		}
		s.displayed = nil
		s.showNext()
		return nil
	})
}

// Close ends the current attempt or conversation and returns to Idle.
func (s *Session) Close(ctx context.Context) error {
	return s.do(ctx, func() error {
		switch {
		case s.state.Busy():
			s.logger.WithField("remote", s.remoteID).Info("Closing session")
			s.teardown()
		case s.state == Failed:
			s.toIdle()
		}
		return nil
	})
}

// Reset returns the session to Idle from any state.
func (s *Session) Reset(ctx context.Context) error {
	return s.do(ctx, func() error {
		switch {
		case s.state.Busy():
			s.teardown()
		case s.state == Failed:
			s.toIdle()
		}
		return nil
	})
}

// NetworkOffline reports loss of connectivity. Whatever is in progress,
// including pending retries, is torn down.
func (s *Session) NetworkOffline(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.logger.Warn("Network offline")
		switch {
		case s.state.Busy():
			s.teardown()
		case s.state == Failed:
			s.toIdle()
		}
		s.emit(errorEvent(newError(KindNetworkOffline, "connection to the network was lost")))
		return nil
	})
}

func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func() error {
		snap = Snapshot{
			SelfID:     s.selfID,
			Remote:     s.remoteID,
			State:      s.state,
			RetryCount: s.retryCount,
			Queued:     len(s.inbound),
		}
		if s.pending != nil {
			snap.PendingSeq = s.pending.Seq
		}
		if s.displayed != nil {
			snap.Displayed = s.displayed.Text
		}
		return nil
	})
	return snap, err
}

func (s *Session) transition(next State) {
	if !s.state.CanTransitionTo(next) {
		s.logger.Errorf("Refusing transition %s -> %s", s.state, next)
		return
	}
	s.logger.Debugf("State %s -> %s", s.state, next)
	s.state = next
	s.emit(StateChanged{State: next, RetryCount: s.retryCount, Remote: s.remoteID})
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.runCtx.Done():
	}
}

func (s *Session) dial() {
	conn, err := s.tr.Connect(s.runCtx, s.remoteID)
	if err != nil {
		s.attemptFailed(transportError(err, "could not start connection"))
		return
	}
	s.conn = conn
	s.outbound = true
	s.hs.reset()
	s.startTimer(timerOpen, s.cfg.OpenTimeout)
}

// attemptFailed schedules the next retry, or gives up once MaxRetries
// retries have been spent.
func (s *Session) attemptFailed(cause *Error) {
	s.stopTimer()
	s.dropConn()
	log := s.logger.WithFields(logrus.Fields{"remote": s.remoteID, "attempt": s.retryCount + 1})

	if s.retryCount >= s.cfg.MaxRetries {
		log.Warnf("Giving up: %v", cause)
		s.transition(Failed)
		s.emit(errorEvent(newError(KindMaxRetriesExceeded, "%s did not respond after %d retries", s.remoteID, s.retryCount)))
		s.remoteID = ""
		s.retryCount = 0
		s.backoff.Reset()
		return
	}

	s.retryCount++
	delay := s.backoff.NextBackOff()
	log.Warnf("Attempt failed, retrying in %v: %v", delay, cause)
	s.transition(Connecting)
	s.startTimer(timerRetry, delay)
}

func (s *Session) fail(cause *Error) {
	s.logger.WithField("remote", s.remoteID).Warnf("Session failed: %v", cause)
	s.stopTimer()
	s.dropConn()
	s.clearMessages()
	s.transition(Failed)
	s.emit(errorEvent(cause))
}

// teardown moves a busy session through Closed back to Idle.
func (s *Session) teardown() {
	s.stopTimer()
	s.dropConn()
	s.clearMessages()
	s.transition(Closed)
	s.toIdle()
}

func (s *Session) toIdle() {
	s.stopTimer()
	s.dropConn()
	s.clearMessages()
	s.remoteID = ""
	s.retryCount = 0
	s.backoff.Reset()
	s.transition(Idle)
}

func (s *Session) dropConn() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.outbound = false
	s.hs.reset()
}

func (s *Session) clearMessages() {
	s.pending = nil
	s.displayed = nil
	s.inbound = nil
}

func (s *Session) shutdown() {
	s.stopTimer()
	s.dropConn()
}

// write sends msg on the current channel. A failed send while Active ends
// the conversation.
func (s *Session) write(msg protocol.Message) *Error {
	data, err := s.codec.EncodeMessage(msg)
	if err != nil {
		return &Error{Kind: KindTransportUnavailable, Detail: "could not encode message", Err: err}
	}
	if s.conn == nil {
		return newError(KindChannelNotOpen, "no channel")
	}
	if err := s.conn.Send(data); err != nil {
		cause := &Error{Kind: KindTransportUnavailable, Detail: "send failed", Err: err}
		if s.state == Active {
			s.teardown()
		}
		return cause
	}
	return nil
}

func (s *Session) startTimer(kind timerKind, d time.Duration) {
	s.stopTimer()
	gen := s.timerGen
	s.timer = time.AfterFunc(d, func() {
		select {
		case s.timers <- timerEvent{kind: kind, gen: gen}:
		case <-s.done:
		}
	})
}

// stopTimer cancels the running timer. Bumping the generation also voids
// an expiration that already fired but is not yet handled.
func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

func (s *Session) handleTimer(te timerEvent) {
	if te.gen != s.timerGen {
		return
	}
	s.timer = nil

	switch {
	case te.kind == timerOpen && s.state == Connecting:
		s.attemptFailed(newError(KindPeerUnavailable, "channel did not open within %v", s.cfg.OpenTimeout))
	case te.kind == timerRetry && s.state == Connecting:
		s.dial()
	case te.kind == timerConfirm && s.state == AwaitingConfirmation:
		s.fail(newError(KindConfirmationTimeout, "peer did not confirm"))
	default:
		s.logger.Debugf("Ignoring %s timer in state %s", te.kind, s.state)
	}
}

func (s *Session) handleTransport(ev transport.Event) {
	if ev.Kind == transport.EventIncoming {
		s.handleIncoming(ev.Conn)
		return
	}
	if ev.Conn == nil || ev.Conn != s.conn {
		s.logger.Debugf("Ignoring %s event from stale connection", ev.Kind)
		return
	}

	switch ev.Kind {
	case transport.EventOpen:
		s.handleOpen()
	case transport.EventData:
		s.handleData(ev.Data)
	case transport.EventClose:
		s.handleLost(newError(KindTransportUnavailable, "channel closed by %s", s.remoteID), false)
	case transport.EventError:
		s.handleLost(transportError(ev.Err, "channel error"), true)
	}
}

func (s *Session) handleOpen() {
	if s.state != Connecting {
		return
	}
	s.stopTimer()
	s.logger.WithField("remote", s.remoteID).Info("Channel open, confirming")
	s.beginHandshake()
}

// beginHandshake enters AwaitingConfirmation on the current channel and
// sends our confirmation.
func (s *Session) beginHandshake() {
	s.hs.localOpen = true
	if s.state != AwaitingConfirmation {
		s.transition(AwaitingConfirmation)
	}
	if err := s.write(protocol.Confirm()); err != nil {
		s.fail(err)
		return
	}
	s.startTimer(timerConfirm, s.cfg.ConfirmTimeout)
	if s.hs.complete() {
		s.activate()
	}
}

func (s *Session) activate() {
	s.stopTimer()
	s.retryCount = 0
	s.backoff.Reset()
	s.logger.WithField("remote", s.remoteID).Info("Session active")
	s.transition(Active)
}

// handleLost reacts to the current channel going away. report says whether
// an Active conversation ended abnormally.
func (s *Session) handleLost(cause *Error, report bool) {
	switch s.state {
	case Connecting:
		s.attemptFailed(cause)
	case AwaitingConfirmation:
		s.fail(cause)
	case Active:
		s.logger.WithField("remote", s.remoteID).Infof("Session ended: %v", cause)
		if report {
			s.emit(errorEvent(cause))
		}
		s.teardown()
	}
}

func (s *Session) handleData(data []byte) {
	msg, err := s.codec.DecodeMessage(data)
	if err != nil {
		s.logger.Warnf("Dropping undecodable message from %s: %v", s.remoteID, err)
		return
	}

	switch msg.Kind {
	case protocol.KindConfirm:
		s.hs.remoteConfirmed = true
		if s.state == AwaitingConfirmation && s.hs.complete() {
			s.activate()
		}
	case protocol.KindAck:
		if s.state != Active {
			return
		}
		if s.pending == nil || s.pending.Seq != msg.Seq {
			s.logger.Debugf("Ignoring stale ack for %d", msg.Seq)
			return
		}
		s.pending = nil
		s.emit(DeliveryConfirmed{Remote: s.remoteID, Seq: msg.Seq})
	case protocol.KindUserText:
		if s.state != Active {
			s.logger.Debugf("Dropping message received while %s", s.state)
			return
		}
		s.deliver(msg)
	}
}

func (s *Session) deliver(msg protocol.Message) {
	switch {
	case s.displayed == nil:
		s.displayed = &msg
	case s.cfg.InboundPolicy == InboundReplace:
		s.displayed = &msg
	default:
		s.inbound = append(s.inbound, msg)
		return
	}
	s.emit(MessageReceived{Remote: s.remoteID, Seq: msg.Seq, Text: msg.Text, Queued: len(s.inbound)})
}

func (s *Session) showNext() {
	if len(s.inbound) == 0 {
		return
	}
	next := s.inbound[0]
	s.inbound = s.inbound[1:]
	s.displayed = &next
	s.emit(MessageReceived{Remote: s.remoteID, Seq: next.Seq, Text: next.Text, Queued: len(s.inbound)})
}

func (s *Session) handleIncoming(conn transport.Conn) {
	from := conn.PeerID()
	log := s.logger.WithField("remote", from)

	switch s.state {
	case Idle:
		s.adopt(conn)
		log.Info("Accepted incoming connection")
		return
	case Connecting, AwaitingConfirmation:
		if from != s.remoteID {
			break
		}
		// Both sides dialed; the lower identifier keeps its own attempt.
		idle := s.state == Connecting && s.conn == nil
		if idle || (s.outbound && s.selfID > from) {
			log.Info("Adopting incoming connection from our target")
			s.stopTimer()
			s.dropConn()
			s.adopt(conn)
			return
		}
	}

	log.Infof("Rejecting incoming connection while %s", s.state)
	_ = conn.Close()
}

func (s *Session) adopt(conn transport.Conn) {
	s.remoteID = conn.PeerID()
	s.conn = conn
	s.outbound = false
	s.hs.reset()
	s.beginHandshake()
}
