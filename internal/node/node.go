// Package node runs one chat participant: a session wired to a transport,
// a store, and a line-oriented console.
package node

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rudransh-shrivastava/connectsphere/internal/logger"
	"github.com/rudransh-shrivastava/connectsphere/internal/session"
	"github.com/rudransh-shrivastava/connectsphere/internal/store"
	"github.com/rudransh-shrivastava/connectsphere/internal/transport"
	"github.com/sirupsen/logrus"
)

type Options struct {
	Transport transport.Transport
	Session   session.Config
	// Store is optional. When it also implements store.History, user
	// messages are recorded.
	Store store.Store
	// Offline is closed when connectivity is lost.
	Offline <-chan struct{}
	// Peer is connected to on start.
	Peer string
	// AutoConnect connects to the remembered peer when Peer is empty.
	AutoConnect bool
	// Spinner animates connection attempts on the console.
	Spinner bool
	Logger  *logrus.Logger
}

type Node struct {
	id      string
	opts    Options
	session *session.Session
	store   store.Store
	history store.History
	logger  *logrus.Logger

	console *console
}

func New(opts Options) (*Node, error) {
	if opts.Transport == nil {
		return nil, errors.New("node: a transport is required")
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewLogger()
	}
	cfg := opts.Session
	if cfg.Logger == nil {
		cfg.Logger = log
	}

	sess, err := session.New(opts.Transport, cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	n := &Node{
		opts:    opts,
		session: sess,
		store:   opts.Store,
		logger:  log,
	}
	if h, ok := opts.Store.(store.History); ok {
		n.history = h
	}
	return n, nil
}

// ID is our identifier once Run has registered.
func (n *Node) ID() string {
	return n.id
}

// Run registers, then reads commands from in and renders to out until in
// is exhausted, /quit is entered or ctx is done.
func (n *Node) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	n.console = newConsole(out, n.opts.Spinner)

	id, err := n.session.Open(ctx)
	if err != nil {
		return err
	}
	n.id = id

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- n.session.Run(ctx)
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		n.pumpEvents(ctx)
	}()
	if n.opts.Offline != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.watchOffline(ctx)
		}()
	}

	n.console.printf("Your ID: %s\n", id)
	n.console.printf("Type /help for commands.\n")
	n.autoConnect(ctx)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	err = n.readLoop(ctx, lines)

	cancel()
	if rerr := <-runErr; err == nil && !errors.Is(rerr, context.Canceled) {
		err = rerr
	}
	wg.Wait()
	n.console.stopSpinner()
	return err
}

func (n *Node) readLoop(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := n.handleLine(ctx, line); quit {
				return nil
			}
		}
	}
}

func (n *Node) autoConnect(ctx context.Context) {
	peer := n.opts.Peer
	if peer == "" && n.opts.AutoConnect && n.store != nil {
		last, err := n.store.LastRemote(ctx)
		if err != nil {
			n.logger.Warnf("Failed to read last peer: %v", err)
		}
		peer = last
	}
	if peer == "" {
		return
	}

	if err := n.session.Connect(ctx, peer); err != nil {
		n.console.printf("Error: %v\n", err)
	}
}

func (n *Node) watchOffline(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-n.opts.Offline:
		if err := n.session.NetworkOffline(ctx); err != nil && !errors.Is(err, session.ErrStopped) {
			n.logger.Debugf("Failed to report network offline: %v", err)
		}
	}
}

func (n *Node) pumpEvents(ctx context.Context) {
	events := n.session.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			n.persist(ctx, ev)
			n.console.render(ev)
		}
	}
}

func (n *Node) persist(ctx context.Context, ev session.Event) {
	switch e := ev.(type) {
	case session.StateChanged:
		if e.State != session.Active || n.store == nil {
			return
		}
		if err := n.store.SetLastRemote(ctx, e.Remote); err != nil {
			n.logger.Warnf("Failed to remember peer %s: %v", e.Remote, err)
		}
	case session.MessageSent:
		n.record(ctx, store.Message{Remote: e.Remote, Direction: store.Outgoing, Seq: e.Seq, Text: e.Text})
	case session.MessageReceived:
		n.record(ctx, store.Message{Remote: e.Remote, Direction: store.Incoming, Seq: e.Seq, Text: e.Text})
	}
}

func (n *Node) record(ctx context.Context, msg store.Message) {
	if n.history == nil {
		return
	}
	if err := n.history.RecordMessage(ctx, msg); err != nil {
		n.logger.Warnf("Failed to record message: %v", err)
	}
}
