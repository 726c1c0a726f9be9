package node

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rudransh-shrivastava/connectsphere/internal/session"
	"github.com/schollz/progressbar/v3"
)

// Presets are the ready-made messages offered by /preset.
var Presets = []string{
	"Thinking of you",
	"Miss you",
	"Hope your day is going well",
	"Sending you a hug",
	"Can't wait to see you",
	"Good night",
}

const helpText = `Commands:
  /connect ID   connect to a peer
  /ack          acknowledge the displayed message
  /preset [N]   list presets or send preset N
  /status       show the session state
  /close        close the conversation
  /reset        return to idle
  /id           show your ID
  /quit         exit
Anything else is sent as a message.
`

// console serializes everything written to the terminal.
type console struct {
	mu      sync.Mutex
	out     io.Writer
	spin    bool
	spinner *spinner
}

func newConsole(out io.Writer, spin bool) *console {
	return &console{out: out, spin: spin}
}

func (c *console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

func (c *console) printf(format string, args ...any) {
	fmt.Fprintf(c, format, args...)
}

func (c *console) startSpinner(desc string) {
	if !c.spin {
		c.printf("%s\n", desc)
		return
	}
	if c.spinner != nil {
		c.spinner.describe(desc)
		return
	}
	c.spinner = newSpinner(c, desc)
}

func (c *console) stopSpinner() {
	if c.spinner == nil {
		return
	}
	c.spinner.stop()
	c.spinner = nil
}

func (c *console) render(ev session.Event) {
	if sc, ok := ev.(session.StateChanged); !ok || sc.State != session.Connecting {
		c.stopSpinner()
	}

	switch e := ev.(type) {
	case session.StateChanged:
		c.renderState(e)
	case session.MessageReceived:
		c.printf("%s: %s\n", e.Remote, e.Text)
		if e.Queued > 0 {
			c.printf("  (%d more waiting, /ack to see the next)\n", e.Queued)
		} else {
			c.printf("  (/ack to acknowledge)\n")
		}
	case session.MessageSent:
		c.printf("You: %s\n", e.Text)
	case session.DeliveryConfirmed:
		c.printf("  delivered to %s\n", e.Remote)
	case session.ErrorEvent:
		c.printf("Error [%s]: %s\n", e.Kind, e.Detail)
	}
}

func (c *console) renderState(e session.StateChanged) {
	switch e.State {
	case session.Connecting:
		desc := fmt.Sprintf("Connecting to %s", e.Remote)
		if e.RetryCount > 0 {
			desc += fmt.Sprintf(" (retry %d)", e.RetryCount)
		}
		c.startSpinner(desc)
	case session.AwaitingConfirmation:
		c.printf("Channel open with %s, waiting for confirmation\n", e.Remote)
	case session.Active:
		c.printf("Connected to %s\n", e.Remote)
	case session.Closed:
		c.printf("Connection closed\n")
	case session.Failed:
		c.printf("Could not connect to %s after %d retries\n", e.Remote, e.RetryCount)
	case session.Idle:
		c.printf("Idle\n")
	}
}

// handleLine runs one console command. It reports whether to quit.
func (n *Node) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		n.send(ctx, line)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch cmd {
	case "/connect":
		if arg == "" {
			n.console.printf("Usage: /connect ID\n")
			return false
		}
		err = n.session.Connect(ctx, arg)
	case "/ack":
		err = n.session.Acknowledge(ctx)
	case "/preset":
		n.preset(ctx, arg)
	case "/status":
		n.status(ctx)
	case "/close":
		err = n.session.Close(ctx)
	case "/reset":
		err = n.session.Reset(ctx)
	case "/id":
		n.console.printf("Your ID: %s\n", n.id)
	case "/help":
		n.console.printf("%s", helpText)
	case "/quit", "/exit":
		return true
	default:
		n.console.printf("Unknown command %s, try /help\n", cmd)
	}

	if err != nil {
		n.console.printf("Error: %v\n", err)
	}
	return false
}

func (n *Node) send(ctx context.Context, text string) {
	if _, err := n.session.Send(ctx, text); err != nil {
		n.console.printf("Error: %v\n", err)
	}
}

func (n *Node) preset(ctx context.Context, arg string) {
	if arg == "" {
		for i, p := range Presets {
			n.console.printf("  %d. %s\n", i+1, p)
		}
		return
	}

	i, err := strconv.Atoi(arg)
	if err != nil || i < 1 || i > len(Presets) {
		n.console.printf("Pick a preset between 1 and %d\n", len(Presets))
		return
	}
	n.send(ctx, Presets[i-1])
}

func (n *Node) status(ctx context.Context) {
	snap, err := n.session.Snapshot(ctx)
	if err != nil {
		n.console.printf("Error: %v\n", err)
		return
	}

	n.console.printf("State: %s\n", snap.State)
	if snap.Remote != "" {
		n.console.printf("Peer: %s\n", snap.Remote)
	}
	if snap.RetryCount > 0 {
		n.console.printf("Retries: %d\n", snap.RetryCount)
	}
	if snap.PendingSeq != 0 {
		n.console.printf("Awaiting delivery of message #%d\n", snap.PendingSeq)
	}
	if snap.Displayed != "" {
		n.console.printf("Displayed: %s (%d queued)\n", snap.Displayed, snap.Queued)
	}
}

type spinner struct {
	bar  *progressbar.ProgressBar
	quit chan struct{}
	done chan struct{}
}

func newSpinner(out io.Writer, desc string) *spinner {
	s := &spinner{
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription(desc),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionClearOnFinish(),
		),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *spinner) loop() {
	defer close(s.done)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			_ = s.bar.Add(1)
		}
	}
}

func (s *spinner) describe(desc string) {
	s.bar.Describe(desc)
}

func (s *spinner) stop() {
	close(s.quit)
	<-s.done
	_ = s.bar.Finish()
}
