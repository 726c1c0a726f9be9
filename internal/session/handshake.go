package session

// handshake tracks the two halves of mutual confirmation on the current
// channel. The conversation starts only when both are true.
type handshake struct {
	localOpen       bool
	remoteConfirmed bool
}

func (h *handshake) complete() bool {
	return h.localOpen && h.remoteConfirmed
}

func (h *handshake) reset() {
	*h = handshake{}
}
