package protocol

// Message is the envelope carried on the data channel. Control messages
// are told apart by Kind, so user text can never be mistaken for one.
type Message struct {
	Kind Kind
	Seq  uint64
	Text string
}

func UserText(seq uint64, text string) Message {
	return Message{Kind: KindUserText, Seq: seq, Text: text}
}

func Confirm() Message {
	return Message{Kind: KindConfirm}
}

// Ack acknowledges the user message numbered seq.
func Ack(seq uint64) Message {
	return Message{Kind: KindAck, Seq: seq}
}

// Frame is one unit exchanged with the signaling service over its websocket.
//
// Assigned carries the caller's identifier in To. Relay carries an opaque
// payload from From to To. Unavailable reports that To is not connected.
type Frame struct {
	Type    FrameType
	From    string
	To      string
	Payload []byte
	Reason  string
}

// Signal is a complete session description relayed between two peers.
// ICE candidates are gathered before the description is sent.
type Signal struct {
	Type SignalType
	SDP  string
}
