package protocol

// MaxTextLength is the default limit, in characters, for user text.
const MaxTextLength = 50

type Kind uint8

const (
	KindUserText Kind = 0x01
	KindConfirm  Kind = 0x02
	KindAck      Kind = 0x03
)

func (k Kind) String() string {
	switch k {
	case KindUserText:
		return "USER_TEXT"
	case KindConfirm:
		return "CONTROL_CONFIRM"
	case KindAck:
		return "CONTROL_ACK"
	default:
		return "UNKNOWN"
	}
}

func (k Kind) IsControl() bool {
	return k == KindConfirm || k == KindAck
}

// FrameType identifies a frame exchanged with the signaling service.
type FrameType uint8

const (
	FrameAssigned    FrameType = 0x01
	FrameRelay       FrameType = 0x02
	FrameUnavailable FrameType = 0x03
	FrameError       FrameType = 0xFF
)

func (t FrameType) String() string {
	switch t {
	case FrameAssigned:
		return "ASSIGNED"
	case FrameRelay:
		return "RELAY"
	case FrameUnavailable:
		return "UNAVAILABLE"
	case FrameError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// SignalType identifies the session description carried inside a relay frame.
type SignalType uint8

const (
	SignalOffer  SignalType = 0x01
	SignalAnswer SignalType = 0x02
)

func (t SignalType) String() string {
	switch t {
	case SignalOffer:
		return "OFFER"
	case SignalAnswer:
		return "ANSWER"
	default:
		return "UNKNOWN"
	}
}
