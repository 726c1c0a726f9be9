package session

// State is the lifecycle position of the single conversation.
type State int

const (
	Idle State = iota
	Connecting
	AwaitingConfirmation
	Active
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case AwaitingConfirmation:
		return "awaiting-confirmation"
	case Active:
		return "active"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

var transitions = map[State][]State{
	Idle:                 {Connecting, AwaitingConfirmation},
	Connecting:           {Connecting, AwaitingConfirmation, Failed, Closed},
	AwaitingConfirmation: {Active, Failed, Closed},
	Active:               {Closed},
	Closed:               {Idle},
	Failed:               {Idle},
}

// CanTransitionTo reports whether next directly follows s. Connecting may
// follow itself; that is a retry.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Busy reports whether an attempt or conversation is in progress.
func (s State) Busy() bool {
	return s == Connecting || s == AwaitingConfirmation || s == Active
}
