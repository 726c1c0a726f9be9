package session

// Event is delivered to the presentation layer. Control traffic never
// produces one.
type Event interface {
	isEvent()
}

type StateChanged struct {
	State      State
	RetryCount int
	Remote     string
}

// MessageReceived reports the message now displayed. Queued counts the
// messages waiting behind it.
type MessageReceived struct {
	Remote string
	Seq    uint64
	Text   string
	Queued int
}

type MessageSent struct {
	Remote string
	Seq    uint64
	Text   string
}

type DeliveryConfirmed struct {
	Remote string
	Seq    uint64
}

type ErrorEvent struct {
	Kind   Kind
	Detail string
}

func (StateChanged) isEvent()      {}
func (MessageReceived) isEvent()   {}
func (MessageSent) isEvent()       {}
func (DeliveryConfirmed) isEvent() {}
func (ErrorEvent) isEvent()        {}

func errorEvent(err *Error) ErrorEvent {
	detail := err.Detail
	if err.Err != nil {
		if detail != "" {
			detail += ": "
		}
		detail += err.Err.Error()
	}
	return ErrorEvent{Kind: err.Kind, Detail: detail}
}
