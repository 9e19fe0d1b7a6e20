package bt

import "time"

// Kind enumerates the lifecycle points at which a Node emits an Event.
type Kind int

const (
	Initialized Kind = iota
	Setup
	Entering
	Exiting
	StatusChanged
	Shutdown
	ErrorEvent
)

func (k Kind) String() string {
	switch k {
	case Initialized:
		return "INITIALIZED"
	case Setup:
		return "SETUP"
	case Entering:
		return "ENTERING"
	case Exiting:
		return "EXITING"
	case StatusChanged:
		return "STATUS_CHANGED"
	case Shutdown:
		return "SHUTDOWN"
	case ErrorEvent:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event carries a single lifecycle occurrence for a Node.
type Event struct {
	Kind      Kind
	NodeID    string
	NodeName  string
	Timestamp time.Time
	Payload   any
}

// Observer receives Events. An Observer that panics is recovered and
// logged by the emitter; a failing observer never affects tick semantics.
type Observer func(Event)

// bus fans Events out to registered Observers, invoked synchronously in
// registration order.
type bus struct {
	observers []Observer
}

func (b *bus) Subscribe(o Observer) {
	if o == nil {
		return
	}
	b.observers = append(b.observers, o)
}

func (b *bus) Emit(e Event) {
	for _, o := range b.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger().Error("event observer panicked",
						"kind", e.Kind.String(), "node", e.NodeName, "recover", r)
				}
			}()
			o(e)
		}()
	}
}
