package gossip

import "gossipnode/internal/protocol"

// EventKind identifies the source of an Event.
type EventKind int

const (
	External EventKind = iota
	GossipTick
	EndOfInput
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	switch k {
	case External:
		return "EXTERNAL"
	case GossipTick:
		return "GOSSIP_TICK"
	case EndOfInput:
		return "END_OF_INPUT"
	default:
		return "UNKNOWN"
	}
}

// Event is one item on the control loop's queue.
type Event struct {
	Kind EventKind

	// Message is set for External events.
	Message protocol.Message

	// Err is set on an EndOfInput event when input stopped because of a
	// failure rather than a clean end of stream.
	Err error
}
