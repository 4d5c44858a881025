package core

import "pkt.systems/termdock/schema"

// EventSink receives session lifecycle and exit output events from the
// controller.
type EventSink interface {
	OnSessionEvent(event schema.SessionEvent)
	OnExitOutput(event schema.ExitOutputEvent)
}
