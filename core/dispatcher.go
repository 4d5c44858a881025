package core

import (
	"pkt.systems/pslog"
	"pkt.systems/termdock/schema"
)

// dispatcher delivers captured exit output to a session's OnExit callback.
// Invoked only from the process-exit transition. A panicking callback is
// recovered and reported; it never reaches the state machine.
type dispatcher struct {
	log pslog.Logger
}

func newDispatcher(log pslog.Logger) *dispatcher {
	return &dispatcher{log: log}
}

func (d *dispatcher) dispatch(name schema.SessionName, fn func([]string), lines []string) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && d.log != nil {
			d.log.Error("exit callback failed", "session", name, "panic", r)
		}
	}()
	fn(lines)
}
