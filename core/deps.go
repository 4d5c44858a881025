package core

import "pkt.systems/pslog"

// ControllerDeps captures dependencies for the session controller. Host is
// required; the rest are optional.
type ControllerDeps struct {
	Host      ViewHost
	EventSink EventSink
	Logger    pslog.Logger
}
