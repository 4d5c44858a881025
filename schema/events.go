package schema

// SessionEventType describes session lifecycle changes.
type SessionEventType string

const (
	// SessionLaunched indicates a new process view was created.
	SessionLaunched SessionEventType = "launched"
	// SessionShown indicates a session's view became visible.
	SessionShown SessionEventType = "shown"
	// SessionHidden indicates a session's view was hidden by a toggle,
	// with the process kept alive.
	SessionHidden SessionEventType = "hidden"
	// SessionExited indicates the session's process terminated and the
	// view was torn down.
	SessionExited SessionEventType = "exited"
)

// SessionEvent represents a change to a session's lifecycle state.
type SessionEvent struct {
	Type    SessionEventType
	Session SessionSnapshot
}

// ExitOutputEvent carries the output captured from a session's view when
// its process exited. Emitted once per natural exit.
type ExitOutputEvent struct {
	Name  SessionName
	Lines []string
}
