package schema

// SessionState describes the lifecycle state of a session, derived from
// which host handles are currently bound.
type SessionState string

const (
	// StateIdle indicates no process or view exists for the session.
	StateIdle SessionState = "idle"
	// StateHidden indicates the session's process is running with no
	// window showing its view.
	StateHidden SessionState = "hidden"
	// StateVisible indicates the session's view is displayed in a window.
	StateVisible SessionState = "visible"
)

// SessionSnapshot is a read-only view of session state for transports.
type SessionSnapshot struct {
	Name    SessionName
	ViewTag ViewTag
	State   SessionState
	View    ViewRef
	Window  WindowRef
}
