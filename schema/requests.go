package schema

// ToggleRequest asks the controller to show or hide one session's view.
type ToggleRequest struct {
	Name SessionName
}

// ToggleResponse reports the session state after the toggle completed.
// Launched reports whether a new process view was created by this call.
type ToggleResponse struct {
	Session  SessionSnapshot
	Launched bool
}

// ListSessionsRequest asks for a snapshot of every registered session.
type ListSessionsRequest struct{}

// ListSessionsResponse reports all sessions in registration order.
type ListSessionsResponse struct {
	Sessions []SessionSnapshot
}

// HideAllRequest asks the controller to hide every visible session.
type HideAllRequest struct{}

// HideAllResponse reports how many sessions were hidden.
type HideAllResponse struct {
	Hidden int
}
