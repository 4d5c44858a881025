package core

import (
	"context"

	"pkt.systems/termdock/schema"
)

// Controller is the transport-agnostic API for toggling and inspecting
// sessions.
type Controller interface {
	// Toggle shows the named session's view, hiding every other visible
	// session first, or hides it if it is currently visible. A session
	// whose command resolves to nothing is a silent no-op.
	Toggle(ctx context.Context, req schema.ToggleRequest) (schema.ToggleResponse, error)
	// List reports a snapshot of every registered session.
	List(ctx context.Context, req schema.ListSessionsRequest) (schema.ListSessionsResponse, error)
	// HideAll hides every visible session, keeping their processes alive.
	HideAll(ctx context.Context, req schema.HideAllRequest) (schema.HideAllResponse, error)
}
