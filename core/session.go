package core

import (
	"strings"

	"pkt.systems/termdock/schema"
)

// SessionSpec describes one configured session consumed at setup.
type SessionSpec struct {
	Name    schema.SessionName
	Command string
	ViewTag schema.ViewTag
	// OnExit is invoked once per natural exit with the captured output.
	OnExit func(lines []string)
	// OnBeforeLaunch transforms the command once, at first launch only.
	OnBeforeLaunch func(command string) string
}

// session tracks the state of a single configured session. Only the
// controller mutates it, under the controller mutex.
type session struct {
	Name        schema.SessionName
	LaunchSpec  string
	ViewTag     schema.ViewTag
	View        schema.ViewRef
	Window      schema.WindowRef
	SavedLayout schema.LayoutToken
	Exited      bool
	OnExit      func(lines []string)

	onBeforeLaunch func(string) string
	launchResolved bool
}

// State derives the lifecycle state from the bound handles.
func (s *session) State() schema.SessionState {
	switch {
	case s.View == "":
		return schema.StateIdle
	case s.Window == "":
		return schema.StateHidden
	default:
		return schema.StateVisible
	}
}

// Snapshot returns a transport-friendly view of the session.
func (s *session) Snapshot() schema.SessionSnapshot {
	return schema.SessionSnapshot{
		Name:    s.Name,
		ViewTag: s.ViewTag,
		State:   s.State(),
		View:    s.View,
		Window:  s.Window,
	}
}

// resolveLaunch applies the pre-launch transform on first use and returns
// the command to spawn. The transform runs at most once for the session's
// lifetime; an empty result sticks.
func (s *session) resolveLaunch() string {
	if !s.launchResolved {
		s.launchResolved = true
		if s.onBeforeLaunch != nil {
			s.LaunchSpec = s.onBeforeLaunch(s.LaunchSpec)
		}
	}
	return strings.TrimSpace(s.LaunchSpec)
}
