package core

import (
	"context"

	"pkt.systems/pslog"
)

// layoutManager captures the window arrangement right before a session's
// view is shown and restores it when that view's window closes.
type layoutManager struct {
	host ViewHost
	log  pslog.Logger
}

// capture stores the current arrangement on the session record. Mutates
// the record only; a capture failure is logged and leaves no token, which
// restore tolerates.
func (m *layoutManager) capture(ctx context.Context, sess *session) {
	token, err := m.host.CaptureLayout(ctx)
	if err != nil {
		if m.log != nil {
			m.log.Warn("layout capture failed", "session", sess.Name, "err", err)
		}
		sess.SavedLayout = ""
		return
	}
	sess.SavedLayout = token
}

// restore re-applies the saved arrangement and consumes the token. A
// missing token is a tolerated no-op.
func (m *layoutManager) restore(ctx context.Context, sess *session) {
	if sess.SavedLayout == "" {
		if m.log != nil {
			m.log.Debug("layout restore skipped", "session", sess.Name, "reason", "no saved layout")
		}
		return
	}
	if err := m.host.ApplyLayout(ctx, sess.SavedLayout); err != nil && m.log != nil {
		m.log.Warn("layout restore failed", "session", sess.Name, "err", err)
	}
	sess.SavedLayout = ""
}
