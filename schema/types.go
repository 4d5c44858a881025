package schema

// SessionName identifies a configured session; unique key into the registry.
type SessionName string

// ViewTag is the stable string used to name and locate a session's view
// across daemon restarts within the same host lifetime.
type ViewTag string

// ViewRef is an opaque host handle to a process-backed view.
type ViewRef string

// WindowRef is an opaque host handle to an on-screen window displaying a view.
type WindowRef string

// LayoutToken is an opaque snapshot of the host's window arrangement,
// restorable verbatim.
type LayoutToken string
