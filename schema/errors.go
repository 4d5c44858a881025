package schema

import "errors"

var (
	// ErrInvalidSessionName indicates a session name is malformed.
	ErrInvalidSessionName = errors.New("invalid session name")
	// ErrUnknownSession indicates the requested session is not registered.
	ErrUnknownSession = errors.New("unknown session")
	// ErrDuplicateSession indicates two configured sessions share a name.
	ErrDuplicateSession = errors.New("duplicate session name")
	// ErrNoSessions indicates no sessions are configured.
	ErrNoSessions = errors.New("no sessions configured")
	// ErrNoCommand marks the silent launch-abort path: the pre-launch
	// transform resolved to an empty command. Never surfaced to callers.
	ErrNoCommand = errors.New("no launch command")
	// ErrHostUnavailable indicates the view host rejected or cannot serve
	// a request.
	ErrHostUnavailable = errors.New("view host unavailable")
)
