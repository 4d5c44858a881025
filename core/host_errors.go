package core

import "fmt"

// HostErrorKind classifies view host failures for user-facing hints.
type HostErrorKind string

const (
	// HostErrorUnknown is an uncategorized host failure.
	HostErrorUnknown HostErrorKind = "unknown"
	// HostErrorUnavailable indicates the host is unreachable.
	HostErrorUnavailable HostErrorKind = "unavailable"
	// HostErrorCommand indicates a host command failed.
	HostErrorCommand HostErrorKind = "command"
	// HostErrorTimeout indicates a host command timed out.
	HostErrorTimeout HostErrorKind = "timeout"
)

// HostError wraps view host failures with a stable classification.
type HostError struct {
	Kind    HostErrorKind
	Op      string
	Message string
	Err     error
}

// NewHostError constructs a classified host error.
func NewHostError(kind HostErrorKind, op string, err error) *HostError {
	return &HostError{Kind: kind, Op: op, Err: err}
}

func (e *HostError) Error() string {
	if e == nil {
		return "host error"
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("host %s failed", e.Op)
	}
	return "host error"
}

func (e *HostError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
