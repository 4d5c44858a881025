package schema

import "strings"

// ValidateSessionName ensures a session name matches [a-z0-9._-] with no
// normalization applied.
func ValidateSessionName(name SessionName) error {
	raw := string(name)
	if raw == "" {
		return ErrInvalidSessionName
	}
	if strings.TrimSpace(raw) != raw {
		return ErrInvalidSessionName
	}
	for _, r := range raw {
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r >= '0' && r <= '9' {
			continue
		}
		if r == '.' || r == '_' || r == '-' {
			continue
		}
		return ErrInvalidSessionName
	}
	return nil
}

// DefaultViewTag derives the view tag for a session that did not configure
// one explicitly.
func DefaultViewTag(name SessionName) ViewTag {
	return ViewTag("dock-" + string(name))
}
