package command

import (
	"strings"
)

// Command represents a parsed control command line.
type Command struct {
	Name string
	Args []string
	Raw  string
}

// Parse parses a control line. A leading "/" is accepted and ignored so
// the same syntax works in the interactive prompt and in exec mode.
func Parse(input string) (Command, bool) {
	raw := strings.TrimSpace(input)
	raw = strings.TrimPrefix(raw, "/")
	if raw == "" {
		return Command{}, false
	}
	fields := strings.Fields(raw)
	name := strings.ToLower(fields[0])
	args := []string{}
	if len(fields) > 1 {
		args = fields[1:]
	}
	return Command{
		Name: name,
		Args: args,
		Raw:  raw,
	}, true
}

func remainderAfterTokens(raw string, count int) string {
	i := 0
	remaining := count
	for remaining > 0 && i < len(raw) {
		for i < len(raw) && isSpace(raw[i]) {
			i++
		}
		for i < len(raw) && !isSpace(raw[i]) {
			i++
		}
		remaining--
	}
	if i >= len(raw) {
		return ""
	}
	return strings.TrimSpace(raw[i:])
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
