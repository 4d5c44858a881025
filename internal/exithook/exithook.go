// Package exithook runs a configured shell command when a session's
// process exits, feeding the captured terminal output on stdin.
package exithook

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/termdock/schema"
)

// DefaultTimeout bounds hook execution.
const DefaultTimeout = 30 * time.Second

// Runner executes exit hooks.
type Runner struct {
	log     pslog.Logger
	timeout time.Duration
}

// New constructs a Runner.
func New(logger pslog.Logger) *Runner {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Runner{log: logger, timeout: DefaultTimeout}
}

// Run executes the hook command via the shell with the captured lines on
// stdin. Hook failures are logged, never propagated; a failing hook must
// not disturb session teardown.
func (r *Runner) Run(name schema.SessionName, command string, lines []string) {
	command = strings.TrimSpace(command)
	if command == "" {
		return
	}
	log := r.log.With("session", name, "hook", command)
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdin = strings.NewReader(joinLines(lines))
	output, err := cmd.CombinedOutput()
	if err != nil {
		preview := strings.TrimSpace(string(output))
		if len(preview) > 200 {
			preview = preview[:200]
		}
		log.Warn("exit hook failed", "err", err, "output", preview)
		return
	}
	log.Debug("exit hook ok", "output_len", len(output))
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
