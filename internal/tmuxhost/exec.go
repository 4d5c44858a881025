package tmuxhost

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"pkt.systems/termdock/core"
)

// execTmux runs the tmux binary against the configured server.
func (h *Host) execTmux(ctx context.Context, args ...string) (string, error) {
	full := args
	if h.cfg.SocketName != "" {
		full = append([]string{"-L", h.cfg.SocketName}, args...)
	}
	log := h.log.With("args", strings.Join(full, " "))
	log.Trace("tmux run start")
	cmd := exec.CommandContext(ctx, h.cfg.Binary, full...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		preview := strings.TrimSpace(string(output))
		truncated := false
		if len(preview) > 200 {
			preview = preview[:200]
			truncated = true
		}
		log.Trace("tmux run failed", "err", err, "output", preview, "truncated", truncated)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return string(output), core.NewHostError(core.HostErrorTimeout, args[0], fmt.Errorf("tmux %s timed out: %w", args[0], ctx.Err()))
		}
		return string(output), fmt.Errorf("tmux %s failed: %w (%s)", args[0], err, strings.TrimSpace(string(output)))
	}
	log.Trace("tmux run ok", "output_len", len(output))
	return string(output), nil
}
