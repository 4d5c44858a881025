package tmuxhost

import (
	"context"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"pkt.systems/termdock/schema"
)

// WatchExit polls the view's pane until the process behind it terminates,
// then fires fn exactly once. The watcher stops silently when the view
// disappears without a detected death, e.g. after the controller tears it
// down, or when the host is closed.
func (h *Host) WatchExit(view schema.ViewRef, fn func()) error {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		log := h.log.With("view", view)
		ticker := time.NewTicker(h.cfg.PollInterval)
		defer ticker.Stop()
		misses := 0
		for {
			select {
			case <-h.ctx.Done():
				return
			case <-ticker.C:
			}
			dead, gone := h.probePane(h.ctx, view)
			switch {
			case dead:
				log.Debug("pane death detected")
				fn()
				return
			case gone:
				misses++
				// One transient query failure is tolerated; the server may
				// be busy. Two in a row means the window is gone.
				if misses >= 2 {
					log.Debug("exit watch stopped", "reason", "view gone")
					return
				}
			default:
				misses = 0
			}
		}
	}()
	return nil
}

// probePane reports (dead, gone). dead means the pane's process exited;
// gone means the pane could not be queried at all.
func (h *Host) probePane(ctx context.Context, view schema.ViewRef) (bool, bool) {
	out, err := h.run(ctx, "display-message", "-p", "-t", h.dockTarget(view), "#{pane_dead}\t#{pane_pid}")
	if err != nil {
		return false, true
	}
	deadStr, pidStr, _ := strings.Cut(strings.TrimSpace(out), "\t")
	if deadStr == "1" {
		return true, false
	}
	// Cross-check the pane PID. remain-on-exit keeps the pane around, but
	// a wedged server can lag on pane_dead; signal 0 probes the process
	// directly.
	if pid, perr := strconv.Atoi(strings.TrimSpace(pidStr)); perr == nil && pid > 0 {
		if kerr := unix.Kill(pid, 0); kerr == unix.ESRCH {
			return true, false
		}
	}
	return false, false
}
