// Package tmuxhost implements the view host contract on top of a tmux
// server. Views are windows in a detached dock session; showing a view
// links its window into the user-facing target session, hiding unlinks
// it while the window and its process stay alive in the dock.
package tmuxhost

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/termdock/core"
	"pkt.systems/termdock/schema"
)

// Config configures the tmux view host.
type Config struct {
	// Binary is the tmux executable, resolved via PATH when relative.
	Binary string
	// SocketName selects the tmux server. Empty uses the default server.
	SocketName string
	// DockSession is the detached session that owns all managed windows.
	DockSession string
	// TargetSession is the user-facing session windows are linked into.
	TargetSession string
	// PollInterval is the pane liveness polling cadence.
	PollInterval time.Duration
}

// NormalizeConfig fills zero values with defaults.
func NormalizeConfig(cfg Config) Config {
	if cfg.Binary == "" {
		cfg.Binary = "tmux"
	}
	if cfg.DockSession == "" {
		cfg.DockSession = "_termdock"
	}
	if cfg.TargetSession == "" {
		cfg.TargetSession = "main"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return cfg
}

// Host drives a tmux server. It implements core.ViewHost.
type Host struct {
	cfg Config
	log pslog.Logger
	run runFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type runFunc func(ctx context.Context, args ...string) (string, error)

// New constructs a Host. Call EnsureReady before first use and Close on
// shutdown to stop exit watchers.
func New(cfg Config, logger pslog.Logger) *Host {
	cfg = NormalizeConfig(cfg)
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Host{cfg: cfg, log: logger, ctx: ctx, cancel: cancel}
	h.run = h.execTmux
	return h
}

// Close stops all exit watchers and waits for them to finish.
func (h *Host) Close() {
	h.cancel()
	h.wg.Wait()
}

// EnsureReady verifies the tmux server is reachable and creates the dock
// and target sessions if missing.
func (h *Host) EnsureReady(ctx context.Context) error {
	if _, err := h.run(ctx, "-V"); err != nil {
		return core.NewHostError(core.HostErrorUnavailable, "version", fmt.Errorf("%w: %v", schema.ErrHostUnavailable, err))
	}
	if err := h.ensureSession(ctx, h.cfg.DockSession); err != nil {
		return err
	}
	// Dead panes must linger so exit output stays capturable.
	if _, err := h.run(ctx, "set-option", "-t", exact(h.cfg.DockSession), "remain-on-exit", "on"); err != nil {
		return core.NewHostError(core.HostErrorCommand, "remain-on-exit", err)
	}
	return h.ensureSession(ctx, h.cfg.TargetSession)
}

func (h *Host) ensureSession(ctx context.Context, name string) error {
	if _, err := h.run(ctx, "has-session", "-t", exact(name)); err == nil {
		return nil
	}
	if _, err := h.run(ctx, "new-session", "-d", "-s", name); err != nil {
		return core.NewHostError(core.HostErrorCommand, "new-session", err)
	}
	h.log.Debug("tmux session created", "session", name)
	return nil
}

// FindView locates a dock window by name.
func (h *Host) FindView(ctx context.Context, tag schema.ViewTag) (schema.ViewRef, bool, error) {
	out, err := h.run(ctx, "list-windows", "-t", exact(h.cfg.DockSession), "-F", "#{window_id}\t#{window_name}")
	if err != nil {
		return "", false, core.NewHostError(core.HostErrorCommand, "list-windows", err)
	}
	for _, line := range splitLines(out) {
		id, name, ok := strings.Cut(line, "\t")
		if ok && name == string(tag) {
			return schema.ViewRef(id), true, nil
		}
	}
	return "", false, nil
}

// CreateProcessView spawns command in a new detached dock window.
func (h *Host) CreateProcessView(ctx context.Context, command string, tag schema.ViewTag) (schema.ViewRef, error) {
	out, err := h.run(ctx, "new-window", "-d", "-P", "-F", "#{window_id}",
		"-t", exact(h.cfg.DockSession), "-n", string(tag), command)
	if err != nil {
		return "", core.NewHostError(core.HostErrorCommand, "new-window", err)
	}
	id := strings.TrimSpace(out)
	if id == "" {
		return "", core.NewHostError(core.HostErrorCommand, "new-window", fmt.Errorf("no window id reported"))
	}
	return schema.ViewRef(id), nil
}

// BindWindow links the dock window into the target session and selects it.
func (h *Host) BindWindow(ctx context.Context, view schema.ViewRef) (schema.WindowRef, error) {
	if _, err := h.run(ctx, "link-window", "-s", h.dockTarget(view), "-t", exact(h.cfg.TargetSession)); err != nil {
		return "", core.NewHostError(core.HostErrorCommand, "link-window", err)
	}
	window := schema.WindowRef(h.targetTarget(view))
	if _, err := h.run(ctx, "select-window", "-t", string(window)); err != nil {
		h.log.Warn("window select failed", "window", window, "err", err)
	}
	return window, nil
}

// CloseWindow unlinks the window from the target session. The dock link
// keeps the window and its process alive.
func (h *Host) CloseWindow(ctx context.Context, window schema.WindowRef) error {
	if _, err := h.run(ctx, "unlink-window", "-t", string(window)); err != nil {
		return core.NewHostError(core.HostErrorCommand, "unlink-window", err)
	}
	return nil
}

// WindowValid reports whether the window is still linked in the target
// session.
func (h *Host) WindowValid(ctx context.Context, window schema.WindowRef) bool {
	_, id, ok := strings.Cut(string(window), ":")
	if !ok {
		return false
	}
	out, err := h.run(ctx, "list-windows", "-t", exact(h.cfg.TargetSession), "-F", "#{window_id}")
	if err != nil {
		return false
	}
	for _, line := range splitLines(out) {
		if line == id {
			return true
		}
	}
	return false
}

// ViewValid reports whether the dock window still exists.
func (h *Host) ViewValid(ctx context.Context, view schema.ViewRef) bool {
	out, err := h.run(ctx, "list-windows", "-t", exact(h.cfg.DockSession), "-F", "#{window_id}")
	if err != nil {
		return false
	}
	for _, line := range splitLines(out) {
		if line == string(view) {
			return true
		}
	}
	return false
}

// SetViewName renames the dock window.
func (h *Host) SetViewName(ctx context.Context, view schema.ViewRef, name string) error {
	if _, err := h.run(ctx, "rename-window", "-t", h.dockTarget(view), name); err != nil {
		return core.NewHostError(core.HostErrorCommand, "rename-window", err)
	}
	return nil
}

// MarkUnlisted pins the window name and tags the window as managed so it
// does not get renamed or mistaken for a user window.
func (h *Host) MarkUnlisted(ctx context.Context, view schema.ViewRef) error {
	if _, err := h.run(ctx, "set-option", "-w", "-t", h.dockTarget(view), "automatic-rename", "off"); err != nil {
		return core.NewHostError(core.HostErrorCommand, "set-option", err)
	}
	if _, err := h.run(ctx, "set-option", "-w", "-t", h.dockTarget(view), "@termdock_managed", "1"); err != nil {
		h.log.Debug("managed marker set failed", "view", view, "err", err)
	}
	return nil
}

// FocusInput selects the window in the target session.
func (h *Host) FocusInput(ctx context.Context, window schema.WindowRef) error {
	if _, err := h.run(ctx, "select-window", "-t", string(window)); err != nil {
		return core.NewHostError(core.HostErrorCommand, "select-window", err)
	}
	return nil
}

// CaptureLayout records which target-session window is currently active.
func (h *Host) CaptureLayout(ctx context.Context) (schema.LayoutToken, error) {
	out, err := h.run(ctx, "display-message", "-p", "-t", exact(h.cfg.TargetSession), "#{window_id}")
	if err != nil {
		return "", core.NewHostError(core.HostErrorCommand, "display-message", err)
	}
	return schema.LayoutToken(strings.TrimSpace(out)), nil
}

// ApplyLayout reselects the recorded window. A vanished window is not an
// error worth surfacing; the caller logs and moves on.
func (h *Host) ApplyLayout(ctx context.Context, token schema.LayoutToken) error {
	if token == "" {
		return nil
	}
	target := fmt.Sprintf("%s:%s", exact(h.cfg.TargetSession), token)
	if _, err := h.run(ctx, "select-window", "-t", target); err != nil {
		return core.NewHostError(core.HostErrorCommand, "select-window", err)
	}
	return nil
}

// ReadAllLines captures the dock window's full scrollback.
func (h *Host) ReadAllLines(ctx context.Context, view schema.ViewRef) ([]string, error) {
	out, err := h.run(ctx, "capture-pane", "-p", "-t", h.dockTarget(view), "-S", "-")
	if err != nil {
		return nil, core.NewHostError(core.HostErrorCommand, "capture-pane", err)
	}
	lines := strings.Split(out, "\n")
	// capture-pane pads the viewport with trailing blank lines.
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines, nil
}

// DeleteView kills the dock window.
func (h *Host) DeleteView(ctx context.Context, view schema.ViewRef) error {
	if _, err := h.run(ctx, "kill-window", "-t", h.dockTarget(view)); err != nil {
		return core.NewHostError(core.HostErrorCommand, "kill-window", err)
	}
	return nil
}

func (h *Host) dockTarget(view schema.ViewRef) string {
	return fmt.Sprintf("%s:%s", exact(h.cfg.DockSession), view)
}

func (h *Host) targetTarget(view schema.ViewRef) string {
	return fmt.Sprintf("%s:%s", exact(h.cfg.TargetSession), view)
}

// exact prefixes a session name so tmux matches it exactly instead of by
// prefix.
func exact(session string) string {
	return "=" + session
}

func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
