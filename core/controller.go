package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/termdock/internal/logx"
	"pkt.systems/termdock/schema"
)

// controller implements the session lifecycle state machine. It is the
// sole mutator of session records; a single mutex serializes every
// {read state, decide transition, mutate state} sequence, including the
// asynchronous process-exit transition, so closeOthers always observes a
// consistent snapshot of all sessions' window handles.
type controller struct {
	cfg      schema.ControllerConfig
	host     ViewHost
	reg      *registry
	layout   *layoutManager
	dispatch *dispatcher
	sink     EventSink
	logger   pslog.Logger
	mu       sync.Mutex
}

// NewController constructs the session controller from the configured
// session specs.
func NewController(cfg schema.ControllerConfig, specs []SessionSpec, deps ControllerDeps) (Controller, error) {
	if deps.Host == nil {
		return nil, errors.New("view host is required")
	}
	cfg = schema.NormalizeControllerConfig(cfg)
	reg, err := newRegistry(specs)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &controller{
		cfg:      cfg,
		host:     deps.Host,
		reg:      reg,
		layout:   &layoutManager{host: deps.Host, log: logger},
		dispatch: newDispatcher(logger),
		sink:     deps.EventSink,
		logger:   logger,
	}, nil
}

func (c *controller) Toggle(ctx context.Context, req schema.ToggleRequest) (schema.ToggleResponse, error) {
	if ctx == nil {
		return schema.ToggleResponse{}, errors.New("missing context")
	}
	log := logx.WithSession(ctx, req.Name)

	c.mu.Lock()
	sess, err := c.reg.get(req.Name)
	if err != nil {
		c.mu.Unlock()
		log.Warn("session toggle failed", "err", err)
		return schema.ToggleResponse{}, err
	}
	if !c.cfg.DisableAuditLogging {
		log.Debug("audit toggle", "state", sess.State(), "view_tag", sess.ViewTag)
	}

	var events []schema.SessionEvent

	if sess.Window != "" {
		// Running-Visible: user-initiated hide. The process stays alive
		// and no exit callback fires.
		c.hideLocked(ctx, log, sess)
		events = append(events, schema.SessionEvent{Type: schema.SessionHidden, Session: sess.Snapshot()})
		resp := schema.ToggleResponse{Session: sess.Snapshot()}
		c.mu.Unlock()
		c.emitEvents(events)
		log.Info("session hidden")
		return resp, nil
	}

	// Show path. Hiding the others runs before the launch-abort check;
	// an aborted launch does not undo hides already performed.
	events = append(events, c.closeOthersLocked(ctx, req.Name)...)
	c.layout.capture(ctx, sess)

	launched := false
	prior := sess.View
	view, found, ferr := c.host.FindView(ctx, sess.ViewTag)
	if ferr != nil {
		log.Warn("view lookup failed", "err", ferr)
		found = false
	}
	switch {
	case found:
		sess.View = view
	case sess.View != "" && !c.host.ViewValid(ctx, sess.View):
		log.Warn("stale view handle dropped", "view", sess.View)
		sess.View = ""
	}
	if sess.View != "" && sess.View != prior {
		// Adopted a view that outlived this controller, e.g. after a
		// daemon restart. Its exit is not being watched yet.
		name := sess.Name
		if err := c.host.WatchExit(sess.View, func() { c.handleExit(name) }); err != nil {
			log.Warn("exit watch registration failed", "err", err)
		}
	}

	if sess.View == "" {
		command := sess.resolveLaunch()
		if command == "" {
			resp := schema.ToggleResponse{Session: sess.Snapshot()}
			c.mu.Unlock()
			c.emitEvents(events)
			log.Warn("session launch skipped", "err", schema.ErrNoCommand)
			return resp, nil
		}
		created, err := c.host.CreateProcessView(ctx, command, sess.ViewTag)
		if err != nil {
			c.mu.Unlock()
			c.emitEvents(events)
			log.Error("session launch failed", "err", err)
			return schema.ToggleResponse{}, fmt.Errorf("launch %s: %w", req.Name, err)
		}
		if err := c.host.SetViewName(ctx, created, string(sess.ViewTag)); err != nil {
			log.Warn("view name set failed", "err", err)
		}
		if err := c.host.MarkUnlisted(ctx, created); err != nil {
			log.Warn("view unlist failed", "err", err)
		}
		name := sess.Name
		if err := c.host.WatchExit(created, func() { c.handleExit(name) }); err != nil {
			log.Warn("exit watch registration failed", "err", err)
		}
		sess.View = created
		launched = true
		events = append(events, schema.SessionEvent{Type: schema.SessionLaunched, Session: sess.Snapshot()})
	}

	window, err := c.host.BindWindow(ctx, sess.View)
	if err != nil {
		c.mu.Unlock()
		c.emitEvents(events)
		log.Error("window bind failed", "err", err)
		return schema.ToggleResponse{}, fmt.Errorf("show %s: %w", req.Name, err)
	}
	sess.Window = window
	sess.Exited = false
	if err := c.host.FocusInput(ctx, window); err != nil {
		log.Warn("input focus failed", "err", err)
	}
	events = append(events, schema.SessionEvent{Type: schema.SessionShown, Session: sess.Snapshot()})
	resp := schema.ToggleResponse{Session: sess.Snapshot(), Launched: launched}
	c.mu.Unlock()
	c.emitEvents(events)
	log.Info("session shown", "launched", launched)
	return resp, nil
}

func (c *controller) List(ctx context.Context, req schema.ListSessionsRequest) (schema.ListSessionsResponse, error) {
	_ = req
	log := logx.Ctx(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	resp := schema.ListSessionsResponse{}
	c.reg.forEach(func(sess *session) {
		resp.Sessions = append(resp.Sessions, sess.Snapshot())
	})
	log.Trace("sessions listed", "count", len(resp.Sessions))
	return resp, nil
}

func (c *controller) HideAll(ctx context.Context, req schema.HideAllRequest) (schema.HideAllResponse, error) {
	_ = req
	if ctx == nil {
		return schema.HideAllResponse{}, errors.New("missing context")
	}
	log := logx.Ctx(ctx)
	c.mu.Lock()
	events := c.closeOthersLocked(ctx, "")
	resp := schema.HideAllResponse{Hidden: len(events)}
	c.mu.Unlock()
	c.emitEvents(events)
	if resp.Hidden > 0 {
		log.Info("sessions hidden", "count", resp.Hidden)
	}
	return resp, nil
}

// hideLocked performs the user-initiated close-window transition: close
// the window, restore the layout, clear the window handle, keep the view.
// Callers hold c.mu.
func (c *controller) hideLocked(ctx context.Context, log pslog.Logger, sess *session) {
	if sess.Window != "" {
		if c.host.WindowValid(ctx, sess.Window) {
			if err := c.host.CloseWindow(ctx, sess.Window); err != nil {
				log.Warn("window close failed", "err", err)
			}
		}
		c.layout.restore(ctx, sess)
		sess.Window = ""
	}
	sess.Exited = false
}

// closeOthersLocked hides every visible session except the named one,
// always via the non-exit close path: other sessions' processes are never
// killed because a different session was raised. Callers hold c.mu.
func (c *controller) closeOthersLocked(ctx context.Context, except schema.SessionName) []schema.SessionEvent {
	var events []schema.SessionEvent
	c.reg.forEach(func(other *session) {
		if other.Name == except || other.Window == "" {
			return
		}
		log := c.logger.With("session", other.Name)
		c.hideLocked(ctx, log, other)
		log.Info("session hidden", "reason", "another session raised")
		events = append(events, schema.SessionEvent{Type: schema.SessionHidden, Session: other.Snapshot()})
	})
	return events
}

// handleExit is the process-exit transition, fired by the host's exit
// watcher. It captures the view's output, closes the window if still
// open, tears the view down, and dispatches the exit callback exactly
// once. Teardown is never blocked by the callback: all state mutation
// completes before the dispatcher runs.
func (c *controller) handleExit(name schema.SessionName) {
	log := c.logger.With("session", name)
	ctx := logx.ContextWithSessionLogger(context.Background(), log, name)

	c.mu.Lock()
	sess, err := c.reg.get(name)
	if err != nil {
		c.mu.Unlock()
		log.Warn("exit ignored", "err", err)
		return
	}
	if sess.View == "" {
		// Watcher fired after teardown already completed.
		c.mu.Unlock()
		log.Debug("exit ignored", "reason", "view already released")
		return
	}

	lines, rerr := c.host.ReadAllLines(ctx, sess.View)
	if rerr != nil {
		log.Warn("exit output capture failed", "err", rerr)
	}
	lines = capLines(lines, c.cfg.CaptureMaxLines)

	if sess.Window != "" {
		if c.host.WindowValid(ctx, sess.Window) {
			if err := c.host.CloseWindow(ctx, sess.Window); err != nil {
				log.Warn("window close failed", "err", err)
			}
		}
		c.layout.restore(ctx, sess)
		sess.Window = ""
	}
	sess.Exited = true
	if err := c.host.DeleteView(ctx, sess.View); err != nil {
		log.Warn("view delete failed", "err", err)
	}
	sess.View = ""
	onExit := sess.OnExit
	snap := sess.Snapshot()
	c.mu.Unlock()

	c.dispatch.dispatch(name, onExit, lines)
	c.emitEvents([]schema.SessionEvent{{Type: schema.SessionExited, Session: snap}})
	if c.sink != nil {
		c.sink.OnExitOutput(schema.ExitOutputEvent{Name: name, Lines: lines})
	}
	log.Info("session exited", "captured_lines", len(lines))
}

func (c *controller) emitEvents(events []schema.SessionEvent) {
	if c.sink == nil {
		return
	}
	for _, event := range events {
		c.sink.OnSessionEvent(event)
	}
}

// capLines keeps the most recent max lines, mirroring scrollback trim
// behavior: the tail is what the exit callback cares about.
func capLines(lines []string, max int) []string {
	if max <= 0 || len(lines) <= max {
		return lines
	}
	return lines[len(lines)-max:]
}
