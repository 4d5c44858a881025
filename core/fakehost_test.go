package core

import (
	"context"
	"fmt"
	"sync"

	"pkt.systems/termdock/schema"
)

// fakeHost is an in-memory ViewHost for controller tests.
type fakeHost struct {
	mu       sync.Mutex
	views    map[schema.ViewRef]*fakeView
	windows  map[schema.WindowRef]schema.ViewRef
	applied  []schema.LayoutToken
	focused  []schema.WindowRef
	captures int
	nextView int
	nextWin  int

	createErr error
	bindErr   error
}

type fakeView struct {
	tag      schema.ViewTag
	command  string
	name     string
	unlisted bool
	lines    []string
	exitFn   func()
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		views:   make(map[schema.ViewRef]*fakeView),
		windows: make(map[schema.WindowRef]schema.ViewRef),
	}
}

func (h *fakeHost) FindView(ctx context.Context, tag schema.ViewTag) (schema.ViewRef, bool, error) {
	_ = ctx
	h.mu.Lock()
	defer h.mu.Unlock()
	for ref, view := range h.views {
		if view.tag == tag {
			return ref, true, nil
		}
	}
	return "", false, nil
}

func (h *fakeHost) CreateProcessView(ctx context.Context, command string, tag schema.ViewTag) (schema.ViewRef, error) {
	_ = ctx
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.createErr != nil {
		return "", h.createErr
	}
	h.nextView++
	ref := schema.ViewRef(fmt.Sprintf("view-%d", h.nextView))
	h.views[ref] = &fakeView{tag: tag, command: command}
	return ref, nil
}

func (h *fakeHost) BindWindow(ctx context.Context, view schema.ViewRef) (schema.WindowRef, error) {
	_ = ctx
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.bindErr != nil {
		return "", h.bindErr
	}
	if _, ok := h.views[view]; !ok {
		return "", fmt.Errorf("bind: no such view %s", view)
	}
	h.nextWin++
	ref := schema.WindowRef(fmt.Sprintf("win-%d", h.nextWin))
	h.windows[ref] = view
	return ref, nil
}

func (h *fakeHost) CloseWindow(ctx context.Context, window schema.WindowRef) error {
	_ = ctx
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.windows, window)
	return nil
}

func (h *fakeHost) WindowValid(ctx context.Context, window schema.WindowRef) bool {
	_ = ctx
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.windows[window]
	return ok
}

func (h *fakeHost) ViewValid(ctx context.Context, view schema.ViewRef) bool {
	_ = ctx
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.views[view]
	return ok
}

func (h *fakeHost) SetViewName(ctx context.Context, view schema.ViewRef, name string) error {
	_ = ctx
	h.mu.Lock()
	defer h.mu.Unlock()
	if v := h.views[view]; v != nil {
		v.name = name
	}
	return nil
}

func (h *fakeHost) MarkUnlisted(ctx context.Context, view schema.ViewRef) error {
	_ = ctx
	h.mu.Lock()
	defer h.mu.Unlock()
	if v := h.views[view]; v != nil {
		v.unlisted = true
	}
	return nil
}

func (h *fakeHost) FocusInput(ctx context.Context, window schema.WindowRef) error {
	_ = ctx
	h.mu.Lock()
	defer h.mu.Unlock()
	h.focused = append(h.focused, window)
	return nil
}

func (h *fakeHost) CaptureLayout(ctx context.Context) (schema.LayoutToken, error) {
	_ = ctx
	h.mu.Lock()
	defer h.mu.Unlock()
	h.captures++
	return schema.LayoutToken(fmt.Sprintf("layout-%d", h.captures)), nil
}

func (h *fakeHost) ApplyLayout(ctx context.Context, token schema.LayoutToken) error {
	_ = ctx
	h.mu.Lock()
	defer h.mu.Unlock()
	h.applied = append(h.applied, token)
	return nil
}

func (h *fakeHost) ReadAllLines(ctx context.Context, view schema.ViewRef) ([]string, error) {
	_ = ctx
	h.mu.Lock()
	defer h.mu.Unlock()
	v := h.views[view]
	if v == nil {
		return nil, fmt.Errorf("read: no such view %s", view)
	}
	return append([]string(nil), v.lines...), nil
}

func (h *fakeHost) DeleteView(ctx context.Context, view schema.ViewRef) error {
	_ = ctx
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.views, view)
	return nil
}

func (h *fakeHost) WatchExit(view schema.ViewRef, fn func()) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if v := h.views[view]; v != nil {
		v.exitFn = fn
	}
	return nil
}

// setLines seeds the view's captured output.
func (h *fakeHost) setLines(view schema.ViewRef, lines []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if v := h.views[view]; v != nil {
		v.lines = lines
	}
}

// fireExit simulates the backing process terminating.
func (h *fakeHost) fireExit(view schema.ViewRef) {
	h.mu.Lock()
	var fn func()
	if v := h.views[view]; v != nil {
		fn = v.exitFn
		v.exitFn = nil
	}
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (h *fakeHost) viewCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.views)
}

func (h *fakeHost) windowCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.windows)
}

func (h *fakeHost) appliedLayouts() []schema.LayoutToken {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]schema.LayoutToken(nil), h.applied...)
}

func (h *fakeHost) view(ref schema.ViewRef) *fakeView {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.views[ref]
}

// recordingSink collects events emitted by the controller.
type recordingSink struct {
	mu      sync.Mutex
	events  []schema.SessionEvent
	outputs []schema.ExitOutputEvent
}

func (s *recordingSink) OnSessionEvent(event schema.SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) OnExitOutput(event schema.ExitOutputEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs = append(s.outputs, event)
}

func (s *recordingSink) eventTypes() []schema.SessionEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]schema.SessionEventType, 0, len(s.events))
	for _, event := range s.events {
		types = append(types, event.Type)
	}
	return types
}
