package core

import (
	"context"
	"testing"

	"pkt.systems/termdock/schema"
)

func TestExitWhileVisible(t *testing.T) {
	host := newFakeHost()
	sink := &recordingSink{}
	var captured [][]string
	ctrl := newTestController(t, host, sink, []SessionSpec{
		{Name: "shell", Command: "bash", OnExit: func(lines []string) {
			captured = append(captured, lines)
		}},
	})
	ctx := context.Background()

	resp, err := ctrl.Toggle(ctx, schema.ToggleRequest{Name: "shell"})
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	host.setLines(resp.Session.View, []string{"a", "b"})
	host.fireExit(resp.Session.View)

	snap := snapshotOf(t, ctrl, "shell")
	if snap.State != schema.StateIdle {
		t.Fatalf("expected idle after exit, got %s", snap.State)
	}
	if snap.View != "" || snap.Window != "" {
		t.Fatalf("handles not released: %+v", snap)
	}
	if host.viewCount() != 0 || host.windowCount() != 0 {
		t.Fatalf("host resources not released")
	}
	if len(captured) != 1 {
		t.Fatalf("exit callback fired %d times", len(captured))
	}
	if len(captured[0]) != 2 || captured[0][0] != "a" || captured[0][1] != "b" {
		t.Fatalf("unexpected captured output %v", captured[0])
	}
	applied := host.appliedLayouts()
	if len(applied) != 1 {
		t.Fatalf("layout not restored on exit, applied %v", applied)
	}
	if len(sink.outputs) != 1 || len(sink.outputs[0].Lines) != 2 {
		t.Fatalf("exit output not published: %+v", sink.outputs)
	}
}

func TestExitWhileHidden(t *testing.T) {
	host := newFakeHost()
	var calls int
	ctrl := newTestController(t, host, nil, []SessionSpec{
		{Name: "shell", Command: "bash", OnExit: func([]string) { calls++ }},
	})
	ctx := context.Background()

	resp, _ := ctrl.Toggle(ctx, schema.ToggleRequest{Name: "shell"})
	if _, err := ctrl.Toggle(ctx, schema.ToggleRequest{Name: "shell"}); err != nil {
		t.Fatalf("hide: %v", err)
	}
	host.fireExit(resp.Session.View)

	snap := snapshotOf(t, ctrl, "shell")
	if snap.State != schema.StateIdle {
		t.Fatalf("expected idle, got %s", snap.State)
	}
	if calls != 1 {
		t.Fatalf("exit callback fired %d times", calls)
	}
}

func TestUserHideNeverFiresExitCallback(t *testing.T) {
	host := newFakeHost()
	var calls int
	ctrl := newTestController(t, host, nil, []SessionSpec{
		{Name: "shell", Command: "bash", OnExit: func([]string) { calls++ }},
		{Name: "other", Command: "htop"},
	})
	ctx := context.Background()

	if _, err := ctrl.Toggle(ctx, schema.ToggleRequest{Name: "shell"}); err != nil {
		t.Fatalf("show: %v", err)
	}
	// Hide by toggling off, then hide again via another session raising.
	if _, err := ctrl.Toggle(ctx, schema.ToggleRequest{Name: "shell"}); err != nil {
		t.Fatalf("hide: %v", err)
	}
	if _, err := ctrl.Toggle(ctx, schema.ToggleRequest{Name: "shell"}); err != nil {
		t.Fatalf("reshow: %v", err)
	}
	if _, err := ctrl.Toggle(ctx, schema.ToggleRequest{Name: "other"}); err != nil {
		t.Fatalf("raise other: %v", err)
	}
	if calls != 0 {
		t.Fatalf("exit callback fired on user hide, calls=%d", calls)
	}
}

func TestReattachedViewExitIsDetected(t *testing.T) {
	host := newFakeHost()
	var calls int
	ctrl := newTestController(t, host, nil, []SessionSpec{
		{Name: "shell", Command: "bash", OnExit: func([]string) { calls++ }},
	})
	ctx := context.Background()

	// The view survives from a previous daemon run; the controller
	// adopts it on the first toggle instead of launching.
	pre, err := host.CreateProcessView(ctx, "bash", schema.DefaultViewTag("shell"))
	if err != nil {
		t.Fatalf("seed view: %v", err)
	}
	resp, err := ctrl.Toggle(ctx, schema.ToggleRequest{Name: "shell"})
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if resp.Launched || resp.Session.View != pre {
		t.Fatalf("expected reattach to %s, got %+v", pre, resp.Session)
	}

	host.fireExit(pre)

	snap := snapshotOf(t, ctrl, "shell")
	if snap.State != schema.StateIdle {
		t.Fatalf("exit undetected on adopted view, state %s", snap.State)
	}
	if calls != 1 {
		t.Fatalf("exit callback fired %d times", calls)
	}
	if host.viewCount() != 0 {
		t.Fatalf("adopted view not released after exit")
	}
}

func TestExitAfterTeardownIsIgnored(t *testing.T) {
	host := newFakeHost()
	var calls int
	ctrl := newTestController(t, host, nil, []SessionSpec{
		{Name: "shell", Command: "bash", OnExit: func([]string) { calls++ }},
	})
	ctx := context.Background()

	resp, _ := ctrl.Toggle(ctx, schema.ToggleRequest{Name: "shell"})
	impl := ctrl.(*controller)
	impl.handleExit("shell")
	// A second watcher firing for the same view must be a no-op.
	impl.handleExit("shell")
	impl.handleExit("unknown")

	if calls != 1 {
		t.Fatalf("exit callback fired %d times", calls)
	}
	_ = resp
}

func TestExitCallbackPanicDoesNotBlockTeardown(t *testing.T) {
	host := newFakeHost()
	ctrl := newTestController(t, host, nil, []SessionSpec{
		{Name: "shell", Command: "bash", OnExit: func([]string) { panic("boom") }},
	})
	ctx := context.Background()

	resp, _ := ctrl.Toggle(ctx, schema.ToggleRequest{Name: "shell"})
	host.fireExit(resp.Session.View)

	snap := snapshotOf(t, ctrl, "shell")
	if snap.State != schema.StateIdle {
		t.Fatalf("teardown incomplete after panicking callback: %s", snap.State)
	}
	// The controller must remain usable.
	if _, err := ctrl.Toggle(ctx, schema.ToggleRequest{Name: "shell"}); err != nil {
		t.Fatalf("toggle after panic: %v", err)
	}
}

func TestRelaunchAfterExit(t *testing.T) {
	host := newFakeHost()
	ctrl := newTestController(t, host, nil, []SessionSpec{
		{Name: "shell", Command: "bash"},
	})
	ctx := context.Background()

	first, _ := ctrl.Toggle(ctx, schema.ToggleRequest{Name: "shell"})
	host.fireExit(first.Session.View)

	second, err := ctrl.Toggle(ctx, schema.ToggleRequest{Name: "shell"})
	if err != nil {
		t.Fatalf("relaunch: %v", err)
	}
	if !second.Launched {
		t.Fatalf("expected fresh launch after exit")
	}
	if second.Session.View == first.Session.View {
		t.Fatalf("expected a new view handle after exit")
	}
	if second.Session.State != schema.StateVisible {
		t.Fatalf("expected visible, got %s", second.Session.State)
	}
}

func TestExitOutputIsCapped(t *testing.T) {
	lines := []string{"1", "2", "3", "4", "5"}
	capped := capLines(lines, 2)
	if len(capped) != 2 || capped[0] != "4" || capped[1] != "5" {
		t.Fatalf("expected tail, got %v", capped)
	}
	if got := capLines(lines, 0); len(got) != 5 {
		t.Fatalf("zero cap must keep all lines, got %v", got)
	}
	if got := capLines(lines, 10); len(got) != 5 {
		t.Fatalf("large cap must keep all lines, got %v", got)
	}
}

func TestDispatcherRecoversPanic(t *testing.T) {
	d := newDispatcher(nil)
	d.dispatch("shell", func([]string) { panic("boom") }, nil)
	d.dispatch("shell", nil, nil)
	// Reaching here means the panic did not propagate.
}
