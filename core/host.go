package core

import (
	"context"

	"pkt.systems/termdock/schema"
)

// ViewHost is the adapter contract the controller requires from the host
// that owns views and windows. Operations against handles the host no
// longer knows about must degrade to no-ops; the validity checks gate
// every mutation.
type ViewHost interface {
	// FindView locates an existing view by its tag.
	FindView(ctx context.Context, tag schema.ViewTag) (schema.ViewRef, bool, error)
	// CreateProcessView spawns command attached to a new view tagged tag.
	CreateProcessView(ctx context.Context, command string, tag schema.ViewTag) (schema.ViewRef, error)
	// BindWindow attaches a window displaying the view and returns its handle.
	BindWindow(ctx context.Context, view schema.ViewRef) (schema.WindowRef, error)
	// CloseWindow closes the window, leaving the view and its process alive.
	CloseWindow(ctx context.Context, window schema.WindowRef) error
	// WindowValid reports whether the window handle still refers to an
	// open window.
	WindowValid(ctx context.Context, window schema.WindowRef) bool
	// ViewValid reports whether the view handle still refers to a view.
	ViewValid(ctx context.Context, view schema.ViewRef) bool
	// SetViewName names the view so FindView can locate it later.
	SetViewName(ctx context.Context, view schema.ViewRef, name string) error
	// MarkUnlisted hides the view from the host's view browser.
	MarkUnlisted(ctx context.Context, view schema.ViewRef) error
	// FocusInput places input focus on the window.
	FocusInput(ctx context.Context, window schema.WindowRef) error
	// CaptureLayout snapshots the current window arrangement.
	CaptureLayout(ctx context.Context) (schema.LayoutToken, error)
	// ApplyLayout restores a previously captured arrangement.
	ApplyLayout(ctx context.Context, token schema.LayoutToken) error
	// ReadAllLines returns the view's full captured output.
	ReadAllLines(ctx context.Context, view schema.ViewRef) ([]string, error)
	// DeleteView destroys the view and releases its process resources.
	DeleteView(ctx context.Context, view schema.ViewRef) error
	// WatchExit registers a one-shot callback fired when the process
	// backing the view terminates.
	WatchExit(view schema.ViewRef, fn func()) error
}
