package main

import (
	"context"
	"errors"
	"fmt"

	wailsrt "github.com/wailsapp/wails/v2/pkg/runtime"

	"codexmonitor/internal/backend"
	"codexmonitor/internal/refresh"
	"codexmonitor/internal/workspace"
)

// Frontend events carrying native window focus changes
var windowEventNames = map[string]string{
	refresh.WindowEventFocus: "window:focus",
	refresh.WindowEventBlur:  "window:blur",
}

// wailsWindowEvents adapts Wails runtime events to refresh.WindowEventSource
type wailsWindowEvents struct {
	ctx context.Context
}

func newWailsWindowEvents(ctx context.Context) *wailsWindowEvents {
	return &wailsWindowEvents{ctx: ctx}
}

// Listen registers handler for a native window event
func (w *wailsWindowEvents) Listen(event string, handler func()) (func(), error) {
	name, ok := windowEventNames[event]
	if !ok {
		return nil, fmt.Errorf("unsupported window event %q", event)
	}
	if w.ctx == nil {
		return nil, errors.New("wails runtime not started")
	}
	return wailsrt.EventsOn(w.ctx, name, func(...interface{}) { handler() }), nil
}

// =============================================================================
// WINDOW METHODS (Bound to frontend)
// =============================================================================

// WindowFocused reports that the window gained focus
func (a *App) WindowFocused() {
	if a.refresh != nil {
		a.refresh.FocusGained()
	}
}

// WindowBlurred reports that the window lost focus
func (a *App) WindowBlurred() {
	if a.refresh != nil {
		a.refresh.FocusLost()
	}
}

// WindowVisibilityChanged reports document visibility changes
func (a *App) WindowVisibilityChanged(visible bool) {
	if a.refresh != nil {
		a.refresh.VisibilityChanged(visible)
	}
}

// GetRefreshState returns the refresh controller state (diagnostics)
func (a *App) GetRefreshState() refresh.Snapshot {
	if a.refresh == nil {
		return refresh.Snapshot{Closed: true}
	}
	return a.refresh.Snapshot()
}

// =============================================================================
// REFRESH WIRING
// =============================================================================

// refreshProps builds the controller inputs from the current app state
func (a *App) refreshProps() refresh.Props {
	props := refresh.Props{
		BackendMode:        a.settings.GetSettings().BackendMode,
		ReconnectWorkspace: a.reconnectWorkspace,
		RefreshThread:      a.refreshThread,
	}
	ws := a.currentWorkspaceCopy()
	if ws == nil {
		return props
	}
	props.ActiveWorkspace = ws
	if a.store != nil {
		state := a.store.Snapshot()
		props.ActiveThreadID = state.ActiveThreadID(ws.ID)
		props.ActiveThreadIsProcessing = state.Status(props.ActiveThreadID).IsProcessing
	}
	return props
}

// syncRefreshProps pushes fresh props to the controller
func (a *App) syncRefreshProps() {
	if a.refresh != nil {
		a.refresh.SetProps(a.refreshProps())
	}
}

// reconnectWorkspace re-attaches a workspace on the remote daemon
func (a *App) reconnectWorkspace(ctx context.Context, ws workspace.Workspace) error {
	client := a.remote()
	if client == nil {
		return backend.ErrNotConnected
	}
	if err := client.ReconnectWorkspace(ctx, ws); err != nil {
		return err
	}
	a.workspace.SetConnected(ws.ID, true)
	a.syncRefreshProps()
	return nil
}

// refreshThread resumes a thread on the daemon and reconciles the store
func (a *App) refreshThread(ctx context.Context, workspaceID, threadID string) error {
	client := a.remote()
	if client == nil {
		return backend.ErrNotConnected
	}
	detail, err := client.RefreshThread(ctx, workspaceID, threadID)
	if err != nil {
		return err
	}
	a.router.ApplyThreadDetail(workspaceID, detail)
	return nil
}
