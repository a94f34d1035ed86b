package main

import (
	"context"
	"fmt"
	"time"

	wailsrt "github.com/wailsapp/wails/v2/pkg/runtime"

	"codexmonitor/internal/backend"
	"codexmonitor/internal/threadparams"
	"codexmonitor/internal/threads"
)

const threadPageSize = 50

// =============================================================================
// THREAD METHODS (Bound to frontend)
// =============================================================================

// GetThreadsState returns the current thread store snapshot
func (a *App) GetThreadsState() *threads.State {
	if a.store == nil {
		return threads.NewState()
	}
	return a.store.Snapshot()
}

// RefreshThreadList reloads the first page of a workspace's threads
func (a *App) RefreshThreadList(workspaceID string) error {
	return a.loadThreads(workspaceID, false)
}

// LoadOlderThreads fetches the next page of a workspace's threads
func (a *App) LoadOlderThreads(workspaceID string) error {
	return a.loadThreads(workspaceID, true)
}

// loadThreads lists threads on the daemon, connecting the workspace first if needed
func (a *App) loadThreads(workspaceID string, older bool) error {
	client := a.remote()
	if client == nil {
		return backend.ErrNotConnected
	}
	ws, err := a.workspace.LoadWorkspace(workspaceID)
	if err != nil {
		return err
	}

	opts := backend.ListOptions{Limit: threadPageSize}
	if older {
		opts.Cursor = a.store.Snapshot().ThreadListCursorByWorkspace[workspaceID]
		if opts.Cursor == "" {
			return nil // No more pages
		}
		a.store.Dispatch(threads.SetThreadListPaging{WorkspaceID: workspaceID, IsPaging: true})
		defer a.store.Dispatch(threads.SetThreadListPaging{WorkspaceID: workspaceID, IsPaging: false})
	} else {
		a.store.Dispatch(threads.SetThreadListLoading{WorkspaceID: workspaceID, IsLoading: true})
		defer a.store.Dispatch(threads.SetThreadListLoading{WorkspaceID: workspaceID, IsLoading: false})
	}

	ctx, cancel := context.WithTimeout(a.ctx, 30*time.Second)
	defer cancel()

	if !a.workspace.IsConnected(workspaceID) {
		if err := client.ConnectWorkspace(ctx, *ws); err != nil {
			return fmt.Errorf("connect workspace %s: %w", ws.Name, err)
		}
		a.workspace.SetConnected(workspaceID, true)
	}

	page, err := client.ListThreadsForWorkspace(ctx, workspaceID, opts)
	if err != nil {
		wailsrt.LogWarning(a.ctx, fmt.Sprintf("Failed to list threads for %s: %v", ws.Name, err))
		return err
	}
	a.router.ApplyThreadPage(workspaceID, page, older)
	return nil
}

// SelectThread makes a thread active in its workspace and remembers it
func (a *App) SelectThread(workspaceID, threadID string) {
	a.store.DispatchAll(
		threads.SetActiveThreadID{WorkspaceID: workspaceID, ThreadID: threadID},
		threads.MarkUnread{ThreadID: threadID, HasUnread: false},
	)
	if a.prefs != nil {
		if err := a.prefs.SetActiveThread(workspaceID, threadID); err != nil {
			wailsrt.LogWarning(a.ctx, fmt.Sprintf("Failed to save active thread: %v", err))
		}
	}
}

// HideThread hides a thread so list refreshes do not bring it back
func (a *App) HideThread(workspaceID, threadID string) error {
	a.store.Dispatch(threads.HideThread{WorkspaceID: workspaceID, ThreadID: threadID})
	if a.prefs == nil {
		return nil
	}
	return a.prefs.HideThread(workspaceID, threadID)
}

// RemoveThread drops a thread and its cached parameters
func (a *App) RemoveThread(workspaceID, threadID string) error {
	a.store.Dispatch(threads.RemoveThread{WorkspaceID: workspaceID, ThreadID: threadID})
	return a.params.Delete(workspaceID, threadID)
}

// GetThreadLiveness evaluates the stale policy for a thread now
func (a *App) GetThreadLiveness(threadID string) threads.Liveness {
	return threads.ThreadLiveness(a.store.Snapshot(), threadID, time.Now())
}

// GetStaleThreads lists the stale processing threads of a workspace
func (a *App) GetStaleThreads(workspaceID string) []string {
	return threads.StaleThreadIDs(a.store.Snapshot(), workspaceID, time.Now())
}

// GetSubagentDescendants lists the sub-agent threads spawned under a thread
func (a *App) GetSubagentDescendants(threadID string) []string {
	return threads.SubagentDescendantThreadIDs(threadID, a.store.Snapshot().ThreadParentByID, a.router.IsSubagent)
}

// =============================================================================
// THREAD PARAMETER METHODS (Bound to frontend)
// =============================================================================

// GetThreadParams returns the cached parameters of a thread
func (a *App) GetThreadParams(workspaceID, threadID string) *threadparams.Params {
	p, ok := a.params.Get(workspaceID, threadID)
	if !ok {
		return nil
	}
	return &p
}

// PatchThreadParams merges a patch into a thread's parameters
func (a *App) PatchThreadParams(workspaceID, threadID string, patch threadparams.Patch) (threadparams.Params, error) {
	return a.params.Patch(workspaceID, threadID, patch)
}
