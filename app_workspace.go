package main

import (
	"context"
	"fmt"
	"time"

	wailsrt "github.com/wailsapp/wails/v2/pkg/runtime"

	"codexmonitor/internal/types"
	"codexmonitor/internal/workspace"
)

// =============================================================================
// WORKSPACE METHODS (Bound to frontend)
// =============================================================================

// GetAllWorkspaces returns all workspaces in display order
func (a *App) GetAllWorkspaces() ([]workspace.Workspace, error) {
	if a.workspace == nil {
		return nil, fmt.Errorf("workspace manager not initialized")
	}
	return a.workspace.GetAllWorkspaces()
}

// GetCurrentWorkspace returns the selected workspace without reloading
func (a *App) GetCurrentWorkspace() *workspace.Workspace {
	return a.currentWorkspaceCopy()
}

// SwitchWorkspace selects a workspace and loads its threads
func (a *App) SwitchWorkspace(workspaceID string) (*workspace.Workspace, error) {
	if a.workspace == nil {
		return nil, fmt.Errorf("workspace manager not initialized")
	}
	ws, err := a.workspace.LoadWorkspace(workspaceID)
	if err != nil {
		return nil, err
	}
	if err := a.workspace.SetCurrentWorkspace(workspaceID); err != nil {
		wailsrt.LogWarning(a.ctx, fmt.Sprintf("Failed to save current workspace: %v", err))
	}
	a.setCurrentWorkspace(ws)
	a.syncRefreshProps()

	if a.remote() != nil {
		go func() {
			if err := a.loadThreads(workspaceID, false); err != nil {
				wailsrt.LogWarning(a.ctx, fmt.Sprintf("Failed to load threads: %v", err))
			}
		}()
	}
	return a.currentWorkspaceCopy(), nil
}

// CreateWorkspace adds a project folder as a workspace
func (a *App) CreateWorkspace(name, path string) (*workspace.Workspace, error) {
	if a.workspace == nil {
		return nil, fmt.Errorf("workspace manager not initialized")
	}
	ws, err := a.workspace.CreateWorkspace(name, path)
	if err != nil {
		return nil, err
	}
	a.emitWorkspaceOrder()
	return ws, nil
}

// CreateWorktree adds a git worktree under an existing workspace
func (a *App) CreateWorktree(parentID, name, path string) (*workspace.Workspace, error) {
	if a.workspace == nil {
		return nil, fmt.Errorf("workspace manager not initialized")
	}
	ws, err := a.workspace.CreateWorktree(parentID, name, path)
	if err != nil {
		return nil, err
	}
	a.emitWorkspaceOrder()
	return ws, nil
}

// RenameWorkspace renames a workspace by ID
func (a *App) RenameWorkspace(workspaceID string, newName string) error {
	if a.workspace == nil {
		return fmt.Errorf("workspace manager not initialized")
	}
	return a.workspace.RenameWorkspace(workspaceID, newName)
}

// DeleteWorkspace removes a workspace (and its worktrees) by ID.
// Deleting the current workspace clears the selection.
func (a *App) DeleteWorkspace(workspaceID string) error {
	if a.workspace == nil {
		return fmt.Errorf("workspace manager not initialized")
	}
	if err := a.workspace.DeleteWorkspace(workspaceID); err != nil {
		return err
	}
	if a.getCurrentWorkspaceID() == workspaceID {
		a.setCurrentWorkspace(nil)
		a.syncRefreshProps()
	}
	if a.prefs != nil {
		if err := a.prefs.ForgetWorkspace(workspaceID); err != nil {
			wailsrt.LogWarning(a.ctx, fmt.Sprintf("Failed to drop thread preferences: %v", err))
		}
	}
	a.emitWorkspaceOrder()
	return nil
}

// ReorderWorkspaces persists a new order for the workspaces of one group.
// The order is journaled first so an interrupted write is finished on the
// next launch. On error the frontend should revert its optimistic order.
func (a *App) ReorderWorkspaces(orderedIDs []string, groupID *string) error {
	if a.workspace == nil {
		return fmt.Errorf("workspace manager not initialized")
	}
	byID, err := a.workspace.WorkspacesByID()
	if err != nil {
		return err
	}
	ordered := make([]workspace.Workspace, 0, len(orderedIDs))
	for _, id := range orderedIDs {
		ws, ok := byID[id]
		if !ok {
			return fmt.Errorf("workspace not found: %s", id)
		}
		ordered = append(ordered, ws)
	}

	if err := a.wal.PersistWorkspaceOrderWithWAL(ordered, groupID, a.persistWorkspaceOrder); err != nil {
		return err
	}
	a.emitWorkspaceOrder()
	return nil
}

// persistWorkspaceOrder writes sort orders locally and mirrors them to the
// daemon when one is connected
func (a *App) persistWorkspaceOrder(ordered []workspace.Workspace, groupID *string) error {
	if err := a.workspace.PersistWorkspaceOrder(ordered, groupID); err != nil {
		return err
	}
	client := a.remote()
	if client == nil || !client.IsConnected() {
		return nil
	}
	ctx, cancel := context.WithTimeout(a.ctx, 15*time.Second)
	defer cancel()
	return client.PersistWorkspaceOrder(ctx, ordered, groupID)
}

// emitWorkspaceOrder notifies the frontend that the workspace list changed
func (a *App) emitWorkspaceOrder() {
	a.emit(types.EventEnvelope{
		EventType: types.EventWorkspaceOrder,
		Payload:   map[string]any{"workspaces": a.allWorkspaces()},
	})
}

// SelectWorkspaceFolder opens folder picker and returns selected path
func (a *App) SelectWorkspaceFolder() (string, error) {
	return wailsrt.OpenDirectoryDialog(a.ctx, wailsrt.OpenDialogOptions{
		Title:                "Select Project Folder",
		CanCreateDirectories: true,
	})
}
