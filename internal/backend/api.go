package backend

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"codexmonitor/internal/types"
	"codexmonitor/internal/workspace"
)

// RPC method names.
const (
	MethodWorkspaceConnect = "workspace/connect"
	MethodWorkspaceReorder = "workspace/reorder"
	MethodThreadList       = "thread/list"
	MethodThreadResume     = "thread/resume"
)

// RemoteThread is a thread as listed by the daemon.
type RemoteThread struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	UpdatedAt  int64  `json:"updatedAt"` // unix ms
	ParentID   string `json:"parentId,omitempty"`
	IsSubagent bool   `json:"isSubagent,omitempty"`
}

// ThreadPage is one page of a thread listing.
type ThreadPage struct {
	Threads    []RemoteThread `json:"threads"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// ThreadDetail is the full state of one thread.
type ThreadDetail struct {
	Thread              RemoteThread             `json:"thread"`
	Items               []types.ConversationItem `json:"items"`
	ActiveTurnID        string                   `json:"activeTurnId,omitempty"`
	IsProcessing        bool                     `json:"isProcessing"`
	ProcessingStartedAt int64                    `json:"processingStartedAt,omitempty"` // unix ms
}

// ListOptions controls ListThreadsForWorkspace.
type ListOptions struct {
	Cursor string
	Limit  int
}

// ConnectWorkspace opens the transport if needed and attaches the workspace
// to a daemon session.
func (c *Client) ConnectWorkspace(ctx context.Context, ws workspace.Workspace) error {
	if err := c.Connect(ctx); err != nil {
		return err
	}
	params := map[string]any{"workspaceId": ws.ID, "path": ws.Path}
	if err := c.Call(ctx, MethodWorkspaceConnect, params, nil); err != nil {
		return fmt.Errorf("connect workspace %s: %w", ws.ID, err)
	}
	return nil
}

// ReconnectWorkspace restores a dropped workspace session.
func (c *Client) ReconnectWorkspace(ctx context.Context, ws workspace.Workspace) error {
	return c.ConnectWorkspace(ctx, ws)
}

// RefreshThread pulls the latest state of a thread.
func (c *Client) RefreshThread(ctx context.Context, workspaceID, threadID string) (*ThreadDetail, error) {
	var detail ThreadDetail
	params := map[string]any{"workspaceId": workspaceID, "threadId": threadID}
	if err := c.Call(ctx, MethodThreadResume, params, &detail); err != nil {
		return nil, fmt.Errorf("refresh thread %s: %w", threadID, err)
	}
	return &detail, nil
}

// ListThreadsForWorkspace fetches one page of a workspace's threads.
func (c *Client) ListThreadsForWorkspace(ctx context.Context, workspaceID string, opts ListOptions) (*ThreadPage, error) {
	params := map[string]any{"workspaceId": workspaceID}
	if opts.Cursor != "" {
		params["cursor"] = opts.Cursor
	}
	if opts.Limit > 0 {
		params["limit"] = opts.Limit
	}
	var page ThreadPage
	if err := c.Call(ctx, MethodThreadList, params, &page); err != nil {
		return nil, fmt.Errorf("list threads for %s: %w", workspaceID, err)
	}
	if page.Threads == nil {
		page.Threads = []RemoteThread{}
	}
	return &page, nil
}

// PersistWorkspaceOrder stores an ordering on the daemon.
func (c *Client) PersistWorkspaceOrder(ctx context.Context, ordered []workspace.Workspace, groupID *string) error {
	params := map[string]any{
		"workspaceIds": lo.Map(ordered, func(ws workspace.Workspace, _ int) string { return ws.ID }),
		"groupId":      groupID,
	}
	if err := c.Call(ctx, MethodWorkspaceReorder, params, nil); err != nil {
		return fmt.Errorf("persist workspace order: %w", err)
	}
	return nil
}
