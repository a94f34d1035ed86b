package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/lo"

	"codexmonitor/internal/threads"
	"codexmonitor/internal/workspace"
)

type workspaceView struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Path      string         `json:"path"`
	Kind      workspace.Kind `json:"kind"`
	ParentID  string         `json:"parentId,omitempty"`
	Connected bool           `json:"connected"`
}

type threadView struct {
	threads.ThreadSummary
	Status   threads.ThreadStatus `json:"status"`
	IsActive bool                 `json:"isActive"`
	ParentID string               `json:"parentId,omitempty"`
}

type staleView struct {
	WorkspaceID string   `json:"workspaceId"`
	ThreadIDs   []string `json:"threadIds"`
}

// jsonResult renders v as an indented JSON text result
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *MCPService) handleListWorkspaces(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	views := lo.Map(s.sources.Workspaces(), func(ws workspace.Workspace, _ int) workspaceView {
		return workspaceView{
			ID:        ws.ID,
			Name:      ws.Name,
			Path:      ws.Path,
			Kind:      ws.Kind,
			ParentID:  ws.ParentID,
			Connected: ws.Connected,
		}
	})
	return jsonResult(views)
}

func (s *MCPService) handleListThreads(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspaceID, err := req.RequireString("workspace_id")
	if err != nil {
		return mcp.NewToolResultError("workspace_id is required"), nil
	}

	state := s.sources.Store.Snapshot()
	active := state.ActiveThreadID(workspaceID)
	views := lo.Map(state.Threads(workspaceID), func(t threads.ThreadSummary, _ int) threadView {
		return threadView{
			ThreadSummary: t,
			Status:        state.Status(t.ID),
			IsActive:      t.ID == active,
			ParentID:      state.ThreadParentByID[t.ID],
		}
	})
	return jsonResult(views)
}

func (s *MCPService) handleThreadLiveness(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID, err := req.RequireString("thread_id")
	if err != nil {
		return mcp.NewToolResultError("thread_id is required"), nil
	}

	state := s.sources.Store.Snapshot()
	if _, ok := state.WorkspaceIDForThread(threadID); !ok {
		if _, tracked := state.ThreadStatusByID[threadID]; !tracked {
			return mcp.NewToolResultError(fmt.Sprintf("Thread '%s' not found", threadID)), nil
		}
	}
	return jsonResult(threads.ThreadLiveness(state, threadID, s.sources.Now()))
}

func (s *MCPService) handleStaleThreads(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	state := s.sources.Store.Snapshot()
	now := s.sources.Now()

	workspaceIDs := []string{req.GetString("workspace_id", "")}
	if workspaceIDs[0] == "" {
		workspaceIDs = lo.Map(s.sources.Workspaces(), func(ws workspace.Workspace, _ int) string { return ws.ID })
	}

	views := []staleView{}
	for _, id := range workspaceIDs {
		if ids := threads.StaleThreadIDs(state, id, now); len(ids) > 0 {
			views = append(views, staleView{WorkspaceID: id, ThreadIDs: ids})
		}
	}
	return jsonResult(views)
}

func (s *MCPService) handleSubagentDescendants(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID, err := req.RequireString("thread_id")
	if err != nil {
		return mcp.NewToolResultError("thread_id is required"), nil
	}

	state := s.sources.Store.Snapshot()
	return jsonResult(threads.SubagentDescendantThreadIDs(threadID, state.ThreadParentByID, s.sources.IsSubagent))
}
