package mcpserver

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names
const (
	ToolListWorkspaces      = "ListWorkspaces"
	ToolListThreads         = "ListThreads"
	ToolThreadLiveness      = "ThreadLiveness"
	ToolStaleThreads        = "StaleThreads"
	ToolSubagentDescendants = "SubagentDescendants"
)

// CreateListWorkspacesTool creates the ListWorkspaces tool definition
func CreateListWorkspacesTool() mcp.Tool {
	return mcp.NewTool(ToolListWorkspaces,
		mcp.WithDescription("List the workspaces known to CodexMonitor in display order, with their connection state."),
	)
}

// CreateListThreadsTool creates the ListThreads tool definition
func CreateListThreadsTool() mcp.Tool {
	return mcp.NewTool(ToolListThreads,
		mcp.WithDescription("List the visible threads of a workspace with their processing status."),
		mcp.WithString("workspace_id",
			mcp.Required(),
			mcp.Description("ID of the workspace"),
		),
	)
}

// CreateThreadLivenessTool creates the ThreadLiveness tool definition
func CreateThreadLivenessTool() mcp.Tool {
	return mcp.NewTool(ToolThreadLiveness,
		mcp.WithDescription("Report whether a thread is processing, how long it has been silent, and whether it looks stale."),
		mcp.WithString("thread_id",
			mcp.Required(),
			mcp.Description("ID of the thread"),
		),
	)
}

// CreateStaleThreadsTool creates the StaleThreads tool definition
func CreateStaleThreadsTool() mcp.Tool {
	return mcp.NewTool(ToolStaleThreads,
		mcp.WithDescription("List processing threads that have gone silent past their threshold."),
		mcp.WithString("workspace_id",
			mcp.Description("Limit to one workspace (default: all workspaces)"),
		),
	)
}

// CreateSubagentDescendantsTool creates the SubagentDescendants tool definition
func CreateSubagentDescendantsTool() mcp.Tool {
	return mcp.NewTool(ToolSubagentDescendants,
		mcp.WithDescription("List the sub-agent threads spawned, directly or transitively, under a thread."),
		mcp.WithString("thread_id",
			mcp.Required(),
			mcp.Description("ID of the root thread"),
		),
	)
}
