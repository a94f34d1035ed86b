// Package types provides shared type definitions for CodexMonitor.
// These types are used across the threads, stale, eventrouter and backend packages.
package types

// =============================================================================
// CONVERSATION ITEM TYPES (from backend thread snapshots and push events)
// =============================================================================

// Item kinds
const (
	ItemKindMessage   = "message"
	ItemKindReasoning = "reasoning"
	ItemKindTool      = "tool"
	ItemKindDiff      = "diff"
	ItemKindReview    = "review"
)

// Tool types reported on tool items
const (
	ToolTypeCommandExecution = "commandExecution"
	ToolTypeFileChange       = "fileChange"
	ToolTypeMCPToolCall      = "mcpToolCall"
	ToolTypeWebSearch        = "webSearch"
)

// ConversationItem is one entry of a thread's conversation as reported by the backend.
// Only tool items carry ToolType/Status/DurationMs.
type ConversationItem struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`               // message, reasoning, tool, diff, review
	Role       string `json:"role,omitempty"`     // user, assistant (message items)
	Text       string `json:"text,omitempty"`     // message/reasoning body
	ToolType   string `json:"toolType,omitempty"` // commandExecution, fileChange, ...
	Title      string `json:"title,omitempty"`    // e.g. the command line
	Status     string `json:"status,omitempty"`   // backend status string, vocabulary varies
	DurationMs *int64 `json:"durationMs,omitempty"`
}

// IsCommandExecution reports whether the item is a shell command tool call.
// Some backends omit kind on tool items, so only the tool type is checked.
func (i ConversationItem) IsCommandExecution() bool {
	return i.ToolType == ToolTypeCommandExecution
}

// =============================================================================
// EVENT TYPES (for frontend communication)
// =============================================================================

// EventEnvelope wraps all events with routing information.
// All events emitted to the frontend use this envelope pattern.
type EventEnvelope struct {
	WorkspaceID string `json:"workspaceId"`        // Always present
	ThreadID    string `json:"threadId,omitempty"` // Present for thread events
	EventType   string `json:"eventType"`          // The event name
	Payload     any    `json:"payload"`            // Event-specific data
}

// Frontend event names
const (
	EventThreadsChanged   = "threads:changed"
	EventWorkspaceOrder   = "workspaces:order"
	EventSettingsChanged  = "settings:changed"
	EventBackendStatus    = "backend:status"
	EventLoadingStatus    = "loading:status"
	EventThreadParamsSync = "threadParams:changed"
	EventMCPStatus        = "mcp:status"
)
