package threads

import (
	"time"

	"codexmonitor/internal/types"
)

// Action is the closed set of transitions understood by Reduce.
type Action interface {
	actionType() string
}

// SetActiveThreadID switches the active thread of a workspace. An empty
// ThreadID clears the pointer.
type SetActiveThreadID struct {
	WorkspaceID string
	ThreadID    string
}

// EnsureThread materializes a placeholder summary for a thread that has not
// been listed yet. Hidden threads are never materialized.
type EnsureThread struct {
	WorkspaceID string
	ThreadID    string
	Timestamp   time.Time
}

// HideThread soft-deletes a thread so later list refreshes do not bring it back.
type HideThread struct {
	WorkspaceID string
	ThreadID    string
}

// RemoveThread hard-deletes a thread and every per-thread record.
type RemoveThread struct {
	WorkspaceID string
	ThreadID    string
}

// SetThreadParent records a child -> parent spawn edge.
type SetThreadParent struct {
	ThreadID string
	ParentID string
}

// MarkProcessing enters or leaves the processing state at Timestamp.
type MarkProcessing struct {
	ThreadID     string
	IsProcessing bool
	Timestamp    time.Time
}

// MarkReviewing toggles review mode for a thread.
type MarkReviewing struct {
	ThreadID    string
	IsReviewing bool
}

// MarkUnread toggles the unread badge for a thread.
type MarkUnread struct {
	ThreadID  string
	HasUnread bool
}

// SetThreadName renames a listed thread.
type SetThreadName struct {
	WorkspaceID string
	ThreadID    string
	Name        string
}

// SetThreadTimestamp bumps a thread's updatedAt. Older timestamps are ignored.
type SetThreadTimestamp struct {
	WorkspaceID string
	ThreadID    string
	Timestamp   time.Time
}

// SetThreads replaces a workspace's visible list with a server-driven one.
// An empty SortKey keeps the current sort mode.
type SetThreads struct {
	WorkspaceID string
	Threads     []ThreadSummary
	SortKey     SortKey
}

// SetThreadListLoading flags an in-progress list fetch.
type SetThreadListLoading struct {
	WorkspaceID string
	IsLoading   bool
}

// SetThreadListPaging flags an in-progress "load older" fetch.
type SetThreadListPaging struct {
	WorkspaceID string
	IsPaging    bool
}

// SetThreadListCursor stores the pagination cursor; "" means no more pages.
type SetThreadListCursor struct {
	WorkspaceID string
	Cursor      string
}

// SetActiveTurnID records the running turn of a thread; "" clears it.
type SetActiveTurnID struct {
	ThreadID string
	TurnID   string
}

// UpsertItem inserts or replaces one conversation item by ID.
type UpsertItem struct {
	ThreadID string
	Item     types.ConversationItem
}

// SetThreadItems replaces all conversation items of a thread.
type SetThreadItems struct {
	ThreadID string
	Items    []types.ConversationItem
}

// SetTurnDiff stores the latest aggregated diff of a thread.
type SetTurnDiff struct {
	ThreadID string
	Diff     string
}

// SetThreadPlan stores the latest plan of a thread; nil clears it.
type SetThreadPlan struct {
	ThreadID string
	Plan     *TurnPlan
}

// MarkThreadActivity records an activity signal used for liveness.
type MarkThreadActivity struct {
	ThreadID  string
	Timestamp time.Time
}

func (SetActiveThreadID) actionType() string    { return "setActiveThreadId" }
func (EnsureThread) actionType() string         { return "ensureThread" }
func (HideThread) actionType() string           { return "hideThread" }
func (RemoveThread) actionType() string         { return "removeThread" }
func (SetThreadParent) actionType() string      { return "setThreadParent" }
func (MarkProcessing) actionType() string       { return "markProcessing" }
func (MarkReviewing) actionType() string        { return "markReviewing" }
func (MarkUnread) actionType() string           { return "markUnread" }
func (SetThreadName) actionType() string        { return "setThreadName" }
func (SetThreadTimestamp) actionType() string   { return "setThreadTimestamp" }
func (SetThreads) actionType() string           { return "setThreads" }
func (SetThreadListLoading) actionType() string { return "setThreadListLoading" }
func (SetThreadListPaging) actionType() string  { return "setThreadListPaging" }
func (SetThreadListCursor) actionType() string  { return "setThreadListCursor" }
func (SetActiveTurnID) actionType() string      { return "setActiveTurnId" }
func (UpsertItem) actionType() string           { return "upsertItem" }
func (SetThreadItems) actionType() string       { return "setThreadItems" }
func (SetTurnDiff) actionType() string          { return "setTurnDiff" }
func (SetThreadPlan) actionType() string        { return "setThreadPlan" }
func (MarkThreadActivity) actionType() string   { return "markThreadActivity" }

// ActionType returns the wire name of an action, used in logs and events.
func ActionType(a Action) string {
	if a == nil {
		return ""
	}
	return a.actionType()
}
