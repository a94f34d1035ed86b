package threads

import (
	"slices"
	"time"

	"codexmonitor/internal/types"
)

// PlaceholderThreadName is used for threads materialized before the backend names them.
const PlaceholderThreadName = "New thread"

// Reduce applies one action. It never panics and never mutates s; unknown
// ids and unknown actions are no-ops that return s itself.
func Reduce(s *State, action Action) *State {
	if s == nil {
		s = NewState()
	}
	switch a := action.(type) {
	case SetActiveThreadID:
		return reduceSetActiveThread(s, a)
	case EnsureThread:
		return reduceEnsureThread(s, a)
	case HideThread:
		return reduceHideThread(s, a)
	case RemoveThread:
		return reduceRemoveThread(s, a)
	case SetThreadParent:
		return reduceSetThreadParent(s, a)
	case MarkProcessing:
		return reduceMarkProcessing(s, a)
	case MarkReviewing:
		return updateStatus(s, a.ThreadID, func(st ThreadStatus) ThreadStatus {
			st.IsReviewing = a.IsReviewing
			return st
		})
	case MarkUnread:
		return updateStatus(s, a.ThreadID, func(st ThreadStatus) ThreadStatus {
			st.HasUnread = a.HasUnread
			return st
		})
	case SetThreadName:
		return reduceSetThreadName(s, a)
	case SetThreadTimestamp:
		return reduceSetThreadTimestamp(s, a)
	case SetThreads:
		return reduceSetThreads(s, a)
	case SetThreadListLoading:
		return setWorkspaceFlag(s, a.WorkspaceID, a.IsLoading, s.ThreadListLoadingByWorkspace, func(n *State, m map[string]bool) {
			n.ThreadListLoadingByWorkspace = m
		})
	case SetThreadListPaging:
		return setWorkspaceFlag(s, a.WorkspaceID, a.IsPaging, s.ThreadListPagingByWorkspace, func(n *State, m map[string]bool) {
			n.ThreadListPagingByWorkspace = m
		})
	case SetThreadListCursor:
		if a.WorkspaceID == "" || s.ThreadListCursorByWorkspace[a.WorkspaceID] == a.Cursor {
			return s
		}
		next := s.clone()
		next.ThreadListCursorByWorkspace = withKey(s.ThreadListCursorByWorkspace, a.WorkspaceID, a.Cursor)
		return next
	case SetActiveTurnID:
		return reduceSetActiveTurn(s, a)
	case UpsertItem:
		return reduceUpsertItem(s, a)
	case SetThreadItems:
		if a.ThreadID == "" {
			return s
		}
		if prev, ok := s.ItemsByThread[a.ThreadID]; ok && slices.EqualFunc(prev, a.Items, itemsEqual) {
			return s
		}
		next := s.clone()
		next.ItemsByThread = withKey(s.ItemsByThread, a.ThreadID, slices.Clone(a.Items))
		return next
	case SetTurnDiff:
		if a.ThreadID == "" || s.TurnDiffByThread[a.ThreadID] == a.Diff {
			return s
		}
		next := s.clone()
		next.TurnDiffByThread = withKey(s.TurnDiffByThread, a.ThreadID, a.Diff)
		return next
	case SetThreadPlan:
		if a.ThreadID == "" {
			return s
		}
		next := s.clone()
		if a.Plan == nil {
			if _, ok := s.PlanByThread[a.ThreadID]; !ok {
				return s
			}
			next.PlanByThread = withoutKey(s.PlanByThread, a.ThreadID)
			return next
		}
		next.PlanByThread = withKey(s.PlanByThread, a.ThreadID, a.Plan)
		return next
	case MarkThreadActivity:
		if a.ThreadID == "" || a.Timestamp.IsZero() {
			return s
		}
		if last, ok := s.LastActivityAtByThread[a.ThreadID]; ok && !a.Timestamp.After(last) {
			return s
		}
		next := s.clone()
		next.LastActivityAtByThread = withKey(s.LastActivityAtByThread, a.ThreadID, a.Timestamp)
		return next
	default:
		return s
	}
}

// =============================================================================
// SELECTION & MATERIALIZATION
// =============================================================================

func reduceSetActiveThread(s *State, a SetActiveThreadID) *State {
	if a.WorkspaceID == "" {
		return s
	}
	current, hasCurrent := s.ActiveThreadIDByWorkspace[a.WorkspaceID]
	status, hasStatus := s.ThreadStatusByID[a.ThreadID]
	clearUnread := a.ThreadID != "" && hasStatus && status.HasUnread
	pointerChanged := !hasCurrent || current != a.ThreadID
	if !pointerChanged && !clearUnread {
		return s
	}

	next := s.clone()
	if pointerChanged {
		next.ActiveThreadIDByWorkspace = withKey(s.ActiveThreadIDByWorkspace, a.WorkspaceID, a.ThreadID)
	}
	if clearUnread {
		status.HasUnread = false
		next.ThreadStatusByID = withKey(s.ThreadStatusByID, a.ThreadID, status)
	}
	return next
}

func reduceEnsureThread(s *State, a EnsureThread) *State {
	if a.WorkspaceID == "" || a.ThreadID == "" {
		return s
	}
	list := s.ThreadsByWorkspace[a.WorkspaceID]
	if indexOf(list, a.ThreadID) >= 0 || s.IsHidden(a.WorkspaceID, a.ThreadID) {
		return s
	}

	next := s.clone()
	placeholder := ThreadSummary{ID: a.ThreadID, Name: PlaceholderThreadName, UpdatedAt: a.Timestamp}
	next.ThreadsByWorkspace = withKey(s.ThreadsByWorkspace, a.WorkspaceID, append([]ThreadSummary{placeholder}, list...))
	if _, ok := s.ThreadStatusByID[a.ThreadID]; !ok {
		next.ThreadStatusByID = withKey(s.ThreadStatusByID, a.ThreadID, ThreadStatus{})
	}
	if s.ActiveThreadIDByWorkspace[a.WorkspaceID] == "" {
		next.ActiveThreadIDByWorkspace = withKey(s.ActiveThreadIDByWorkspace, a.WorkspaceID, a.ThreadID)
	}
	return next
}

// =============================================================================
// DELETION
// =============================================================================

func reduceHideThread(s *State, a HideThread) *State {
	if a.WorkspaceID == "" || a.ThreadID == "" || s.IsHidden(a.WorkspaceID, a.ThreadID) {
		return s
	}

	next := s.clone()
	hidden := withKey(s.HiddenThreadIDsByWorkspace[a.WorkspaceID], a.ThreadID, true)
	next.HiddenThreadIDsByWorkspace = withKey(s.HiddenThreadIDsByWorkspace, a.WorkspaceID, hidden)

	remaining := withoutThread(s.ThreadsByWorkspace[a.WorkspaceID], a.ThreadID)
	next.ThreadsByWorkspace = withKey(s.ThreadsByWorkspace, a.WorkspaceID, remaining)
	repointActive(s, next, a.WorkspaceID, a.ThreadID, remaining)
	return next
}

func reduceRemoveThread(s *State, a RemoveThread) *State {
	if a.WorkspaceID == "" || a.ThreadID == "" {
		return s
	}
	list := s.ThreadsByWorkspace[a.WorkspaceID]
	if indexOf(list, a.ThreadID) < 0 && !hasThreadState(s, a.ThreadID) && s.ActiveThreadIDByWorkspace[a.WorkspaceID] != a.ThreadID {
		return s
	}

	next := s.clone()
	remaining := withoutThread(list, a.ThreadID)
	next.ThreadsByWorkspace = withKey(s.ThreadsByWorkspace, a.WorkspaceID, remaining)
	next.ThreadStatusByID = withoutKey(s.ThreadStatusByID, a.ThreadID)
	next.ItemsByThread = withoutKey(s.ItemsByThread, a.ThreadID)
	next.ActiveTurnIDByThread = withoutKey(s.ActiveTurnIDByThread, a.ThreadID)
	next.TurnDiffByThread = withoutKey(s.TurnDiffByThread, a.ThreadID)
	next.PlanByThread = withoutKey(s.PlanByThread, a.ThreadID)
	next.ThreadParentByID = withoutKey(s.ThreadParentByID, a.ThreadID)
	next.LastActivityAtByThread = withoutKey(s.LastActivityAtByThread, a.ThreadID)
	repointActive(s, next, a.WorkspaceID, a.ThreadID, remaining)
	return next
}

func hasThreadState(s *State, threadID string) bool {
	_, status := s.ThreadStatusByID[threadID]
	_, items := s.ItemsByThread[threadID]
	_, turn := s.ActiveTurnIDByThread[threadID]
	_, diff := s.TurnDiffByThread[threadID]
	_, plan := s.PlanByThread[threadID]
	_, parent := s.ThreadParentByID[threadID]
	_, activity := s.LastActivityAtByThread[threadID]
	return status || items || turn || diff || plan || parent || activity
}

// repointActive moves the active pointer off a deleted thread.
func repointActive(prev, next *State, workspaceID, threadID string, remaining []ThreadSummary) {
	if prev.ActiveThreadIDByWorkspace[workspaceID] != threadID {
		return
	}
	replacement := ""
	if len(remaining) > 0 {
		replacement = remaining[0].ID
	}
	next.ActiveThreadIDByWorkspace = withKey(prev.ActiveThreadIDByWorkspace, workspaceID, replacement)
}

func withoutThread(list []ThreadSummary, threadID string) []ThreadSummary {
	out := make([]ThreadSummary, 0, len(list))
	for _, t := range list {
		if t.ID != threadID {
			out = append(out, t)
		}
	}
	return out
}

// =============================================================================
// RELATIONS
// =============================================================================

func reduceSetThreadParent(s *State, a SetThreadParent) *State {
	if a.ThreadID == "" || a.ParentID == "" || a.ThreadID == a.ParentID {
		return s
	}
	if s.ThreadParentByID[a.ThreadID] == a.ParentID {
		return s
	}
	next := s.clone()
	next.ThreadParentByID = withKey(s.ThreadParentByID, a.ThreadID, a.ParentID)
	return next
}

// =============================================================================
// STATUS TRANSITIONS
// =============================================================================

func reduceMarkProcessing(s *State, a MarkProcessing) *State {
	return updateStatus(s, a.ThreadID, func(st ThreadStatus) ThreadStatus {
		if a.IsProcessing {
			if !st.IsProcessing || st.ProcessingStartedAt.IsZero() {
				st.ProcessingStartedAt = a.Timestamp
			}
			st.IsProcessing = true
			return st
		}
		if !st.ProcessingStartedAt.IsZero() {
			d := max(0, a.Timestamp.Sub(st.ProcessingStartedAt))
			st.LastDuration = &d
		}
		st.IsProcessing = false
		st.ProcessingStartedAt = time.Time{}
		return st
	})
}

// updateStatus applies fn to a thread's status and keeps s when the result is equal.
func updateStatus(s *State, threadID string, fn func(ThreadStatus) ThreadStatus) *State {
	if threadID == "" {
		return s
	}
	prev := s.ThreadStatusByID[threadID]
	nextStatus := fn(prev)
	if nextStatus.Equal(prev) {
		return s
	}
	next := s.clone()
	next.ThreadStatusByID = withKey(s.ThreadStatusByID, threadID, nextStatus)
	return next
}

// =============================================================================
// NAMING & ORDERING
// =============================================================================

func reduceSetThreadName(s *State, a SetThreadName) *State {
	list := s.ThreadsByWorkspace[a.WorkspaceID]
	idx := indexOf(list, a.ThreadID)
	if idx < 0 || list[idx].Name == a.Name {
		return s
	}
	updated := slices.Clone(list)
	updated[idx].Name = a.Name
	next := s.clone()
	next.ThreadsByWorkspace = withKey(s.ThreadsByWorkspace, a.WorkspaceID, updated)
	return next
}

func reduceSetThreadTimestamp(s *State, a SetThreadTimestamp) *State {
	list := s.ThreadsByWorkspace[a.WorkspaceID]
	idx := indexOf(list, a.ThreadID)
	if idx < 0 || !a.Timestamp.After(list[idx].UpdatedAt) {
		return s
	}
	thread := list[idx]
	thread.UpdatedAt = a.Timestamp

	var updated []ThreadSummary
	if s.sortKey(a.WorkspaceID) == SortByUpdatedAt {
		updated = make([]ThreadSummary, 0, len(list))
		updated = append(updated, thread)
		updated = append(updated, list[:idx]...)
		updated = append(updated, list[idx+1:]...)
	} else {
		updated = slices.Clone(list)
		updated[idx] = thread
	}
	next := s.clone()
	next.ThreadsByWorkspace = withKey(s.ThreadsByWorkspace, a.WorkspaceID, updated)
	return next
}

func (s *State) sortKey(workspaceID string) SortKey {
	if key, ok := s.ThreadSortKeyByWorkspace[workspaceID]; ok && key != "" {
		return key
	}
	return SortByUpdatedAt
}

func reduceSetThreads(s *State, a SetThreads) *State {
	if a.WorkspaceID == "" {
		return s
	}
	hidden := s.HiddenThreadIDsByWorkspace[a.WorkspaceID]
	visible := make([]ThreadSummary, 0, len(a.Threads))
	for _, t := range a.Threads {
		if t.ID == "" || hidden[t.ID] {
			continue
		}
		visible = append(visible, t)
	}

	_, listed := s.ThreadsByWorkspace[a.WorkspaceID]
	sortChanged := a.SortKey != "" && s.ThreadSortKeyByWorkspace[a.WorkspaceID] != a.SortKey
	if listed && !sortChanged && summariesEqual(s.ThreadsByWorkspace[a.WorkspaceID], visible) {
		return s
	}

	next := s.clone()
	next.ThreadsByWorkspace = withKey(s.ThreadsByWorkspace, a.WorkspaceID, visible)
	if sortChanged {
		next.ThreadSortKeyByWorkspace = withKey(s.ThreadSortKeyByWorkspace, a.WorkspaceID, a.SortKey)
	}
	return next
}

func summariesEqual(a, b []ThreadSummary) bool {
	return slices.EqualFunc(a, b, func(x, y ThreadSummary) bool {
		return x.ID == y.ID && x.Name == y.Name && x.UpdatedAt.Equal(y.UpdatedAt)
	})
}

// =============================================================================
// PER-WORKSPACE FLAGS
// =============================================================================

func setWorkspaceFlag(s *State, workspaceID string, value bool, current map[string]bool, assign func(*State, map[string]bool)) *State {
	if workspaceID == "" {
		return s
	}
	if prev, ok := current[workspaceID]; ok && prev == value {
		return s
	}
	if _, ok := current[workspaceID]; !ok && !value {
		return s
	}
	next := s.clone()
	assign(next, withKey(current, workspaceID, value))
	return next
}

// =============================================================================
// TURNS & ITEMS
// =============================================================================

func reduceSetActiveTurn(s *State, a SetActiveTurnID) *State {
	if a.ThreadID == "" {
		return s
	}
	current, ok := s.ActiveTurnIDByThread[a.ThreadID]
	if a.TurnID == "" {
		if !ok {
			return s
		}
		next := s.clone()
		next.ActiveTurnIDByThread = withoutKey(s.ActiveTurnIDByThread, a.ThreadID)
		return next
	}
	if ok && current == a.TurnID {
		return s
	}
	next := s.clone()
	next.ActiveTurnIDByThread = withKey(s.ActiveTurnIDByThread, a.ThreadID, a.TurnID)
	return next
}

func reduceUpsertItem(s *State, a UpsertItem) *State {
	if a.ThreadID == "" || a.Item.ID == "" {
		return s
	}
	items := s.ItemsByThread[a.ThreadID]
	idx := slices.IndexFunc(items, func(it types.ConversationItem) bool { return it.ID == a.Item.ID })

	var updated []types.ConversationItem
	if idx >= 0 {
		if itemsEqual(items[idx], a.Item) {
			return s
		}
		updated = slices.Clone(items)
		updated[idx] = a.Item
	} else {
		updated = make([]types.ConversationItem, 0, len(items)+1)
		updated = append(updated, items...)
		updated = append(updated, a.Item)
	}
	next := s.clone()
	next.ItemsByThread = withKey(s.ItemsByThread, a.ThreadID, updated)
	return next
}

func itemsEqual(a, b types.ConversationItem) bool {
	if a.ID != b.ID || a.Kind != b.Kind || a.Role != b.Role || a.Text != b.Text ||
		a.ToolType != b.ToolType || a.Title != b.Title || a.Status != b.Status {
		return false
	}
	switch {
	case a.DurationMs == nil && b.DurationMs == nil:
		return true
	case a.DurationMs == nil || b.DurationMs == nil:
		return false
	default:
		return *a.DurationMs == *b.DurationMs
	}
}
