package eventrouter

import (
	"time"

	"github.com/samber/lo"

	"codexmonitor/internal/backend"
	"codexmonitor/internal/threads"
)

// =============================================================================
// RESPONSE SYNC - backend query results -> store
// =============================================================================

// ApplyThreadPage replaces (or, for older pages, extends) a workspace's
// thread list with a listing page.
func (r *Router) ApplyThreadPage(workspaceID string, page *backend.ThreadPage, older bool) {
	if page == nil {
		return
	}
	summaries := lo.Map(page.Threads, func(t backend.RemoteThread, _ int) threads.ThreadSummary {
		return summaryOf(t)
	})
	if older {
		existing := r.store.Snapshot().Threads(workspaceID)
		summaries = lo.UniqBy(append(append([]threads.ThreadSummary{}, existing...), summaries...), func(t threads.ThreadSummary) string {
			return t.ID
		})
	}

	actions := []threads.Action{
		threads.SetThreads{WorkspaceID: workspaceID, Threads: summaries},
		threads.SetThreadListCursor{WorkspaceID: workspaceID, Cursor: page.NextCursor},
	}
	for _, t := range page.Threads {
		actions = append(actions, r.lineageActions(t)...)
	}
	r.store.DispatchAll(actions...)
}

// ApplyThreadDetail reconciles one thread with a resume/refresh response.
func (r *Router) ApplyThreadDetail(workspaceID string, d *backend.ThreadDetail) {
	if d == nil || d.Thread.ID == "" {
		return
	}
	id := d.Thread.ID
	now := r.now()

	startedAt := now
	if d.ProcessingStartedAt > 0 {
		startedAt = time.UnixMilli(d.ProcessingStartedAt)
	}

	actions := []threads.Action{
		threads.EnsureThread{WorkspaceID: workspaceID, ThreadID: id, Timestamp: now},
		threads.SetThreadItems{ThreadID: id, Items: d.Items},
		threads.SetActiveTurnID{ThreadID: id, TurnID: d.ActiveTurnID},
		threads.MarkProcessing{ThreadID: id, IsProcessing: d.IsProcessing, Timestamp: startedAt},
	}
	if d.Thread.Name != "" {
		actions = append(actions, threads.SetThreadName{WorkspaceID: workspaceID, ThreadID: id, Name: d.Thread.Name})
	}
	if d.Thread.UpdatedAt > 0 {
		updated := time.UnixMilli(d.Thread.UpdatedAt)
		actions = append(actions,
			threads.SetThreadTimestamp{WorkspaceID: workspaceID, ThreadID: id, Timestamp: updated},
			threads.MarkThreadActivity{ThreadID: id, Timestamp: updated},
		)
	}
	actions = append(actions, r.lineageActions(d.Thread)...)
	r.store.DispatchAll(actions...)
}

func (r *Router) lineageActions(t backend.RemoteThread) []threads.Action {
	if t.IsSubagent {
		r.MarkSubagent(t.ID)
	}
	if t.ParentID == "" {
		return nil
	}
	return []threads.Action{threads.SetThreadParent{ThreadID: t.ID, ParentID: t.ParentID}}
}

func summaryOf(t backend.RemoteThread) threads.ThreadSummary {
	s := threads.ThreadSummary{ID: t.ID, Name: t.Name}
	if t.UpdatedAt > 0 {
		s.UpdatedAt = time.UnixMilli(t.UpdatedAt)
	}
	return s
}
