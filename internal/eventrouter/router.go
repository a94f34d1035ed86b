// Package eventrouter turns backend push events into thread store actions.
// Every event that names a thread also counts as an activity signal for the
// stale evaluator.
package eventrouter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2/pkg/logger"

	"codexmonitor/internal/backend"
	"codexmonitor/internal/threads"
	"codexmonitor/internal/types"
)

// Backend push event methods
const (
	EventThreadStarted     = "thread/started"
	EventThreadNameUpdated = "thread/name/updated"
	EventThreadParent      = "thread/parent"
	EventTurnStarted       = "turn/started"
	EventTurnCompleted     = "turn/completed"
	EventTurnDiffUpdated   = "turn/diff/updated"
	EventTurnPlanUpdated   = "turn/plan/updated"
	EventItemStarted       = "item/started"
	EventItemCompleted     = "item/completed"
	EventError             = "error"
)

// params is the union of fields carried by push events.
type params struct {
	WorkspaceID string                  `json:"workspaceId"`
	ThreadID    string                  `json:"threadId"`
	TurnID      string                  `json:"turnId"`
	Name        string                  `json:"name"`
	ParentID    string                  `json:"parentId"`
	Diff        string                  `json:"diff"`
	Plan        *threads.TurnPlan       `json:"plan"`
	Item        *types.ConversationItem `json:"item"`
	Thread      *backend.RemoteThread   `json:"thread"`
	Message     string                  `json:"message"`
	WillRetry   bool                    `json:"willRetry"`
}

// Router applies backend events to a thread store.
type Router struct {
	store *threads.Store
	log   logger.Logger
	now   func() time.Time

	mu        sync.RWMutex
	subagents map[string]bool
}

// New creates a router dispatching into store.
func New(store *threads.Store, log logger.Logger) *Router {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &Router{
		store:     store,
		log:       log,
		now:       time.Now,
		subagents: make(map[string]bool),
	}
}

// Run routes events until ctx is cancelled.
func (r *Router) Run(ctx context.Context, events <-chan backend.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.Route(ev)
		}
	}
}

// Route applies one event and reports whether it was understood.
func (r *Router) Route(ev backend.Event) bool {
	var p params
	if err := ev.Decode(&p); err != nil {
		r.log.Warning(fmt.Sprintf("[eventrouter] bad params for %s: %v", ev.Method, err))
		return false
	}
	if p.ThreadID == "" && p.Thread != nil {
		p.ThreadID = p.Thread.ID
	}

	// Events without a specific mapping (deltas, token counts) still prove the thread is alive.
	actions := r.actionsFor(ev.Method, p)
	if p.ThreadID != "" {
		actions = append(actions, threads.MarkThreadActivity{ThreadID: p.ThreadID, Timestamp: r.now()})
	}
	if len(actions) == 0 {
		r.log.Debug(fmt.Sprintf("[eventrouter] ignoring %s", ev.Method))
		return false
	}
	r.store.DispatchAll(actions...)
	return true
}

func (r *Router) actionsFor(method string, p params) []threads.Action {
	now := r.now()
	switch method {
	case EventThreadStarted:
		if p.Thread == nil || p.Thread.ID == "" {
			return nil
		}
		if p.Thread.IsSubagent {
			r.MarkSubagent(p.Thread.ID)
		}
		actions := []threads.Action{
			threads.EnsureThread{WorkspaceID: p.WorkspaceID, ThreadID: p.Thread.ID, Timestamp: now},
		}
		if p.Thread.Name != "" {
			actions = append(actions, threads.SetThreadName{WorkspaceID: p.WorkspaceID, ThreadID: p.Thread.ID, Name: p.Thread.Name})
		}
		if p.Thread.ParentID != "" {
			actions = append(actions, threads.SetThreadParent{ThreadID: p.Thread.ID, ParentID: p.Thread.ParentID})
		}
		return actions

	case EventThreadNameUpdated:
		return []threads.Action{threads.SetThreadName{WorkspaceID: p.WorkspaceID, ThreadID: p.ThreadID, Name: p.Name}}

	case EventThreadParent:
		return []threads.Action{threads.SetThreadParent{ThreadID: p.ThreadID, ParentID: p.ParentID}}

	case EventTurnStarted:
		return []threads.Action{
			threads.EnsureThread{WorkspaceID: p.WorkspaceID, ThreadID: p.ThreadID, Timestamp: now},
			threads.MarkProcessing{ThreadID: p.ThreadID, IsProcessing: true, Timestamp: now},
			threads.SetActiveTurnID{ThreadID: p.ThreadID, TurnID: p.TurnID},
			threads.SetThreadTimestamp{WorkspaceID: p.WorkspaceID, ThreadID: p.ThreadID, Timestamp: now},
		}

	case EventTurnCompleted:
		actions := []threads.Action{
			threads.MarkProcessing{ThreadID: p.ThreadID, IsProcessing: false, Timestamp: now},
			threads.SetActiveTurnID{ThreadID: p.ThreadID, TurnID: ""},
			threads.SetThreadTimestamp{WorkspaceID: p.WorkspaceID, ThreadID: p.ThreadID, Timestamp: now},
		}
		if r.store.Snapshot().ActiveThreadID(p.WorkspaceID) != p.ThreadID {
			actions = append(actions, threads.MarkUnread{ThreadID: p.ThreadID, HasUnread: true})
		}
		return actions

	case EventTurnDiffUpdated:
		return []threads.Action{threads.SetTurnDiff{ThreadID: p.ThreadID, Diff: p.Diff}}

	case EventTurnPlanUpdated:
		return []threads.Action{threads.SetThreadPlan{ThreadID: p.ThreadID, Plan: p.Plan}}

	case EventItemStarted, EventItemCompleted:
		if p.Item == nil || p.Item.ID == "" {
			return nil
		}
		actions := []threads.Action{threads.UpsertItem{ThreadID: p.ThreadID, Item: *p.Item}}
		if p.Item.Kind == types.ItemKindReview {
			actions = append(actions, threads.MarkReviewing{ThreadID: p.ThreadID, IsReviewing: method == EventItemStarted})
		}
		return actions

	case EventError:
		if p.WillRetry {
			return nil
		}
		r.log.Warning(fmt.Sprintf("[eventrouter] turn failed on %s: %s", p.ThreadID, p.Message))
		return []threads.Action{
			threads.MarkProcessing{ThreadID: p.ThreadID, IsProcessing: false, Timestamp: now},
			threads.SetActiveTurnID{ThreadID: p.ThreadID, TurnID: ""},
		}
	}
	return nil
}

// =============================================================================
// SUBAGENT REGISTRY
// =============================================================================

// MarkSubagent records that a thread was spawned by an agent rather than a user.
func (r *Router) MarkSubagent(threadID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subagents[threadID] = true
}

// IsSubagent reports whether a thread was spawned by an agent.
func (r *Router) IsSubagent(threadID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subagents[threadID]
}
