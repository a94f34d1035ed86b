package threads

import (
	"sync"

	"codexmonitor/internal/types"
)

// =============================================================================
// STORE - Single Owner of Thread State
// =============================================================================

// Store is the single owner of thread state. All mutation goes through
// Dispatch, so concurrent writers are serialized in dispatch order.
type Store struct {
	mu       sync.RWMutex
	state    *State
	version  uint64
	emitFunc func(types.EventEnvelope)
}

// Change describes one identity change of the store.
type Change struct {
	Action  string `json:"action"`
	Version uint64 `json:"version"`
}

// NewStore creates a store with empty state. emitFunc may be nil.
func NewStore(emitFunc func(types.EventEnvelope)) *Store {
	return &Store{
		state:    NewState(),
		emitFunc: emitFunc,
	}
}

// Dispatch reduces one action and reports whether the state changed.
// A threads:changed event is emitted only when it did.
func (s *Store) Dispatch(action Action) bool {
	s.mu.Lock()
	prev := s.state
	next := Reduce(prev, action)
	if next == prev {
		s.mu.Unlock()
		return false
	}
	s.state = next
	s.version++
	version := s.version
	emit := s.emitFunc
	s.mu.Unlock()

	if emit != nil {
		workspaceID, threadID := routeOf(action)
		emit(types.EventEnvelope{
			WorkspaceID: workspaceID,
			ThreadID:    threadID,
			EventType:   types.EventThreadsChanged,
			Payload:     Change{Action: ActionType(action), Version: version},
		})
	}
	return true
}

// DispatchAll applies actions in order and reports whether any changed state.
func (s *Store) DispatchAll(actions ...Action) bool {
	changed := false
	for _, a := range actions {
		if s.Dispatch(a) {
			changed = true
		}
	}
	return changed
}

// Snapshot returns the current state. Callers must treat it as read-only.
func (s *Store) Snapshot() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Version increments on every identity change.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// SetEmitFunc replaces the change hook.
func (s *Store) SetEmitFunc(emitFunc func(types.EventEnvelope)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitFunc = emitFunc
}

// routeOf extracts envelope routing ids from an action.
func routeOf(action Action) (workspaceID, threadID string) {
	switch a := action.(type) {
	case SetActiveThreadID:
		return a.WorkspaceID, a.ThreadID
	case EnsureThread:
		return a.WorkspaceID, a.ThreadID
	case HideThread:
		return a.WorkspaceID, a.ThreadID
	case RemoveThread:
		return a.WorkspaceID, a.ThreadID
	case SetThreadName:
		return a.WorkspaceID, a.ThreadID
	case SetThreadTimestamp:
		return a.WorkspaceID, a.ThreadID
	case SetThreads:
		return a.WorkspaceID, ""
	case SetThreadListLoading:
		return a.WorkspaceID, ""
	case SetThreadListPaging:
		return a.WorkspaceID, ""
	case SetThreadListCursor:
		return a.WorkspaceID, ""
	case SetThreadParent:
		return "", a.ThreadID
	case MarkProcessing:
		return "", a.ThreadID
	case MarkReviewing:
		return "", a.ThreadID
	case MarkUnread:
		return "", a.ThreadID
	case SetActiveTurnID:
		return "", a.ThreadID
	case UpsertItem:
		return "", a.ThreadID
	case SetThreadItems:
		return "", a.ThreadID
	case SetTurnDiff:
		return "", a.ThreadID
	case SetThreadPlan:
		return "", a.ThreadID
	case MarkThreadActivity:
		return "", a.ThreadID
	}
	return "", ""
}
