// Package threads holds the normalized client-side thread store.
//
// State is copy-on-write: Reduce never mutates the State it is given and
// returns the very same pointer when an action changes nothing, so callers
// can use pointer identity as their change signal.
package threads

import (
	"encoding/json"
	"maps"
	"time"

	"codexmonitor/internal/types"
)

// =============================================================================
// DATA MODEL
// =============================================================================

// SortKey selects how a workspace's thread list is ordered.
type SortKey string

const (
	SortByCreatedAt SortKey = "created_at"
	SortByUpdatedAt SortKey = "updated_at"
)

// ThreadSummary is one row of a workspace's thread list.
type ThreadSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ThreadStatus is the per-thread lifecycle record.
// ProcessingStartedAt is non-zero only while IsProcessing is true.
type ThreadStatus struct {
	IsProcessing        bool           `json:"isProcessing"`
	HasUnread           bool           `json:"hasUnread"`
	IsReviewing         bool           `json:"isReviewing"`
	ProcessingStartedAt time.Time      `json:"processingStartedAt"`
	LastDuration        *time.Duration `json:"-"`
}

type statusAlias ThreadStatus

type statusJSON struct {
	statusAlias
	LastDurationMs *int64 `json:"lastDurationMs"`
}

// MarshalJSON encodes LastDuration as whole milliseconds.
func (s ThreadStatus) MarshalJSON() ([]byte, error) {
	out := statusJSON{statusAlias: statusAlias(s)}
	if s.LastDuration != nil {
		ms := s.LastDuration.Milliseconds()
		out.LastDurationMs = &ms
	}
	return json.Marshal(out)
}

func (s *ThreadStatus) UnmarshalJSON(data []byte) error {
	var raw statusJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ThreadStatus(raw.statusAlias)
	if raw.LastDurationMs != nil {
		d := time.Duration(*raw.LastDurationMs) * time.Millisecond
		s.LastDuration = &d
	}
	return nil
}

// Equal compares two statuses field by field.
func (s ThreadStatus) Equal(o ThreadStatus) bool {
	if s.IsProcessing != o.IsProcessing || s.HasUnread != o.HasUnread || s.IsReviewing != o.IsReviewing {
		return false
	}
	if !s.ProcessingStartedAt.Equal(o.ProcessingStartedAt) {
		return false
	}
	switch {
	case s.LastDuration == nil && o.LastDuration == nil:
		return true
	case s.LastDuration == nil || o.LastDuration == nil:
		return false
	default:
		return *s.LastDuration == *o.LastDuration
	}
}

// PlanStep is one step of a turn plan.
type PlanStep struct {
	Step   string `json:"step"`
	Status string `json:"status"` // pending, inProgress, completed
}

// TurnPlan is the latest plan reported for a thread's turn.
type TurnPlan struct {
	TurnID      string     `json:"turnId"`
	Explanation string     `json:"explanation,omitempty"`
	Steps       []PlanStep `json:"steps"`
}

// State is the complete thread store.
type State struct {
	ThreadsByWorkspace           map[string][]ThreadSummary
	HiddenThreadIDsByWorkspace   map[string]map[string]bool
	ActiveThreadIDByWorkspace    map[string]string
	ThreadStatusByID             map[string]ThreadStatus
	ItemsByThread                map[string][]types.ConversationItem
	ActiveTurnIDByThread         map[string]string
	TurnDiffByThread             map[string]string
	PlanByThread                 map[string]*TurnPlan
	ThreadParentByID             map[string]string
	LastActivityAtByThread       map[string]time.Time
	ThreadListLoadingByWorkspace map[string]bool
	ThreadListPagingByWorkspace  map[string]bool
	ThreadListCursorByWorkspace  map[string]string
	ThreadSortKeyByWorkspace     map[string]SortKey
}

// NewState returns an empty store state.
func NewState() *State {
	return &State{
		ThreadsByWorkspace:           map[string][]ThreadSummary{},
		HiddenThreadIDsByWorkspace:   map[string]map[string]bool{},
		ActiveThreadIDByWorkspace:    map[string]string{},
		ThreadStatusByID:             map[string]ThreadStatus{},
		ItemsByThread:                map[string][]types.ConversationItem{},
		ActiveTurnIDByThread:         map[string]string{},
		TurnDiffByThread:             map[string]string{},
		PlanByThread:                 map[string]*TurnPlan{},
		ThreadParentByID:             map[string]string{},
		LastActivityAtByThread:       map[string]time.Time{},
		ThreadListLoadingByWorkspace: map[string]bool{},
		ThreadListPagingByWorkspace:  map[string]bool{},
		ThreadListCursorByWorkspace:  map[string]string{},
		ThreadSortKeyByWorkspace:     map[string]SortKey{},
	}
}

// =============================================================================
// READ HELPERS
// =============================================================================

// Threads returns the visible thread list of a workspace.
func (s *State) Threads(workspaceID string) []ThreadSummary {
	return s.ThreadsByWorkspace[workspaceID]
}

// Status returns a thread's status (zero value when unknown).
func (s *State) Status(threadID string) ThreadStatus {
	return s.ThreadStatusByID[threadID]
}

// ActiveThreadID returns the active thread of a workspace, or "".
func (s *State) ActiveThreadID(workspaceID string) string {
	return s.ActiveThreadIDByWorkspace[workspaceID]
}

// IsHidden reports whether a thread was soft-deleted in a workspace.
func (s *State) IsHidden(workspaceID, threadID string) bool {
	return s.HiddenThreadIDsByWorkspace[workspaceID][threadID]
}

// WorkspaceIDForThread finds the workspace listing a thread.
func (s *State) WorkspaceIDForThread(threadID string) (string, bool) {
	for workspaceID, list := range s.ThreadsByWorkspace {
		if indexOf(list, threadID) >= 0 {
			return workspaceID, true
		}
	}
	return "", false
}

func indexOf(list []ThreadSummary, threadID string) int {
	for i, t := range list {
		if t.ID == threadID {
			return i
		}
	}
	return -1
}

// =============================================================================
// COPY-ON-WRITE HELPERS
// =============================================================================

// clone returns a shallow copy; maps are still shared until replaced.
func (s *State) clone() *State {
	next := *s
	return &next
}

func withKey[K comparable, V any](m map[K]V, key K, value V) map[K]V {
	next := maps.Clone(m)
	if next == nil {
		next = make(map[K]V, 1)
	}
	next[key] = value
	return next
}

func withoutKey[K comparable, V any](m map[K]V, key K) map[K]V {
	if _, ok := m[key]; !ok {
		return m
	}
	next := maps.Clone(m)
	delete(next, key)
	return next
}
