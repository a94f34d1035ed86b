// Package reorder makes multi-file workspace reordering durable. The intended
// final order is written to local storage before the persist call and erased
// only after it succeeds; a leftover record is replayed at startup.
package reorder

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/wailsapp/wails/v2/pkg/logger"

	"codexmonitor/internal/kvstore"
	"codexmonitor/internal/workspace"
)

const (
	// StorageKey is the local-storage key holding the pending record.
	StorageKey = "codexmonitor.pendingWorkspaceReorder"

	recordVersion = 1

	// noGroupSentinel stands in for a nil group id so that "ungrouped" is
	// distinguishable from a missing or corrupted field.
	noGroupSentinel = "__codexmonitor_no_group__"
)

// PersistFunc writes an ordering for the given workspaces.
type PersistFunc func(ordered []workspace.Workspace, groupID *string) error

// PendingReorder is the decoded WAL record.
type PendingReorder struct {
	OrderedWorkspaceIDs []string
	GroupID             *string
	UpdatedAt           time.Time
}

type storedRecord struct {
	Version             int      `json:"version"`
	OrderedWorkspaceIDs []string `json:"orderedWorkspaceIds"`
	GroupID             *string  `json:"groupId"`
	UpdatedAt           int64    `json:"updatedAt"`
}

// WAL owns the pending-reorder record in a Storage.
type WAL struct {
	storage kvstore.Storage
	log     logger.Logger
	now     func() time.Time
}

// New creates a WAL over storage.
func New(storage kvstore.Storage, log logger.Logger) *WAL {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &WAL{storage: storage, log: log, now: time.Now}
}

// Save records the intended order. Ids are deduplicated keeping first occurrence.
func (w *WAL) Save(orderedWorkspaceIDs []string, groupID *string) error {
	ids := lo.Uniq(lo.Compact(orderedWorkspaceIDs))
	group := noGroupSentinel
	if groupID != nil {
		group = *groupID
	}

	raw, err := json.Marshal(storedRecord{
		Version:             recordVersion,
		OrderedWorkspaceIDs: ids,
		GroupID:             &group,
		UpdatedAt:           w.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode pending reorder: %w", err)
	}
	if err := w.storage.SetItem(StorageKey, string(raw)); err != nil {
		return fmt.Errorf("save pending reorder: %w", err)
	}
	return nil
}

// Load returns the pending record, or nil when there is none or it is unreadable.
func (w *WAL) Load() *PendingReorder {
	raw, ok := w.storage.GetItem(StorageKey)
	if !ok || raw == "" {
		return nil
	}

	var rec storedRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		w.log.Warning(fmt.Sprintf("[reorder] ignoring malformed pending reorder: %v", err))
		return nil
	}
	if rec.Version != recordVersion || rec.GroupID == nil {
		w.log.Warning(fmt.Sprintf("[reorder] ignoring pending reorder with version=%d groupId=%v", rec.Version, rec.GroupID))
		return nil
	}

	pending := &PendingReorder{
		OrderedWorkspaceIDs: lo.Uniq(lo.Compact(rec.OrderedWorkspaceIDs)),
		UpdatedAt:           time.UnixMilli(rec.UpdatedAt),
	}
	if *rec.GroupID != noGroupSentinel {
		g := *rec.GroupID
		pending.GroupID = &g
	}
	return pending
}

// Clear erases the pending record.
func (w *WAL) Clear() error {
	if err := w.storage.RemoveItem(StorageKey); err != nil {
		return fmt.Errorf("clear pending reorder: %w", err)
	}
	return nil
}

// PersistWorkspaceOrderWithWAL records the order, calls persist, and clears the
// record once persist succeeds. A persist error is returned and the record kept
// for replay. Orders of one workspace or fewer are not persisted.
func (w *WAL) PersistWorkspaceOrderWithWAL(ordered []workspace.Workspace, groupID *string, persist PersistFunc) error {
	if len(ordered) <= 1 {
		return nil
	}

	ids := lo.Map(ordered, func(ws workspace.Workspace, _ int) string { return ws.ID })
	if err := w.Save(ids, groupID); err != nil {
		// Without a durable intent the persist still runs; the order is just not replayable.
		w.log.Warning(fmt.Sprintf("[reorder] %v", err))
	}

	if err := persist(ordered, groupID); err != nil {
		w.log.Warning(fmt.Sprintf("[reorder] persist failed, keeping pending reorder for replay: %v", err))
		return err
	}

	if err := w.Clear(); err != nil {
		w.log.Warning(fmt.Sprintf("[reorder] %v", err))
	}
	return nil
}

// ReplayPendingWorkspaceReorder re-applies a record left by an interrupted reorder.
// Ids that no longer exist or now name worktrees are dropped; fewer than two
// survivors make the record obsolete and it is cleared without persisting.
// Returns true only when persist was called and succeeded.
func (w *WAL) ReplayPendingWorkspaceReorder(workspaceByID map[string]workspace.Workspace, persist PersistFunc) bool {
	pending := w.Load()
	if pending == nil {
		return false
	}

	resolved := make([]workspace.Workspace, 0, len(pending.OrderedWorkspaceIDs))
	for _, id := range pending.OrderedWorkspaceIDs {
		ws, ok := workspaceByID[id]
		if !ok || ws.IsWorktree() {
			continue
		}
		resolved = append(resolved, ws)
	}

	if len(resolved) < 2 {
		w.log.Info(fmt.Sprintf("[reorder] pending reorder obsolete (%d of %d workspaces resolvable), clearing",
			len(resolved), len(pending.OrderedWorkspaceIDs)))
		if err := w.Clear(); err != nil {
			w.log.Warning(fmt.Sprintf("[reorder] %v", err))
		}
		return false
	}

	if err := persist(resolved, pending.GroupID); err != nil {
		w.log.Warning(fmt.Sprintf("[reorder] replay failed, will retry next startup: %v", err))
		return false
	}

	if err := w.Clear(); err != nil {
		w.log.Warning(fmt.Sprintf("[reorder] %v", err))
	}
	w.log.Info(fmt.Sprintf("[reorder] replayed pending reorder of %d workspaces", len(resolved)))
	return true
}
