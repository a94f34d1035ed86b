package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/wailsapp/wails/v2/pkg/logger"
)

// Kind distinguishes top-level project roots from git worktrees spawned off them.
type Kind string

const (
	KindMain     Kind = "main"
	KindWorktree Kind = "worktree"
)

// Settings holds the user-editable ordering of a workspace in the sidebar
type Settings struct {
	SortOrder int     `json:"sortOrder"`
	GroupID   *string `json:"groupId,omitempty"` // nil = ungrouped
}

// Workspace represents a saved workspace configuration
type Workspace struct {
	Version   int       `json:"version"` // Schema version
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Kind      Kind      `json:"kind"`
	ParentID  string    `json:"parentId,omitempty"` // worktrees only
	Settings  Settings  `json:"settings"`
	Connected bool      `json:"connected"` // runtime only, never written to disk
	Created   time.Time `json:"created"`
}

// CurrentWorkspaceVersion is the latest workspace schema version
const CurrentWorkspaceVersion = 1

// IsWorktree reports whether the workspace is a worktree of another workspace.
func (w Workspace) IsWorktree() bool {
	return w.Kind == KindWorktree
}

// GroupKey returns the group id or "" for ungrouped workspaces.
func (w Workspace) GroupKey() string {
	if w.Settings.GroupID == nil {
		return ""
	}
	return *w.Settings.GroupID
}

// CurrentWorkspace stores the active workspace ID
type CurrentWorkspace struct {
	ID string `json:"id"`
}

// Manager handles workspace operations
type Manager struct {
	configPath string
	Registry   *PathRegistry
	log        logger.Logger

	mu        sync.RWMutex
	connected map[string]bool
}

// NewManager creates a new workspace manager
func NewManager(configPath string, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefaultLogger()
	}

	// Ensure workspaces directory exists
	workspacesDir := filepath.Join(configPath, "workspaces")
	if err := os.MkdirAll(workspacesDir, 0755); err != nil {
		log.Warning(fmt.Sprintf("[workspace] failed to create %s: %v", workspacesDir, err))
	}

	registry := NewPathRegistry(configPath, log)
	if err := registry.Load(); err != nil {
		log.Warning(fmt.Sprintf("[workspace] failed to load path registry: %v", err))
	}

	return &Manager{
		configPath: configPath,
		Registry:   registry,
		log:        log,
		connected:  make(map[string]bool),
	}
}

func (m *Manager) workspacePath(id string) string {
	return filepath.Join(m.configPath, "workspaces", id+".json")
}

// GetAllWorkspaces returns every workspace in sidebar order: grouped by group id,
// then by sort order, then by name.
func (m *Manager) GetAllWorkspaces() ([]Workspace, error) {
	workspacesDir := filepath.Join(m.configPath, "workspaces")
	entries, err := os.ReadDir(workspacesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Workspace{}, nil
		}
		return nil, err
	}

	workspaces := []Workspace{} // Initialize as empty slice, not nil (nil becomes JSON null)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(workspacesDir, entry.Name()))
		if err != nil {
			continue
		}

		var ws Workspace
		if err := json.Unmarshal(data, &ws); err != nil {
			m.log.Warning(fmt.Sprintf("[workspace] skipping corrupt file %s: %v", entry.Name(), err))
			continue
		}
		ws.Connected = m.IsConnected(ws.ID)
		workspaces = append(workspaces, ws)
	}

	slices.SortStableFunc(workspaces, func(a, b Workspace) int {
		if c := strings.Compare(a.GroupKey(), b.GroupKey()); c != 0 {
			return c
		}
		if a.Settings.SortOrder != b.Settings.SortOrder {
			return a.Settings.SortOrder - b.Settings.SortOrder
		}
		return strings.Compare(a.Name, b.Name)
	})

	return workspaces, nil
}

// WorkspacesByID indexes all workspaces by id.
func (m *Manager) WorkspacesByID() (map[string]Workspace, error) {
	all, err := m.GetAllWorkspaces()
	if err != nil {
		return nil, err
	}
	return lo.KeyBy(all, func(ws Workspace) string { return ws.ID }), nil
}

// LoadWorkspace loads a workspace by ID
func (m *Manager) LoadWorkspace(id string) (*Workspace, error) {
	data, err := os.ReadFile(m.workspacePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("workspace not found: %s", id)
		}
		return nil, err
	}

	var ws Workspace
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, err
	}
	ws.Connected = m.IsConnected(ws.ID)

	return &ws, nil
}

// SaveWorkspace saves a workspace configuration
// Uses workspace ID for filename (stable, no rename issues)
func (m *Manager) SaveWorkspace(ws *Workspace) error {
	if ws.ID == "" {
		return fmt.Errorf("workspace has no id")
	}
	if ws.Created.IsZero() {
		ws.Created = time.Now()
	}
	if ws.Kind == "" {
		ws.Kind = KindMain
	}
	ws.Version = CurrentWorkspaceVersion

	onDisk := *ws
	onDisk.Connected = false
	data, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(m.workspacePath(ws.ID), data, 0644)
}

// CreateWorkspace registers a project folder as a new main workspace, appended
// to the end of the ungrouped list.
func (m *Manager) CreateWorkspace(name, path string) (*Workspace, error) {
	return m.create(name, path, KindMain, "")
}

// CreateWorktree registers a worktree folder under an existing workspace.
func (m *Manager) CreateWorktree(parentID, name, path string) (*Workspace, error) {
	parent, err := m.LoadWorkspace(parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load parent workspace: %w", err)
	}
	if parent.IsWorktree() {
		return nil, fmt.Errorf("workspace %s is itself a worktree", parentID)
	}
	return m.create(name, path, KindWorktree, parentID)
}

func (m *Manager) create(name, path string, kind Kind, parentID string) (*Workspace, error) {
	all, err := m.GetAllWorkspaces()
	if err != nil {
		return nil, err
	}

	id := m.Registry.GetOrCreateID(path)
	if lo.ContainsBy(all, func(ws Workspace) bool { return ws.ID == id }) {
		return nil, fmt.Errorf("folder already registered as workspace %s", id)
	}

	nextOrder := 0
	for _, ws := range all {
		if ws.Settings.GroupID == nil && ws.Settings.SortOrder >= nextOrder {
			nextOrder = ws.Settings.SortOrder + 1
		}
	}

	ws := &Workspace{
		ID:       id,
		Name:     name,
		Path:     path,
		Kind:     kind,
		ParentID: parentID,
		Settings: Settings{SortOrder: nextOrder},
		Created:  time.Now(),
	}
	if err := m.SaveWorkspace(ws); err != nil {
		return nil, err
	}
	return ws, nil
}

// DeleteWorkspace removes a workspace and any worktrees that hang off it.
func (m *Manager) DeleteWorkspace(id string) error {
	all, err := m.GetAllWorkspaces()
	if err != nil {
		return fmt.Errorf("failed to check workspaces: %w", err)
	}

	for _, ws := range all {
		if ws.ParentID == id {
			if err := os.Remove(m.workspacePath(ws.ID)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to delete worktree %s: %w", ws.ID, err)
			}
		}
	}

	if err := os.Remove(m.workspacePath(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("workspace not found: %s", id)
		}
		return fmt.Errorf("failed to delete workspace: %w", err)
	}

	m.mu.Lock()
	delete(m.connected, id)
	m.mu.Unlock()
	return nil
}

// RenameWorkspace changes a workspace's name by ID.
func (m *Manager) RenameWorkspace(id string, newName string) error {
	ws, err := m.LoadWorkspace(id)
	if err != nil {
		return fmt.Errorf("failed to load workspace: %w", err)
	}

	ws.Name = newName

	if err := m.SaveWorkspace(ws); err != nil {
		return fmt.Errorf("failed to save workspace: %w", err)
	}

	return nil
}

// =============================================================================
// ORDERING
// =============================================================================

// PersistWorkspaceOrder rewrites sort order and group for each workspace, one
// file at a time. A failure partway leaves earlier files rewritten; callers
// guard this with the reorder WAL.
func (m *Manager) PersistWorkspaceOrder(ordered []Workspace, groupID *string) error {
	for i, item := range ordered {
		ws, err := m.LoadWorkspace(item.ID)
		if err != nil {
			return fmt.Errorf("persist order %d/%d: %w", i+1, len(ordered), err)
		}
		ws.Settings.SortOrder = i
		ws.Settings.GroupID = cloneGroupID(groupID)
		if err := m.SaveWorkspace(ws); err != nil {
			return fmt.Errorf("persist order %d/%d (%s): %w", i+1, len(ordered), ws.ID, err)
		}
	}
	return nil
}

func cloneGroupID(groupID *string) *string {
	if groupID == nil {
		return nil
	}
	g := *groupID
	return &g
}

// =============================================================================
// CONNECTION STATE
// =============================================================================

// SetConnected records whether the backend currently holds a live session for the workspace.
func (m *Manager) SetConnected(id string, connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if connected {
		m.connected[id] = true
	} else {
		delete(m.connected, id)
	}
}

// IsConnected reports the last connection state recorded for the workspace.
func (m *Manager) IsConnected(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected[id]
}

// =============================================================================
// CURRENT WORKSPACE
// =============================================================================

// GetCurrentWorkspaceID returns the ID of the currently active workspace
func (m *Manager) GetCurrentWorkspaceID() (string, error) {
	data, err := os.ReadFile(filepath.Join(m.configPath, "current.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil // No current workspace set
		}
		return "", err
	}

	var current CurrentWorkspace
	if err := json.Unmarshal(data, &current); err != nil {
		return "", err
	}

	return current.ID, nil
}

// SetCurrentWorkspace sets the currently active workspace ID
func (m *Manager) SetCurrentWorkspace(id string) error {
	data, err := json.MarshalIndent(CurrentWorkspace{ID: id}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(m.configPath, "current.json"), data, 0644)
}
