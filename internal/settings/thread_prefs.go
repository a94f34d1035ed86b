package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/samber/lo"
)

const ThreadPrefsFile = "thread-prefs.json"

// threadPrefsData is the on-disk layout.
// Example: {"hidden": {"ws-1": ["thread-9"]}, "active": {"ws-1": "thread-3"}}
type threadPrefsData struct {
	Hidden map[string][]string `json:"hidden"` // workspace ID -> hidden thread IDs
	Active map[string]string   `json:"active"` // workspace ID -> last active thread ID
}

// ThreadPrefs persists which threads the user hid and which thread was last
// active per workspace, so both survive a restart.
type ThreadPrefs struct {
	configPath string
	data       threadPrefsData
	mu         sync.RWMutex
}

// NewThreadPrefs creates a thread preference store and loads it from disk
func NewThreadPrefs(configPath string) (*ThreadPrefs, error) {
	tp := &ThreadPrefs{
		configPath: configPath,
		data: threadPrefsData{
			Hidden: make(map[string][]string),
			Active: make(map[string]string),
		},
	}
	err := tp.load()
	return tp, err
}

// HiddenThreads returns the hidden thread IDs for a workspace
func (tp *ThreadPrefs) HiddenThreads(workspaceID string) []string {
	tp.mu.RLock()
	defer tp.mu.RUnlock()
	return slices.Clone(tp.data.Hidden[workspaceID])
}

// AllHidden returns a copy of every workspace's hidden set
func (tp *ThreadPrefs) AllHidden() map[string][]string {
	tp.mu.RLock()
	defer tp.mu.RUnlock()

	result := make(map[string][]string, len(tp.data.Hidden))
	for k, v := range tp.data.Hidden {
		result[k] = slices.Clone(v)
	}
	return result
}

// HideThread records a hidden thread. Already hidden threads are not rewritten.
func (tp *ThreadPrefs) HideThread(workspaceID, threadID string) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if slices.Contains(tp.data.Hidden[workspaceID], threadID) {
		return nil
	}
	tp.data.Hidden[workspaceID] = append(tp.data.Hidden[workspaceID], threadID)
	if tp.data.Active[workspaceID] == threadID {
		delete(tp.data.Active, workspaceID)
	}
	return tp.save()
}

// ForgetWorkspace drops all preferences of a deleted workspace
func (tp *ThreadPrefs) ForgetWorkspace(workspaceID string) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	_, hadHidden := tp.data.Hidden[workspaceID]
	_, hadActive := tp.data.Active[workspaceID]
	if !hadHidden && !hadActive {
		return nil
	}
	delete(tp.data.Hidden, workspaceID)
	delete(tp.data.Active, workspaceID)
	return tp.save()
}

// ActiveThread returns the last active thread of a workspace, or ""
func (tp *ThreadPrefs) ActiveThread(workspaceID string) string {
	tp.mu.RLock()
	defer tp.mu.RUnlock()
	return tp.data.Active[workspaceID]
}

// SetActiveThread records the active thread of a workspace; "" clears it
func (tp *ThreadPrefs) SetActiveThread(workspaceID, threadID string) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if tp.data.Active[workspaceID] == threadID {
		return nil
	}
	if threadID == "" {
		delete(tp.data.Active, workspaceID)
	} else {
		tp.data.Active[workspaceID] = threadID
	}
	return tp.save()
}

// load reads thread prefs from disk
func (tp *ThreadPrefs) load() error {
	data, err := os.ReadFile(filepath.Join(tp.configPath, ThreadPrefsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return err
	}

	var d threadPrefsData
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	if d.Hidden != nil {
		for ws, ids := range d.Hidden {
			d.Hidden[ws] = lo.Uniq(ids)
		}
		tp.data.Hidden = d.Hidden
	}
	if d.Active != nil {
		tp.data.Active = d.Active
	}
	return nil
}

// save writes thread prefs to disk. Caller holds the write lock.
func (tp *ThreadPrefs) save() error {
	jsonData, err := json.MarshalIndent(tp.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(tp.configPath, ThreadPrefsFile), jsonData, 0644)
}
