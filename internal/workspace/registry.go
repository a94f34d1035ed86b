package workspace

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/wailsapp/wails/v2/pkg/logger"
)

// PathRegistry maintains a global folder→UUID mapping so that re-adding a
// project folder yields the same workspace ID, and thread caches keyed by
// that ID survive a remove/re-add cycle.
//
// Persisted at: ~/.codexmonitor/workspace-ids.json
type PathRegistry struct {
	mu       sync.RWMutex
	filePath string
	log      logger.Logger
	data     registryData
}

type registryData struct {
	Version    int               `json:"version"`
	Workspaces map[string]string `json:"workspaces"` // folder path → UUID
}

// NewPathRegistry creates a registry backed by a file in configPath.
func NewPathRegistry(configPath string, log logger.Logger) *PathRegistry {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &PathRegistry{
		filePath: filepath.Join(configPath, "workspace-ids.json"),
		log:      log,
		data: registryData{
			Version:    1,
			Workspaces: make(map[string]string),
		},
	}
}

// Load reads the registry from disk. If the file doesn't exist, starts empty.
func (r *PathRegistry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, err := os.ReadFile(r.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var d registryData
	if err := json.Unmarshal(raw, &d); err != nil {
		r.log.Warning(fmt.Sprintf("[workspace] corrupt path registry at %s, starting fresh: %v", r.filePath, err))
		return nil
	}

	if d.Workspaces == nil {
		d.Workspaces = make(map[string]string)
	}
	r.data = d
	r.log.Debug(fmt.Sprintf("[workspace] path registry loaded: %d entries", len(r.data.Workspaces)))
	return nil
}

// save writes the registry to disk. Caller holds the write lock.
func (r *PathRegistry) save() error {
	raw, err := json.MarshalIndent(r.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.filePath, raw, 0644)
}

// GetOrCreateID returns the stable UUID for a folder. If the folder has
// never been seen, a new UUID is generated, persisted, and returned.
func (r *PathRegistry) GetOrCreateID(folder string) string {
	folder = filepath.Clean(folder)

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.data.Workspaces[folder]; ok {
		return id
	}

	id := uuid.New().String()
	r.data.Workspaces[folder] = id
	if err := r.save(); err != nil {
		r.log.Warning(fmt.Sprintf("[workspace] failed to persist path registry: %v", err))
	}
	return id
}

// GetID returns the UUID for a folder without creating one. Returns empty
// string if the folder is not registered.
func (r *PathRegistry) GetID(folder string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data.Workspaces[filepath.Clean(folder)]
}

// AllEntries returns a copy of the registry map (for debugging/inspection).
func (r *PathRegistry) AllEntries() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.data.Workspaces)
}
