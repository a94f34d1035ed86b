// Package threadparams caches the per-thread model settings the user picked
// (model, reasoning effort, access and collaboration mode) and mirrors them
// to local storage.
package threadparams

import (
	"encoding/json"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2/pkg/logger"

	"codexmonitor/internal/kvstore"
)

// StorageKey is the local-storage key holding the whole cache.
const StorageKey = "codexmonitor.threadCodexParams"

// Params are the per-thread overrides. Empty fields mean "use the workspace default".
type Params struct {
	Model             string `json:"model,omitempty"`
	Effort            string `json:"effort,omitempty"`
	AccessMode        string `json:"accessMode,omitempty"`
	CollaborationMode string `json:"collaborationMode,omitempty"`
	UpdatedAt         int64  `json:"updatedAt"`
}

// Patch is a partial update; nil fields are left alone.
type Patch struct {
	Model             *string `json:"model,omitempty"`
	Effort            *string `json:"effort,omitempty"`
	AccessMode        *string `json:"accessMode,omitempty"`
	CollaborationMode *string `json:"collaborationMode,omitempty"`
}

// Key builds the cache key for a thread.
func Key(workspaceID, threadID string) string {
	return workspaceID + ":" + threadID
}

// Cache is a process-scoped owned cache. Version increases on every change so
// observers can detect updates without diffing.
type Cache struct {
	mu       sync.RWMutex
	storage  kvstore.Storage
	log      logger.Logger
	entries  map[string]Params
	version  uint64
	now      func() time.Time
	onChange func(version uint64)
}

// NewCache creates an empty cache over storage. Call Load before use.
func NewCache(storage kvstore.Storage, log logger.Logger) *Cache {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &Cache{
		storage: storage,
		log:     log,
		entries: make(map[string]Params),
		now:     time.Now,
	}
}

// SetOnChange registers a callback invoked (outside the lock) after each change.
func (c *Cache) SetOnChange(fn func(version uint64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Load reads the cache from storage. Missing or malformed data yields an empty cache.
func (c *Cache) Load() {
	c.mu.Lock()
	entries := make(map[string]Params)
	if raw, ok := c.storage.GetItem(StorageKey); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			c.log.Warning(fmt.Sprintf("[threadparams] discarding malformed cache: %v", err))
			entries = make(map[string]Params)
		}
	}
	c.entries = entries
	c.version++
	version, notify := c.version, c.onChange
	c.mu.Unlock()

	if notify != nil {
		notify(version)
	}
}

// Get returns the params for a thread.
func (c *Cache) Get(workspaceID, threadID string) (Params, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.entries[Key(workspaceID, threadID)]
	return p, ok
}

// All returns a copy of every entry.
func (c *Cache) All() map[string]Params {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.entries)
}

// Version returns the change counter.
func (c *Cache) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// Patch merges p into the thread's params and persists. A patch that changes
// nothing does not bump the version or touch storage.
func (c *Cache) Patch(workspaceID, threadID string, p Patch) (Params, error) {
	key := Key(workspaceID, threadID)

	c.mu.Lock()
	prev, existed := c.entries[key]
	next := prev
	applyString(&next.Model, p.Model)
	applyString(&next.Effort, p.Effort)
	applyString(&next.AccessMode, p.AccessMode)
	applyString(&next.CollaborationMode, p.CollaborationMode)
	if existed && next == prev {
		c.mu.Unlock()
		return prev, nil
	}
	next.UpdatedAt = c.now().UnixMilli()
	c.entries[key] = next
	err := c.persistLocked()
	c.version++
	version, notify := c.version, c.onChange
	c.mu.Unlock()

	if notify != nil {
		notify(version)
	}
	return next, err
}

// Delete drops a thread's params.
func (c *Cache) Delete(workspaceID, threadID string) error {
	key := Key(workspaceID, threadID)

	c.mu.Lock()
	if _, ok := c.entries[key]; !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.entries, key)
	err := c.persistLocked()
	c.version++
	version, notify := c.version, c.onChange
	c.mu.Unlock()

	if notify != nil {
		notify(version)
	}
	return err
}

func (c *Cache) persistLocked() error {
	raw, err := json.Marshal(c.entries)
	if err != nil {
		return fmt.Errorf("encode thread params: %w", err)
	}
	if err := c.storage.SetItem(StorageKey, string(raw)); err != nil {
		return fmt.Errorf("persist thread params: %w", err)
	}
	return nil
}

func applyString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
