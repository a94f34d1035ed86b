package settings

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	ConfigDir    = ".codexmonitor"
	SettingsFile = "settings.json"
	StorageFile  = "storage.db"
	LogFile      = "codexmonitor.log"
)

// Backend modes
const (
	BackendModeLocal  = "local"
	BackendModeRemote = "remote"
)

const (
	DefaultPollIntervalSeconds = 12
	DefaultFocusDebounceMs     = 500
	DefaultMCPPort             = 9325
)

// Settings holds all application settings
type Settings struct {
	Theme               string `json:"theme"`               // "dark", "light", "system"
	BackendMode         string `json:"backendMode"`         // "local", "remote"
	RemoteBackendURL    string `json:"remoteBackendUrl"`    // ws:// or wss:// daemon endpoint
	RemoteBackendToken  string `json:"remoteBackendToken"`  // bearer token for the daemon
	PollIntervalSeconds int    `json:"pollIntervalSeconds"` // background refresh of the idle active thread
	FocusDebounceMs     int    `json:"focusDebounceMs"`     // delay between focus regain and refresh
	MCPEnabled          bool   `json:"mcpEnabled"`          // expose thread liveness over MCP
	MCPPort             int    `json:"mcpPort"`             // SSE server port
	DebugLogging        bool   `json:"debugLogging"`        // verbose backend/refresh logging
}

// PollInterval returns the poll interval as a duration.
func (s Settings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSeconds) * time.Second
}

// FocusDebounce returns the focus debounce as a duration.
func (s Settings) FocusDebounce() time.Duration {
	return time.Duration(s.FocusDebounceMs) * time.Millisecond
}

// IsRemote reports whether the app drives a remote daemon.
func (s Settings) IsRemote() bool {
	return s.BackendMode == BackendModeRemote
}

// Validate checks the settings before they are saved.
func (s Settings) Validate() error {
	switch s.BackendMode {
	case BackendModeLocal:
	case BackendModeRemote:
		u, err := url.Parse(s.RemoteBackendURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			return fmt.Errorf("remote backend url must be ws:// or wss://, got %q", s.RemoteBackendURL)
		}
	default:
		return fmt.Errorf("unknown backend mode %q", s.BackendMode)
	}
	if s.PollIntervalSeconds < 0 || s.FocusDebounceMs < 0 {
		return fmt.Errorf("intervals must not be negative")
	}
	if s.MCPPort < 0 || s.MCPPort > 65535 {
		return fmt.Errorf("invalid mcp port %d", s.MCPPort)
	}
	return nil
}

// Manager handles all settings operations
type Manager struct {
	configPath string
	settings   *Settings
	mu         sync.RWMutex
}

// NewManager creates a settings manager rooted at ~/.codexmonitor
func NewManager() (*Manager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return NewManagerAt(filepath.Join(homeDir, ConfigDir))
}

// NewManagerAt creates a settings manager rooted at configPath.
func NewManagerAt(configPath string) (*Manager, error) {
	// Ensure config directory exists
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return nil, err
	}

	m := &Manager{
		configPath: configPath,
		settings:   defaultSettings(),
	}

	// Load existing settings
	if err := m.readJSON(SettingsFile, m.settings); err != nil {
		return m, fmt.Errorf("failed to read settings, using defaults: %w", err)
	}
	m.settings.applyDefaults()

	return m, nil
}

// GetConfigPath returns the path to the config directory
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// SettingsPath returns the settings file path (watched for hot reload).
func (m *Manager) SettingsPath() string {
	return filepath.Join(m.configPath, SettingsFile)
}

// defaultSettings returns default settings
func defaultSettings() *Settings {
	return &Settings{
		Theme:               "dark",
		BackendMode:         BackendModeLocal,
		PollIntervalSeconds: DefaultPollIntervalSeconds,
		FocusDebounceMs:     DefaultFocusDebounceMs,
		MCPEnabled:          true,
		MCPPort:             DefaultMCPPort,
	}
}

func (s *Settings) applyDefaults() {
	if s.BackendMode == "" {
		s.BackendMode = BackendModeLocal
	}
	if s.PollIntervalSeconds == 0 {
		s.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	if s.FocusDebounceMs == 0 {
		s.FocusDebounceMs = DefaultFocusDebounceMs
	}
	if s.MCPPort == 0 {
		s.MCPPort = DefaultMCPPort
	}
}

// GetSettings returns current settings
func (m *Manager) GetSettings() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.settings
}

// SaveSettings validates and saves settings to disk
func (m *Manager) SaveSettings(s Settings) error {
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.settings = &s
	return m.writeJSON(SettingsFile, s)
}

// Reload re-reads the settings file, e.g. after an external edit. It reports
// whether the effective settings changed. Invalid files leave settings untouched.
func (m *Manager) Reload() (Settings, bool, error) {
	loaded := defaultSettings()
	if err := m.readJSON(SettingsFile, loaded); err != nil {
		return m.GetSettings(), false, fmt.Errorf("reload settings: %w", err)
	}
	loaded.applyDefaults()
	if err := loaded.Validate(); err != nil {
		return m.GetSettings(), false, fmt.Errorf("reload settings: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	changed := *loaded != *m.settings
	m.settings = loaded
	return *loaded, changed, nil
}

// writeJSON writes data as JSON to a file
func (m *Manager) writeJSON(filename string, data interface{}) error {
	path := filepath.Join(m.configPath, filename)

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, jsonData, 0600) // Restrictive permissions, the file holds the daemon token
}

// readJSON reads JSON from a file
func (m *Manager) readJSON(filename string, target interface{}) error {
	path := filepath.Join(m.configPath, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return err
	}

	return json.Unmarshal(data, target)
}
