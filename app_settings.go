package main

import (
	"fmt"

	wailsrt "github.com/wailsapp/wails/v2/pkg/runtime"

	"codexmonitor/internal/settings"
	"codexmonitor/internal/types"
)

// =============================================================================
// SETTINGS METHODS (Bound to frontend)
// =============================================================================

// GetSettings returns current application settings
func (a *App) GetSettings() settings.Settings {
	if a.settings == nil {
		return settings.Settings{}
	}
	return a.settings.GetSettings()
}

// SaveSettings saves application settings and applies runtime changes
func (a *App) SaveSettings(s settings.Settings) error {
	if a.settings == nil {
		return fmt.Errorf("settings manager not initialized")
	}

	prev := a.settings.GetSettings()
	if err := a.settings.SaveSettings(s); err != nil {
		return err
	}
	a.applySettings(prev, a.settings.GetSettings())
	return nil
}

// GetConfigPath returns the path to the config directory (~/.codexmonitor)
func (a *App) GetConfigPath() string {
	if a.settings == nil {
		return ""
	}
	return a.settings.GetConfigPath()
}

// onSettingsFileChanged applies settings.json edits made outside the app
func (a *App) onSettingsFileChanged() {
	prev := a.settings.GetSettings()
	next, changed, err := a.settings.Reload()
	if err != nil {
		wailsrt.LogWarning(a.ctx, fmt.Sprintf("Ignoring settings file change: %v", err))
		return
	}
	if !changed {
		return
	}
	wailsrt.LogInfo(a.ctx, "Settings reloaded from disk")
	a.applySettings(prev, next)
}

// applyLogLevel sets the app logger and the Wails runtime to the configured level
func (a *App) applyLogLevel(s settings.Settings) {
	level := s.LogLevel()
	if ll, ok := a.log.(*settings.LevelLogger); ok {
		ll.SetLevel(level)
	}
	wailsrt.LogSetLogLevel(a.ctx, level)
}

// applySettings pushes changed settings into the running components
func (a *App) applySettings(prev, next settings.Settings) {
	if prev.DebugLogging != next.DebugLogging {
		a.applyLogLevel(next)
	}
	if a.refresh != nil && (prev.FocusDebounceMs != next.FocusDebounceMs || prev.PollIntervalSeconds != next.PollIntervalSeconds) {
		a.refresh.SetIntervals(next.FocusDebounce(), next.PollInterval())
	}

	backendChanged := prev.BackendMode != next.BackendMode ||
		prev.RemoteBackendURL != next.RemoteBackendURL ||
		prev.RemoteBackendToken != next.RemoteBackendToken
	if backendChanged {
		if next.IsRemote() {
			go func() {
				if err := a.connectBackend(next); err != nil {
					wailsrt.LogWarning(a.ctx, fmt.Sprintf("Remote backend unavailable: %v", err))
				}
			}()
		} else {
			a.disconnectBackend()
		}
	}
	a.syncRefreshProps()

	if a.mcpServer != nil && (prev.MCPEnabled != next.MCPEnabled || prev.MCPPort != next.MCPPort) {
		if next.MCPEnabled {
			if err := a.mcpServer.Restart(next.MCPPort); err != nil {
				wailsrt.LogWarning(a.ctx, fmt.Sprintf("Failed to restart MCP server: %v", err))
			}
		} else {
			a.mcpServer.Stop()
		}
	}

	a.emit(types.EventEnvelope{
		EventType: types.EventSettingsChanged,
		Payload:   next,
	})
}
