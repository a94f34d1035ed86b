package main

import (
	"fmt"
)

// =============================================================================
// MCP METHODS (Bound to frontend)
// =============================================================================

// MCPStatus describes the MCP server for the settings panel
type MCPStatus struct {
	Running bool   `json:"running"`
	Port    int    `json:"port"`
	Addr    string `json:"addr,omitempty"`
	Config  string `json:"config,omitempty"` // inline JSON for agent CLIs
}

// GetMCPStatus returns whether the MCP server is running and how to reach it
func (a *App) GetMCPStatus() MCPStatus {
	if a.mcpServer == nil {
		return MCPStatus{}
	}
	status := MCPStatus{
		Running: a.mcpServer.IsRunning(),
		Port:    a.mcpServer.GetPort(),
		Addr:    a.mcpServer.Addr(),
	}
	if status.Addr != "" {
		// Format: {"mcpServers":{"name":{"type":"sse","url":"..."}}}
		status.Config = fmt.Sprintf(`{"mcpServers":{"codexmonitor":{"type":"sse","url":"http://%s/sse"}}}`, status.Addr)
	}
	return status
}

// RestartMCPServer restarts the MCP server on the configured port
func (a *App) RestartMCPServer() error {
	if a.mcpServer == nil {
		return fmt.Errorf("MCP server not initialized")
	}
	return a.mcpServer.Restart(a.settings.GetSettings().MCPPort)
}
