package main

import (
	"os"
	"strings"
)

// Version is overridden at build time with -ldflags "-X main.Version=..."
var Version = ""

// =============================================================================
// VERSION METHODS (Bound to frontend)
// =============================================================================

// GetVersion returns the application version
func (a *App) GetVersion() string {
	return GetVersionString()
}

// GetVersionString resolves the version from the build flag or the VERSION file
func GetVersionString() string {
	if Version != "" {
		return Version
	}
	data, err := os.ReadFile("VERSION")
	if err != nil {
		return "0.0.0"
	}
	return strings.TrimSpace(string(data))
}
