package main

import (
	"embed"
	"os"
	"path/filepath"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/logger"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"

	"codexmonitor/internal/settings"
)

//go:embed all:frontend/dist
var assets embed.FS

// newAppLogger logs to ~/.codexmonitor/codexmonitor.log, or stdout when the
// config directory is unavailable
func newAppLogger() logger.Logger {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return logger.NewDefaultLogger()
	}
	dir := filepath.Join(homeDir, settings.ConfigDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return logger.NewDefaultLogger()
	}
	return logger.NewFileLogger(filepath.Join(dir, settings.LogFile))
}

func main() {
	// Raised to DEBUG at startup when settings enable debug logging
	appLogger := settings.NewLevelLogger(newAppLogger(), logger.INFO)

	// Create an instance of the app structure
	app := NewApp(appLogger)

	// Create application with options
	err := wails.Run(&options.App{
		Title:            "CodexMonitor",
		Width:            1280,
		Height:           800,
		WindowStartState: options.Normal,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 27, G: 38, B: 54, A: 1},
		Logger:           appLogger,
		LogLevel:         logger.INFO,
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		Mac: &mac.Options{
			About: &mac.AboutInfo{
				Title:   "CodexMonitor",
				Message: "Thread liveness for Codex agents\n\nVersion " + GetVersionString(),
			},
		},
		Bind: []interface{}{
			app,
		},
	})

	if err != nil {
		println("Error:", err.Error())
	}
}
