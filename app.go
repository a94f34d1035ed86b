package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/logger"
	wailsrt "github.com/wailsapp/wails/v2/pkg/runtime"

	"codexmonitor/internal/backend"
	"codexmonitor/internal/eventrouter"
	"codexmonitor/internal/kvstore"
	"codexmonitor/internal/mcpserver"
	"codexmonitor/internal/refresh"
	"codexmonitor/internal/reorder"
	"codexmonitor/internal/settings"
	"codexmonitor/internal/threadparams"
	"codexmonitor/internal/threads"
	"codexmonitor/internal/types"
	"codexmonitor/internal/watcher"
	"codexmonitor/internal/workspace"
)

// App struct holds the application state
type App struct {
	ctx         context.Context
	log         logger.Logger
	settings    *settings.Manager
	prefs       *settings.ThreadPrefs
	storage     kvstore.Storage
	params      *threadparams.Cache
	workspace   *workspace.Manager
	wal         *reorder.WAL
	store       *threads.Store
	router      *eventrouter.Router
	refresh     *refresh.Controller
	watcher     *watcher.ConfigWatcher
	mcpServer   *mcpserver.MCPService
	routerStop  context.CancelFunc

	// backendMu guards the remote client, which is replaced when settings change.
	backendMu sync.RWMutex
	backend   *backend.Client

	currentWorkspace *workspace.Workspace
	workspaceMu      sync.RWMutex
}

// NewApp creates a new App application struct
func NewApp(log logger.Logger) *App {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &App{log: log}
}

// =============================================================================
// STARTUP - Single Initialization Chain
// =============================================================================

// emitLoadingStatus emits a loading status message to the frontend splash screen
func (a *App) emitLoadingStatus(status string) {
	wailsrt.EventsEmit(a.ctx, types.EventLoadingStatus, map[string]any{
		"status": status,
	})
}

// emit forwards an envelope to the frontend
func (a *App) emit(envelope types.EventEnvelope) {
	if a.ctx == nil {
		return
	}
	wailsrt.EventsEmit(a.ctx, envelope.EventType, envelope)
}

// startup is called when the app starts. The context is saved
// so we can call the runtime methods
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	// Step 1: Settings and per-thread preferences
	a.emitLoadingStatus("Initializing settings...")
	a.loadPersistedState()
	a.applyLogLevel(a.settings.GetSettings())

	// Step 2: Local storage and the thread parameter cache
	a.emitLoadingStatus("Opening local storage...")
	a.initializeStorage()

	// Step 3: Workspaces, finishing any reorder interrupted by the last exit
	a.emitLoadingStatus("Loading workspaces...")
	a.initializeWorkspaces()

	// Step 4: Thread store and event router
	a.initializeThreads()

	// Step 5: Focus/visibility refresh
	a.initializeRefresh()

	// Step 6: Remote backend (remote mode only)
	a.emitLoadingStatus("Connecting to backend...")
	a.initializeBackend()

	// Step 7: Settings hot reload
	a.initializeWatcher()

	// Step 8: MCP server for agents
	a.emitLoadingStatus("Starting MCP server...")
	a.initializeMCPServer()

	wailsrt.LogInfo(ctx, fmt.Sprintf("CodexMonitor initialized. Config path: %s", a.settings.GetConfigPath()))
}

// loadPersistedState loads settings and thread preferences from disk
func (a *App) loadPersistedState() {
	sm, err := settings.NewManager()
	if err != nil {
		// A broken settings file still yields a manager holding defaults
		wailsrt.LogError(a.ctx, fmt.Sprintf("Failed to initialize settings: %v", err))
		if sm == nil {
			sm, _ = settings.NewManagerAt(filepath.Join(".", settings.ConfigDir))
		}
	}
	a.settings = sm

	prefs, err := settings.NewThreadPrefs(sm.GetConfigPath())
	if err != nil {
		wailsrt.LogWarning(a.ctx, fmt.Sprintf("Failed to load thread preferences: %v", err))
	}
	a.prefs = prefs
}

// initializeStorage opens the SQLite key-value store, falling back to memory
func (a *App) initializeStorage() {
	dbPath := filepath.Join(a.settings.GetConfigPath(), settings.StorageFile)
	store, err := kvstore.OpenSQLite(dbPath, a.log)
	if err != nil {
		wailsrt.LogWarning(a.ctx, fmt.Sprintf("Local storage unavailable, state will not survive restart: %v", err))
		a.storage = kvstore.NewMemoryStore()
	} else {
		a.storage = store
	}

	a.params = threadparams.NewCache(a.storage, a.log)
	a.params.Load()
	a.params.SetOnChange(func(version uint64) {
		a.emit(types.EventEnvelope{
			EventType: types.EventThreadParamsSync,
			Payload:   map[string]any{"version": version},
		})
	})
}

// initializeWorkspaces loads the registry and replays a pending reorder
func (a *App) initializeWorkspaces() {
	a.workspace = workspace.NewManager(a.settings.GetConfigPath(), a.log)
	a.wal = reorder.New(a.storage, a.log)

	byID, err := a.workspace.WorkspacesByID()
	if err != nil {
		wailsrt.LogWarning(a.ctx, fmt.Sprintf("Failed to list workspaces: %v", err))
		return
	}
	if a.wal.ReplayPendingWorkspaceReorder(byID, a.workspace.PersistWorkspaceOrder) {
		wailsrt.LogInfo(a.ctx, "Recovered interrupted workspace reorder")
		a.emitWorkspaceOrder()
	}

	if id, err := a.workspace.GetCurrentWorkspaceID(); err == nil && id != "" {
		if ws, ok := byID[id]; ok {
			a.setCurrentWorkspace(&ws)
		}
	}
}

// initializeThreads creates the store and restores hidden/active threads
func (a *App) initializeThreads() {
	a.store = threads.NewStore(nil)
	a.router = eventrouter.New(a.store, a.log)

	if a.prefs != nil {
		var actions []threads.Action
		for wsID, ids := range a.prefs.AllHidden() {
			for _, id := range ids {
				actions = append(actions, threads.HideThread{WorkspaceID: wsID, ThreadID: id})
			}
			if active := a.prefs.ActiveThread(wsID); active != "" {
				actions = append(actions, threads.SetActiveThreadID{WorkspaceID: wsID, ThreadID: active})
			}
		}
		a.store.DispatchAll(actions...)
	}

	a.store.SetEmitFunc(func(envelope types.EventEnvelope) {
		a.emit(envelope)
		a.syncRefreshProps()
	})
}

// initializeBackend connects the remote client when remote mode is configured
func (a *App) initializeBackend() {
	s := a.settings.GetSettings()
	if !s.IsRemote() {
		return
	}
	if err := a.connectBackend(s); err != nil {
		wailsrt.LogWarning(a.ctx, fmt.Sprintf("Remote backend unavailable: %v", err))
	}
}

// connectBackend replaces the remote client and starts routing its events
func (a *App) connectBackend(s settings.Settings) error {
	a.disconnectBackend()

	client := backend.NewClient(backend.Config{
		URL:      s.RemoteBackendURL,
		Token:    s.RemoteBackendToken,
		Logger:   a.log,
		EmitFunc: a.handleBackendStatus,
	})
	routerCtx, stop := context.WithCancel(context.Background())

	a.backendMu.Lock()
	a.backend = client
	a.routerStop = stop
	a.backendMu.Unlock()

	go a.router.Run(routerCtx, client.Events())

	ctx, cancel := context.WithTimeout(a.ctx, backend.DefaultHandshakeTimeout)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		return err
	}
	if id := a.getCurrentWorkspaceID(); id != "" {
		go a.loadThreads(id, false)
	}
	return nil
}

// disconnectBackend closes the remote client, if any
func (a *App) disconnectBackend() {
	a.backendMu.Lock()
	client, stop := a.backend, a.routerStop
	a.backend, a.routerStop = nil, nil
	a.backendMu.Unlock()

	if stop != nil {
		stop()
	}
	if client != nil {
		client.Close()
	}
}

// remote returns the current remote client, or nil in local mode
func (a *App) remote() *backend.Client {
	a.backendMu.RLock()
	defer a.backendMu.RUnlock()
	return a.backend
}

// handleBackendStatus mirrors daemon connection state onto workspaces
func (a *App) handleBackendStatus(envelope types.EventEnvelope) {
	if status, ok := envelope.Payload.(backend.Status); ok && !status.Connected && a.workspace != nil {
		workspaces, _ := a.workspace.GetAllWorkspaces()
		for _, ws := range workspaces {
			a.workspace.SetConnected(ws.ID, false)
		}
		a.syncRefreshProps()
	}
	a.emit(envelope)
}

// initializeRefresh starts the focus/visibility refresh controller
func (a *App) initializeRefresh() {
	s := a.settings.GetSettings()
	a.refresh = refresh.New(refresh.Config{
		Debounce:     s.FocusDebounce(),
		PollInterval: s.PollInterval(),
		Window:       newWailsWindowEvents(a.ctx),
		Logger:       a.log,
	}, a.refreshProps())
}

// initializeWatcher hot-reloads settings.json on external edits
func (a *App) initializeWatcher() {
	cw, err := watcher.NewConfigWatcher(a.settings.GetConfigPath(), 0, a.log)
	if err != nil {
		wailsrt.LogWarning(a.ctx, fmt.Sprintf("Failed to initialize settings watcher: %v", err))
		return
	}
	cw.Watch(settings.SettingsFile, func(string) { a.onSettingsFileChanged() })
	a.watcher = cw
}

// initializeMCPServer exposes thread liveness to agents
func (a *App) initializeMCPServer() {
	s := a.settings.GetSettings()
	a.mcpServer = mcpserver.NewMCPService(s.MCPPort, mcpserver.Sources{
		Store:      a.store,
		Workspaces: a.allWorkspaces,
		IsSubagent: a.router.IsSubagent,
	}, a.log)
	a.mcpServer.SetEmitFunc(a.emit)

	if !s.MCPEnabled {
		return
	}
	if err := a.mcpServer.Start(); err != nil {
		wailsrt.LogWarning(a.ctx, fmt.Sprintf("Failed to start MCP server: %v", err))
	}
}

// shutdown is called when the app is closing
func (a *App) shutdown(ctx context.Context) {
	if a.mcpServer != nil {
		a.mcpServer.Stop()
	}
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.refresh != nil {
		a.refresh.Close()
	}
	a.disconnectBackend()
	if closer, ok := a.storage.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			wailsrt.LogWarning(ctx, fmt.Sprintf("Failed to close local storage: %v", err))
		}
	}
}

// =============================================================================
// CURRENT WORKSPACE
// =============================================================================

// currentWorkspaceCopy returns the selected workspace with its live
// connection flag, or nil when none is selected.
func (a *App) currentWorkspaceCopy() *workspace.Workspace {
	a.workspaceMu.RLock()
	defer a.workspaceMu.RUnlock()
	if a.currentWorkspace == nil {
		return nil
	}
	ws := *a.currentWorkspace
	ws.Connected = a.workspace.IsConnected(ws.ID)
	return &ws
}

func (a *App) getCurrentWorkspaceID() string {
	a.workspaceMu.RLock()
	defer a.workspaceMu.RUnlock()
	if a.currentWorkspace == nil {
		return ""
	}
	return a.currentWorkspace.ID
}

func (a *App) setCurrentWorkspace(ws *workspace.Workspace) {
	a.workspaceMu.Lock()
	a.currentWorkspace = ws
	a.workspaceMu.Unlock()
}

func (a *App) allWorkspaces() []workspace.Workspace {
	if a.workspace == nil {
		return nil
	}
	workspaces, err := a.workspace.GetAllWorkspaces()
	if err != nil {
		a.log.Warning(fmt.Sprintf("[app] list workspaces: %v", err))
	}
	return workspaces
}
