package mcpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/wailsapp/wails/v2/pkg/logger"

	"codexmonitor/internal/threads"
	"codexmonitor/internal/types"
	"codexmonitor/internal/workspace"
)

const (
	serverName    = "CodexMonitor"
	serverVersion = "0.1.0"
)

// Sources gives the MCP tools read access to the app state.
type Sources struct {
	Store      *threads.Store
	Workspaces func() []workspace.Workspace
	IsSubagent func(threadID string) bool
	Now        func() time.Time
}

// MCPService exposes thread liveness to agents over an SSE MCP server
type MCPService struct {
	server   *server.MCPServer
	sources  Sources
	emitFunc func(types.EventEnvelope)
	log      logger.Logger
	port     int
	addr     string
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.RWMutex
	running  bool
}

// NewMCPService creates a new MCP service on the specified port.
// Port 0 picks a free port on Start.
func NewMCPService(port int, sources Sources, log logger.Logger) *MCPService {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	if sources.Now == nil {
		sources.Now = time.Now
	}
	if sources.IsSubagent == nil {
		sources.IsSubagent = func(string) bool { return false }
	}
	if sources.Workspaces == nil {
		sources.Workspaces = func() []workspace.Workspace { return nil }
	}
	return &MCPService{
		port:    port,
		sources: sources,
		log:     log,
	}
}

// SetEmitFunc sets the function to emit Wails events
func (s *MCPService) SetEmitFunc(emitFunc func(types.EventEnvelope)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitFunc = emitFunc
}

// GetPort returns the configured port
func (s *MCPService) GetPort() int {
	return s.port
}

// Addr returns the bound listen address while running
func (s *MCPService) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// newServer builds the MCP server with every tool registered
func (s *MCPService) newServer() *server.MCPServer {
	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTool(CreateListWorkspacesTool(), s.handleListWorkspaces)
	mcpServer.AddTool(CreateListThreadsTool(), s.handleListThreads)
	mcpServer.AddTool(CreateThreadLivenessTool(), s.handleThreadLiveness)
	mcpServer.AddTool(CreateStaleThreadsTool(), s.handleStaleThreads)
	mcpServer.AddTool(CreateSubagentDescendantsTool(), s.handleSubagentDescendants)
	return mcpServer
}

// Start starts the MCP server
func (s *MCPService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil // Already running
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		return fmt.Errorf("mcp listen: %w", err)
	}
	s.addr = listener.Addr().String()

	// Create context for this server instance
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.server = s.newServer()

	sseServer := server.NewSSEServer(s.server,
		server.WithBaseURL("http://"+s.addr),
	)
	httpServer := &http.Server{
		Handler: sseServer,
	}

	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error(fmt.Sprintf("[MCP] Server error: %v", err))
		}
	}()

	ctx := s.ctx
	go func() {
		// Wait for context cancellation
		<-ctx.Done()
		s.log.Info("[MCP] Shutting down SSE server...")
		httpServer.Close()
	}()

	s.running = true
	s.log.Info(fmt.Sprintf("[MCP] MCP server started on %s", s.addr))
	s.emitLocked(true)
	return nil
}

// Stop stops the MCP server
func (s *MCPService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	if s.cancel != nil {
		s.cancel()
	}

	s.running = false
	s.addr = ""
	s.log.Info("[MCP] MCP server stopped")
	s.emitLocked(false)
}

// Restart stops and starts the MCP server (useful after a port change)
func (s *MCPService) Restart(port int) error {
	s.Stop()
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
	return s.Start()
}

// IsRunning returns whether the MCP server is currently running
func (s *MCPService) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *MCPService) emitLocked(running bool) {
	if s.emitFunc == nil {
		return
	}
	s.emitFunc(types.EventEnvelope{
		EventType: types.EventMCPStatus,
		Payload: map[string]any{
			"running": running,
			"addr":    s.addr,
		},
	})
}
