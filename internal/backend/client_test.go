package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"codexmonitor/internal/backend"
	"codexmonitor/internal/types"
	"codexmonitor/internal/workspace"
)

type inbound struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type fakeDaemon struct {
	t         *testing.T
	mu        sync.Mutex
	authSeen  string
	reordered []string
}

func (d *fakeDaemon) handler(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	d.authSeen = r.Header.Get("Authorization")
	d.mu.Unlock()

	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.t.Errorf("upgrade: %v", err)
		return
	}
	defer conn.Close()

	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		switch msg.Method {
		case backend.MethodWorkspaceConnect:
			_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": msg.ID, "result": map[string]any{}})
			_ = conn.WriteJSON(map[string]any{
				"jsonrpc": "2.0",
				"method":  "turn/started",
				"params":  map[string]any{"workspaceId": "ws-1", "threadId": "t-1", "turnId": "turn-1"},
			})
		case backend.MethodThreadList:
			_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": msg.ID, "result": map[string]any{
				"threads":    []map[string]any{{"id": "t-1", "name": "Fix tests", "updatedAt": 1700000000000}},
				"nextCursor": "c-2",
			}})
		case backend.MethodThreadResume:
			_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": msg.ID, "result": map[string]any{
				"thread":       map[string]any{"id": "t-1", "name": "Fix tests"},
				"items":        []map[string]any{{"id": "i-1", "kind": "tool", "toolType": "commandExecution", "status": "running"}},
				"isProcessing": true,
			}})
		case backend.MethodWorkspaceReorder:
			var params struct {
				WorkspaceIDs []string `json:"workspaceIds"`
			}
			_ = json.Unmarshal(msg.Params, &params)
			d.mu.Lock()
			d.reordered = params.WorkspaceIDs
			d.mu.Unlock()
			_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": msg.ID, "result": nil})
		case "boom":
			_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": msg.ID, "error": map[string]any{"code": -32000, "message": "kaboom"}})
		case "hang":
			// never answered
		case "drop":
			return
		}
	}
}

func startDaemon(t *testing.T) (*fakeDaemon, string) {
	t.Helper()
	d := &fakeDaemon{t: t}
	srv := httptest.NewServer(http.HandlerFunc(d.handler))
	t.Cleanup(srv.Close)
	return d, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func connectClient(t *testing.T, url string) *backend.Client {
	t.Helper()
	c := backend.NewClient(backend.Config{URL: url, Token: "secret"})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCallBeforeConnect(t *testing.T) {
	c := backend.NewClient(backend.Config{URL: "ws://127.0.0.1:1"})
	if err := c.Call(context.Background(), "anything", nil, nil); !errors.Is(err, backend.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestConnectWorkspaceDeliversPushEvents(t *testing.T) {
	d, url := startDaemon(t)
	c := backend.NewClient(backend.Config{URL: url, Token: "secret"})
	t.Cleanup(func() { _ = c.Close() })

	if err := c.ConnectWorkspace(context.Background(), workspace.Workspace{ID: "ws-1", Path: "/src"}); err != nil {
		t.Fatalf("connect workspace: %v", err)
	}
	d.mu.Lock()
	auth := d.authSeen
	d.mu.Unlock()
	if auth != "Bearer secret" {
		t.Fatalf("expected bearer token, got %q", auth)
	}

	select {
	case ev := <-c.Events():
		var params struct {
			ThreadID string `json:"threadId"`
			TurnID   string `json:"turnId"`
		}
		if err := ev.Decode(&params); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if ev.Method != "turn/started" || params.ThreadID != "t-1" || params.TurnID != "turn-1" {
			t.Fatalf("unexpected event %+v %+v", ev, params)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for push event")
	}
}

func TestTypedCalls(t *testing.T) {
	d, url := startDaemon(t)
	c := connectClient(t, url)
	ctx := context.Background()

	page, err := c.ListThreadsForWorkspace(ctx, "ws-1", backend.ListOptions{Limit: 20})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Threads) != 1 || page.Threads[0].Name != "Fix tests" || page.NextCursor != "c-2" {
		t.Fatalf("unexpected page %+v", page)
	}

	detail, err := c.RefreshThread(ctx, "ws-1", "t-1")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if !detail.IsProcessing || len(detail.Items) != 1 || !detail.Items[0].IsCommandExecution() {
		t.Fatalf("unexpected detail %+v", detail)
	}
	if detail.Items[0].Kind != types.ItemKindTool {
		t.Fatalf("expected tool item, got %q", detail.Items[0].Kind)
	}

	ordered := []workspace.Workspace{{ID: "b"}, {ID: "a"}}
	if err := c.PersistWorkspaceOrder(ctx, ordered, nil); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.reordered) != 2 || d.reordered[0] != "b" {
		t.Fatalf("expected daemon to receive [b a], got %v", d.reordered)
	}
}

func TestRPCError(t *testing.T) {
	_, url := startDaemon(t)
	c := connectClient(t, url)

	err := c.Call(context.Background(), "boom", nil, nil)
	var rpcErr *backend.RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != -32000 || rpcErr.Message != "kaboom" {
		t.Fatalf("expected rpc error, got %v", err)
	}
}

func TestCallContextCancel(t *testing.T) {
	_, url := startDaemon(t)
	c := connectClient(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Call(ctx, "hang", nil, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDisconnectFailsInFlightCalls(t *testing.T) {
	_, url := startDaemon(t)
	var (
		mu       sync.Mutex
		statuses []backend.Status
	)
	c := backend.NewClient(backend.Config{URL: url, EmitFunc: func(env types.EventEnvelope) {
		mu.Lock()
		defer mu.Unlock()
		statuses = append(statuses, env.Payload.(backend.Status))
	}})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- c.Call(context.Background(), "hang", nil, nil) }()
	time.Sleep(20 * time.Millisecond)

	if err := c.Call(context.Background(), "drop", nil, nil); !errors.Is(err, backend.ErrNotConnected) {
		t.Fatalf("expected dropped call to fail with ErrNotConnected, got %v", err)
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, backend.ErrNotConnected) {
			t.Fatalf("expected in-flight call failed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("in-flight call never failed")
	}
	if c.IsConnected() {
		t.Fatalf("expected client disconnected")
	}

	// Reconnect after drop.
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(statuses) != 3 || !statuses[0].Connected || statuses[1].Connected || !statuses[2].Connected {
		t.Fatalf("expected connected/disconnected/connected, got %+v", statuses)
	}
}
