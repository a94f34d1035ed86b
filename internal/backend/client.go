// Package backend talks to a remote CodexMonitor daemon over a WebSocket
// carrying JSON-RPC 2.0 requests, responses and push notifications.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wailsapp/wails/v2/pkg/logger"

	"codexmonitor/internal/types"
)

// ErrNotConnected is returned by calls made while no connection is open, and
// by calls that were in flight when the connection dropped.
var ErrNotConnected = errors.New("backend: not connected")

// RPCError is an error response from the daemon.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("backend: rpc error %d: %s", e.Code, e.Message)
}

// Event is a push notification from the daemon.
type Event struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Decode unmarshals the event params into v.
func (e Event) Decode(v any) error {
	if len(e.Params) == 0 {
		return nil
	}
	return json.Unmarshal(e.Params, v)
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// envelope is any inbound frame: a response when ID is set, a notification otherwise.
type envelope struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// Config configures a Client.
type Config struct {
	URL              string
	Token            string
	HandshakeTimeout time.Duration
	EventBuffer      int
	Logger           logger.Logger
	EmitFunc         func(types.EventEnvelope) // optional connection status hook
}

// Status is the connection state reported through EmitFunc.
type Status struct {
	Connected bool   `json:"connected"`
	URL       string `json:"url"`
	Error     string `json:"error,omitempty"`
}

// Client is a reconnectable JSON-RPC client. Calls are safe for concurrent use.
type Client struct {
	cfg     Config
	log     logger.Logger
	pending *pendingCalls
	events  chan Event

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	dialMu  sync.Mutex
}

// DefaultHandshakeTimeout bounds the websocket upgrade.
const DefaultHandshakeTimeout = 10 * time.Second

// NewClient creates a client. Connect must be called before Call.
func NewClient(cfg Config) *Client {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefaultLogger()
	}
	return &Client{
		cfg:     cfg,
		log:     cfg.Logger,
		pending: newPendingCalls(),
		events:  make(chan Event, cfg.EventBuffer),
	}
}

// Events delivers push notifications. The channel is never closed.
func (c *Client) Events() <-chan Event {
	return c.events
}

// IsConnected reports whether a connection is currently open.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Connect dials the daemon. It is a no-op when already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	if c.IsConnected() {
		return nil
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		c.emitStatus(false, err)
		return fmt.Errorf("connect to backend %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.log.Info(fmt.Sprintf("[backend] connected to %s", c.cfg.URL))
	c.emitStatus(true, nil)
	go c.readLoop(conn)
	return nil
}

// Close closes the connection and fails in-flight calls.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := conn.Close()
	c.pending.FailAll(ErrNotConnected)
	return err
}

// Call sends a request and waits for its response. result may be nil.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	pc := c.pending.Create(method)

	c.writeMu.Lock()
	err := conn.WriteJSON(request{JSONRPC: "2.0", ID: pc.ID, Method: method, Params: params})
	c.writeMu.Unlock()
	if err != nil {
		c.pending.Forget(pc.ID)
		return fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case res := <-pc.ResponseCh:
		if res.err != nil {
			return res.err
		}
		if result == nil || len(res.result) == 0 {
			return nil
		}
		if err := json.Unmarshal(res.result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		c.pending.Forget(pc.ID)
		return ctx.Err()
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.handleDisconnect(conn, err)
			return
		}

		if env.ID != "" {
			res := callResult{result: env.Result}
			if env.Error != nil {
				res.err = env.Error
			}
			if !c.pending.Resolve(env.ID, res) {
				c.log.Debug(fmt.Sprintf("[backend] response for unknown request %s", env.ID))
			}
			continue
		}

		if env.Method == "" {
			continue
		}
		select {
		case c.events <- Event{Method: env.Method, Params: env.Params}:
		default:
			c.log.Warning(fmt.Sprintf("[backend] event buffer full, dropping %s", env.Method))
		}
	}
}

func (c *Client) handleDisconnect(conn *websocket.Conn, err error) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	c.mu.Unlock()

	if !current {
		return // closed by Close()
	}
	conn.Close()

	failed := c.pending.FailAll(ErrNotConnected)
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.log.Info(fmt.Sprintf("[backend] connection closed by daemon (%d calls failed)", failed))
		c.emitStatus(false, nil)
		return
	}
	c.log.Warning(fmt.Sprintf("[backend] connection lost (%d calls failed): %v", failed, err))
	c.emitStatus(false, err)
}

func (c *Client) emitStatus(connected bool, err error) {
	if c.cfg.EmitFunc == nil {
		return
	}
	status := Status{Connected: connected, URL: c.cfg.URL}
	if err != nil {
		status.Error = err.Error()
	}
	c.cfg.EmitFunc(types.EventEnvelope{
		EventType: types.EventBackendStatus,
		Payload:   status,
	})
}
