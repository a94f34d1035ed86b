// Package refresh keeps the active remote thread in sync with the backend.
// Window focus and visibility changes trigger a debounced refresh, a slow
// background poll runs while the thread is idle, and a disconnected workspace
// is reconnected before refreshing.
//
// All state lives on a single goroutine. Inputs arrive as events; timers and
// async work report back as events carrying the generation they were started
// under, so late arrivals from a torn-down timer or registration are dropped.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2/pkg/logger"

	"codexmonitor/internal/workspace"
)

const (
	DefaultDebounce     = 500 * time.Millisecond
	DefaultPollInterval = 12 * time.Second

	BackendModeLocal  = "local"
	BackendModeRemote = "remote"
)

// Native window events the controller subscribes to.
const (
	WindowEventFocus = "focus"
	WindowEventBlur  = "blur"
)

// WindowEventSource registers handlers for native window events. Listen may
// block; the returned unlisten removes the handler.
type WindowEventSource interface {
	Listen(event string, handler func()) (unlisten func(), err error)
}

// ReconnectFunc restores the backend connection for a workspace.
type ReconnectFunc func(ctx context.Context, ws workspace.Workspace) error

// RefreshFunc pulls the latest state of one thread from the backend.
type RefreshFunc func(ctx context.Context, workspaceID, threadID string) error

// Props is the controller's view of the UI. SetProps replaces it wholesale;
// pending timers read the newest Props when they fire.
type Props struct {
	BackendMode              string
	ActiveWorkspace          *workspace.Workspace
	ActiveThreadID           string
	ActiveThreadIsProcessing bool
	SuspendPolling           bool
	ReconnectWorkspace       ReconnectFunc // optional
	RefreshThread            RefreshFunc
}

func (p Props) active() bool {
	return p.BackendMode == BackendModeRemote &&
		p.ActiveWorkspace != nil && p.ActiveWorkspace.ID != "" &&
		p.ActiveThreadID != "" &&
		p.RefreshThread != nil
}

// Config configures a Controller. Zero durations take the defaults.
type Config struct {
	Debounce     time.Duration
	PollInterval time.Duration
	Clock        Clock
	Window       WindowEventSource // optional
	Logger       logger.Logger
}

// Phase is the controller's coarse state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseDebouncing Phase = "debouncing"
	PhaseRefreshing Phase = "refreshing"
	PhasePolling    Phase = "polling"
)

// Snapshot is a point-in-time view of the controller, for diagnostics and tests.
type Snapshot struct {
	Phase             Phase
	Focused           bool
	Visible           bool
	DebouncePending   bool
	PollArmed         bool
	ReconnectInFlight bool
	RefreshInFlight   bool
	NativeListeners   int
	Closed            bool
}

// =============================================================================
// EVENTS
// =============================================================================

type event interface{ eventName() string }

type (
	focusGained        struct{}
	focusLost          struct{}
	visibilityChanged  struct{ visible bool }
	propsChanged       struct{ props Props }
	intervalsChanged   struct{ debounce, poll time.Duration }
	debounceFired      struct{ gen uint64 }
	pollFired          struct{ gen uint64 }
	reconnectDone      struct {
		workspaceID string
		err         error
	}
	refreshDone        struct{ err error }
	listenerRegistered struct {
		gen      uint64
		event    string
		unlisten func()
		err      error
	}
	snapshotRequested struct{ reply chan Snapshot }
	unmounted         struct{}
)

func (focusGained) eventName() string        { return "focus-gained" }
func (focusLost) eventName() string          { return "focus-lost" }
func (visibilityChanged) eventName() string  { return "visibility-changed" }
func (propsChanged) eventName() string       { return "props-changed" }
func (intervalsChanged) eventName() string   { return "intervals-changed" }
func (debounceFired) eventName() string      { return "debounce-fired" }
func (pollFired) eventName() string          { return "poll-fired" }
func (reconnectDone) eventName() string      { return "reconnect-done" }
func (refreshDone) eventName() string        { return "refresh-done" }
func (listenerRegistered) eventName() string { return "listener-registered" }
func (snapshotRequested) eventName() string  { return "snapshot" }
func (unmounted) eventName() string          { return "unmounted" }

// pollKey captures every input the poll timer depends on. The timer is torn
// down whenever the key changes.
type pollKey struct {
	mode        string
	workspaceID string
	threadID    string
	processing  bool
	suspended   bool
	focused     bool
	visible     bool
	interval    time.Duration
}

func (k pollKey) shouldPoll() bool {
	return k.mode == BackendModeRemote &&
		k.workspaceID != "" && k.threadID != "" &&
		!k.processing && !k.suspended &&
		k.focused && k.visible &&
		k.interval > 0
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns the refresh state machine.
type Controller struct {
	events    chan event
	done      chan struct{} // closed when the loop stops accepting events
	stopped   chan struct{} // closed once teardown has finished
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	clock     Clock
	window    WindowEventSource
	log       logger.Logger

	// Loop-owned state below; never touched outside run().
	props             Props
	debounce          time.Duration
	pollInterval      time.Duration
	focused           bool
	visible           bool
	debounceTimer     Timer
	debounceGen       uint64
	pollTimer         Timer
	pollGen           uint64
	armedKey          pollKey
	reconnectInFlight bool
	refreshInFlight   bool
	listenGen         uint64
	unlisteners       []func()
}

// New starts a controller with the given initial props. The window is assumed
// focused and visible until told otherwise.
func New(cfg Config, props Props) *Controller {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefaultLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		events:       make(chan event),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
		clock:        cfg.Clock,
		window:       cfg.Window,
		log:          cfg.Logger,
		props:        props,
		debounce:     cfg.Debounce,
		pollInterval: cfg.PollInterval,
		focused:      true,
		visible:      true,
	}

	c.registerNativeListeners()
	c.reevaluatePoll()
	go c.run()
	return c
}

// FocusGained reports that the window regained focus.
func (c *Controller) FocusGained() { c.send(focusGained{}) }

// FocusLost reports that the window lost focus.
func (c *Controller) FocusLost() { c.send(focusLost{}) }

// VisibilityChanged reports a document visibility change.
func (c *Controller) VisibilityChanged(visible bool) { c.send(visibilityChanged{visible: visible}) }

// SetProps replaces the controller's props.
func (c *Controller) SetProps(p Props) { c.send(propsChanged{props: p}) }

// SetIntervals changes debounce and poll durations. Zero keeps the current value.
func (c *Controller) SetIntervals(debounce, poll time.Duration) {
	c.send(intervalsChanged{debounce: debounce, poll: poll})
}

// Snapshot returns the controller's current state.
func (c *Controller) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	select {
	case c.events <- snapshotRequested{reply: reply}:
		return <-reply
	case <-c.done:
		return Snapshot{Phase: PhaseIdle, Closed: true}
	}
}

// Close tears the controller down: timers are stopped, native listeners are
// removed (including ones whose registration is still in flight) and in-flight
// collaborator calls see a cancelled context. Safe to call more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		select {
		case c.events <- unmounted{}:
		case <-c.done:
		}
		<-c.stopped
	})
}

func (c *Controller) send(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Controller) run() {
	for ev := range c.events {
		if c.handle(ev) {
			return
		}
	}
}

// handle applies one event; it returns true once the controller has shut down.
func (c *Controller) handle(ev event) bool {
	switch ev := ev.(type) {
	case focusGained:
		c.focused = true
		c.scheduleRefresh()
	case focusLost:
		c.focused = false
	case visibilityChanged:
		c.visible = ev.visible
		if ev.visible {
			c.scheduleRefresh()
		}
	case propsChanged:
		c.props = ev.props
		if !c.props.active() {
			c.cancelDebounce()
		}
	case intervalsChanged:
		if ev.debounce > 0 {
			c.debounce = ev.debounce
		}
		if ev.poll > 0 {
			c.pollInterval = ev.poll
		}
	case debounceFired:
		if ev.gen != c.debounceGen || c.debounceTimer == nil {
			return false
		}
		c.debounceTimer = nil
		c.startCycle("focus")
	case pollFired:
		if ev.gen != c.pollGen || c.pollTimer == nil {
			return false
		}
		c.pollTimer = nil
		c.startCycle("poll")
	case reconnectDone:
		c.reconnectInFlight = false
		if ev.err != nil {
			c.log.Debug(fmt.Sprintf("[refresh] reconnect failed, refreshing anyway: %v", ev.err))
		} else {
			c.markConnected(ev.workspaceID)
		}
		c.startRefresh()
	case refreshDone:
		c.refreshInFlight = false
		if ev.err != nil {
			c.log.Debug(fmt.Sprintf("[refresh] refresh failed: %v", ev.err))
		}
	case listenerRegistered:
		c.adoptListener(ev)
	case snapshotRequested:
		ev.reply <- c.snapshot()
		return false
	case unmounted:
		c.teardown()
		return true
	}
	c.reevaluatePoll()
	return false
}

func (c *Controller) phase() Phase {
	switch {
	case c.reconnectInFlight || c.refreshInFlight:
		return PhaseRefreshing
	case c.debounceTimer != nil:
		return PhaseDebouncing
	case c.pollTimer != nil:
		return PhasePolling
	default:
		return PhaseIdle
	}
}

func (c *Controller) snapshot() Snapshot {
	return Snapshot{
		Phase:             c.phase(),
		Focused:           c.focused,
		Visible:           c.visible,
		DebouncePending:   c.debounceTimer != nil,
		PollArmed:         c.pollTimer != nil,
		ReconnectInFlight: c.reconnectInFlight,
		RefreshInFlight:   c.refreshInFlight,
		NativeListeners:   len(c.unlisteners),
	}
}

// =============================================================================
// DEBOUNCE
// =============================================================================

// scheduleRefresh (re)starts the debounce window. Repeated triggers collapse
// into one refresh.
func (c *Controller) scheduleRefresh() {
	if !c.props.active() {
		return
	}
	c.cancelDebounce()
	gen := c.debounceGen
	c.debounceTimer = c.clock.AfterFunc(c.debounce, func() {
		c.send(debounceFired{gen: gen})
	})
}

func (c *Controller) cancelDebounce() {
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
		c.debounceTimer = nil
	}
	c.debounceGen++
}

// =============================================================================
// REFRESH CYCLE
// =============================================================================

// startCycle runs reconnect (when needed) followed by refresh, against the
// props current at this moment. A cycle already in flight suppresses it.
func (c *Controller) startCycle(trigger string) {
	if !c.props.active() {
		return
	}
	if c.reconnectInFlight || c.refreshInFlight {
		c.log.Debug(fmt.Sprintf("[refresh] %s trigger suppressed, cycle in flight", trigger))
		return
	}

	ws := *c.props.ActiveWorkspace
	if !ws.Connected && c.props.ReconnectWorkspace != nil {
		c.reconnectInFlight = true
		reconnect := c.props.ReconnectWorkspace
		go func() {
			err := safeCall(func() error { return reconnect(c.ctx, ws) })
			c.send(reconnectDone{workspaceID: ws.ID, err: err})
		}()
		return
	}
	c.startRefresh()
}

// markConnected records a successful reconnect until the next props update.
func (c *Controller) markConnected(workspaceID string) {
	ws := c.props.ActiveWorkspace
	if ws == nil || ws.ID != workspaceID || ws.Connected {
		return
	}
	connected := *ws
	connected.Connected = true
	c.props.ActiveWorkspace = &connected
}

func (c *Controller) startRefresh() {
	if !c.props.active() || c.refreshInFlight {
		return
	}
	c.refreshInFlight = true
	refresh := c.props.RefreshThread
	workspaceID, threadID := c.props.ActiveWorkspace.ID, c.props.ActiveThreadID
	go func() {
		err := safeCall(func() error { return refresh(c.ctx, workspaceID, threadID) })
		c.send(refreshDone{err: err})
	}()
}

// safeCall converts a collaborator panic into an error so in-flight flags
// always clear.
func safeCall(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f()
}

// =============================================================================
// POLL
// =============================================================================

func (c *Controller) currentPollKey() pollKey {
	k := pollKey{
		mode:       c.props.BackendMode,
		threadID:   c.props.ActiveThreadID,
		processing: c.props.ActiveThreadIsProcessing,
		suspended:  c.props.SuspendPolling,
		focused:    c.focused,
		visible:    c.visible,
		interval:   c.pollInterval,
	}
	if c.props.ActiveWorkspace != nil {
		k.workspaceID = c.props.ActiveWorkspace.ID
	}
	if c.props.RefreshThread == nil {
		k.threadID = ""
	}
	return k
}

// reevaluatePoll tears the poll timer down whenever one of its inputs changed
// and arms a fresh one when every condition holds. The next poll is measured
// from the end of the previous cycle.
func (c *Controller) reevaluatePoll() {
	key := c.currentPollKey()
	if key != c.armedKey {
		c.stopPoll()
		c.armedKey = key
	}
	if c.pollTimer == nil && key.shouldPoll() && !c.cycleInFlight() {
		gen := c.pollGen
		c.pollTimer = c.clock.AfterFunc(key.interval, func() {
			c.send(pollFired{gen: gen})
		})
	}
}

func (c *Controller) cycleInFlight() bool {
	return c.reconnectInFlight || c.refreshInFlight
}

func (c *Controller) stopPoll() {
	if c.pollTimer != nil {
		c.pollTimer.Stop()
		c.pollTimer = nil
	}
	c.pollGen++
}

// =============================================================================
// NATIVE LISTENERS
// =============================================================================

// registerNativeListeners subscribes to window focus/blur. Registration runs
// off the loop because Listen may block.
func (c *Controller) registerNativeListeners() {
	if c.window == nil {
		return
	}
	gen := c.listenGen
	handlers := map[string]func(){
		WindowEventFocus: c.FocusGained,
		WindowEventBlur:  c.FocusLost,
	}
	for name, handler := range handlers {
		go func(name string, handler func()) {
			unlisten, err := c.window.Listen(name, handler)
			ev := listenerRegistered{gen: gen, event: name, unlisten: unlisten, err: err}
			select {
			case c.events <- ev:
			case <-c.done:
				// Torn down while registering.
				if unlisten != nil {
					unlisten()
				}
			}
		}(name, handler)
	}
}

func (c *Controller) adoptListener(ev listenerRegistered) {
	if ev.err != nil {
		c.log.Warning(fmt.Sprintf("[refresh] failed to listen for window %s: %v", ev.event, ev.err))
		return
	}
	if ev.unlisten == nil {
		return
	}
	if ev.gen != c.listenGen {
		ev.unlisten()
		return
	}
	c.unlisteners = append(c.unlisteners, ev.unlisten)
}

func (c *Controller) teardown() {
	c.cancelDebounce()
	c.stopPoll()
	c.listenGen++
	c.cancel()
	close(c.done)
	for _, unlisten := range c.unlisteners {
		unlisten()
	}
	c.unlisteners = nil
	close(c.stopped)
}
