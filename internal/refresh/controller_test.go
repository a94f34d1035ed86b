package refresh_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"codexmonitor/internal/refresh"
	"codexmonitor/internal/workspace"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) refresh.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasPending := !t.stopped && !t.fired
	t.stopped = true
	return wasPending
}

// Advance moves time forward and fires due timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}

type fakeWindow struct {
	mu         sync.Mutex
	handlers   map[string]func()
	gate       chan struct{}
	unlistened chan string
}

func newFakeWindow() *fakeWindow {
	return &fakeWindow{handlers: make(map[string]func()), unlistened: make(chan string, 4)}
}

func (w *fakeWindow) Listen(event string, handler func()) (func(), error) {
	if w.gate != nil {
		<-w.gate
	}
	w.mu.Lock()
	w.handlers[event] = handler
	w.mu.Unlock()
	return func() {
		w.mu.Lock()
		delete(w.handlers, event)
		w.mu.Unlock()
		w.unlistened <- event
	}, nil
}

func (w *fakeWindow) emit(event string) bool {
	w.mu.Lock()
	h := w.handlers[event]
	w.mu.Unlock()
	if h == nil {
		return false
	}
	h()
	return true
}

type call struct {
	kind        string
	workspaceID string
	threadID    string
}

type backend struct {
	calls     chan call
	release   chan error // nil: refresh returns immediately
	reRelease chan error // nil: reconnect returns reErr immediately
	reErr     error
}

func newBackend() *backend {
	return &backend{calls: make(chan call, 16)}
}

func (b *backend) refresh(ctx context.Context, workspaceID, threadID string) error {
	b.calls <- call{kind: "refresh", workspaceID: workspaceID, threadID: threadID}
	if b.release == nil {
		return nil
	}
	select {
	case err := <-b.release:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *backend) reconnect(ctx context.Context, ws workspace.Workspace) error {
	b.calls <- call{kind: "reconnect", workspaceID: ws.ID}
	if b.reRelease == nil {
		return b.reErr
	}
	select {
	case err := <-b.reRelease:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func expectCall(t *testing.T, ch <-chan call, kind string) call {
	t.Helper()
	select {
	case c := <-ch:
		if c.kind != kind {
			t.Fatalf("expected %s call, got %+v", kind, c)
		}
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s call", kind)
	}
	return call{}
}

func expectNoCall(t *testing.T, ch <-chan call) {
	t.Helper()
	select {
	case c := <-ch:
		t.Fatalf("expected no call, got %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func remoteProps(b *backend, connected bool) refresh.Props {
	return refresh.Props{
		BackendMode:        refresh.BackendModeRemote,
		ActiveWorkspace:    &workspace.Workspace{ID: "ws-1", Connected: connected},
		ActiveThreadID:     "thread-1",
		SuspendPolling:     true,
		ReconnectWorkspace: b.reconnect,
		RefreshThread:      b.refresh,
	}
}

func newController(t *testing.T, clock *fakeClock, props refresh.Props) *refresh.Controller {
	t.Helper()
	c := refresh.New(refresh.Config{Clock: clock}, props)
	t.Cleanup(c.Close)
	return c
}

// =============================================================================
// TESTS
// =============================================================================

func TestInactiveOutsideRemoteMode(t *testing.T) {
	clock := &fakeClock{}
	b := newBackend()
	props := remoteProps(b, true)
	props.BackendMode = refresh.BackendModeLocal
	props.SuspendPolling = false
	c := newController(t, clock, props)

	c.FocusGained()
	clock.Advance(time.Minute)
	expectNoCall(t, b.calls)
	if snap := c.Snapshot(); snap.Phase != refresh.PhaseIdle || snap.PollArmed {
		t.Fatalf("expected idle controller, got %+v", snap)
	}

	props.BackendMode = refresh.BackendModeRemote
	props.ActiveThreadID = ""
	c.SetProps(props)
	c.FocusGained()
	clock.Advance(time.Minute)
	expectNoCall(t, b.calls)
}

func TestFocusTriggersAreDebounced(t *testing.T) {
	clock := &fakeClock{}
	b := newBackend()
	c := newController(t, clock, remoteProps(b, true))

	for i := 0; i < 3; i++ {
		c.FocusGained()
		if snap := c.Snapshot(); snap.Phase != refresh.PhaseDebouncing {
			t.Fatalf("expected debouncing, got %+v", snap)
		}
		clock.Advance(200 * time.Millisecond)
	}
	clock.Advance(299 * time.Millisecond)
	expectNoCall(t, b.calls)

	clock.Advance(time.Millisecond)
	got := expectCall(t, b.calls, "refresh")
	if got.workspaceID != "ws-1" || got.threadID != "thread-1" {
		t.Fatalf("unexpected refresh target %+v", got)
	}
	expectNoCall(t, b.calls)
}

func TestVisibilityRegainedTriggersRefresh(t *testing.T) {
	clock := &fakeClock{}
	b := newBackend()
	c := newController(t, clock, remoteProps(b, true))

	c.VisibilityChanged(false)
	if c.Snapshot().DebouncePending {
		t.Fatalf("hiding the window must not schedule a refresh")
	}
	c.VisibilityChanged(true)
	c.Snapshot()
	clock.Advance(refresh.DefaultDebounce)
	expectCall(t, b.calls, "refresh")
}

func TestReconnectPrecedesRefreshAndFailuresAreSwallowed(t *testing.T) {
	clock := &fakeClock{}
	b := newBackend()
	b.reErr = errors.New("backend unreachable")
	c := newController(t, clock, remoteProps(b, false))

	c.FocusGained()
	c.Snapshot()
	clock.Advance(refresh.DefaultDebounce)
	expectCall(t, b.calls, "reconnect")
	expectCall(t, b.calls, "refresh")
	waitFor(t, "cycle to finish", func() bool {
		snap := c.Snapshot()
		return !snap.ReconnectInFlight && !snap.RefreshInFlight
	})
}

func TestInFlightReconnectSuppressesNewOnes(t *testing.T) {
	clock := &fakeClock{}
	b := newBackend()
	b.reRelease = make(chan error)
	c := newController(t, clock, remoteProps(b, false))

	c.FocusGained()
	c.Snapshot()
	clock.Advance(refresh.DefaultDebounce)
	expectCall(t, b.calls, "reconnect")

	c.FocusGained()
	c.Snapshot()
	clock.Advance(refresh.DefaultDebounce)
	expectNoCall(t, b.calls)
	if snap := c.Snapshot(); !snap.ReconnectInFlight || snap.RefreshInFlight {
		t.Fatalf("expected only reconnect in flight, got %+v", snap)
	}

	b.reRelease <- nil
	expectCall(t, b.calls, "refresh")
	waitFor(t, "cycle to finish", func() bool {
		snap := c.Snapshot()
		return !snap.ReconnectInFlight && !snap.RefreshInFlight
	})
	expectNoCall(t, b.calls)
}

func TestSuccessfulReconnectIsNotRepeated(t *testing.T) {
	clock := &fakeClock{}
	b := newBackend()
	props := remoteProps(b, false)
	c := newController(t, clock, props)

	c.FocusGained()
	c.Snapshot()
	clock.Advance(refresh.DefaultDebounce)
	expectCall(t, b.calls, "reconnect")
	expectCall(t, b.calls, "refresh")
	waitFor(t, "cycle to finish", func() bool {
		snap := c.Snapshot()
		return !snap.ReconnectInFlight && !snap.RefreshInFlight
	})
	if props.ActiveWorkspace.Connected {
		t.Fatalf("expected caller props left untouched")
	}

	c.FocusGained()
	c.Snapshot()
	clock.Advance(refresh.DefaultDebounce)
	expectCall(t, b.calls, "refresh")
	expectNoCall(t, b.calls)
}

func TestConnectedWorkspaceSkipsReconnect(t *testing.T) {
	clock := &fakeClock{}
	b := newBackend()
	c := newController(t, clock, remoteProps(b, true))

	c.FocusGained()
	c.Snapshot()
	clock.Advance(refresh.DefaultDebounce)
	expectCall(t, b.calls, "refresh")
	expectNoCall(t, b.calls)
}

func TestInFlightRefreshSuppressesNewOnes(t *testing.T) {
	clock := &fakeClock{}
	b := newBackend()
	b.release = make(chan error)
	c := newController(t, clock, remoteProps(b, true))

	c.FocusGained()
	c.Snapshot()
	clock.Advance(refresh.DefaultDebounce)
	expectCall(t, b.calls, "refresh")

	c.FocusGained()
	c.Snapshot()
	clock.Advance(refresh.DefaultDebounce)
	expectNoCall(t, b.calls)
	if snap := c.Snapshot(); !snap.RefreshInFlight || snap.Phase != refresh.PhaseRefreshing {
		t.Fatalf("expected refresh in flight, got %+v", snap)
	}

	b.release <- errors.New("timeout")
	waitFor(t, "refresh to settle", func() bool { return !c.Snapshot().RefreshInFlight })
	expectNoCall(t, b.calls)

	b.release = nil
	c.FocusGained()
	c.Snapshot()
	clock.Advance(refresh.DefaultDebounce)
	expectCall(t, b.calls, "refresh")
}

func TestPendingDebounceUsesLatestProps(t *testing.T) {
	clock := &fakeClock{}
	stale := newBackend()
	c := newController(t, clock, remoteProps(stale, true))

	c.FocusGained()
	c.Snapshot()

	current := newBackend()
	props := remoteProps(current, true)
	props.ActiveThreadID = "thread-2"
	c.SetProps(props)
	c.Snapshot()

	clock.Advance(refresh.DefaultDebounce)
	got := expectCall(t, current.calls, "refresh")
	if got.threadID != "thread-2" {
		t.Fatalf("expected refresh of current thread, got %+v", got)
	}
	expectNoCall(t, stale.calls)
}

func TestLeavingRemoteModeCancelsDebounce(t *testing.T) {
	clock := &fakeClock{}
	b := newBackend()
	props := remoteProps(b, true)
	c := newController(t, clock, props)

	c.FocusGained()
	props.BackendMode = refresh.BackendModeLocal
	c.SetProps(props)
	if snap := c.Snapshot(); snap.DebouncePending {
		t.Fatalf("expected debounce cancelled, got %+v", snap)
	}
	clock.Advance(refresh.DefaultDebounce)
	expectNoCall(t, b.calls)
}

func TestPollRunsOnlyWhileIdleFocusedAndVisible(t *testing.T) {
	clock := &fakeClock{}
	b := newBackend()
	props := remoteProps(b, true)
	props.SuspendPolling = false
	c := newController(t, clock, props)

	if snap := c.Snapshot(); !snap.PollArmed || snap.Phase != refresh.PhasePolling {
		t.Fatalf("expected poll armed, got %+v", snap)
	}
	clock.Advance(refresh.DefaultPollInterval)
	expectCall(t, b.calls, "refresh")
	waitFor(t, "poll to re-arm", func() bool { return c.Snapshot().PollArmed })

	props.ActiveThreadIsProcessing = true
	c.SetProps(props)
	if c.Snapshot().PollArmed {
		t.Fatalf("expected poll torn down while processing")
	}
	clock.Advance(time.Minute)
	expectNoCall(t, b.calls)

	props.ActiveThreadIsProcessing = false
	c.SetProps(props)
	c.FocusLost()
	if c.Snapshot().PollArmed {
		t.Fatalf("expected no poll while blurred")
	}
	c.FocusGained()
	c.VisibilityChanged(false)
	if snap := c.Snapshot(); snap.PollArmed {
		t.Fatalf("expected no poll while hidden, got %+v", snap)
	}

	props.SuspendPolling = true
	c.SetProps(props)
	c.VisibilityChanged(true)
	if c.Snapshot().PollArmed {
		t.Fatalf("expected no poll while suspended")
	}
}

func TestPollRearmsOnThreadSwitch(t *testing.T) {
	clock := &fakeClock{}
	b := newBackend()
	props := remoteProps(b, true)
	props.SuspendPolling = false
	c := newController(t, clock, props)
	c.Snapshot()

	clock.Advance(8 * time.Second)
	props.ActiveThreadID = "thread-2"
	c.SetProps(props)
	c.Snapshot()

	clock.Advance(8 * time.Second)
	expectNoCall(t, b.calls)

	clock.Advance(4 * time.Second)
	got := expectCall(t, b.calls, "refresh")
	if got.threadID != "thread-2" {
		t.Fatalf("expected poll for new thread, got %+v", got)
	}
}

func TestSetIntervalsRearmsPoll(t *testing.T) {
	clock := &fakeClock{}
	b := newBackend()
	props := remoteProps(b, true)
	props.SuspendPolling = false
	c := newController(t, clock, props)

	c.SetIntervals(0, 3*time.Second)
	c.Snapshot()
	clock.Advance(3 * time.Second)
	expectCall(t, b.calls, "refresh")
}

func TestNativeListenersForwardAndDetach(t *testing.T) {
	clock := &fakeClock{}
	b := newBackend()
	window := newFakeWindow()
	c := refresh.New(refresh.Config{Clock: clock, Window: window}, remoteProps(b, true))

	waitFor(t, "listeners to register", func() bool { return c.Snapshot().NativeListeners == 2 })

	if !window.emit(refresh.WindowEventBlur) {
		t.Fatalf("expected blur handler registered")
	}
	if c.Snapshot().Focused {
		t.Fatalf("expected blur to clear focus")
	}
	window.emit(refresh.WindowEventFocus)
	if snap := c.Snapshot(); !snap.Focused || !snap.DebouncePending {
		t.Fatalf("expected native focus to schedule refresh, got %+v", snap)
	}

	c.Close()
	got := map[string]bool{<-window.unlistened: true, <-window.unlistened: true}
	if !got[refresh.WindowEventFocus] || !got[refresh.WindowEventBlur] {
		t.Fatalf("expected both listeners removed, got %v", got)
	}
	if !c.Snapshot().Closed {
		t.Fatalf("expected closed snapshot")
	}
}

func TestLateListenerRegistrationAfterCloseIsReleased(t *testing.T) {
	clock := &fakeClock{}
	b := newBackend()
	window := newFakeWindow()
	window.gate = make(chan struct{})
	c := refresh.New(refresh.Config{Clock: clock, Window: window}, remoteProps(b, true))

	c.Close()
	close(window.gate)

	for i := 0; i < 2; i++ {
		select {
		case <-window.unlistened:
		case <-time.After(2 * time.Second):
			t.Fatalf("late registration %d was never released", i)
		}
	}
	if window.emit(refresh.WindowEventFocus) {
		t.Fatalf("expected no live handler after close")
	}
}

func TestCloseCancelsInFlightRefresh(t *testing.T) {
	clock := &fakeClock{}
	b := newBackend()
	b.release = make(chan error)
	c := refresh.New(refresh.Config{Clock: clock}, remoteProps(b, true))

	c.FocusGained()
	c.Snapshot()
	clock.Advance(refresh.DefaultDebounce)
	expectCall(t, b.calls, "refresh")

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("close blocked on in-flight refresh")
	}

	// Timers fired after close are dropped.
	c.FocusGained()
	clock.Advance(time.Minute)
	expectNoCall(t, b.calls)
}
