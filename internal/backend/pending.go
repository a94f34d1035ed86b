package backend

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// callResult is what the read loop hands back to a waiting Call.
type callResult struct {
	result json.RawMessage
	err    error
}

// pendingCall represents a request waiting for its response
type pendingCall struct {
	ID         string
	Method     string
	ResponseCh chan callResult
	CreatedAt  time.Time
}

// pendingCalls tracks in-flight requests by id
type pendingCalls struct {
	pending map[string]*pendingCall
	mu      sync.Mutex
}

func newPendingCalls() *pendingCalls {
	return &pendingCalls{pending: make(map[string]*pendingCall)}
}

// Create registers a new request and returns it
func (m *pendingCalls) Create(method string) *pendingCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	pc := &pendingCall{
		ID:         uuid.New().String(),
		Method:     method,
		ResponseCh: make(chan callResult, 1),
		CreatedAt:  time.Now(),
	}
	m.pending[pc.ID] = pc
	return pc
}

// Resolve delivers a response. Unknown ids (late or duplicate responses) are ignored.
func (m *pendingCalls) Resolve(id string, res callResult) bool {
	m.mu.Lock()
	pc, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	pc.ResponseCh <- res // buffered, never blocks
	return true
}

// Forget drops a request whose caller gave up.
func (m *pendingCalls) Forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, id)
}

// FailAll resolves every in-flight request with err (e.g., on disconnect)
func (m *pendingCalls) FailAll(err error) int {
	m.mu.Lock()
	calls := m.pending
	m.pending = make(map[string]*pendingCall)
	m.mu.Unlock()

	for _, pc := range calls {
		pc.ResponseCh <- callResult{err: err}
	}
	return len(calls)
}

// Len returns the number of in-flight requests.
func (m *pendingCalls) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
