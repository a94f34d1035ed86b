package threads

import (
	"encoding/json"
	"time"

	"codexmonitor/internal/stale"
)

// Liveness is the render-facing view of one thread's processing health.
type Liveness struct {
	ThreadID          string        `json:"threadId"`
	Status            ThreadStatus  `json:"status"`
	HasRunningCommand bool          `json:"hasRunningCommand"`
	Stale             stale.Result  `json:"stale"`
	LastActivityAt    time.Time     `json:"lastActivityAt"`
	ActiveTurnID      string        `json:"activeTurnId,omitempty"`
	Elapsed           time.Duration `json:"-"`
}

type livenessAlias Liveness

type livenessJSON struct {
	livenessAlias
	ElapsedMs int64 `json:"elapsedMs"`
}

// MarshalJSON encodes Elapsed as whole milliseconds.
func (l Liveness) MarshalJSON() ([]byte, error) {
	return json.Marshal(livenessJSON{livenessAlias: livenessAlias(l), ElapsedMs: l.Elapsed.Milliseconds()})
}

func (l *Liveness) UnmarshalJSON(data []byte) error {
	var raw livenessJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = Liveness(raw.livenessAlias)
	l.Elapsed = time.Duration(raw.ElapsedMs) * time.Millisecond
	return nil
}

// ThreadLiveness evaluates the stale policy for a thread against state.
// Threads that are not processing are never stale.
func ThreadLiveness(s *State, threadID string, now time.Time) Liveness {
	status := s.Status(threadID)
	items := s.ItemsByThread[threadID]
	running := stale.HasRunningCommandExecution(items)
	lastAlive := s.LastActivityAtByThread[threadID]

	live := Liveness{
		ThreadID:          threadID,
		Status:            status,
		HasRunningCommand: running,
		LastActivityAt:    lastAlive,
		ActiveTurnID:      s.ActiveTurnIDByThread[threadID],
	}
	if !status.IsProcessing {
		live.Stale = stale.Result{SilenceThreshold: stale.ResolveSilenceThreshold(running)}
		return live
	}
	live.Stale = stale.EvaluateThreadStaleState(stale.Input{
		Now:                        now,
		StartedAt:                  status.ProcessingStartedAt,
		LastAliveAt:                lastAlive,
		HasRunningCommandExecution: running,
	})
	live.Elapsed = live.Stale.ProcessingAge
	return live
}

// StaleThreadIDs lists the processing threads of a workspace that are stale at now.
func StaleThreadIDs(s *State, workspaceID string, now time.Time) []string {
	var out []string
	for _, t := range s.Threads(workspaceID) {
		if ThreadLiveness(s, t.ID, now).Stale.IsStale {
			out = append(out, t.ID)
		}
	}
	return out
}
