// Package stale decides when a processing thread should be treated as stalled.
//
// A thread is stale only when it has been processing for a while AND has been
// silent for longer than the applicable threshold. Long shell commands get a
// larger silence budget because they legitimately emit nothing for minutes.
package stale

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
	"unicode"

	"codexmonitor/internal/types"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// ActiveThreadStaleThreshold is the minimum processing age before a thread can be stale.
	ActiveThreadStaleThreshold = 3 * time.Minute

	// WorkspaceSilenceThreshold applies while no command execution is running.
	WorkspaceSilenceThreshold = 90 * time.Second

	// RunningCommandSilenceThreshold applies while a command execution is running.
	RunningCommandSilenceThreshold = 8 * time.Minute
)

var (
	runningStatusPattern  = regexp.MustCompile(`pending|running|processing|started|in_progress|executing`)
	terminalStatusPattern = regexp.MustCompile(`complete|success|fail|cancel|abort|done|error|declined|interrupted|stopped`)
)

// =============================================================================
// EVALUATION
// =============================================================================

// Input holds the timestamps needed to evaluate one thread.
// Zero times mean "never observed".
type Input struct {
	Now                        time.Time
	StartedAt                  time.Time
	LastAliveAt                time.Time
	HasRunningCommandExecution bool
}

// Result is the outcome of EvaluateThreadStaleState.
// Durations are encoded as whole milliseconds.
type Result struct {
	IsStale          bool
	ProcessingAge    time.Duration
	Silence          time.Duration
	SilenceThreshold time.Duration
}

type resultJSON struct {
	IsStale            bool  `json:"isStale"`
	ProcessingAgeMs    int64 `json:"processingAgeMs"`
	SilenceMs          int64 `json:"silenceMs"`
	SilenceThresholdMs int64 `json:"silenceThresholdMs"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		IsStale:            r.IsStale,
		ProcessingAgeMs:    r.ProcessingAge.Milliseconds(),
		SilenceMs:          r.Silence.Milliseconds(),
		SilenceThresholdMs: r.SilenceThreshold.Milliseconds(),
	})
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var raw resultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Result{
		IsStale:          raw.IsStale,
		ProcessingAge:    time.Duration(raw.ProcessingAgeMs) * time.Millisecond,
		Silence:          time.Duration(raw.SilenceMs) * time.Millisecond,
		SilenceThreshold: time.Duration(raw.SilenceThresholdMs) * time.Millisecond,
	}
	return nil
}

// HasRunningCommandExecution reports whether the most recent commandExecution
// tool item is still running. Earlier command items are never consulted.
func HasRunningCommandExecution(items []types.ConversationItem) bool {
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		if !item.IsCommandExecution() {
			continue
		}
		status := normalizeStatus(item.Status)
		if status == "" {
			return item.DurationMs == nil
		}
		if runningStatusPattern.MatchString(status) {
			return true
		}
		if terminalStatusPattern.MatchString(status) {
			return false
		}
		// Unknown vocabulary: treat as settled.
		return false
	}
	return false
}

// ResolveSilenceThreshold returns the silence budget for a processing thread.
func ResolveSilenceThreshold(hasRunningCommand bool) time.Duration {
	if hasRunningCommand {
		return RunningCommandSilenceThreshold
	}
	return WorkspaceSilenceThreshold
}

// EvaluateThreadStaleState applies the two-factor stale rule.
func EvaluateThreadStaleState(in Input) Result {
	threshold := ResolveSilenceThreshold(in.HasRunningCommandExecution)
	if !isObserved(in.StartedAt) {
		return Result{SilenceThreshold: threshold}
	}

	processingAge := max(0, in.Now.Sub(in.StartedAt))
	silence := processingAge
	if isObserved(in.LastAliveAt) {
		silence = max(0, in.Now.Sub(in.LastAliveAt))
	}

	return Result{
		IsStale:          processingAge >= ActiveThreadStaleThreshold && silence >= threshold,
		ProcessingAge:    processingAge,
		Silence:          silence,
		SilenceThreshold: threshold,
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func isObserved(t time.Time) bool {
	return !t.IsZero() && t.UnixMilli() > 0
}

// normalizeStatus folds "inProgress", "in-progress" and "In Progress" into "in_progress".
func normalizeStatus(status string) string {
	status = strings.TrimSpace(status)
	var b strings.Builder
	var prev rune
	for _, r := range status {
		switch {
		case r == '-' || r == ' ':
			r = '_'
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
		prev = r
	}
	return b.String()
}
