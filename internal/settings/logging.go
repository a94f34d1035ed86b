package settings

import (
	"sync/atomic"

	"github.com/wailsapp/wails/v2/pkg/logger"
)

// LogLevel returns the level selected by DebugLogging.
func (s Settings) LogLevel() logger.LogLevel {
	if s.DebugLogging {
		return logger.DEBUG
	}
	return logger.INFO
}

// LevelLogger drops messages below a level that can change while running.
// Print and Fatal always pass through.
type LevelLogger struct {
	next  logger.Logger
	level atomic.Uint32
}

// NewLevelLogger wraps next, starting at level.
func NewLevelLogger(next logger.Logger, level logger.LogLevel) *LevelLogger {
	l := &LevelLogger{next: next}
	l.SetLevel(level)
	return l
}

// SetLevel changes the minimum level written.
func (l *LevelLogger) SetLevel(level logger.LogLevel) {
	l.level.Store(uint32(level))
}

// Level returns the current minimum level.
func (l *LevelLogger) Level() logger.LogLevel {
	return logger.LogLevel(l.level.Load())
}

func (l *LevelLogger) enabled(level logger.LogLevel) bool {
	return level >= l.Level()
}

func (l *LevelLogger) Print(message string) { l.next.Print(message) }

func (l *LevelLogger) Trace(message string) {
	if l.enabled(logger.TRACE) {
		l.next.Trace(message)
	}
}

func (l *LevelLogger) Debug(message string) {
	if l.enabled(logger.DEBUG) {
		l.next.Debug(message)
	}
}

func (l *LevelLogger) Info(message string) {
	if l.enabled(logger.INFO) {
		l.next.Info(message)
	}
}

func (l *LevelLogger) Warning(message string) {
	if l.enabled(logger.WARNING) {
		l.next.Warning(message)
	}
}

func (l *LevelLogger) Error(message string) {
	if l.enabled(logger.ERROR) {
		l.next.Error(message)
	}
}

func (l *LevelLogger) Fatal(message string) { l.next.Fatal(message) }
