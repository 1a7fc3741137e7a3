// Completion: 100% - Leveled logger complete
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

// Log levels. Errors and successes are always printed.
const (
	LevelError = iota
	LevelWarning
	LevelInfo
	LevelDebug
)

// Logger writes leveled, optionally colored, one-line messages
type Logger struct {
	Level  int
	writer io.Writer
	mu     sync.Mutex
}

// NewLogger creates a logger that writes to w, or to stderr if w is nil
func NewLogger(w io.Writer, level int) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{
		Level:  clampLevel(level),
		writer: w,
	}
}

func clampLevel(level int) int {
	if level < LevelError {
		return LevelError
	}
	if level > LevelDebug {
		return LevelDebug
	}
	return level
}

func (l *Logger) helper(format string, a []interface{}, msgColor *color.Color, prefix string) {
	logMsg := fmt.Sprintf(format, a...)
	if msgColor != nil {
		logMsg = msgColor.Sprint(logMsg)
	}
	if prefix != "" {
		logMsg = prefix + logMsg
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.writer, logMsg)
}

func (l *Logger) Debug(format string, a ...interface{}) {
	if l.Level >= LevelDebug {
		l.helper(format, a, color.New(color.FgBlue, color.Italic), "")
	}
}

func (l *Logger) Info(format string, a ...interface{}) {
	if l.Level >= LevelInfo {
		l.helper(format, a, nil, "")
	}
}

func (l *Logger) Warning(format string, a ...interface{}) {
	if l.Level >= LevelWarning {
		l.helper(format, a, color.New(color.FgHiYellow), "warning: ")
	}
}

// Error prints an error message in red and bold font, regardless of log level
func (l *Logger) Error(format string, a ...interface{}) {
	l.helper(format, a, color.New(color.FgHiRed, color.Bold), "")
}

// Success prints a success message in green, unless the logger is quiet
func (l *Logger) Success(format string, a ...interface{}) {
	if l.Level >= LevelInfo {
		l.helper(format, a, color.New(color.FgHiGreen, color.Bold), "")
	}
}

// SetOutput replaces the writer, for example with os.Stdout. nil means stderr.
func (l *Logger) SetOutput(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	l.mu.Lock()
	l.writer = w
	l.mu.Unlock()
}

func (l *Logger) SetLevel(level int) {
	l.Level = clampLevel(level)
}
