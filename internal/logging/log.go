package logging

import (
	"io"

	"github.com/fatih/color"
)

var logger = NewLogger(nil, LevelInfo)

func Debugf(format string, a ...interface{}) {
	logger.Debug(format, a...)
}

func Infof(format string, a ...interface{}) {
	logger.Info(format, a...)
}

func Warningf(format string, a ...interface{}) {
	logger.Warning(format, a...)
}

func Errorf(format string, a ...interface{}) {
	logger.Error(format, a...)
}

func Successf(format string, a ...interface{}) {
	logger.Success(format, a...)
}

// SetLevel sets the global log level, clamped to LevelError..LevelDebug
func SetLevel(level int) {
	logger.SetLevel(level)
}

func Level() int {
	return logger.Level
}

// SetOutput set a new writer to logging package, for example os.Stdout
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// SetColor turns colored output on or off for every logger
func SetColor(enabled bool) {
	color.NoColor = !enabled
}

// ColorEnabled reports whether messages will carry color escape codes
func ColorEnabled() bool {
	return !color.NoColor
}
