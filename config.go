// Completion: 100% - Configuration complete
package main

import (
	"github.com/xyproto/elf2efi/internal/logging"
	"github.com/xyproto/env/v2"
)

// Config holds the settings shared by all commands. The environment
// provides the defaults and command line flags override them.
type Config struct {
	Verbose bool
	Quiet   bool
	Direct  bool
	NoColor bool
	Level   int
	Class   string
}

// loadConfig reads the ELF2EFI_* environment variables
func loadConfig() Config {
	return Config{
		Verbose: env.Bool("ELF2EFI_VERBOSE"),
		Quiet:   env.Bool("ELF2EFI_QUIET"),
		Direct:  env.Bool("ELF2EFI_DIRECT"),
		NoColor: env.Has("NO_COLOR"),
		Level:   env.Int("ELF2EFI_LOG_LEVEL", logging.LevelInfo),
		Class:   env.Str("ELF2EFI_CLASS"),
	}
}

// LogLevel resolves the effective log level. Quiet wins over verbose.
func (c Config) LogLevel() int {
	switch {
	case c.Quiet:
		return logging.LevelError
	case c.Verbose:
		return logging.LevelDebug
	default:
		return c.Level
	}
}
