// Package logging configures the shared zerolog logger.
//
// Diagnostics go to stderr so stdout stays reserved for the final scan
// summary, which operators pipe into tickets and chat.
package logging

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EnvLogLevel overrides the log level (trace, debug, info, warn, error).
const EnvLogLevel = "PSENTRY_LOG_LEVEL"

var (
	setupOnce sync.Once
	logger    zerolog.Logger
)

// Setup initializes the shared logger. verbose lowers the level to debug.
// The first call wins; subsequent calls return the already-configured logger.
func Setup(verbose bool) zerolog.Logger {
	setupOnce.Do(func() {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		if env := os.Getenv(EnvLogLevel); env != "" {
			if parsed, err := zerolog.ParseLevel(strings.ToLower(env)); err == nil {
				level = parsed
			}
		}
		out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		logger = zerolog.New(out).Level(level).With().Timestamp().Logger()
	})
	return logger
}

// L returns the shared logger, initializing it at the default level if
// Setup has not been called yet.
func L() *zerolog.Logger {
	Setup(false)
	return &logger
}
