package logx

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Log is the shared logger used throughout the project.
var Log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

// Configure sets the global log level. The level string is tolerant of
// case and common synonyms; unknown values default to info.
func Configure(level string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
}

// ParseLevel converts a string to a zerolog level.
// Accepts: all, trace, debug, info, warn, warning, error, fatal, none.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "all", "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "none", "off", "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// With returns a child logger tagged with the given component name.
func With(component string) zerolog.Logger {
	return Log.With().Str("component", component).Logger()
}

func init() {
	Configure(os.Getenv("LOG_LEVEL"))
}
