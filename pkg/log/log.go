// Package log configures the process-wide structured logger shared by the
// ledgerflow binaries.
package log

import (
	"log/slog"
	"os"
	"strings"
)

const serviceName = "ledgerflow"

// Setup installs the default slog logger. The level is parsed leniently and
// falls back to info; LOG_FORMAT=json switches to the JSON handler used in
// containerized deployments, where a collector parses the stream.
func Setup(logLevel string) {
	opts := &slog.HandlerOptions{Level: ParseLevel(logLevel)}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler).With("service", serviceName))
}

// ParseLevel maps a level name to its slog level. Unknown names fall back to
// info rather than failing startup.
func ParseLevel(logLevel string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithModule returns the default logger tagged for one ledgerflow module.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
