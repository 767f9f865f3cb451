// Package logging configures structured JSON logging for a service.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs a JSON slog handler as the default logger. Every record
// carries the service name so aggregated logs can be filtered per service.
func Setup(serviceName, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN", "WARNING":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(handler).With("service", serviceName)
	slog.SetDefault(logger)
	return logger
}
