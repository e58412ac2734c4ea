// Package main is the entry point for the dockerhood service.
package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/exact-lab/dockerhood/cmd/dockerhood/app"
)

// getLogLevel parses the DOCKERHOOD_LOG_LEVEL environment variable and
// returns the corresponding slog.Level. Defaults to slog.LevelInfo if unset
// or invalid.
func getLogLevel() slog.Level {
	levelStr := os.Getenv("DOCKERHOOD_LOG_LEVEL")

	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("Invalid DOCKERHOOD_LOG_LEVEL, using INFO", "value", levelStr)
		return slog.LevelInfo
	}
}

func main() {
	// Structured logging on stderr keeps stdout clean for commands that
	// output data (e.g. version --format json)
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: getLogLevel()})
	slog.SetDefault(slog.New(handler))

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
