// Package logger is the process-wide slog logger. Level and format come from
// TIERMEM_LOG_LEVEL (debug, info, warn, error) and TIERMEM_LOG_FORMAT (text
// or json). TIERMEM_DEBUG=true is kept as a shorthand for debug.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var log *slog.Logger

func init() {
	log = New(os.Stderr, os.Getenv("TIERMEM_LOG_LEVEL"), os.Getenv("TIERMEM_LOG_FORMAT"))
	if os.Getenv("TIERMEM_DEBUG") == "true" {
		log = New(os.Stderr, "debug", os.Getenv("TIERMEM_LOG_FORMAT"))
	}
}

// New builds a logger writing to w. Unknown levels fall back to info and
// unknown formats to text.
func New(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With("component", "tiermem")
}

// SetDefault replaces the package logger and returns the previous one.
func SetDefault(l *slog.Logger) *slog.Logger {
	prev := log
	log = l
	return prev
}

// With returns a child logger carrying the given attributes, for code that
// logs many lines about the same owner or job.
func With(args ...any) *slog.Logger {
	return log.With(args...)
}

func Debug(msg string, args ...any) { log.Debug(msg, args...) }
func Info(msg string, args ...any)  { log.Info(msg, args...) }
func Warn(msg string, args ...any)  { log.Warn(msg, args...) }
func Error(msg string, args ...any) { log.Error(msg, args...) }

func Fatal(msg string, args ...any) {
	log.Error(msg, args...)
	os.Exit(1)
}
