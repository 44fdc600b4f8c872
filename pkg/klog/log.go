// Package klog provides the logging and invariant-checking primitives shared
// by every package in this module. Storage code logs through the default
// slog logger rather than threading a logger value through every call site.
package klog

import (
	"flag"
	"log/slog"
	"os"
	"strings"
)

type HandlerType string

const (
	HandlerTypeText HandlerType = "text"
	HandlerTypeJSON HandlerType = "json"
)

type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var (
	handlerTypeFlag = flag.String("log_format", string(HandlerTypeJSON), "Log handler: json/text")
	logLevelFlag    = flag.String("log_level", string(LevelInfo), "Log level: debug/info/warn/error")
)

// initWith configures the default slog logger with an explicit handler and level.
func initWith(handlerType HandlerType, level Level) {
	slogLevel := slog.LevelInfo
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		Invariant("klog", "unsupported_log_level", "Got an unsupported log level.", "level", level)
	}

	opts := &slog.HandlerOptions{Level: slogLevel}
	var handler slog.Handler
	switch handlerType {
	case HandlerTypeText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case HandlerTypeJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		Invariant("klog", "unsupported_handler_type", "Got an unsupported log handler type.", "type", handlerType)
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// Init configures the default slog logger from the -log_format and -log_level flags.
// Must be called after flag.Parse().
func Init() {
	initWith(HandlerType(strings.ToLower(*handlerTypeFlag)), Level(strings.ToLower(*logLevelFlag)))
	slog.Debug("logging configured", "format", *handlerTypeFlag, "level", *logLevelFlag)
}
