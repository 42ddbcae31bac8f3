package logger

import (
	"log/slog"
	"os"
	"strings"
)

var defaultLogger *slog.Logger

// Init builds the process logger. Production gets JSON output, everything else
// text, unless format says otherwise.
func Init(env string, level ...string) {
	InitWithFormat(env, "", level...)
}

func InitWithFormat(env, format string, level ...string) {
	var handler slog.Handler

	lvl := slog.LevelDebug
	if env == "production" {
		lvl = slog.LevelInfo
	}
	if len(level) > 0 && level[0] != "" {
		lvl = ParseLevel(level[0])
	}

	useJSON := env == "production"
	switch strings.ToLower(format) {
	case "json":
		useJSON = true
	case "text":
		useJSON = false
	}

	if useJSON {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

func LoggerWrapper() *slog.Logger {
	if defaultLogger == nil {
		// lazy initialize a development logger to avoid nil pointer panics
		Init("development")
	}
	return defaultLogger
}
