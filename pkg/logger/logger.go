package logger

import (
	"log/slog"
	"os"
)

var defaultLogger *slog.Logger

// Init picks the handler for the environment: JSON at info level in
// production, human-readable text at debug level everywhere else.
func Init(env string) {
	var handler slog.Handler

	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

func LoggerWrapper() *slog.Logger {
	if defaultLogger == nil {
		// callers before Init get a development logger instead of a nil panic
		Init("development")
	}
	return defaultLogger
}
