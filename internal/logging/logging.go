package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls how Init builds the default logger.
type Options struct {
	// DefaultLevel is used when LOG_LEVEL is unset or unknown.
	DefaultLevel slog.Level

	// Output overrides the destination. When nil, LOG_FILE is honoured
	// and stderr is the fallback.
	Output io.Writer
}

// Init installs the process-wide slog logger and returns it.
//
// LOG_LEVEL selects verbosity, LOG_FORMAT=json switches to the JSON handler
// and LOG_FILE redirects output (the terminal UI owns stdout/stderr while a
// call is running).
func Init(opts Options) *slog.Logger {
	level := ParseLevel(os.Getenv("LOG_LEVEL"), opts.DefaultLevel)

	out := opts.Output
	if out == nil {
		out = os.Stderr
		if path := os.Getenv("LOG_FILE"); path != "" {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err == nil {
				out = f
			}
		}
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps the LOG_LEVEL vocabulary onto slog levels.
func ParseLevel(s string, fallback slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dev", "development", "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "production", "prod":
		return slog.LevelError
	default:
		return fallback
	}
}
