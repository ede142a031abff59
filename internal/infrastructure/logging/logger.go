package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/manifoldbus/manifold/internal/infrastructure/config"
)

// Logger is the daemon's structured logger. It embeds slog.Logger, so it
// satisfies the bus.Logger interface directly and every component logs
// through the same handler with service and version attached.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of config.yaml. Format
// "text" is for development; anything else means JSON. Output "stderr"
// redirects; anything else means stdout.
func New(cfg config.LoggingConfig, version string) *Logger {
	out := io.Writer(os.Stdout)
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}
	return newLogger(cfg, version, out)
}

// newLogger is the writer-injected core of New, split out so tests can
// capture output.
func newLogger(cfg config.LoggingConfig, version string, out io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: levelFor(cfg.Level)}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}

	h = h.WithAttrs([]slog.Attr{
		slog.String("service", "manifold"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(h)}
}

// levelFor maps a config level string onto slog. Unknown and empty
// strings fall back to info rather than failing startup.
func levelFor(level string) slog.Level {
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

// With returns a child Logger carrying extra default attributes, e.g.
//
//	busLog := log.With("bus", "plant")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the bootstrap logger used before configuration is loaded:
// JSON to stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
