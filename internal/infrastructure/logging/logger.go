package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/canvas-link/internal/infrastructure/config"
)

// serviceName is attached to every log entry.
const serviceName = "canvaslink"

// Logger is a slog.Logger carrying the service and version fields.
//
// Thread Safety: safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds the daemon logger from cfg. Output "stderr" writes to stderr,
// anything else to stdout.
func New(cfg config.LoggingConfig, version string) *Logger {
	out := io.Writer(os.Stdout)
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}
	return NewWithWriter(out, cfg, version)
}

// NewWithWriter is New with an explicit destination; cfg.Output is ignored.
// Format "text" selects the text handler, anything else JSON.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(h).With("service", serviceName, "version", version)}
}

// parseLevel accepts slog level names in any case plus "warning". Unknown
// names fall back to info.
func parseLevel(name string) slog.Level {
	if strings.EqualFold(name, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// With returns a child Logger with extra attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component tags entries with the subsystem that wrote them, e.g. "mqtt"
// or "registration".
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the bootstrap logger used until the config is loaded: JSON
// on stdout at info level.
func Default() *Logger {
	return NewWithWriter(os.Stdout, config.LoggingConfig{}, "dev")
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}
