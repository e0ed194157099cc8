package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nerrad567/gray-logic-upnp/internal/infrastructure/config"
)

const serviceName = "graylogic-upnp"

const (
	fileDirMode = 0o750
	fileMode    = 0o640
)

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// Logger is a slog.Logger carrying the service and version fields.
// It is safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a logger from the logging section of config.yaml.
//
// When output is "file" and the file cannot be opened, the logger writes
// to stderr and says so in its first entry.
//
// Parameters:
//   - cfg: Logging configuration
//   - version: Build version, added to every entry
//
// Returns:
//   - *Logger: Ready to use
func New(cfg config.LoggingConfig, version string) *Logger {
	w, err := openOutput(cfg)
	l := NewWithWriter(cfg, version, w)
	if err != nil {
		l.Warn("log file unavailable, using stderr", "path", cfg.File.Path, "error", err)
	}
	return l
}

// NewWithWriter is New with an explicit destination; cfg.Output is ignored.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(h).With("service", serviceName, "version", version)}
}

func openOutput(cfg config.LoggingConfig) (io.Writer, error) {
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		return os.Stderr, nil
	case "file":
		return openFile(cfg.File.Path)
	default:
		return os.Stdout, nil
	}
}

// openFile appends to path, creating it and its directory. On failure it
// returns stderr with the error.
func openFile(path string) (io.Writer, error) {
	if path == "" {
		return os.Stderr, os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(path), fileDirMode); err != nil {
		return os.Stderr, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, fileMode)
	if err != nil {
		return os.Stderr, err
	}
	return f, nil
}

// parseLevel maps a level name to slog. Unknown names mean info.
func parseLevel(level string) slog.Level {
	if l, ok := levels[strings.ToLower(level)]; ok {
		return l
	}
	return slog.LevelInfo
}

// With returns a child logger with extra fields.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a child logger tagged component=name, so output of
// the SSDP engine, GENA publishers and registry can be told apart.
//
//	log.Component("ssdp").Info("listening") // component=ssdp
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the logger used before config.yaml has been read: JSON on
// stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
