package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/gray-logic-midi/internal/infrastructure/config"
)

// serviceName is attached to every log entry.
const serviceName = "graymidi"

// Logger is a slog.Logger carrying the service and version attributes.
// It is safe for concurrent use.
type Logger struct {
	*slog.Logger

	// file is set when cfg.Output names a log file.
	file *os.File
}

// New builds a logger from cfg.
//
// cfg.Output is "stdout", "stderr" or the path of a file that is appended
// to. When the file cannot be opened the logger falls back to stderr and
// says so in its first entry.
func New(cfg config.LoggingConfig, version string) *Logger {
	var (
		output  io.Writer
		file    *os.File
		openErr error
	)
	switch out := strings.TrimSpace(cfg.Output); strings.ToLower(out) {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, openErr = os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if openErr != nil {
			output = os.Stderr
		} else {
			output = file
		}
	}

	l := NewWithWriter(cfg, version, output)
	l.file = file
	if openErr != nil {
		l.Warn("log file unavailable, logging to stderr", "path", cfg.Output, "error", openErr)
	}
	return l
}

// NewWithWriter is New with an explicit destination. cfg.Output is ignored.
//
// At debug level every entry also carries its source location.
func NewWithWriter(cfg config.LoggingConfig, version string, output io.Writer) *Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	return &Logger{
		Logger: slog.New(handler.WithAttrs([]slog.Attr{
			slog.String("service", serviceName),
			slog.String("version", version),
		})),
	}
}

// parseLevel maps debug, info, warn (or warning) and error to slog levels,
// case-insensitively. Anything else is info.
func parseLevel(level string) slog.Level {
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

// With returns a logger adding args to every entry. It shares the
// destination of l.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a logger tagging entries with component=name.
//
//	devLog := log.Component("device")
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Close closes the log file, if any. Loggers derived with With share the
// file and must not be used afterwards.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Hex logs MIDI bytes as space separated hex ("90 3C 64"). Formatting only
// happens when the entry is actually written, so it is cheap to pass to
// debug calls on the message path.
type Hex []byte

// LogValue implements slog.LogValuer.
func (h Hex) LogValue() slog.Value {
	return slog.StringValue(fmt.Sprintf("% X", []byte(h)))
}

// Default returns an info level JSON logger on stdout for use before the
// configuration is loaded.
func Default() *Logger {
	return NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "dev", os.Stdout)
}
