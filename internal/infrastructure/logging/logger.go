package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nerrad567/neurite-core/internal/infrastructure/config"
)

// Values for logging.output other than a file path.
const (
	OutputStdout = "stdout"
	OutputStderr = "stderr"

	// OutputConsole prints log lines through the interactive console so they
	// appear above the prompt. Until a console is attached they go to stderr.
	OutputConsole = "console"
)

// Logger wraps slog.Logger with Neurite-specific functionality.
//
// All loggers derived with With share one destination, so SetOutput on any
// of them redirects every component at once.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger

	out    *redirect
	closer io.Closer
}

// redirect is a writer whose target can change after handlers are built.
type redirect struct {
	mu sync.Mutex
	w  io.Writer
}

func (r *redirect) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w.Write(p)
}

func (r *redirect) set(w io.Writer) {
	r.mu.Lock()
	r.w = w
	r.mu.Unlock()
}

// New creates a Logger for cfg.
//
// cfg.Output is stdout (default), stderr, console, or a file path. Files are
// opened for append with mode 0600 and their directory is created.
func New(cfg config.LoggingConfig, version string) (*Logger, error) {
	var (
		output io.Writer
		closer io.Closer
	)
	switch strings.ToLower(cfg.Output) {
	case "", OutputStdout:
		output = os.Stdout
	case OutputStderr, OutputConsole:
		output = os.Stderr
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Output), 0o750); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // Path comes from operator config
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		output, closer = f, f
	}

	l := NewWithWriter(cfg, version, output)
	l.closer = closer
	return l, nil
}

// NewWithWriter creates a Logger that writes to w, ignoring cfg.Output.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	out := &redirect{w: w}
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "neurite"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
		out:    out,
	}
}

// parseLevel converts a string log level to slog.Level, defaulting to info.
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

// With returns a new Logger with additional default attributes.
// It shares the parent's destination.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		out:    l.out,
		closer: l.closer,
	}
}

// WithDevice tags every entry with the device identity.
func (l *Logger) WithDevice(deviceID string) *Logger {
	return l.With("device_id", deviceID)
}

// SetOutput redirects this logger and every logger sharing its destination.
func (l *Logger) SetOutput(w io.Writer) {
	l.out.set(w)
}

// Close releases the log file, if any. Stdout and stderr are left open.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Default creates a logger for use before configuration is loaded:
// JSON to stdout at info level.
func Default() *Logger {
	return NewWithWriter(config.LoggingConfig{
		Level:  "info",
		Format: "json",
	}, "dev", os.Stdout)
}
