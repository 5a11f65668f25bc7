// Package logging builds the slog loggers used across tcime.
//
// Loggers write text or JSON to stderr, stdout, a rotated file, or stderr and
// a file at once. Every record carries a component attribute. Typed input is
// privacy sensitive: with RedactInput set, attributes that carry composing
// codes or committed text are replaced before they reach any writer.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Level is a logging level.
type Level = slog.Level

// Log levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format is the output format of records.
type Format int

const (
	// FormatText writes key=value lines.
	FormatText Format = iota
	// FormatJSON writes one JSON object per record.
	FormatJSON
)

// Redacted replaces the value of a redacted attribute.
const Redacted = "[REDACTED]"

// inputKeys are attribute keys that carry what the user typed.
var inputKeys = []string{"code", "text", "commit", "composing", "query", "prefix"}

// Config holds the logging configuration.
type Config struct {
	Level  Level
	Format Format

	// Output is "stdout", "stderr", "file" or "both" (stderr and file).
	Output string

	// FilePath is the log file when Output is "file" or "both".
	FilePath string

	// MaxSize is the file size in megabytes that triggers rotation.
	MaxSize int64
	// MaxAge is how many days rotated files are kept.
	MaxAge int
	// MaxBackups is how many rotated files are kept.
	MaxBackups int
	// Compress gzips rotated files.
	Compress bool

	AddSource bool

	// RedactInput hides composing codes and committed text.
	RedactInput bool

	// Component is attached to every record.
	Component string
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() *Config {
	return &Config{
		Level:       LevelInfo,
		Format:      FormatText,
		Output:      "stderr",
		FilePath:    DefaultLogPath(),
		MaxSize:     10,
		MaxAge:      14,
		MaxBackups:  3,
		Compress:    true,
		RedactInput: true,
		Component:   "tcime",
	}
}

// DefaultLogPath returns the platform log file location.
func DefaultLogPath() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Logs", "tcime", "tcime.log")
	case "windows":
		dir := os.Getenv("LOCALAPPDATA")
		if dir == "" {
			dir = os.Getenv("APPDATA")
		}
		return filepath.Join(dir, "tcime", "logs", "tcime.log")
	default:
		state := os.Getenv("XDG_STATE_HOME")
		if state == "" {
			home, _ := os.UserHomeDir()
			state = filepath.Join(home, ".local", "state")
		}
		return filepath.Join(state, "tcime", "tcime.log")
	}
}

// Logger is a slog.Logger that owns its file writer.
type Logger struct {
	*slog.Logger
	config  *Config
	rotator *FileRotator
	mu      sync.Mutex
}

// New builds a logger from cfg. A nil cfg means DefaultConfig.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	l := &Logger{config: cfg}
	w, err := l.writer()
	if err != nil {
		return nil, fmt.Errorf("setup writers: %w", err)
	}
	l.Logger = slog.New(NewHandler(w, cfg))
	return l, nil
}

// NewHandler returns the handler New would use for w.
func NewHandler(w io.Writer, cfg *Config) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}
	if cfg.RedactInput {
		opts.ReplaceAttr = func(_ []string, a slog.Attr) slog.Attr {
			if isInputKey(a.Key) {
				a.Value = slog.StringValue(Redacted)
			}
			return a
		}
	}
	var h slog.Handler
	if cfg.Format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	if cfg.Component != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("component", cfg.Component)})
	}
	return h
}

func (l *Logger) writer() (io.Writer, error) {
	switch strings.ToLower(l.config.Output) {
	case "stdout":
		return os.Stdout, nil
	case "file", "both":
		r, err := NewFileRotator(l.config)
		if err != nil {
			return nil, err
		}
		l.rotator = r
		if strings.EqualFold(l.config.Output, "both") {
			return io.MultiWriter(os.Stderr, r), nil
		}
		return r, nil
	default:
		return os.Stderr, nil
	}
}

func isInputKey(key string) bool {
	key = strings.ToLower(key)
	for _, k := range inputKeys {
		if key == k {
			return true
		}
	}
	return false
}

// WithComponent returns a logger whose records name component instead.
func (l *Logger) WithComponent(name string) *slog.Logger {
	return l.Logger.With(slog.String("component", name))
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

type contextKey int

const sessionKey contextKey = iota

// ContextWithSession tags ctx with an engine session id.
func ContextWithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey, id)
}

// SessionFromContext returns the session id of ctx, or "".
func SessionFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(sessionKey).(string)
	return id
}

// ForContext adds the session id of ctx to log, if there is one.
func ForContext(ctx context.Context, log *slog.Logger) *slog.Logger {
	if id := SessionFromContext(ctx); id != "" {
		return log.With(slog.String("session", id))
	}
	return log
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel parses a level name.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// ParseFormat parses "text" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %s", s)
	}
}

// LevelString returns the name ParseLevel accepts for level.
func LevelString(level Level) string {
	switch level {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}
