package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"boatpilot/pkg/config"
)

// Event is one line of the safety event log.
type Event struct {
	ID        string
	Timestamp time.Time
	Kind      string
	Message   string
}

var (
	eventMu   sync.Mutex
	eventPath string
)

// Init sets up the default slog logger and the safety event log.
// The returned function closes the server log file.
func Init(cfg *config.LogConfig) (func(), error) {
	rotatePaths(cfg.Server.Path, cfg.Events.Path)
	SetEventLogPath(cfg.Events.Path)
	EnableTrace(cfg.Trace)

	handler, file, err := setupHandler(cfg.Server.Path, cfg.Server.Level, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to setup server logger: %w", err)
	}
	slog.SetDefault(slog.New(handler))

	return func() { file.Close() }, nil
}

// ParseLevel maps DEBUG, INFO, WARN and ERROR to slog levels. Anything else is INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupHandler fans records out to the log file, the console and LastLog.
// The console and capture handlers never go below INFO.
func setupHandler(path, levelStr string, console io.Writer) (slog.Handler, *os.File, error) {
	level := ParseLevel(levelStr)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(file, &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug}),
		slog.NewTextHandler(LastLog, &slog.HandlerOptions{Level: slog.LevelInfo}),
	}
	if console != nil {
		handlers = append(handlers, slog.NewTextHandler(console, &slog.HandlerOptions{Level: max(level, slog.LevelInfo)}))
	}
	return &multiHandler{handlers: handlers}, file, nil
}

type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle implements slog.Handler.
// nolint:gocritic // r must be passed by value to implement slog.Handler
func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: out}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		out[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: out}
}

// rotatePaths renames existing log files to <path>.old so each run starts fresh.
func rotatePaths(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			old := p + ".old"
			_ = os.Remove(old)
			_ = os.Rename(p, old)
		}
	}
}

// SetEventLogPath sets the safety event log file. An empty path disables it.
func SetEventLogPath(path string) {
	eventMu.Lock()
	defer eventMu.Unlock()
	eventPath = path
}

// FormatEvent renders e as "[2006-01-02 15:04:05] [KIND] message".
func FormatEvent(e *Event) string {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	line := fmt.Sprintf("[%s] [%s] %s", ts.Format("2006-01-02 15:04:05"), e.Kind, e.Message)
	if e.ID != "" {
		line += " (" + e.ID + ")"
	}
	return line
}

// LogEvent appends a safety event to the event log and LastEvent.
func LogEvent(e *Event) {
	line := FormatEvent(e)
	_, _ = LastEvent.Write([]byte(line))

	eventMu.Lock()
	defer eventMu.Unlock()
	if eventPath == "" {
		return
	}

	if err := os.MkdirAll(filepath.Dir(eventPath), 0o755); err != nil {
		slog.Error("Logging: Failed to create event log directory", "error", err)
		return
	}
	f, err := os.OpenFile(eventPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Error("Logging: Failed to open event log", "error", err)
		return
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		slog.Error("Logging: Failed to write event log", "error", err)
	}
}
