package logging

import (
	"log/slog"
	"sync/atomic"
)

var traceEnabled atomic.Bool

// EnableTrace switches per-tick control loop logging on or off.
func EnableTrace(on bool) { traceEnabled.Store(on) }

// TraceEnabled reports whether trace logging is on.
func TraceEnabled() bool { return traceEnabled.Load() }

// Trace logs at DEBUG level through logger, but only while tracing is enabled.
func Trace(logger *slog.Logger, msg string, args ...any) {
	if traceEnabled.Load() {
		logger.Debug(msg, args...)
	}
}

// TraceDefault is Trace on the default logger.
func TraceDefault(msg string, args ...any) {
	if traceEnabled.Load() {
		slog.Debug(msg, args...)
	}
}
