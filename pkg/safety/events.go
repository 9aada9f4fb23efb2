package safety

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ViolationKind names a class of safety finding.
type ViolationKind string

const (
	KindGPSUnavailable    ViolationKind = "GPS_UNAVAILABLE"
	KindMotorIssue        ViolationKind = "MOTOR_ISSUE"
	KindSystemCritical    ViolationKind = "SYSTEM_CRITICAL"
	KindSystemWarning     ViolationKind = "SYSTEM_WARNING"
	KindGeofenceViolation ViolationKind = "GEOFENCE_VIOLATION"
	KindCommandTimeout    ViolationKind = "COMMAND_TIMEOUT"
	KindSafetyCheckError  ViolationKind = "SAFETY_CHECK_ERROR"
	KindEmergencyStop     ViolationKind = "EMERGENCY_STOP"
)

// Critical reports whether a violation of this kind forces an emergency stop.
func (k ViolationKind) Critical() bool {
	switch k {
	case KindGPSUnavailable, KindMotorIssue, KindSystemCritical, KindGeofenceViolation:
		return true
	}
	return false
}

// Violation is one finding of a safety check.
type Violation struct {
	Kind    ViolationKind
	Message string
}

// Status is the result of one synchronous safety check.
type Status struct {
	Safe       bool
	Violations []Violation
	Warnings   []Violation
	Timestamp  time.Time
}

// Callback receives every handled violation and every emergency stop.
// data always carries "event_id" and "timestamp".
type Callback func(kind ViolationKind, message string, data map[string]any)

// AddSafetyCallback registers fn. Callbacks run synchronously on the caller's goroutine.
func (m *Monitor) AddSafetyCallback(fn Callback) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

func (m *Monitor) notify(kind ViolationKind, message string, data map[string]any) {
	if data == nil {
		data = make(map[string]any)
	}
	data["event_id"] = uuid.NewString()
	data["timestamp"] = m.now()

	m.mu.Lock()
	callbacks := make([]Callback, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	for _, cb := range callbacks {
		m.deliver(cb, kind, message, data)
	}
}

func (m *Monitor) deliver(cb Callback, kind ViolationKind, message string, data map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Safety: Callback panicked", "kind", kind, "panic", r)
		}
	}()
	cb(kind, message, data)
}
