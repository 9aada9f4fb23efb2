package safety

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"boatpilot/pkg/geo"
)

// CheckImmediateSafety runs every check once and returns the combined result.
// Apart from the violation counters it has no side effects.
func (m *Monitor) CheckImmediateSafety(ctx context.Context) (status Status) {
	status = Status{Safe: true, Timestamp: m.now()}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Safety: Check panicked", "panic", r)
			status.Violations = append(status.Violations, Violation{
				Kind:    KindSafetyCheckError,
				Message: fmt.Sprintf("Safety check failed: %v", r),
			})
			status.Safe = false
		}
	}()

	m.mu.Lock()
	limits := m.limits
	m.mu.Unlock()

	gps, here := m.checkGPS(ctx, limits)
	status.Violations = append(status.Violations, gps...)
	status.Violations = append(status.Violations, m.checkActuator(ctx, limits)...)

	critical, warnings := m.checkSystem(ctx)
	status.Violations = append(status.Violations, critical...)
	status.Warnings = append(status.Warnings, warnings...)

	if len(gps) == 0 && here != nil {
		status.Violations = append(status.Violations, m.checkGeofence(*here, limits)...)
	}

	if w, ok := m.checkCommandTimeout(limits); ok {
		status.Warnings = append(status.Warnings, w)
	}

	status.Safe = len(status.Violations) == 0
	return status
}

// checkGPS returns violations and, when a fix was read, the current position.
func (m *Monitor) checkGPS(ctx context.Context, limits Limits) ([]Violation, *geo.Point) {
	now := m.now()
	pos, err := m.pos.Position(ctx)
	if err != nil {
		m.mu.Lock()
		last := m.lastGPS
		stale := !last.IsZero() && now.Sub(last) > limits.GPSTimeout
		if stale {
			m.counters.GPSTimeout++
		}
		m.mu.Unlock()

		if stale {
			return []Violation{{KindGPSUnavailable, fmt.Sprintf("GPS timeout: %.1fs since last update", now.Sub(last).Seconds())}}, nil
		}
		return []Violation{{KindGPSUnavailable, "No GPS data available"}}, nil
	}

	here := geo.Point{Lat: pos.Latitude, Lon: pos.Longitude}
	m.mu.Lock()
	m.lastGPS = now
	m.lastPosition = &here
	if !pos.Timestamp.IsZero() && now.Sub(pos.Timestamp) > limits.GPSTimeout {
		m.counters.GPSTimeout++
		m.mu.Unlock()
		return []Violation{{KindGPSUnavailable, fmt.Sprintf("GPS timeout: fix is %.1fs old", now.Sub(pos.Timestamp).Seconds())}}, &here
	}
	m.mu.Unlock()

	if pos.FixQuality < 1 {
		return []Violation{{KindGPSUnavailable, fmt.Sprintf("Poor GPS fix quality: %d", pos.FixQuality)}}, &here
	}
	if pos.Satellites < 4 {
		return []Violation{{KindGPSUnavailable, fmt.Sprintf("Insufficient satellites: %d", pos.Satellites)}}, &here
	}
	return nil, &here
}

func (m *Monitor) checkActuator(ctx context.Context, limits Limits) []Violation {
	st, err := m.act.Status(ctx)
	if err != nil {
		return []Violation{{KindMotorIssue, fmt.Sprintf("Motor status unavailable: %v", err)}}
	}

	var out []Violation
	m.mu.Lock()
	defer m.mu.Unlock()

	if st.BatteryVoltage > 0 && st.BatteryVoltage < limits.BatteryVoltageMin {
		m.counters.Battery++
		out = append(out, Violation{KindMotorIssue, fmt.Sprintf("Low battery voltage: %.1fV", st.BatteryVoltage)})
	}
	if st.Temperature > limits.TemperatureMax {
		m.counters.Temperature++
		out = append(out, Violation{KindMotorIssue, fmt.Sprintf("High temperature: %.1f°C", st.Temperature)})
	}
	if math.Abs(st.ThrottlePercent) > limits.MaxSpeedPercent {
		m.counters.Speed++
		out = append(out, Violation{KindMotorIssue, fmt.Sprintf("Speed limit exceeded: %.0f%%", st.ThrottlePercent)})
	}
	if math.Abs(st.RudderAngle) > limits.MaxRudderAngle {
		out = append(out, Violation{KindMotorIssue, fmt.Sprintf("Rudder angle limit exceeded: %.1f°", st.RudderAngle)})
	}
	return out
}

// checkSystem splits host load into critical violations and warnings.
func (m *Monitor) checkSystem(ctx context.Context) (critical, warnings []Violation) {
	if m.sys == nil {
		return nil, nil
	}
	u, err := m.sys.Sample(ctx)
	if err != nil {
		return nil, []Violation{{KindSystemWarning, fmt.Sprintf("System check error: %v", err)}}
	}

	th := m.cfg.System
	if u.CPUPercent > th.CPUCritical {
		critical = append(critical, Violation{KindSystemCritical, fmt.Sprintf("High CPU usage: %.1f%%", u.CPUPercent)})
	}
	if u.MemoryPercent > th.MemoryCritical {
		critical = append(critical, Violation{KindSystemCritical, fmt.Sprintf("High memory usage: %.1f%%", u.MemoryPercent)})
	}
	if u.DiskPercent > th.DiskWarning {
		warnings = append(warnings, Violation{KindSystemWarning, fmt.Sprintf("Low disk space: %.1f%% used", u.DiskPercent)})
	}
	if u.CPUPercent > th.CPUWarning && u.CPUPercent <= th.CPUCritical {
		warnings = append(warnings, Violation{KindSystemWarning, fmt.Sprintf("Elevated CPU usage: %.1f%%", u.CPUPercent)})
	}
	if u.MemoryPercent > th.MemoryWarning && u.MemoryPercent <= th.MemoryCritical {
		warnings = append(warnings, Violation{KindSystemWarning, fmt.Sprintf("Elevated memory usage: %.1f%%", u.MemoryPercent)})
	}
	return critical, warnings
}

// checkGeofence evaluates every zone and the distance from start. A point exactly
// on a boundary is compliant.
func (m *Monitor) checkGeofence(here geo.Point, limits Limits) []Violation {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Violation
	for _, z := range m.zones {
		ok, d := z.Compliant(here)
		if ok {
			continue
		}
		m.counters.Geofence++
		if z.Kind == geo.ZoneAllowed {
			out = append(out, Violation{KindGeofenceViolation, fmt.Sprintf("Outside allowed zone %q: %.1fm from center", z.Name, d)})
		} else {
			out = append(out, Violation{KindGeofenceViolation, fmt.Sprintf("Inside forbidden zone %q: %.1fm from center", z.Name, d)})
		}
	}

	if m.start != nil {
		if d := geo.Distance(here, *m.start); d > limits.MaxDistanceFromStart {
			m.counters.Distance++
			out = append(out, Violation{KindGeofenceViolation, fmt.Sprintf("Too far from start: %.1fm", d)})
		}
	}
	return out
}

func (m *Monitor) checkCommandTimeout(limits Limits) (Violation, bool) {
	m.mu.Lock()
	last := m.lastCommand
	m.mu.Unlock()
	if last.IsZero() || limits.CommandTimeout <= 0 {
		return Violation{}, false
	}
	if idle := m.now().Sub(last); idle > limits.CommandTimeout {
		return Violation{KindCommandTimeout, fmt.Sprintf("No command for %.0fs", idle.Seconds())}, true
	}
	return Violation{}, false
}
