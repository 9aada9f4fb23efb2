// Package safety audits vessel health and owns the emergency-stop cascade.
package safety

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"boatpilot/pkg/geo"
	"boatpilot/pkg/sysinfo"
	"boatpilot/pkg/vessel"
)

// SystemSampler reports host load. *sysinfo.Sampler implements it.
type SystemSampler interface {
	Sample(ctx context.Context) (sysinfo.Usage, error)
}

// EmergencyStopper is anything that must halt when the monitor triggers,
// typically the navigation controller.
type EmergencyStopper interface {
	EmergencyStop(ctx context.Context) error
}

// Counters tally violations per category. They are diagnostic only.
type Counters struct {
	Speed       int
	Geofence    int
	Battery     int
	Temperature int
	GPSTimeout  int
	Distance    int
}

// Report is the monitor's status snapshot.
type Report struct {
	Monitoring      bool
	EmergencyStop   bool
	StartPosition   *geo.Point
	GeofenceZones   int
	Counters        Counters
	Limits          Limits
	LastGPSUpdate   *time.Time
	LastCommandTime *time.Time
}

// Monitor runs the safety audit loop.
type Monitor struct {
	pos vessel.PositionSource
	act vessel.Actuator
	sys SystemSampler
	cfg Config
	now func() time.Time

	lifeMu sync.Mutex // start/stop handshake
	cancel context.CancelFunc
	done   chan struct{}

	mu           sync.Mutex
	limits       Limits
	zones        []geo.Zone
	start        *geo.Point
	lastPosition *geo.Point
	lastGPS      time.Time
	lastCommand  time.Time
	emergency    bool
	monitoring   bool
	counters     Counters
	callbacks    []Callback
	stoppers     []EmergencyStopper
}

// NewMonitor creates a stopped monitor. sys may be nil to skip host checks.
func NewMonitor(pos vessel.PositionSource, act vessel.Actuator, sys SystemSampler, cfg Config) *Monitor {
	def := DefaultConfig()
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = def.StopTimeout
	}
	if cfg.Limits == (Limits{}) {
		cfg.Limits = def.Limits
	}
	if cfg.System == (SystemThresholds{}) {
		cfg.System = def.System
	}
	return &Monitor{
		pos:    pos,
		act:    act,
		sys:    sys,
		cfg:    cfg,
		now:    time.Now,
		limits: cfg.Limits,
	}
}

// SetSafetyLimits applies a partial update.
func (m *Monitor) SetSafetyLimits(u LimitsUpdate) {
	m.mu.Lock()
	m.limits = m.limits.apply(u)
	l := m.limits
	m.mu.Unlock()
	slog.Info("Safety: Limits updated",
		"max_speed", l.MaxSpeedPercent,
		"max_rudder", l.MaxRudderAngle,
		"max_distance", l.MaxDistanceFromStart,
		"battery_min", l.BatteryVoltageMin,
		"temp_max", l.TemperatureMax,
		"gps_timeout", l.GPSTimeout,
		"command_timeout", l.CommandTimeout)
}

// Limits returns the current envelope.
func (m *Monitor) Limits() Limits {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limits
}

// AddGeofenceZone adds z to the zones checked on every audit.
func (m *Monitor) AddGeofenceZone(z geo.Zone) {
	m.mu.Lock()
	m.zones = append(m.zones, z)
	m.mu.Unlock()
	slog.Info("Safety: Geofence zone added", "name", z.Name, "kind", z.Kind, "radius", z.RadiusMeters)
}

// RemoveGeofenceZone removes every zone called name and reports whether any existed.
func (m *Monitor) RemoveGeofenceZone(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.zones[:0]
	for _, z := range m.zones {
		if z.Name != name {
			kept = append(kept, z)
		}
	}
	removed := len(kept) != len(m.zones)
	m.zones = kept
	if removed {
		slog.Info("Safety: Geofence zone removed", "name", name)
	}
	return removed
}

// ClearGeofenceZones removes every zone.
func (m *Monitor) ClearGeofenceZones() {
	m.mu.Lock()
	m.zones = nil
	m.mu.Unlock()
	slog.Info("Safety: Geofence zones cleared")
}

// SetStartPosition records the reference for the distance-from-start limit.
// A nil p uses the current fix.
func (m *Monitor) SetStartPosition(ctx context.Context, p *geo.Point) error {
	if p == nil {
		pos, err := m.pos.Position(ctx)
		if err != nil {
			slog.Error("Safety: Cannot set start position, no GPS data", "error", err)
			return fmt.Errorf("start position: %w", err)
		}
		p = &geo.Point{Lat: pos.Latitude, Lon: pos.Longitude}
	} else if !p.Valid() {
		return fmt.Errorf("start position %v out of range", *p)
	}

	start := *p
	m.mu.Lock()
	m.start = &start
	m.mu.Unlock()
	slog.Info("Safety: Start position set", "lat", start.Lat, "lon", start.Lon)
	return nil
}

// UpdateCommandTime records that an operator command was just received.
func (m *Monitor) UpdateCommandTime() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCommand = m.now()
}

// AddEmergencyStopper registers s to be halted on every emergency stop.
func (m *Monitor) AddEmergencyStopper(s EmergencyStopper) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stoppers = append(m.stoppers, s)
}

// StartMonitoring launches the audit loop. It is idempotent.
func (m *Monitor) StartMonitoring(ctx context.Context) {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.cancel != nil {
		slog.Warn("Safety: Monitoring already active")
		return
	}

	m.mu.Lock()
	hasStart := m.start != nil
	m.mu.Unlock()
	if !hasStart {
		if err := m.SetStartPosition(ctx, nil); err != nil {
			slog.Warn("Safety: Starting monitoring without start position")
		}
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	m.cancel, m.done = cancel, done

	m.mu.Lock()
	m.monitoring = true
	m.mu.Unlock()

	go m.run(loopCtx, done)
	slog.Info("Safety: Monitoring started", "interval", m.cfg.CheckInterval)
}

// StopMonitoring stops the audit loop, waiting at most the configured timeout. It is idempotent.
func (m *Monitor) StopMonitoring() {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.cancel == nil {
		return
	}
	m.cancel()
	select {
	case <-m.done:
	case <-time.After(m.cfg.StopTimeout):
		slog.Warn("Safety: Monitoring loop did not exit within timeout", "timeout", m.cfg.StopTimeout)
	}
	m.cancel, m.done = nil, nil

	m.mu.Lock()
	m.monitoring = false
	m.mu.Unlock()
	slog.Info("Safety: Monitoring stopped")
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		m.audit(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) audit(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Safety: Audit tick panicked", "panic", r)
		}
	}()
	if ctx.Err() != nil {
		return
	}

	status := m.CheckImmediateSafety(ctx)
	for _, v := range status.Violations {
		m.handleViolation(ctx, v)
	}
}

// handleViolation escalates critical findings and notifies callbacks.
// Counters were already bumped when the violation was detected.
func (m *Monitor) handleViolation(ctx context.Context, v Violation) {
	slog.Warn("Safety: Violation", "kind", v.Kind, "message", v.Message)

	m.mu.Lock()
	active := m.emergency
	var position any
	if m.lastPosition != nil {
		position = *m.lastPosition
	}
	m.mu.Unlock()

	if v.Kind.Critical() && !active {
		_ = m.TriggerEmergencyStop(ctx, "Safety violation: "+string(v.Kind))
	}

	m.notify(v.Kind, v.Message, map[string]any{
		"type":     string(v.Kind),
		"position": position,
	})
}

// TriggerEmergencyStop latches the emergency state, stops the actuator and every
// registered stopper, then notifies callbacks. The returned error is the actuator's.
func (m *Monitor) TriggerEmergencyStop(ctx context.Context, reason string) error {
	slog.Error("Safety: EMERGENCY STOP TRIGGERED", "reason", reason)

	m.mu.Lock()
	m.emergency = true
	stoppers := make([]EmergencyStopper, len(m.stoppers))
	copy(stoppers, m.stoppers)
	m.mu.Unlock()

	err := m.act.EmergencyStop(ctx)
	if err != nil {
		slog.Error("Safety: Actuator emergency stop failed", "error", err)
	}

	for _, s := range stoppers {
		if serr := s.EmergencyStop(ctx); serr != nil {
			slog.Error("Safety: Emergency stopper failed", "error", serr)
		}
	}

	m.notify(KindEmergencyStop, reason, map[string]any{
		"motor_stop_success": err == nil,
	})
	return err
}

// ClearEmergencyStop is the operator action that releases the emergency latch,
// including the actuator's when it supports it.
func (m *Monitor) ClearEmergencyStop(ctx context.Context) error {
	if r, ok := m.act.(vessel.EmergencyResetter); ok {
		if err := r.ResetEmergency(ctx); err != nil {
			return fmt.Errorf("reset actuator: %w", err)
		}
	}
	m.mu.Lock()
	m.emergency = false
	m.mu.Unlock()
	slog.Warn("Safety: Emergency stop cleared by operator")
	return nil
}

// EmergencyActive reports whether the emergency latch is set.
func (m *Monitor) EmergencyActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emergency
}

// Status returns the monitor's report.
func (m *Monitor) Status() Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := Report{
		Monitoring:    m.monitoring,
		EmergencyStop: m.emergency,
		GeofenceZones: len(m.zones),
		Counters:      m.counters,
		Limits:        m.limits,
	}
	if m.start != nil {
		s := *m.start
		r.StartPosition = &s
	}
	if !m.lastGPS.IsZero() {
		t := m.lastGPS
		r.LastGPSUpdate = &t
	}
	if !m.lastCommand.IsZero() {
		t := m.lastCommand
		r.LastCommandTime = &t
	}
	return r
}
