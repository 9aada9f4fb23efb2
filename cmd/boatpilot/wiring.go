package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"boatpilot/pkg/config"
	"boatpilot/pkg/geo"
	"boatpilot/pkg/logging"
	"boatpilot/pkg/navigation"
	"boatpilot/pkg/safety"
	"boatpilot/pkg/sysinfo"
	"boatpilot/pkg/vessel"
	"boatpilot/pkg/vessel/mockvessel"
)

// system is the wired autopilot.
type system struct {
	Boat       *mockvessel.Vessel
	Position   vessel.PositionSource
	Heading    vessel.HeadingSource
	Actuator   vessel.Actuator
	Sampler    *sysinfo.Sampler
	Controller *navigation.Controller
	Monitor    *safety.Monitor
}

func (s *system) Close() {
	if s.Boat != nil {
		s.Boat.Close()
	}
}

func build(ctx context.Context, cfg *config.Config) (*system, error) {
	if cfg.Vessel.Provider != "mock" {
		return nil, fmt.Errorf("vessel provider %q not supported", cfg.Vessel.Provider)
	}
	boat := mockvessel.New(mockConfig(&cfg.Vessel.Mock))
	sys := &system{Boat: boat, Position: boat, Heading: boat, Actuator: boat}

	if hf := cfg.HeadingFilter; hf.Enabled {
		sys.Heading = vessel.NewHeadingFilter(boat, filterConfig(&hf))
		slog.Info("Vessel: Heading filter enabled", "window", hf.WindowSize, "outlier_threshold", hf.OutlierThreshold)
	}

	sys.Controller = navigation.NewController(sys.Position, sys.Heading, sys.Actuator, navConfig(&cfg.Navigation))

	ss := &cfg.Safety
	sys.Sampler = sysinfo.NewSampler(ss.System.ProcRoot, ss.System.DiskPath)
	sys.Monitor = safety.NewMonitor(sys.Position, sys.Actuator, sys.Sampler, safetyConfig(ss))

	zones, err := loadZones(ss)
	if err != nil {
		sys.Close()
		return nil, err
	}
	for _, z := range zones {
		sys.Monitor.AddGeofenceZone(z)
	}
	if sp := ss.StartPosition; sp != nil {
		if err := sys.Monitor.SetStartPosition(ctx, &geo.Point{Lat: sp.Lat, Lon: sp.Lon}); err != nil {
			sys.Close()
			return nil, fmt.Errorf("safety.start_position: %w", err)
		}
	}

	sys.Monitor.AddEmergencyStopper(sys.Controller)
	sys.Monitor.AddSafetyCallback(logSafetyEvent)
	return sys, nil
}

// logSafetyEvent writes monitor notifications to the events log.
func logSafetyEvent(kind safety.ViolationKind, message string, data map[string]any) {
	e := &logging.Event{Kind: string(kind), Message: message}
	if id, ok := data["event_id"].(string); ok {
		e.ID = id
	}
	if ts, ok := data["timestamp"].(time.Time); ok {
		e.Timestamp = ts
	}
	logging.LogEvent(e)
}

// loadZones merges the GeoJSON zone file with the inline zones.
func loadZones(ss *config.SafetyConfig) ([]geo.Zone, error) {
	var zones []geo.Zone
	if ss.GeofenceFile != "" {
		fromFile, err := geo.LoadZones(ss.GeofenceFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load geofence file: %w", err)
		}
		zones = append(zones, fromFile...)
	}
	for i, zc := range ss.Zones {
		kind, err := geo.ParseZoneKind(zc.Kind)
		if err != nil {
			return nil, fmt.Errorf("safety.zones[%d]: %w", i, err)
		}
		z := geo.Zone{
			Name:         zc.Name,
			Center:       geo.Point{Lat: zc.Lat, Lon: zc.Lon},
			RadiusMeters: zc.Radius.Meters(),
			Kind:         kind,
		}
		if err := z.Validate(); err != nil {
			return nil, fmt.Errorf("safety.zones[%d]: %w", i, err)
		}
		zones = append(zones, z)
	}
	return zones, nil
}

func mockConfig(mc *config.MockVesselConfig) mockvessel.Config {
	out := mockvessel.DefaultConfig()
	out.StartLat = mc.StartLat
	out.StartLon = mc.StartLon
	out.StartHeading = mc.StartHeading
	if mc.MaxSpeed > 0 {
		out.MaxSpeed = mc.MaxSpeed
	}
	if mc.MaxRudderAngle > 0 {
		out.MaxRudderAngle = mc.MaxRudderAngle
	}
	if mc.TurnRate > 0 {
		out.TurnRate = mc.TurnRate
	}
	if mc.BatteryVoltage > 0 {
		out.BatteryVoltage = mc.BatteryVoltage
	}
	if mc.Satellites > 0 {
		out.Satellites = mc.Satellites
	}
	if mc.TickRate > 0 {
		out.TickRate = mc.TickRate.D()
	}
	return out
}

func filterConfig(hf *config.HeadingFilterConfig) vessel.FilterConfig {
	return vessel.FilterConfig{
		WindowSize:       hf.WindowSize,
		OutlierThreshold: hf.OutlierThreshold,
		Alpha:            hf.Alpha,
		MotionThreshold:  hf.MotionThreshold,
		MotionAlpha:      hf.MotionAlpha,
		MaxRejections:    hf.MaxRejections,
	}
}

func navConfig(nc *config.NavigationConfig) navigation.Config {
	return navigation.Config{
		UpdateInterval: nc.UpdateInterval.D(),
		StopTimeout:    nc.StopTimeout.D(),
		ThrottleRamp:   nc.ThrottleRamp.D(),
		DefaultDrift:   nc.DefaultHoldDrift.Meters(),
		MaxHoldSpeed:   nc.MaxHoldSpeed,
		PID: navigation.PIDConfig{
			Kp:        nc.PID.Kp,
			Ki:        nc.PID.Ki,
			Kd:        nc.PID.Kd,
			MaxOutput: nc.PID.MaxOutput,
		},
	}
}

func safetyConfig(ss *config.SafetyConfig) safety.Config {
	l := ss.Limits
	return safety.Config{
		CheckInterval: ss.CheckInterval.D(),
		StopTimeout:   ss.StopTimeout.D(),
		Limits: safety.Limits{
			MaxSpeedPercent:      l.MaxSpeedPercent,
			MaxRudderAngle:       l.MaxRudderAngle,
			MaxDistanceFromStart: l.MaxDistanceFromStart.Meters(),
			BatteryVoltageMin:    l.BatteryVoltageMin,
			TemperatureMax:       l.TemperatureMax,
			GPSTimeout:           l.GPSTimeout.D(),
			CommandTimeout:       l.CommandTimeout.D(),
		},
		System: safety.SystemThresholds{
			CPUCritical:    ss.System.CPUCritical,
			MemoryCritical: ss.System.MemoryCritical,
			CPUWarning:     ss.System.CPUWarning,
			MemoryWarning:  ss.System.MemoryWarning,
			DiskWarning:    ss.System.DiskWarning,
		},
	}
}
