package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Log           LogConfig           `yaml:"log"`
	Navigation    NavigationConfig    `yaml:"navigation"`
	Safety        SafetyConfig        `yaml:"safety"`
	HeadingFilter HeadingFilterConfig `yaml:"heading_filter"`
	Vessel        VesselConfig        `yaml:"vessel"`
}

// LogConfig holds the log destinations.
type LogConfig struct {
	Server LogSettings `yaml:"server"`
	Events LogSettings `yaml:"events"`
	Trace  bool        `yaml:"trace"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// NavigationConfig holds the controller loop timing and heading PID gains.
type NavigationConfig struct {
	UpdateInterval       Duration  `yaml:"update_interval"`
	StopTimeout          Duration  `yaml:"stop_timeout"`
	ThrottleRamp         Duration  `yaml:"throttle_ramp"`
	DefaultMaxSpeed      float64   `yaml:"default_max_speed"`
	DefaultArrivalRadius Distance  `yaml:"default_arrival_radius"`
	DefaultHoldDrift     Distance  `yaml:"default_hold_drift"`
	DefaultCourseTime    Duration  `yaml:"default_course_duration"`
	MaxHoldSpeed         float64   `yaml:"max_hold_speed"`
	PID                  PIDConfig `yaml:"pid"`
}

// PIDConfig holds heading controller gains.
type PIDConfig struct {
	Kp        float64 `yaml:"kp"`
	Ki        float64 `yaml:"ki"`
	Kd        float64 `yaml:"kd"`
	MaxOutput float64 `yaml:"max_output"`
}

// SafetyConfig holds the audit loop, limits and geofence settings.
type SafetyConfig struct {
	CheckInterval Duration        `yaml:"check_interval"`
	StopTimeout   Duration        `yaml:"stop_timeout"`
	Limits        LimitsConfig    `yaml:"limits"`
	System        SystemConfig    `yaml:"system"`
	GeofenceFile  string          `yaml:"geofence_file"`
	Zones         []ZoneConfig    `yaml:"zones"`
	StartPosition *PositionConfig `yaml:"start_position,omitempty"`
}

// LimitsConfig mirrors the operating envelope.
type LimitsConfig struct {
	MaxSpeedPercent      float64  `yaml:"max_speed_percent"`
	MaxRudderAngle       float64  `yaml:"max_rudder_angle"`
	MaxDistanceFromStart Distance `yaml:"max_distance_from_start"`
	BatteryVoltageMin    float64  `yaml:"battery_voltage_min"`
	TemperatureMax       float64  `yaml:"temperature_max"`
	GPSTimeout           Duration `yaml:"gps_timeout"`
	CommandTimeout       Duration `yaml:"command_timeout"`
}

// SystemConfig holds host load thresholds in percent.
type SystemConfig struct {
	CPUCritical    float64 `yaml:"cpu_critical"`
	MemoryCritical float64 `yaml:"memory_critical"`
	CPUWarning     float64 `yaml:"cpu_warning"`
	MemoryWarning  float64 `yaml:"memory_warning"`
	DiskWarning    float64 `yaml:"disk_warning"`
	ProcRoot       string  `yaml:"proc_root"`
	DiskPath       string  `yaml:"disk_path"`
}

// ZoneConfig is an inline geofence zone.
type ZoneConfig struct {
	Name   string   `yaml:"name"`
	Lat    float64  `yaml:"lat"`
	Lon    float64  `yaml:"lon"`
	Radius Distance `yaml:"radius"`
	Kind   string   `yaml:"kind"`
}

// PositionConfig is a fixed coordinate.
type PositionConfig struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// HeadingFilterConfig holds compass smoothing parameters.
type HeadingFilterConfig struct {
	Enabled          bool    `yaml:"enabled"`
	WindowSize       int     `yaml:"window_size"`
	OutlierThreshold float64 `yaml:"outlier_threshold"`
	Alpha            float64 `yaml:"alpha"`
	MotionThreshold  float64 `yaml:"motion_threshold"`
	MotionAlpha      float64 `yaml:"motion_alpha"`
	MaxRejections    int     `yaml:"max_rejections"`
}

// VesselConfig selects the hardware provider.
type VesselConfig struct {
	Provider string           `yaml:"provider"` // "mock"
	Mock     MockVesselConfig `yaml:"mock"`
}

// MockVesselConfig holds settings for the simulated boat.
type MockVesselConfig struct {
	StartLat       float64  `yaml:"start_lat"`
	StartLon       float64  `yaml:"start_lon"`
	StartHeading   float64  `yaml:"start_heading"`
	MaxSpeed       float64  `yaml:"max_speed"` // m/s
	MaxRudderAngle float64  `yaml:"max_rudder_angle"`
	TurnRate       float64  `yaml:"turn_rate"`
	BatteryVoltage float64  `yaml:"battery_voltage"`
	Satellites     int      `yaml:"satellites"`
	TickRate       Duration `yaml:"tick_rate"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Server: LogSettings{Path: "./logs/boatpilot.log", Level: "INFO"},
			Events: LogSettings{Path: "./logs/safety_events.log", Level: "INFO"},
		},
		Navigation: NavigationConfig{
			UpdateInterval:       Duration(time.Second),
			StopTimeout:          Duration(2 * time.Second),
			ThrottleRamp:         Duration(500 * time.Millisecond),
			DefaultMaxSpeed:      50,
			DefaultArrivalRadius: Distance(10),
			DefaultHoldDrift:     Distance(5),
			DefaultCourseTime:    Duration(60 * time.Second),
			MaxHoldSpeed:         30,
			PID:                  PIDConfig{Kp: 1.0, Ki: 0.1, Kd: 0.5, MaxOutput: 45},
		},
		Safety: SafetyConfig{
			CheckInterval: Duration(2 * time.Second),
			StopTimeout:   Duration(3 * time.Second),
			Limits: LimitsConfig{
				MaxSpeedPercent:      70,
				MaxRudderAngle:       45,
				MaxDistanceFromStart: Distance(1000),
				BatteryVoltageMin:    11.0,
				TemperatureMax:       85,
				GPSTimeout:           Duration(30 * time.Second),
				CommandTimeout:       Duration(60 * time.Second),
			},
			System: SystemConfig{
				CPUCritical:    90,
				MemoryCritical: 90,
				CPUWarning:     70,
				MemoryWarning:  80,
				DiskWarning:    95,
				ProcRoot:       "/proc",
				DiskPath:       "/",
			},
		},
		HeadingFilter: HeadingFilterConfig{
			Enabled:          true,
			WindowSize:       10,
			OutlierThreshold: 20,
			Alpha:            0.3,
			MotionThreshold:  10,
			MotionAlpha:      0.8,
			MaxRejections:    3,
		},
		Vessel: VesselConfig{
			Provider: "mock",
			Mock: MockVesselConfig{
				StartLat:       47.6062,
				StartLon:       -122.3321,
				MaxSpeed:       5.0,
				MaxRudderAngle: 45,
				TurnRate:       2.0,
				BatteryVoltage: 12.6,
				Satellites:     9,
				TickRate:       Duration(100 * time.Millisecond),
			},
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// Environment overrides are applied after the file and are never written back.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to save config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides safety limits and the log level from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	floats := []struct {
		key string
		dst *float64
	}{
		{"MAX_SPEED_PERCENT", &c.Safety.Limits.MaxSpeedPercent},
		{"MAX_RUDDER_ANGLE", &c.Safety.Limits.MaxRudderAngle},
		{"MAX_DISTANCE_FROM_START", (*float64)(&c.Safety.Limits.MaxDistanceFromStart)},
		{"BATTERY_VOLTAGE_MIN", &c.Safety.Limits.BatteryVoltageMin},
		{"TEMPERATURE_MAX", &c.Safety.Limits.TemperatureMax},
	}
	for _, f := range floats {
		v, ok := lookup(f.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", f.key, v, err)
		}
		*f.dst = n
	}

	seconds := []struct {
		key string
		dst *Duration
	}{
		{"GPS_TIMEOUT_SECONDS", &c.Safety.Limits.GPSTimeout},
		{"COMMAND_TIMEOUT_SECONDS", &c.Safety.Limits.CommandTimeout},
	}
	for _, s := range seconds {
		v, ok := lookup(s.key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", s.key, v, err)
		}
		*s.dst = Duration(n * float64(time.Second))
	}

	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Server.Level = strings.ToUpper(v)
	}
	return nil
}

// Validate rejects settings the control loops cannot run with.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, d Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	positive("navigation.update_interval", c.Navigation.UpdateInterval)
	positive("navigation.stop_timeout", c.Navigation.StopTimeout)
	positive("safety.check_interval", c.Safety.CheckInterval)
	positive("safety.stop_timeout", c.Safety.StopTimeout)
	positive("safety.limits.gps_timeout", c.Safety.Limits.GPSTimeout)

	l := c.Safety.Limits
	if l.MaxSpeedPercent <= 0 || l.MaxSpeedPercent > 100 {
		errs = append(errs, fmt.Errorf("safety.limits.max_speed_percent must be within (0, 100], got %v", l.MaxSpeedPercent))
	}
	if l.MaxRudderAngle <= 0 || l.MaxRudderAngle > 90 {
		errs = append(errs, fmt.Errorf("safety.limits.max_rudder_angle must be within (0, 90], got %v", l.MaxRudderAngle))
	}
	if l.MaxDistanceFromStart <= 0 {
		errs = append(errs, fmt.Errorf("safety.limits.max_distance_from_start must be positive"))
	}
	if c.Navigation.DefaultMaxSpeed < 0 || c.Navigation.DefaultMaxSpeed > 100 {
		errs = append(errs, fmt.Errorf("navigation.default_max_speed must be within [0, 100]"))
	}
	if c.Navigation.PID.MaxOutput <= 0 {
		errs = append(errs, fmt.Errorf("navigation.pid.max_output must be positive"))
	}
	for i, z := range c.Safety.Zones {
		if z.Radius <= 0 {
			errs = append(errs, fmt.Errorf("safety.zones[%d] %q: radius must be positive", i, z.Name))
		}
	}
	if c.Vessel.Provider != "mock" {
		errs = append(errs, fmt.Errorf("vessel.provider %q not supported", c.Vessel.Provider))
	}
	return errors.Join(errs...)
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Boatpilot Configuration
# ----------------------
# Supported Units:
#   Duration: ms, s, m, h, d (day), w (week); bare numbers are seconds
#   Distance: m (meters), km, nm (nautical miles), ft; bare numbers are meters
# Environment overrides: MAX_SPEED_PERCENT, MAX_RUDDER_ANGLE, MAX_DISTANCE_FROM_START,
#   BATTERY_VOLTAGE_MIN, TEMPERATURE_MAX, GPS_TIMEOUT_SECONDS, COMMAND_TIMEOUT_SECONDS, LOG_LEVEL

`)
	data = append(header, data...)

	reProvider := regexp.MustCompile(`(?m)^(\s+)provider:`)
	data = reProvider.ReplaceAll(data, []byte("${1}# Options: mock\n${1}provider:"))

	reFile := regexp.MustCompile(`(?m)^(\s+)geofence_file:`)
	data = reFile.ReplaceAll(data, []byte("${1}# GeoJSON FeatureCollection of Point features with radius, kind (allowed|forbidden) and name\n${1}geofence_file:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return Save(path, DefaultConfig())
}
