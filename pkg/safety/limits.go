package safety

import "time"

// Limits are the operating envelope enforced by the monitor.
type Limits struct {
	MaxSpeedPercent      float64
	MaxRudderAngle       float64
	MaxDistanceFromStart float64 // meters
	BatteryVoltageMin    float64
	TemperatureMax       float64 // Celsius
	GPSTimeout           time.Duration
	CommandTimeout       time.Duration
}

// DefaultLimits returns the conservative envelope used until configuration says otherwise.
func DefaultLimits() Limits {
	return Limits{
		MaxSpeedPercent:      70,
		MaxRudderAngle:       45,
		MaxDistanceFromStart: 1000,
		BatteryVoltageMin:    11.0,
		TemperatureMax:       85,
		GPSTimeout:           30 * time.Second,
		CommandTimeout:       60 * time.Second,
	}
}

// LimitsUpdate changes only the non-nil fields.
type LimitsUpdate struct {
	MaxSpeedPercent      *float64
	MaxRudderAngle       *float64
	MaxDistanceFromStart *float64
	BatteryVoltageMin    *float64
	TemperatureMax       *float64
	GPSTimeout           *time.Duration
	CommandTimeout       *time.Duration
}

func (l Limits) apply(u LimitsUpdate) Limits {
	if u.MaxSpeedPercent != nil {
		l.MaxSpeedPercent = *u.MaxSpeedPercent
	}
	if u.MaxRudderAngle != nil {
		l.MaxRudderAngle = *u.MaxRudderAngle
	}
	if u.MaxDistanceFromStart != nil {
		l.MaxDistanceFromStart = *u.MaxDistanceFromStart
	}
	if u.BatteryVoltageMin != nil {
		l.BatteryVoltageMin = *u.BatteryVoltageMin
	}
	if u.TemperatureMax != nil {
		l.TemperatureMax = *u.TemperatureMax
	}
	if u.GPSTimeout != nil {
		l.GPSTimeout = *u.GPSTimeout
	}
	if u.CommandTimeout != nil {
		l.CommandTimeout = *u.CommandTimeout
	}
	return l
}

// SystemThresholds split host load into critical and warning tiers (percent).
type SystemThresholds struct {
	CPUCritical    float64
	MemoryCritical float64
	CPUWarning     float64
	MemoryWarning  float64
	DiskWarning    float64
}

// DefaultSystemThresholds returns the 90/90 critical and 70/80/95 warning tiers.
func DefaultSystemThresholds() SystemThresholds {
	return SystemThresholds{
		CPUCritical:    90,
		MemoryCritical: 90,
		CPUWarning:     70,
		MemoryWarning:  80,
		DiskWarning:    95,
	}
}

// Config holds the monitor timing, limits and thresholds.
type Config struct {
	CheckInterval time.Duration
	StopTimeout   time.Duration
	Limits        Limits
	System        SystemThresholds
}

// DefaultConfig audits every two seconds.
func DefaultConfig() Config {
	return Config{
		CheckInterval: 2 * time.Second,
		StopTimeout:   3 * time.Second,
		Limits:        DefaultLimits(),
		System:        DefaultSystemThresholds(),
	}
}
