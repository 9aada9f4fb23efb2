package navigation

import (
	"time"

	"boatpilot/pkg/geo"
)

// Mode is the active navigation behaviour.
type Mode string

const (
	ModeIdle         Mode = "idle"
	ModeWaypoint     Mode = "waypoint"
	ModeCourse       Mode = "course"
	ModeHoldPosition Mode = "hold_position"
)

// State describes the installed mode. Only the fields of the active mode are set;
// a new State is built for every mode entry.
type State struct {
	Mode          Mode
	Target        geo.Point     // waypoint or hold target
	TargetHeading float64       // course
	MaxSpeed      float64       // percent
	ArrivalRadius float64       // meters, waypoint
	MaxDrift      float64       // meters, hold position
	Duration      time.Duration // course; zero runs until stopped
	StartedAt     time.Time
}

// Config holds the controller timing and defaults.
type Config struct {
	UpdateInterval time.Duration
	StopTimeout    time.Duration
	ThrottleRamp   time.Duration
	DefaultDrift   float64
	MaxHoldSpeed   float64
	PID            PIDConfig
}

// DefaultConfig returns a 1 Hz controller.
func DefaultConfig() Config {
	return Config{
		UpdateInterval: time.Second,
		StopTimeout:    2 * time.Second,
		ThrottleRamp:   0,
		DefaultDrift:   5.0,
		MaxHoldSpeed:   30.0,
		PID:            DefaultPIDConfig(),
	}
}
