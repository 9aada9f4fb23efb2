// Package vessel defines the sensor and actuator contracts the autopilot consumes.
package vessel

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoFix is returned when the receiver has no usable position.
	ErrNoFix = errors.New("no position fix available")
	// ErrNoHeading is returned when the compass has no usable reading.
	ErrNoHeading = errors.New("no heading available")
	// ErrEmergencyLatched is returned by actuators that refuse motion after an emergency stop.
	ErrEmergencyLatched = errors.New("actuator emergency stop latched")
)

// Position is a read-only GPS snapshot.
type Position struct {
	Latitude   float64   // Degrees
	Longitude  float64   // Degrees
	Timestamp  time.Time // Time of the fix
	Accuracy   float64   // Meters, zero when the receiver does not report it
	FixQuality int       // NMEA GGA quality, 0 = invalid
	Satellites int
}

// PositionSource supplies the current fix. Implementations must be cheap enough to
// call at loop frequency and return ErrNoFix when no fix is available.
type PositionSource interface {
	Position(ctx context.Context) (Position, error)
}

// HeadingSource supplies the vessel's compass heading in degrees [0, 360).
// Implementations return ErrNoHeading when no reading is available.
type HeadingSource interface {
	Heading(ctx context.Context) (float64, error)
}

// ActuatorStatus is a snapshot of propulsion and steering.
type ActuatorStatus struct {
	ThrottlePercent float64
	RudderAngle     float64
	BatteryVoltage  float64
	Temperature     float64 // Celsius
	MotorRunning    bool
	EmergencyStop   bool
}

// Actuator drives throttle and rudder.
type Actuator interface {
	// SetThrottle sets propulsion in percent [-100, 100], ramping over ramp.
	SetThrottle(ctx context.Context, percent float64, ramp time.Duration) error
	// SetRudderAngle sets the rudder in degrees within the actuator's configured maximum.
	SetRudderAngle(ctx context.Context, degrees float64) error
	// StopAllMotors brings throttle to zero and centers the rudder through the normal ramp.
	StopAllMotors(ctx context.Context) error
	// EmergencyStop halts immediately, bypassing ramping. It must be idempotent and
	// safe to call from several goroutines at once. Afterwards SetThrottle and
	// SetRudderAngle must fail with ErrEmergencyLatched until the latch is released
	// through EmergencyResetter.
	EmergencyStop(ctx context.Context) error
	// Status returns the current actuator snapshot.
	Status(ctx context.Context) (ActuatorStatus, error)
}

// EmergencyResetter releases the emergency latch of an Actuator.
type EmergencyResetter interface {
	ResetEmergency(ctx context.Context) error
}
