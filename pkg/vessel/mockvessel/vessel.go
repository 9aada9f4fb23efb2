// Package mockvessel simulates a small electric boat for development and tests.
package mockvessel

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"boatpilot/pkg/geo"
	"boatpilot/pkg/vessel"
)

// Config holds the hull and sensor parameters of the simulation.
type Config struct {
	StartLat       float64
	StartLon       float64
	StartHeading   float64
	MaxSpeed       float64       // m/s at full throttle
	MaxRudderAngle float64       // degrees
	TurnRate       float64       // deg/s of yaw per degree of rudder while moving
	BatteryVoltage float64       // volts at start
	AmbientTemp    float64       // Celsius
	Satellites     int           // reported satellite count
	FixQuality     int           // reported NMEA fix quality
	TickRate       time.Duration // physics period; zero disables the background loop
}

// DefaultConfig returns parameters matching the reference hull.
func DefaultConfig() Config {
	return Config{
		StartLat:       47.6062,
		StartLon:       -122.3321,
		MaxSpeed:       5.0,
		MaxRudderAngle: 45.0,
		TurnRate:       2.0,
		BatteryVoltage: 12.6,
		AmbientTemp:    20.0,
		Satellites:     9,
		FixQuality:     1,
		TickRate:       100 * time.Millisecond,
	}
}

const (
	minBatteryVoltage = 10.0
	speedResponse     = 0.5  // first-order speed response per second
	dragPerSecond     = 0.35 // fraction of speed kept after one second coasting
	dischargeRate     = 0.001
	heatingRate       = 0.1
	coolingRate       = 0.05
)

// Vessel implements vessel.PositionSource, vessel.HeadingSource, vessel.Actuator
// and vessel.EmergencyResetter.
type Vessel struct {
	mu     sync.Mutex
	cfg    Config
	stopCh chan struct{}
	wg     sync.WaitGroup
	now    func() time.Time

	pos      geo.Point
	heading  float64
	speed    float64 // m/s
	throttle float64 // applied percent
	target   float64 // requested percent
	rampRate float64 // percent per second, zero means immediate
	rudder   float64
	battery  float64
	temp     float64

	emergency    bool
	gpsOK        bool
	compassOK    bool
	satellites   int
	fixQuality   int
	emergencyCnt int
}

// New creates a simulated vessel. When cfg.TickRate is positive a physics goroutine
// advances the simulation in real time until Close is called.
func New(cfg Config) *Vessel {
	v := &Vessel{
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		now:        time.Now,
		pos:        geo.Point{Lat: cfg.StartLat, Lon: cfg.StartLon},
		heading:    geo.NormalizeHeading(cfg.StartHeading),
		battery:    cfg.BatteryVoltage,
		temp:       cfg.AmbientTemp,
		gpsOK:      true,
		compassOK:  true,
		satellites: cfg.Satellites,
		fixQuality: cfg.FixQuality,
	}

	if cfg.TickRate > 0 {
		v.wg.Add(1)
		go v.physicsLoop()
	}
	return v
}

// Close stops the physics loop.
func (v *Vessel) Close() error {
	select {
	case <-v.stopCh:
	default:
		close(v.stopCh)
	}
	v.wg.Wait()
	return nil
}

func (v *Vessel) physicsLoop() {
	defer v.wg.Done()
	ticker := time.NewTicker(v.cfg.TickRate)
	defer ticker.Stop()

	for {
		select {
		case <-v.stopCh:
			return
		case <-ticker.C:
			v.Step(v.cfg.TickRate)
		}
	}
}

// Step advances the simulation by d.
func (v *Vessel) Step(d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()

	dt := d.Seconds()
	if dt <= 0 {
		return
	}

	v.applyRamp(dt)

	if !v.emergency && v.motorRunning() {
		targetSpeed := (v.throttle / 100.0) * v.cfg.MaxSpeed
		v.speed += (targetSpeed - v.speed) * speedResponse * dt
		if math.Abs(v.speed) > 0.1 {
			v.heading = geo.NormalizeHeading(v.heading + v.rudder*v.cfg.TurnRate*dt)
		}
	} else {
		v.speed *= math.Pow(dragPerSecond, dt)
		if math.Abs(v.speed) < 0.01 {
			v.speed = 0
		}
	}

	if v.speed != 0 {
		course := v.heading
		dist := v.speed * dt
		if dist < 0 {
			course = geo.NormalizeHeading(course + 180)
			dist = -dist
		}
		v.pos = geo.DestinationPoint(v.pos, dist, course)
	}

	load := math.Abs(v.throttle) / 100.0
	if v.motorRunning() && load > 0 {
		v.battery = math.Max(minBatteryVoltage, v.battery-dischargeRate*load*dt)
		v.temp += heatingRate * load * dt
	} else {
		v.temp = math.Max(v.cfg.AmbientTemp, v.temp-coolingRate*dt)
	}
}

func (v *Vessel) applyRamp(dt float64) {
	if v.throttle == v.target {
		return
	}
	if v.rampRate <= 0 {
		v.throttle = v.target
		return
	}
	step := v.rampRate * dt
	diff := v.target - v.throttle
	if math.Abs(diff) <= step {
		v.throttle = v.target
		return
	}
	v.throttle += math.Copysign(step, diff)
}

func (v *Vessel) motorRunning() bool {
	return v.throttle != 0 || v.target != 0
}

// Position implements vessel.PositionSource.
func (v *Vessel) Position(ctx context.Context) (vessel.Position, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.gpsOK {
		return vessel.Position{}, vessel.ErrNoFix
	}
	return vessel.Position{
		Latitude:   v.pos.Lat,
		Longitude:  v.pos.Lon,
		Timestamp:  v.now(),
		Accuracy:   2.5,
		FixQuality: v.fixQuality,
		Satellites: v.satellites,
	}, nil
}

// Heading implements vessel.HeadingSource.
func (v *Vessel) Heading(ctx context.Context) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.compassOK {
		return 0, vessel.ErrNoHeading
	}
	return v.heading, nil
}

// SetThrottle implements vessel.Actuator.
func (v *Vessel) SetThrottle(ctx context.Context, percent float64, ramp time.Duration) error {
	if percent < -100 || percent > 100 || math.IsNaN(percent) {
		return fmt.Errorf("throttle %.1f%% out of range [-100, 100]", percent)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.emergency {
		return vessel.ErrEmergencyLatched
	}
	v.target = percent
	v.rampRate = 0
	if ramp > 0 {
		v.rampRate = math.Abs(percent-v.throttle) / ramp.Seconds()
	}
	return nil
}

// SetRudderAngle implements vessel.Actuator. Angles beyond the hull maximum are clamped.
func (v *Vessel) SetRudderAngle(ctx context.Context, degrees float64) error {
	if math.IsNaN(degrees) {
		return fmt.Errorf("invalid rudder angle")
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.emergency {
		return vessel.ErrEmergencyLatched
	}
	limit := v.cfg.MaxRudderAngle
	if degrees > limit || degrees < -limit {
		slog.Debug("MockVessel: Rudder angle clamped", "requested", degrees, "limit", limit)
		degrees = math.Max(-limit, math.Min(limit, degrees))
	}
	v.rudder = degrees
	return nil
}

// StopAllMotors implements vessel.Actuator.
func (v *Vessel) StopAllMotors(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.target = 0
	v.rampRate = math.Abs(v.throttle) // one second ramp down
	v.rudder = 0
	return nil
}

// EmergencyStop implements vessel.Actuator. It is idempotent.
func (v *Vessel) EmergencyStop(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.emergency = true
	v.emergencyCnt++
	v.throttle = 0
	v.target = 0
	v.rampRate = 0
	v.rudder = 0
	return nil
}

// ResetEmergency implements vessel.EmergencyResetter.
func (v *Vessel) ResetEmergency(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.emergency = false
	return nil
}

// Status implements vessel.Actuator.
func (v *Vessel) Status(ctx context.Context) (vessel.ActuatorStatus, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return vessel.ActuatorStatus{
		ThrottlePercent: v.throttle,
		RudderAngle:     v.rudder,
		BatteryVoltage:  v.battery,
		Temperature:     v.temp,
		MotorRunning:    v.motorRunning(),
		EmergencyStop:   v.emergency,
	}, nil
}

// Speed returns the simulated speed through the water in m/s.
func (v *Vessel) Speed() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.speed
}

// EmergencyStops returns how many times EmergencyStop has been called.
func (v *Vessel) EmergencyStops() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.emergencyCnt
}

// SetGPSAvailable simulates loss or recovery of the GPS fix.
func (v *Vessel) SetGPSAvailable(ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.gpsOK = ok
}

// SetCompassAvailable simulates loss or recovery of the compass.
func (v *Vessel) SetCompassAvailable(ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.compassOK = ok
}

// SetFix overrides the reported fix quality and satellite count.
func (v *Vessel) SetFix(quality, satellites int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fixQuality = quality
	v.satellites = satellites
}

// SetBatteryVoltage overrides the simulated battery voltage.
func (v *Vessel) SetBatteryVoltage(volts float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.battery = volts
}

// SetTemperature overrides the simulated motor temperature.
func (v *Vessel) SetTemperature(celsius float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.temp = celsius
}

// Teleport moves the vessel without simulating the passage.
func (v *Vessel) Teleport(p geo.Point) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pos = p
}

// SetHeading overrides the vessel heading.
func (v *Vessel) SetHeading(h float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.heading = geo.NormalizeHeading(h)
}
