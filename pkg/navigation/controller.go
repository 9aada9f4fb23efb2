// Package navigation turns waypoint, course and hold-position intents into
// periodic throttle and rudder commands.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"boatpilot/pkg/geo"
	"boatpilot/pkg/logging"
	"boatpilot/pkg/vessel"
)

// Controller runs one navigation mode at a time on its own loop.
//
// Mode entry and StopCurrentNavigation are serialized by opMu and follow
// cancel, join, mutate, start. EmergencyStop never takes opMu so a stalled
// handshake cannot delay it.
type Controller struct {
	pos vessel.PositionSource
	hdg vessel.HeadingSource
	act vessel.Actuator
	cfg Config
	now func() time.Time

	opMu sync.Mutex

	mu          sync.Mutex
	state       State
	pid         *PID
	gen         uint64
	running     bool
	cancel      context.CancelFunc
	done        chan struct{}
	lastPos     *vessel.Position
	lastHeading *float64
	track       *geo.TrackBuffer
}

// NewController creates an idle controller. Zero config fields take their defaults.
func NewController(pos vessel.PositionSource, hdg vessel.HeadingSource, act vessel.Actuator, cfg Config) *Controller {
	def := DefaultConfig()
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = def.UpdateInterval
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = def.StopTimeout
	}
	if cfg.DefaultDrift <= 0 {
		cfg.DefaultDrift = def.DefaultDrift
	}
	if cfg.MaxHoldSpeed <= 0 {
		cfg.MaxHoldSpeed = def.MaxHoldSpeed
	}
	if cfg.PID == (PIDConfig{}) {
		cfg.PID = def.PID
	}

	return &Controller{
		pos:   pos,
		hdg:   hdg,
		act:   act,
		cfg:   cfg,
		now:   time.Now,
		state: State{Mode: ModeIdle},
		pid:   NewPID(cfg.PID),
		track: geo.NewTrackBuffer(5, 2.0),
	}
}

// NavigateToWaypoint steers toward (lat, lon) until within arrivalRadius meters.
func (c *Controller) NavigateToWaypoint(ctx context.Context, lat, lon, maxSpeed, arrivalRadius float64) error {
	if lat < -90 || lat > 90 || math.IsNaN(lat) {
		return ErrInvalidLatitude
	}
	if lon < -180 || lon > 180 || math.IsNaN(lon) {
		return ErrInvalidLongitude
	}
	if err := validateSpeed(maxSpeed); err != nil {
		return err
	}
	if arrivalRadius <= 0 || math.IsNaN(arrivalRadius) {
		return ErrInvalidRadius
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	if _, err := c.currentPosition(ctx); err != nil {
		return err
	}

	c.retire(ctx)
	c.start(ctx, State{
		Mode:          ModeWaypoint,
		Target:        geo.Point{Lat: lat, Lon: lon},
		MaxSpeed:      maxSpeed,
		ArrivalRadius: arrivalRadius,
		StartedAt:     c.now(),
	})
	slog.Info("Navigation: Waypoint set", "lat", lat, "lon", lon, "max_speed", maxSpeed, "arrival_radius", arrivalRadius)
	return nil
}

// SetCourse holds heading at speed percent. A zero duration runs until stopped.
func (c *Controller) SetCourse(ctx context.Context, heading, speed float64, duration time.Duration) error {
	if heading < 0 || heading >= 360 || math.IsNaN(heading) {
		return ErrInvalidHeading
	}
	if err := validateSpeed(speed); err != nil {
		return err
	}
	if duration < 0 {
		return ErrInvalidDuration
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.retire(ctx)
	c.start(ctx, State{
		Mode:          ModeCourse,
		TargetHeading: heading,
		MaxSpeed:      speed,
		Duration:      duration,
		StartedAt:     c.now(),
	})
	slog.Info("Navigation: Course set", "heading", heading, "speed", speed, "duration", duration)
	return nil
}

// HoldPosition captures the current fix and keeps the vessel within maxDrift meters of it.
// A zero maxDrift uses the configured default.
func (c *Controller) HoldPosition(ctx context.Context, maxDrift float64) error {
	if maxDrift < 0 || math.IsNaN(maxDrift) {
		return ErrInvalidRadius
	}
	if maxDrift == 0 {
		maxDrift = c.cfg.DefaultDrift
	}

	c.opMu.Lock()
	defer c.opMu.Unlock()

	pos, err := c.currentPosition(ctx)
	if err != nil {
		return err
	}

	c.retire(ctx)
	target := geo.Point{Lat: pos.Latitude, Lon: pos.Longitude}
	c.start(ctx, State{
		Mode:      ModeHoldPosition,
		Target:    target,
		MaxSpeed:  c.cfg.MaxHoldSpeed,
		MaxDrift:  maxDrift,
		StartedAt: c.now(),
	})
	slog.Info("Navigation: Holding position", "lat", target.Lat, "lon", target.Lon, "max_drift", maxDrift)
	return nil
}

// StopCurrentNavigation ends the active mode and zeroes the actuator. It is idempotent.
func (c *Controller) StopCurrentNavigation(ctx context.Context) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	wasActive := c.state.Mode != ModeIdle
	c.mu.Unlock()

	c.retire(ctx)
	if wasActive {
		slog.Info("Navigation: Stopped")
	}
}

// EmergencyStop cancels the loop without waiting for it and calls the actuator's
// emergency stop. The returned error is the actuator's.
func (c *Controller) EmergencyStop(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.cancel
	c.gen++
	c.running = false
	c.state = State{Mode: ModeIdle}
	c.pid.Reset()
	c.track.Reset()
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	slog.Warn("Navigation: EMERGENCY STOP")
	if err := c.act.EmergencyStop(ctx); err != nil {
		slog.Error("Navigation: Actuator emergency stop failed", "error", err)
		return fmt.Errorf("actuator emergency stop: %w", err)
	}
	return nil
}

// State returns a copy of the installed mode.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func validateSpeed(s float64) error {
	if s < 0 || s > 100 || math.IsNaN(s) {
		return ErrInvalidSpeed
	}
	return nil
}

func (c *Controller) currentPosition(ctx context.Context) (vessel.Position, error) {
	pos, err := c.pos.Position(ctx)
	if err != nil {
		slog.Warn("Navigation: No GPS position available", "error", err)
		return vessel.Position{}, fmt.Errorf("%w: %v", ErrNoPositionFix, err)
	}
	c.mu.Lock()
	c.lastPos = &pos
	c.mu.Unlock()
	return pos, nil
}

// retire stops the loop, zeroes the actuator and resets state. Caller holds opMu.
func (c *Controller) retire(ctx context.Context) {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.gen++
	wasRunning := c.running
	c.running = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		c.join(done)
	}

	if wasRunning {
		c.zeroActuator(ctx)
	}

	c.mu.Lock()
	c.state = State{Mode: ModeIdle}
	c.pid.Reset()
	c.track.Reset()
	c.mu.Unlock()
}

func (c *Controller) join(done chan struct{}) {
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(c.cfg.StopTimeout):
		slog.Warn("Navigation: Loop did not exit within timeout", "timeout", c.cfg.StopTimeout)
	}
}

func (c *Controller) zeroActuator(ctx context.Context) {
	if err := c.act.SetThrottle(ctx, 0, c.cfg.ThrottleRamp); err != nil {
		logActuatorError("throttle", err)
	}
	if err := c.act.SetRudderAngle(ctx, 0); err != nil {
		logActuatorError("rudder", err)
	}
}

func logActuatorError(what string, err error) {
	if errors.Is(err, vessel.ErrEmergencyLatched) {
		slog.Debug("Navigation: Actuator latched, command ignored", "command", what)
		return
	}
	slog.Error("Navigation: Actuator command failed", "command", what, "error", err)
}

// start installs st and launches its loop. Caller holds opMu after retire.
func (c *Controller) start(ctx context.Context, st State) {
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.state = st
	c.pid.Reset()
	c.running = true
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.run(loopCtx, gen, done)
}

func (c *Controller) run(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		c.safeTick(ctx, gen)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Controller) safeTick(ctx context.Context, gen uint64) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Navigation: Tick panicked", "panic", r)
		}
	}()
	if ctx.Err() != nil {
		return
	}
	c.tick(ctx, gen)
}

func (c *Controller) tick(ctx context.Context, gen uint64) {
	pos, err := c.pos.Position(ctx)
	if err != nil {
		slog.Warn("Navigation: No GPS position available", "error", err)
		return
	}
	here := geo.Point{Lat: pos.Latitude, Lon: pos.Longitude}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.lastPos = &pos
	c.track.Push(here)
	st := c.state
	c.mu.Unlock()

	switch st.Mode {
	case ModeWaypoint:
		dist := geo.Distance(here, st.Target)
		if dist <= st.ArrivalRadius {
			slog.Info("Navigation: Arrived at waypoint", "distance", dist, "arrival_radius", st.ArrivalRadius)
			c.finish(ctx, gen)
			return
		}
		bearing := geo.Bearing(here, st.Target)
		logging.TraceDefault("Navigation: Waypoint step", "distance", dist, "bearing", bearing)
		c.steer(ctx, gen, bearing, st.MaxSpeed)

	case ModeCourse:
		if st.Duration > 0 {
			if elapsed := c.now().Sub(st.StartedAt); elapsed >= st.Duration {
				slog.Info("Navigation: Course duration completed", "elapsed", elapsed)
				c.finish(ctx, gen)
				return
			}
		}
		c.steer(ctx, gen, st.TargetHeading, st.MaxSpeed)

	case ModeHoldPosition:
		drift := geo.Distance(here, st.Target)
		if drift <= st.MaxDrift {
			logging.TraceDefault("Navigation: Holding within tolerance", "drift", drift)
			if c.isCurrent(gen) {
				if err := c.act.SetThrottle(ctx, 0, c.cfg.ThrottleRamp); err != nil {
					logActuatorError("throttle", err)
				}
			}
			return
		}
		bearing := geo.Bearing(here, st.Target)
		speed := math.Min(st.MaxSpeed, drift*2)
		logging.TraceDefault("Navigation: Returning to hold position", "drift", drift, "bearing", bearing)
		c.steer(ctx, gen, bearing, speed)
	}
}

// steer runs the heading PID toward target and issues throttle then rudder.
func (c *Controller) steer(ctx context.Context, gen uint64, target, speed float64) {
	heading, err := c.hdg.Heading(ctx)
	if err != nil {
		slog.Warn("Navigation: No heading available", "error", err)
		return
	}

	headingErr := geo.NormalizeAngle(target - heading)
	dt := c.cfg.UpdateInterval.Seconds()

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.lastHeading = &heading
	rudder := c.pid.Update(headingErr, dt)
	c.mu.Unlock()

	logging.TraceDefault("Navigation: Steering", "target", target, "heading", heading, "error", headingErr, "rudder", rudder, "speed", speed)

	// an emergency stop may land between writes; each one re-checks the generation
	if !c.isCurrent(gen) {
		return
	}
	if err := c.act.SetThrottle(ctx, speed, c.cfg.ThrottleRamp); err != nil {
		logActuatorError("throttle", err)
	}
	if !c.isCurrent(gen) {
		return
	}
	if err := c.act.SetRudderAngle(ctx, rudder); err != nil {
		logActuatorError("rudder", err)
	}
}

func (c *Controller) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

// finish retires the mode from inside its own loop after arrival or expiry.
// The loop exits on return, so it is not joined here.
func (c *Controller) finish(ctx context.Context, gen uint64) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.running = false
	c.state = State{Mode: ModeIdle}
	c.pid.Reset()
	c.track.Reset()
	cancel := c.cancel
	c.mu.Unlock()

	c.zeroActuator(ctx)
	if cancel != nil {
		cancel()
	}
}
