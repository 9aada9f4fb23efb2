package navigation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"boatpilot/pkg/geo"
	"boatpilot/pkg/vessel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePosition struct {
	mu    sync.Mutex
	pos   geo.Point
	err   error
	block chan struct{} // when set, Position waits on it
}

func (f *fakePosition) Position(ctx context.Context) (vessel.Position, error) {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return vessel.Position{}, f.err
	}
	return vessel.Position{Latitude: f.pos.Lat, Longitude: f.pos.Lon, Timestamp: time.Now(), FixQuality: 1, Satellites: 8}, nil
}

func (f *fakePosition) set(p geo.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = p
}

type fakeHeading struct {
	mu      sync.Mutex
	heading float64
	err     error
	panics  int
}

func (f *fakeHeading) Heading(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics > 0 {
		f.panics--
		panic("compass exploded")
	}
	return f.heading, f.err
}

type fakeActuator struct {
	mu        sync.Mutex
	throttles []float64
	rudders   []float64
	emergency int
	emergErr  error
}

func (f *fakeActuator) SetThrottle(ctx context.Context, percent float64, ramp time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.throttles = append(f.throttles, percent)
	return nil
}

func (f *fakeActuator) SetRudderAngle(ctx context.Context, deg float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rudders = append(f.rudders, deg)
	return nil
}

func (f *fakeActuator) StopAllMotors(ctx context.Context) error { return nil }

func (f *fakeActuator) EmergencyStop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emergency++
	return f.emergErr
}

func (f *fakeActuator) Status(ctx context.Context) (vessel.ActuatorStatus, error) {
	return vessel.ActuatorStatus{BatteryVoltage: 12.5}, nil
}

func (f *fakeActuator) throttleCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.throttles)
}

func (f *fakeActuator) lastThrottle() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.throttles) == 0 {
		return 0
	}
	return f.throttles[len(f.throttles)-1]
}

func (f *fakeActuator) lastRudder() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rudders) == 0 {
		return 0
	}
	return f.rudders[len(f.rudders)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func waitFor(t *testing.T, check func() bool, timeout time.Duration, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timeout waiting for: %s", msg)
}

func newTestController(interval time.Duration) (*Controller, *fakePosition, *fakeHeading, *fakeActuator) {
	pos := &fakePosition{}
	hdg := &fakeHeading{}
	act := &fakeActuator{}
	cfg := DefaultConfig()
	cfg.UpdateInterval = interval
	cfg.StopTimeout = 500 * time.Millisecond
	return NewController(pos, hdg, act, cfg), pos, hdg, act
}

func TestValidationLeavesModeUnchanged(t *testing.T) {
	ctx := context.Background()
	c, pos, _, _ := newTestController(time.Hour)
	defer c.StopCurrentNavigation(ctx)

	require.NoError(t, c.SetCourse(ctx, 45, 20, 0))
	before := c.State()

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"Waypoint Latitude High", func() error { return c.NavigateToWaypoint(ctx, 91, 0, 50, 10) }, ErrInvalidLatitude},
		{"Waypoint Latitude Low", func() error { return c.NavigateToWaypoint(ctx, -90.1, 0, 50, 10) }, ErrInvalidLatitude},
		{"Waypoint Longitude", func() error { return c.NavigateToWaypoint(ctx, 0, 180.5, 50, 10) }, ErrInvalidLongitude},
		{"Waypoint Speed", func() error { return c.NavigateToWaypoint(ctx, 0, 0, 101, 10) }, ErrInvalidSpeed},
		{"Waypoint Radius", func() error { return c.NavigateToWaypoint(ctx, 0, 0, 50, 0) }, ErrInvalidRadius},
		{"Course Heading 360", func() error { return c.SetCourse(ctx, 360, 50, time.Minute) }, ErrInvalidHeading},
		{"Course Heading Negative", func() error { return c.SetCourse(ctx, -1, 50, time.Minute) }, ErrInvalidHeading},
		{"Course Speed", func() error { return c.SetCourse(ctx, 90, -5, time.Minute) }, ErrInvalidSpeed},
		{"Course Duration", func() error { return c.SetCourse(ctx, 90, 50, -time.Second) }, ErrInvalidDuration},
		{"Hold Drift", func() error { return c.HoldPosition(ctx, -1) }, ErrInvalidRadius},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, KindValidation, KindOf(err))
			assert.Equal(t, before, c.State(), "mode must not change on validation failure")
		})
	}

	t.Run("No Fix", func(t *testing.T) {
		pos.mu.Lock()
		pos.err = vessel.ErrNoFix
		pos.mu.Unlock()
		defer func() {
			pos.mu.Lock()
			pos.err = nil
			pos.mu.Unlock()
		}()

		err := c.NavigateToWaypoint(ctx, 1, 1, 50, 10)
		assert.ErrorIs(t, err, ErrNoPositionFix)
		assert.Equal(t, KindNoFix, KindOf(err))

		err = c.HoldPosition(ctx, 5)
		assert.ErrorIs(t, err, ErrNoPositionFix)
		assert.Equal(t, before, c.State())
	})
}

func TestStopResetsPID(t *testing.T) {
	ctx := context.Background()
	c, _, hdg, act := newTestController(10 * time.Millisecond)
	hdg.heading = 0

	require.NoError(t, c.SetCourse(ctx, 90, 40, 0))
	waitFor(t, func() bool { return act.throttleCalls() >= 3 }, 2*time.Second, "course steering")

	c.StopCurrentNavigation(ctx)

	c.mu.Lock()
	integral, lastErr := c.pid.Integral(), c.pid.LastError()
	c.mu.Unlock()
	assert.Zero(t, integral)
	assert.Zero(t, lastErr)
	assert.Equal(t, ModeIdle, c.Status().Mode)
	assert.False(t, c.Status().Running)
	assert.Zero(t, act.lastThrottle())

	// idempotent
	c.StopCurrentNavigation(ctx)
	assert.Equal(t, ModeIdle, c.Status().Mode)
}

func TestModeReplacement(t *testing.T) {
	ctx := context.Background()
	c, pos, _, _ := newTestController(time.Hour)
	defer c.StopCurrentNavigation(ctx)
	pos.set(geo.Point{Lat: 10, Lon: 20})

	require.NoError(t, c.NavigateToWaypoint(ctx, 10.01, 20, 60, 15))
	st := c.State()
	assert.Equal(t, ModeWaypoint, st.Mode)
	assert.Equal(t, 15.0, st.ArrivalRadius)

	require.NoError(t, c.SetCourse(ctx, 180, 25, time.Minute))
	st = c.State()
	assert.Equal(t, ModeCourse, st.Mode)
	assert.Equal(t, 180.0, st.TargetHeading)
	assert.Equal(t, geo.Point{}, st.Target, "waypoint target must not survive")
	assert.Zero(t, st.ArrivalRadius)

	require.NoError(t, c.HoldPosition(ctx, 0))
	st = c.State()
	assert.Equal(t, ModeHoldPosition, st.Mode)
	assert.Equal(t, geo.Point{Lat: 10, Lon: 20}, st.Target)
	assert.Equal(t, 5.0, st.MaxDrift, "default drift")
	assert.Zero(t, st.TargetHeading)
	assert.Zero(t, st.Duration)
}

func TestConcurrentModeEntry(t *testing.T) {
	ctx := context.Background()
	c, _, _, _ := newTestController(5 * time.Millisecond)
	defer c.StopCurrentNavigation(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_ = c.SetCourse(ctx, float64(i), 30, 0)
			} else {
				_ = c.HoldPosition(ctx, 3)
			}
		}(i)
	}
	wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.True(t, c.running)
	assert.NotNil(t, c.done)
	assert.NotEqual(t, ModeIdle, c.state.Mode)
}

func TestWaypointArrival(t *testing.T) {
	ctx := context.Background()
	c, pos, hdg, act := newTestController(20 * time.Millisecond)
	defer c.StopCurrentNavigation(ctx)

	start := geo.Point{Lat: 47.6, Lon: -122.3}
	pos.set(start)
	hdg.heading = 0
	target := geo.DestinationPoint(start, 11, 0)

	require.NoError(t, c.NavigateToWaypoint(ctx, target.Lat, target.Lon, 50, 10))
	waitFor(t, func() bool { return act.throttleCalls() >= 1 }, 2*time.Second, "first steering tick")

	s := c.Status()
	require.Equal(t, ModeWaypoint, s.Mode)
	require.NotNil(t, s.Waypoint.Distance)
	assert.Greater(t, *s.Waypoint.Distance, 10.0)
	assert.InDelta(t, 0, geo.NormalizeAngle(*s.Waypoint.Bearing), 0.5)
	assert.Equal(t, 50.0, act.lastThrottle())
	assert.InDelta(t, 0, act.lastRudder(), 0.5)

	pos.set(geo.DestinationPoint(start, 2, 0))
	waitFor(t, func() bool {
		return c.Status().Mode == ModeIdle && act.lastThrottle() == 0
	}, 2*time.Second, "arrival")
	assert.False(t, c.Status().Running)
}

func TestCourseExpires(t *testing.T) {
	ctx := context.Background()
	c, _, hdg, act := newTestController(10 * time.Millisecond)
	defer c.StopCurrentNavigation(ctx)
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	c.now = clock.Now
	hdg.heading = 80

	require.NoError(t, c.SetCourse(ctx, 90, 30, 5*time.Second))
	waitFor(t, func() bool { return act.throttleCalls() >= 2 }, 2*time.Second, "course steering")

	s := c.Status()
	require.NotNil(t, s.Course)
	assert.Equal(t, 5*time.Second, s.Course.Duration)
	assert.Greater(t, act.lastRudder(), 0.0, "starboard turn toward 90")

	clock.Advance(3 * time.Second)
	assert.Equal(t, ModeCourse, c.Status().Mode)

	clock.Advance(3 * time.Second)
	waitFor(t, func() bool { return c.Status().Mode == ModeIdle }, 2*time.Second, "course expiry")
}

func TestHoldPositionSpeed(t *testing.T) {
	ctx := context.Background()
	c, pos, _, act := newTestController(10 * time.Millisecond)
	defer c.StopCurrentNavigation(ctx)

	home := geo.Point{Lat: 0, Lon: 0}
	pos.set(home)
	require.NoError(t, c.HoldPosition(ctx, 5))

	waitFor(t, func() bool { return act.throttleCalls() >= 1 }, 2*time.Second, "hold tick")
	assert.Zero(t, act.lastThrottle(), "inside tolerance")

	pos.set(geo.DestinationPoint(home, 10, 90))
	waitFor(t, func() bool { return act.lastThrottle() > 0 }, 2*time.Second, "return to hold")
	assert.InDelta(t, 20, act.lastThrottle(), 0.1)

	pos.set(geo.DestinationPoint(home, 100, 90))
	waitFor(t, func() bool { return act.lastThrottle() == 30 }, 2*time.Second, "capped hold speed")

	s := c.Status()
	require.NotNil(t, s.Hold)
	require.NotNil(t, s.Hold.Drift)
	assert.InDelta(t, 100, *s.Hold.Drift, 0.5)
}

func TestEmergencyStop(t *testing.T) {
	ctx := context.Background()
	c, _, _, act := newTestController(10 * time.Millisecond)

	require.NoError(t, c.SetCourse(ctx, 90, 40, 0))
	waitFor(t, func() bool { return act.throttleCalls() >= 1 }, 2*time.Second, "course steering")

	require.NoError(t, c.EmergencyStop(ctx))
	assert.Equal(t, ModeIdle, c.Status().Mode)
	assert.False(t, c.Status().Running)

	act.mu.Lock()
	assert.Equal(t, 1, act.emergency)
	act.mu.Unlock()

	act.mu.Lock()
	act.emergErr = errors.New("bus fault")
	act.mu.Unlock()
	err := c.EmergencyStop(ctx)
	assert.Error(t, err)
	assert.Equal(t, KindActuator, KindOf(err))
}

func TestEmergencyStopDoesNotWaitForStalledLoop(t *testing.T) {
	ctx := context.Background()
	c, pos, _, act := newTestController(10 * time.Millisecond)

	require.NoError(t, c.SetCourse(ctx, 90, 40, 0))
	waitFor(t, func() bool { return act.throttleCalls() >= 1 }, 2*time.Second, "course steering")

	release := make(chan struct{})
	pos.mu.Lock()
	pos.block = release
	pos.mu.Unlock()
	time.Sleep(30 * time.Millisecond) // let the loop block inside Position

	start := time.Now()
	require.NoError(t, c.EmergencyStop(ctx))
	assert.Less(t, time.Since(start), 200*time.Millisecond)

	pos.mu.Lock()
	pos.block = nil
	pos.mu.Unlock()
	close(release)
	c.StopCurrentNavigation(ctx)
}

// gatedActuator holds the first throttle command until released and records
// every command issued after its emergency stop.
type gatedActuator struct {
	fakeActuator
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	cmdMu     sync.Mutex
	stopped   bool
	afterStop []string
}

func (g *gatedActuator) record(cmd string) {
	g.cmdMu.Lock()
	defer g.cmdMu.Unlock()
	if g.stopped {
		g.afterStop = append(g.afterStop, cmd)
	}
}

func (g *gatedActuator) SetThrottle(ctx context.Context, percent float64, ramp time.Duration) error {
	g.record("throttle")
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.fakeActuator.SetThrottle(ctx, percent, ramp)
}

func (g *gatedActuator) SetRudderAngle(ctx context.Context, deg float64) error {
	g.record("rudder")
	return g.fakeActuator.SetRudderAngle(ctx, deg)
}

func (g *gatedActuator) EmergencyStop(ctx context.Context) error {
	g.cmdMu.Lock()
	g.stopped = true
	g.cmdMu.Unlock()
	return g.fakeActuator.EmergencyStop(ctx)
}

func (g *gatedActuator) commandsAfterStop() []string {
	g.cmdMu.Lock()
	defer g.cmdMu.Unlock()
	return append([]string(nil), g.afterStop...)
}

func TestNoCommandsAfterEmergencyStopMidTick(t *testing.T) {
	ctx := context.Background()
	act := &gatedActuator{entered: make(chan struct{}), release: make(chan struct{})}
	cfg := DefaultConfig()
	cfg.UpdateInterval = 10 * time.Millisecond
	cfg.StopTimeout = 500 * time.Millisecond
	c := NewController(&fakePosition{}, &fakeHeading{heading: 45}, act, cfg)

	require.NoError(t, c.SetCourse(ctx, 90, 40, 0))
	select {
	case <-act.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for the first throttle command")
	}

	require.NoError(t, c.EmergencyStop(ctx))
	close(act.release)

	time.Sleep(50 * time.Millisecond) // several update intervals
	assert.Empty(t, act.commandsAfterStop(), "no steering may follow an emergency stop")
	assert.Equal(t, ModeIdle, c.Status().Mode)
}

func TestEmergencyStopClearsCourseOverGround(t *testing.T) {
	ctx := context.Background()
	c, pos, _, _ := newTestController(50 * time.Millisecond)

	require.NoError(t, c.SetCourse(ctx, 0, 40, 0))
	waitFor(t, func() bool { return c.Status().Position != nil }, 2*time.Second, "first fix")
	pos.set(geo.DestinationPoint(geo.Point{}, 50, 0))
	waitFor(t, func() bool { return c.Status().CourseOverGround != nil }, 2*time.Second, "course over ground")

	require.NoError(t, c.EmergencyStop(ctx))
	assert.Nil(t, c.Status().CourseOverGround)
}

func TestTickSurvivesPanic(t *testing.T) {
	ctx := context.Background()
	c, _, hdg, act := newTestController(10 * time.Millisecond)
	defer c.StopCurrentNavigation(ctx)
	hdg.panics = 1

	require.NoError(t, c.SetCourse(ctx, 90, 40, 0))
	waitFor(t, func() bool { return act.throttleCalls() >= 2 }, 2*time.Second, "loop continues after panic")
	assert.Equal(t, ModeCourse, c.Status().Mode)
}

func TestNoHeadingSkipsSteering(t *testing.T) {
	ctx := context.Background()
	c, _, hdg, act := newTestController(10 * time.Millisecond)
	defer c.StopCurrentNavigation(ctx)
	hdg.err = vessel.ErrNoHeading

	require.NoError(t, c.SetCourse(ctx, 90, 40, 0))
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, act.throttleCalls())
	assert.Equal(t, ModeCourse, c.Status().Mode)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindOK, KindOf(nil))
	assert.Equal(t, KindValidation, KindOf(ErrInvalidHeading))
	assert.Equal(t, KindNoFix, KindOf(ErrNoPositionFix))
	assert.Equal(t, KindActuator, KindOf(errors.New("boom")))
}
