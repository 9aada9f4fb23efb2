package navigation

import (
	"time"

	"boatpilot/pkg/geo"
	"boatpilot/pkg/vessel"
)

// Status is a point-in-time snapshot of the controller.
type Status struct {
	Mode             Mode
	Running          bool
	StartedAt        time.Time
	Position         *vessel.Position
	Heading          *float64
	CourseOverGround *float64

	Waypoint *WaypointStatus
	Course   *CourseStatus
	Hold     *HoldStatus
}

// WaypointStatus is the progress toward a waypoint.
type WaypointStatus struct {
	Target        geo.Point
	MaxSpeed      float64
	ArrivalRadius float64
	Distance      *float64 // nil until a position is known
	Bearing       *float64
}

// CourseStatus describes a fixed-heading run.
type CourseStatus struct {
	TargetHeading float64
	Speed         float64
	Duration      time.Duration
	Elapsed       time.Duration
}

// HoldStatus describes station keeping around the hold target.
type HoldStatus struct {
	Target    geo.Point
	Tolerance float64
	Drift     *float64
}

// Status returns the current snapshot. Progress figures are computed from the
// last position the controller observed.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.state
	s := Status{
		Mode:      st.Mode,
		Running:   c.running,
		StartedAt: st.StartedAt,
	}
	if c.lastPos != nil {
		p := *c.lastPos
		s.Position = &p
	}
	if c.lastHeading != nil {
		h := *c.lastHeading
		s.Heading = &h
	}
	if cog, ok := c.track.CourseOverGround(); ok {
		s.CourseOverGround = &cog
	}

	var here *geo.Point
	if s.Position != nil {
		here = &geo.Point{Lat: s.Position.Latitude, Lon: s.Position.Longitude}
	}

	switch st.Mode {
	case ModeWaypoint:
		ws := &WaypointStatus{
			Target:        st.Target,
			MaxSpeed:      st.MaxSpeed,
			ArrivalRadius: st.ArrivalRadius,
		}
		if here != nil {
			d := geo.Distance(*here, st.Target)
			b := geo.Bearing(*here, st.Target)
			ws.Distance, ws.Bearing = &d, &b
		}
		s.Waypoint = ws
	case ModeCourse:
		s.Course = &CourseStatus{
			TargetHeading: st.TargetHeading,
			Speed:         st.MaxSpeed,
			Duration:      st.Duration,
			Elapsed:       c.now().Sub(st.StartedAt),
		}
	case ModeHoldPosition:
		hs := &HoldStatus{Target: st.Target, Tolerance: st.MaxDrift}
		if here != nil {
			d := geo.Distance(*here, st.Target)
			hs.Drift = &d
		}
		s.Hold = hs
	}
	return s
}
