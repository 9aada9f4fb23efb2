package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"boatpilot/pkg/config"
	"boatpilot/pkg/navigation"
)

// mission is the navigation command requested on the command line.
type mission struct {
	Mode     navigation.Mode
	Lat, Lon float64
	Heading  float64
	Speed    float64
	Radius   float64
	Duration time.Duration
	Drift    float64
}

func (m *mission) String() string {
	switch m.Mode {
	case navigation.ModeWaypoint:
		return fmt.Sprintf("waypoint %.6f,%.6f at %.0f%% (radius %.1fm)", m.Lat, m.Lon, m.Speed, m.Radius)
	case navigation.ModeCourse:
		return fmt.Sprintf("course %.1f° at %.0f%% for %v", m.Heading, m.Speed, m.Duration)
	case navigation.ModeHoldPosition:
		return fmt.Sprintf("hold position within %.1fm", m.Drift)
	}
	return string(m.Mode)
}

// Start installs the mission on c.
func (m *mission) Start(ctx context.Context, c *navigation.Controller) error {
	switch m.Mode {
	case navigation.ModeWaypoint:
		return c.NavigateToWaypoint(ctx, m.Lat, m.Lon, m.Speed, m.Radius)
	case navigation.ModeCourse:
		return c.SetCourse(ctx, m.Heading, m.Speed, m.Duration)
	case navigation.ModeHoldPosition:
		return c.HoldPosition(ctx, m.Drift)
	}
	return fmt.Errorf("unknown mission mode %q", m.Mode)
}

// parseMission builds at most one mission from the -waypoint, -course and -hold flags.
// Omitted speeds, radii and durations come from nc.
func parseMission(waypoint, course, hold string, nc *config.NavigationConfig) (*mission, error) {
	set := 0
	for _, s := range []string{waypoint, course, hold} {
		if s != "" {
			set++
		}
	}
	switch {
	case set == 0:
		return nil, nil
	case set > 1:
		return nil, errors.New("only one of -waypoint, -course and -hold may be given")
	}

	switch {
	case waypoint != "":
		f := splitArgs(waypoint)
		if len(f) < 2 || len(f) > 4 {
			return nil, fmt.Errorf("-waypoint wants lat,lon[,speed[,radius]], got %q", waypoint)
		}
		m := &mission{Mode: navigation.ModeWaypoint, Speed: nc.DefaultMaxSpeed, Radius: nc.DefaultArrivalRadius.Meters()}
		var err error
		if m.Lat, err = parseFloat("latitude", f[0]); err != nil {
			return nil, err
		}
		if m.Lon, err = parseFloat("longitude", f[1]); err != nil {
			return nil, err
		}
		if len(f) > 2 {
			if m.Speed, err = parseFloat("speed", f[2]); err != nil {
				return nil, err
			}
		}
		if len(f) > 3 {
			if m.Radius, err = config.ParseDistance(f[3]); err != nil {
				return nil, err
			}
		}
		return m, nil

	case course != "":
		f := splitArgs(course)
		if len(f) < 2 || len(f) > 3 {
			return nil, fmt.Errorf("-course wants heading,speed[,duration], got %q", course)
		}
		m := &mission{Mode: navigation.ModeCourse, Duration: nc.DefaultCourseTime.D()}
		var err error
		if m.Heading, err = parseFloat("heading", f[0]); err != nil {
			return nil, err
		}
		if m.Speed, err = parseFloat("speed", f[1]); err != nil {
			return nil, err
		}
		if len(f) > 2 {
			if m.Duration, err = config.ParseDuration(f[2]); err != nil {
				return nil, err
			}
		}
		return m, nil

	default:
		drift, err := config.ParseDistance(hold)
		if err != nil {
			return nil, err
		}
		return &mission{Mode: navigation.ModeHoldPosition, Drift: drift}, nil
	}
}

func splitArgs(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseFloat(name, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, s)
	}
	return v, nil
}
