package probe

import (
	"context"
	"fmt"
	"log/slog"

	"boatpilot/pkg/sysinfo"
	"boatpilot/pkg/vessel"
)

// Sampler is the host load source checked by SystemProbe.
type Sampler interface {
	Sample(ctx context.Context) (sysinfo.Usage, error)
}

// GPSProbe requires a fix with quality >= 1 and at least minSatellites satellites.
func GPSProbe(src vessel.PositionSource, minSatellites int) Probe {
	return Probe{
		Name:     "GPS",
		Critical: true,
		Check: func(ctx context.Context) error {
			p, err := src.Position(ctx)
			if err != nil {
				return err
			}
			if p.FixQuality < 1 {
				return fmt.Errorf("poor fix quality %d", p.FixQuality)
			}
			if p.Satellites < minSatellites {
				return fmt.Errorf("only %d satellites", p.Satellites)
			}
			return nil
		},
	}
}

// HeadingProbe checks that the compass answers. Navigation falls back to holding
// the rudder when it does not, so it is not critical.
func HeadingProbe(src vessel.HeadingSource) Probe {
	return Probe{
		Name: "Heading",
		Check: func(ctx context.Context) error {
			_, err := src.Heading(ctx)
			return err
		},
	}
}

// ActuatorProbe requires a readable status with no latched emergency stop.
func ActuatorProbe(act vessel.Actuator) Probe {
	return Probe{
		Name:     "Actuator",
		Critical: true,
		Check: func(ctx context.Context) error {
			st, err := act.Status(ctx)
			if err != nil {
				return err
			}
			if st.EmergencyStop {
				return vessel.ErrEmergencyLatched
			}
			return nil
		},
	}
}

// SystemProbe checks that host load can be sampled and logs it.
func SystemProbe(s Sampler) Probe {
	return Probe{
		Name: "System",
		Check: func(ctx context.Context) error {
			u, err := s.Sample(ctx)
			if err != nil {
				return err
			}
			slog.Info("Preflight: Host load", "usage", u.String())
			return nil
		},
	}
}
