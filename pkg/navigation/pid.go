package navigation

import "math"

// PIDConfig holds the heading controller gains. MaxOutput is the rudder clamp in
// degrees and also bounds the integral term.
type PIDConfig struct {
	Kp        float64
	Ki        float64
	Kd        float64
	MaxOutput float64
}

// DefaultPIDConfig returns the gains tuned for the reference hull.
func DefaultPIDConfig() PIDConfig {
	return PIDConfig{Kp: 1.0, Ki: 0.1, Kd: 0.5, MaxOutput: 45.0}
}

// PID is a heading controller with integral anti-windup. It is not safe for
// concurrent use; the Controller guards it with its state mutex.
type PID struct {
	cfg       PIDConfig
	integral  float64
	lastError float64
}

// NewPID creates a controller with zeroed state.
func NewPID(cfg PIDConfig) *PID {
	return &PID{cfg: cfg}
}

// Update returns the clamped rudder command for a heading error in degrees over dt seconds.
func (p *PID) Update(err, dt float64) float64 {
	if dt <= 0 {
		dt = 1
	}
	limit := p.cfg.MaxOutput

	proportional := p.cfg.Kp * err

	p.integral = clamp(p.integral+err*dt, -limit, limit)
	integral := p.cfg.Ki * p.integral

	derivative := p.cfg.Kd * (err - p.lastError) / dt
	p.lastError = err

	return clamp(proportional+integral+derivative, -limit, limit)
}

// Reset zeroes the integral and derivative memory.
func (p *PID) Reset() {
	p.integral = 0
	p.lastError = 0
}

// Integral returns the accumulated error term.
func (p *PID) Integral() float64 { return p.integral }

// LastError returns the error seen on the previous update.
func (p *PID) LastError() float64 { return p.lastError }

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
