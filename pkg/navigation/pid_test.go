package navigation

import (
	"math"
	"testing"
)

func TestPID_Update(t *testing.T) {
	tests := []struct {
		name   string
		cfg    PIDConfig
		errors []float64
		dt     float64
		want   float64
	}{
		{
			name:   "Proportional Only",
			cfg:    PIDConfig{Kp: 1, MaxOutput: 45},
			errors: []float64{10},
			dt:     1,
			want:   10,
		},
		{
			name:   "Default Gains First Step",
			cfg:    DefaultPIDConfig(),
			errors: []float64{10},
			dt:     1,
			want:   10 + 0.1*10 + 0.5*10, // P + I + D
		},
		{
			name:   "Derivative Opposes Falling Error",
			cfg:    PIDConfig{Kd: 1, MaxOutput: 45},
			errors: []float64{20, 10},
			dt:     1,
			want:   -10,
		},
		{
			name:   "Output Clamped Positive",
			cfg:    DefaultPIDConfig(),
			errors: []float64{170},
			dt:     1,
			want:   45,
		},
		{
			name:   "Output Clamped Negative",
			cfg:    DefaultPIDConfig(),
			errors: []float64{-170},
			dt:     1,
			want:   -45,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPID(tt.cfg)
			var got float64
			for _, e := range tt.errors {
				got = p.Update(e, tt.dt)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Update() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPID_AntiWindup(t *testing.T) {
	p := NewPID(DefaultPIDConfig())
	for i := 0; i < 1000; i++ {
		p.Update(90, 1)
	}
	if p.Integral() != 45 {
		t.Errorf("integral = %v, want clamp at 45", p.Integral())
	}

	// a saturated integral must unwind as soon as the error flips
	for i := 0; i < 1000; i++ {
		p.Update(-90, 1)
	}
	if p.Integral() != -45 {
		t.Errorf("integral = %v, want clamp at -45", p.Integral())
	}
}

func TestPID_Reset(t *testing.T) {
	p := NewPID(DefaultPIDConfig())
	p.Update(30, 1)
	p.Update(25, 1)
	p.Reset()
	if p.Integral() != 0 || p.LastError() != 0 {
		t.Errorf("after Reset integral=%v lastError=%v, want zeros", p.Integral(), p.LastError())
	}
}
