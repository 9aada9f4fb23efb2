package config

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"2s", 2 * time.Second, false},
		{"500ms", 500 * time.Millisecond, false},
		{"1.5h", 90 * time.Minute, false},
		{"1d", Day, false},
		{"1w", Week, false},
		{"1d12h", 36 * time.Hour, false},
		{"", 0, false},
		{"soon", 0, true},
		{"3dx", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseDistance(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
		wantErr  bool
	}{
		{"250m", 250, false},
		{"1.2km", 1200, false},
		{"1nm", 1852, false},
		{"100ft", 30.48, false},
		{"42", 42, false},
		{"far", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDistance(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDistance(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if diff := got - tt.expected; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("ParseDistance(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestUnitsYAML(t *testing.T) {
	type limits struct {
		Timeout  Duration `yaml:"timeout"`
		Interval Duration `yaml:"interval"`
		Radius   Distance `yaml:"radius"`
		Range    Distance `yaml:"range"`
	}

	var got limits
	in := "timeout: 30\ninterval: 2d\nradius: 1.5km\nrange: 800\n"
	if err := yaml.Unmarshal([]byte(in), &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got.Timeout.D() != 30*time.Second {
		t.Errorf("bare number should be seconds, got %v", got.Timeout.D())
	}
	if got.Interval.D() != 48*time.Hour {
		t.Errorf("expected 48h, got %v", got.Interval.D())
	}
	if got.Radius.Meters() != 1500 || got.Range.Meters() != 800 {
		t.Errorf("unexpected distances: %v, %v", got.Radius, got.Range)
	}

	out, err := yaml.Marshal(got)
	if err != nil {
		t.Fatal(err)
	}
	var back limits
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("re-read of %q failed: %v", out, err)
	}
	if back != got {
		t.Errorf("round trip changed values: %+v != %+v", back, got)
	}
}
