package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "boatpilot.yaml")

	tests := []struct {
		name          string
		setup         func()
		validate      func(*testing.T, *Config)
		checkFile     func(*testing.T)
		expectedError bool
	}{
		{
			name:  "NewFile_Defaults",
			setup: func() {},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Safety.Limits.MaxSpeedPercent != 70 {
					t.Errorf("expected default max speed 70, got %v", cfg.Safety.Limits.MaxSpeedPercent)
				}
				if cfg.Navigation.UpdateInterval.D() != time.Second {
					t.Errorf("expected update interval 1s, got %v", cfg.Navigation.UpdateInterval.D())
				}
			},
			checkFile: func(t *testing.T) {
				content, err := os.ReadFile(configPath)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				if !strings.HasPrefix(string(content), "# Boatpilot Configuration") {
					t.Error("config file missing header")
				}
				if !strings.Contains(string(content), "# Options: mock") {
					t.Error("config file missing provider hint")
				}
				if !strings.Contains(string(content), "max_distance_from_start: 1000m") {
					t.Error("config file missing distance default")
				}
			},
		},
		{
			name: "ExistingFile_Override",
			setup: func() {
				data := "safety:\n  limits:\n    max_speed_percent: 55\n    gps_timeout: 10\n  zones:\n    - name: harbour\n      lat: 47.6\n      lon: -122.3\n      radius: 0.5km\n      kind: allowed\n"
				if err := os.WriteFile(configPath, []byte(data), 0o644); err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Safety.Limits.MaxSpeedPercent != 55 {
					t.Errorf("expected max speed 55, got %v", cfg.Safety.Limits.MaxSpeedPercent)
				}
				if cfg.Safety.Limits.GPSTimeout.D() != 10*time.Second {
					t.Errorf("expected gps timeout 10s, got %v", cfg.Safety.Limits.GPSTimeout.D())
				}
				if cfg.Safety.Limits.BatteryVoltageMin != 11.0 {
					t.Errorf("unset fields should keep defaults, got battery %v", cfg.Safety.Limits.BatteryVoltageMin)
				}
				if len(cfg.Safety.Zones) != 1 || cfg.Safety.Zones[0].Radius.Meters() != 500 {
					t.Errorf("unexpected zones: %+v", cfg.Safety.Zones)
				}
			},
		},
		{
			name: "InvalidValues",
			setup: func() {
				if err := os.WriteFile(configPath, []byte("safety:\n  limits:\n    max_speed_percent: 150\n"), 0o644); err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			expectedError: true,
		},
		{
			name: "MalformedYAML",
			setup: func() {
				if err := os.WriteFile(configPath, []byte("safety: [unclosed"), 0o644); err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Remove(configPath)
			tt.setup()

			cfg, err := Load(configPath)
			if (err != nil) != tt.expectedError {
				t.Fatalf("Load() error = %v, expectedError %v", err, tt.expectedError)
			}
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
			if tt.checkFile != nil {
				tt.checkFile(t)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := func(m map[string]string) func(string) (string, bool) {
		return func(k string) (string, bool) {
			v, ok := m[k]
			return v, ok
		}
	}

	t.Run("Overrides", func(t *testing.T) {
		cfg := DefaultConfig()
		err := cfg.ApplyEnv(env(map[string]string{
			"MAX_SPEED_PERCENT":       "40",
			"MAX_DISTANCE_FROM_START": "250",
			"GPS_TIMEOUT_SECONDS":     "7.5",
			"LOG_LEVEL":               "debug",
			"TEMPERATURE_MAX":         "",
		}))
		if err != nil {
			t.Fatalf("ApplyEnv failed: %v", err)
		}
		if cfg.Safety.Limits.MaxSpeedPercent != 40 {
			t.Errorf("expected 40, got %v", cfg.Safety.Limits.MaxSpeedPercent)
		}
		if cfg.Safety.Limits.MaxDistanceFromStart.Meters() != 250 {
			t.Errorf("expected 250m, got %v", cfg.Safety.Limits.MaxDistanceFromStart)
		}
		if cfg.Safety.Limits.GPSTimeout.D() != 7500*time.Millisecond {
			t.Errorf("expected 7.5s, got %v", cfg.Safety.Limits.GPSTimeout.D())
		}
		if cfg.Safety.Limits.TemperatureMax != 85 {
			t.Errorf("empty value should be ignored, got %v", cfg.Safety.Limits.TemperatureMax)
		}
		if cfg.Log.Server.Level != "DEBUG" {
			t.Errorf("expected DEBUG, got %s", cfg.Log.Server.Level)
		}
	})

	t.Run("InvalidNumber", func(t *testing.T) {
		cfg := DefaultConfig()
		err := cfg.ApplyEnv(env(map[string]string{"BATTERY_VOLTAGE_MIN": "low"}))
		if err == nil || !strings.Contains(err.Error(), "BATTERY_VOLTAGE_MIN") {
			t.Fatalf("expected error naming the variable, got %v", err)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"Defaults", func(*Config) {}, ""},
		{"ZeroInterval", func(c *Config) { c.Navigation.UpdateInterval = 0 }, "navigation.update_interval"},
		{"RudderTooLarge", func(c *Config) { c.Safety.Limits.MaxRudderAngle = 120 }, "max_rudder_angle"},
		{"ZoneRadius", func(c *Config) {
			c.Safety.Zones = []ZoneConfig{{Name: "bad", Radius: 0, Kind: "allowed"}}
		}, "safety.zones[0]"},
		{"UnknownProvider", func(c *Config) { c.Vessel.Provider = "nmea" }, "vessel.provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestGenerateDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "boatpilot.yaml")
	if err := GenerateDefault(path); err != nil {
		t.Fatalf("GenerateDefault failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file not created: %v", err)
	}

	if err := os.WriteFile(path, []byte("custom: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := GenerateDefault(path); err != nil {
		t.Fatalf("GenerateDefault on existing file failed: %v", err)
	}
	content, _ := os.ReadFile(path)
	if string(content) != "custom: true\n" {
		t.Error("existing file should not be overwritten")
	}
}
