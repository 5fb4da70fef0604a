package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scanhost.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
transport:
  kind: tcp
  address: 127.0.0.1:2323
machine:
  limit_x: {min: 0, max: 200}
  limit_y: {min: 0, max: 200}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Timing.IdleStableCount != 3 {
		t.Errorf("IdleStableCount = %d, want 3", cfg.Timing.IdleStableCount)
	}
	if got := cfg.FreshnessMaxAge(); got != 3*time.Second {
		t.Errorf("FreshnessMaxAge = %v, want 3s", got)
	}
	if got := cfg.MinMoveDuration(); got != time.Second {
		t.Errorf("MinMoveDuration = %v, want 1s", got)
	}
	if got := cfg.HomingCeiling(); got != 180*time.Second {
		t.Errorf("HomingCeiling = %v, want 180s", got)
	}
	if cfg.Timing.PositionTolerance != 0.001 {
		t.Errorf("PositionTolerance = %v, want 0.001", cfg.Timing.PositionTolerance)
	}

	m := cfg.Mapping()
	if m.FullTurn != 360 || m.TiltOffset != 90 || m.TiltMin != -90 || m.TiltMax != 90 {
		t.Errorf("default mapping = %+v", m)
	}

	lim := cfg.Limits()
	if lim.X.Max != 200 {
		t.Errorf("X limit = %+v", lim.X)
	}
	// Unset ranges stay zero and therefore unconstrained.
	if lim.Z.Min != 0 || lim.Z.Max != 0 {
		t.Errorf("Z limit = %+v, want zero range", lim.Z)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/scanhost.yaml")
	if !errors.Is(err, errors.ErrConfigLoad) {
		t.Errorf("err = %v, want CONFIG_LOAD", err)
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := writeConfig(t, "transport: [not a map")
	_, err := Load(path)
	if !errors.Is(err, errors.ErrConfigLoad) {
		t.Errorf("err = %v, want CONFIG_LOAD", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown transport kind", func(c *Config) { c.Transport.Kind = "carrier-pigeon" }},
		{"serial without device", func(c *Config) {
			c.Transport.Kind = TransportSerial
			c.Transport.Device = ""
		}},
		{"tcp without address", func(c *Config) {
			c.Transport.Kind = TransportTCP
			c.Transport.Address = ""
		}},
		{"inverted limit", func(c *Config) {
			c.Machine.LimitX = RangeConfig{Min: 10, Max: -10}
		}},
		{"empty tilt range", func(c *Config) {
			c.Machine.TiltMinDeg = 45
			c.Machine.TiltMaxDeg = 45
		}},
		{"ceiling below floor", func(c *Config) {
			c.Timing.HomingCeilingS = 10
			c.Timing.HomingTotalFloorS = 60
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Transport.Kind = TransportTCP
			cfg.Transport.Address = "127.0.0.1:2323"
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, errors.ErrConfigValidation) {
				t.Errorf("Validate = %v, want CONFIG_VALIDATION", err)
			}
		})
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
transport:
  kind: websocket
  address: fluidnc.local:81
  connect_timeout_ms: 5000
machine:
  limit_x: {min: 0, max: 200}
  limit_y: {min: 0, max: 200}
  limit_z: {min: 0, max: 360}
  limit_c: {min: 0, max: 180}
  rotary_full_turn: 360
  tilt_min_deg: -45
  tilt_max_deg: 45
  default_feedrate: 2000
timing:
  command_timeout_ms: 2000
  freshness_max_age_ms: 1500
  idle_stable_count: 5
  homing_ceiling_s: 240
api:
  listen: ":9090"
log:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Transport.Kind != TransportWebSocket || cfg.Transport.Address != "fluidnc.local:81" {
		t.Errorf("transport = %+v", cfg.Transport)
	}
	if cfg.CommandTimeout() != 2*time.Second {
		t.Errorf("CommandTimeout = %v", cfg.CommandTimeout())
	}
	if cfg.Timing.IdleStableCount != 5 {
		t.Errorf("IdleStableCount = %d", cfg.Timing.IdleStableCount)
	}
	if m := cfg.Mapping(); m.TiltMin != -45 || m.TiltMax != 45 {
		t.Errorf("mapping = %+v", m)
	}
	if cfg.API.Listen != ":9090" {
		t.Errorf("listen = %q", cfg.API.Listen)
	}
}
