// Configuration loading for the scanner motion host
//
// All timing thresholds the motion layer depends on live here so a rig
// with slow homing switches or a chatty firmware build can be tuned
// without a rebuild.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/axes"
	"github.com/WilliamVineMorris/RaspPI-sub003/pkg/errors"
)

// Transport kinds accepted in TransportConfig.Kind.
const (
	TransportSerial    = "serial"
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

// TransportConfig selects how the host reaches the controller.
type TransportConfig struct {
	Kind             string `yaml:"kind"`               // serial, tcp or websocket
	Device           string `yaml:"device"`             // serial device path
	Baud             int    `yaml:"baud"`               // serial baud rate
	Address          string `yaml:"address"`            // host:port for tcp/websocket
	ConnectTimeoutMs int    `yaml:"connect_timeout_ms"` // dial timeout
}

// RangeConfig is one axis soft-limit range in command units.
type RangeConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// MachineConfig describes the rig geometry and coordinate mapping.
type MachineConfig struct {
	LimitX RangeConfig `yaml:"limit_x"`
	LimitY RangeConfig `yaml:"limit_y"`
	LimitZ RangeConfig `yaml:"limit_z"`
	LimitC RangeConfig `yaml:"limit_c"`

	RotaryFullTurn float64 `yaml:"rotary_full_turn"` // Z wrap value, degrees
	TiltOffset     float64 `yaml:"tilt_offset"`      // C command = angle + offset
	TiltMinDeg     float64 `yaml:"tilt_min_deg"`     // tilt travel, angle domain
	TiltMaxDeg     float64 `yaml:"tilt_max_deg"`

	DefaultFeedrate float64 `yaml:"default_feedrate"` // units/min for moves
	JogFeedrate     float64 `yaml:"jog_feedrate"`     // units/min for $J= jogs
}

// TimingConfig holds every threshold of the motion layer.
type TimingConfig struct {
	CommandTimeoutMs  int `yaml:"command_timeout_ms"`  // per-command ack wait
	MoveTimeoutMs     int `yaml:"move_timeout_ms"`     // whole-move ceiling
	FreshnessMaxAgeMs int `yaml:"freshness_max_age_ms"`// cached status max age
	IdleStableCount   int `yaml:"idle_stable_count"`   // consecutive Idle samples
	MinMoveDurationMs int `yaml:"min_move_duration_ms"`// floor before Idle counts
	VerifyPollMs      int `yaml:"verify_poll_ms"`      // position verify interval
	VerifyWindowMs    int `yaml:"verify_window_ms"`    // position verify budget

	HomingDetectFloorS int `yaml:"homing_detect_floor_s"` // min detected-to-done
	HomingTotalFloorS  int `yaml:"homing_total_floor_s"`  // min total cycle time
	HomingCeilingS     int `yaml:"homing_ceiling_s"`      // hard timeout

	PositionTolerance float64 `yaml:"position_tolerance"` // command units
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	Listen      string   `yaml:"listen"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warning, error
	File  string `yaml:"file"`  // empty = stderr only
}

// Config aggregates all host configuration.
type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Machine   MachineConfig   `yaml:"machine"`
	Timing    TimingConfig    `yaml:"timing"`
	API       APIConfig       `yaml:"api"`
	Log       LogConfig       `yaml:"log"`
}

// Load reads a YAML file, applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.ConfigLoadError(path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.ConfigLoadError(path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and no
// transport selected. Useful for tests and flag-only startup.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every zero field that has a sane default.
func (c *Config) ApplyDefaults() {
	if c.Transport.Kind == "" {
		c.Transport.Kind = TransportSerial
	}
	if c.Transport.Baud <= 0 {
		c.Transport.Baud = 115200
	}
	if c.Transport.ConnectTimeoutMs <= 0 {
		c.Transport.ConnectTimeoutMs = 10000
	}

	if c.Machine.RotaryFullTurn <= 0 {
		c.Machine.RotaryFullTurn = 360
	}
	if c.Machine.TiltOffset == 0 {
		c.Machine.TiltOffset = 90
	}
	if c.Machine.TiltMinDeg == 0 && c.Machine.TiltMaxDeg == 0 {
		c.Machine.TiltMinDeg = -90
		c.Machine.TiltMaxDeg = 90
	}
	if c.Machine.DefaultFeedrate <= 0 {
		c.Machine.DefaultFeedrate = 1500
	}
	if c.Machine.JogFeedrate <= 0 {
		c.Machine.JogFeedrate = 1000
	}

	if c.Timing.CommandTimeoutMs <= 0 {
		c.Timing.CommandTimeoutMs = 10000
	}
	if c.Timing.MoveTimeoutMs <= 0 {
		c.Timing.MoveTimeoutMs = 120000
	}
	if c.Timing.FreshnessMaxAgeMs <= 0 {
		c.Timing.FreshnessMaxAgeMs = 3000
	}
	if c.Timing.IdleStableCount <= 0 {
		c.Timing.IdleStableCount = 3
	}
	if c.Timing.MinMoveDurationMs <= 0 {
		c.Timing.MinMoveDurationMs = 1000
	}
	if c.Timing.VerifyPollMs <= 0 {
		c.Timing.VerifyPollMs = 200
	}
	if c.Timing.VerifyWindowMs <= 0 {
		c.Timing.VerifyWindowMs = 2000
	}
	if c.Timing.HomingDetectFloorS <= 0 {
		c.Timing.HomingDetectFloorS = 45
	}
	if c.Timing.HomingTotalFloorS <= 0 {
		c.Timing.HomingTotalFloorS = 60
	}
	if c.Timing.HomingCeilingS <= 0 {
		c.Timing.HomingCeilingS = 180
	}
	if c.Timing.PositionTolerance <= 0 {
		c.Timing.PositionTolerance = axes.DefaultTolerance
	}

	if c.API.Listen == "" {
		c.API.Listen = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks cross-field consistency. Defaults must already be
// applied.
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportSerial:
		if c.Transport.Device == "" {
			return errors.ConfigValidationError("transport.device",
				"required for serial transport")
		}
	case TransportTCP, TransportWebSocket:
		if c.Transport.Address == "" {
			return errors.ConfigValidationError("transport.address",
				fmt.Sprintf("required for %s transport", c.Transport.Kind))
		}
	default:
		return errors.ConfigValidationError("transport.kind",
			fmt.Sprintf("unknown kind %q", c.Transport.Kind))
	}

	for _, lr := range []struct {
		name string
		r    RangeConfig
	}{
		{"machine.limit_x", c.Machine.LimitX},
		{"machine.limit_y", c.Machine.LimitY},
		{"machine.limit_z", c.Machine.LimitZ},
		{"machine.limit_c", c.Machine.LimitC},
	} {
		if lr.r.Min > lr.r.Max {
			return errors.ConfigValidationError(lr.name,
				fmt.Sprintf("min %.3f exceeds max %.3f", lr.r.Min, lr.r.Max))
		}
	}

	if c.Machine.TiltMinDeg >= c.Machine.TiltMaxDeg {
		return errors.ConfigValidationError("machine.tilt_min_deg",
			"tilt range is empty")
	}
	if c.Timing.HomingCeilingS < c.Timing.HomingTotalFloorS {
		return errors.ConfigValidationError("timing.homing_ceiling_s",
			"ceiling below the total-duration floor")
	}
	if c.Timing.VerifyWindowMs < c.Timing.VerifyPollMs {
		return errors.ConfigValidationError("timing.verify_window_ms",
			"window shorter than one poll interval")
	}
	return nil
}

// Limits converts the configured ranges to axis limits.
func (c *Config) Limits() axes.Limits {
	return axes.Limits{
		X: axes.Range{Min: c.Machine.LimitX.Min, Max: c.Machine.LimitX.Max},
		Y: axes.Range{Min: c.Machine.LimitY.Min, Max: c.Machine.LimitY.Max},
		Z: axes.Range{Min: c.Machine.LimitZ.Min, Max: c.Machine.LimitZ.Max},
		C: axes.Range{Min: c.Machine.LimitC.Min, Max: c.Machine.LimitC.Max},
	}
}

// Mapping converts the configured geometry to a coordinate mapping.
func (c *Config) Mapping() axes.Mapping {
	return axes.Mapping{
		FullTurn:   c.Machine.RotaryFullTurn,
		TiltOffset: c.Machine.TiltOffset,
		TiltMin:    c.Machine.TiltMinDeg,
		TiltMax:    c.Machine.TiltMaxDeg,
	}
}

// ConnectTimeout returns the transport dial timeout.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Transport.ConnectTimeoutMs) * time.Millisecond
}

// CommandTimeout returns the per-command ack wait.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Timing.CommandTimeoutMs) * time.Millisecond
}

// MoveTimeout returns the whole-move ceiling.
func (c *Config) MoveTimeout() time.Duration {
	return time.Duration(c.Timing.MoveTimeoutMs) * time.Millisecond
}

// FreshnessMaxAge returns how old a cached status sample may be before a
// position read triggers a manual query.
func (c *Config) FreshnessMaxAge() time.Duration {
	return time.Duration(c.Timing.FreshnessMaxAgeMs) * time.Millisecond
}

// MinMoveDuration returns the floor before Idle samples count toward
// completion.
func (c *Config) MinMoveDuration() time.Duration {
	return time.Duration(c.Timing.MinMoveDurationMs) * time.Millisecond
}

// VerifyPoll returns the position verification poll interval.
func (c *Config) VerifyPoll() time.Duration {
	return time.Duration(c.Timing.VerifyPollMs) * time.Millisecond
}

// VerifyWindow returns the position verification budget.
func (c *Config) VerifyWindow() time.Duration {
	return time.Duration(c.Timing.VerifyWindowMs) * time.Millisecond
}

// HomingDetectFloor returns the minimum detected-to-complete duration.
func (c *Config) HomingDetectFloor() time.Duration {
	return time.Duration(c.Timing.HomingDetectFloorS) * time.Second
}

// HomingTotalFloor returns the minimum total homing duration.
func (c *Config) HomingTotalFloor() time.Duration {
	return time.Duration(c.Timing.HomingTotalFloorS) * time.Second
}

// HomingCeiling returns the homing hard timeout.
func (c *Config) HomingCeiling() time.Duration {
	return time.Duration(c.Timing.HomingCeilingS) * time.Second
}
