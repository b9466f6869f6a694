package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Config is the tunable snapshot shared by the session and the recognizer.
// Treat a published *Config as read-only; build a new one to change values.
type Config struct {
	ServerAddress     string  `toml:"server_address" yaml:"server_address"`
	ServerPort        int     `toml:"server_port" yaml:"server_port"`
	AutoConnect       bool    `toml:"auto_connect" yaml:"auto_connect"`
	ConnectionTimeout float64 `toml:"connection_timeout" yaml:"connection_timeout"`
	PadID             int     `toml:"pad_id" yaml:"pad_id"`
	ValidateChecksum  bool    `toml:"validate_checksum" yaml:"validate_checksum"`
	SampleQueueSize   int     `toml:"sample_queue_size" yaml:"sample_queue_size"`

	MotionSensitivity      float64 `toml:"motion_sensitivity" yaml:"motion_sensitivity"`
	SwingThreshold         float64 `toml:"swing_threshold" yaml:"swing_threshold"`
	ShakeThreshold         float64 `toml:"shake_threshold" yaml:"shake_threshold"`
	BowlingMinVelocity     float64 `toml:"bowling_min_velocity" yaml:"bowling_min_velocity"`
	BowlingMaxAngleDegrees float64 `toml:"bowling_max_angle_degrees" yaml:"bowling_max_angle_degrees"`
	MotionForceMultiplier  float64 `toml:"motion_force_multiplier" yaml:"motion_force_multiplier"`
	MotionHistorySize      int     `toml:"motion_history_size" yaml:"motion_history_size"`
	GestureTimeoutSeconds  float64 `toml:"gesture_timeout_seconds" yaml:"gesture_timeout_seconds"`
	MinThrowForce          float64 `toml:"min_throw_force" yaml:"min_throw_force"`
	MaxThrowForce          float64 `toml:"max_throw_force" yaml:"max_throw_force"`
}

func Default() Config {
	return Config{
		ServerAddress:     "127.0.0.1",
		ServerPort:        26760,
		AutoConnect:       true,
		ConnectionTimeout: 5,
		PadID:             0,
		ValidateChecksum:  false,
		SampleQueueSize:   8,

		MotionSensitivity:      1,
		SwingThreshold:         2,
		ShakeThreshold:         3,
		BowlingMinVelocity:     1.5,
		BowlingMaxAngleDegrees: 45,
		MotionForceMultiplier:  1,
		MotionHistorySize:      10,
		GestureTimeoutSeconds:  0.5,
		MinThrowForce:          0.5,
		MaxThrowForce:          3,
	}
}

// Validate reports every out-of-range field at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(c.ServerAddress) == "" {
		add("server_address is empty")
	}
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		add("server_port out of range: %d", c.ServerPort)
	}
	checkRange := func(name string, v, lo, hi float64) {
		if math.IsNaN(v) || v <= lo || v > hi {
			add("%s out of range (%g, %g]: %g", name, lo, hi, v)
		}
	}
	checkRange("connection_timeout", c.ConnectionTimeout, 0, 60)
	checkRange("motion_sensitivity", c.MotionSensitivity, 0, 10)
	checkRange("swing_threshold", c.SwingThreshold, 0, 50)
	checkRange("shake_threshold", c.ShakeThreshold, 0, 50)
	checkRange("bowling_min_velocity", c.BowlingMinVelocity, 0, 50)
	checkRange("bowling_max_angle_degrees", c.BowlingMaxAngleDegrees, 0, 90)
	checkRange("motion_force_multiplier", c.MotionForceMultiplier, 0, 10)
	checkRange("min_throw_force", c.MinThrowForce, 0, 100)
	checkRange("max_throw_force", c.MaxThrowForce, 0, 100)

	if math.IsNaN(c.GestureTimeoutSeconds) || c.GestureTimeoutSeconds < 0 || c.GestureTimeoutSeconds > 10 {
		add("gesture_timeout_seconds out of range [0, 10]: %g", c.GestureTimeoutSeconds)
	}
	if c.MaxThrowForce <= c.MinThrowForce {
		add("max_throw_force (%g) must exceed min_throw_force (%g)", c.MaxThrowForce, c.MinThrowForce)
	}
	if c.MotionHistorySize < 3 || c.MotionHistorySize > 256 {
		add("motion_history_size out of range [3, 256]: %d", c.MotionHistorySize)
	}
	if c.SampleQueueSize < 1 || c.SampleQueueSize > 1024 {
		add("sample_queue_size out of range [1, 1024]: %d", c.SampleQueueSize)
	}
	if c.PadID < 0 || c.PadID > 3 {
		add("pad_id out of range [0, 3]: %d", c.PadID)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid dsu config: %w", errors.Join(errs...))
}

// Endpoint joins ServerAddress and ServerPort.
func (c *Config) Endpoint() string {
	return net.JoinHostPort(c.ServerAddress, strconv.Itoa(c.ServerPort))
}

func (c *Config) ConnectTimeout() time.Duration {
	return seconds(c.ConnectionTimeout)
}

func (c *Config) GestureTimeout() time.Duration {
	return seconds(c.GestureTimeoutSeconds)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Holder publishes a *Config to concurrent readers. The zero value holds nil.
type Holder struct {
	p atomic.Pointer[Config]
}

// NewHolder validates cfg and stores a private copy of it.
func NewHolder(cfg Config) (*Holder, error) {
	h := new(Holder)
	if err := h.Swap(cfg); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Holder) Load() *Config {
	return h.p.Load()
}

// Swap validates cfg and publishes a copy of it.
func (h *Holder) Swap(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	h.p.Store(&cfg)
	return nil
}
