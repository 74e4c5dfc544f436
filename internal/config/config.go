// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the engine configuration surface: timeouts consumed
// by the blocking waits, the protocol capture switch, and the few knobs
// needed to reach the external debugger. Values load from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config is the complete engine configuration.
type Config struct {
	GDB     GDBConfig     `yaml:"gdb"`
	Target  TargetConfig  `yaml:"target"`
	Capture CaptureConfig `yaml:"capture"`
	Log     LogConfig     `yaml:"log"`
}

// GDBConfig configures the connection to the external GDB client process.
type GDBConfig struct {
	// Path is the gdb client binary.
	// Environment: ONTARGET_GDB
	// Default: arm-none-eabi-gdb
	Path string `yaml:"path,omitempty"`

	// ServerAddr is the address of the gdb server to connect to, in
	// host:port form.
	// Environment: ONTARGET_GDBSERVER
	ServerAddr string `yaml:"server_addr,omitempty"`

	// ConnectTimeout bounds the -target-select remote command.
	// Default: 30s
	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty"`

	// WriteRetries is the number of times a blocking MI write is retried
	// when the debugger reports the transient "Reply contains invalid hex
	// digit" condition. All other errors propagate immediately.
	// Default: 0
	WriteRetries int `yaml:"write_retries,omitempty"`
}

// TargetConfig configures run-state and breakpoint wait behavior.
type TargetConfig struct {
	// StateChangeTimeout is the default deadline for waiting on a
	// running/halted transition.
	// Default: 5s
	StateChangeTimeout time.Duration `yaml:"state_change_timeout,omitempty"`

	// InterceptWaitTimeout is the fallback deadline applied when
	// WaitComplete is called on an intercept breakpoint without an
	// explicit timeout.
	// Default: 20s
	InterceptWaitTimeout time.Duration `yaml:"intercept_wait_timeout,omitempty"`

	// HaltInITBlock, when true, leaves the target where it halted even if
	// that is inside an IT/conditional-execution block. The default is to
	// single-step out of the block after a halt.
	HaltInITBlock bool `yaml:"halt_in_it_block,omitempty"`
}

// CaptureConfig configures the in-memory protocol trace ring.
type CaptureConfig struct {
	// Enabled turns protocol capture on.
	// Environment: ONTARGET_CAPTURE
	Enabled bool `yaml:"enabled,omitempty"`

	// Records is the ring size. Default: 60.
	Records int `yaml:"records,omitempty"`
}

// LogConfig mirrors the logging surface so a single YAML file can carry it.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Default returns a Config with engine defaults applied.
func Default() *Config {
	return &Config{
		GDB: GDBConfig{
			Path:           "arm-none-eabi-gdb",
			ConnectTimeout: 30 * time.Second,
			WriteRetries:   0,
		},
		Target: TargetConfig{
			StateChangeTimeout:   5 * time.Second,
			InterceptWaitTimeout: 20 * time.Second,
		},
		Capture: CaptureConfig{
			Enabled: false,
			Records: 60,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML config file, fills in defaults, applies environment
// overrides and validates the result. A missing file is not an error; the
// defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// fall through to env overrides
		case err != nil:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("ONTARGET_GDB"); v != "" {
		c.GDB.Path = v
	}
	if v := os.Getenv("ONTARGET_GDBSERVER"); v != "" {
		c.GDB.ServerAddr = v
	}
	if v := os.Getenv("ONTARGET_CAPTURE"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Capture.Enabled = enabled
		}
	}
	if v := os.Getenv("ONTARGET_STATE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Target.StateChangeTimeout = d
		}
	}
	if v := os.Getenv("ONTARGET_WRITE_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.GDB.WriteRetries = n
		}
	}
}

// Validate checks the configuration for inconsistent values.
func (c *Config) Validate() error {
	if c.Target.StateChangeTimeout <= 0 {
		return fmt.Errorf("%w: target.state_change_timeout must be positive", ErrInvalidConfig)
	}
	if c.Target.InterceptWaitTimeout <= 0 {
		return fmt.Errorf("%w: target.intercept_wait_timeout must be positive", ErrInvalidConfig)
	}
	if c.GDB.WriteRetries < 0 {
		return fmt.Errorf("%w: gdb.write_retries must not be negative", ErrInvalidConfig)
	}
	if c.Capture.Records < 0 {
		return fmt.Errorf("%w: capture.records must not be negative", ErrInvalidConfig)
	}
	return nil
}
