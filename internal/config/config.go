// Package config loads the timer tunables that govern a replica's event
// loop. Every field has a sane default; a YAML file only overrides the
// ones it sets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the timing knobs for one replica. The *Ms fields are
// durations expressed in milliseconds in YAML; BatchSizeThreshold is a
// count of puts.
type Config struct {
	ElectionTimeoutLowMs  int `yaml:"election_timeout_low_ms"`
	ElectionTimeoutHighMs int `yaml:"election_timeout_high_ms"`
	HeartbeatIntervalMs   int `yaml:"heartbeat_interval_ms"`
	BatchFlushIntervalMs  int `yaml:"batch_flush_interval_ms"`
	QuorumWindowMs        int `yaml:"quorum_window_ms"`
	BatchSizeThreshold    int `yaml:"batch_size_threshold"`
}

// Default returns a set of reasonable timer values for a LAN deployment.
func Default() Config {
	return Config{
		ElectionTimeoutLowMs:  150,
		ElectionTimeoutHighMs: 300,
		HeartbeatIntervalMs:   30,
		BatchFlushIntervalMs:  10,
		QuorumWindowMs:        300,
		BatchSizeThreshold:    50,
	}
}

// ElectionTimeoutLow is T_lo.
func (c Config) ElectionTimeoutLow() time.Duration {
	return time.Duration(c.ElectionTimeoutLowMs) * time.Millisecond
}

// ElectionTimeoutHigh is T_hi.
func (c Config) ElectionTimeoutHigh() time.Duration {
	return time.Duration(c.ElectionTimeoutHighMs) * time.Millisecond
}

// HeartbeatInterval is T_hb.
func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}

// BatchFlushInterval is T_batch.
func (c Config) BatchFlushInterval() time.Duration {
	return time.Duration(c.BatchFlushIntervalMs) * time.Millisecond
}

// QuorumWindow is T_quorum.
func (c Config) QuorumWindow() time.Duration {
	return time.Duration(c.QuorumWindowMs) * time.Millisecond
}

// Validate rejects a configuration that could never produce a correct
// election (e.g. an empty or inverted timeout range).
func (c Config) Validate() error {
	if c.ElectionTimeoutLowMs <= 0 || c.ElectionTimeoutHighMs <= 0 {
		return fmt.Errorf("config: election timeouts must be positive")
	}
	if c.ElectionTimeoutLowMs >= c.ElectionTimeoutHighMs {
		return fmt.Errorf("config: election_timeout_low_ms must be < election_timeout_high_ms")
	}
	if c.HeartbeatIntervalMs <= 0 {
		return fmt.Errorf("config: heartbeat_interval_ms must be positive")
	}
	if c.HeartbeatIntervalMs >= c.ElectionTimeoutLowMs {
		return fmt.Errorf("config: heartbeat_interval_ms must be well below election_timeout_low_ms")
	}
	if c.BatchFlushIntervalMs <= 0 {
		return fmt.Errorf("config: batch_flush_interval_ms must be positive")
	}
	if c.QuorumWindowMs <= 0 {
		return fmt.Errorf("config: quorum_window_ms must be positive")
	}
	if c.BatchSizeThreshold <= 0 {
		return fmt.Errorf("config: batch_size_threshold must be positive")
	}
	return nil
}

// Load reads a YAML file and overlays it onto Default(), so a file that
// only sets one field leaves the rest at their defaults.
func Load(path string) (Config, error) {
	c := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
