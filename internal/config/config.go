// Package config loads the probe's static configuration via viper,
// with environment variable overrides layered on top of a YAML/TOML/
// JSON file.
package config

import (
	"fmt"
	"time"

	"github.com/otusprobe/flowprobe/internal/log"
)

// Config is the probe's top-level configuration.
type Config struct {
	FlowCache     FlowCacheConfig              `mapstructure:"flow_cache"`
	FragmentCache FragmentCacheConfig          `mapstructure:"fragment_cache"`
	Indexer       IndexerConfig                `mapstructure:"indexer"`
	Capture       CaptureConfig                `mapstructure:"capture"`
	Plugins       map[string]map[string]string `mapstructure:"plugins"`
	Log           *log.LoggerConfig            `mapstructure:"log"`
}

// FlowCacheConfig mirrors internal/flowcache.Config in a
// viper/mapstructure-friendly shape (plain duration strings).
type FlowCacheConfig struct {
	Capacity        int    `mapstructure:"capacity"`
	RowSize         int    `mapstructure:"row_size"`
	Shards          int    `mapstructure:"shards"`
	ActiveTimeout   string `mapstructure:"active_timeout"`
	InactiveTimeout string `mapstructure:"inactive_timeout"`
	Split           bool   `mapstructure:"split"`
}

// FragmentCacheConfig configures the IP fragmentation port cache.
type FragmentCacheConfig struct {
	Timeout string `mapstructure:"timeout"`
}

// IndexerConfig configures the timestamp-ordering mesh.
type IndexerConfig struct {
	Inputs int `mapstructure:"inputs"`
}

// CaptureConfig configures the capture backend. Interface/ReadFile are
// the single-input shorthand; Interfaces/ReadFiles let indexer.inputs > 1
// bind each capturer to a distinct source. When the plural list is
// shorter than indexer.inputs, the remaining capturers fall back to the
// singular Interface/ReadFile.
type CaptureConfig struct {
	Interface  string   `mapstructure:"interface"`
	ReadFile   string   `mapstructure:"read_file"`
	Interfaces []string `mapstructure:"interfaces"`
	ReadFiles  []string `mapstructure:"read_files"`
	BPFFilter  string   `mapstructure:"bpf_filter"`
}

// ActiveTimeoutDuration parses FlowCache.ActiveTimeout, falling back
// to def on an empty or invalid value.
func (c FlowCacheConfig) ActiveTimeoutDuration(def time.Duration) time.Duration {
	return parseDurationOr(c.ActiveTimeout, def)
}

// InactiveTimeoutDuration parses FlowCache.InactiveTimeout, falling
// back to def on an empty or invalid value.
func (c FlowCacheConfig) InactiveTimeoutDuration(def time.Duration) time.Duration {
	return parseDurationOr(c.InactiveTimeout, def)
}

// TimeoutDuration parses FragmentCache.Timeout, falling back to def
// on an empty or invalid value.
func (c FragmentCacheConfig) TimeoutDuration(def time.Duration) time.Duration {
	return parseDurationOr(c.Timeout, def)
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// Validate checks the invariants the probe relies on at startup,
// returning a descriptive error on the first violation.
func (c *Config) Validate() error {
	if !isPowerOfTwo(c.FlowCache.Capacity) {
		return fmt.Errorf("flow_cache.capacity %d must be a power of two", c.FlowCache.Capacity)
	}
	if !isPowerOfTwo(c.FlowCache.Shards) || c.FlowCache.Shards > c.FlowCache.Capacity {
		return fmt.Errorf("flow_cache.shards %d must be a power of two and <= capacity", c.FlowCache.Shards)
	}
	if c.FlowCache.RowSize < 1 {
		return fmt.Errorf("flow_cache.row_size must be >= 1, got %d", c.FlowCache.RowSize)
	}
	if c.Indexer.Inputs < 1 {
		return fmt.Errorf("indexer.inputs must be >= 1, got %d", c.Indexer.Inputs)
	}
	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Default returns a Config populated with the documented defaults,
// ready to be overridden by a loaded file.
func Default() *Config {
	return &Config{
		FlowCache: FlowCacheConfig{
			Capacity:        16384,
			RowSize:         4,
			Shards:          4,
			ActiveTimeout:   "300s",
			InactiveTimeout: "30s",
			Split:           true,
		},
		FragmentCache: FragmentCacheConfig{
			Timeout: "2s",
		},
		Indexer: IndexerConfig{
			Inputs: 1,
		},
		Log: &log.LoggerConfig{
			Level:    "info",
			Pattern:  "%time [%level] %caller: %msg",
			Time:     "2006-01-02 15:04:05",
			Appender: "stdout",
		},
	}
}
