package webmonitor

import (
	"fmt"
	"time"
)

// Config defines the runtime configuration for the status server.
type Config struct {
	Addr              string        `yaml:"addr"`
	AllowOrigin       string        `yaml:"allow_origin"`
	StatusInterval    time.Duration `yaml:"status_interval"`
	AnalysisInterval  time.Duration `yaml:"analysis_interval"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	MaxRecent         int           `yaml:"max_recent"`
}

// DefaultConfig returns the status server defaults.
func DefaultConfig() Config {
	return Config{
		Addr:              ":8082",
		AllowOrigin:       "*",
		StatusInterval:    2 * time.Second,
		AnalysisInterval:  33 * time.Millisecond,
		KeepaliveInterval: 30 * time.Second,
		MaxRecent:         100,
	}
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.StatusInterval <= 0 || c.AnalysisInterval <= 0 || c.KeepaliveInterval <= 0 {
		return fmt.Errorf("monitor intervals must be positive")
	}
	if c.MaxRecent <= 0 {
		return fmt.Errorf("max_recent must be positive, got %d", c.MaxRecent)
	}
	return nil
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.StatusInterval <= 0 {
		c.StatusInterval = def.StatusInterval
	}
	if c.AnalysisInterval <= 0 {
		c.AnalysisInterval = def.AnalysisInterval
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = def.KeepaliveInterval
	}
	if c.MaxRecent <= 0 {
		c.MaxRecent = def.MaxRecent
	}
	return c
}
