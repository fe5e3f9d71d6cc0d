package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/anomaly"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/collab"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/coordinator"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/extractor"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/motion"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/pipeline"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/source"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/webmonitor"
)

// Source kinds.
const (
	SourceSynthetic = "synthetic"
	SourceImages    = "images"
)

// Config represents the complete analyzer configuration
type Config struct {
	Log           LogConfig          `yaml:"log"`
	Source        SourceConfig       `yaml:"source"`
	Pipeline      pipeline.Config    `yaml:"pipeline"`
	Coordinator   coordinator.Config `yaml:"coordinator"`
	Extractor     extractor.Config   `yaml:"extractor"`
	Motion        motion.Config      `yaml:"motion"`
	Anomaly       anomaly.Config     `yaml:"anomaly"`
	Consensus     collab.Config      `yaml:"consensus"`
	Monitor       webmonitor.Config  `yaml:"monitor"`
	MetricsAddr   string             `yaml:"metrics_addr"`   // empty disables the metrics server
	StatsInterval time.Duration      `yaml:"stats_interval"` // periodic stats log
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   logger.LogLevel            `yaml:"level"`
	Color   bool                       `yaml:"color"`
	Modules map[string]logger.LogLevel `yaml:"modules"` // per-module overrides
}

// SourceConfig selects where frames come from
type SourceConfig struct {
	Kind      string                 `yaml:"kind"`      // synthetic, images
	ImageDir  string                 `yaml:"image_dir"` // required for images
	Width     int                    `yaml:"width"`     // analysis resolution for images
	Height    int                    `yaml:"height"`
	Synthetic source.SyntheticConfig `yaml:"synthetic"`
}

// Default returns the built-in configuration.
func Default() Config {
	syn := source.DefaultSyntheticConfig()
	return Config{
		Log: LogConfig{Level: logger.INFO},
		Source: SourceConfig{
			Kind:      SourceSynthetic,
			Width:     syn.Width,
			Height:    syn.Height,
			Synthetic: syn,
		},
		Pipeline:      pipeline.DefaultConfig(),
		Coordinator:   coordinator.DefaultConfig(),
		Extractor:     extractor.DefaultConfig(),
		Motion:        motion.DefaultConfig(),
		Anomaly:       anomaly.DefaultConfig(),
		Consensus:     collab.DefaultConfig(),
		Monitor:       webmonitor.DefaultConfig(),
		MetricsAddr:   ":9091",
		StatsInterval: 5 * time.Second,
	}
}

// Load reads configuration from a YAML file. Keys missing from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
