package config

import (
	"fmt"
)

// Validate checks if the configuration is valid
func Validate(cfg *Config) error {
	switch cfg.Source.Kind {
	case SourceSynthetic:
		if err := cfg.Source.Synthetic.Validate(); err != nil {
			return fmt.Errorf("source.synthetic: %w", err)
		}
	case SourceImages:
		if cfg.Source.ImageDir == "" {
			return fmt.Errorf("source.image_dir is required for kind %q", SourceImages)
		}
		if cfg.Source.Width <= 0 || cfg.Source.Height <= 0 {
			return fmt.Errorf("source.width and source.height must be > 0")
		}
	default:
		return fmt.Errorf("source.kind must be %q or %q, got %q", SourceSynthetic, SourceImages, cfg.Source.Kind)
	}

	sections := []struct {
		name     string
		validate func() error
	}{
		{"pipeline", cfg.Pipeline.Validate},
		{"coordinator", cfg.Coordinator.Validate},
		{"extractor", cfg.Extractor.Validate},
		{"motion", cfg.Motion.Validate},
		{"anomaly", cfg.Anomaly.Validate},
		{"consensus", cfg.Consensus.Validate},
		{"monitor", cfg.Monitor.Validate},
	}
	for _, s := range sections {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}

	if cfg.StatsInterval <= 0 {
		return fmt.Errorf("stats_interval must be > 0")
	}

	return nil
}
