package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/pipeline"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(&cfg))
}

func TestLoadOverridesOnlyGivenKeys(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
  modules:
    Pipeline: warn
pipeline:
  output_buffer_size: 20
  frame_interval: 10ms
consensus:
  iou_threshold: 0.5
monitor:
  addr: ":9000"
stats_interval: 1s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, logger.DEBUG, cfg.Log.Level)
	assert.Equal(t, map[string]logger.LogLevel{"Pipeline": logger.WARN}, cfg.Log.Modules)
	assert.Equal(t, 20, cfg.Pipeline.OutputBufferSize)
	assert.Equal(t, 10*time.Millisecond, cfg.Pipeline.FrameInterval)
	assert.Equal(t, 0.5, cfg.Consensus.IoUThreshold)
	assert.Equal(t, ":9000", cfg.Monitor.Addr)
	assert.Equal(t, time.Second, cfg.StatsInterval)

	def := Default()
	assert.Equal(t, def.Pipeline.InputQueueSize, cfg.Pipeline.InputQueueSize)
	assert.Equal(t, def.Consensus.Boost, cfg.Consensus.Boost)
	if diff := cmp.Diff(def.Anomaly, cfg.Anomaly); diff != "" {
		t.Errorf("anomaly config changed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(def.Source, cfg.Source); diff != "" {
		t.Errorf("source config changed (-want +got):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "pipeline: [1, 2"))
		assert.ErrorContains(t, err, "failed to parse config")
	})

	t.Run("bad log level", func(t *testing.T) {
		_, err := Load(writeConfig(t, "log:\n  level: loud\n"))
		assert.ErrorContains(t, err, "invalid log level")
	})

	t.Run("invalid capacity", func(t *testing.T) {
		_, err := Load(writeConfig(t, "pipeline:\n  output_buffer_size: 0\n"))
		assert.ErrorIs(t, err, pipeline.ErrInvalidCapacity)
		assert.ErrorContains(t, err, "pipeline:")
	})
}

func TestValidateSource(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown kind",
			mutate:  func(c *Config) { c.Source.Kind = "camera" },
			wantErr: "source.kind",
		},
		{
			name:    "images without dir",
			mutate:  func(c *Config) { c.Source.Kind = SourceImages },
			wantErr: "source.image_dir",
		},
		{
			name: "images without size",
			mutate: func(c *Config) {
				c.Source.Kind = SourceImages
				c.Source.ImageDir = "/tmp/frames"
				c.Source.Width = 0
			},
			wantErr: "source.width",
		},
		{
			name:    "synthetic square too large",
			mutate:  func(c *Config) { c.Source.Synthetic.SquareSize = 1000 },
			wantErr: "source.synthetic",
		},
		{
			name:    "synthetic negative speed",
			mutate:  func(c *Config) { c.Source.Synthetic.Speed = -6 },
			wantErr: "source.synthetic: speed",
		},
		{
			name:    "consensus weights",
			mutate:  func(c *Config) { c.Consensus.MotionWeight = 0.9 },
			wantErr: "consensus:",
		},
		{
			name:    "stats interval",
			mutate:  func(c *Config) { c.StatsInterval = 0 },
			wantErr: "stats_interval",
		},
		{
			name: "images ok",
			mutate: func(c *Config) {
				c.Source.Kind = SourceImages
				c.Source.ImageDir = "/tmp/frames"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := Validate(&cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
