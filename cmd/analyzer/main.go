package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // Enable pprof
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/config"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/coordinator"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/pipeline"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/source"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/internal/webmonitor"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/analysis-pipeline/pkg/types"
)

var (
	// Command-line flags
	configPath  = flag.String("config", "", "YAML config file (defaults are used when empty)")
	frames      = flag.Int("frames", 0, "Number of synthetic frames (0 keeps the config value)")
	httpAddr    = flag.String("http", "", "Status server address (overrides config)")
	metricsAddr = flag.String("metrics", "", "Metrics server address (overrides config)")
	pprofAddr   = flag.String("pprof", "", "pprof server address (disabled when empty)")
	imageDir    = flag.String("images", "", "Analyze images from this directory instead of a synthetic scene")
	interval    = flag.Duration("interval", -1, "Pause between frames (overrides config)")
	logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error, silent)")
	logColor    = flag.Bool("log-color", true, "Enable colored log output")
)

// App wires the pipeline to its frame source and HTTP surfaces.
type App struct {
	cfg           *config.Config
	metrics       *metrics.Metrics
	coord         *coordinator.Coordinator
	pipeline      *pipeline.Pipeline
	source        source.Source
	monitor       *webmonitor.Server
	monitorServer *http.Server
	metricsServer *http.Server
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger.Init(cfg.Log.Level, os.Stderr, cfg.Log.Color)
	for module, level := range cfg.Log.Modules {
		logger.SetModuleLevel(module, level)
	}

	logger.Info("Main", "Analysis pipeline starting...")
	logger.Info("Main", "Log level: %s", cfg.Log.Level)

	app, err := NewApp(cfg)
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}

	if err := app.Start(); err != nil {
		log.Fatalf("Failed to start app: %v", err)
	}

	// Wait for shutdown signal or source exhaustion
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	app.Run(ctx)

	logger.Info("Main", "Shutting down...")
	if err := app.Shutdown(); err != nil {
		logger.Error("Main", "Error during shutdown: %v", err)
		os.Exit(1)
	}
	logger.Info("Main", "Analyzer stopped")
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	if *logLevel != "" {
		level, err := logger.ParseLevel(*logLevel)
		if err != nil {
			return nil, err
		}
		cfg.Log.Level = level
	}
	colorSet := false
	flag.Visit(func(f *flag.Flag) {
		colorSet = colorSet || f.Name == "log-color"
	})
	if colorSet || *configPath == "" {
		cfg.Log.Color = *logColor
	}
	if *frames > 0 {
		cfg.Source.Synthetic.Frames = *frames
	}
	if *httpAddr != "" {
		cfg.Monitor.Addr = *httpAddr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *imageDir != "" {
		cfg.Source.Kind = config.SourceImages
		cfg.Source.ImageDir = *imageDir
	}
	if *interval >= 0 {
		cfg.Pipeline.FrameInterval = *interval
	}

	if err := config.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// NewApp builds every component from cfg.
func NewApp(cfg *config.Config) (*App, error) {
	m := metrics.New()

	coord := coordinator.NewDefault(cfg.Coordinator, cfg.Extractor, cfg.Motion, cfg.Anomaly, cfg.Consensus)
	report, err := coord.Initialize()
	for _, stage := range types.Stages {
		stageErr, ok := report.Errors[stage]
		if !ok {
			continue
		}
		if stageErr != nil {
			logger.Error("Main", "  %s: failed: %v", stage, stageErr)
		} else {
			logger.Info("Main", "  %s: ready", stage)
		}
	}
	logger.Info("Main", "Analyzers initialized: %d/%d", report.Succeeded, report.Total)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize analyzers: %w", err)
	}

	p, err := pipeline.New(cfg.Pipeline, coord, pipeline.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := newSource(cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to create frame source: %w", err)
	}

	monitor := webmonitor.NewServer(cfg.Monitor, p)

	app := &App{
		cfg:      cfg,
		metrics:  m,
		coord:    coord,
		pipeline: p,
		source:   src,
		monitor:  monitor,
		monitorServer: &http.Server{
			Addr:    cfg.Monitor.Addr,
			Handler: monitor.Handler(),
		},
	}
	if cfg.MetricsAddr != "" {
		app.metricsServer = m.NewServer(cfg.MetricsAddr)
	}
	return app, nil
}

func newSource(cfg config.SourceConfig) (source.Source, error) {
	switch cfg.Kind {
	case config.SourceImages:
		images, err := source.LoadDir(cfg.ImageDir)
		if err != nil {
			return nil, err
		}
		logger.Info("Main", "Loaded %d images from %s", len(images), cfg.ImageDir)
		return source.NewImages(images, cfg.Width, cfg.Height, time.Now(), cfg.Synthetic.Interval)
	default:
		return source.NewSynthetic(cfg.Synthetic, time.Now())
	}
}

// Start starts the servers and the pipeline worker
func (a *App) Start() error {
	logger.Info("Main", "Starting analysis pipeline...")
	logger.Info("Main", "  Source: %s", a.cfg.Source.Kind)
	logger.Info("Main", "  Status server: %s", a.cfg.Monitor.Addr)
	logger.Info("Main", "  Metrics server: %s", a.cfg.MetricsAddr)
	logger.Info("Main", "  Output buffer: %d", a.cfg.Pipeline.OutputBufferSize)

	if *pprofAddr != "" {
		go func() {
			logger.Info("Main", "Starting pprof server on %s", *pprofAddr)
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				logger.Warn("Main", "pprof server error: %v", err)
			}
		}()
	}

	if a.metricsServer != nil {
		go func() {
			logger.Info("Main", "Starting metrics server on %s", a.metricsServer.Addr)
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Main", "Metrics server error: %v", err)
			}
		}()
	}

	a.monitor.Start()
	go func() {
		logger.Info("Main", "Starting status server on %s", a.monitorServer.Addr)
		if err := a.monitorServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Main", "Status server error: %v", err)
		}
	}()

	if err := a.pipeline.Start(a.source); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	logger.Info("Main", "Pipeline started (run %s)", a.pipeline.RunID())
	return nil
}

// Run logs stats periodically until ctx is done or the source is exhausted.
func (a *App) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.pipeline.Wait(ctx); err == nil {
			logger.Info("Main", "Frame source exhausted")
		}
	}()

	ticker := time.NewTicker(a.cfg.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			a.logStats()
			return
		case <-ticker.C:
			a.logStats()
		}
	}
}

func (a *App) logStats() {
	st := a.pipeline.Stats()

	detections, alerts := 0, 0
	for _, r := range a.pipeline.GetRecent(5) {
		detections += len(r.Detections)
		alerts += len(r.Alerts)
	}

	logger.Info("Stats", "frames=%d fps=%.1f avg=%.2fms buffered=%d/%d evicted=%d recent_detections=%d recent_alerts=%d",
		st.TotalFrames, st.FramesPerSecond, st.AvgProcessingTimeMs,
		st.Buffered, st.BufferCapacity, st.Evicted, detections, alerts)
	for _, stage := range types.Stages {
		if as, ok := st.Analyzers[stage]; ok {
			logger.Debug("Stats", "  %s: avg=%.2fms calls=%d failures=%d",
				stage, as.AvgProcessingTimeMs, as.CallCount, as.Failures)
		}
	}
	logger.Debug("Stats", "anomaly=%.3f consensus=%.3f", a.metrics.AnomalyScore(), a.metrics.ConsensusConfidence())
}

// Shutdown stops the worker first, then the HTTP surfaces.
func (a *App) Shutdown() error {
	var errs []error

	if err := a.pipeline.Stop(a.cfg.Pipeline.StopTimeout); err != nil && !errors.Is(err, pipeline.ErrNotRunning) {
		errs = append(errs, fmt.Errorf("pipeline: %w", err))
	}

	a.monitor.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.monitorServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("status server: %w", err))
	}
	if a.metricsServer != nil {
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}

	return errors.Join(errs...)
}
