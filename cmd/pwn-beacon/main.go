package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dbehnke/pwn-beacon/pkg/beacon"
	"github.com/dbehnke/pwn-beacon/pkg/config"
	"github.com/dbehnke/pwn-beacon/pkg/face"
	"github.com/dbehnke/pwn-beacon/pkg/logger"
	"github.com/dbehnke/pwn-beacon/pkg/metrics"
	"github.com/dbehnke/pwn-beacon/pkg/radio"
	"github.com/dbehnke/pwn-beacon/pkg/stats"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	pwnConfig := flag.String("pwnagotchi-config", "", "Path to a pwnagotchi config.toml whose ble_beacon plugin options override the beacon section")
	showVersion := flag.Bool("version", false, "Show version information")
	validate := flag.Bool("validate", false, "Validate configuration and exit")
	printConfig := flag.Bool("print-config", false, "Print the effective configuration as YAML and exit")
	dryRun := flag.Bool("dry-run", false, "Log advertising frames instead of driving hcitool")
	flag.Parse()

	if *showVersion {
		fmt.Printf("pwn-beacon %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	// bootstrap logger until the configured one is available
	log := logger.New(logger.Config{Level: "info", Format: "text"})

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Error("Failed to load configuration", logger.Error(err))
		os.Exit(1)
	}

	if *pwnConfig != "" {
		enabled, err := config.PwnagotchiPluginEnabled(*pwnConfig)
		if err != nil {
			log.Error("Failed to read pwnagotchi configuration", logger.Error(err))
			os.Exit(1)
		}
		if !enabled {
			log.Warn("ble_beacon plugin is not enabled in pwnagotchi config, using its options anyway",
				logger.String("path", *pwnConfig))
		}
		if err := config.ApplyPwnagotchiConfig(*pwnConfig, &cfg.Beacon); err != nil {
			log.Error("Failed to apply pwnagotchi configuration", logger.Error(err))
			os.Exit(1)
		}
	}
	if *dryRun {
		cfg.Beacon.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		log.Error("Invalid configuration", logger.Error(err))
		os.Exit(1)
	}

	if *validate {
		log.Info("Configuration is valid")
		os.Exit(0)
	}

	if *printConfig {
		out, err := cfg.YAML()
		if err != nil {
			log.Error("Failed to render configuration", logger.Error(err))
			os.Exit(1)
		}
		fmt.Print(string(out))
		os.Exit(0)
	}

	log = logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	defer func() { _ = log.Sync() }()

	log.Info("Starting pwn-beacon",
		logger.String("version", version),
		logger.String("build_time", buildTime))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	metricsCollector := metrics.NewCollector()

	if cfg.Metrics.Enabled && cfg.Metrics.Prometheus.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metricsServer := metrics.NewPrometheusServer(
				metrics.PrometheusConfig{
					Enabled: cfg.Metrics.Prometheus.Enabled,
					Port:    cfg.Metrics.Prometheus.Port,
					Path:    cfg.Metrics.Prometheus.Path,
				},
				metricsCollector,
				log,
			)
			if err := metricsServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Prometheus metrics server error", logger.Error(err))
			}
		}()
	}

	source := stats.NewFileSource(stats.FileConfig{
		AgeFile:             cfg.Beacon.Stats.AgeFile,
		TravelerFile:        cfg.Beacon.Stats.TravelerFile,
		CPUTempFile:         cfg.Beacon.Stats.CPUTempFile,
		BatteryCapacityFile: cfg.Beacon.Stats.BatteryCapacityFile,
		BatteryStatusFile:   cfg.Beacon.Stats.BatteryStatusFile,
		FaceFile:            cfg.Beacon.Stats.FaceFile,
	}, &face.Tracker{}, log)

	var ctrl radio.Controller
	if cfg.Beacon.DryRun {
		log.Info("Dry run: advertising frames are logged, not transmitted")
		ctrl = radio.NewLogController(log)
	} else {
		ctrl = radio.NewHCITool(radio.HCIToolConfig{
			Path:    cfg.Beacon.HCIToolPath,
			Device:  cfg.Beacon.HCIDevice,
			Timeout: cfg.Beacon.CommandTimeout,
		}, nil, log)
	}

	b, err := beacon.New(beacon.Config{
		Interval:   cfg.Beacon.Interval,
		Version:    uint8(cfg.Beacon.Version),
		CompanyID:  uint16(cfg.Beacon.CompanyID),
		Parameters: radio.DefaultAdvertisingParameters().WithInterval(time.Duration(cfg.Beacon.AdvIntervalMS) * time.Millisecond),
	}, source, ctrl, metricsCollector, log)
	if err != nil {
		log.Error("Failed to create beacon", logger.Error(err))
		os.Exit(1)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := b.Start(ctx); err != nil {
			log.Error("Beacon error", logger.Error(err))
		}
	}()

	sig := <-sigChan
	log.Info("Received shutdown signal",
		logger.String("signal", sig.String()))

	cancel()
	wg.Wait()

	log.Info("pwn-beacon stopped")
}
