package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dbehnke/pwn-beacon/pkg/config"
	"github.com/dbehnke/pwn-beacon/pkg/database"
	"github.com/dbehnke/pwn-beacon/pkg/logger"
	"github.com/dbehnke/pwn-beacon/pkg/metrics"
	"github.com/dbehnke/pwn-beacon/pkg/mqtt"
	"github.com/dbehnke/pwn-beacon/pkg/protocol"
	"github.com/dbehnke/pwn-beacon/pkg/scanner"
	"github.com/dbehnke/pwn-beacon/pkg/web"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validate := flag.Bool("validate", false, "Validate configuration and exit")
	printConfig := flag.Bool("print-config", false, "Print the effective configuration as YAML and exit")
	decodeHex := flag.String("decode", "", "Decode one manufacturer payload given as hex, print it as JSON and exit")
	hashPassword := flag.String("hash-password", "", "Print a bcrypt hash for web.password_hash and exit")
	input := flag.String("input", "", "Advert lines to ingest, - for stdin (overrides scanner.input)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("pwn-scanner %s (commit %s, built %s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	if *decodeHex != "" {
		os.Exit(runDecode(*decodeHex))
	}

	log := logger.New(logger.Config{Level: "info", Format: "text"})

	if *hashPassword != "" {
		hash, err := web.HashPassword(*hashPassword)
		if err != nil {
			log.Error("Failed to hash password", logger.Error(err))
			os.Exit(1)
		}
		fmt.Println(hash)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Error("Failed to load configuration", logger.Error(err))
		os.Exit(1)
	}
	if *input != "" {
		cfg.Scanner.Input = *input
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

	log.Info("Starting pwn-scanner",
		logger.String("version", version),
		logger.String("build_time", buildTime))
	web.SetVersionInfo(version, commit, buildTime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	metricsCollector := metrics.NewCollector()

	processor := scanner.NewProcessor(scanner.Config{
		CompanyID:  uint16(cfg.Scanner.CompanyID),
		StaleAfter: cfg.Scanner.StaleAfter,
	}, metricsCollector, log)

	deps := web.Dependencies{Devices: processor, Metrics: metricsCollector}

	if cfg.Database.Enabled {
		db, err := database.NewDB(database.Config{Path: cfg.Database.Path}, log)
		if err != nil {
			log.Error("Failed to open database", logger.Error(err))
			os.Exit(1)
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Warn("Failed to close database", logger.Error(err))
			}
		}()

		repo := db.Sightings()
		processor.AddSink(repo)
		deps.Store = repo

		pruner := database.NewPruner(repo, cfg.Database.Retention, cfg.Database.PruneInterval, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			pruner.Start(ctx)
		}()
	}

	var mqttPublisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		mqttPublisher = mqtt.New(
			mqtt.Config{
				Enabled:     cfg.MQTT.Enabled,
				Broker:      cfg.MQTT.Broker,
				TopicPrefix: cfg.MQTT.TopicPrefix,
				ClientID:    cfg.MQTT.ClientID,
				Username:    cfg.MQTT.Username,
				Password:    cfg.MQTT.Password,
				QoS:         cfg.MQTT.QoS,
				Retained:    cfg.MQTT.Retained,
			},
			log,
		)
		// a broker that is down at startup is not fatal; state is published
		// once a later connect succeeds
		if err := mqttPublisher.Start(ctx); err != nil {
			log.Error("MQTT publisher error", logger.Error(err))
		}
		processor.AddSink(mqttPublisher)
	}

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

	if cfg.Web.Enabled {
		srv := web.NewServer(cfg.Web, deps, log)
		processor.AddSink(srv.GetHub())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Web server error", logger.Error(err))
			}
		}()
	}

	if cfg.Scanner.Input != "" {
		r, closeInput, err := openInput(cfg.Scanner.Input)
		if err != nil {
			log.Error("Failed to open advert input", logger.Error(err))
			os.Exit(1)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer closeInput()
			err := scanner.ReadLines(ctx, r, processor)
			switch {
			case errors.Is(err, context.Canceled):
				log.Info("Advert ingest stopped",
					logger.String("input", cfg.Scanner.Input),
					logger.Int("devices", processor.DeviceCount()))
			case err != nil:
				log.Error("Advert ingest failed", logger.Error(err))
			default:
				log.Info("Advert input exhausted",
					logger.String("input", cfg.Scanner.Input),
					logger.Int("devices", processor.DeviceCount()))
			}
		}()
	}

	sig := <-sigChan
	log.Info("Received shutdown signal",
		logger.String("signal", sig.String()))

	cancel()

	if mqttPublisher != nil {
		mqttPublisher.Stop()
	}

	wg.Wait()

	log.Info("pwn-scanner stopped")
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func runDecode(payloadHex string) int {
	reading, err := protocol.DecodeHex(payloadHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode: %v\n", err)
		return 1
	}
	if reading.Empty() {
		fmt.Fprintln(os.Stderr, "decode: payload matches no known layout")
		return 1
	}

	out, err := json.MarshalIndent(reading.Map(), "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode: %v\n", err)
		return 1
	}
	fmt.Println(string(out))
	return 0
}
