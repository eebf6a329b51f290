package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DaviBaechtold/voice-assistant-arduino/internal/capture"
	"github.com/DaviBaechtold/voice-assistant-arduino/internal/config"
	"github.com/DaviBaechtold/voice-assistant-arduino/internal/link"
	"github.com/DaviBaechtold/voice-assistant-arduino/internal/metrics"
	"github.com/DaviBaechtold/voice-assistant-arduino/internal/node"
	"github.com/DaviBaechtold/voice-assistant-arduino/internal/transport"
)

const (
	defaultConfigPath = "configs/driver.yaml"
	serviceName       = "voice-node"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadNode(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("device_id", int(cfg.Node.DeviceID)),
		slog.Int("local_port", cfg.Node.LocalPort),
		slog.String("collector", fmt.Sprintf("%s:%d", cfg.Node.CollectorAddress, cfg.Node.CollectorPort)),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("frame_samples", cfg.Audio.FrameSamples),
		slog.Uint64("energy_threshold", uint64(cfg.VAD.EnergyThreshold)),
		slog.String("log_level", cfg.Logging.Level),
	)

	appMetrics := metrics.NewNodeMetrics()
	logger.Info("Prometheus metrics initialized")

	sender := transport.NewUDPSender(cfg.Node.LocalPort, cfg.Node.CollectorAddress, cfg.Node.CollectorPort)

	// Zero values in the link section keep the defaults.
	linkCfg := link.DefaultConfig()
	if cfg.Link.InitialBackoffMs > 0 {
		linkCfg.InitialBackoff = cfg.Link.GetInitialBackoff()
	}
	if cfg.Link.MaxBackoffMs > 0 {
		linkCfg.MaxBackoff = cfg.Link.GetMaxBackoff()
	}
	if cfg.Link.MaxRetries > 0 {
		linkCfg.MaxRetries = cfg.Link.MaxRetries
	}
	monitor, err := link.NewMonitor(sender, linkCfg, logger)
	if err != nil {
		logger.Error("Failed to create link monitor", slog.String("error", err.Error()))
		os.Exit(1)
	}

	source := capture.NewMicrophone(cfg.Audio.SampleRate, cfg.Audio.FrameSamples, logger)

	n, err := node.New(cfg, source, sender, monitor, appMetrics, logger)
	if err != nil {
		logger.Error("Failed to create node", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Metrics endpoint; the node has no other HTTP surface.
	var httpServer *http.Server
	if cfg.HTTP.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		httpServer = &http.Server{
			Addr:        fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port),
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("Metrics server started", slog.String("address", httpServer.Addr))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server error", slog.String("error", err.Error()))
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	if err := n.Run(ctx); err != nil {
		logger.Error("Node failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error stopping metrics server", slog.String("error", err.Error()))
		}
	}

	if err := sender.Close(); err != nil {
		logger.Error("Error closing link", slog.String("error", err.Error()))
	}

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
