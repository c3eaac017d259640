package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/kvguard/internal/core/config"
	"github.com/vietddude/kvguard/internal/health"
	"github.com/vietddude/kvguard/internal/kv"
	"github.com/vietddude/kvguard/internal/kv/event"
	"github.com/vietddude/kvguard/internal/kv/metrics"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Optional .env for credentials referenced from the YAML
	_ = godotenv.Load()

	// Load Configuration first (before setting up logger)
	cfg, err := config.Load(*configPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if *isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(
		&tint.Options{
			Level:      slogLevel,
			TimeFormat: time.RFC3339,
		})
	slog.Info("Logger initialized", "level", slogLevel.String())

	// Build the store client
	clientCfg := cfg.Store.ClientConfig()
	clientCfg.Logger = slog.Default()
	client, err := kv.New(clientCfg)
	if err != nil {
		slog.Error("Failed to build store client", "error", err)
		os.Exit(1)
	}

	// Observers: structured log + Prometheus counters per lifecycle event
	logSub := client.OnEvent(func(ev event.Event) {
		switch ev.Type {
		case event.TypeConnectionFailed:
			slog.Warn("store connection failed", "endpoint", ev.Endpoint, "reason", ev.Reason)
		case event.TypeRetryExhausted:
			slog.Error("store operation gave up",
				"op", ev.Op, "attempts", ev.Attempts, "error", ev.Err)
		default:
			slog.Info("store connection event", "event", ev.Type.String(), "endpoint", ev.Endpoint)
		}
	})
	defer logSub.Close()
	metricsSub := client.OnEvent(metrics.Handler())
	defer metricsSub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS Signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Initial connect under the retry policy
	if err := client.Connect(ctx); err != nil {
		slog.Error("Failed to connect to store", "error", err)
		client.Shutdown()
		os.Exit(1)
	}

	// Health + metrics endpoint
	healthServer := health.NewServer(client, cfg.Server.Port)
	go func() {
		if err := healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Health server failed", "error", err)
		}
	}()
	slog.Info("Health server listening", "port", cfg.Server.Port)

	// Wait for Signal
	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := healthServer.Stop(shutdownCtx); err != nil {
		slog.Error("Error stopping health server", "error", err)
	}
	client.Shutdown()

	slog.Info("kvguard stopped gracefully")
}
