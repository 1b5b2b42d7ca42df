package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/scriptify-cm/event-qr-platform/internal/di"
	"github.com/scriptify-cm/event-qr-platform/internal/worker"
	"github.com/scriptify-cm/event-qr-platform/pkg/config"
	"github.com/scriptify-cm/event-qr-platform/pkg/logger"
	"github.com/scriptify-cm/event-qr-platform/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	flagSet := pflag.NewFlagSet("expiry-worker", pflag.ContinueOnError)
	interval := flagSet.Duration("interval", cfg.Worker.Interval, "time between sweeps")
	batch := flagSet.Int("batch", cfg.Worker.BatchSize, "tickets expired per round")
	once := flagSet.Bool("once", false, "run a single sweep and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("Invalid flags: %v", err)
	}

	// Initialize logger
	if err := logger.Init(&logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: "expiry-worker",
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting Expiry Worker...")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    "expiry-worker",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn("Tracing disabled", zap.Error(err))
	}
	defer telemetry.Shutdown(context.Background())

	container, err := di.Build(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to build container: %v", err))
	}
	defer container.Close()

	expiryWorker := worker.NewExpiryWorker(container.ValidationService, &worker.ExpiryWorkerConfig{
		ScanInterval: *interval,
		BatchSize:    *batch,
	})

	if *once {
		n := expiryWorker.RunOnce(ctx)
		appLog.Info("Single sweep finished", zap.Int("expired", n))
		return
	}

	if err := expiryWorker.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start worker: %v", err))
	}

	<-ctx.Done()
	appLog.Info("Shutting down worker...")
	expiryWorker.Stop()

	stats := expiryWorker.GetStats()
	appLog.Info("Expiry worker exited",
		zap.Int64("total_expired", stats.TotalExpired),
		zap.Int64("total_scans", stats.TotalScans),
	)
}
