package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/evanofslack/dns-reconciler/config"
	"github.com/evanofslack/dns-reconciler/logger"
	"github.com/evanofslack/dns-reconciler/metrics"
	_ "github.com/evanofslack/dns-reconciler/plugins"
	"github.com/evanofslack/dns-reconciler/reconcile"
	"github.com/evanofslack/dns-reconciler/record"
	"github.com/evanofslack/dns-reconciler/registry"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logger.Configure(cfg.Log.Level, cfg.Log.Env)

	m := metrics.New(true)

	// Set up HTTP server for metrics and health checks
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: mux,
	}

	// Start http server in background
	go func() {
		slog.Info("Starting metrics server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Metrics server failed", "error", err)
		}
	}()

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Debug mode tolerates individual plugin construction failures.
	policy := registry.LoadPolicy{Strict: !cfg.Debug}
	providers, err := registry.Load(cfg.Plugins, cfg.PluginSettings, m, policy)
	if err != nil {
		slog.Error("Failed to load plugins", "error", err)
		os.Exit(1)
	}
	defer providers.Close()

	var orderInsensitive []record.Type
	for _, t := range cfg.Diff.OrderInsensitiveTypes {
		orderInsensitive = append(orderInsensitive, record.Type(t))
	}
	differ := reconcile.NewDiffer(orderInsensitive...)

	submitter := reconcile.NewSubmitter(reconcile.SubmitConfig{
		MaxAttempts:    cfg.Submit.MaxAttempts,
		InitialBackoff: cfg.Submit.InitialBackoff.Std(),
		MaxBackoff:     cfg.Submit.MaxBackoff.Std(),
		DryRun:         cfg.Submit.DryRun,
	}, m)

	scheduler := reconcile.NewScheduler(
		providers.Source,
		providers.SourceKey,
		providers.DNS,
		differ,
		submitter,
		m,
		reconcile.SchedulerConfig{
			Interval:     cfg.Interval.Std(),
			FetchTimeout: cfg.FetchTimeout.Std(),
			Zones:        cfg.Zones,
		},
		reconcile.LogReporter{},
		reconcile.MetricsReporter{Metrics: m},
	)

	slog.Info("Starting dns-reconciler service",
		"source", providers.SourceKey, "zones", cfg.Zones, "interval", cfg.Interval.Std().String())

	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Run(ctx)
	}()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("Shutdown signal received")
	cancel()

	// Shutdown server with same context
	serverShutdownCtx, cancelServer := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelServer()
	if err := server.Shutdown(serverShutdownCtx); err != nil {
		slog.Error("Metrics server shutdown error", "error", err)
	}

	// Wait for scheduler to finish
	wg.Wait()
	slog.Info("Service shutdown complete")
}
