// Package main runs the governance assessment HTTP server.
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

	"github.com/golang/glog"
	"github.com/spf13/pflag"

	"github.com/governance-platform/assessment/internal/logging"
	"github.com/governance-platform/assessment/pkg/assessment"
	"github.com/governance-platform/assessment/pkg/audit"
	"github.com/governance-platform/assessment/pkg/cache"
	"github.com/governance-platform/assessment/pkg/config"
	"github.com/governance-platform/assessment/pkg/observability"
	"github.com/governance-platform/assessment/pkg/server"
	"github.com/governance-platform/assessment/pkg/storage"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	config.RegisterFlags(pflag.CommandLine)
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()

	// Initialize glog for backwards compatibility
	_ = flag.Set("logtostderr", "true")

	cfg, err := config.Load(pflag.CommandLine)
	if err != nil {
		glog.Fatalf("Failed to load config: %v", err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		glog.Fatalf("Invalid log level: %v", err)
	}
	logging.Init(level, cfg.Log.Format)
	logger := slog.Default()

	logger.Info("starting assessment server",
		"version", version,
		"listen", cfg.Server.Listen,
		"storage", cfg.Storage.Backend,
		"auth", cfg.Auth.Mode,
	)
	for _, w := range cfg.Warnings() {
		logger.Warn("insecure configuration", "detail", w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	telemetry, err := observability.Setup(ctx, observability.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Interval:       cfg.Telemetry.Interval,
	}, logging.New("observability"))
	if err != nil {
		glog.Fatalf("Failed to set up telemetry: %v", err)
	}

	deps, err := wire(ctx, cfg, logger)
	if err != nil {
		glog.Fatalf("Failed to initialize storage: %v", err)
	}
	defer deps.close()

	catalog, err := loadCatalog(cfg.Catalog.Path)
	if err != nil {
		glog.Fatalf("Failed to load criteria catalog: %v", err)
	}
	logger.Info("loaded criteria catalog",
		"version", catalog.Version().String(),
		"principles", len(catalog.ListPrinciples()),
		"criteria", catalog.TotalCriterionCount(),
	)

	svcOpts := []assessment.Option{
		assessment.WithPolicy(policy(cfg)),
		assessment.WithLogger(logging.New("assessment")),
		assessment.WithMeter(telemetry.Meter("assessment")),
	}
	var serverOpts []server.Option
	if deps.auditStore != nil {
		auditCfg := &audit.Config{
			Enabled:       cfg.Audit.Enabled,
			RetentionDays: cfg.Audit.RetentionDays,
			LogDenied:     cfg.Audit.LogDenied,
		}
		svcOpts = append(svcOpts, assessment.WithAuditStore(deps.auditStore, auditCfg))
		serverOpts = append(serverOpts, server.WithAuditStore(deps.auditStore))
	}

	svc, err := assessment.New(storage.NewRepository(deps.backend,
		storage.WithKeyPrefix(cfg.Storage.KeyPrefix),
		storage.WithLogger(logging.New("storage")),
	), catalog, svcOpts...)
	if err != nil {
		glog.Fatalf("Failed to create assessment service: %v", err)
	}
	if deps.auditStore != nil && cfg.Audit.RetentionDays > 0 {
		worker := audit.NewRetentionWorker(deps.auditStore, svc, cfg.Audit.RetentionDays, logging.New("audit-retention"))
		go worker.Run(ctx)
	}

	extract, err := extractor(cfg)
	if err != nil {
		glog.Fatalf("Failed to configure authentication: %v", err)
	}

	httpMetrics, err := observability.NewHTTPMetrics(telemetry.Meter("http"))
	if err != nil {
		glog.Fatalf("Failed to create HTTP metrics: %v", err)
	}

	serverOpts = append(serverOpts,
		server.WithExtractor(extract),
		server.WithCache(cache.New(cfg.Cache)),
		server.WithHTTPMetrics(httpMetrics),
		server.WithCORSOrigins(cfg.Server.CORSOrigins),
		server.WithLogger(logging.New("server")),
	)
	srv := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: server.New(svc, serverOpts...).Routes(),
	}

	go func() {
		logger.Info("listening", "addr", cfg.Server.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
