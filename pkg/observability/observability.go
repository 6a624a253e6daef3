// Package observability sets up the OpenTelemetry meter provider and the
// HTTP request metrics of the assessment server.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config configures metric export.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// Endpoint is the OTLP gRPC collector address, e.g. "localhost:4317".
	// Export is disabled when empty.
	Endpoint string
	Insecure bool
	// Interval between exports. Default one minute.
	Interval time.Duration
}

// Provider owns the meter provider installed by Setup.
type Provider struct {
	meterProvider metric.MeterProvider
	shutdown      func(context.Context) error
}

// MeterProvider returns the installed provider.
func (p *Provider) MeterProvider() metric.MeterProvider {
	return p.meterProvider
}

// Meter returns a named meter from the installed provider.
func (p *Provider) Meter(name string) metric.Meter {
	return p.meterProvider.Meter(name)
}

// Shutdown flushes pending metrics and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

// Setup builds a meter provider exporting over OTLP gRPC and installs it as
// the global provider. Without an endpoint a noop provider is installed.
func Setup(ctx context.Context, cfg Config, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "observability")

	if cfg.Endpoint == "" {
		p := &Provider{meterProvider: noop.NewMeterProvider()}
		otel.SetMeterProvider(p.meterProvider)
		logger.InfoContext(ctx, "metric export disabled")
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(mp)

	logger.InfoContext(ctx, "metric export enabled",
		"endpoint", cfg.Endpoint, "interval", interval, "insecure", cfg.Insecure)
	return &Provider{meterProvider: mp, shutdown: mp.Shutdown}, nil
}
