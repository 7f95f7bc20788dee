package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const serviceName = "cosense"

// MetricsConfig enables export of the coordinator's OTel instruments.
type MetricsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Output   string        `mapstructure:"output"` // file path; empty writes to stderr
}

// newMeterProvider builds an SDK meter provider that periodically exports to w.
func newMeterProvider(ctx context.Context, cfg MetricsConfig, w io.Writer) (*sdkmetric.MeterProvider, error) {
	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	), nil
}

// setupMetrics installs the global meter provider when metrics are enabled.
// The returned function flushes and shuts it down; it is safe to call when
// metrics are disabled.
func setupMetrics(cfg *Config) func() {
	if !cfg.Metrics.Enabled {
		return func() {}
	}
	var w io.Writer = os.Stderr
	var file *os.File
	if cfg.Metrics.Output != "" {
		f, err := os.Create(cfg.Metrics.Output)
		if err != nil {
			logrus.Fatalf("Failed to open metrics output %s: %v", cfg.Metrics.Output, err)
		}
		w, file = f, f
	}
	mp, err := newMeterProvider(context.Background(), cfg.Metrics, w)
	if err != nil {
		logrus.Fatalf("Failed to set up metrics: %v", err)
	}
	otel.SetMeterProvider(mp)
	logrus.Infof("Exporting OTel metrics every %s", cfg.Metrics.Interval)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mp.Shutdown(ctx); err != nil {
			logrus.Warnf("Metrics shutdown: %v", err)
		}
		if file != nil {
			_ = file.Close()
		}
	}
}
