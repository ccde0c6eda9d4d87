// Package telemetry installs the otel meter provider the sync engine records
// into and wires it to an exporter.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/papercomputeco/strata/pkg/utils"
)

const (
	// ServiceName is reported as the service.name resource attribute.
	ServiceName = "strata"

	DefaultInterval = 30 * time.Second

	shutdownTimeout = 5 * time.Second
)

// Config selects and configures the exporter.
type Config struct {
	// Exporter is "otlp" or "stdout".
	Exporter string

	// Endpoint is the OTLP/HTTP collector URL. Empty uses the
	// OTEL_EXPORTER_OTLP_* environment or the exporter default.
	Endpoint string

	// Interval between exports. Zero means DefaultInterval.
	Interval time.Duration

	// Instance is reported as service.instance.id.
	Instance string

	// Writer receives stdout exports. Defaults to os.Stdout.
	Writer io.Writer
}

// Provider owns a meter provider and its exporter.
type Provider struct {
	provider *sdkmetric.MeterProvider
}

// New builds a Provider exporting on the configured interval.
func New(ctx context.Context, c Config) (*Provider, error) {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}

	exporter, err := newExporter(ctx, c)
	if err != nil {
		return nil, err
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.instance.id", c.Instance),
		attribute.String("service.version", utils.Version),
	)

	return &Provider{
		provider: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(c.Interval))),
		),
	}, nil
}

func newExporter(ctx context.Context, c Config) (sdkmetric.Exporter, error) {
	switch c.Exporter {
	case "otlp":
		var opts []otlpmetrichttp.Option
		if c.Endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpointURL(c.Endpoint))
		}
		exporter, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("creating otlp metric exporter: %w", err)
		}
		return exporter, nil

	case "stdout":
		w := c.Writer
		if w == nil {
			w = os.Stdout
		}
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("creating stdout metric exporter: %w", err)
		}
		return exporter, nil

	case "", "none":
		return nil, errors.New("no metric exporter configured")

	default:
		return nil, fmt.Errorf("unsupported metric exporter: %s", c.Exporter)
	}
}

// Meter returns a named meter from the provider.
func (p *Provider) Meter(name string) metric.Meter {
	return p.provider.Meter(name)
}

// Close exports whatever is left and shuts the exporter down.
func (p *Provider) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return p.provider.Shutdown(ctx)
}
