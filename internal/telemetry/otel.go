package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const serviceName = "marketd"

// InitOtelSDK registers a global meter provider that pushes metrics to the given collector
// every pushInterval. The returned func flushes and stops it.
func InitOtelSDK(
	ctx context.Context, collectorEndpoint string, pushInterval time.Duration,
) (func(context.Context) error, error) {
	opts, err := exporterOptions(collectorEndpoint)
	if err != nil {
		return nil, err
	}
	if pushInterval <= 0 {
		return nil, fmt.Errorf("invalid push interval %s", pushInterval)
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create otel resource: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(pushInterval)),
		),
	)
	otel.SetMeterProvider(meterProvider)
	log.Debugf("pushing metrics to %s every %s", collectorEndpoint, pushInterval)

	return meterProvider.Shutdown, nil
}

// exporterOptions accepts either a bare host:port or a full http(s) url.
func exporterOptions(endpoint string) ([]otlpmetrichttp.Option, error) {
	if len(endpoint) <= 0 {
		return nil, fmt.Errorf("missing collector endpoint")
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		}, nil
	}

	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(u.Host)}
	switch u.Scheme {
	case "http":
		opts = append(opts, otlpmetrichttp.WithInsecure())
	case "https":
	default:
		return nil, fmt.Errorf("unsupported collector endpoint scheme %s", u.Scheme)
	}
	if len(u.Path) > 0 && u.Path != "/" {
		opts = append(opts, otlpmetrichttp.WithURLPath(u.Path))
	}
	return opts, nil
}
