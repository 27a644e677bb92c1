package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// MetricsConfig configures the relay's meter provider. An empty
// OTLPEndpoint leaves the provider exporterless, so the gate and broadcast
// counters in relay/app record into a local-only pipeline.
type MetricsConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
}

// MetricsProvider owns the SDK meter provider so the lifecycle runner can
// flush it during drain.
type MetricsProvider struct {
	provider *sdkmetric.MeterProvider
}

// InitMetrics builds the meter provider and installs it as the global one,
// which is where the package-level counters in relay/app resolve from.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*MetricsProvider, error) {
	// Service attributes only; mixing in resource.Default() trips schema
	// version conflicts between semconv releases.
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	)

	var opts []sdkmetric.Option
	opts = append(opts, sdkmetric.WithResource(res))

	if cfg.OTLPEndpoint != "" {
		exporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create OTLP metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)))
	}

	provider := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(provider)

	return &MetricsProvider{provider: provider}, nil
}

// Shutdown flushes pending readings and stops the provider.
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	if mp.provider == nil {
		return nil
	}
	return mp.provider.Shutdown(ctx)
}

// Meter returns a meter scoped to the given instrumentation name.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}
