package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

const (
	defaultMetricInterval = 30 * time.Second
	defaultBatchTimeout   = 5 * time.Second
)

// Config selects what gets exported. Endpoints and headers come from the
// standard OTEL_EXPORTER_OTLP_* environment variables.
type Config struct {
	ServiceName string
	Version     string
	// Component is "cli" or "api"; recorded as fitout.component on every span and metric.
	Component string
	// SampleRatio below 1 samples root spans by trace ID. Zero means sample everything.
	SampleRatio    float64
	MetricInterval time.Duration
	DisableMetrics bool
}

func (c Config) withDefaults() Config {
	if c.MetricInterval <= 0 {
		c.MetricInterval = defaultMetricInterval
	}
	if c.SampleRatio <= 0 || c.SampleRatio > 1 {
		c.SampleRatio = 1
	}
	return c
}

func (c Config) sampler() sdktrace.Sampler {
	if c.SampleRatio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
}

// Providers holds the installed SDK providers. Either may be nil when its
// exporter could not be created.
type Providers struct {
	tracer *sdktrace.TracerProvider
	meter  *sdkmetric.MeterProvider
}

// Start installs global trace and meter providers plus the W3C propagators
// used by the client transport. Exporter failures are logged and that signal
// is left on the no-op provider; only a bad resource is fatal.
func Start(ctx context.Context, cfg Config) (*Providers, error) {
	cfg = cfg.withDefaults()
	log := zerolog.Ctx(ctx)

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	p := &Providers{}

	traceExporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Trace exporter unavailable, spans will be dropped")
	} else {
		p.tracer = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(defaultBatchTimeout)),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(cfg.sampler()),
		)
		otel.SetTracerProvider(p.tracer)
	}

	if !cfg.DisableMetrics {
		metricExporter, err := otlpmetricgrpc.New(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Metric exporter unavailable, session metrics will not be exported")
		} else {
			p.meter = sdkmetric.NewMeterProvider(
				sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(cfg.MetricInterval))),
				sdkmetric.WithResource(res),
			)
			otel.SetMeterProvider(p.meter)
		}
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info().
		Str("service", cfg.ServiceName).
		Str("component", cfg.Component).
		Bool("traces", p.tracer != nil).
		Bool("metrics", p.meter != nil).
		Msg("Telemetry started")

	return p, nil
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.Version),
	}
	if cfg.Component != "" {
		attrs = append(attrs, attribute.String("fitout.component", cfg.Component))
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry resource: %w", err)
	}
	return res, nil
}

// Shutdown flushes pending spans and metrics. Safe on a nil receiver.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}

	var errs []error
	if p.tracer != nil {
		if err := p.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace shutdown: %w", err))
		}
	}
	if p.meter != nil {
		if err := p.meter.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metric shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
