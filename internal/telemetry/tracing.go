// Package telemetry installs the process-wide OpenTelemetry providers.
package telemetry

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type Config struct {
	Enabled        bool
	MetricsEnabled bool
	ServiceName    string
	// Writer receives exported spans and metrics; stdout when nil
	Writer         io.Writer
}

// ShutdownFunc flushes and stops everything Setup installed
type ShutdownFunc func(context.Context) error

// Setup installs a propagator and, when enabled, a batching tracer provider
// and a periodic meter provider exporting to cfg.Writer. Disabled signals
// keep the global no-op providers.
func Setup(ctx context.Context, cfg Config) (ShutdownFunc, error) {
	var shutdownFuncs []func(context.Context) error

	shutdown := func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if cfg.Enabled {
		tp, err := newTracerProvider(cfg)
		if err != nil {
			return nil, errors.Join(err, shutdown(ctx))
		}
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
		otel.SetTracerProvider(tp)
	}

	if cfg.MetricsEnabled {
		mp, err := newMeterProvider(cfg)
		if err != nil {
			return nil, errors.Join(err, shutdown(ctx))
		}
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
		otel.SetMeterProvider(mp)
	}

	return shutdown, nil
}

func writer(cfg Config) io.Writer {
	if cfg.Writer == nil {
		return os.Stdout
	}
	return cfg.Writer
}

func serviceResource(cfg Config) *resource.Resource {
	name := cfg.ServiceName
	if name == "" {
		name = "swapd"
	}
	return resource.NewSchemaless(attribute.String("service.name", name))
}

func newTracerProvider(cfg Config) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(writer(cfg)))
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(serviceResource(cfg)),
	), nil
}

func newMeterProvider(cfg Config) (*sdkmetric.MeterProvider, error) {
	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(writer(cfg)))
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(time.Minute))),
		sdkmetric.WithResource(serviceResource(cfg)),
	), nil
}
