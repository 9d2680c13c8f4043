// Package telemetry owns the process-wide OpenTelemetry TracerProvider and
// MeterProvider and hands out named Meter/Tracer instances to the rest of
// the tree. Grounded on internal/compact/haiku.go's telemetry.Meter(name)
// / telemetry.Tracer(name) call sites, which reference a package the
// retrieval pack never shipped; this reconstructs it from those call sites
// plus the stdout exporters already required for local/dev use.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

var (
	initOnce sync.Once
	tp       *sdktrace.TracerProvider
	mp       *sdkmetric.MeterProvider
)

// Init installs global Tracer/Meter providers backed by stdout exporters,
// tagged with serviceName. Safe to call more than once; only the first
// call takes effect. Call Shutdown before process exit to flush exporters.
func Init(serviceName string) error {
	var initErr error
	initOnce.Do(func() {
		res, err := resource.New(context.Background(),
			resource.WithAttributes(attribute.String("service.name", serviceName)),
		)
		if err != nil {
			initErr = fmt.Errorf("telemetry: build resource: %w", err)
			return
		}

		traceExp, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
		if err != nil {
			initErr = fmt.Errorf("telemetry: create trace exporter: %w", err)
			return
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExp),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)

		metricExp, err := stdoutmetric.New()
		if err != nil {
			initErr = fmt.Errorf("telemetry: create metric exporter: %w", err)
			return
		}
		mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
	})
	return initErr
}

// Shutdown flushes and stops the installed providers. A no-op if Init was
// never called.
func Shutdown(ctx context.Context) error {
	if tp != nil {
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("telemetry: shutdown tracer provider: %w", err)
		}
	}
	if mp != nil {
		if err := mp.Shutdown(ctx); err != nil {
			return fmt.Errorf("telemetry: shutdown meter provider: %w", err)
		}
	}
	return nil
}

// Tracer returns a named tracer from the global TracerProvider. Usable
// before Init: the global provider defaults to a no-op implementation.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// Meter returns a named meter from the global MeterProvider. Usable before
// Init: the global provider defaults to a no-op implementation.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}
