// Package telemetry sets up OpenTelemetry tracing for the demo.
package telemetry

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/johnsiilver/asrpipe/internal/logger"
)

// InitTracer installs a global TracerProvider that pretty prints finished spans to w. Call the
// returned func before exiting to flush them.
func InitTracer(serviceName string, w io.Writer, log *logger.Logger) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		// Runs are short, so spans are exported as they end rather than batched.
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	log.WithField("service", serviceName).Debug("OpenTelemetry initialized")

	return tp.Shutdown, nil
}
