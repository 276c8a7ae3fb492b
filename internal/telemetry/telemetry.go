// Package telemetry wraps OpenTelemetry tracing for the extractor: one
// span per config group batch (an orchestrator LoadConfig call) and one
// span per manifest item decode, exported to stdout so a slow record
// is visible without standing up external infrastructure.
package telemetry

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.7.0"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/klog/v2"
)

// RunID identifies this process's extraction run across every span it
// emits, the same role the teacher's cmd-version.go SessionID plays for
// its own CLI invocations.
var RunID = uuid.New().String()

// Init sets up the stdout-exported tracer provider and returns a shutdown
// function. Set DISABLE_TELEMETRY=true to skip tracing entirely.
func Init(ctx context.Context, serviceName string) (func(), error) {
	if os.Getenv("DISABLE_TELEMETRY") == "true" {
		klog.Info("telemetry disabled via DISABLE_TELEMETRY")
		return func() {}, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(serviceName),
		attribute.String("run.id", RunID),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			klog.Errorf("telemetry: shutdown: %v", err)
		}
	}, nil
}

// Tracer returns the named tracer used throughout the orchestrator.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartBatch opens a span covering one whole manifest/excel/story batch.
func StartBatch(ctx context.Context, kind string, itemCount int) (context.Context, trace.Span) {
	ctx, span := Tracer("designextract").Start(ctx, "batch."+kind)
	span.SetAttributes(attribute.Int("batch.item_count", itemCount))
	return ctx, span
}

// StartItem opens a span covering one manifest item's decode.
func StartItem(ctx context.Context, item, className string) (context.Context, trace.Span) {
	ctx, span := Tracer("designextract").Start(ctx, "decode.item")
	span.SetAttributes(
		attribute.String("item.path", item),
		attribute.String("item.class", className),
	)
	return ctx, span
}

// RecordError marks span as failed with err, mirroring the teacher's
// telemetry.RecordError helper.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
