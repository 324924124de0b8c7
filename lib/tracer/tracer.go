package tracer

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-logr/stdr"
	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "eiprobe"

type TracerArgs struct {
	OtlpEndpoint string `arg:"--otlp-endpoint,env:OTLP_ENDPOINT" default:"" help:"OTLP gRPC collector address; tracing is a no-op when empty"`
}

type Span struct {
	c    context.Context
	span oteltrace.Span
}

func (s Span) Context() context.Context {
	return s.c
}

// GetXrayTraceID formats the trace id the way X-Ray displays it.
func (s Span) GetXrayTraceID() string {
	id := s.span.SpanContext().TraceID().String()
	return fmt.Sprintf("1-%s-%s", id[0:8], id[8:])
}

func (s Span) SetStringAttribute(name, val string) {
	s.span.SetAttributes(attribute.String(name, val))
}

func (s Span) SetIntAttribute(name string, val int) {
	s.span.SetAttributes(attribute.Int(name, val))
}

// RecordError marks the span failed. A nil error is ignored.
func (s Span) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s Span) End() {
	s.span.End()
}

func StartSpan(ctx context.Context, name string) Span {
	cCtx, span := otel.Tracer(instrumentationName).Start(ctx, name)
	return Span{
		c:    cCtx,
		span: span,
	}
}

// InitProvider installs a global tracer provider exporting to the OTLP
// collector at endpoint. The returned function flushes pending spans.
func InitProvider(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	traceExporter, err := otlptracegrpc.New(
		ctx, otlptracegrpc.WithInsecure(), otlptracegrpc.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter, err: %v", err)
	}

	tp := sdktrace.NewTracerProvider(
		// a smoke run emits a handful of spans, keep all of them
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithIDGenerator(xray.NewIDGenerator()))

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(xray.Propagator{})

	// otel logs dropped spans at V-level 5
	stdr.SetVerbosity(5)
	otel.SetLogger(stdr.New(log.New(os.Stderr, "", log.LstdFlags|log.Lshortfile)))

	return tp.Shutdown, nil
}
