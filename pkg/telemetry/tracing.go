package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTracerName is the tracer used when none is configured.
const DefaultTracerName = "viewstate"

// Tracer wraps spans around binding flushes.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer resolves a tracer from the global OpenTelemetry provider.
// Configure the provider before creating bindings:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
func NewTracer(name string) *Tracer {
	if name == "" {
		name = DefaultTracerName
	}
	return &Tracer{tracer: otel.Tracer(name)}
}

// NewTracerFrom wraps an explicit provider.
func NewTracerFrom(tp trace.TracerProvider, name string) *Tracer {
	if name == "" {
		name = DefaultTracerName
	}
	return &Tracer{tracer: tp.Tracer(name)}
}

// FlushSpan is an in-progress flush span.
type FlushSpan struct {
	span trace.Span
}

// StartFlush opens a "viewstate.flush" span.
func (t *Tracer) StartFlush(ctx context.Context, bindingID, strategy string) (context.Context, *FlushSpan) {
	if t == nil {
		return ctx, nil
	}
	ctx, span := t.tracer.Start(ctx, "viewstate.flush",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("viewstate.binding_id", bindingID),
			attribute.String("viewstate.strategy", strategy),
		),
	)
	return ctx, &FlushSpan{span: span}
}

// End records the flush outcome and ends the span.
func (s *FlushSpan) End(mode, reason string, keys, bytes int, err error) {
	if s == nil {
		return
	}
	s.span.SetAttributes(
		attribute.String("viewstate.mode", mode),
		attribute.String("viewstate.reason", reason),
		attribute.Int("viewstate.payload_keys", keys),
		attribute.Int("viewstate.payload_bytes", bytes),
	)
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

// Span returns the underlying span, or nil.
func (s *FlushSpan) Span() trace.Span {
	if s == nil {
		return nil
	}
	return s.span
}
