package emit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter implements Emitter by creating OpenTelemetry spans.
//
// Each event becomes an instantaneous span with:
//   - Span name: event.Msg (e.g. "backend_end")
//   - Attributes: session, seq, backend, level and all event.Meta fields
//   - Status: Error if event.Meta["error"] is a string
//
// Usage:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
//	emitter := emit.NewOTelEmitter(otel.Tracer("mozart"))
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates a new OTelEmitter. A nil tracer uses the global
// provider's "mozart" tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	if tracer == nil {
		tracer = otel.Tracer("mozart")
	}
	return &OTelEmitter{tracer: tracer}
}

// Emit creates and immediately ends a span for the event.
func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	defer span.End()

	span.SetAttributes(
		attribute.String("mozart.session_id", event.SessionID),
		attribute.Int("mozart.seq", event.Seq),
		attribute.String("mozart.backend_id", event.BackendID),
		attribute.String("mozart.level", event.Level.String()),
	)
	o.addMetadataAttributes(span, event.Meta)

	if msg, ok := event.Meta["error"].(string); ok {
		span.SetStatus(codes.Error, msg)
		span.RecordError(errors.New(msg))
	}
}

// Flush forces export of pending spans when the global provider supports it.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	type flusher interface {
		ForceFlush(context.Context) error
	}
	if f, ok := otel.GetTracerProvider().(flusher); ok {
		return f.ForceFlush(ctx)
	}
	return nil
}

// addMetadataAttributes converts event metadata to span attributes.
// LLM usage keys are mapped onto the mozart.llm namespace.
func (o *OTelEmitter) addMetadataAttributes(span trace.Span, meta map[string]interface{}) {
	for key, value := range meta {
		attrKey := "mozart." + key
		switch key {
		case "tokens_in", "tokens_out", "cost_usd", "model":
			attrKey = "mozart.llm." + key
		}

		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(attrKey, v))
		case int:
			span.SetAttributes(attribute.Int(attrKey, v))
		case int64:
			span.SetAttributes(attribute.Int64(attrKey, v))
		case float64:
			span.SetAttributes(attribute.Float64(attrKey, v))
		case bool:
			span.SetAttributes(attribute.Bool(attrKey, v))
		case time.Duration:
			span.SetAttributes(attribute.Int64(attrKey, v.Milliseconds()))
		default:
			span.SetAttributes(attribute.String(attrKey, fmt.Sprintf("%v", v)))
		}
	}
}
