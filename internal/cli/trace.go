package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/mozart/review/emit"
)

// newTraceEmitter installs a tracer provider exporting spans as JSON to w
// and returns an emitter using it, plus a shutdown func that flushes
// pending spans and restores the previous provider.
func newTraceEmitter(w io.Writer) (*emit.OTelEmitter, func(), error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, nil, fmt.Errorf("trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	emitter := emit.NewOTelEmitter(tp.Tracer("mozart", trace.WithInstrumentationVersion(buildVersion)))
	return emitter, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = emitter.Flush(ctx)
		_ = tp.Shutdown(ctx)
		otel.SetTracerProvider(prev)
	}, nil
}
