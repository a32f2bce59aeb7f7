package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracerExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracer("customer-report-test", &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "unit.of.work")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	require.Contains(t, buf.String(), `"Name":"unit.of.work"`)
	require.Contains(t, buf.String(), "customer-report-test")
}

func TestInitTracerWithoutWriter(t *testing.T) {
	shutdown, err := InitTracer("customer-report-test", nil)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "unit.of.work")
	require.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, shutdown(context.Background()))
}
