package obsv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTracerDisabledReturnsNoop(t *testing.T) {
	tp, err := InitTracer(context.Background(), TracerConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, tp)

	tracer := tp.Tracer("test")
	_, span := tracer.Start(context.Background(), "op")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestInitTracerEnabledBuildsStdoutExporter(t *testing.T) {
	tp, err := InitTracer(context.Background(), TracerConfig{Enabled: true, ServiceName: "orchid-test"})
	require.NoError(t, err)
	require.NotNil(t, tp)

	tracer := tp.Tracer("test")
	_, span := tracer.Start(context.Background(), "op")
	span.End()
}
