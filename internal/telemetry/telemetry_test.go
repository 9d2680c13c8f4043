package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMeterAndTracerUsableBeforeInit(t *testing.T) {
	require.NotNil(t, Meter("test"))
	require.NotNil(t, Tracer("test"))
}

func TestInitIsIdempotent(t *testing.T) {
	require.NoError(t, Init("prime-test"))
	require.NoError(t, Init("prime-test"))
	defer func() { _ = Shutdown(context.Background()) }()

	tracer := Tracer("prime-test/unit")
	_, span := tracer.Start(context.Background(), "unit-test-span")
	span.End()

	meter := Meter("prime-test/unit")
	counter, err := meter.Int64Counter("prime.test.counter")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)
}
