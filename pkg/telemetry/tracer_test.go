package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_Disabled(t *testing.T) {
	tel, err := Init(context.Background(), &Config{Enabled: false, ServiceName: "gate-test"})
	require.NoError(t, err)
	require.NotNil(t, tel)

	ctx, span := StartSpan(context.Background(), "test.span")
	defer span.End()
	Fail(span, errors.New("boom"), "boom")

	// the no-op provider never produces trace ids
	assert.Empty(t, GetTraceID(ctx))
	assert.NoError(t, Shutdown(context.Background()))
}

func TestInit_NilConfig(t *testing.T) {
	tel, err := Init(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, tel)
}
