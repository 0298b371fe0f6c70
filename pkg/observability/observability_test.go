package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledProviderIsNoop(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)

	ctx, span := p.StartSpan(context.Background(), "compile")
	assert.NotNil(t, ctx)
	assert.NotNil(t, span)

	// Must not panic with nil instruments.
	p.RecordCompilation(ctx, "dag", 10*time.Millisecond, true)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "flowforge-core", cfg.ServiceName)
	assert.True(t, cfg.Enabled)
	assert.InDelta(t, 1.0, cfg.SampleRate, 1e-9)
}
