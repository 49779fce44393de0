package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStartProfiler_Disabled(t *testing.T) {
	p, err := StartProfiler(ProfilerConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Stop())
}

func TestStartProfiler_RequiresAddress(t *testing.T) {
	_, err := StartProfiler(ProfilerConfig{Enabled: true, ApplicationName: "billing"}, zap.NewNop())
	assert.Error(t, err)

	_, err = StartProfiler(ProfilerConfig{Enabled: true, ServerAddress: "http://pyroscope:4040"}, zap.NewNop())
	assert.Error(t, err)
}

func TestProfiler_NilIsDisabled(t *testing.T) {
	var p *Profiler
	assert.False(t, p.IsEnabled())
	assert.NoError(t, p.Stop())
}
