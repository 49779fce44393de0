package telemetry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetup_Disabled(t *testing.T) {
	p, err := Setup(context.Background(), Config{Enabled: false, ServiceName: "billing"}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, p.TracingEnabled())
	assert.False(t, p.MetricsEnabled())
	assert.Nil(t, p.LoggerProvider)
	assert.NotNil(t, p.Meter("http.server"))

	base := zap.NewNop()
	assert.Same(t, base, p.BridgeLogger(base))
	assert.NotPanics(t, p.EnableSpanProfiles)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSetup_RequiresEndpoint(t *testing.T) {
	_, err := Setup(context.Background(), Config{Enabled: true, ServiceName: "billing"}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collector endpoint")
}

func TestProviders_NilIsDisabled(t *testing.T) {
	var p *Providers
	assert.False(t, p.TracingEnabled())
	assert.False(t, p.MetricsEnabled())
	assert.NotNil(t, p.Meter("billing"))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSamplerFor(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), samplerFor(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), samplerFor(0).Description())
	assert.Equal(t, sdktrace.TraceIDRatioBased(0.25).Description(), samplerFor(0.25).Description())
}

// recordingExporter keeps exported log records in memory
type recordingExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *recordingExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *recordingExporter) Shutdown(context.Context) error   { return nil }
func (e *recordingExporter) ForceFlush(context.Context) error { return nil }

func (e *recordingExporter) bodies() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.records))
	for _, r := range e.records {
		out = append(out, r.Body().AsString())
	}
	return out
}

func TestBridgeLogger_TeesAtBaseLevel(t *testing.T) {
	exporter := &recordingExporter{}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)))
	t.Cleanup(func() { _ = lp.Shutdown(context.Background()) })

	p := &Providers{LoggerProvider: lp, serviceName: "billing", logger: zap.NewNop()}
	core, logs := observer.New(zapcore.InfoLevel)
	log := p.BridgeLogger(zap.New(core))

	log.Debug("hidden")
	log.Info("payment recorded", zap.String("reference", "PAY-20260310-000001"))
	log.With(zap.String("invoice", "INV-1")).Warn("claim denied")

	assert.Equal(t, 2, logs.Len())
	assert.Equal(t, []string{"payment recorded", "claim denied"}, exporter.bodies())
}
