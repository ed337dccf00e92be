package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLoggerProvider_Disabled(t *testing.T) {
	lp, err := NewLoggerProvider(context.Background(), LogsConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, lp.IsEnabled())
	assert.NoError(t, lp.Shutdown(context.Background()))

	var nilProvider *LoggerProvider
	assert.False(t, nilProvider.IsEnabled())
}

func TestNewZapOTELCore_Disabled(t *testing.T) {
	core := NewZapOTELCore("catalogsync", nil, zapcore.InfoLevel)
	assert.False(t, core.Enabled(zapcore.ErrorLevel))
}

func TestNewZapOTELCore_FiltersLevel(t *testing.T) {
	lp := &LoggerProvider{
		provider: sdklog.NewLoggerProvider(),
		logger:   zap.NewNop(),
		config:   LogsConfig{Enabled: true},
	}
	defer func() { _ = lp.Shutdown(context.Background()) }()

	core := NewZapOTELCore("catalogsync", lp, zapcore.WarnLevel)
	assert.False(t, core.Enabled(zapcore.InfoLevel))
	assert.True(t, core.Enabled(zapcore.WarnLevel))
	assert.True(t, core.Enabled(zapcore.ErrorLevel))
}

func TestBridgeLogger(t *testing.T) {
	baseCore, baseLogs := observer.New(zapcore.InfoLevel)
	otelCore, otelLogs := observer.New(zapcore.InfoLevel)

	logger := BridgeLogger(zap.New(baseCore), otelCore)
	logger.Info("sync finished")

	assert.Equal(t, 1, baseLogs.Len())
	assert.Equal(t, 1, otelLogs.Len())
}
