package observability

import (
	"testing"

	"github.com/smallbiznis/banca/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigProduction(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppVersion:   "1.2.0",
		Environment:  "Production",
		OTLPEndpoint: " collector:4317 ",
		Telemetry: config.TelemetryConfig{
			LogLevel:      "info",
			OtelEnabled:   true,
			OtelProtocol:  "grpc",
			SamplingRatio: 0.1,
		},
	})

	assert.Equal(t, "banca", cfg.ServiceName)
	assert.Equal(t, "production", cfg.Environment)
	assert.False(t, cfg.Debug())
	assert.Equal(t, 0.1, cfg.Tracing().SamplingRatio)
	assert.Equal(t, "collector:4317", cfg.Metrics().ExporterEndpoint)
	assert.Equal(t, "1.2.0", cfg.Logger().Version)
	assert.False(t, cfg.Logger().Debug)
}

func TestLoadConfigLocalTracesEverything(t *testing.T) {
	cfg := LoadConfig(config.Config{
		AppName:     "banca-dev",
		Environment: "development",
		Telemetry:   config.TelemetryConfig{LogLevel: "info", SamplingRatio: 0.1},
	})

	assert.True(t, cfg.Debug())
	assert.Equal(t, float64(1), cfg.Tracing().SamplingRatio)
	assert.Equal(t, "banca-dev", cfg.Tracing().ServiceName)

	staging := LoadConfig(config.Config{Environment: "staging", Telemetry: config.TelemetryConfig{LogLevel: "debug"}})
	assert.True(t, staging.Debug())
	assert.Equal(t, float64(0), staging.SamplingRatio)
}
