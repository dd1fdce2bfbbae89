package observability

import (
	"strings"

	"github.com/smallbiznis/banca/internal/config"
	"github.com/smallbiznis/banca/internal/observability/logger"
	"github.com/smallbiznis/banca/internal/observability/metrics"
	"github.com/smallbiznis/banca/internal/observability/tracing"
)

const defaultServiceName = "banca"

// Config is the part of the app config the logger, tracer and meter read.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled   bool
	OtlpEndpoint  string
	OtlpProtocol  string
	SamplingRatio float64
}

func LoadConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = defaultServiceName
	}
	c := Config{
		ServiceName:   name,
		Environment:   strings.ToLower(strings.TrimSpace(cfg.Environment)),
		Version:       strings.TrimSpace(cfg.AppVersion),
		LogLevel:      cfg.Telemetry.LogLevel,
		LogFormat:     cfg.Telemetry.LogFormat,
		OtelEnabled:   cfg.Telemetry.OtelEnabled,
		OtlpEndpoint:  strings.TrimSpace(cfg.OTLPEndpoint),
		OtlpProtocol:  cfg.Telemetry.OtelProtocol,
		SamplingRatio: cfg.Telemetry.SamplingRatio,
	}
	// A stand runs a few hundred orders a day; locally every request is traced.
	if c.local() {
		c.SamplingRatio = 1
	}
	return c
}

// Debug turns on verbose request logs and error stacks.
func (c Config) Debug() bool {
	return c.LogLevel == "debug" || c.local()
}

func (c Config) local() bool {
	switch c.Environment {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func (c Config) Logger() logger.Config {
	return logger.Config{
		ServiceName: c.ServiceName,
		Environment: c.Environment,
		Version:     c.Version,
		Level:       c.LogLevel,
		Format:      c.LogFormat,
		Debug:       c.Debug(),
	}
}

func (c Config) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:          c.OtelEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.OtlpEndpoint,
		ExporterProtocol: c.OtlpProtocol,
		SamplingRatio:    c.SamplingRatio,
	}
}

func (c Config) Metrics() metrics.Config {
	return metrics.Config{
		Enabled:          c.OtelEnabled,
		ExporterEndpoint: c.OtlpEndpoint,
		ExporterProtocol: c.OtlpProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}
