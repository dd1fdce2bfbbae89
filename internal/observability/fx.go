package observability

import (
	"github.com/smallbiznis/banca/internal/observability/logger"
	"github.com/smallbiznis/banca/internal/observability/metrics"
	"github.com/smallbiznis/banca/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.Logger,
		Config.Tracing,
		Config.Metrics,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	// Nothing else depends on the tracer provider; force it so spans are exported.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
