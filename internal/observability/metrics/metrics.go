package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	ordersCreated    metric.Int64Counter
	reconciliations  metric.Int64Counter
	inventoryClamps  metric.Int64Counter
	webhooks         metric.Int64Counter
	statusChanges    metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
	broadcastFailure metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "banca"
	}
	meter := provider.Meter(name)

	ordersCreated, err := meter.Int64Counter("banca_orders_created_total")
	if err != nil {
		return nil, err
	}
	reconciliations, err := meter.Int64Counter("banca_payment_reconciliations_total")
	if err != nil {
		return nil, err
	}
	inventoryClamps, err := meter.Int64Counter("banca_inventory_clamps_total")
	if err != nil {
		return nil, err
	}
	webhooks, err := meter.Int64Counter("banca_payment_webhooks_total")
	if err != nil {
		return nil, err
	}
	statusChanges, err := meter.Int64Counter("banca_order_status_changes_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("banca_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}
	broadcastFailure, err := meter.Int64Counter("banca_event_broadcast_failures_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ordersCreated:    ordersCreated,
		reconciliations:  reconciliations,
		inventoryClamps:  inventoryClamps,
		webhooks:         webhooks,
		statusChanges:    statusChanges,
		rateLimitDenied:  rateLimitDenied,
		broadcastFailure: broadcastFailure,
	}, nil
}

// RecordOrderCreated increments created order counts.
func (m *Metrics) RecordOrderCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.ordersCreated.Add(ctx, 1)
}

// RecordReconciliation counts a reconciliation attempt by outcome.
func (m *Metrics) RecordReconciliation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.reconciliations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInventoryClamp counts sales that hit the stock ceiling.
func (m *Metrics) RecordInventoryClamp(ctx context.Context) {
	if m == nil {
		return
	}
	m.inventoryClamps.Add(ctx, 1)
}

func (m *Metrics) RecordWebhook(ctx context.Context, provider, topic string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("topic", strings.TrimSpace(topic)),
	)
	m.webhooks.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordStatusChange(ctx context.Context, to, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("status", strings.TrimSpace(to)),
		attribute.String("source", strings.TrimSpace(source)),
	)
	m.statusChanges.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordBroadcastFailure(ctx context.Context, sink string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("sink", strings.TrimSpace(sink)))
	m.broadcastFailure.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status_code": {},
	"provider":    {},
	"topic":       {},
	"outcome":     {},
	"status":      {},
	"source":      {},
	"sink":        {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
