package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("outcome", "paid"),
		attribute.String("order_id", "456"),
		attribute.String("provider", "mercadopago"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "outcome" && attrs[1].Key != "outcome" {
		t.Fatalf("expected outcome to be retained")
	}
	if attrs[0].Key != "provider" && attrs[1].Key != "provider" {
		t.Fatalf("expected provider to be retained")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordOrderCreated(context.Background())
	m.RecordReconciliation(context.Background(), "paid")
	m.RecordInventoryClamp(context.Background())
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "banca"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordWebhook(context.Background(), "mercadopago", "payment")
	m.RecordStatusChange(context.Background(), "paid", "staff")
}
