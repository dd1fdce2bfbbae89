package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/banca/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextSkipsMissingFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	WithContext(context.Background(), base).Info("bare")
	assert.Empty(t, logs.All()[0].ContextMap())

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithActor(ctx, "dashboard_user", "ana")
	WithContext(ctx, base).Info("tagged")
	fields := logs.All()[1].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "dashboard_user", fields["actor_type"])
	assert.Equal(t, "ana", fields["actor_id"])
	assert.NotContains(t, fields, "trace_id")
}

func TestOrderAndPaymentFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	WithPayment(WithOrder(base, 42), "pref_1", "").Info("checkout")
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, int64(42), fields["order_id"])
	assert.Equal(t, "pref_1", fields["provider_ref"])
	assert.NotContains(t, fields, "payment_id")

	WithPayment(base, "", " 991 ").Info("settled")
	assert.Equal(t, "991", logs.All()[1].ContextMap()["payment_id"])

	assert.Nil(t, WithOrder(nil, 1))
}
