package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorefrontAmountsFallBackOnGarbage(t *testing.T) {
	cfg := DefaultStorefrontConfig()
	cfg.MinimumAmount = "abc"

	assert.True(t, cfg.MinimumAmountDecimal().Equal(decimal.RequireFromString("0.01")))
	assert.True(t, cfg.PixMinimumAmountDecimal().Equal(decimal.RequireFromString("1.00")))
}

func TestValidateStorefrontConfig(t *testing.T) {
	require.NoError(t, validateStorefrontConfig(DefaultStorefrontConfig()))

	cfg := DefaultStorefrontConfig()
	cfg.PixMinimumAmount = "-1"
	assert.Error(t, validateStorefrontConfig(cfg))

	cfg = DefaultStorefrontConfig()
	cfg.Currency = " "
	assert.Error(t, validateStorefrontConfig(cfg))
}

func TestGetenvList(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " a:9092, ,b:9092 ")
	assert.Equal(t, []string{"a:9092", "b:9092"}, getenvList("KAFKA_BROKERS"))
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FRONT_URL", "https://loja.example/")
	t.Setenv("MP_TIMEOUT", "3s")
	t.Setenv("REDIS_ADDR", "")

	cfg := Load()
	assert.Equal(t, "https://loja.example", cfg.FrontURL)
	assert.Equal(t, "3s", cfg.MercadoPago.Timeout.String())
	assert.False(t, cfg.Redis.Enabled())
}
