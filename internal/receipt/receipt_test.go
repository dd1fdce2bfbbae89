package receipt

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/banca/internal/config"
	orderdomain "github.com/smallbiznis/banca/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRenderProducesPDF(t *testing.T) {
	r := New(Params{
		Log:        zap.NewNop(),
		Storefront: config.NewStaticStorefrontConfigHolder(config.DefaultStorefrontConfig()),
	})

	order := &orderdomain.Order{
		ID:              42,
		CustomerName:    "Ana",
		Total:           decimal.RequireFromString("23.50"),
		Status:          orderdomain.StatusPaid,
		Note:            "sem cebola",
		PackagingNeeded: true,
		CreatedAt:       time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Lines: []orderdomain.Line{
			{Name: "Pastel", Price: decimal.RequireFromString("10.00"), Qty: 2},
			{Name: "Caldo de cana", Price: decimal.RequireFromString("3.50"), Qty: 1},
		},
	}

	out, err := r.Render(order)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRenderRejectsOrderWithoutLines(t *testing.T) {
	r := New(Params{Log: zap.NewNop()})
	_, err := r.Render(&orderdomain.Order{ID: 1})
	assert.ErrorIs(t, err, ErrEmptyOrder)
	_, err = r.Render(nil)
	assert.ErrorIs(t, err, ErrEmptyOrder)
}

func TestFormatBRL(t *testing.T) {
	assert.Equal(t, "R$ 23,50", formatBRL(decimal.RequireFromString("23.5")))
	assert.Equal(t, "R$ 0,01", formatBRL(decimal.RequireFromString("0.005").Round(2)))
}
