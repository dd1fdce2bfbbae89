package salesreport_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	catalogrepo "github.com/smallbiznis/banca/internal/catalog/repository"
	"github.com/smallbiznis/banca/internal/config"
	"github.com/smallbiznis/banca/internal/order/domain"
	"github.com/smallbiznis/banca/internal/order/ordertest"
	orderrepo "github.com/smallbiznis/banca/internal/order/repository"
	paymentrepo "github.com/smallbiznis/banca/internal/payment/repository"
	"github.com/smallbiznis/banca/internal/ratelimit"
	"github.com/smallbiznis/banca/internal/salesreport"
	"github.com/smallbiznis/banca/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*salesreport.Service, *ordertest.Fixture) {
	t.Helper()
	db := testutil.NewDB(t)
	testutil.SeedItem(t, db, 1, 1, "10.00", 10, 0)
	testutil.SeedItem(t, db, 2, 2, "3.50", 10, 0)
	fx := ordertest.New(t, db)

	ctx := context.Background()
	for _, req := range []struct {
		sku  int64
		qty  int
		paid bool
	}{
		{sku: 1, qty: 2, paid: true},
		{sku: 2, qty: 2, paid: true},
		{sku: 1, qty: 1, paid: false},
	} {
		order, err := fx.Service.Create(ctx, domain.CreateRequest{Items: []domain.LineRequest{{SKU: req.sku, Qty: req.qty}}})
		require.NoError(t, err)
		if req.paid {
			_, err = fx.Service.UpdateStatus(ctx, order.ID, domain.StatusPaid)
			require.NoError(t, err)
		}
	}

	svc := salesreport.New(salesreport.Params{
		DB:          db,
		Log:         zap.NewNop(),
		OrderRepo:   orderrepo.Provide(),
		PaymentRepo: paymentrepo.Provide(),
		CatalogRepo: catalogrepo.Provide(),
		Lock:        ratelimit.NewKeyedLock(nil, config.Config{}, zap.NewNop()),
		Clock:       fx.Clock,
	})
	return svc, fx
}

func TestSummary(t *testing.T) {
	svc, _ := setup(t)

	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(3), summary.TotalOrders)
	assert.Equal(t, []salesreport.StatusCount{
		{Status: domain.StatusAwaitingPayment, Count: 1},
		{Status: domain.StatusPaid, Count: 2},
	}, summary.OrdersByStatus)
	assert.Equal(t, int64(2), summary.PaidOrders)
	assert.Equal(t, int64(2), summary.PaidToday)
	assert.True(t, summary.PaidRevenue.Equal(decimal.RequireFromString("27")), summary.PaidRevenue.String())
	assert.True(t, summary.RevenueToday.Equal(decimal.RequireFromString("27")), summary.RevenueToday.String())
	assert.True(t, summary.AverageTicket.Equal(decimal.RequireFromString("13.5")), summary.AverageTicket.String())

	require.Len(t, summary.TopSellers, 2)
	assert.Equal(t, "1", summary.TopSellers[0].ItemID)
	assert.Equal(t, int64(2), summary.TopSellers[0].Sold)
	assert.True(t, summary.TopSellers[0].Revenue.Equal(decimal.RequireFromString("20")))
	assert.Equal(t, "2", summary.TopSellers[1].ItemID)
	assert.True(t, summary.TopSellers[1].Revenue.Equal(decimal.RequireFromString("7")))
}

func TestHistory(t *testing.T) {
	svc, _ := setup(t)

	days, err := svc.History(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, "2024-05-30", days[0].Day)
	assert.Equal(t, int64(0), days[0].Orders)
	assert.Equal(t, "2024-06-01", days[2].Day)
	assert.Equal(t, int64(2), days[2].Orders)
	assert.True(t, days[2].Revenue.Equal(decimal.RequireFromString("27")), days[2].Revenue.String())

	_, err = svc.History(context.Background(), 365)
	assert.ErrorIs(t, err, salesreport.ErrInvalidRange)
}

func TestResetSales(t *testing.T) {
	svc, fx := setup(t)
	require.Equal(t, 2, testutil.SoldCount(t, fx.DB, 1))

	result, err := svc.ResetSales(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.OrdersDeleted)
	assert.Equal(t, int64(2), result.ItemsReset)

	testutil.AssertCount(t, fx.DB, `SELECT COUNT(*) FROM orders`, 0)
	testutil.AssertCount(t, fx.DB, `SELECT COUNT(*) FROM order_lines`, 0)
	testutil.AssertCount(t, fx.DB, `SELECT COUNT(*) FROM order_status_logs`, 0)
	testutil.AssertCount(t, fx.DB, `SELECT COUNT(*) FROM payment_records`, 0)
	assert.Equal(t, 0, testutil.SoldCount(t, fx.DB, 1))
	assert.Equal(t, 0, testutil.SoldCount(t, fx.DB, 2))

	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.OrdersByStatus)
	assert.True(t, summary.AverageTicket.IsZero())
}
