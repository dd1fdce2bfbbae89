package reconcile_test

import (
	"context"
	"strconv"
	"sync"
	"testing"

	"github.com/smallbiznis/banca/internal/cache"
	orderdomain "github.com/smallbiznis/banca/internal/order/domain"
	orderrepo "github.com/smallbiznis/banca/internal/order/repository"
	"github.com/smallbiznis/banca/internal/order/ordertest"
	"github.com/smallbiznis/banca/internal/orderevents"
	"github.com/smallbiznis/banca/internal/payment/domain"
	"github.com/smallbiznis/banca/internal/payment/provider/fake"
	"github.com/smallbiznis/banca/internal/payment/reconcile"
	paymentrepo "github.com/smallbiznis/banca/internal/payment/repository"
	"github.com/smallbiznis/banca/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type harness struct {
	db       *gorm.DB
	orders   *ordertest.Fixture
	provider *fake.Provider
	engine   *reconcile.Engine
	repo     domain.Repository
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	orders := ordertest.New(t, db)
	provider := fake.New()
	repo := paymentrepo.Provide()
	engine := reconcile.New(reconcile.Params{
		DB:          db,
		Log:         zap.NewNop(),
		Repo:        repo,
		OrderRepo:   orderrepo.Provide(),
		Settlement:  orders.Service,
		Provider:    provider,
		StatusLog:   orders.StatusLog,
		Events:      orders.Events,
		StatusCache: cache.NewNoopOrderStatusCache(),
		Clock:       orders.Clock,
	})
	return &harness{db: db, orders: orders, provider: provider, engine: engine, repo: repo}
}

// placeOrder creates an order with a pending payment record referencing prefID.
func (h *harness) placeOrder(t *testing.T, sku int64, qty int, prefID string) int64 {
	t.Helper()
	ctx := context.Background()
	resp, err := h.orders.Service.Create(ctx, orderdomain.CreateRequest{
		Items: []orderdomain.LineRequest{{SKU: sku, Qty: qty}},
	})
	require.NoError(t, err)
	orderID, err := strconv.ParseInt(resp.ID, 10, 64)
	require.NoError(t, err)

	now := h.orders.Clock.Now()
	require.NoError(t, h.repo.Upsert(ctx, h.db, &domain.PaymentRecord{
		ID:          h.orders.Node.Generate().Int64(),
		OrderID:     orderID,
		ProviderRef: prefID,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}))
	return orderID
}

func (h *harness) order(t *testing.T, id int64) *orderdomain.Order {
	t.Helper()
	order, err := orderrepo.Provide().FindByID(context.Background(), h.db, id)
	require.NoError(t, err)
	require.NotNil(t, order)
	return order
}

func TestApprovedPaymentSettlesOrderOnce(t *testing.T) {
	h := newHarness(t)
	testutil.SeedItem(t, h.db, 1, 1, "7.50", 10, 0)
	orderID := h.placeOrder(t, 1, 2, "pref_1")
	ref := strconv.FormatInt(orderID, 10)
	h.provider.SetPayment(domain.ProviderPayment{ID: "PAY1", Status: "approved", StatusDetail: "accredited", ExternalReference: ref})
	ctx := context.Background()

	n := reconcile.Notification{Topic: "payment", PaymentID: "PAY1", ExternalReference: ref, Payload: map[string]any{"data": map[string]any{"id": "PAY1"}}}
	res, err := h.engine.Reconcile(ctx, n)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.True(t, res.Paid)
	assert.False(t, res.Idempotent)

	order := h.order(t, orderID)
	assert.Equal(t, orderdomain.StatusPaid, order.Status)
	require.NotNil(t, order.PaidAt)
	assert.Equal(t, 2, testutil.SoldCount(t, h.db, 1))
	testutil.AssertCount(t, h.db, `SELECT COUNT(*) FROM payment_records WHERE status = 'approved' AND status_detail = 'approved'`, 1)
	testutil.AssertCount(t, h.db, `SELECT COUNT(*) FROM order_status_logs WHERE order_id = ? AND source = 'reconciliation' AND to_status = 'paid'`, 1, orderID)
	assert.Equal(t, 1, h.orders.Events.Count(orderevents.EventOrderPaid))

	again, err := h.engine.Reconcile(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, reconcile.Result{OK: true, Idempotent: true}, again)
	assert.Equal(t, 1, h.provider.CallCount("FetchPayment"))
	assert.Equal(t, 2, testutil.SoldCount(t, h.db, 1))
	assert.Equal(t, 1, h.orders.Events.Count(orderevents.EventOrderPaid))
}

func TestConcurrentDeliveriesCommitInventoryOnce(t *testing.T) {
	h := newHarness(t)
	testutil.SeedItem(t, h.db, 1, 1, "3.00", 10, 0)
	orderID := h.placeOrder(t, 1, 3, "pref_1")
	h.provider.SetPayment(domain.ProviderPayment{ID: "PAY1", Status: "approved"})

	var wg sync.WaitGroup
	results := make([]reconcile.Result, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.engine.Reconcile(context.Background(), reconcile.Notification{
				PaymentID:         "PAY1",
				ExternalReference: strconv.FormatInt(orderID, 10),
			})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	paid := 0
	for _, res := range results {
		assert.True(t, res.OK)
		if res.Paid {
			paid++
		} else {
			assert.True(t, res.Idempotent)
		}
	}
	assert.Equal(t, 1, paid)
	assert.Equal(t, 3, testutil.SoldCount(t, h.db, 1))
	testutil.AssertCount(t, h.db, `SELECT COUNT(*) FROM order_status_logs WHERE to_status = 'paid'`, 1)
}

func TestMerchantOrderTierProvesPayment(t *testing.T) {
	h := newHarness(t)
	testutil.SeedItem(t, h.db, 1, 1, "5.00", 10, 0)
	orderID := h.placeOrder(t, 1, 1, "pref_7")
	h.provider.SetMerchantOrder("pref_7", domain.MerchantOrder{ID: "mo_1", OrderStatus: "closed"})

	res, err := h.engine.Reconcile(context.Background(), reconcile.Notification{PreferenceID: "pref_7"})
	require.NoError(t, err)
	assert.True(t, res.Paid)
	assert.Equal(t, 0, h.provider.CallCount("FetchPayment"))
	require.NotEmpty(t, res.Outcomes)
	assert.Equal(t, reconcile.DefinitivePaid, res.Outcomes[len(res.Outcomes)-1].Kind)
	assert.Equal(t, orderdomain.StatusPaid, h.order(t, orderID).Status)
}

func TestPaymentTierSkipsMerchantOrderSearch(t *testing.T) {
	h := newHarness(t)
	testutil.SeedItem(t, h.db, 1, 1, "5.00", 10, 0)
	h.placeOrder(t, 1, 1, "pref_1")
	h.provider.SetPayment(domain.ProviderPayment{ID: "PAY9", Status: "approved"})

	_, err := h.engine.Reconcile(context.Background(), reconcile.Notification{PaymentID: "PAY9", PreferenceID: "pref_1"})
	require.NoError(t, err)
	assert.Equal(t, 0, h.provider.CallCount("SearchMerchantOrder"))
}

func TestPendingPaymentKeepsOrderOpen(t *testing.T) {
	h := newHarness(t)
	testutil.SeedItem(t, h.db, 1, 1, "5.00", 10, 0)
	orderID := h.placeOrder(t, 1, 1, "pref_1")
	h.provider.SetPayment(domain.ProviderPayment{ID: "PAY2", Status: "in_process", StatusDetail: "pending_review_manual"})
	h.provider.SetMerchantOrder("pref_1", domain.MerchantOrder{ID: "mo_1", OrderStatus: "opened"})

	res, err := h.engine.Reconcile(context.Background(), reconcile.Notification{PaymentID: "PAY2", ExternalReference: strconv.FormatInt(orderID, 10)})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.False(t, res.Paid)
	assert.Empty(t, res.Reason)
	for _, o := range res.Outcomes {
		assert.Equal(t, reconcile.NotDefinitive, o.Kind)
	}

	assert.Equal(t, orderdomain.StatusAwaitingPayment, h.order(t, orderID).Status)
	assert.Equal(t, 0, testutil.SoldCount(t, h.db, 1))
	record, err := h.repo.FindByOrderID(context.Background(), h.db, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, record.Status)
	assert.Equal(t, "pending_review_manual", record.StatusDetail)
	assert.Contains(t, string(record.Raw), "merchant_order")
}

func TestProviderFailuresAreOutcomesNotErrors(t *testing.T) {
	h := newHarness(t)
	testutil.SeedItem(t, h.db, 1, 1, "5.00", 10, 0)
	orderID := h.placeOrder(t, 1, 1, "pref_1")
	h.provider.FailOn("FetchPayment", &domain.ProviderError{StatusCode: 503, Message: "unavailable"})
	h.provider.FailOn("SearchMerchantOrder", &domain.ProviderError{StatusCode: 503, Message: "unavailable"})

	res, err := h.engine.Reconcile(context.Background(), reconcile.Notification{PaymentID: "PAY3", ExternalReference: strconv.FormatInt(orderID, 10)})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.False(t, res.Paid)
	assert.Equal(t, reconcile.ReasonProviderError, res.Reason)
	require.Len(t, res.Outcomes, 3)
	for _, o := range res.Outcomes {
		assert.Equal(t, reconcile.TransientError, o.Kind)
		assert.ErrorIs(t, o.Err, domain.ErrProviderUnavailable)
	}

	record, err := h.repo.FindByOrderID(context.Background(), h.db, orderID)
	require.NoError(t, err)
	assert.Equal(t, "pending", record.StatusDetail)
}

func TestUnknownPaymentIsNotFound(t *testing.T) {
	h := newHarness(t)

	res, err := h.engine.Reconcile(context.Background(), reconcile.Notification{PaymentID: "nope"})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, reconcile.ReasonPaymentNotFound, res.Reason)

	res, err = h.engine.Reconcile(context.Background(), reconcile.Notification{Topic: "payment"})
	require.NoError(t, err)
	assert.Equal(t, reconcile.ReasonMissingIdentifiers, res.Reason)
	assert.Equal(t, 0, h.provider.CallCount("FetchPayment"))
}

func TestConcurrentOrdersClampAtStock(t *testing.T) {
	h := newHarness(t)
	testutil.SeedItem(t, h.db, 1, 1, "5.00", 2, 0)
	first := h.placeOrder(t, 1, 2, "pref_a")
	second := h.placeOrder(t, 1, 2, "pref_b")
	require.NoError(t, h.db.Exec(`UPDATE items SET sold_count = 1 WHERE id = 1`).Error)
	h.provider.SetMerchantOrder("pref_a", domain.MerchantOrder{OrderStatus: "paid"})
	h.provider.SetMerchantOrder("pref_b", domain.MerchantOrder{OrderStatus: "paid"})

	for _, pref := range []string{"pref_a", "pref_b"} {
		res, err := h.engine.Reconcile(context.Background(), reconcile.Notification{PreferenceID: pref})
		require.NoError(t, err)
		assert.True(t, res.Paid)
	}

	assert.Equal(t, 2, testutil.SoldCount(t, h.db, 1))
	assert.Equal(t, orderdomain.StatusPaid, h.order(t, first).Status)
	assert.Equal(t, orderdomain.StatusPaid, h.order(t, second).Status)
}

func TestCancelledOrderStillRecordsPayment(t *testing.T) {
	h := newHarness(t)
	testutil.SeedItem(t, h.db, 1, 1, "5.00", 10, 0)
	orderID := h.placeOrder(t, 1, 1, "pref_1")
	_, err := h.orders.Service.UpdateStatus(context.Background(), strconv.FormatInt(orderID, 10), orderdomain.StatusCancelled)
	require.NoError(t, err)
	h.provider.SetPayment(domain.ProviderPayment{ID: "PAY5", Status: "approved"})

	res, err := h.engine.Reconcile(context.Background(), reconcile.Notification{PaymentID: "PAY5", PreferenceID: "pref_1"})
	require.NoError(t, err)
	assert.True(t, res.Paid)
	order := h.order(t, orderID)
	assert.Equal(t, orderdomain.StatusPaid, order.Status)
	assert.NotNil(t, order.PaidAt)
}

func TestResync(t *testing.T) {
	h := newHarness(t)
	testutil.SeedItem(t, h.db, 1, 1, "5.00", 10, 0)
	orderID := h.placeOrder(t, 1, 1, "pref_1")
	h.provider.SetMerchantOrder("pref_1", domain.MerchantOrder{OrderStatus: "paid"})

	res, err := h.engine.Resync(context.Background(), strconv.FormatInt(orderID, 10))
	require.NoError(t, err)
	assert.True(t, res.Paid)

	_, err = h.engine.Resync(context.Background(), "999")
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}
