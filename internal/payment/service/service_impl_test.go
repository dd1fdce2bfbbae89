package service_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/banca/internal/config"
	orderdomain "github.com/smallbiznis/banca/internal/order/domain"
	orderrepo "github.com/smallbiznis/banca/internal/order/repository"
	"github.com/smallbiznis/banca/internal/order/ordertest"
	"github.com/smallbiznis/banca/internal/payment/domain"
	"github.com/smallbiznis/banca/internal/payment/provider/fake"
	paymentrepo "github.com/smallbiznis/banca/internal/payment/repository"
	"github.com/smallbiznis/banca/internal/payment/service"
	"github.com/smallbiznis/banca/internal/ratelimit"
	"github.com/smallbiznis/banca/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T, lock *ratelimit.KeyedLock) (domain.Service, *fake.Provider, *ordertest.Fixture, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	orders := ordertest.New(t, db)
	provider := fake.New()
	svc := service.New(service.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     orders.Node,
		Repo:      paymentrepo.Provide(),
		OrderRepo: orderrepo.Provide(),
		Provider:  provider,
		Lock:      lock,
		Cfg: config.Config{
			FrontURL:   "https://banca.example",
			BackendURL: "https://api.banca.example",
		},
		Storefront: config.NewStaticStorefrontConfigHolder(config.DefaultStorefrontConfig()),
		Clock:      orders.Clock,
	})
	return svc, provider, orders, db
}

func createOrder(t *testing.T, orders *ordertest.Fixture, qty int) string {
	t.Helper()
	resp, err := orders.Service.Create(context.Background(), orderdomain.CreateRequest{
		Items: []orderdomain.LineRequest{{SKU: 1, Qty: qty}},
	})
	require.NoError(t, err)
	return resp.ID
}

func TestCreatePreference(t *testing.T) {
	svc, provider, orders, db := newService(t, nil)
	testutil.SeedItem(t, db, 1, 1, "6.25", 10, 0)
	orderID := createOrder(t, orders, 2)

	resp, err := svc.CreatePreference(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, "pref_1", resp.PreferenceID)
	assert.Equal(t, "https://checkout.example/pref_1", resp.InitPoint)

	require.Len(t, provider.Preferences, 1)
	req := provider.Preferences[0]
	require.Len(t, req.Items, 1)
	assert.Equal(t, orderID+" - Banca", req.Items[0].Title)
	assert.Equal(t, 1, req.Items[0].Quantity)
	assert.Equal(t, "BRL", req.Items[0].CurrencyID)
	assert.True(t, req.Items[0].UnitPrice.Equal(decimal.RequireFromString("12.50")))
	assert.Equal(t, orderID, req.ExternalReference)
	assert.Equal(t, "https://banca.example/cliente?pedido="+orderID, req.SuccessURL)
	assert.Equal(t, "https://api.banca.example/api/payments/webhook", req.NotificationURL)
	assert.True(t, req.BinaryMode)
	assert.Contains(t, req.ExcludedPaymentTypes, "credit_card")

	record, err := svc.GetByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, "pref_1", record.ProviderRef)
	assert.Equal(t, domain.StatusPending, record.Status)

	got, err := orders.Service.Get(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/pref_1", got.PaymentLink)

	// A second checkout refreshes the same record.
	_, err = svc.CreatePreference(context.Background(), orderID)
	require.NoError(t, err)
	testutil.AssertCount(t, db, `SELECT COUNT(*) FROM payment_records`, 1)
	testutil.AssertCount(t, db, `SELECT COUNT(*) FROM payment_records WHERE provider_ref = 'pref_2'`, 1)
}

func TestCreatePreferenceRejectsTinyTotals(t *testing.T) {
	svc, provider, _, db := newService(t, nil)
	now := time.Now().UTC()
	require.NoError(t, db.Exec(
		`INSERT INTO orders (id, total, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		77, "0.005", orderdomain.StatusAwaitingPayment, now, now,
	).Error)

	_, err := svc.CreatePreference(context.Background(), "77")
	assert.ErrorIs(t, err, domain.ErrAmountBelowMinimum)
	assert.Equal(t, 0, provider.CallCount("CreatePreference"))
}

func TestCreatePreferenceErrors(t *testing.T) {
	svc, provider, orders, db := newService(t, nil)
	testutil.SeedItem(t, db, 1, 1, "5.00", 10, 0)

	_, err := svc.CreatePreference(context.Background(), "12345")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	_, err = svc.CreatePreference(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrInvalidOrderID)

	orderID := createOrder(t, orders, 1)
	provider.FailOn("CreatePreference", &domain.ProviderError{StatusCode: 500, Message: "boom"})
	_, err = svc.CreatePreference(context.Background(), orderID)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	testutil.AssertCount(t, db, `SELECT COUNT(*) FROM payment_records`, 0)

	_, err = orders.Service.UpdateStatus(context.Background(), orderID, orderdomain.StatusPaid)
	require.NoError(t, err)
	provider.FailOn("CreatePreference", nil)
	_, err = svc.CreatePreference(context.Background(), orderID)
	assert.ErrorIs(t, err, domain.ErrOrderAlreadyPaid)
}

func TestCreatePixChargeAppliesMinimum(t *testing.T) {
	svc, provider, orders, db := newService(t, nil)
	testutil.SeedItem(t, db, 1, 1, "0.50", 10, 0)
	orderID := createOrder(t, orders, 1)

	charge, err := svc.CreatePixCharge(context.Background(), orderID, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, charge.QRCode)

	require.Len(t, provider.Charges, 1)
	req := provider.Charges[0]
	assert.True(t, req.Amount.Equal(decimal.RequireFromString("1.00")), req.Amount.String())
	assert.Equal(t, "cliente"+orderID+"@example.com", req.Payer.Email)
	assert.Equal(t, "pix:"+orderID+":1.00", req.IdempotencyKey)

	record, err := svc.GetByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, charge.ID, record.ProviderRef)
	assert.Equal(t, "pending_waiting_transfer", record.StatusDetail)

	got, err := orders.Service.Get(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, charge.ID, got.ProviderPaymentID)
	assert.Equal(t, charge.TicketURL, got.PaymentLink)

	_, err = svc.CreatePixCharge(context.Background(), orderID, &domain.Payer{Email: " ana@example.com "})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", provider.Charges[1].Payer.Email)
}

func TestCreationLockReturnsInProgress(t *testing.T) {
	addr := testutil.RedisAddr(t)
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	lock := ratelimit.NewKeyedLock(client, config.Config{}, zap.NewNop())

	svc, _, orders, db := newService(t, lock)
	testutil.SeedItem(t, db, 1, 1, "5.00", 10, 0)
	orderID := createOrder(t, orders, 1)
	id, _ := strconv.ParseInt(orderID, 10, 64)

	release, err := lock.Acquire(context.Background(), ratelimit.PaymentCreateKey(id))
	require.NoError(t, err)
	defer release()

	_, err = svc.CreatePreference(context.Background(), orderID)
	assert.ErrorIs(t, err, domain.ErrPaymentInProgress)
}

type callLog struct {
	calls []string
}

type loggedOrderRepo struct {
	orderdomain.Repository
	log *callLog
	// settleOnLock marks the order paid just before the lock is taken.
	settleOnLock bool
}

func (r *loggedOrderRepo) LockByID(ctx context.Context, tx *gorm.DB, id int64) (*orderdomain.Order, error) {
	r.log.calls = append(r.log.calls, "lock_order")
	if r.settleOnLock {
		if err := tx.Exec(`UPDATE orders SET status = ? WHERE id = ?`, orderdomain.StatusPaid, id).Error; err != nil {
			return nil, err
		}
	}
	return r.Repository.LockByID(ctx, tx, id)
}

func (r *loggedOrderRepo) UpdatePayment(ctx context.Context, db *gorm.DB, id int64, providerPaymentID, paymentLink string, at time.Time) error {
	r.log.calls = append(r.log.calls, "update_order_payment")
	return r.Repository.UpdatePayment(ctx, db, id, providerPaymentID, paymentLink, at)
}

type loggedPaymentRepo struct {
	domain.Repository
	log *callLog
}

func (r *loggedPaymentRepo) Upsert(ctx context.Context, db *gorm.DB, record *domain.PaymentRecord) error {
	r.log.calls = append(r.log.calls, "upsert_payment")
	return r.Repository.Upsert(ctx, db, record)
}

func newLoggedService(t *testing.T, settleOnLock bool) (domain.Service, *ordertest.Fixture, *gorm.DB, *callLog) {
	t.Helper()
	db := testutil.NewDB(t)
	orders := ordertest.New(t, db)
	calls := &callLog{}
	svc := service.New(service.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      orders.Node,
		Repo:       &loggedPaymentRepo{Repository: paymentrepo.Provide(), log: calls},
		OrderRepo:  &loggedOrderRepo{Repository: orderrepo.Provide(), log: calls, settleOnLock: settleOnLock},
		Provider:   fake.New(),
		Cfg:        config.Config{FrontURL: "https://banca.example"},
		Storefront: config.NewStaticStorefrontConfigHolder(config.DefaultStorefrontConfig()),
		Clock:      orders.Clock,
	})
	return svc, orders, db, calls
}

func TestCheckoutLocksOrderBeforePaymentRecord(t *testing.T) {
	svc, orders, db, calls := newLoggedService(t, false)
	testutil.SeedItem(t, db, 1, 1, "6.25", 10, 0)
	orderID := createOrder(t, orders, 2)

	_, err := svc.CreatePreference(context.Background(), orderID)
	require.NoError(t, err)
	assert.Equal(t, []string{"lock_order", "upsert_payment", "update_order_payment"}, calls.calls)
}

func TestCheckoutStopsWhenOrderSettledMeanwhile(t *testing.T) {
	svc, orders, db, calls := newLoggedService(t, true)
	testutil.SeedItem(t, db, 1, 1, "6.25", 10, 0)
	orderID := createOrder(t, orders, 2)

	_, err := svc.CreatePreference(context.Background(), orderID)
	assert.ErrorIs(t, err, domain.ErrOrderAlreadyPaid)
	assert.Equal(t, []string{"lock_order"}, calls.calls)
	testutil.AssertCount(t, db, `SELECT COUNT(*) FROM payment_records`, 0)
}
