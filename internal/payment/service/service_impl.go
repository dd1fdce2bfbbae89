package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/banca/internal/clock"
	"github.com/smallbiznis/banca/internal/config"
	obslogger "github.com/smallbiznis/banca/internal/observability/logger"
	orderdomain "github.com/smallbiznis/banca/internal/order/domain"
	"github.com/smallbiznis/banca/internal/payment/domain"
	"github.com/smallbiznis/banca/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const currencyBRL = "BRL"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	OrderRepo  orderdomain.Repository
	Provider   domain.ProviderClient
	Lock       *ratelimit.KeyedLock `optional:"true"`
	Cfg        config.Config
	Storefront *config.StorefrontConfigHolder
	Clock      clock.Clock
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	orderRepo  orderdomain.Repository
	provider   domain.ProviderClient
	lock       *ratelimit.KeyedLock
	cfg        config.Config
	storefront *config.StorefrontConfigHolder
	clock      clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		orderRepo:  p.OrderRepo,
		provider:   p.Provider,
		lock:       p.Lock,
		cfg:        p.Cfg,
		storefront: p.Storefront,
		clock:      p.Clock,
	}
}

func (s *Service) CreatePreference(ctx context.Context, orderID string) (*domain.PreferenceResponse, error) {
	order, release, err := s.prepare(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	storefront := s.storefront.Get()
	if order.Total.LessThan(storefront.MinimumAmountDecimal()) {
		return nil, domain.ErrAmountBelowMinimum
	}

	ref := strconv.FormatInt(order.ID, 10)
	pref, err := s.provider.CreatePreference(ctx, domain.PreferenceRequest{
		Items: []domain.PreferenceItem{{
			Title:      fmt.Sprintf("%s - %s", ref, storefront.Title),
			Quantity:   1,
			CurrencyID: currency(storefront),
			UnitPrice:  order.Total.Round(2),
		}},
		ExternalReference:    ref,
		SuccessURL:           s.customerURL(ref),
		PendingURL:           s.customerURL(ref),
		FailureURL:           s.customerURL(ref),
		NotificationURL:      s.notificationURL(),
		StatementDescriptor:  storefront.StatementDescriptor,
		ExcludedPaymentTypes: storefront.ExcludedPaymentTypes,
		BinaryMode:           true,
	})
	if err != nil {
		return nil, s.providerFailure("create preference", order.ID, err)
	}

	raw, _ := json.Marshal(map[string]string{
		"preference_id": pref.ID,
		"init_point":    pref.CheckoutURL(),
	})
	if err := s.saveCheckout(ctx, order.ID, pref.ID, "", pref.CheckoutURL(), "", raw); err != nil {
		return nil, err
	}
	obslogger.WithPayment(obslogger.WithOrder(obslogger.WithContext(ctx, s.log), order.ID), pref.ID, "").
		Info("checkout preference created")

	return &domain.PreferenceResponse{
		PreferenceID: pref.ID,
		InitPoint:    pref.CheckoutURL(),
	}, nil
}

func (s *Service) CreatePixCharge(ctx context.Context, orderID string, payer *domain.Payer) (*domain.Charge, error) {
	order, release, err := s.prepare(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	storefront := s.storefront.Get()
	amount := order.Total.Round(2)
	if pixMin := storefront.PixMinimumAmountDecimal(); amount.LessThan(pixMin) {
		amount = pixMin
	}

	ref := strconv.FormatInt(order.ID, 10)
	p := domain.Payer{Email: fmt.Sprintf("cliente%s@example.com", ref)}
	if payer != nil && strings.TrimSpace(payer.Email) != "" {
		p = *payer
		p.Email = strings.TrimSpace(p.Email)
	}

	charge, err := s.provider.CreateCharge(ctx, domain.ChargeRequest{
		Amount:            amount,
		Description:       fmt.Sprintf("%s - %s", ref, storefront.Title),
		ExternalReference: ref,
		NotificationURL:   s.notificationURL(),
		Payer:             p,
		IdempotencyKey:    fmt.Sprintf("pix:%s:%s", ref, amount.StringFixed(2)),
	})
	if err != nil {
		return nil, s.providerFailure("create pix charge", order.ID, err)
	}

	detail := charge.StatusDetail
	if detail == "" {
		detail = charge.Status
	}
	if err := s.saveCheckout(ctx, order.ID, charge.ID, charge.ID, charge.TicketURL, detail, charge.Raw); err != nil {
		return nil, err
	}
	obslogger.WithPayment(obslogger.WithOrder(obslogger.WithContext(ctx, s.log), order.ID), charge.ID, charge.ID).
		Info("pix charge created")
	return charge, nil
}

func (s *Service) GetByOrderID(ctx context.Context, orderID string) (*domain.PaymentRecord, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, err
	}
	record, err := s.repo.FindByOrderID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrPaymentNotFound
	}
	return record, nil
}

// prepare takes the per-order creation lock and loads the order.
func (s *Service) prepare(ctx context.Context, orderID string) (*orderdomain.Order, func(), error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return nil, nil, err
	}

	release, err := s.lock.Acquire(ctx, ratelimit.PaymentCreateKey(id))
	if err != nil {
		if errors.Is(err, ratelimit.ErrLockHeld) {
			return nil, nil, domain.ErrPaymentInProgress
		}
		return nil, nil, err
	}

	order, err := s.orderRepo.FindByID(ctx, s.db, id)
	if err != nil {
		release()
		return nil, nil, err
	}
	if order == nil {
		release()
		return nil, nil, domain.ErrOrderNotFound
	}
	if order.Settled() {
		release()
		return nil, nil, domain.ErrOrderAlreadyPaid
	}
	return order, release, nil
}

func (s *Service) saveCheckout(ctx context.Context, orderID int64, providerRef, providerPaymentID, checkoutURL, detail string, raw []byte) error {
	now := s.clock.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Order row first, then payment_records, same as settlement.
		order, err := s.orderRepo.LockByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrOrderNotFound
		}
		if order.Settled() {
			return domain.ErrOrderAlreadyPaid
		}

		err = s.repo.Upsert(ctx, tx, &domain.PaymentRecord{
			ID:           s.genID.Generate().Int64(),
			OrderID:      orderID,
			ProviderRef:  providerRef,
			Status:       domain.StatusPending,
			StatusDetail: detail,
			CheckoutURL:  checkoutURL,
			Raw:          domain.RawJSON(raw),
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		if err != nil {
			return err
		}
		return s.orderRepo.UpdatePayment(ctx, tx, orderID, providerPaymentID, checkoutURL, now)
	})
}

func (s *Service) providerFailure(op string, orderID int64, err error) error {
	obslogger.WithOrder(s.log, orderID).Warn("payment provider call failed",
		zap.String("op", op),
		zap.Error(err),
	)
	if errors.Is(err, domain.ErrProviderUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
}

func (s *Service) customerURL(ref string) string {
	base := strings.TrimRight(s.cfg.FrontURL, "/")
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s/cliente?pedido=%s", base, ref)
}

func (s *Service) notificationURL() string {
	base := strings.TrimRight(s.cfg.BackendURL, "/")
	if base == "" {
		return ""
	}
	return base + "/api/payments/webhook"
}

func currency(cfg config.StorefrontConfig) string {
	if c := strings.TrimSpace(cfg.Currency); c != "" {
		return c
	}
	return currencyBRL
}

func parseOrderID(raw string) (int64, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id.Int64() <= 0 {
		return 0, domain.ErrInvalidOrderID
	}
	return id.Int64(), nil
}
