// Package reconcile decides whether an order has been paid and, when it has,
// applies the paid transition exactly once.
//
// paid-once: an order moves to paid and its inventory is committed only
// inside the settlement transaction, after a locked re-read of the order and
// its payment record shows none of record approved, order paid or paid_at
// set. Provider calls always happen before that transaction begins.
package reconcile

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/smallbiznis/banca/internal/cache"
	"github.com/smallbiznis/banca/internal/clock"
	obslogger "github.com/smallbiznis/banca/internal/observability/logger"
	"github.com/smallbiznis/banca/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/banca/internal/order/domain"
	"github.com/smallbiznis/banca/internal/orderevents"
	"github.com/smallbiznis/banca/internal/payment/domain"
	"github.com/smallbiznis/banca/internal/statuslog"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ReasonPaymentNotFound    = "payment_not_found"
	ReasonOrderNotFound      = "order_not_found"
	ReasonMissingIdentifiers = "missing_identifiers"
	ReasonNotPaid            = "not_paid"
	ReasonProviderError      = "provider_unavailable"
	ReasonSettlementFailed   = "settlement_failed"
)

// Notification is what a webhook (or a manual resync) tells us about a payment.
type Notification struct {
	Topic             string
	PaymentID         string
	PreferenceID      string
	ExternalReference string
	Payload           map[string]any
}

func (n Notification) empty() bool {
	return n.PaymentID == "" && n.PreferenceID == "" && n.ExternalReference == ""
}

type OutcomeKind string

const (
	DefinitivePaid OutcomeKind = "definitive_paid"
	NotDefinitive  OutcomeKind = "not_definitive"
	TransientError OutcomeKind = "transient_error"
)

// ProviderOutcome is the result of one provider lookup.
type ProviderOutcome struct {
	Kind   OutcomeKind `json:"kind"`
	Source string      `json:"source"`
	Status string      `json:"status,omitempty"`
	Err    error       `json:"-"`
}

type Result struct {
	OK         bool              `json:"ok"`
	Paid       bool              `json:"paid,omitempty"`
	Idempotent bool              `json:"idempotent,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Outcomes   []ProviderOutcome `json:"-"`
}

// Label is the metric and journal label of the result.
func (r Result) Label() string {
	switch {
	case r.Idempotent:
		return "idempotent"
	case r.Paid:
		return "paid"
	case r.Reason != "":
		return r.Reason
	default:
		return ReasonNotPaid
	}
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Repo        domain.Repository
	OrderRepo   orderdomain.Repository
	Settlement  orderdomain.Settlement
	Provider    domain.ProviderClient
	StatusLog   *statuslog.Recorder
	Events      orderevents.Broadcaster
	StatusCache cache.OrderStatusCache
	Clock       clock.Clock
	ObsMetrics  *metrics.Metrics `optional:"true"`
}

type Engine struct {
	db          *gorm.DB
	log         *zap.Logger
	repo        domain.Repository
	orderRepo   orderdomain.Repository
	settlement  orderdomain.Settlement
	provider    domain.ProviderClient
	statusLog   *statuslog.Recorder
	events      orderevents.Broadcaster
	statusCache cache.OrderStatusCache
	clock       clock.Clock
	obsMetrics  *metrics.Metrics
}

func New(p Params) *Engine {
	statusCache := p.StatusCache
	if statusCache == nil {
		statusCache = cache.NewNoopOrderStatusCache()
	}
	return &Engine{
		db:          p.DB,
		log:         p.Log.Named("payment.reconcile"),
		repo:        p.Repo,
		orderRepo:   p.OrderRepo,
		settlement:  p.Settlement,
		provider:    p.Provider,
		statusLog:   p.StatusLog,
		events:      p.Events,
		statusCache: statusCache,
		clock:       p.Clock,
		obsMetrics:  p.ObsMetrics,
	}
}

// Reconcile resolves the notification to a payment record, asks the provider
// whether it is paid and settles the order when it is. Provider failures are
// reported as outcomes, never as errors; only storage failures are returned.
func (e *Engine) Reconcile(ctx context.Context, n Notification) (Result, error) {
	res, err := e.reconcile(ctx, n)
	e.obsMetrics.RecordReconciliation(ctx, res.Label())
	return res, err
}

// Resync reconciles the payment of one order on demand.
func (e *Engine) Resync(ctx context.Context, orderID string) (Result, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(orderID), 10, 64)
	if err != nil || id <= 0 {
		return Result{}, domain.ErrInvalidOrderID
	}
	record, err := e.repo.FindByOrderID(ctx, e.db, id)
	if err != nil {
		return Result{}, err
	}
	if record == nil {
		return Result{}, domain.ErrPaymentNotFound
	}

	n := Notification{
		Topic:             "resync",
		PreferenceID:      record.ProviderRef,
		ExternalReference: strconv.FormatInt(id, 10),
	}
	order, err := e.orderRepo.FindByID(ctx, e.db, id)
	if err != nil {
		return Result{}, err
	}
	if order != nil && order.ProviderPaymentID != "" {
		n.PaymentID = order.ProviderPaymentID
	}
	return e.Reconcile(ctx, n)
}

func (e *Engine) reconcile(ctx context.Context, n Notification) (Result, error) {
	if n.empty() {
		return Result{OK: false, Reason: ReasonMissingIdentifiers}, nil
	}

	record, err := e.resolve(ctx, n)
	if err != nil {
		return Result{OK: false, Reason: ReasonSettlementFailed}, err
	}
	if record == nil {
		return Result{OK: false, Reason: ReasonPaymentNotFound}, nil
	}

	order, err := e.orderRepo.FindByID(ctx, e.db, record.OrderID)
	if err != nil {
		return Result{OK: false, Reason: ReasonSettlementFailed}, err
	}
	if order == nil {
		return Result{OK: false, Reason: ReasonOrderNotFound}, nil
	}
	if record.Approved() || order.Settled() {
		return Result{OK: true, Idempotent: true}, nil
	}

	check := e.determine(ctx, n, record)
	if !check.paid {
		return e.keepPending(ctx, n, record, check)
	}
	return e.settle(ctx, n, record.OrderID, check)
}

// resolve finds the payment record by order id first, then by provider reference.
func (e *Engine) resolve(ctx context.Context, n Notification) (*domain.PaymentRecord, error) {
	if orderID, err := strconv.ParseInt(n.ExternalReference, 10, 64); err == nil && orderID > 0 {
		record, err := e.repo.FindByOrderID(ctx, e.db, orderID)
		if err != nil || record != nil {
			return record, err
		}
	}
	for _, ref := range []string{n.PreferenceID, n.PaymentID} {
		if ref == "" {
			continue
		}
		record, err := e.repo.FindByProviderRef(ctx, e.db, ref)
		if err != nil || record != nil {
			return record, err
		}
	}
	return nil, nil
}

type paidCheck struct {
	paid          bool
	payment       *domain.ProviderPayment
	merchantOrder *domain.MerchantOrder
	outcomes      []ProviderOutcome
}

// determine asks the provider in two tiers. A definitive payment lookup skips
// the merchant order search.
func (e *Engine) determine(ctx context.Context, n Notification, record *domain.PaymentRecord) paidCheck {
	var check paidCheck

	if n.PaymentID != "" {
		payment, err := e.provider.FetchPayment(ctx, n.PaymentID)
		switch {
		case err != nil:
			check.outcomes = append(check.outcomes, e.transient(record, "payment", err))
		case payment.Approved():
			check.payment = payment
			check.paid = true
			check.outcomes = append(check.outcomes, ProviderOutcome{Kind: DefinitivePaid, Source: "payment", Status: payment.Status})
			return check
		default:
			check.payment = payment
			check.outcomes = append(check.outcomes, ProviderOutcome{Kind: NotDefinitive, Source: "payment", Status: payment.Status})
		}
	}

	queries := make([]domain.MerchantOrderQuery, 0, 2)
	if record.ProviderRef != "" {
		queries = append(queries, domain.MerchantOrderQuery{PreferenceID: record.ProviderRef})
	}
	queries = append(queries, domain.MerchantOrderQuery{ExternalReference: strconv.FormatInt(record.OrderID, 10)})

	for _, q := range queries {
		mo, err := e.provider.SearchMerchantOrder(ctx, q)
		if err != nil {
			check.outcomes = append(check.outcomes, e.transient(record, "merchant_order", err))
			continue
		}
		if mo == nil {
			continue
		}
		check.merchantOrder = mo
		if mo.Paid() {
			check.paid = true
			check.outcomes = append(check.outcomes, ProviderOutcome{Kind: DefinitivePaid, Source: "merchant_order", Status: mo.OrderStatus})
			return check
		}
		check.outcomes = append(check.outcomes, ProviderOutcome{Kind: NotDefinitive, Source: "merchant_order", Status: mo.OrderStatus})
	}
	return check
}

func (e *Engine) transient(record *domain.PaymentRecord, source string, err error) ProviderOutcome {
	obslogger.WithPayment(obslogger.WithOrder(e.log, record.OrderID), record.ProviderRef, "").Warn("provider lookup failed",
		zap.String("source", source),
		zap.Error(err),
	)
	return ProviderOutcome{Kind: TransientError, Source: source, Err: err}
}

func (e *Engine) keepPending(ctx context.Context, n Notification, record *domain.PaymentRecord, check paidCheck) (Result, error) {
	detail := record.StatusDetail
	if check.payment != nil && check.payment.StatusDetail != "" {
		detail = check.payment.StatusDetail
	}
	if detail == "" {
		detail = domain.StatusPending
	}

	raw := snapshot(n, check)
	if err := e.repo.UpdatePendingDetail(ctx, e.db, record.ID, detail, raw, e.clock.Now()); err != nil {
		return Result{OK: false, Reason: ReasonSettlementFailed, Outcomes: check.outcomes}, err
	}

	res := Result{OK: true, Paid: false, Outcomes: check.outcomes}
	if allTransient(check.outcomes) {
		res.Reason = ReasonProviderError
	}
	return res, nil
}

func (e *Engine) settle(ctx context.Context, n Notification, orderID int64, check paidCheck) (Result, error) {
	var (
		idempotent bool
		from       string
		settled    orderdomain.Order
	)
	log := obslogger.WithPayment(obslogger.WithOrder(obslogger.WithContext(ctx, e.log), orderID), "", n.PaymentID)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := e.orderRepo.LockByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrOrderNotFound
		}
		record, err := e.repo.LockByOrderID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if record == nil {
			return domain.ErrPaymentNotFound
		}
		if record.Approved() || order.Settled() {
			idempotent = true
			return nil
		}
		if order.Status == orderdomain.StatusCancelled {
			log.Warn("payment approved for cancelled order")
		}

		record.Status = domain.StatusApproved
		record.StatusDetail = domain.StatusApproved
		record.Raw = domain.RawJSON(snapshot(n, check))
		record.UpdatedAt = e.clock.Now()
		if err := e.repo.UpdateState(ctx, tx, record); err != nil {
			return err
		}

		from = order.Status
		if err := e.settlement.ApplyPaid(ctx, tx, order); err != nil {
			return err
		}
		settled = *order
		return nil
	})
	if err != nil {
		log.Error("payment settlement failed", zap.Error(err))
		return Result{OK: false, Reason: ReasonSettlementFailed, Outcomes: check.outcomes}, err
	}
	if idempotent {
		return Result{OK: true, Idempotent: true, Outcomes: check.outcomes}, nil
	}

	_ = e.statusLog.Record(ctx, orderID, from, orderdomain.StatusPaid, statuslog.SourceReconciliation)
	e.afterPaid(ctx, &settled)

	log.Info("order paid",
		zap.String("topic", n.Topic),
		zap.String("from", from),
	)
	return Result{OK: true, Paid: true, Outcomes: check.outcomes}, nil
}

func (e *Engine) afterPaid(ctx context.Context, order *orderdomain.Order) {
	log := obslogger.WithOrder(e.log, order.ID)
	err := e.statusCache.Set(ctx, order.ID, cache.OrderStatus{
		ID:        strconv.FormatInt(order.ID, 10),
		Status:    order.Status,
		PaidAt:    order.PaidAt,
		UpdatedAt: order.UpdatedAt,
	})
	if err != nil {
		log.Warn("order status cache write failed", zap.Error(err))
	}
	if e.events == nil {
		return
	}
	err = e.events.Broadcast(ctx, orderevents.Event{
		Event:  orderevents.EventOrderPaid,
		ID:     strconv.FormatInt(order.ID, 10),
		Status: order.Status,
	})
	if err != nil {
		log.Warn("order_paid broadcast failed", zap.Error(err))
	}
}

func allTransient(outcomes []ProviderOutcome) bool {
	if len(outcomes) == 0 {
		return false
	}
	for _, o := range outcomes {
		if o.Kind != TransientError {
			return false
		}
	}
	return true
}

// snapshot is the raw provider view persisted on the payment record.
func snapshot(n Notification, check paidCheck) []byte {
	doc := map[string]any{"webhook": n.Payload}
	if check.payment != nil {
		doc["payment"] = rawOrNil(check.payment.Raw, map[string]any{
			"id":            check.payment.ID,
			"status":        check.payment.Status,
			"status_detail": check.payment.StatusDetail,
		})
	}
	if check.merchantOrder != nil {
		doc["merchant_order"] = rawOrNil(check.merchantOrder.Raw, map[string]any{
			"id":           check.merchantOrder.ID,
			"order_status": check.merchantOrder.OrderStatus,
		})
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil
	}
	return b
}

func rawOrNil(raw []byte, fallback map[string]any) any {
	if len(raw) > 0 && json.Valid(raw) {
		return json.RawMessage(raw)
	}
	return fallback
}
