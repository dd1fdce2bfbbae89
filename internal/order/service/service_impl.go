package service

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/banca/internal/cache"
	catalogdomain "github.com/smallbiznis/banca/internal/catalog/domain"
	"github.com/smallbiznis/banca/internal/clock"
	"github.com/smallbiznis/banca/internal/config"
	"github.com/smallbiznis/banca/internal/inventory"
	obslogger "github.com/smallbiznis/banca/internal/observability/logger"
	"github.com/smallbiznis/banca/internal/observability/metrics"
	"github.com/smallbiznis/banca/internal/order/domain"
	"github.com/smallbiznis/banca/internal/orderevents"
	paymentdomain "github.com/smallbiznis/banca/internal/payment/domain"
	"github.com/smallbiznis/banca/internal/statuslog"
	"github.com/smallbiznis/banca/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	CatalogRepo catalogdomain.Repository
	PaymentRepo paymentdomain.Repository
	Ledger      *inventory.Ledger
	StatusLog   *statuslog.Recorder
	Events      orderevents.Broadcaster
	StatusCache cache.OrderStatusCache
	Clock       clock.Clock
	Storefront  *config.StorefrontConfigHolder
	ObsMetrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	catalogRepo catalogdomain.Repository
	paymentRepo paymentdomain.Repository
	ledger      *inventory.Ledger
	statusLog   *statuslog.Recorder
	events      orderevents.Broadcaster
	statusCache cache.OrderStatusCache
	clock       clock.Clock
	storefront  *config.StorefrontConfigHolder
	obsMetrics  *metrics.Metrics
}

func New(p Params) *Service {
	statusCache := p.StatusCache
	if statusCache == nil {
		statusCache = cache.NewNoopOrderStatusCache()
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("order.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		catalogRepo: p.CatalogRepo,
		paymentRepo: p.PaymentRepo,
		ledger:      p.Ledger,
		statusLog:   p.StatusLog,
		events:      p.Events,
		statusCache: statusCache,
		clock:       p.Clock,
		storefront:  p.Storefront,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.OrderResponse, error) {
	if len(req.Items) == 0 {
		return nil, domain.ErrEmptyItems
	}
	skus := make([]int64, 0, len(req.Items))
	for _, line := range req.Items {
		if line.SKU <= 0 || line.Qty <= 0 {
			return nil, &domain.LineError{SKU: line.SKU, Err: domain.ErrInvalidItem}
		}
		skus = append(skus, line.SKU)
	}

	paymentMethod := strings.TrimSpace(req.PaymentMethod)
	if paymentMethod == "" {
		paymentMethod = s.storefront.Get().DefaultPaymentMethod
	}

	now := s.clock.Now()
	order := &domain.Order{
		ID:              s.genID.Generate().Int64(),
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerPhone:   normalizePhone(req.CustomerPhone),
		Status:          domain.StatusAwaitingPayment,
		PaymentMethod:   paymentMethod,
		Note:            strings.TrimSpace(req.Note),
		PackagingNeeded: req.PackagingNeeded,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items, err := s.catalogRepo.FindItemsBySKU(ctx, tx, skus)
		if err != nil {
			return err
		}
		bySKU := make(map[int64]catalogdomain.Item, len(items))
		for _, item := range items {
			bySKU[item.SKU] = item
		}

		// Duplicate sku lines count against availability together.
		wanted := make(map[int64]int, len(req.Items))
		total := decimal.Zero
		for i, line := range req.Items {
			item, ok := bySKU[line.SKU]
			if !ok || !item.Active {
				return &domain.LineError{SKU: line.SKU, Err: domain.ErrInvalidSKU}
			}
			wanted[line.SKU] += line.Qty
			if !inventory.ReserveCheck(item, wanted[line.SKU]) {
				return &domain.StockError{SKU: line.SKU, Requested: wanted[line.SKU], Available: item.Available()}
			}

			ln := domain.Line{
				ID:       s.genID.Generate().Int64(),
				OrderID:  order.ID,
				ItemID:   item.ID,
				SKU:      item.SKU,
				Name:     item.Name,
				Price:    item.Price,
				Qty:      line.Qty,
				Position: i,
			}
			total = total.Add(ln.Subtotal())
			order.Lines = append(order.Lines, ln)
		}
		order.Total = total.Round(2)

		return s.repo.Insert(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordOrderCreated(ctx)
	s.afterChange(ctx, order, orderevents.EventOrderUpdated)

	resp := toOrderResponse(order)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.OrderResponse, error) {
	order, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toOrderResponse(order)
	return &resp, nil
}

// Load returns the order with its lines.
func (s *Service) Load(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.FindLines(ctx, s.db, []int64{order.ID})
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return order, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status != "" && !domain.ValidStatus(status) {
		return nil, domain.ErrInvalidStatus
	}

	var beforeID int64
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, err
		}
		beforeID, err = strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil || beforeID <= 0 {
			return nil, pagination.ErrInvalidPageToken
		}
	}

	limit := req.Limit()
	orders, err := s.repo.List(ctx, s.db, domain.ListFilter{
		Status:   status,
		BeforeID: beforeID,
		Limit:    limit + 1,
	})
	if err != nil {
		return nil, err
	}

	ptrs := make([]*domain.Order, 0, len(orders))
	for i := range orders {
		ptrs = append(ptrs, &orders[i])
	}
	page, pageInfo := pagination.BuildCursorPageInfo(ptrs, limit, func(o *domain.Order) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{ID: strconv.FormatInt(o.ID, 10)})
		if err != nil {
			return ""
		}
		return token
	})

	ids := make([]int64, 0, len(page))
	for _, o := range page {
		ids = append(ids, o.ID)
	}
	lines, err := s.repo.FindLines(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	byOrder := make(map[int64][]domain.Line, len(page))
	for _, line := range lines {
		byOrder[line.OrderID] = append(byOrder[line.OrderID], line)
	}

	resp := &domain.ListResponse{
		Orders:   make([]domain.OrderResponse, 0, len(page)),
		PageInfo: *pageInfo,
	}
	for _, o := range page {
		o.Lines = byOrder[o.ID]
		resp.Orders = append(resp.Orders, toOrderResponse(o))
	}
	return resp, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id string, to string) (*domain.StatusChange, error) {
	orderID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	to = strings.ToLower(strings.TrimSpace(to))
	if !domain.ValidStatus(to) {
		return nil, domain.ErrInvalidStatus
	}

	var (
		from    string
		changed bool
		updated domain.Order
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.LockByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrNotFound
		}
		from = order.Status
		if from == to {
			return nil
		}
		if !domain.CanTransition(from, to) {
			return &domain.TransitionError{From: from, To: to}
		}

		if to == domain.StatusPaid {
			if err := s.ApplyPaid(ctx, tx, order); err != nil {
				return err
			}
			if err := s.approvePayment(ctx, tx, order.ID); err != nil {
				return err
			}
		} else {
			order.Status = to
			order.UpdatedAt = s.clock.Now()
			if err := s.repo.UpdateStatus(ctx, tx, order); err != nil {
				return err
			}
		}
		changed = true
		updated = *order
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		_ = s.statusLog.Record(ctx, orderID, from, to, statuslog.SourceStaff)
		s.afterChange(ctx, &updated, orderevents.EventOrderUpdated)
	}
	return &domain.StatusChange{OK: true, From: from, To: to}, nil
}

// ApplyPaid implements domain.Settlement.
func (s *Service) ApplyPaid(ctx context.Context, tx *gorm.DB, order *domain.Order) error {
	if order == nil {
		return domain.ErrNotFound
	}
	now := s.clock.Now()
	if order.PaidAt == nil {
		paidAt := now
		order.PaidAt = &paidAt

		lines, err := s.repo.FindLines(ctx, tx, []int64{order.ID})
		if err != nil {
			return err
		}
		sales := make([]inventory.Sale, 0, len(lines))
		for _, line := range lines {
			sales = append(sales, inventory.Sale{ItemID: line.ItemID, Qty: line.Qty})
		}
		if _, err := s.ledger.CommitSale(ctx, tx, sales); err != nil {
			return err
		}
	}
	order.Status = domain.StatusPaid
	order.UpdatedAt = now
	return s.repo.UpdateStatus(ctx, tx, order)
}

func (s *Service) approvePayment(ctx context.Context, tx *gorm.DB, orderID int64) error {
	record, err := s.paymentRepo.LockByOrderID(ctx, tx, orderID)
	if err != nil || record == nil || record.Approved() {
		return err
	}
	record.Status = paymentdomain.StatusApproved
	record.StatusDetail = "manual"
	record.UpdatedAt = s.clock.Now()
	return s.paymentRepo.UpdateState(ctx, tx, record)
}

func (s *Service) Status(ctx context.Context, id string) (*domain.StatusResponse, error) {
	orderID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	cached, err := s.statusCache.Get(ctx, orderID)
	if err != nil {
		obslogger.WithOrder(s.log, orderID).Warn("order status cache read failed", zap.Error(err))
	}
	if cached != nil {
		return &domain.StatusResponse{ID: id, Status: cached.Status, PaidAt: cached.PaidAt}, nil
	}

	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	s.cacheStatus(ctx, order)
	return &domain.StatusResponse{ID: id, Status: order.Status, PaidAt: order.PaidAt}, nil
}

func (s *Service) History(ctx context.Context, id string) ([]statuslog.Entry, error) {
	order, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.statusLog.List(ctx, order.ID)
}

func (s *Service) find(ctx context.Context, id string) (*domain.Order, error) {
	orderID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	return order, nil
}

// afterChange refreshes the status cache and notifies listeners. Failures are
// logged and never returned.
func (s *Service) afterChange(ctx context.Context, order *domain.Order, event string) {
	s.cacheStatus(ctx, order)
	if s.events == nil {
		return
	}
	err := s.events.Broadcast(ctx, orderevents.Event{
		Event:  event,
		ID:     strconv.FormatInt(order.ID, 10),
		Status: order.Status,
	})
	if err != nil {
		obslogger.WithOrder(obslogger.WithContext(ctx, s.log), order.ID).Warn("order event broadcast failed",
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

func (s *Service) cacheStatus(ctx context.Context, order *domain.Order) {
	err := s.statusCache.Set(ctx, order.ID, cache.OrderStatus{
		ID:        strconv.FormatInt(order.ID, 10),
		Status:    order.Status,
		PaidAt:    order.PaidAt,
		UpdatedAt: order.UpdatedAt,
	})
	if err != nil {
		obslogger.WithOrder(s.log, order.ID).Warn("order status cache write failed", zap.Error(err))
	}
}

func parseID(id string) (int64, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed.Int64() <= 0 {
		return 0, domain.ErrInvalidID
	}
	return parsed.Int64(), nil
}

func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func toOrderResponse(order *domain.Order) domain.OrderResponse {
	resp := domain.OrderResponse{
		ID:                strconv.FormatInt(order.ID, 10),
		CustomerName:      order.CustomerName,
		CustomerPhone:     order.CustomerPhone,
		Total:             order.Total,
		Status:            order.Status,
		PaymentMethod:     order.PaymentMethod,
		ProviderPaymentID: order.ProviderPaymentID,
		PaymentLink:       order.PaymentLink,
		Note:              order.Note,
		PackagingNeeded:   order.PackagingNeeded,
		Items:             make([]domain.LineResponse, 0, len(order.Lines)),
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
		PaidAt:            order.PaidAt,
	}
	for _, line := range order.Lines {
		resp.Items = append(resp.Items, domain.LineResponse{
			SKU:      line.SKU,
			Name:     line.Name,
			Price:    line.Price,
			Qty:      line.Qty,
			Subtotal: line.Subtotal(),
		})
	}
	return resp
}

var _ domain.Service = (*Service)(nil)
var _ domain.Settlement = (*Service)(nil)
