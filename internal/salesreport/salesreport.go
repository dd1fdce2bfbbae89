// Package salesreport aggregates sales figures for the dashboard and owns the
// end-of-event reset.
package salesreport

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/banca/internal/catalog/domain"
	"github.com/smallbiznis/banca/internal/clock"
	orderdomain "github.com/smallbiznis/banca/internal/order/domain"
	paymentdomain "github.com/smallbiznis/banca/internal/payment/domain"
	"github.com/smallbiznis/banca/internal/ratelimit"
	"github.com/smallbiznis/banca/internal/statuslog"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	topSellersLimit = 10
	defaultHistory  = 7
	maxHistoryDays  = 90
)

var (
	ErrResetInProgress = errors.New("reset_in_progress")
	ErrInvalidRange    = errors.New("invalid_range")
)

type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type ItemSales struct {
	ItemID  string          `json:"item_id"`
	SKU     int64           `json:"sku"`
	Name    string          `json:"name"`
	Sold    int64           `json:"sold"`
	Revenue decimal.Decimal `json:"revenue"`
}

type Summary struct {
	OrdersByStatus []StatusCount   `json:"orders_by_status"`
	TotalOrders    int64           `json:"total_orders"`
	PaidOrders     int64           `json:"paid_orders"`
	PaidRevenue    decimal.Decimal `json:"paid_revenue"`
	PaidToday      int64           `json:"paid_today"`
	RevenueToday   decimal.Decimal `json:"revenue_today"`
	AverageTicket  decimal.Decimal `json:"average_ticket"`
	TopSellers     []ItemSales     `json:"top_sellers"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

type DailySales struct {
	Day     string          `json:"day"`
	Orders  int64           `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

type ResetResult struct {
	OrdersDeleted int64 `json:"orders_deleted"`
	ItemsReset    int64 `json:"items_reset"`
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	OrderRepo   orderdomain.Repository
	PaymentRepo paymentdomain.Repository
	CatalogRepo catalogdomain.Repository
	Lock        *ratelimit.KeyedLock `optional:"true"`
	Clock       clock.Clock
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	orderRepo   orderdomain.Repository
	paymentRepo paymentdomain.Repository
	catalogRepo catalogdomain.Repository
	lock        *ratelimit.KeyedLock
	clock       clock.Clock
}

func New(p Params) *Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("salesreport.service"),
		orderRepo:   p.OrderRepo,
		paymentRepo: p.PaymentRepo,
		catalogRepo: p.CatalogRepo,
		lock:        p.Lock,
		clock:       p.Clock,
	}
}

// Summary counts every order by status; revenue figures only include settled
// orders that were not cancelled afterwards.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	now := s.clock.Now()
	dayStart := startOfDay(now)

	var byStatus []StatusCount
	if err := s.db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS count FROM orders GROUP BY status ORDER BY status`,
	).Scan(&byStatus).Error; err != nil {
		return nil, err
	}

	var total int64
	for _, sc := range byStatus {
		total += sc.Count
	}

	paid, err := s.revenueSince(ctx, time.Time{})
	if err != nil {
		return nil, err
	}
	today, err := s.revenueSince(ctx, dayStart)
	if err != nil {
		return nil, err
	}

	top, err := s.topSellers(ctx)
	if err != nil {
		return nil, err
	}

	avg := decimal.Zero
	if paid.Orders > 0 {
		avg = paid.Revenue.Div(decimal.NewFromInt(paid.Orders)).Round(2)
	}
	if byStatus == nil {
		byStatus = []StatusCount{}
	}

	return &Summary{
		OrdersByStatus: byStatus,
		TotalOrders:    total,
		PaidOrders:     paid.Orders,
		PaidRevenue:    paid.Revenue.Round(2),
		PaidToday:      today.Orders,
		RevenueToday:   today.Revenue.Round(2),
		AverageTicket:  avg,
		TopSellers:     top,
		GeneratedAt:    now,
	}, nil
}

// History returns one bucket per day for the last days days, oldest first.
// Days without sales are present with zero values.
func (s *Service) History(ctx context.Context, days int) ([]DailySales, error) {
	if days == 0 {
		days = defaultHistory
	}
	if days < 1 || days > maxHistoryDays {
		return nil, ErrInvalidRange
	}

	today := startOfDay(s.clock.Now())
	from := today.AddDate(0, 0, -(days - 1))

	var orders []struct {
		Total  decimal.Decimal
		PaidAt time.Time
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT total, paid_at FROM orders
		 WHERE paid_at IS NOT NULL AND paid_at >= ? AND status <> ?`,
		from, orderdomain.StatusCancelled,
	).Scan(&orders).Error; err != nil {
		return nil, err
	}

	buckets := make([]DailySales, days)
	index := make(map[string]int, days)
	for i := range buckets {
		day := from.AddDate(0, 0, i).Format(time.DateOnly)
		buckets[i] = DailySales{Day: day, Revenue: decimal.Zero}
		index[day] = i
	}
	for _, o := range orders {
		day := o.PaidAt.In(today.Location()).Format(time.DateOnly)
		i, ok := index[day]
		if !ok {
			continue
		}
		buckets[i].Orders++
		buckets[i].Revenue = buckets[i].Revenue.Add(o.Total)
	}
	return buckets, nil
}

// ResetSales wipes orders, lines, payments and the status trail and zeroes
// every sold_count, all in one transaction.
func (s *Service) ResetSales(ctx context.Context) (*ResetResult, error) {
	release, err := s.lock.Acquire(ctx, ratelimit.SalesResetKey)
	if err != nil {
		if errors.Is(err, ratelimit.ErrLockHeld) {
			return nil, ErrResetInProgress
		}
		return nil, err
	}
	defer release()

	var result ResetResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := statuslog.DeleteAll(ctx, tx); err != nil {
			return err
		}
		if err := s.paymentRepo.DeleteAll(ctx, tx); err != nil {
			return err
		}
		deleted, err := s.orderRepo.DeleteAll(ctx, tx)
		if err != nil {
			return err
		}
		reset, err := s.catalogRepo.ResetSoldCounts(ctx, tx)
		if err != nil {
			return err
		}
		result = ResetResult{OrdersDeleted: deleted, ItemsReset: reset}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Warn("sales reset",
		zap.Int64("orders_deleted", result.OrdersDeleted),
		zap.Int64("items_reset", result.ItemsReset),
	)
	return &result, nil
}

type revenue struct {
	Orders  int64
	Revenue decimal.Decimal
}

func (s *Service) revenueSince(ctx context.Context, since time.Time) (revenue, error) {
	var row struct {
		Orders  int64
		Revenue decimal.NullDecimal
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS orders, SUM(total) AS revenue FROM orders
		 WHERE paid_at IS NOT NULL AND paid_at >= ? AND status <> ?`,
		since, orderdomain.StatusCancelled,
	).Scan(&row).Error
	if err != nil {
		return revenue{}, err
	}
	out := revenue{Orders: row.Orders, Revenue: decimal.Zero}
	if row.Revenue.Valid {
		out.Revenue = row.Revenue.Decimal
	}
	return out, nil
}

func (s *Service) topSellers(ctx context.Context) ([]ItemSales, error) {
	var rows []struct {
		ItemID int64
		SKU    int64 `gorm:"column:sku"`
		Name   string
		Sold   int64
	}
	err := s.db.WithContext(ctx).Raw(
		`SELECT l.item_id AS item_id, MIN(l.sku) AS sku, MIN(l.name) AS name, SUM(l.qty) AS sold
		 FROM order_lines l
		 JOIN orders o ON o.id = l.order_id
		 WHERE o.paid_at IS NOT NULL AND o.status <> ?
		 GROUP BY l.item_id
		 ORDER BY sold DESC, l.item_id ASC
		 LIMIT ?`,
		orderdomain.StatusCancelled, topSellersLimit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []ItemSales{}, nil
	}

	// Revenue is summed in Go so decimal precision does not depend on the
	// driver's numeric handling.
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ItemID)
	}
	var lines []orderdomain.Line
	err = s.db.WithContext(ctx).Raw(
		`SELECT l.* FROM order_lines l
		 JOIN orders o ON o.id = l.order_id
		 WHERE o.paid_at IS NOT NULL AND o.status <> ? AND l.item_id IN ?`,
		orderdomain.StatusCancelled, ids,
	).Scan(&lines).Error
	if err != nil {
		return nil, err
	}
	revenueByItem := make(map[int64]decimal.Decimal, len(rows))
	for _, l := range lines {
		revenueByItem[l.ItemID] = revenueByItem[l.ItemID].Add(l.Subtotal())
	}

	out := make([]ItemSales, 0, len(rows))
	for _, r := range rows {
		out = append(out, ItemSales{
			ItemID:  formatID(r.ItemID),
			SKU:     r.SKU,
			Name:    r.Name,
			Sold:    r.Sold,
			Revenue: revenueByItem[r.ItemID].Round(2),
		})
	}
	return out, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
