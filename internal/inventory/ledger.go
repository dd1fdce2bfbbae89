// Package inventory owns the sold counters of catalog items.
package inventory

import (
	"context"
	"sort"

	catalogdomain "github.com/smallbiznis/banca/internal/catalog/domain"
	"github.com/smallbiznis/banca/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Sale is one line of a paid order.
type Sale struct {
	ItemID int64
	Qty    int
}

// Adjustment reports what CommitSale did to one item.
type Adjustment struct {
	ItemID    int64
	Requested int
	Applied   int
	SoldCount int
	Clamped   bool
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Repo       catalogdomain.Repository
	ObsMetrics *metrics.Metrics `optional:"true"`
}

type Ledger struct {
	log        *zap.Logger
	repo       catalogdomain.Repository
	obsMetrics *metrics.Metrics
}

func New(p Params) *Ledger {
	return &Ledger{
		log:        p.Log.Named("inventory.ledger"),
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

// ReserveCheck reports whether qty units are currently available. It does not reserve anything.
func ReserveCheck(item catalogdomain.Item, qty int) bool {
	return qty > 0 && item.Available() >= qty
}

// CommitSale adds the sold quantities inside tx. Items are locked in ascending
// id order and each counter is clamped at max(stock_initial, 0). Items that
// no longer exist are skipped.
func (l *Ledger) CommitSale(ctx context.Context, tx *gorm.DB, sales []Sale) ([]Adjustment, error) {
	requested := make(map[int64]int, len(sales))
	for _, sale := range sales {
		if sale.Qty <= 0 {
			continue
		}
		requested[sale.ItemID] += sale.Qty
	}
	if len(requested) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	items, err := l.repo.LockItems(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	adjustments := make([]Adjustment, 0, len(items))
	for _, item := range items {
		qty := requested[item.ID]
		ceiling := item.StockCeiling()
		next := item.SoldCount + qty
		clamped := false
		if next > ceiling {
			next = ceiling
			clamped = true
		}
		// A counter already above the ceiling (stock lowered after sales) is left alone.
		if next < item.SoldCount {
			next = item.SoldCount
		}

		if next != item.SoldCount {
			if err := l.repo.UpdateSoldCount(ctx, tx, item.ID, next); err != nil {
				return nil, err
			}
		}

		adj := Adjustment{
			ItemID:    item.ID,
			Requested: qty,
			Applied:   next - item.SoldCount,
			SoldCount: next,
			Clamped:   clamped,
		}
		if clamped {
			l.log.Warn("sale clamped at stock ceiling",
				zap.Int64("item_id", item.ID),
				zap.Int64("sku", item.SKU),
				zap.Int("requested", qty),
				zap.Int("applied", adj.Applied),
				zap.Int("stock_initial", item.StockInitial),
			)
			l.obsMetrics.RecordInventoryClamp(ctx)
		}
		adjustments = append(adjustments, adj)
	}

	return adjustments, nil
}
