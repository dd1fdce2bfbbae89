package inventory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/banca/internal/catalog/domain"
	"github.com/smallbiznis/banca/internal/catalog/repository"
	"github.com/smallbiznis/banca/internal/inventory"
	"github.com/smallbiznis/banca/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func seedItem(t *testing.T, db *gorm.DB, id, sku int64, stock, sold int) {
	t.Helper()
	now := time.Now().UTC()
	err := repository.Provide().CreateItem(context.Background(), db, &catalogdomain.Item{
		ID:           id,
		SKU:          sku,
		Name:         "item",
		Price:        decimal.RequireFromString("5.00"),
		Active:       true,
		StockInitial: stock,
		SoldCount:    sold,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	require.NoError(t, err)
}

func soldCount(t *testing.T, db *gorm.DB, id int64) int {
	t.Helper()
	var sold int
	require.NoError(t, db.Raw(`SELECT sold_count FROM items WHERE id = ?`, id).Scan(&sold).Error)
	return sold
}

func newLedger() *inventory.Ledger {
	return inventory.New(inventory.Params{Log: zap.NewNop(), Repo: repository.Provide()})
}

func TestReserveCheck(t *testing.T) {
	item := catalogdomain.Item{StockInitial: 5, SoldCount: 3}
	assert.True(t, inventory.ReserveCheck(item, 2))
	assert.False(t, inventory.ReserveCheck(item, 3))
	assert.False(t, inventory.ReserveCheck(item, 0))

	oversold := catalogdomain.Item{StockInitial: 1, SoldCount: 4}
	assert.Equal(t, 0, oversold.Available())
}

func TestCommitSaleAggregatesAndClamps(t *testing.T) {
	db := testutil.NewDB(t)
	seedItem(t, db, 1, 100, 10, 0)
	seedItem(t, db, 2, 200, 2, 1)
	ledger := newLedger()

	var adjustments []inventory.Adjustment
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		adjustments, err = ledger.CommitSale(context.Background(), tx, []inventory.Sale{
			{ItemID: 2, Qty: 2},
			{ItemID: 1, Qty: 2},
			{ItemID: 1, Qty: 1},
			{ItemID: 99, Qty: 1},
		})
		return err
	})
	require.NoError(t, err)

	require.Len(t, adjustments, 2)
	assert.Equal(t, int64(1), adjustments[0].ItemID)
	assert.Equal(t, 3, adjustments[0].Applied)
	assert.False(t, adjustments[0].Clamped)
	assert.True(t, adjustments[1].Clamped)
	assert.Equal(t, 1, adjustments[1].Applied)

	assert.Equal(t, 3, soldCount(t, db, 1))
	assert.Equal(t, 2, soldCount(t, db, 2))
}

func TestCommitSaleNegativeStockClampsAtZero(t *testing.T) {
	db := testutil.NewDB(t)
	seedItem(t, db, 1, 100, -3, 0)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := newLedger().CommitSale(context.Background(), tx, []inventory.Sale{{ItemID: 1, Qty: 2}})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 0, soldCount(t, db, 1))
}

func TestConcurrentCommitsNeverExceedStock(t *testing.T) {
	db := testutil.NewDB(t)
	seedItem(t, db, 1, 100, 2, 1)
	ledger := newLedger()

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- db.Transaction(func(tx *gorm.DB) error {
				_, err := ledger.CommitSale(context.Background(), tx, []inventory.Sale{{ItemID: 1, Qty: 2}})
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, 2, soldCount(t, db, 1))
}

func TestCommitSaleRollsBackWithTransaction(t *testing.T) {
	db := testutil.NewDB(t)
	seedItem(t, db, 1, 100, 5, 0)

	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := newLedger().CommitSale(context.Background(), tx, []inventory.Sale{{ItemID: 1, Qty: 2}}); err != nil {
			return err
		}
		return gorm.ErrInvalidTransaction
	})
	require.ErrorIs(t, err, gorm.ErrInvalidTransaction)
	assert.Equal(t, 0, soldCount(t, db, 1))
}
