package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/banca/internal/catalog/domain"
	"github.com/smallbiznis/banca/internal/catalog/repository"
	"github.com/smallbiznis/banca/internal/catalog/service"
	"github.com/smallbiznis/banca/internal/clock"
	"github.com/smallbiznis/banca/internal/config"
	"github.com/smallbiznis/banca/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	node, err := snowflake.NewNode(10)
	require.NoError(t, err)

	svc := service.New(service.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       repository.Provide(),
		Clock:      clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)),
		Storefront: config.NewStaticStorefrontConfigHolder(config.DefaultStorefrontConfig()),
	})
	return svc, db
}

func createItem(t *testing.T, svc domain.Service, sku int64, name, category string, active bool) *domain.ItemResponse {
	t.Helper()
	item, err := svc.CreateItem(context.Background(), domain.CreateItemRequest{
		SKU:          sku,
		Name:         name,
		Price:        decimal.RequireFromString("12.50"),
		Category:     category,
		Active:       &active,
		StockInitial: 10,
	})
	require.NoError(t, err)
	return item
}

func TestCreateItemValidates(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.CreateItem(ctx, domain.CreateItemRequest{SKU: 0, Name: "Pastel"})
	assert.ErrorIs(t, err, domain.ErrInvalidSKU)

	_, err = svc.CreateItem(ctx, domain.CreateItemRequest{SKU: 1, Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.CreateItem(ctx, domain.CreateItemRequest{SKU: 1, Name: "Pastel", Price: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	createItem(t, svc, 1, "Pastel", "Salgados", true)
	_, err = svc.CreateItem(ctx, domain.CreateItemRequest{SKU: 1, Name: "Outro"})
	assert.ErrorIs(t, err, domain.ErrDuplicateSKU)
}

func TestListItemsFilters(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	createItem(t, svc, 1, "Pastel de carne", "Salgados", true)
	createItem(t, svc, 2, "Caldo de cana", "Bebidas", true)
	createItem(t, svc, 3, "Pastel de queijo", "Salgados", false)

	active, err := svc.ListItems(ctx, domain.ListItemsRequest{})
	require.NoError(t, err)
	assert.Len(t, active, 2)
	assert.Equal(t, "Bebidas", active[0].Category)

	all, err := svc.ListItems(ctx, domain.ListItemsRequest{IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	search, err := svc.ListItems(ctx, domain.ListItemsRequest{Query: "PASTEL", IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, search, 2)

	byCategory, err := svc.ListItems(ctx, domain.ListItemsRequest{Category: "Bebidas"})
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, int64(2), byCategory[0].SKU)
}

func TestUpdateItemPartialAndAvailable(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	item := createItem(t, svc, 7, "Coxinha", "Salgados", true)

	sold := 12
	updated, err := svc.UpdateItem(ctx, item.ID, domain.UpdateItemRequest{SoldCount: &sold})
	require.NoError(t, err)
	assert.Equal(t, "Coxinha", updated.Name)
	assert.Equal(t, 0, updated.Available)

	off, err := svc.SetActive(ctx, item.ID, false)
	require.NoError(t, err)
	assert.False(t, off.Active)

	_, err = svc.GetItem(ctx, "999")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.GetItem(ctx, "abc")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

// saleDuringWriteRepo records a sale on the same transaction right before the
// item row is written, the way a checkout landing mid-edit would.
type saleDuringWriteRepo struct {
	domain.Repository
	sold int
}

func (r *saleDuringWriteRepo) UpdateItem(ctx context.Context, db *gorm.DB, item *domain.Item) error {
	if err := r.Repository.UpdateSoldCount(ctx, db, item.ID, r.sold); err != nil {
		return err
	}
	return r.Repository.UpdateItem(ctx, db, item)
}

func (r *saleDuringWriteRepo) SetItemActive(ctx context.Context, db *gorm.DB, id int64, active bool, at time.Time) error {
	if err := r.Repository.UpdateSoldCount(ctx, db, id, r.sold); err != nil {
		return err
	}
	return r.Repository.SetItemActive(ctx, db, id, active, at)
}

func TestItemEditsKeepSoldCount(t *testing.T) {
	db := testutil.NewDB(t)
	node, err := snowflake.NewNode(10)
	require.NoError(t, err)
	repo := &saleDuringWriteRepo{Repository: repository.Provide()}
	svc := service.New(service.Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       repo,
		Clock:      clock.NewFakeClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)),
		Storefront: config.NewStaticStorefrontConfigHolder(config.DefaultStorefrontConfig()),
	})
	ctx := context.Background()
	item := createItem(t, svc, 8, "Pastel de palmito", "Salgados", true)
	itemID, err := snowflake.ParseString(item.ID)
	require.NoError(t, err)

	repo.sold = 3
	off, err := svc.SetActive(ctx, item.ID, false)
	require.NoError(t, err)
	assert.False(t, off.Active)
	assert.Equal(t, 3, testutil.SoldCount(t, db, itemID.Int64()))

	repo.sold = 5
	name := "Pastel de palmito grande"
	renamed, err := svc.UpdateItem(ctx, item.ID, domain.UpdateItemRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, renamed.Name)
	assert.Equal(t, 5, testutil.SoldCount(t, db, itemID.Int64()))

	got, err := svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.SoldCount)
	assert.False(t, got.Active)
}

func TestUpdateItemExplicitSoldCount(t *testing.T) {
	svc, db := newService(t)
	ctx := context.Background()
	item := createItem(t, svc, 9, "Esfiha", "Salgados", true)
	itemID, err := snowflake.ParseString(item.ID)
	require.NoError(t, err)

	sold := 4
	_, err = svc.UpdateItem(ctx, item.ID, domain.UpdateItemRequest{SoldCount: &sold})
	require.NoError(t, err)
	assert.Equal(t, 4, testutil.SoldCount(t, db, itemID.Int64()))

	_, err = svc.UpdateItem(ctx, "123", domain.UpdateItemRequest{SoldCount: &sold})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCategoriesUseConfiguredOrder(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	createItem(t, svc, 1, "Pastel", "Salgados", true)
	createItem(t, svc, 2, "Caldo", "Bebidas", true)
	createItem(t, svc, 3, "Brinde", "", true)
	createItem(t, svc, 4, "Bolo", "Doces", false)

	first := 1
	_, err := svc.CreateCategoryOrder(ctx, domain.CategoryOrderRequest{Name: "Salgados", Position: &first})
	require.NoError(t, err)

	categories, err := svc.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Salgados", "Bebidas", "Outros"}, categories)
}

func TestCategoryOrderCRUD(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	co, err := svc.CreateCategoryOrder(ctx, domain.CategoryOrderRequest{Name: "Bebidas Geladas"})
	require.NoError(t, err)
	assert.Equal(t, "bebidas-geladas", co.Slug)
	assert.Equal(t, 100, co.Position)

	_, err = svc.CreateCategoryOrder(ctx, domain.CategoryOrderRequest{Name: "Bebidas Geladas"})
	assert.ErrorIs(t, err, domain.ErrDuplicateName)

	pos := 5
	updated, err := svc.UpdateCategoryOrder(ctx, co.ID, domain.CategoryOrderRequest{Position: &pos})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Position)

	require.NoError(t, svc.DeleteCategoryOrder(ctx, co.ID))
	list, err := svc.ListCategoryOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
