package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type ItemFilter struct {
	Query           string
	Category        string
	IncludeInactive bool
}

type Repository interface {
	CreateItem(ctx context.Context, db *gorm.DB, item *Item) error
	// UpdateItem writes the editable columns. sold_count is left alone; use UpdateSoldCount.
	UpdateItem(ctx context.Context, db *gorm.DB, item *Item) error
	SetItemActive(ctx context.Context, db *gorm.DB, id int64, active bool, at time.Time) error
	DeleteItem(ctx context.Context, db *gorm.DB, id int64) error
	FindItemByID(ctx context.Context, db *gorm.DB, id int64) (*Item, error)
	FindItemsBySKU(ctx context.Context, db *gorm.DB, skus []int64) ([]Item, error)
	ListItems(ctx context.Context, db *gorm.DB, filter ItemFilter) ([]Item, error)
	ActiveCategories(ctx context.Context, db *gorm.DB) ([]string, error)

	LockItemByID(ctx context.Context, tx *gorm.DB, id int64) (*Item, error)
	// LockItems loads items with row write locks in ascending id order.
	LockItems(ctx context.Context, tx *gorm.DB, ids []int64) ([]Item, error)
	UpdateSoldCount(ctx context.Context, tx *gorm.DB, id int64, sold int) error
	ResetSoldCounts(ctx context.Context, tx *gorm.DB) (int64, error)

	CreateCategoryOrder(ctx context.Context, db *gorm.DB, co *CategoryOrder) error
	UpdateCategoryOrder(ctx context.Context, db *gorm.DB, co *CategoryOrder) error
	DeleteCategoryOrder(ctx context.Context, db *gorm.DB, id int64) error
	FindCategoryOrderByID(ctx context.Context, db *gorm.DB, id int64) (*CategoryOrder, error)
	ListCategoryOrders(ctx context.Context, db *gorm.DB) ([]CategoryOrder, error)
}
