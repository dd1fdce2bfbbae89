package repository

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/smallbiznis/banca/internal/catalog/domain"
	"github.com/smallbiznis/banca/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const itemColumns = `id, sku, name, description, price, category, image_url, active, stock_initial, sold_count, created_at, updated_at`

func (r *repo) CreateItem(ctx context.Context, db *gorm.DB, item *domain.Item) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO items (`+itemColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.SKU,
		item.Name,
		item.Description,
		item.Price,
		item.Category,
		item.ImageURL,
		item.Active,
		item.StockInitial,
		item.SoldCount,
		item.CreatedAt,
		item.UpdatedAt,
	).Error
}

func (r *repo) UpdateItem(ctx context.Context, db *gorm.DB, item *domain.Item) error {
	if item == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE items
		 SET sku = ?, name = ?, description = ?, price = ?, category = ?, image_url = ?,
		     active = ?, stock_initial = ?, updated_at = ?
		 WHERE id = ?`,
		item.SKU,
		item.Name,
		item.Description,
		item.Price,
		item.Category,
		item.ImageURL,
		item.Active,
		item.StockInitial,
		item.UpdatedAt,
		item.ID,
	).Error
}

func (r *repo) SetItemActive(ctx context.Context, db *gorm.DB, id int64, active bool, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE items SET active = ?, updated_at = ? WHERE id = ?`,
		active,
		at,
		id,
	).Error
}

func (r *repo) DeleteItem(ctx context.Context, db *gorm.DB, id int64) error {
	return db.WithContext(ctx).Exec(`DELETE FROM items WHERE id = ?`, id).Error
}

func (r *repo) FindItemByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Item, error) {
	var item domain.Item
	err := db.WithContext(ctx).Raw(
		`SELECT `+itemColumns+` FROM items WHERE id = ?`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindItemsBySKU(ctx context.Context, db *gorm.DB, skus []int64) ([]domain.Item, error) {
	if len(skus) == 0 {
		return nil, nil
	}
	var items []domain.Item
	err := db.WithContext(ctx).Raw(
		`SELECT `+itemColumns+` FROM items WHERE sku IN ?`,
		skus,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, filter domain.ItemFilter) ([]domain.Item, error) {
	var items []domain.Item
	stmt := db.WithContext(ctx).Model(&domain.Item{})

	if !filter.IncludeInactive {
		stmt = stmt.Where("active = ?", true)
	}
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		like := "%" + q + "%"
		stmt = stmt.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ? OR LOWER(category) LIKE ?", like, like, like)
	}
	if category := strings.TrimSpace(filter.Category); category != "" {
		stmt = stmt.Where("category = ?", category)
	}

	if err := stmt.Order("category ASC").Order("name ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ActiveCategories(ctx context.Context, db *gorm.DB) ([]string, error) {
	var categories []string
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT category FROM items WHERE active = ? ORDER BY category ASC`,
		true,
	).Scan(&categories).Error
	if err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *repo) LockItemByID(ctx context.Context, tx *gorm.DB, id int64) (*domain.Item, error) {
	var items []domain.Item
	err := db.ForUpdate(tx.WithContext(ctx)).
		Model(&domain.Item{}).
		Where("id = ?", id).
		Limit(1).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) LockItems(ctx context.Context, tx *gorm.DB, ids []int64) ([]domain.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var items []domain.Item
	err := db.ForUpdate(tx.WithContext(ctx)).
		Model(&domain.Item{}).
		Where("id IN ?", sorted).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateSoldCount(ctx context.Context, tx *gorm.DB, id int64, sold int) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE items SET sold_count = ? WHERE id = ?`,
		sold,
		id,
	).Error
}

func (r *repo) ResetSoldCounts(ctx context.Context, tx *gorm.DB) (int64, error) {
	res := tx.WithContext(ctx).Exec(`UPDATE items SET sold_count = 0 WHERE sold_count <> 0`)
	return res.RowsAffected, res.Error
}

func (r *repo) CreateCategoryOrder(ctx context.Context, db *gorm.DB, co *domain.CategoryOrder) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO category_orders (id, name, slug, position, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		co.ID,
		co.Name,
		co.Slug,
		co.Position,
		co.CreatedAt,
		co.UpdatedAt,
	).Error
}

func (r *repo) UpdateCategoryOrder(ctx context.Context, db *gorm.DB, co *domain.CategoryOrder) error {
	return db.WithContext(ctx).Exec(
		`UPDATE category_orders SET name = ?, slug = ?, position = ?, updated_at = ? WHERE id = ?`,
		co.Name,
		co.Slug,
		co.Position,
		co.UpdatedAt,
		co.ID,
	).Error
}

func (r *repo) DeleteCategoryOrder(ctx context.Context, db *gorm.DB, id int64) error {
	return db.WithContext(ctx).Exec(`DELETE FROM category_orders WHERE id = ?`, id).Error
}

func (r *repo) FindCategoryOrderByID(ctx context.Context, db *gorm.DB, id int64) (*domain.CategoryOrder, error) {
	var co domain.CategoryOrder
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, position, created_at, updated_at FROM category_orders WHERE id = ?`,
		id,
	).Scan(&co).Error
	if err != nil {
		return nil, err
	}
	if co.ID == 0 {
		return nil, nil
	}
	return &co, nil
}

func (r *repo) ListCategoryOrders(ctx context.Context, db *gorm.DB) ([]domain.CategoryOrder, error) {
	var rows []domain.CategoryOrder
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, position, created_at, updated_at FROM category_orders ORDER BY position ASC, name ASC`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
