package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/banca/internal/order/domain"
	"github.com/smallbiznis/banca/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const orderColumns = `id, customer_name, customer_phone, total, status, payment_method, provider_payment_id,
	payment_link, note, packaging_needed, created_at, updated_at, paid_at`

// Insert writes the order and its lines; callers run it inside a transaction.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	if order == nil {
		return gorm.ErrInvalidData
	}
	err := db.WithContext(ctx).Exec(
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.CustomerName,
		order.CustomerPhone,
		order.Total,
		order.Status,
		order.PaymentMethod,
		order.ProviderPaymentID,
		order.PaymentLink,
		order.Note,
		order.PackagingNeeded,
		order.CreatedAt,
		order.UpdatedAt,
		order.PaidAt,
	).Error
	if err != nil {
		return err
	}

	for _, line := range order.Lines {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO order_lines (id, order_id, item_id, sku, name, price, qty, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			line.ID,
			order.ID,
			line.ItemID,
			line.SKU,
			line.Name,
			line.Price,
			line.Qty,
			line.Position,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`,
		id,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) LockByID(ctx context.Context, tx *gorm.DB, id int64) (*domain.Order, error) {
	var order domain.Order
	err := db.ForUpdate(tx.WithContext(ctx)).
		Where("id = ?", id).
		Limit(1).
		Find(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) FindLines(ctx context.Context, db *gorm.DB, orderIDs []int64) ([]domain.Line, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	var lines []domain.Line
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, item_id, sku, name, price, qty, position
		 FROM order_lines
		 WHERE order_id IN ?
		 ORDER BY order_id, position, id`,
		orderIDs,
	).Scan(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// List returns orders newest first; BeforeID continues a previous page.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.Order, error) {
	query := db.WithContext(ctx).Model(&domain.Order{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.BeforeID > 0 {
		query = query.Where("id < ?", filter.BeforeID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var orders []domain.Order
	if err := query.Order("id DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	if order == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET status = ?, paid_at = ?, updated_at = ? WHERE id = ?`,
		order.Status,
		order.PaidAt,
		order.UpdatedAt,
		order.ID,
	).Error
}

func (r *repo) UpdatePayment(ctx context.Context, db *gorm.DB, id int64, providerPaymentID, paymentLink string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET provider_payment_id = CASE WHEN ? <> '' THEN ? ELSE provider_payment_id END,
		     payment_link = ?,
		     updated_at = ?
		 WHERE id = ?`,
		providerPaymentID,
		providerPaymentID,
		paymentLink,
		at,
		id,
	).Error
}

func (r *repo) DeleteAll(ctx context.Context, tx *gorm.DB) (int64, error) {
	if err := tx.WithContext(ctx).Exec(`DELETE FROM order_lines`).Error; err != nil {
		return 0, err
	}
	res := tx.WithContext(ctx).Exec(`DELETE FROM orders`)
	return res.RowsAffected, res.Error
}
